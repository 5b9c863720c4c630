package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"labelline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,description,price_per_label,deadline,created_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.PricePerLabel, nullableStringPtr(p.Deadline), p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	var desc, deadline sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,description,price_per_label,deadline,created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &desc, &p.PricePerLabel, &deadline, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if desc.Valid {
		p.Description = desc.String
	}
	if deadline.Valid {
		p.Deadline = &deadline.String
	}
	return p, nil
}

// GetProjectTx reads a project inside the caller's transaction so review can
// use the price the same commit sees.
func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	var p domain.Project
	var desc, deadline sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT id,name,description,price_per_label,deadline,created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &desc, &p.PricePerLabel, &deadline, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if desc.Valid {
		p.Description = desc.String
	}
	if deadline.Valid {
		p.Deadline = &deadline.String
	}
	return p, nil
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,description,price_per_label,deadline,created_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		var desc, deadline sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &desc, &p.PricePerLabel, &deadline, &p.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			p.Description = desc.String
		}
		if deadline.Valid {
			p.Deadline = &deadline.String
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// SingleProject resolves the only project in the workspace, for CLI commands
// invoked without --project.
func (r Repo) SingleProject(ctx context.Context) (domain.Project, error) {
	projects, err := r.ListProjects(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	if len(projects) == 0 {
		return domain.Project{}, ErrNotFound
	}
	if len(projects) > 1 {
		return domain.Project{}, fmt.Errorf("multiple projects exist; specify --project")
	}
	return projects[0], nil
}

func (r Repo) SetProjectPrice(ctx context.Context, id string, price float64) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE projects SET price_per_label=? WHERE id=?`, price, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertLabelClassTx(ctx context.Context, tx *sql.Tx, lc domain.LabelClass) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO label_classes(id,project_id,name,color,guideline) VALUES (?,?,?,?,?)`,
		lc.ID, lc.ProjectID, lc.Name, nullable(lc.Color), nullable(lc.Guideline))
	return err
}

func (r Repo) ListLabelClasses(ctx context.Context, projectID string) ([]domain.LabelClass, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,name,COALESCE(color,''),COALESCE(guideline,'') FROM label_classes WHERE project_id=? ORDER BY name, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LabelClass
	for rows.Next() {
		var lc domain.LabelClass
		if err := rows.Scan(&lc.ID, &lc.ProjectID, &lc.Name, &lc.Color, &lc.Guideline); err != nil {
			return nil, err
		}
		res = append(res, lc)
	}
	return res, rows.Err()
}

func (r Repo) InsertWorkUnitTx(ctx context.Context, tx *sql.Tx, u domain.WorkUnit) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO work_units(id,project_id,storage_ref,status,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.ProjectID, u.StorageRef, u.Status, u.CreatedAt)
	return err
}

func (r Repo) GetWorkUnit(ctx context.Context, id string) (domain.WorkUnit, error) {
	var u domain.WorkUnit
	err := r.DB.QueryRowContext(ctx, `SELECT id,project_id,storage_ref,status,created_at FROM work_units WHERE id=?`, id).
		Scan(&u.ID, &u.ProjectID, &u.StorageRef, &u.Status, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

// ListNewWorkUnitsTx returns up to limit unassigned units in insertion order.
// Insertion order keeps allocation deterministic and testable.
func (r Repo) ListNewWorkUnitsTx(ctx context.Context, tx *sql.Tx, projectID string, limit int) ([]domain.WorkUnit, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,project_id,storage_ref,status,created_at FROM work_units
WHERE project_id=? AND status=? ORDER BY created_at ASC, id ASC LIMIT ?`, projectID, domain.UnitNew, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkUnit
	for rows.Next() {
		var u domain.WorkUnit
		if err := rows.Scan(&u.ID, &u.ProjectID, &u.StorageRef, &u.Status, &u.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// ClaimWorkUnitTx conditionally flips a unit New -> Assigned. The returned
// bool is false when another allocation already claimed it.
func (r Repo) ClaimWorkUnitTx(ctx context.Context, tx *sql.Tx, unitID string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE work_units SET status=? WHERE id=? AND status=?`,
		domain.UnitAssigned, unitID, domain.UnitNew)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r Repo) SetWorkUnitStatusTx(ctx context.Context, tx *sql.Tx, unitID, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE work_units SET status=? WHERE id=?`, status, unitID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountUnitsByStatus(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM work_units WHERE project_id=? GROUP BY status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func joinClauses(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(clauses, " AND ")
}
