package repo

import (
	"context"
	"database/sql"

	"labelline/internal/domain"
)

func scanAssignment(scan func(...any) error) (domain.Assignment, error) {
	var a domain.Assignment
	var submittedAt sql.NullString
	err := scan(&a.ID, &a.ProjectID, &a.WorkUnitID, &a.WorkerID, &a.Status, &a.AssignedAt, &submittedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if submittedAt.Valid {
		a.SubmittedAt = &submittedAt.String
	}
	return a, nil
}

const assignmentCols = `id,project_id,work_unit_id,worker_id,status,assigned_at,submitted_at`

func (r Repo) InsertAssignmentTx(ctx context.Context, tx *sql.Tx, a domain.Assignment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO assignments(`+assignmentCols+`) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.ProjectID, a.WorkUnitID, a.WorkerID, a.Status, a.AssignedAt, nullableStringPtr(a.SubmittedAt))
	return err
}

func (r Repo) GetAssignment(ctx context.Context, id string) (domain.Assignment, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE id=?`, id)
	return scanAssignment(row.Scan)
}

func (r Repo) GetAssignmentTx(ctx context.Context, tx *sql.Tx, id string) (domain.Assignment, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE id=?`, id)
	return scanAssignment(row.Scan)
}

// UpdateAssignmentStatusFromTx transitions status only when the row still
// holds fromStatus. The returned bool is false on a lost race.
func (r Repo) UpdateAssignmentStatusFromTx(ctx context.Context, tx *sql.Tx, id, fromStatus, toStatus string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE assignments SET status=? WHERE id=? AND status=?`, toStatus, id, fromStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkAssignmentSubmittedTx flips the assignment to Submitted only while it
// still holds the status the worker observed. The returned bool is false when
// a concurrent review (or another submit) moved the row first.
func (r Repo) MarkAssignmentSubmittedTx(ctx context.Context, tx *sql.Tx, id, fromStatus, submittedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE assignments SET status=?, submitted_at=? WHERE id=? AND status=?`,
		domain.AssignmentSubmitted, submittedAt, id, fromStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type AssignmentFilters struct {
	WorkerID  string
	ProjectID string
	Status    string
}

func (r Repo) ListAssignments(ctx context.Context, f AssignmentFilters) ([]domain.Assignment, error) {
	var clauses []string
	var args []any
	if f.WorkerID != "" {
		clauses = append(clauses, "worker_id=?")
		args = append(args, f.WorkerID)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + assignmentCols + ` FROM assignments ` + joinClauses(clauses) + ` ORDER BY assigned_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// CountAssignmentsByStatus buckets a worker's assignments by status across
// all projects.
func (r Repo) CountAssignmentsByStatus(ctx context.Context, workerID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM assignments WHERE worker_id=? GROUP BY status`, workerID)
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

// ReplaceAnnotationEntriesTx discards the assignment's current annotation set
// and writes the new one. Last writer wins; there is no version history.
func (r Repo) ReplaceAnnotationEntriesTx(ctx context.Context, tx *sql.Tx, assignmentID string, entries []domain.AnnotationEntry) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM annotation_entries WHERE assignment_id=?`, assignmentID); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `INSERT INTO annotation_entries(id,assignment_id,label_class_id,value_json,created_at) VALUES (?,?,?,?,?)`,
			e.ID, assignmentID, e.LabelClassID, e.ValueJSON, e.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ListAnnotationEntries(ctx context.Context, assignmentID string) ([]domain.AnnotationEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,assignment_id,label_class_id,value_json,created_at FROM annotation_entries WHERE assignment_id=? ORDER BY created_at, id`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AnnotationEntry
	for rows.Next() {
		var e domain.AnnotationEntry
		if err := rows.Scan(&e.ID, &e.AssignmentID, &e.LabelClassID, &e.ValueJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) InsertReviewLogTx(ctx context.Context, tx *sql.Tx, l domain.ReviewLog) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO review_logs(id,assignment_id,reviewer_id,decision,comment,error_category,created_at) VALUES (?,?,?,?,?,?,?)`,
		l.ID, l.AssignmentID, l.ReviewerID, l.Decision, nullable(l.Comment), nullable(l.ErrorCategory), l.CreatedAt)
	return err
}

// LatestReviewLog returns the most recent decision for an assignment, or
// ErrNotFound when it was never reviewed.
func (r Repo) LatestReviewLog(ctx context.Context, assignmentID string) (domain.ReviewLog, error) {
	var l domain.ReviewLog
	var comment, category sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,assignment_id,reviewer_id,decision,comment,error_category,created_at
FROM review_logs WHERE assignment_id=? ORDER BY created_at DESC, id DESC LIMIT 1`, assignmentID).
		Scan(&l.ID, &l.AssignmentID, &l.ReviewerID, &l.Decision, &comment, &category, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	if comment.Valid {
		l.Comment = comment.String
	}
	if category.Valid {
		l.ErrorCategory = category.String
	}
	return l, nil
}

func (r Repo) ListReviewLogs(ctx context.Context, assignmentID string) ([]domain.ReviewLog, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,assignment_id,reviewer_id,decision,comment,error_category,created_at
FROM review_logs WHERE assignment_id=? ORDER BY created_at, id`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ReviewLog
	for rows.Next() {
		var l domain.ReviewLog
		var comment, category sql.NullString
		if err := rows.Scan(&l.ID, &l.AssignmentID, &l.ReviewerID, &l.Decision, &comment, &category, &l.CreatedAt); err != nil {
			return nil, err
		}
		if comment.Valid {
			l.Comment = comment.String
		}
		if category.Valid {
			l.ErrorCategory = category.String
		}
		res = append(res, l)
	}
	return res, rows.Err()
}
