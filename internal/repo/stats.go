package repo

import (
	"context"
	"database/sql"

	"labelline/internal/domain"
)

// AddAssignedTx is the single idempotent upsert both the allocation pool and
// the review path converge on. A fresh row starts at efficiency 100; the
// uniqueness constraint on (worker_id, project_id) makes concurrent
// first-touch safe.
func (r Repo) AddAssignedTx(ctx context.Context, tx *sql.Tx, workerID, projectID string, delta int, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO performance_stats(worker_id,project_id,total_assigned,total_approved,total_rejected,efficiency_score,estimated_earnings,updated_at)
VALUES (?,?,?,0,0,100,0,?)
ON CONFLICT(worker_id,project_id) DO UPDATE SET
    total_assigned=total_assigned+excluded.total_assigned,
    updated_at=excluded.updated_at`,
		workerID, projectID, delta, now)
	return err
}

// EnsureStatTx creates a zero-counter stat row if none exists. Review touches
// a pair that allocation may never have seen (for example after a manual
// reassignment), so it upserts rather than assuming the row is there.
func (r Repo) EnsureStatTx(ctx context.Context, tx *sql.Tx, workerID, projectID, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO performance_stats(worker_id,project_id,total_assigned,total_approved,total_rejected,efficiency_score,estimated_earnings,updated_at)
VALUES (?,?,0,0,0,100,0,?)
ON CONFLICT(worker_id,project_id) DO NOTHING`,
		workerID, projectID, now)
	return err
}

func scanStat(scan func(...any) error) (domain.PerformanceStat, error) {
	var s domain.PerformanceStat
	err := scan(&s.WorkerID, &s.ProjectID, &s.TotalAssigned, &s.TotalApproved, &s.TotalRejected, &s.EfficiencyScore, &s.EstimatedEarnings, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

const statCols = `worker_id,project_id,total_assigned,total_approved,total_rejected,efficiency_score,estimated_earnings,updated_at`

func (r Repo) GetStat(ctx context.Context, workerID, projectID string) (domain.PerformanceStat, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+statCols+` FROM performance_stats WHERE worker_id=? AND project_id=?`, workerID, projectID)
	return scanStat(row.Scan)
}

func (r Repo) GetStatTx(ctx context.Context, tx *sql.Tx, workerID, projectID string) (domain.PerformanceStat, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+statCols+` FROM performance_stats WHERE worker_id=? AND project_id=?`, workerID, projectID)
	return scanStat(row.Scan)
}

func (r Repo) UpdateStatTx(ctx context.Context, tx *sql.Tx, s domain.PerformanceStat) error {
	res, err := tx.ExecContext(ctx, `UPDATE performance_stats SET total_assigned=?, total_approved=?, total_rejected=?, efficiency_score=?, estimated_earnings=?, updated_at=?
WHERE worker_id=? AND project_id=?`,
		s.TotalAssigned, s.TotalApproved, s.TotalRejected, s.EfficiencyScore, s.EstimatedEarnings, s.UpdatedAt, s.WorkerID, s.ProjectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListStatsByProject(ctx context.Context, projectID string) ([]domain.PerformanceStat, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+statCols+` FROM performance_stats WHERE project_id=? ORDER BY worker_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PerformanceStat
	for rows.Next() {
		s, err := scanStat(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) ListStatsByWorker(ctx context.Context, workerID string) ([]domain.PerformanceStat, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+statCols+` FROM performance_stats WHERE worker_id=? ORDER BY project_id`, workerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PerformanceStat
	for rows.Next() {
		s, err := scanStat(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
