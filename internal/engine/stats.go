package engine

import (
	"context"
	"database/sql"

	"labelline/internal/domain"
)

// registerAssigned records claimed units on the (worker, project) stat via a
// single idempotent upsert, then recomputes efficiency against the grown
// denominator. A worker with no review outcomes yet keeps the 100 default;
// earnings are untouched here since they only depend on approvals. Called
// inside the allocation transaction.
func (e Engine) registerAssigned(ctx context.Context, tx *sql.Tx, workerID, projectID string, claimed int) error {
	now := e.now().UTC().Format(timeFormat)
	if err := e.Repo.AddAssignedTx(ctx, tx, workerID, projectID, claimed, now); err != nil {
		return err
	}
	stat, err := e.Repo.GetStatTx(ctx, tx, workerID, projectID)
	if err != nil {
		return err
	}
	if stat.TotalAssigned > 0 && stat.TotalApproved+stat.TotalRejected > 0 {
		stat.EfficiencyScore = float64(stat.TotalApproved) / float64(stat.TotalAssigned) * 100
	}
	stat.UpdatedAt = now
	return e.Repo.UpdateStatTx(ctx, tx, stat)
}

// applyReviewOutcome folds one review decision into the stat row and
// recomputes the derived fields. Efficiency and earnings are recalculated
// from scratch on every call so they stay consistent with the counters and
// the project's current price even after a later price change.
func (e Engine) applyReviewOutcome(ctx context.Context, tx *sql.Tx, workerID string, project domain.Project, approved bool) (domain.PerformanceStat, error) {
	now := e.now().UTC().Format(timeFormat)
	if err := e.Repo.EnsureStatTx(ctx, tx, workerID, project.ID, now); err != nil {
		return domain.PerformanceStat{}, err
	}
	stat, err := e.Repo.GetStatTx(ctx, tx, workerID, project.ID)
	if err != nil {
		return stat, err
	}
	if approved {
		stat.TotalApproved++
	} else {
		stat.TotalRejected++
	}
	stat.EstimatedEarnings = float64(stat.TotalApproved) * project.PricePerLabel
	if stat.TotalAssigned > 0 {
		stat.EfficiencyScore = float64(stat.TotalApproved) / float64(stat.TotalAssigned) * 100
	}
	stat.UpdatedAt = now
	if err := e.Repo.UpdateStatTx(ctx, tx, stat); err != nil {
		return stat, err
	}
	return stat, nil
}
