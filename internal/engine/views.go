package engine

import (
	"context"
	"errors"

	"labelline/internal/domain"
	"labelline/internal/events"
	"labelline/internal/repo"
)

// AssignmentDetail is the acyclic projection handed to workers. No entity in
// it points back at its owner.
type AssignmentDetail struct {
	ID           string
	ProjectID    string
	WorkUnitID   string
	StorageRef   string
	Status       string
	Entries      []domain.AnnotationEntry
	AssignedAt   string
	SubmittedAt  *string
	Deadline     *string
	RejectReason string
}

// GetDetail returns an assignment's detail for its owning worker. Viewing an
// Assigned assignment starts the work: it transitions to InProgress as part
// of this call. That read-triggered transition is deliberate and observable,
// not an accident of caching.
func (e Engine) GetDetail(ctx context.Context, actorID, assignmentID string) (AssignmentDetail, error) {
	a, err := e.Repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return AssignmentDetail{}, err
	}
	if a.WorkerID != actorID {
		return AssignmentDetail{}, UnauthorizedError{ActorID: actorID, AssignmentID: assignmentID}
	}
	if a.Status == domain.AssignmentAssigned {
		if err := e.markInProgress(ctx, &a, actorID); err != nil {
			return AssignmentDetail{}, err
		}
	}
	return e.assignmentDetail(ctx, a)
}

// markInProgress is the first-view-starts-work transition. The conditional
// update tolerates a concurrent draft save having entered InProgress already.
func (e Engine) markInProgress(ctx context.Context, a *domain.Assignment, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	moved, err := e.Repo.UpdateAssignmentStatusFromTx(ctx, tx, a.ID, domain.AssignmentAssigned, domain.AssignmentInProgress)
	if err != nil {
		return err
	}
	if !moved {
		// A concurrent write moved the row first; report what the store
		// holds rather than the transition that never happened.
		fresh, err := e.Repo.GetAssignmentTx(ctx, tx, a.ID)
		if err != nil {
			return err
		}
		*a = fresh
		return nil
	}
	if err := e.Events.Append(ctx, tx, "assignment.started", a.ProjectID, "assignment", a.ID, actorID, events.Payload{}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	a.Status = domain.AssignmentInProgress
	return nil
}

func (e Engine) assignmentDetail(ctx context.Context, a domain.Assignment) (AssignmentDetail, error) {
	unit, err := e.Repo.GetWorkUnit(ctx, a.WorkUnitID)
	if err != nil {
		return AssignmentDetail{}, err
	}
	project, err := e.Repo.GetProject(ctx, a.ProjectID)
	if err != nil {
		return AssignmentDetail{}, err
	}
	entries, err := e.Repo.ListAnnotationEntries(ctx, a.ID)
	if err != nil {
		return AssignmentDetail{}, err
	}
	detail := AssignmentDetail{
		ID:          a.ID,
		ProjectID:   a.ProjectID,
		WorkUnitID:  a.WorkUnitID,
		StorageRef:  unit.StorageRef,
		Status:      a.Status,
		Entries:     entries,
		AssignedAt:  a.AssignedAt,
		SubmittedAt: a.SubmittedAt,
		Deadline:    project.Deadline,
	}
	if a.Status == domain.AssignmentRejected {
		log, err := e.Repo.LatestReviewLog(ctx, a.ID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return AssignmentDetail{}, err
		}
		if err == nil {
			detail.RejectReason = log.Comment
			if detail.RejectReason == "" {
				detail.RejectReason = log.ErrorCategory
			}
		}
	}
	return detail, nil
}

// WorkerProjectSummary groups a worker's assignments per project.
type WorkerProjectSummary struct {
	ProjectID    string
	ProjectName  string
	Description  string
	ThumbnailRef string
	AssignedAt   string
	Deadline     *string
	TotalUnits   int
	DoneUnits    int
	Status       string
}

// WorkerProjects summarizes every project the worker holds assignments in.
func (e Engine) WorkerProjects(ctx context.Context, workerID string) ([]WorkerProjectSummary, error) {
	assignments, err := e.Repo.ListAssignments(ctx, repo.AssignmentFilters{WorkerID: workerID})
	if err != nil {
		return nil, err
	}
	byProject := map[string][]domain.Assignment{}
	var order []string
	for _, a := range assignments {
		if _, seen := byProject[a.ProjectID]; !seen {
			order = append(order, a.ProjectID)
		}
		byProject[a.ProjectID] = append(byProject[a.ProjectID], a)
	}
	var res []WorkerProjectSummary
	for _, projectID := range order {
		group := byProject[projectID]
		project, err := e.Repo.GetProject(ctx, projectID)
		if err != nil {
			return nil, err
		}
		summary := WorkerProjectSummary{
			ProjectID:   projectID,
			ProjectName: project.Name,
			Description: project.Description,
			Deadline:    project.Deadline,
			TotalUnits:  len(group),
		}
		allCompleted := true
		anyStarted := false
		for i, a := range group {
			if i == 0 || a.AssignedAt < summary.AssignedAt {
				summary.AssignedAt = a.AssignedAt
			}
			if a.Status == domain.AssignmentSubmitted || a.Status == domain.AssignmentCompleted {
				summary.DoneUnits++
			}
			if a.Status != domain.AssignmentCompleted {
				allCompleted = false
			}
			if a.Status != domain.AssignmentAssigned {
				anyStarted = true
			}
		}
		if unit, err := e.Repo.GetWorkUnit(ctx, group[0].WorkUnitID); err == nil {
			summary.ThumbnailRef = unit.StorageRef
		}
		switch {
		case allCompleted:
			summary.Status = "Completed"
		case anyStarted:
			summary.Status = "InProgress"
		default:
			summary.Status = "Assigned"
		}
		res = append(res, summary)
	}
	return res, nil
}

// WorkerAssignments lists a worker's assignments in a project as details,
// without triggering the first-view transition.
func (e Engine) WorkerAssignments(ctx context.Context, workerID, projectID string) ([]AssignmentDetail, error) {
	assignments, err := e.Repo.ListAssignments(ctx, repo.AssignmentFilters{WorkerID: workerID, ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	var res []AssignmentDetail
	for _, a := range assignments {
		d, err := e.assignmentDetail(ctx, a)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}

// ReviewItem is one submitted assignment awaiting review, with the project's
// label taxonomy attached for the review UI.
type ReviewItem struct {
	AssignmentID string
	WorkUnitID   string
	StorageRef   string
	ProjectName  string
	Status       string
	Labels       []domain.LabelClass
	Entries      []domain.AnnotationEntry
}

// ReviewQueue lists a project's Submitted assignments.
func (e Engine) ReviewQueue(ctx context.Context, projectID string) ([]ReviewItem, error) {
	project, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	labels, err := e.Repo.ListLabelClasses(ctx, projectID)
	if err != nil {
		return nil, err
	}
	assignments, err := e.Repo.ListAssignments(ctx, repo.AssignmentFilters{ProjectID: projectID, Status: domain.AssignmentSubmitted})
	if err != nil {
		return nil, err
	}
	var res []ReviewItem
	for _, a := range assignments {
		unit, err := e.Repo.GetWorkUnit(ctx, a.WorkUnitID)
		if err != nil {
			return nil, err
		}
		entries, err := e.Repo.ListAnnotationEntries(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		res = append(res, ReviewItem{
			AssignmentID: a.ID,
			WorkUnitID:   a.WorkUnitID,
			StorageRef:   unit.StorageRef,
			ProjectName:  project.Name,
			Status:       a.Status,
			Labels:       labels,
			Entries:      entries,
		})
	}
	return res, nil
}

// WorkerStats buckets a worker's assignments by lifecycle state across all
// projects.
type WorkerStats struct {
	TotalAssigned int
	Pending       int
	Submitted     int
	Rejected      int
	Completed     int
}

func (e Engine) GetWorkerStats(ctx context.Context, workerID string) (WorkerStats, error) {
	counts, err := e.Repo.CountAssignmentsByStatus(ctx, workerID)
	if err != nil {
		return WorkerStats{}, err
	}
	var s WorkerStats
	for status, count := range counts {
		s.TotalAssigned += count
		switch status {
		case domain.AssignmentSubmitted:
			s.Submitted += count
		case domain.AssignmentRejected:
			s.Rejected += count
		case domain.AssignmentCompleted:
			s.Completed += count
		default:
			s.Pending += count
		}
	}
	return s, nil
}

// ProjectStatistics is the manager-facing progress summary for one project.
type ProjectStatistics struct {
	ProjectID   string
	ProjectName string
	TotalUnits  int
	NewUnits    int
	Assigned    int
	DoneUnits   int
	Workers     []domain.PerformanceStat
}

func (e Engine) GetProjectStatistics(ctx context.Context, projectID string) (ProjectStatistics, error) {
	project, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return ProjectStatistics{}, err
	}
	counts, err := e.Repo.CountUnitsByStatus(ctx, projectID)
	if err != nil {
		return ProjectStatistics{}, err
	}
	workers, err := e.Repo.ListStatsByProject(ctx, projectID)
	if err != nil {
		return ProjectStatistics{}, err
	}
	stats := ProjectStatistics{
		ProjectID:   projectID,
		ProjectName: project.Name,
		NewUnits:    counts[domain.UnitNew],
		Assigned:    counts[domain.UnitAssigned],
		DoneUnits:   counts[domain.UnitDone],
		Workers:     workers,
	}
	for _, c := range counts {
		stats.TotalUnits += c
	}
	return stats, nil
}
