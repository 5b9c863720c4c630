package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"labelline/internal/config"
	"labelline/internal/domain"
	"labelline/internal/events"
	"labelline/internal/repo"
)

const timeFormat = time.RFC3339

// Engine owns the allocation pool, the assignment state machine, the review
// path and the stats aggregator. Every public operation runs as one
// transaction: its reads, writes and audit event commit together or not at
// all.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ProjectCreateOptions are parameters for creating a project with its label
// taxonomy.
type ProjectCreateOptions struct {
	ID            string
	Name          string
	Description   string
	PricePerLabel float64
	Deadline      string
	LabelClasses  []LabelClassInput
	ActorID       string
}

type LabelClassInput struct {
	Name      string
	Color     string
	Guideline string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if opts.Name == "" {
		return domain.Project{}, errors.New("name is required")
	}
	if opts.PricePerLabel < 0 {
		return domain.Project{}, errors.New("price_per_label must not be negative")
	}
	id := opts.ID
	now := e.now().UTC().Format(timeFormat)
	if id == "" {
		id = uuid.New().String()
	}
	p := domain.Project{
		ID:            id,
		Name:          opts.Name,
		Description:   opts.Description,
		PricePerLabel: opts.PricePerLabel,
		Deadline:      optionalString(opts.Deadline),
		CreatedAt:     now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	for _, lc := range opts.LabelClasses {
		if lc.Name == "" {
			return domain.Project{}, errors.New("label class name is required")
		}
		if err := e.Repo.InsertLabelClassTx(ctx, tx, domain.LabelClass{
			ID:        uuid.New().String(),
			ProjectID: p.ID,
			Name:      lc.Name,
			Color:     lc.Color,
			Guideline: lc.Guideline,
		}); err != nil {
			return domain.Project{}, fmt.Errorf("insert label class: %w", err)
		}
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.ID, "project", p.ID, opts.ActorID, events.Payload{"name": p.Name}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ImportWorkUnits bulk-creates New work units from storage refs (project data
// import). Units enter the allocation pool in the order given here.
func (e Engine) ImportWorkUnits(ctx context.Context, projectID string, storageRefs []string, actorID string) ([]domain.WorkUnit, error) {
	if len(storageRefs) == 0 {
		return nil, errors.New("at least one storage ref is required")
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	now := e.now().UTC().Format(timeFormat)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	units := make([]domain.WorkUnit, 0, len(storageRefs))
	for _, ref := range storageRefs {
		if ref == "" {
			return nil, errors.New("storage ref must not be empty")
		}
		u := domain.WorkUnit{
			ID:         uuid.New().String(),
			ProjectID:  projectID,
			StorageRef: ref,
			Status:     domain.UnitNew,
			CreatedAt:  now,
		}
		if err := e.Repo.InsertWorkUnitTx(ctx, tx, u); err != nil {
			return nil, fmt.Errorf("insert work unit: %w", err)
		}
		units = append(units, u)
	}
	if err := e.Events.Append(ctx, tx, "units.imported", projectID, "project", projectID, actorID, events.Payload{"count": len(units)}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return units, nil
}

// Allocate claims up to quantity unassigned work units for a worker, in
// insertion order, and creates one Assigned assignment per claimed unit.
// Fewer than requested is a partial success; zero claimable units fails with
// InsufficientInventoryError. The claim itself is a conditional update, so
// two concurrent allocations can never hand out the same unit.
func (e Engine) Allocate(ctx context.Context, projectID, workerID string, quantity int) ([]domain.Assignment, error) {
	if quantity <= 0 {
		return nil, errors.New("quantity must be positive")
	}
	if workerID == "" {
		return nil, errors.New("worker_id is required")
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	now := e.now().UTC().Format(timeFormat)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	candidates, err := e.Repo.ListNewWorkUnitsTx(ctx, tx, projectID, quantity)
	if err != nil {
		return nil, err
	}
	var assignments []domain.Assignment
	for _, unit := range candidates {
		claimed, err := e.Repo.ClaimWorkUnitTx(ctx, tx, unit.ID)
		if err != nil {
			return nil, err
		}
		if !claimed {
			continue
		}
		a := domain.Assignment{
			ID:         uuid.New().String(),
			ProjectID:  projectID,
			WorkUnitID: unit.ID,
			WorkerID:   workerID,
			Status:     domain.AssignmentAssigned,
			AssignedAt: now,
		}
		if err := e.Repo.InsertAssignmentTx(ctx, tx, a); err != nil {
			return nil, fmt.Errorf("insert assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	if len(assignments) == 0 {
		return nil, InsufficientInventoryError{ProjectID: projectID}
	}
	// Register what was actually claimed, not what was requested.
	if err := e.registerAssigned(ctx, tx, workerID, projectID, len(assignments)); err != nil {
		return nil, err
	}
	if err := e.Events.Append(ctx, tx, "assignments.allocated", projectID, "worker", workerID, workerID, events.Payload{
		"requested": quantity,
		"claimed":   len(assignments),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return assignments, nil
}

// AnnotationInput is one entry of an incoming annotation set.
type AnnotationInput struct {
	LabelClassID string
	ValueJSON    string
}

func (e Engine) buildEntries(assignmentID string, inputs []AnnotationInput) ([]domain.AnnotationEntry, error) {
	now := e.now().UTC().Format(timeFormat)
	entries := make([]domain.AnnotationEntry, 0, len(inputs))
	for _, in := range inputs {
		if in.LabelClassID == "" {
			return nil, errors.New("label_class_id is required")
		}
		if err := validateJSON(in.ValueJSON); err != nil {
			return nil, fmt.Errorf("annotation value: %w", err)
		}
		entries = append(entries, domain.AnnotationEntry{
			ID:           uuid.New().String(),
			AssignmentID: assignmentID,
			LabelClassID: in.LabelClassID,
			ValueJSON:    in.ValueJSON,
			CreatedAt:    now,
		})
	}
	return entries, nil
}

// SaveDraft replaces the assignment's annotation set without submitting.
// The first draft moves an Assigned or Rejected assignment to InProgress.
// The status write is conditional on the status the worker read, so a
// decision landing in between cannot have its assignment edited underneath
// it.
func (e Engine) SaveDraft(ctx context.Context, actorID, assignmentID string, inputs []AnnotationInput) error {
	a, err := e.Repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	if a.WorkerID != actorID {
		return UnauthorizedError{ActorID: actorID, AssignmentID: assignmentID}
	}
	if a.Status == domain.AssignmentCompleted {
		return InvalidStateError{Op: "edit", Status: a.Status}
	}
	entries, err := e.buildEntries(assignmentID, inputs)
	if err != nil {
		return err
	}
	target := a.Status
	if a.Status == domain.AssignmentAssigned || a.Status == domain.AssignmentRejected {
		target = domain.AssignmentInProgress
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	moved, err := e.Repo.UpdateAssignmentStatusFromTx(ctx, tx, assignmentID, a.Status, target)
	if err != nil {
		return err
	}
	if !moved {
		return ConflictError{AssignmentID: assignmentID}
	}
	if err := e.Repo.ReplaceAnnotationEntriesTx(ctx, tx, assignmentID, entries); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "draft.saved", a.ProjectID, "assignment", a.ID, actorID, events.Payload{"entries": len(entries)}); err != nil {
		return err
	}
	return tx.Commit()
}

// Submit replaces the annotation set and marks the assignment Submitted.
// Assigned, InProgress and Rejected are all valid starting points; only a
// Completed assignment refuses further worker actions. The Submitted flip is
// conditional on the status the worker read, so a review that completes the
// assignment in between wins the race and the submit fails with
// ConflictError instead of reopening a terminal assignment.
func (e Engine) Submit(ctx context.Context, actorID, assignmentID string, inputs []AnnotationInput) error {
	a, err := e.Repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	if a.WorkerID != actorID {
		return UnauthorizedError{ActorID: actorID, AssignmentID: assignmentID}
	}
	if a.Status == domain.AssignmentCompleted {
		return InvalidStateError{Op: "submit", Status: a.Status}
	}
	entries, err := e.buildEntries(assignmentID, inputs)
	if err != nil {
		return err
	}
	now := e.now().UTC().Format(timeFormat)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	moved, err := e.Repo.MarkAssignmentSubmittedTx(ctx, tx, assignmentID, a.Status, now)
	if err != nil {
		return err
	}
	if !moved {
		return ConflictError{AssignmentID: assignmentID}
	}
	if err := e.Repo.ReplaceAnnotationEntriesTx(ctx, tx, assignmentID, entries); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "assignment.submitted", a.ProjectID, "assignment", a.ID, actorID, events.Payload{"entries": len(entries)}); err != nil {
		return err
	}
	return tx.Commit()
}

// Review applies a reviewer decision to a Submitted assignment. The status
// flip is a conditional update: if a concurrent submit or review moved the
// assignment first, the call fails with ConflictError instead of applying a
// decision to a state the reviewer never saw.
func (e Engine) Review(ctx context.Context, reviewerID, assignmentID string, decision ReviewDecision) (domain.ReviewLog, error) {
	a, err := e.Repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return domain.ReviewLog{}, err
	}
	decision, err = ValidateDecision(a.Status, decision)
	if err != nil {
		return domain.ReviewLog{}, err
	}
	now := e.now().UTC().Format(timeFormat)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ReviewLog{}, err
	}
	defer tx.Rollback()

	project, err := e.Repo.GetProjectTx(ctx, tx, a.ProjectID)
	if err != nil {
		return domain.ReviewLog{}, err
	}
	targetStatus := domain.AssignmentRejected
	decisionName := domain.DecisionReject
	if decision.Approved {
		targetStatus = domain.AssignmentCompleted
		decisionName = domain.DecisionApprove
	}
	moved, err := e.Repo.UpdateAssignmentStatusFromTx(ctx, tx, a.ID, domain.AssignmentSubmitted, targetStatus)
	if err != nil {
		return domain.ReviewLog{}, err
	}
	if !moved {
		return domain.ReviewLog{}, ConflictError{AssignmentID: a.ID}
	}
	log := domain.ReviewLog{
		ID:            uuid.New().String(),
		AssignmentID:  a.ID,
		ReviewerID:    reviewerID,
		Decision:      decisionName,
		Comment:       decision.Comment,
		ErrorCategory: decision.ErrorCategory,
		CreatedAt:     now,
	}
	if err := e.Repo.InsertReviewLogTx(ctx, tx, log); err != nil {
		return domain.ReviewLog{}, err
	}
	if decision.Approved {
		if err := e.Repo.SetWorkUnitStatusTx(ctx, tx, a.WorkUnitID, domain.UnitDone); err != nil {
			return domain.ReviewLog{}, err
		}
	}
	if _, err := e.applyReviewOutcome(ctx, tx, a.WorkerID, project, decision.Approved); err != nil {
		return domain.ReviewLog{}, err
	}
	if err := e.Events.Append(ctx, tx, "assignment.reviewed", a.ProjectID, "assignment", a.ID, reviewerID, events.Payload{
		"decision":       decisionName,
		"error_category": decision.ErrorCategory,
	}); err != nil {
		return domain.ReviewLog{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ReviewLog{}, err
	}
	return log, nil
}

// --- helpers ---

func validateJSON(in string) error {
	var tmp any
	if err := json.Unmarshal([]byte(in), &tmp); err != nil {
		return err
	}
	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
