package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"labelline/internal/config"
	"labelline/internal/db"
	"labelline/internal/domain"
	"labelline/internal/engine"
	"labelline/internal/migrate"
	"labelline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func seedProject(t *testing.T, env testEnv, price float64, units int) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		Name:          "Object Detection Phase 1",
		PricePerLabel: price,
		LabelClasses: []engine.LabelClassInput{
			{Name: "car", Color: "#ff0000"},
			{Name: "pedestrian", Color: "#00ff00"},
		},
		ActorID: "manager-1",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	refs := make([]string, units)
	for i := range refs {
		refs[i] = fmt.Sprintf("s3://bucket/img-%03d.jpg", i)
	}
	if units > 0 {
		if _, err := env.Engine.ImportWorkUnits(env.Ctx, p.ID, refs, "manager-1"); err != nil {
			t.Fatalf("import units: %v", err)
		}
	}
	return p
}

func labelID(t *testing.T, env testEnv, projectID string) string {
	t.Helper()
	labels, err := env.Engine.Repo.ListLabelClasses(env.Ctx, projectID)
	if err != nil || len(labels) == 0 {
		t.Fatalf("list labels: %v", err)
	}
	return labels[0].ID
}

func entries(labelClassID string, values ...string) []engine.AnnotationInput {
	var in []engine.AnnotationInput
	for _, v := range values {
		in = append(in, engine.AnnotationInput{LabelClassID: labelClassID, ValueJSON: v})
	}
	return in
}

func TestAllocatePartialAvailability(t *testing.T) {
	env := newTestEnv(t)
	p := seedProject(t, env, 5000, 3)
	got, err := env.Engine.Allocate(env.Ctx, p.ID, "worker-a", 5)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 assignments for 3 available units, got %d", len(got))
	}
	stat, err := env.Engine.Repo.GetStat(env.Ctx, "worker-a", p.ID)
	if err != nil {
		t.Fatalf("get stat: %v", err)
	}
	if stat.TotalAssigned != 3 {
		t.Fatalf("expected total_assigned 3 (claimed, not requested), got %d", stat.TotalAssigned)
	}
	if stat.EfficiencyScore != 100 {
		t.Fatalf("fresh stat should start at 100, got %v", stat.EfficiencyScore)
	}
}

func TestAllocateEmptyPool(t *testing.T) {
	env := newTestEnv(t)
	p := seedProject(t, env, 5000, 0)
	_, err := env.Engine.Allocate(env.Ctx, p.ID, "worker-a", 2)
	var insufficient engine.InsufficientInventoryError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientInventoryError, got %v", err)
	}
}

func TestAllocateInsertionOrder(t *testing.T) {
	env := newTestEnv(t)
	p := seedProject(t, env, 5000, 3)
	got, err := env.Engine.Allocate(env.Ctx, p.ID, "worker-a", 2)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	first, err := env.Engine.Repo.GetWorkUnit(env.Ctx, got[0].WorkUnitID)
	if err != nil {
		t.Fatalf("get unit: %v", err)
	}
	second, err := env.Engine.Repo.GetWorkUnit(env.Ctx, got[1].WorkUnitID)
	if err != nil {
		t.Fatalf("get unit: %v", err)
	}
	if first.StorageRef != "s3://bucket/img-000.jpg" || second.StorageRef != "s3://bucket/img-001.jpg" {
		t.Fatalf("expected insertion order, got %s then %s", first.StorageRef, second.StorageRef)
	}
}

func TestAllocateConcurrentNeverDoubleClaims(t *testing.T) {
	env := newTestEnv(t)
	const n = 8
	p := seedProject(t, env, 5000, n)

	var wg sync.WaitGroup
	results := make([][]domain.Assignment, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			worker := fmt.Sprintf("worker-%d", i)
			got, err := env.Engine.Allocate(env.Ctx, p.ID, worker, n)
			if err != nil {
				var insufficient engine.InsufficientInventoryError
				if !errors.As(err, &insufficient) {
					t.Errorf("allocate %s: %v", worker, err)
				}
				return
			}
			results[i] = got
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	total := 0
	for _, got := range results {
		for _, a := range got {
			if seen[a.WorkUnitID] {
				t.Fatalf("work unit %s claimed twice", a.WorkUnitID)
			}
			seen[a.WorkUnitID] = true
			total++
		}
	}
	if total != n {
		t.Fatalf("expected exactly %d assignments across both calls, got %d", n, total)
	}
}

func TestSubmitCompletedFails(t *testing.T) {
	env := newTestEnv(t)
	p := seedProject(t, env, 5000, 1)
	got, err := env.Engine.Allocate(env.Ctx, p.ID, "worker-a", 1)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	lid := labelID(t, env, p.ID)
	if err := env.Engine.Submit(env.Ctx, "worker-a", got[0].ID, entries(lid, `{"box":[1,2,3,4]}`)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.Review(env.Ctx, "reviewer-1", got[0].ID, engine.ReviewDecision{Approved: true}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	err = env.Engine.Submit(env.Ctx, "worker-a", got[0].ID, entries(lid, `{"box":[5,6,7,8]}`))
	var invalid engine.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateError submitting completed assignment, got %v", err)
	}
	if err := env.Engine.SaveDraft(env.Ctx, "worker-a", got[0].ID, entries(lid, `{}`)); !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateError editing completed assignment, got %v", err)
	}
}

func TestOwnershipEnforced(t *testing.T) {
	env := newTestEnv(t)
	p := seedProject(t, env, 5000, 1)
	got, err := env.Engine.Allocate(env.Ctx, p.ID, "worker-a", 1)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	lid := labelID(t, env, p.ID)
	var unauthorized engine.UnauthorizedError
	if err := env.Engine.SaveDraft(env.Ctx, "worker-b", got[0].ID, entries(lid, `{}`)); !errors.As(err, &unauthorized) {
		t.Fatalf("expected UnauthorizedError for foreign draft save, got %v", err)
	}
	if _, err := env.Engine.GetDetail(env.Ctx, "worker-b", got[0].ID); !errors.As(err, &unauthorized) {
		t.Fatalf("expected UnauthorizedError for foreign detail read, got %v", err)
	}
}

func TestGetDetailStartsWork(t *testing.T) {
	env := newTestEnv(t)
	p := seedProject(t, env, 5000, 1)
	got, err := env.Engine.Allocate(env.Ctx, p.ID, "worker-a", 1)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	detail, err := env.Engine.GetDetail(env.Ctx, "worker-a", got[0].ID)
	if err != nil {
		t.Fatalf("get detail: %v", err)
	}
	if detail.Status != domain.AssignmentInProgress {
		t.Fatalf("expected first view to start work, got status %s", detail.Status)
	}
	stored, err := env.Engine.Repo.GetAssignment(env.Ctx, got[0].ID)
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if stored.Status != domain.AssignmentInProgress {
		t.Fatalf("expected persisted InProgress, got %s", stored.Status)
	}
}

func TestReviewValidation(t *testing.T) {
	env := newTestEnv(t)
	p := seedProject(t, env, 5000, 1)
	got, err := env.Engine.Allocate(env.Ctx, p.ID, "worker-a", 1)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	lid := labelID(t, env, p.ID)
	if err := env.Engine.Submit(env.Ctx, "worker-a", got[0].ID, entries(lid, `{"box":[1,2,3,4]}`)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	var validation engine.ValidationError
	_, err = env.Engine.Review(env.Ctx, "reviewer-1", got[0].ID, engine.ReviewDecision{Approved: false})
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for missing category, got %v", err)
	}
	if len(validation.Allowed) != len(domain.ErrorCategories) {
		t.Fatalf("expected allowed set in error, got %v", validation.Allowed)
	}
	_, err = env.Engine.Review(env.Ctx, "reviewer-1", got[0].ID, engine.ReviewDecision{Approved: false, ErrorCategory: "Blurry"})
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for unknown category, got %v", err)
	}
	_, err = env.Engine.Review(env.Ctx, "reviewer-1", got[0].ID, engine.ReviewDecision{Approved: false, ErrorCategory: domain.CategoryOther, Comment: "   "})
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for blank Other comment, got %v", err)
	}

	// failed validations must not have flipped the state or logged anything
	stored, err := env.Engine.Repo.GetAssignment(env.Ctx, got[0].ID)
	if err != nil || stored.Status != domain.AssignmentSubmitted {
		t.Fatalf("expected assignment still Submitted, got %s (%v)", stored.Status, err)
	}
	logs, err := env.Engine.Repo.ListReviewLogs(env.Ctx, got[0].ID)
	if err != nil || len(logs) != 0 {
		t.Fatalf("expected no review logs after failed validation, got %d (%v)", len(logs), err)
	}
}

func TestReviewNotSubmittedFails(t *testing.T) {
	env := newTestEnv(t)
	p := seedProject(t, env, 5000, 1)
	got, err := env.Engine.Allocate(env.Ctx, p.ID, "worker-a", 1)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	_, err = env.Engine.Review(env.Ctx, "reviewer-1", got[0].ID, engine.ReviewDecision{Approved: true})
	var invalid engine.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateError reviewing Assigned assignment, got %v", err)
	}
}

func TestApproveRejectScenario(t *testing.T) {
	env := newTestEnv(t)
	p := seedProject(t, env, 5000, 3)
	got, err := env.Engine.Allocate(env.Ctx, p.ID, "worker-a", 2)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(got))
	}
	stat, err := env.Engine.Repo.GetStat(env.Ctx, "worker-a", p.ID)
	if err != nil || stat.TotalAssigned != 2 {
		t.Fatalf("expected total_assigned 2, got %+v (%v)", stat, err)
	}

	lid := labelID(t, env, p.ID)
	if err := env.Engine.Submit(env.Ctx, "worker-a", got[0].ID, entries(lid, `{"box":[1,2,3,4]}`)); err != nil {
		t.Fatalf("submit #1: %v", err)
	}
	a1, _ := env.Engine.Repo.GetAssignment(env.Ctx, got[0].ID)
	if a1.Status != domain.AssignmentSubmitted || a1.SubmittedAt == nil {
		t.Fatalf("expected Submitted with timestamp, got %+v", a1)
	}

	log, err := env.Engine.Review(env.Ctx, "reviewer-1", got[0].ID, engine.ReviewDecision{Approved: true})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if log.Decision != domain.DecisionApprove || log.ErrorCategory != "" {
		t.Fatalf("unexpected review log %+v", log)
	}
	a1, _ = env.Engine.Repo.GetAssignment(env.Ctx, got[0].ID)
	if a1.Status != domain.AssignmentCompleted {
		t.Fatalf("expected Completed, got %s", a1.Status)
	}
	unit, _ := env.Engine.Repo.GetWorkUnit(env.Ctx, got[0].WorkUnitID)
	if unit.Status != domain.UnitDone {
		t.Fatalf("expected work unit Done, got %s", unit.Status)
	}
	stat, _ = env.Engine.Repo.GetStat(env.Ctx, "worker-a", p.ID)
	if stat.TotalAssigned != 2 || stat.TotalApproved != 1 || stat.TotalRejected != 0 {
		t.Fatalf("unexpected counters %+v", stat)
	}
	if stat.EfficiencyScore != 50 {
		t.Fatalf("expected efficiency 50, got %v", stat.EfficiencyScore)
	}
	if stat.EstimatedEarnings != 5000 {
		t.Fatalf("expected earnings 5000, got %v", stat.EstimatedEarnings)
	}

	// reject the second assignment
	if err := env.Engine.Submit(env.Ctx, "worker-a", got[1].ID, entries(lid, `{"box":[9,9,9,9]}`)); err != nil {
		t.Fatalf("submit #2: %v", err)
	}
	log, err = env.Engine.Review(env.Ctx, "reviewer-1", got[1].ID, engine.ReviewDecision{
		Approved:      false,
		ErrorCategory: domain.CategoryMissingObject,
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if log.Decision != domain.DecisionReject || log.ErrorCategory != domain.CategoryMissingObject {
		t.Fatalf("unexpected review log %+v", log)
	}
	a2, _ := env.Engine.Repo.GetAssignment(env.Ctx, got[1].ID)
	if a2.Status != domain.AssignmentRejected {
		t.Fatalf("expected Rejected, got %s", a2.Status)
	}
	unit2, _ := env.Engine.Repo.GetWorkUnit(env.Ctx, got[1].WorkUnitID)
	if unit2.Status != domain.UnitAssigned {
		t.Fatalf("rejected unit must stay Assigned, got %s", unit2.Status)
	}
	stat, _ = env.Engine.Repo.GetStat(env.Ctx, "worker-a", p.ID)
	if stat.TotalRejected != 1 {
		t.Fatalf("expected total_rejected 1, got %d", stat.TotalRejected)
	}
	if stat.EfficiencyScore != 50 {
		t.Fatalf("expected efficiency still 50, got %v", stat.EfficiencyScore)
	}
	if stat.EstimatedEarnings != 5000 {
		t.Fatalf("expected earnings unchanged at 5000, got %v", stat.EstimatedEarnings)
	}
	if stat.TotalApproved+stat.TotalRejected > stat.TotalAssigned {
		t.Fatalf("counter invariant violated: %+v", stat)
	}
}

func TestResubmissionReplacesAnnotations(t *testing.T) {
	env := newTestEnv(t)
	p := seedProject(t, env, 5000, 1)
	got, err := env.Engine.Allocate(env.Ctx, p.ID, "worker-a", 1)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	lid := labelID(t, env, p.ID)
	if err := env.Engine.Submit(env.Ctx, "worker-a", got[0].ID, entries(lid, `{"v":1}`, `{"v":2}`, `{"v":3}`)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.Review(env.Ctx, "reviewer-1", got[0].ID, engine.ReviewDecision{
		Approved: false, ErrorCategory: domain.CategoryOccluded,
	}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	// draft after rejection re-enters InProgress and discards old entries
	if err := env.Engine.SaveDraft(env.Ctx, "worker-a", got[0].ID, entries(lid, `{"v":4}`)); err != nil {
		t.Fatalf("draft: %v", err)
	}
	stored, _ := env.Engine.Repo.GetAssignment(env.Ctx, got[0].ID)
	if stored.Status != domain.AssignmentInProgress {
		t.Fatalf("expected resubmission path InProgress, got %s", stored.Status)
	}
	current, err := env.Engine.Repo.ListAnnotationEntries(env.Ctx, got[0].ID)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(current) != 1 || current[0].ValueJSON != `{"v":4}` {
		t.Fatalf("expected annotation set replaced wholesale, got %+v", current)
	}
}

func TestEarningsFollowCurrentPrice(t *testing.T) {
	env := newTestEnv(t)
	p := seedProject(t, env, 5000, 2)
	got, err := env.Engine.Allocate(env.Ctx, p.ID, "worker-a", 2)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	lid := labelID(t, env, p.ID)
	if err := env.Engine.Submit(env.Ctx, "worker-a", got[0].ID, entries(lid, `{}`)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.Review(env.Ctx, "reviewer-1", got[0].ID, engine.ReviewDecision{Approved: true}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := env.Engine.Repo.SetProjectPrice(env.Ctx, p.ID, 6000); err != nil {
		t.Fatalf("set price: %v", err)
	}
	if err := env.Engine.Submit(env.Ctx, "worker-a", got[1].ID, entries(lid, `{}`)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.Review(env.Ctx, "reviewer-1", got[1].ID, engine.ReviewDecision{Approved: true}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	stat, _ := env.Engine.Repo.GetStat(env.Ctx, "worker-a", p.ID)
	// earnings float with the current price: 2 approved x 6000
	if stat.EstimatedEarnings != 12000 {
		t.Fatalf("expected earnings 12000 at current price, got %v", stat.EstimatedEarnings)
	}
}

func TestConcurrentReviewSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	p := seedProject(t, env, 5000, 1)
	got, err := env.Engine.Allocate(env.Ctx, p.ID, "worker-a", 1)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	lid := labelID(t, env, p.ID)
	if err := env.Engine.Submit(env.Ctx, "worker-a", got[0].ID, entries(lid, `{}`)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.Review(env.Ctx, fmt.Sprintf("reviewer-%d", i), got[0].ID, engine.ReviewDecision{Approved: true})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var conflict engine.ConflictError
		var invalid engine.InvalidStateError
		if !errors.As(err, &conflict) && !errors.As(err, &invalid) {
			t.Fatalf("unexpected error kind: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one review to win, got %d", succeeded)
	}
	logs, _ := env.Engine.Repo.ListReviewLogs(env.Ctx, got[0].ID)
	if len(logs) != 1 {
		t.Fatalf("expected exactly one review log, got %d", len(logs))
	}
	stat, _ := env.Engine.Repo.GetStat(env.Ctx, "worker-a", p.ID)
	if stat.TotalApproved != 1 {
		t.Fatalf("expected total_approved 1, got %d", stat.TotalApproved)
	}
}

func TestNotFoundPropagates(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Allocate(env.Ctx, "missing-project", "worker-a", 1); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := env.Engine.GetDetail(env.Ctx, "worker-a", "missing-assignment"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWorkerViews(t *testing.T) {
	env := newTestEnv(t)
	p := seedProject(t, env, 5000, 3)
	got, err := env.Engine.Allocate(env.Ctx, p.ID, "worker-a", 3)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	lid := labelID(t, env, p.ID)
	if err := env.Engine.Submit(env.Ctx, "worker-a", got[0].ID, entries(lid, `{}`)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	projects, err := env.Engine.WorkerProjects(env.Ctx, "worker-a")
	if err != nil {
		t.Fatalf("worker projects: %v", err)
	}
	if len(projects) != 1 || projects[0].TotalUnits != 3 || projects[0].DoneUnits != 1 {
		t.Fatalf("unexpected summary %+v", projects)
	}
	if projects[0].Status != "InProgress" {
		t.Fatalf("expected project summary InProgress, got %s", projects[0].Status)
	}

	queue, err := env.Engine.ReviewQueue(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("review queue: %v", err)
	}
	if len(queue) != 1 || queue[0].AssignmentID != got[0].ID {
		t.Fatalf("unexpected queue %+v", queue)
	}
	if len(queue[0].Labels) != 2 {
		t.Fatalf("expected label taxonomy on queue item, got %d labels", len(queue[0].Labels))
	}

	stats, err := env.Engine.GetWorkerStats(env.Ctx, "worker-a")
	if err != nil {
		t.Fatalf("worker stats: %v", err)
	}
	if stats.TotalAssigned != 3 || stats.Submitted != 1 || stats.Pending != 2 {
		t.Fatalf("unexpected worker stats %+v", stats)
	}
}

func TestProjectStatistics(t *testing.T) {
	env := newTestEnv(t)
	p := seedProject(t, env, 5000, 4)
	got, err := env.Engine.Allocate(env.Ctx, p.ID, "worker-a", 2)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	lid := labelID(t, env, p.ID)
	if err := env.Engine.Submit(env.Ctx, "worker-a", got[0].ID, entries(lid, `{}`)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.Review(env.Ctx, "reviewer-1", got[0].ID, engine.ReviewDecision{Approved: true}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	stats, err := env.Engine.GetProjectStatistics(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("project statistics: %v", err)
	}
	if stats.TotalUnits != 4 || stats.NewUnits != 2 || stats.Assigned != 1 || stats.DoneUnits != 1 {
		t.Fatalf("unexpected statistics %+v", stats)
	}
	if len(stats.Workers) != 1 || stats.Workers[0].TotalApproved != 1 {
		t.Fatalf("expected one worker stat row, got %+v", stats.Workers)
	}
}

func TestAllocateAfterReviewRecomputesEfficiency(t *testing.T) {
	env := newTestEnv(t)
	p := seedProject(t, env, 5000, 4)
	got, err := env.Engine.Allocate(env.Ctx, p.ID, "worker-a", 2)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	lid := labelID(t, env, p.ID)
	if err := env.Engine.Submit(env.Ctx, "worker-a", got[0].ID, entries(lid, `{}`)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.Review(env.Ctx, "reviewer-1", got[0].ID, engine.ReviewDecision{Approved: true}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	stat, _ := env.Engine.Repo.GetStat(env.Ctx, "worker-a", p.ID)
	if stat.EfficiencyScore != 50 {
		t.Fatalf("expected efficiency 50 after 1/2 approved, got %v", stat.EfficiencyScore)
	}

	// growing the denominator dilutes efficiency immediately
	if _, err := env.Engine.Allocate(env.Ctx, p.ID, "worker-a", 2); err != nil {
		t.Fatalf("second allocate: %v", err)
	}
	stat, err = env.Engine.Repo.GetStat(env.Ctx, "worker-a", p.ID)
	if err != nil {
		t.Fatalf("get stat: %v", err)
	}
	if stat.TotalAssigned != 4 || stat.TotalApproved != 1 {
		t.Fatalf("unexpected counters %+v", stat)
	}
	if stat.EfficiencyScore != 25 {
		t.Fatalf("expected efficiency 25 after 1/4 approved, got %v", stat.EfficiencyScore)
	}
	if stat.EstimatedEarnings != 5000 {
		t.Fatalf("allocation must not change earnings, got %v", stat.EstimatedEarnings)
	}
}

func TestAllocateWithoutReviewsKeepsDefaultEfficiency(t *testing.T) {
	env := newTestEnv(t)
	p := seedProject(t, env, 5000, 4)
	if _, err := env.Engine.Allocate(env.Ctx, p.ID, "worker-a", 2); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if _, err := env.Engine.Allocate(env.Ctx, p.ID, "worker-a", 2); err != nil {
		t.Fatalf("second allocate: %v", err)
	}
	stat, err := env.Engine.Repo.GetStat(env.Ctx, "worker-a", p.ID)
	if err != nil {
		t.Fatalf("get stat: %v", err)
	}
	if stat.EfficiencyScore != 100 {
		t.Fatalf("unreviewed worker keeps the 100 default, got %v", stat.EfficiencyScore)
	}
}

func TestDraftOnSubmittedKeepsStatus(t *testing.T) {
	env := newTestEnv(t)
	p := seedProject(t, env, 5000, 1)
	got, err := env.Engine.Allocate(env.Ctx, p.ID, "worker-a", 1)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	lid := labelID(t, env, p.ID)
	if err := env.Engine.Submit(env.Ctx, "worker-a", got[0].ID, entries(lid, `{"v":1}`)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := env.Engine.SaveDraft(env.Ctx, "worker-a", got[0].ID, entries(lid, `{"v":2}`)); err != nil {
		t.Fatalf("draft after submit: %v", err)
	}
	stored, _ := env.Engine.Repo.GetAssignment(env.Ctx, got[0].ID)
	if stored.Status != domain.AssignmentSubmitted {
		t.Fatalf("draft on Submitted must not change status, got %s", stored.Status)
	}
	current, _ := env.Engine.Repo.ListAnnotationEntries(env.Ctx, got[0].ID)
	if len(current) != 1 || current[0].ValueJSON != `{"v":2}` {
		t.Fatalf("expected replaced entries, got %+v", current)
	}
}

func TestConcurrentSubmitReviewKeepsTerminalState(t *testing.T) {
	env := newTestEnv(t)
	p := seedProject(t, env, 5000, 1)
	got, err := env.Engine.Allocate(env.Ctx, p.ID, "worker-a", 1)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	lid := labelID(t, env, p.ID)
	if err := env.Engine.Submit(env.Ctx, "worker-a", got[0].ID, entries(lid, `{"v":1}`)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	var wg sync.WaitGroup
	var submitErr, reviewErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		submitErr = env.Engine.Submit(env.Ctx, "worker-a", got[0].ID, entries(lid, `{"v":2}`))
	}()
	go func() {
		defer wg.Done()
		_, reviewErr = env.Engine.Review(env.Ctx, "reviewer-1", got[0].ID, engine.ReviewDecision{Approved: true})
	}()
	wg.Wait()

	stored, err := env.Engine.Repo.GetAssignment(env.Ctx, got[0].ID)
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	stat, err := env.Engine.Repo.GetStat(env.Ctx, "worker-a", p.ID)
	if err != nil {
		t.Fatalf("get stat: %v", err)
	}
	// after an approval wins, the assignment stays Completed no matter how
	// the resubmit interleaved
	if reviewErr == nil {
		if stored.Status != domain.AssignmentCompleted {
			t.Fatalf("approved assignment was reopened to %s", stored.Status)
		}
		if stat.TotalApproved != 1 {
			t.Fatalf("expected a single approval, got %+v", stat)
		}
	} else {
		var conflict engine.ConflictError
		var invalid engine.InvalidStateError
		if !errors.As(reviewErr, &conflict) && !errors.As(reviewErr, &invalid) {
			t.Fatalf("unexpected review error kind: %v", reviewErr)
		}
		if stored.Status != domain.AssignmentSubmitted {
			t.Fatalf("expected Submitted when the resubmit won, got %s", stored.Status)
		}
	}
	if submitErr != nil {
		var conflict engine.ConflictError
		var invalid engine.InvalidStateError
		if !errors.As(submitErr, &conflict) && !errors.As(submitErr, &invalid) {
			t.Fatalf("unexpected submit error kind: %v", submitErr)
		}
	}
	if stat.TotalApproved+stat.TotalRejected > stat.TotalAssigned {
		t.Fatalf("review counters exceed assigned: %+v", stat)
	}
}
