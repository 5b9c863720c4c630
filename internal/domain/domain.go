package domain

// Work unit lifecycle. A unit is created New at import, claimed by the
// allocation pool, and marked Done when its assignment is approved.
const (
	UnitNew      = "New"
	UnitAssigned = "Assigned"
	UnitDone     = "Done"
)

// Assignment lifecycle.
const (
	AssignmentAssigned   = "Assigned"
	AssignmentInProgress = "InProgress"
	AssignmentSubmitted  = "Submitted"
	AssignmentRejected   = "Rejected"
	AssignmentCompleted  = "Completed"
)

// Review decisions recorded in the review log.
const (
	DecisionApprove = "Approve"
	DecisionReject  = "Reject"
)

type Project struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	PricePerLabel float64 `json:"price_per_label"`
	Deadline      *string `json:"deadline,omitempty" format:"date-time"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

type LabelClass struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	Guideline string `json:"guideline,omitempty"`
}

type WorkUnit struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	StorageRef string `json:"storage_ref"`
	Status     string `json:"status" enum:"New,Assigned,Done"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Assignment struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	WorkUnitID  string  `json:"work_unit_id"`
	WorkerID    string  `json:"worker_id"`
	Status      string  `json:"status" enum:"Assigned,InProgress,Submitted,Rejected,Completed"`
	AssignedAt  string  `json:"assigned_at" format:"date-time"`
	SubmittedAt *string `json:"submitted_at,omitempty" format:"date-time"`
}

// AnnotationEntry is one labeled value inside an assignment's annotation set.
// The set is replaced wholesale on every draft save or submit.
type AnnotationEntry struct {
	ID           string `json:"id"`
	AssignmentID string `json:"assignment_id"`
	LabelClassID string `json:"label_class_id"`
	ValueJSON    string `json:"value_json"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

// ReviewLog is an append-only audit record of one review decision.
type ReviewLog struct {
	ID            string `json:"id"`
	AssignmentID  string `json:"assignment_id"`
	ReviewerID    string `json:"reviewer_id"`
	Decision      string `json:"decision" enum:"Approve,Reject"`
	Comment       string `json:"comment,omitempty"`
	ErrorCategory string `json:"error_category,omitempty"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

// PerformanceStat is the rolling per-worker-per-project aggregate. Exactly one
// row exists per (WorkerID, ProjectID); it is created lazily by upsert.
type PerformanceStat struct {
	WorkerID          string  `json:"worker_id"`
	ProjectID         string  `json:"project_id"`
	TotalAssigned     int     `json:"total_assigned"`
	TotalApproved     int     `json:"total_approved"`
	TotalRejected     int     `json:"total_rejected"`
	EfficiencyScore   float64 `json:"efficiency_score"`
	EstimatedEarnings float64 `json:"estimated_earnings"`
	UpdatedAt         string  `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Roles     string `json:"roles,omitempty"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
