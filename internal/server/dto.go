package server

import (
	"encoding/json"

	"labelline/internal/domain"
	"labelline/internal/engine"
)

// Request payloads

type LabelClassRequest struct {
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	Guideline string `json:"guideline,omitempty"`
}

type CreateProjectRequest struct {
	ID            *string             `json:"id,omitempty"`
	Name          string              `json:"name"`
	Description   *string             `json:"description,omitempty"`
	PricePerLabel float64             `json:"price_per_label"`
	Deadline      *string             `json:"deadline,omitempty" format:"date-time"`
	LabelClasses  []LabelClassRequest `json:"label_classes,omitempty"`
}

type ImportUnitsRequest struct {
	StorageRefs []string `json:"storage_refs"`
}

type AllocateRequest struct {
	WorkerID string `json:"worker_id,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
}

type AnnotationEntryRequest struct {
	LabelClassID string          `json:"label_class_id"`
	Value        json.RawMessage `json:"value"`
}

type AnnotationSetRequest struct {
	Entries []AnnotationEntryRequest `json:"entries"`
}

type ReviewRequest struct {
	Approved      bool   `json:"approved"`
	ErrorCategory string `json:"error_category,omitempty"`
	Comment       string `json:"comment,omitempty"`
}

// Response payloads

type LabelClassResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	Guideline string `json:"guideline,omitempty"`
}

type ProjectResponse struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Description   string               `json:"description,omitempty"`
	PricePerLabel float64              `json:"price_per_label"`
	Deadline      *string              `json:"deadline,omitempty" format:"date-time"`
	LabelClasses  []LabelClassResponse `json:"label_classes,omitempty"`
	CreatedAt     string               `json:"created_at" format:"date-time"`
}

type WorkUnitResponse struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	StorageRef string `json:"storage_ref"`
	Status     string `json:"status" enum:"New,Assigned,Done"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type AssignmentResponse struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	WorkUnitID  string  `json:"work_unit_id"`
	WorkerID    string  `json:"worker_id"`
	Status      string  `json:"status" enum:"Assigned,InProgress,Submitted,Rejected,Completed"`
	AssignedAt  string  `json:"assigned_at" format:"date-time"`
	SubmittedAt *string `json:"submitted_at,omitempty" format:"date-time"`
}

type AnnotationEntryResponse struct {
	ID           string          `json:"id"`
	LabelClassID string          `json:"label_class_id"`
	Value        json.RawMessage `json:"value"`
	CreatedAt    string          `json:"created_at" format:"date-time"`
}

type AssignmentDetailResponse struct {
	ID           string                    `json:"id"`
	ProjectID    string                    `json:"project_id"`
	WorkUnitID   string                    `json:"work_unit_id"`
	StorageRef   string                    `json:"storage_ref"`
	Status       string                    `json:"status" enum:"Assigned,InProgress,Submitted,Rejected,Completed"`
	Entries      []AnnotationEntryResponse `json:"entries"`
	AssignedAt   string                    `json:"assigned_at" format:"date-time"`
	SubmittedAt  *string                   `json:"submitted_at,omitempty" format:"date-time"`
	Deadline     *string                   `json:"deadline,omitempty" format:"date-time"`
	RejectReason string                    `json:"reject_reason,omitempty"`
}

type ReviewLogResponse struct {
	ID            string `json:"id"`
	AssignmentID  string `json:"assignment_id"`
	ReviewerID    string `json:"reviewer_id"`
	Decision      string `json:"decision" enum:"Approve,Reject"`
	Comment       string `json:"comment,omitempty"`
	ErrorCategory string `json:"error_category,omitempty"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type ReviewItemResponse struct {
	AssignmentID string                    `json:"assignment_id"`
	WorkUnitID   string                    `json:"work_unit_id"`
	StorageRef   string                    `json:"storage_ref"`
	ProjectName  string                    `json:"project_name"`
	Status       string                    `json:"status"`
	Labels       []LabelClassResponse      `json:"labels"`
	Entries      []AnnotationEntryResponse `json:"entries"`
}

type WorkerProjectResponse struct {
	ProjectID    string  `json:"project_id"`
	ProjectName  string  `json:"project_name"`
	Description  string  `json:"description,omitempty"`
	ThumbnailRef string  `json:"thumbnail_ref,omitempty"`
	AssignedAt   string  `json:"assigned_at" format:"date-time"`
	Deadline     *string `json:"deadline,omitempty" format:"date-time"`
	TotalUnits   int     `json:"total_units"`
	DoneUnits    int     `json:"done_units"`
	Status       string  `json:"status" enum:"Assigned,InProgress,Completed"`
}

type WorkerStatsResponse struct {
	TotalAssigned int `json:"total_assigned"`
	Pending       int `json:"pending"`
	Submitted     int `json:"submitted"`
	Rejected      int `json:"rejected"`
	Completed     int `json:"completed"`
}

type PerformanceStatResponse struct {
	WorkerID          string  `json:"worker_id"`
	ProjectID         string  `json:"project_id"`
	TotalAssigned     int     `json:"total_assigned"`
	TotalApproved     int     `json:"total_approved"`
	TotalRejected     int     `json:"total_rejected"`
	EfficiencyScore   float64 `json:"efficiency_score"`
	EstimatedEarnings float64 `json:"estimated_earnings"`
	UpdatedAt         string  `json:"updated_at" format:"date-time"`
}

type ProjectStatisticsResponse struct {
	ProjectID   string                    `json:"project_id"`
	ProjectName string                    `json:"project_name"`
	TotalUnits  int                       `json:"total_units"`
	NewUnits    int                       `json:"new_units"`
	Assigned    int                       `json:"assigned"`
	DoneUnits   int                       `json:"done_units"`
	Workers     []PerformanceStatResponse `json:"workers"`
}

// Converters

func labelClassResponse(lc domain.LabelClass) LabelClassResponse {
	return LabelClassResponse{ID: lc.ID, Name: lc.Name, Color: lc.Color, Guideline: lc.Guideline}
}

func mapLabelClasses(items []domain.LabelClass) []LabelClassResponse {
	res := make([]LabelClassResponse, 0, len(items))
	for _, lc := range items {
		res = append(res, labelClassResponse(lc))
	}
	return res
}

func projectResponse(p domain.Project, labels []domain.LabelClass) ProjectResponse {
	return ProjectResponse{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		PricePerLabel: p.PricePerLabel,
		Deadline:      p.Deadline,
		LabelClasses:  mapLabelClasses(labels),
		CreatedAt:     p.CreatedAt,
	}
}

func workUnitResponse(u domain.WorkUnit) WorkUnitResponse {
	return WorkUnitResponse(u)
}

func mapWorkUnits(items []domain.WorkUnit) []WorkUnitResponse {
	res := make([]WorkUnitResponse, 0, len(items))
	for _, u := range items {
		res = append(res, workUnitResponse(u))
	}
	return res
}

func assignmentResponse(a domain.Assignment) AssignmentResponse {
	return AssignmentResponse(a)
}

func mapAssignments(items []domain.Assignment) []AssignmentResponse {
	res := make([]AssignmentResponse, 0, len(items))
	for _, a := range items {
		res = append(res, assignmentResponse(a))
	}
	return res
}

func entryResponse(e domain.AnnotationEntry) AnnotationEntryResponse {
	return AnnotationEntryResponse{
		ID:           e.ID,
		LabelClassID: e.LabelClassID,
		Value:        json.RawMessage(e.ValueJSON),
		CreatedAt:    e.CreatedAt,
	}
}

func mapEntries(items []domain.AnnotationEntry) []AnnotationEntryResponse {
	res := make([]AnnotationEntryResponse, 0, len(items))
	for _, e := range items {
		res = append(res, entryResponse(e))
	}
	return res
}

func detailResponse(d engine.AssignmentDetail) AssignmentDetailResponse {
	return AssignmentDetailResponse{
		ID:           d.ID,
		ProjectID:    d.ProjectID,
		WorkUnitID:   d.WorkUnitID,
		StorageRef:   d.StorageRef,
		Status:       d.Status,
		Entries:      mapEntries(d.Entries),
		AssignedAt:   d.AssignedAt,
		SubmittedAt:  d.SubmittedAt,
		Deadline:     d.Deadline,
		RejectReason: d.RejectReason,
	}
}

func mapDetails(items []engine.AssignmentDetail) []AssignmentDetailResponse {
	res := make([]AssignmentDetailResponse, 0, len(items))
	for _, d := range items {
		res = append(res, detailResponse(d))
	}
	return res
}

func reviewLogResponse(l domain.ReviewLog) ReviewLogResponse {
	return ReviewLogResponse(l)
}

func reviewItemResponse(item engine.ReviewItem) ReviewItemResponse {
	return ReviewItemResponse{
		AssignmentID: item.AssignmentID,
		WorkUnitID:   item.WorkUnitID,
		StorageRef:   item.StorageRef,
		ProjectName:  item.ProjectName,
		Status:       item.Status,
		Labels:       mapLabelClasses(item.Labels),
		Entries:      mapEntries(item.Entries),
	}
}

func mapReviewItems(items []engine.ReviewItem) []ReviewItemResponse {
	res := make([]ReviewItemResponse, 0, len(items))
	for _, item := range items {
		res = append(res, reviewItemResponse(item))
	}
	return res
}

func workerProjectResponse(s engine.WorkerProjectSummary) WorkerProjectResponse {
	return WorkerProjectResponse(s)
}

func mapWorkerProjects(items []engine.WorkerProjectSummary) []WorkerProjectResponse {
	res := make([]WorkerProjectResponse, 0, len(items))
	for _, s := range items {
		res = append(res, workerProjectResponse(s))
	}
	return res
}

func statResponse(s domain.PerformanceStat) PerformanceStatResponse {
	return PerformanceStatResponse(s)
}

func mapStats(items []domain.PerformanceStat) []PerformanceStatResponse {
	res := make([]PerformanceStatResponse, 0, len(items))
	for _, s := range items {
		res = append(res, statResponse(s))
	}
	return res
}

func statisticsResponse(s engine.ProjectStatistics) ProjectStatisticsResponse {
	return ProjectStatisticsResponse{
		ProjectID:   s.ProjectID,
		ProjectName: s.ProjectName,
		TotalUnits:  s.TotalUnits,
		NewUnits:    s.NewUnits,
		Assigned:    s.Assigned,
		DoneUnits:   s.DoneUnits,
		Workers:     mapStats(s.Workers),
	}
}

func annotationInputs(req AnnotationSetRequest) []engine.AnnotationInput {
	res := make([]engine.AnnotationInput, 0, len(req.Entries))
	for _, e := range req.Entries {
		res = append(res, engine.AnnotationInput{
			LabelClassID: e.LabelClassID,
			ValueJSON:    string(e.Value),
		})
	}
	return res
}
