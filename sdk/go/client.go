package labellinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Labelline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	PricePerLabel float64      `json:"price_per_label"`
	Deadline      *string      `json:"deadline,omitempty"`
	LabelClasses  []LabelClass `json:"label_classes,omitempty"`
	CreatedAt     string       `json:"created_at"`
}

// LabelClass is one entry of a project's label taxonomy.
type LabelClass struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	Guideline string `json:"guideline,omitempty"`
}

// Assignment represents one work unit handed to a worker.
type Assignment struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	WorkUnitID  string  `json:"work_unit_id"`
	WorkerID    string  `json:"worker_id"`
	Status      string  `json:"status"`
	AssignedAt  string  `json:"assigned_at"`
	SubmittedAt *string `json:"submitted_at,omitempty"`
}

// AnnotationEntry is one labeled value in an assignment's annotation set.
type AnnotationEntry struct {
	LabelClassID string          `json:"label_class_id"`
	Value        json.RawMessage `json:"value"`
}

// AssignmentDetail is the full worker-facing view of an assignment.
type AssignmentDetail struct {
	ID           string            `json:"id"`
	ProjectID    string            `json:"project_id"`
	WorkUnitID   string            `json:"work_unit_id"`
	StorageRef   string            `json:"storage_ref"`
	Status       string            `json:"status"`
	Entries      []AnnotationEntry `json:"entries"`
	AssignedAt   string            `json:"assigned_at"`
	SubmittedAt  *string           `json:"submitted_at,omitempty"`
	Deadline     *string           `json:"deadline,omitempty"`
	RejectReason string            `json:"reject_reason,omitempty"`
}

// ReviewLog is one recorded review decision.
type ReviewLog struct {
	ID            string `json:"id"`
	AssignmentID  string `json:"assignment_id"`
	ReviewerID    string `json:"reviewer_id"`
	Decision      string `json:"decision"`
	Comment       string `json:"comment,omitempty"`
	ErrorCategory string `json:"error_category,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// PerformanceStat is a worker's aggregate in one project.
type PerformanceStat struct {
	WorkerID          string  `json:"worker_id"`
	ProjectID         string  `json:"project_id"`
	TotalAssigned     int     `json:"total_assigned"`
	TotalApproved     int     `json:"total_approved"`
	TotalRejected     int     `json:"total_rejected"`
	EfficiencyScore   float64 `json:"efficiency_score"`
	EstimatedEarnings float64 `json:"estimated_earnings"`
	UpdatedAt         string  `json:"updated_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project with its label taxonomy.
func (c *Client) CreateProject(ctx context.Context, name string, pricePerLabel float64, labels []LabelClass) (Project, error) {
	classes := make([]map[string]any, 0, len(labels))
	for _, lc := range labels {
		classes = append(classes, map[string]any{
			"name":      lc.Name,
			"color":     lc.Color,
			"guideline": lc.Guideline,
		})
	}
	body := map[string]any{
		"name":            name,
		"price_per_label": pricePerLabel,
		"label_classes":   classes,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v1/projects", body, &resp)
	return resp, err
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, projectID string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "v1/projects/"+url.PathEscape(projectID), nil, &resp)
	return resp, err
}

// ImportUnits adds work units to a project's allocation pool.
func (c *Client) ImportUnits(ctx context.Context, projectID string, storageRefs []string) error {
	body := map[string]any{"storage_refs": storageRefs}
	endpoint := fmt.Sprintf("v1/projects/%s/units/import", url.PathEscape(projectID))
	return c.do(ctx, http.MethodPost, endpoint, body, nil)
}

// Allocate requests a batch of assignments for the authenticated worker.
func (c *Client) Allocate(ctx context.Context, projectID string, quantity int) ([]Assignment, error) {
	body := map[string]any{"quantity": quantity}
	var resp []Assignment
	endpoint := fmt.Sprintf("v1/projects/%s/allocations", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// GetAssignment fetches an assignment's detail. The first view of an
// Assigned assignment transitions it to InProgress server-side.
func (c *Client) GetAssignment(ctx context.Context, assignmentID string) (AssignmentDetail, error) {
	var resp AssignmentDetail
	err := c.do(ctx, http.MethodGet, "v1/assignments/"+url.PathEscape(assignmentID), nil, &resp)
	return resp, err
}

// SaveDraft replaces the assignment's annotation set without submitting.
func (c *Client) SaveDraft(ctx context.Context, assignmentID string, entries []AnnotationEntry) (AssignmentDetail, error) {
	var resp AssignmentDetail
	endpoint := fmt.Sprintf("v1/assignments/%s/draft", url.PathEscape(assignmentID))
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"entries": entries}, &resp)
	return resp, err
}

// Submit replaces the annotation set and hands the assignment to review.
func (c *Client) Submit(ctx context.Context, assignmentID string, entries []AnnotationEntry) (Assignment, error) {
	var resp Assignment
	endpoint := fmt.Sprintf("v1/assignments/%s/submit", url.PathEscape(assignmentID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"entries": entries}, &resp)
	return resp, err
}

// Approve approves a submitted assignment.
func (c *Client) Approve(ctx context.Context, assignmentID string) (ReviewLog, error) {
	var resp ReviewLog
	endpoint := fmt.Sprintf("v1/assignments/%s/review", url.PathEscape(assignmentID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"approved": true}, &resp)
	return resp, err
}

// Reject rejects a submitted assignment with an error category.
func (c *Client) Reject(ctx context.Context, assignmentID, category, comment string) (ReviewLog, error) {
	body := map[string]any{
		"approved":       false,
		"error_category": category,
		"comment":        comment,
	}
	var resp ReviewLog
	endpoint := fmt.Sprintf("v1/assignments/%s/review", url.PathEscape(assignmentID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Performance returns a worker's stat row in a project. An empty workerID
// means the authenticated actor.
func (c *Client) Performance(ctx context.Context, projectID, workerID string) (PerformanceStat, error) {
	endpoint := fmt.Sprintf("v1/projects/%s/performance", url.PathEscape(projectID))
	if workerID != "" {
		endpoint += "?worker_id=" + url.QueryEscape(workerID)
	}
	var resp PerformanceStat
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ErrorCategories returns the allowed rejection categories.
func (c *Client) ErrorCategories(ctx context.Context) ([]string, error) {
	var resp []string
	err := c.do(ctx, http.MethodGet, "v1/review/error-categories", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
