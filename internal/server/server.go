package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"labelline/internal/domain"
	"labelline/internal/engine"
	"labelline/internal/engine/auth"
	"labelline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_state"`
	Message string         `json:"message" example:"cannot submit a Completed assignment"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"status\":\"Completed\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Labelline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope above.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Labelline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerProjects(group, cfg.Engine)
	registerUnits(group, cfg.Engine)
	registerAllocations(group, cfg.Engine)
	registerAssignments(group, cfg.Engine)
	registerReview(group, cfg.Engine)
	registerWorkers(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"role": fe.Role})
	}
	var ue engine.UnauthorizedError
	if errors.As(err, &ue) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"assignment_id": ue.AssignmentID})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var ise engine.InvalidStateError
	if errors.As(err, &ise) {
		return newAPIError(http.StatusConflict, "invalid_state", err.Error(), map[string]any{"status": ise.Status})
	}
	var ce engine.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), map[string]any{"assignment_id": ce.AssignmentID})
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		var details map[string]any
		if len(ve.Allowed) > 0 {
			details = map[string]any{"allowed": ve.Allowed}
		}
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), details)
	}
	var ie engine.InsufficientInventoryError
	if errors.As(err, &ie) {
		return newAPIError(http.StatusUnprocessableEntity, "insufficient_inventory", err.Error(), map[string]any{"project_id": ie.ProjectID})
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var doc []byte
	docPath := path.Join(basePath, "openapi.json")
	r.Get(docPath, func(w http.ResponseWriter, r *http.Request) {
		if doc == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			doc, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Labelline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		principal, authErr := requireRole(ctx, auth.RoleManager)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.ProjectCreateOptions{
			Name:          input.Body.Name,
			Description:   stringOrEmpty(input.Body.Description),
			PricePerLabel: input.Body.PricePerLabel,
			Deadline:      stringOrEmpty(input.Body.Deadline),
			ActorID:       principal.ActorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		for _, lc := range input.Body.LabelClasses {
			opts.LabelClasses = append(opts.LabelClasses, engine.LabelClassInput{
				Name:      lc.Name,
				Color:     lc.Color,
				Guideline: lc.Guideline,
			})
		}
		p, err := e.CreateProject(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		labels, err := e.Repo.ListLabelClasses(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p, labels)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]ProjectResponse, 0, len(items))
		for _, p := range items {
			labels, err := e.Repo.ListLabelClasses(ctx, p.ID)
			if err != nil {
				return nil, handleError(err)
			}
			res = append(res, projectResponse(p, labels))
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		labels, err := e.Repo.ListLabelClasses(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p, labels)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-statistics",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/statistics",
		Summary:     "Project progress and per-worker statistics",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectStatisticsResponse `json:"body"`
	}, error) {
		if _, authErr := requireRole(ctx, auth.RoleManager); authErr != nil {
			return nil, authErr
		}
		stats, err := e.GetProjectStatistics(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectStatisticsResponse `json:"body"`
		}{Body: statisticsResponse(stats)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-performance",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/performance",
		Summary:     "Per-worker performance in a project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		WorkerID  string `query:"worker_id"`
	}) (*struct {
		Body PerformanceStatResponse `json:"body"`
	}, error) {
		principal, ok := principalFromContext(ctx)
		if !ok || principal.ActorID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		workerID := input.WorkerID
		if workerID == "" {
			workerID = principal.ActorID
		}
		// Workers may read their own numbers; anyone else's require manager.
		if workerID != principal.ActorID {
			if err := auth.RequireRole(principal.Roles, auth.RoleManager); err != nil {
				return nil, handleError(err)
			}
		}
		stat, err := e.Repo.GetStat(ctx, workerID, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PerformanceStatResponse `json:"body"`
		}{Body: statResponse(stat)}, nil
	})
}

func registerUnits(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "import-units",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/units/import",
		Summary:       "Import work units into the allocation pool",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		Body      ImportUnitsRequest `json:"body"`
	}) (*struct {
		Body []WorkUnitResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if len(input.Body.StorageRefs) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "storage_refs is required", nil)
		}
		principal, authErr := requireRole(ctx, auth.RoleManager)
		if authErr != nil {
			return nil, authErr
		}
		units, err := e.ImportWorkUnits(ctx, input.ProjectID, input.Body.StorageRefs, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []WorkUnitResponse `json:"body"`
		}{Body: mapWorkUnits(units)}, nil
	})
}

func registerAllocations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "allocate",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/allocations",
		Summary:       "Allocate work units to a worker",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string          `path:"project_id"`
		Body      AllocateRequest `json:"body"`
	}) (*struct {
		Body []AssignmentResponse `json:"body"`
	}, error) {
		principal, ok := principalFromContext(ctx)
		if !ok || principal.ActorID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		workerID := input.Body.WorkerID
		if workerID == "" {
			workerID = principal.ActorID
		}
		// Workers request batches for themselves; allocating to someone else
		// is a manager action.
		if workerID != principal.ActorID {
			if err := auth.RequireRole(principal.Roles, auth.RoleManager); err != nil {
				return nil, handleError(err)
			}
		}
		quantity := input.Body.Quantity
		if e.Config != nil {
			if quantity <= 0 {
				quantity = e.Config.Allocation.DefaultQuantity
			}
			if max := e.Config.Allocation.MaxQuantity; max > 0 && quantity > max {
				quantity = max
			}
		}
		if quantity <= 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "quantity is required", nil)
		}
		assignments, err := e.Allocate(ctx, input.ProjectID, workerID, quantity)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AssignmentResponse `json:"body"`
		}{Body: mapAssignments(assignments)}, nil
	})
}

func registerAssignments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-assignment",
		Method:      http.MethodGet,
		Path:        "/assignments/{id}",
		Summary:     "Assignment detail (first view starts work)",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body AssignmentDetailResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		detail, err := e.GetDetail(ctx, actorID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignmentDetailResponse `json:"body"`
		}{Body: detailResponse(detail)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-draft",
		Method:      http.MethodPut,
		Path:        "/assignments/{id}/draft",
		Summary:     "Replace the assignment's annotation set",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body AnnotationSetRequest `json:"body"`
	}) (*struct {
		Body AssignmentDetailResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SaveDraft(ctx, actorID, input.ID, annotationInputs(input.Body)); err != nil {
			return nil, handleError(err)
		}
		detail, err := e.GetDetail(ctx, actorID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignmentDetailResponse `json:"body"`
		}{Body: detailResponse(detail)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-assignment",
		Method:      http.MethodPost,
		Path:        "/assignments/{id}/submit",
		Summary:     "Submit the assignment for review",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body AnnotationSetRequest `json:"body"`
	}) (*struct {
		Body AssignmentResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Submit(ctx, actorID, input.ID, annotationInputs(input.Body)); err != nil {
			return nil, handleError(err)
		}
		a, err := e.Repo.GetAssignment(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignmentResponse `json:"body"`
		}{Body: assignmentResponse(a)}, nil
	})
}

func registerReview(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "review-assignment",
		Method:      http.MethodPost,
		Path:        "/assignments/{id}/review",
		Summary:     "Approve or reject a submitted assignment",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body ReviewRequest `json:"body"`
	}) (*struct {
		Body ReviewLogResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := requireRole(ctx, auth.RoleReviewer)
		if authErr != nil {
			return nil, authErr
		}
		log, err := e.Review(ctx, principal.ActorID, input.ID, engine.ReviewDecision{
			Approved:      input.Body.Approved,
			ErrorCategory: input.Body.ErrorCategory,
			Comment:       input.Body.Comment,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReviewLogResponse `json:"body"`
		}{Body: reviewLogResponse(log)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-queue",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/review-queue",
		Summary:     "Submitted assignments awaiting review",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []ReviewItemResponse `json:"body"`
	}, error) {
		if _, authErr := requireRole(ctx, auth.RoleReviewer); authErr != nil {
			return nil, authErr
		}
		items, err := e.ReviewQueue(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ReviewItemResponse `json:"body"`
		}{Body: mapReviewItems(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "error-categories",
		Method:      http.MethodGet,
		Path:        "/review/error-categories",
		Summary:     "Allowed rejection error categories",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []string `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: domain.ErrorCategories}, nil
	})
}

func registerWorkers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "my-projects",
		Method:      http.MethodGet,
		Path:        "/workers/me/projects",
		Summary:     "Projects the caller holds assignments in",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []WorkerProjectResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.WorkerProjects(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []WorkerProjectResponse `json:"body"`
		}{Body: mapWorkerProjects(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-assignments",
		Method:      http.MethodGet,
		Path:        "/workers/me/assignments",
		Summary:     "The caller's assignments in a project",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
	}) (*struct {
		Body []AssignmentDetailResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.ProjectID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "project_id is required", nil)
		}
		items, err := e.WorkerAssignments(ctx, actorID, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AssignmentDetailResponse `json:"body"`
		}{Body: mapDetails(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-stats",
		Method:      http.MethodGet,
		Path:        "/workers/me/stats",
		Summary:     "The caller's assignment counts by state",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WorkerStatsResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		stats, err := e.GetWorkerStats(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkerStatsResponse `json:"body"`
		}{Body: WorkerStatsResponse(stats)}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
