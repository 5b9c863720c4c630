package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"labelline/internal/config"
	"labelline/internal/db"
	"labelline/internal/domain"
	"labelline/internal/engine"
	"labelline/internal/engine/auth"
	"labelline/internal/migrate"
	"labelline/internal/repo"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth: AuthConfig{
			JWTSecret:              testJWTSecret,
			AllowLegacyActorHeader: true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func signToken(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   subject,
		"roles": roles,
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createTestProject(t *testing.T, srv *testServer, manager map[string]string, units []string) ProjectResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"name":            "Street Scenes",
		"price_per_label": 5000,
		"label_classes": []map[string]any{
			{"name": "car", "color": "#ff0000"},
			{"name": "pedestrian", "color": "#00ff00"},
		},
	}, manager)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}
	var project ProjectResponse
	if err := json.Unmarshal(data, &project); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	if len(units) > 0 {
		res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+project.ID+"/units/import", map[string]any{
			"storage_refs": units,
		}, manager)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("import units: %d %s", res.StatusCode, string(data))
		}
	}
	return project
}

func TestWorkflowEndToEnd(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	manager := bearer(signToken(t, "manager-1", auth.RoleManager))
	worker := bearer(signToken(t, "worker-a", auth.RoleWorker))
	reviewer := bearer(signToken(t, "reviewer-1", auth.RoleReviewer))

	project := createTestProject(t, srv, manager, []string{
		"s3://bucket/img-001.jpg",
		"s3://bucket/img-002.jpg",
	})
	if len(project.LabelClasses) != 2 {
		t.Fatalf("expected taxonomy on project, got %+v", project.LabelClasses)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+project.ID+"/allocations", map[string]any{
		"quantity": 2,
	}, worker)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("allocate: %d %s", res.StatusCode, string(data))
	}
	var assignments []AssignmentResponse
	if err := json.Unmarshal(data, &assignments); err != nil {
		t.Fatalf("unmarshal assignments: %v", err)
	}
	if len(assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(assignments))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/assignments/"+assignments[0].ID, nil, worker)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get detail: %d %s", res.StatusCode, string(data))
	}
	var detail AssignmentDetailResponse
	_ = json.Unmarshal(data, &detail)
	if detail.Status != "InProgress" {
		t.Fatalf("expected first view to start work, got %s", detail.Status)
	}

	annotations := map[string]any{
		"entries": []map[string]any{
			{"label_class_id": project.LabelClasses[0].ID, "value": map[string]any{"box": []int{1, 2, 3, 4}}},
		},
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/assignments/"+assignments[0].ID+"/draft", annotations, worker)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("save draft: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments/"+assignments[0].ID+"/submit", annotations, worker)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+project.ID+"/review-queue", nil, reviewer)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("review queue: %d %s", res.StatusCode, string(data))
	}
	var queue []ReviewItemResponse
	_ = json.Unmarshal(data, &queue)
	if len(queue) != 1 || queue[0].AssignmentID != assignments[0].ID {
		t.Fatalf("unexpected queue: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments/"+assignments[0].ID+"/review", map[string]any{
		"approved": true,
	}, reviewer)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("review: %d %s", res.StatusCode, string(data))
	}
	var log ReviewLogResponse
	_ = json.Unmarshal(data, &log)
	if log.Decision != "Approve" {
		t.Fatalf("expected Approve decision, got %s", log.Decision)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+project.ID+"/statistics", nil, manager)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("statistics: %d %s", res.StatusCode, string(data))
	}
	var stats ProjectStatisticsResponse
	_ = json.Unmarshal(data, &stats)
	if stats.TotalUnits != 2 || stats.DoneUnits != 1 {
		t.Fatalf("unexpected statistics: %s", string(data))
	}
	if len(stats.Workers) != 1 || stats.Workers[0].EfficiencyScore != 50 {
		t.Fatalf("unexpected worker stats: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/workers/me/stats", nil, worker)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("worker stats: %d %s", res.StatusCode, string(data))
	}
	var ws WorkerStatsResponse
	_ = json.Unmarshal(data, &ws)
	if ws.TotalAssigned != 2 || ws.Completed != 1 {
		t.Fatalf("unexpected worker stats: %s", string(data))
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health must not require auth, got %d", res.StatusCode)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects", nil, bearer("garbage"))
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d %s", res.StatusCode, string(data))
	}
}

func TestRoleEnforcement(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	manager := bearer(signToken(t, "manager-1", auth.RoleManager))
	worker := bearer(signToken(t, "worker-a", auth.RoleWorker))

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"name":            "Forbidden",
		"price_per_label": 1,
	}, worker)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for worker creating project, got %d %s", res.StatusCode, string(data))
	}

	project := createTestProject(t, srv, manager, []string{"s3://bucket/img-001.jpg"})
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+project.ID+"/allocations", map[string]any{
		"quantity": 1,
	}, worker)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("allocate: %d %s", res.StatusCode, string(data))
	}
	var assignments []AssignmentResponse
	_ = json.Unmarshal(data, &assignments)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments/"+assignments[0].ID+"/submit", map[string]any{
		"entries": []map[string]any{},
	}, worker)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments/"+assignments[0].ID+"/review", map[string]any{
		"approved": true,
	}, worker)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for worker reviewing, got %d %s", res.StatusCode, string(data))
	}
}

func TestErrorMapping(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	manager := bearer(signToken(t, "manager-1", auth.RoleManager))
	worker := bearer(signToken(t, "worker-a", auth.RoleWorker))
	intruder := bearer(signToken(t, "worker-b", auth.RoleWorker))
	reviewer := bearer(signToken(t, "reviewer-1", auth.RoleReviewer))

	project := createTestProject(t, srv, manager, nil)

	// empty pool
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+project.ID+"/allocations", map[string]any{
		"quantity": 1,
	}, worker)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty pool, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Code != "insufficient_inventory" {
		t.Fatalf("expected insufficient_inventory, got %s", envelope.Error.Code)
	}

	// missing assignment
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/assignments/nope", nil, worker)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}

	// seed one unit and allocate
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+project.ID+"/units/import", map[string]any{
		"storage_refs": []string{"s3://bucket/img-001.jpg"},
	}, manager)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("import units: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+project.ID+"/allocations", map[string]any{
		"quantity": 1,
	}, worker)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("allocate: %d %s", res.StatusCode, string(data))
	}
	var assignments []AssignmentResponse
	_ = json.Unmarshal(data, &assignments)
	assignmentID := assignments[0].ID

	// foreign worker touching the assignment
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/assignments/"+assignmentID, nil, intruder)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign worker, got %d %s", res.StatusCode, string(data))
	}

	// review before submission
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments/"+assignmentID+"/review", map[string]any{
		"approved": true,
	}, reviewer)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 reviewing unsubmitted, got %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Code != "invalid_state" {
		t.Fatalf("expected invalid_state, got %s", envelope.Error.Code)
	}

	// reject without category
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments/"+assignmentID+"/submit", map[string]any{
		"entries": []map[string]any{},
	}, worker)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments/"+assignmentID+"/review", map[string]any{
		"approved": false,
	}, reviewer)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 rejecting without category, got %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Code != "validation_failed" {
		t.Fatalf("expected validation_failed, got %s", envelope.Error.Code)
	}
	if envelope.Error.Details["allowed"] == nil {
		t.Fatalf("expected allowed categories in details, got %s", string(data))
	}
}

func TestErrorCategoriesEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	reviewer := bearer(signToken(t, "reviewer-1", auth.RoleReviewer))
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/review/error-categories", nil, reviewer)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("error categories: %d %s", res.StatusCode, string(data))
	}
	var categories []string
	if err := json.Unmarshal(data, &categories); err != nil {
		t.Fatalf("unmarshal categories: %v", err)
	}
	if len(categories) != 5 || categories[0] != "Incorrect Label" {
		t.Fatalf("unexpected categories: %v", categories)
	}
}

func TestLegacyActorHeader(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	legacy := map[string]string{"X-Actor-Id": "dev-1"}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects", nil, legacy)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("legacy header should authenticate when enabled, got %d %s", res.StatusCode, string(data))
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	key := "lbl_test_key"
	if err := srv.Engine.Repo.InsertAPIKey(context.Background(), nil, domain.APIKey{
		ID:      "key-1",
		ActorID: "manager-1",
		Roles:   "manager",
		Name:    "ci",
		KeyHash: repo.HashAPIKey(key),
	}); err != nil {
		t.Fatalf("insert api key: %v", err)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"name":            "Via API key",
		"price_per_label": 10,
	}, map[string]string{"X-Api-Key": key})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("api key create project: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects", nil, map[string]string{"X-Api-Key": "wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown key, got %d %s", res.StatusCode, string(data))
	}
}
