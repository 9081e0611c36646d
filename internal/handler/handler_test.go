package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/slabscan/api/internal/auth"
	"github.com/slabscan/api/internal/middleware"
	"github.com/slabscan/api/internal/model"
	"github.com/slabscan/api/internal/service"
	"github.com/slabscan/api/internal/store"
)

const testJWTSecret = "test-secret"

type memCache struct {
	mu      sync.Mutex
	results map[string]*model.ParsedGradingResult
}

func (c *memCache) SaveResult(_ context.Context, cardID string, r *model.ParsedGradingResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[cardID] = r
	return nil
}

func (c *memCache) GetResult(_ context.Context, cardID string) (*model.ParsedGradingResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[cardID]
	if !ok {
		return nil, service.ErrResultNotFound
	}
	return r, nil
}

func (c *memCache) SaveRaw(context.Context, string, string) error { return nil }

type testApp struct {
	app     *fiber.App
	store   *store.JobStore
	reports *service.ReportService
}

// setupApp wires the API routes against an in-memory store and result cache.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	validate := validator.New()
	jobStore := store.NewJobStore()
	reportService := service.NewReportService(&memCache{results: map[string]*model.ParsedGradingResult{}}, nil, nil)

	jobHandler := NewJobHandler(service.NewJobService(jobStore, 5*time.Minute), validate)
	reportHandler := NewReportHandler(reportService, validate)
	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)

	app := fiber.New()
	api := app.Group("/api", authMiddleware.Authenticate())

	jobs := api.Group("/jobs")
	jobs.Post("/", jobHandler.Submit)
	jobs.Get("/", jobHandler.List)
	jobs.Post("/clear-completed", jobHandler.ClearCompleted)
	jobs.Get("/:jobId", jobHandler.Get)
	jobs.Delete("/:jobId", jobHandler.Dismiss)

	api.Post("/reports/parse", reportHandler.Parse)
	api.Get("/results/:cardId", reportHandler.Result)

	return &testApp{app: app, store: jobStore, reports: reportService}
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := auth.GenerateToken("test-user", "test@example.com", testJWTSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(b, &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, b)
	}
	return result
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", expected, resp.StatusCode, body)
	}
}

func assertErrorCode(t *testing.T, resp *http.Response, code string) {
	t.Helper()
	body := parseJSON(t, resp)
	errObj, _ := body["error"].(map[string]interface{})
	if errObj["code"] != code {
		t.Errorf("error code = %v, want %s", errObj["code"], code)
	}
}

func TestJobs_SubmitAndGet(t *testing.T) {
	ta := setupApp(t)

	resp := doRequest(t, ta.app, "POST", "/api/jobs", `{"cardId":"card-1","category":"pokemon"}`)
	assertStatus(t, resp, fiber.StatusAccepted)
	job := parseJSON(t, resp)

	if job["status"] != "uploading" || job["cardId"] != "card-1" || job["progress"] != float64(0) {
		t.Errorf("unexpected job: %v", job)
	}
	id, _ := job["id"].(string)
	if id == "" {
		t.Fatal("missing job id")
	}

	resp = doRequest(t, ta.app, "GET", "/api/jobs/"+id, "")
	assertStatus(t, resp, fiber.StatusOK)
	if got := parseJSON(t, resp); got["id"] != id {
		t.Errorf("got job %v", got["id"])
	}
}

func TestJobs_SubmitValidation(t *testing.T) {
	ta := setupApp(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing card", `{"category":"pokemon"}`},
		{"bad category", `{"cardId":"c","category":"baseball"}`},
		{"not json", `nope`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, ta.app, "POST", "/api/jobs", tt.body)
			assertStatus(t, resp, fiber.StatusBadRequest)
			assertErrorCode(t, resp, "VALIDATION_ERROR")
		})
	}
}

func TestJobs_ListOrder(t *testing.T) {
	ta := setupApp(t)
	now := time.Now()
	ta.store.Enqueue(model.GradingJob{ID: "second", CardID: "b", UploadedAt: now})
	ta.store.Enqueue(model.GradingJob{ID: "first", CardID: "a", UploadedAt: now.Add(-time.Minute)})

	resp := doRequest(t, ta.app, "GET", "/api/jobs", "")
	assertStatus(t, resp, fiber.StatusOK)
	body := parseJSON(t, resp)

	jobs, _ := body["jobs"].([]interface{})
	if len(jobs) != 2 {
		t.Fatalf("jobs = %v", body["jobs"])
	}
	if jobs[0].(map[string]interface{})["id"] != "first" {
		t.Errorf("jobs not sorted by uploadedAt: %v", jobs)
	}
}

func TestJobs_DismissAndNotFound(t *testing.T) {
	ta := setupApp(t)
	ta.store.Enqueue(model.GradingJob{ID: "j", CardID: "c"})

	resp := doRequest(t, ta.app, "DELETE", "/api/jobs/j", "")
	assertStatus(t, resp, fiber.StatusNoContent)

	resp = doRequest(t, ta.app, "DELETE", "/api/jobs/j", "")
	assertStatus(t, resp, fiber.StatusNotFound)
	assertErrorCode(t, resp, "NOT_FOUND")

	resp = doRequest(t, ta.app, "GET", "/api/jobs/j", "")
	assertStatus(t, resp, fiber.StatusNotFound)
}

func TestJobs_ClearCompleted(t *testing.T) {
	ta := setupApp(t)
	ta.store.Enqueue(model.GradingJob{ID: "running", CardID: "c"})

	resp := doRequest(t, ta.app, "POST", "/api/jobs/clear-completed", "")
	assertStatus(t, resp, fiber.StatusOK)
	if body := parseJSON(t, resp); body["removed"] != float64(0) {
		t.Errorf("removed = %v, want 0", body["removed"])
	}
}

func TestJobs_RequiresAuth(t *testing.T) {
	ta := setupApp(t)

	req, _ := http.NewRequest("GET", "/api/jobs", nil)
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, resp, fiber.StatusUnauthorized)
	assertErrorCode(t, resp, "UNAUTHORIZED")
}

func TestReports_Parse(t *testing.T) {
	ta := setupApp(t)
	body, _ := json.Marshal(model.ParseReportRequest{Report: "**Decimal Grade:** 9.6\n**Whole Grade:** 10"})

	resp := doRequest(t, ta.app, "POST", "/api/reports/parse", string(body))
	assertStatus(t, resp, fiber.StatusOK)
	got := parseJSON(t, resp)

	result, _ := got["result"].(map[string]interface{})
	if result["decimal_grade"] != float64(10) || result["whole_grade"] != float64(10) {
		t.Errorf("unexpected result: %v", result)
	}
	validation, _ := got["validation"].(map[string]interface{})
	if validation["valid"] != true {
		t.Errorf("validation = %v", validation)
	}
}

func TestReports_ParseInvalidReportStillReturned(t *testing.T) {
	ta := setupApp(t)

	resp := doRequest(t, ta.app, "POST", "/api/reports/parse", `{"report":"nothing useful"}`)
	assertStatus(t, resp, fiber.StatusOK)
	got := parseJSON(t, resp)

	validation, _ := got["validation"].(map[string]interface{})
	if validation["valid"] != false {
		t.Errorf("validation = %v, want invalid", validation)
	}
}

func TestReports_ParseEmpty(t *testing.T) {
	ta := setupApp(t)

	resp := doRequest(t, ta.app, "POST", "/api/reports/parse", `{"report":""}`)
	assertStatus(t, resp, fiber.StatusBadRequest)
}

func TestResults_Get(t *testing.T) {
	ta := setupApp(t)

	resp := doRequest(t, ta.app, "GET", "/api/results/card-9", "")
	assertStatus(t, resp, fiber.StatusNotFound)

	job := model.GradingJob{ID: "j", CardID: "card-9", Category: model.CategorySports}
	if _, err := ta.reports.Process(context.Background(), job, "**Final Grade:** 8.1"); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	resp = doRequest(t, ta.app, "GET", "/api/results/card-9", "")
	assertStatus(t, resp, fiber.StatusOK)
	if got := parseJSON(t, resp); got["decimal_grade"] != float64(8) {
		t.Errorf("decimal_grade = %v, want 8", got["decimal_grade"])
	}
}
