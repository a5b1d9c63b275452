package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"spriteforge/internal/batch"
	"spriteforge/internal/capability"
	"spriteforge/internal/comfy"
	"spriteforge/internal/domain"
	httpapi "spriteforge/internal/http"
	"spriteforge/internal/http/handlers"
)

type memRepo struct {
	mu      sync.Mutex
	records map[string]*domain.AssetRecord
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[string]*domain.AssetRecord)}
}

func (m *memRepo) Create(_ context.Context, rec *domain.AssetRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *memRepo) MarkProcessing(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok && rec.Status == domain.AssetStatusPending {
		rec.Status = domain.AssetStatusProcessing
	}
	return nil
}

func (m *memRepo) MarkCompleted(_ context.Context, id string, meta *domain.GeneratedAssetMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok {
		rec.Status = domain.AssetStatusCompleted
		rec.FilePath = meta.FilePath
	}
	return nil
}

func (m *memRepo) MarkFailed(_ context.Context, id string, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok {
		rec.Status = domain.AssetStatusFailed
		rec.ErrorDetail = detail
	}
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*domain.AssetRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: asset %s", domain.ErrNotFound, id)
	}
	cp := *rec
	return &cp, nil
}

func (m *memRepo) List(_ context.Context, filter domain.AssetFilter) ([]domain.AssetRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AssetRecord
	for _, rec := range m.records {
		if filter.BatchID != "" && rec.BatchID != filter.BatchID {
			continue
		}
		if filter.Type != "" && rec.Type != filter.Type {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (m *memRepo) ReclaimStale(context.Context, time.Duration, string) (int, error) {
	return 0, nil
}

type okProcessor struct{}

func (okProcessor) Process(context.Context, domain.GenerationRequest) (*domain.GeneratedAssetMetadata, error) {
	return &domain.GeneratedAssetMetadata{FilePath: "/assets/out.png"}, nil
}

type fixture struct {
	repo       *memRepo
	supervisor *batch.Supervisor
	router     http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemRepo()
	logger := zerolog.Nop()
	supervisor := batch.NewSupervisor(repo, okProcessor{}, logger, 10)
	client := comfy.NewClient(comfy.Options{BaseURL: "http://127.0.0.1:1", Mode: "mock", SubmitPerSec: 1000})
	app := &handlers.App{
		Repo:       repo,
		Supervisor: supervisor,
		Caps:       capability.NewChecker(client, logger),
		Comfy:      client,
		Logger:     logger,
	}
	router := httpapi.NewRouter(httpapi.RouterOptions{
		App:             app,
		Logger:          logger,
		RateLimitPerMin: 10000,
	})
	return &fixture{repo: repo, supervisor: supervisor, router: router}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestGenerateAccepted(t *testing.T) {
	fx := newFixture(t)
	rec := fx.do(t, http.MethodPost, "/api/assets/generate",
		`{"type":"object","name":"Barrel","prompt":"a wooden barrel"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["id"] == "" || resp["status"] != "PENDING" {
		t.Fatalf("response = %v", resp)
	}

	fx.supervisor.Wait()
	got := fx.do(t, http.MethodGet, "/api/assets/"+resp["id"], "")
	if got.Code != http.StatusOK {
		t.Fatalf("get status = %d: %s", got.Code, got.Body)
	}
	var asset struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(got.Body.Bytes(), &asset); err != nil {
		t.Fatalf("decode asset: %v", err)
	}
	if asset.Status != "COMPLETED" {
		t.Fatalf("asset status = %s, want COMPLETED", asset.Status)
	}
}

func TestGenerateRejectsInvalidRequest(t *testing.T) {
	fx := newFixture(t)
	cases := []string{
		`{"type":"building","name":"x","prompt":"y"}`,
		`{"type":"object","prompt":"y"}`,
		`{"type":"object","name":"x"}`,
		`{"type":"object","name":"x","prompt":"y","bogus_field":1}`,
		`not json`,
	}
	for i, body := range cases {
		rec := fx.do(t, http.MethodPost, "/api/assets/generate", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("case %d: status = %d, want 400: %s", i, rec.Code, rec.Body)
		}
	}
	if len(fx.repo.records) != 0 {
		t.Fatalf("invalid requests must not create records")
	}
}

func TestGenerateBatchAndStatus(t *testing.T) {
	fx := newFixture(t)
	items := make([]string, 3)
	for i := range items {
		items[i] = fmt.Sprintf(`{"type":"tileset","name":"terrain-%d","prompt":"grass"}`, i)
	}
	body := `{"items":[` + strings.Join(items, ",") + `]}`

	rec := fx.do(t, http.MethodPost, "/api/assets/batch", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body)
	}
	var resp struct {
		BatchID string   `json:"batch_id"`
		IDs     []string `json:"ids"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.BatchID == "" || len(resp.IDs) != 3 {
		t.Fatalf("response = %+v", resp)
	}

	fx.supervisor.Wait()
	status := fx.do(t, http.MethodGet, "/api/assets/batch/"+resp.BatchID, "")
	if status.Code != http.StatusOK {
		t.Fatalf("batch status = %d: %s", status.Code, status.Body)
	}
	var parsed struct {
		Total     int `json:"total"`
		Completed int `json:"completed"`
	}
	if err := json.Unmarshal(status.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if parsed.Total != 3 || parsed.Completed != 3 {
		t.Fatalf("batch status = %+v, want 3/3 completed", parsed)
	}
}

func TestGenerateBatchTooLarge(t *testing.T) {
	fx := newFixture(t)
	items := make([]string, 11)
	for i := range items {
		items[i] = `{"type":"object","name":"x","prompt":"y"}`
	}
	rec := fx.do(t, http.MethodPost, "/api/assets/batch", `{"items":[`+strings.Join(items, ",")+`]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body)
	}
}

func TestGetAssetNotFound(t *testing.T) {
	fx := newFixture(t)
	rec := fx.do(t, http.MethodGet, "/api/assets/no-such-id", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body)
	}
}

func TestCapabilitiesNeverFails(t *testing.T) {
	fx := newFixture(t)
	rec := fx.do(t, http.MethodGet, "/api/comfyui/capabilities", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var snap capability.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
}

func TestHealth(t *testing.T) {
	fx := newFixture(t)
	rec := fx.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
