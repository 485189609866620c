package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"genflow/internal/adapter/repo"
	"genflow/internal/domain"
	"genflow/internal/http/handlers"
	"genflow/internal/infra"
	"genflow/internal/lifecycle"
	"genflow/internal/live"
	"genflow/internal/middleware"
	"genflow/internal/orchestrator"
	"genflow/internal/poller"
	"genflow/internal/providers"
	"genflow/internal/telemetry"
)

const testSecret = "test-secret"

type stubAdapter struct {
	kind      domain.Kind
	submitErr error
	outcome   providers.Outcome
}

func (s *stubAdapter) Name() string      { return "stub-" + string(s.kind) }
func (s *stubAdapter) Kind() domain.Kind { return s.kind }
func (s *stubAdapter) Submit(ctx context.Context, req domain.RequestSpec) (string, error) {
	if s.submitErr != nil {
		return "", s.submitErr
	}
	return "ext-1", nil
}
func (s *stubAdapter) FetchStatus(ctx context.Context, id string) (providers.Outcome, error) {
	return s.outcome, nil
}
func (s *stubAdapter) Policy() providers.PollPolicy {
	return providers.PollPolicy{Interval: 2 * time.Millisecond, MaxAttempts: 500}
}

type testServer struct {
	handler http.Handler
	ledger  *repo.MemoryCreditLedger
	engine  *poller.Engine
}

func newTestServer(t *testing.T, adapters ...providers.Adapter) *testServer {
	t.Helper()
	store := repo.NewMemoryJobStore(nil)
	ledger := repo.NewMemoryCreditLedger()
	metrics := telemetry.NewMetrics()
	manager := lifecycle.NewManager(lifecycle.Options{Store: store, Metrics: metrics})
	registry := providers.NewRegistry()
	for _, a := range adapters {
		registry.Register(a)
	}
	engine := poller.NewEngine(poller.Options{Lifecycle: manager, Providers: registry, Pending: store, Metrics: metrics})
	hub := live.NewHub(live.Options{Store: store, Progress: engine.Progress, Metrics: metrics})
	t.Cleanup(func() {
		_ = engine.Shutdown(context.Background())
		hub.Close()
		store.Close()
	})
	svc := orchestrator.NewService(orchestrator.Options{
		Store:     store,
		Ledger:    ledger,
		Lifecycle: manager,
		Engine:    engine,
		Providers: registry,
		Hub:       hub,
		Costs:     orchestrator.Costs{domain.KindImage: 2},
	})
	app := handlers.NewApp(svc, metrics, infra.DiscardLogger())
	router := NewRouter(app, Options{JWTSecret: testSecret, RateLimitPerMin: 100, Logger: *infra.DiscardLogger()})
	return &testServer{handler: router, ledger: ledger, engine: engine}
}

func (s *testServer) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		token, err := middleware.SignJWT(testSecret, user, time.Hour)
		if err != nil {
			t.Fatalf("SignJWT: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) orchestrator.Status {
	t.Helper()
	var st orchestrator.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return st
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	srv := newTestServer(t)
	if rec := srv.do(t, http.MethodGet, "/v1/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rec.Code)
	}
	rec := srv.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "genflow_active_polls") {
		t.Fatalf("metrics status %d body %q", rec.Code, rec.Body.String())
	}
	if rec := srv.do(t, http.MethodGet, "/v1/openapi.json", "", nil); rec.Code != http.StatusOK || !json.Valid(rec.Body.Bytes()) {
		t.Fatalf("openapi status %d", rec.Code)
	}
}

func TestJobsRequireAuth(t *testing.T) {
	srv := newTestServer(t)
	if rec := srv.do(t, http.MethodGet, "/v1/jobs", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", rec.Code)
	}
}

func TestCreateJobLifecycle(t *testing.T) {
	srv := newTestServer(t, &stubAdapter{kind: domain.KindImage, outcome: providers.Succeeded("https://cdn.example.com/x.png")})
	if err := srv.ledger.Grant(context.Background(), "u1", 4); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	rec := srv.do(t, http.MethodPost, "/v1/jobs", "u1", map[string]any{"kind": "image", "prompt": "a red kite"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create status %d body %s", rec.Code, rec.Body.String())
	}
	created := decodeStatus(t, rec)
	if created.CreditsCharged != 2 || rec.Header().Get("Location") != "/v1/jobs/image/"+created.JobID {
		t.Fatalf("unexpected create response %+v location %q", created, rec.Header().Get("Location"))
	}
	srv.engine.Wait()

	rec = srv.do(t, http.MethodGet, "/v1/jobs/image/"+created.JobID, "u1", nil)
	st := decodeStatus(t, rec)
	if st.State != domain.StateCompleted || st.Progress != 100 || st.ResultLocation == "" {
		t.Fatalf("status %+v", st)
	}
	if rec := srv.do(t, http.MethodGet, "/v1/jobs/image/"+created.JobID, "u2", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("other user status %d, want 404", rec.Code)
	}

	rec = srv.do(t, http.MethodGet, "/v1/jobs?state=completed", "u1", nil)
	var list struct {
		Jobs []orchestrator.Status `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list.Jobs) != 1 {
		t.Fatalf("list = %s (%v)", rec.Body.String(), err)
	}

	if rec := srv.do(t, http.MethodDelete, "/v1/jobs/image/"+created.JobID, "u1", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodGet, "/v1/jobs/image/"+created.JobID, "u1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("deleted job status %d, want 404", rec.Code)
	}

	rec = srv.do(t, http.MethodGet, "/v1/credits", "u1", nil)
	if !strings.Contains(rec.Body.String(), `"balance":2`) {
		t.Fatalf("credits body %s", rec.Body.String())
	}
}

func TestCreateJobErrors(t *testing.T) {
	srv := newTestServer(t,
		&stubAdapter{kind: domain.KindImage, outcome: providers.Pending()},
		&stubAdapter{kind: domain.KindVideo, submitErr: providers.MissingKey("kie")},
	)
	if err := srv.ledger.Grant(context.Background(), "rich", 100); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	tests := []struct {
		name string
		user string
		body map[string]any
		code int
	}{
		{"unknown kind", "rich", map[string]any{"kind": "audio", "prompt": "x"}, http.StatusBadRequest},
		{"empty prompt", "rich", map[string]any{"kind": "image", "prompt": ""}, http.StatusBadRequest},
		{"unknown field", "rich", map[string]any{"kind": "image", "prompt": "x", "quantity": 3}, http.StatusBadRequest},
		{"no credits", "poor", map[string]any{"kind": "image", "prompt": "x"}, http.StatusPaymentRequired},
		{"provider auth", "rich", map[string]any{"kind": "video", "prompt": "x"}, http.StatusBadGateway},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/v1/jobs", tc.user, tc.body)
			if rec.Code != tc.code {
				t.Fatalf("status %d, want %d (body %s)", rec.Code, tc.code, rec.Body.String())
			}
		})
	}
}

func TestStreamSendsQueueEvents(t *testing.T) {
	srv := newTestServer(t, &stubAdapter{kind: domain.KindImage, outcome: providers.Pending()})
	ts := httptest.NewServer(srv.handler)
	defer ts.Close()

	token, _ := middleware.SignJWT(testSecret, "u1", time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/stream?access_token="+token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended before a queue event: %v", err)
		}
		if strings.TrimSpace(line) == "event: queue" {
			data, err := reader.ReadString('\n')
			if err != nil || !strings.HasPrefix(data, "data: ") {
				t.Fatalf("queue event without data: %q %v", data, err)
			}
			return
		}
	}
}
