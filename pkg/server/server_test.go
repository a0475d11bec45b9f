package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/piwi3910/cvmsync/pkg/cloud"
	"github.com/piwi3910/cvmsync/pkg/syncer"
	"github.com/piwi3910/cvmsync/pkg/telemetry"
)

// fakePreloader scripts the orchestrator behind the control surface.
type fakePreloader struct {
	mu      sync.Mutex
	calls   []string
	err     error
	panicky bool

	// block holds the preload open until released, for single-flight tests.
	block chan struct{}

	lastCtx context.Context
}

func (f *fakePreloader) Preload(ctx context.Context, _ cloud.Credentials, defaultRegion string) (*syncer.Report, error) {
	f.mu.Lock()
	f.calls = append(f.calls, defaultRegion)
	f.lastCtx = ctx
	block := f.block
	f.mu.Unlock()

	if f.panicky {
		panic("boom")
	}
	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}
	return &syncer.Report{RunID: "run-test", DefaultRegion: defaultRegion, RegionCount: 2, InstanceCount: 1}, nil
}

func newTestServer(t *testing.T, pre Preloader) *Server {
	t.Helper()

	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	metrics := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: true, Namespace: "cvmsync_test"})

	return New(pre, logger, metrics, Config{
		DefaultRegion:  "ap-beijing",
		PreloadTimeout: time.Minute,
	})
}

func postPreload(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/preload_all", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) PreloadResponse {
	t.Helper()

	var resp PreloadResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakePreloader{})
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
	if body["mode"] == "" {
		t.Error("expected mode to be set")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakePreloader{})
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
}

func TestPreloadMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &fakePreloader{})
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/preload_all", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestPreloadMalformedBody(t *testing.T) {
	pre := &fakePreloader{}
	srv := newTestServer(t, pre)

	rec := postPreload(t, srv.Handler(), "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(pre.calls) != 0 {
		t.Error("expected no preload to run for malformed body")
	}
}

func TestPreloadMissingCredentials(t *testing.T) {
	pre := &fakePreloader{}
	srv := newTestServer(t, pre)

	rec := postPreload(t, srv.Handler(), `{"secret_id":"only-id"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(pre.calls) != 0 {
		t.Error("expected no preload to run without credentials")
	}
}

func TestPreloadSuccess(t *testing.T) {
	pre := &fakePreloader{}
	srv := newTestServer(t, pre)

	rec := postPreload(t, srv.Handler(),
		`{"secret_id":"id","secret_key":"key","default_region":"ap-shanghai"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Errorf("expected success, got message %q", resp.Message)
	}
	if len(pre.calls) != 1 || pre.calls[0] != "ap-shanghai" {
		t.Errorf("expected preload for ap-shanghai, got %v", pre.calls)
	}
	if _, ok := pre.lastCtx.Deadline(); !ok {
		t.Error("expected preload context to carry a deadline")
	}
}

func TestPreloadDefaultRegionApplied(t *testing.T) {
	pre := &fakePreloader{}
	srv := newTestServer(t, pre)

	rec := postPreload(t, srv.Handler(), `{"secret_id":"id","secret_key":"key"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(pre.calls) != 1 || pre.calls[0] != "ap-beijing" {
		t.Errorf("expected configured default region, got %v", pre.calls)
	}
}

func TestPreloadFailureReported(t *testing.T) {
	pre := &fakePreloader{err: errors.New("fetch regions failed")}
	srv := newTestServer(t, pre)

	rec := postPreload(t, srv.Handler(), `{"secret_id":"id","secret_key":"key"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	resp := decodeResponse(t, rec)
	if resp.Success {
		t.Error("expected failure response")
	}
	if !strings.Contains(resp.Message, "fetch regions failed") {
		t.Errorf("expected failure message surfaced, got %q", resp.Message)
	}
}

func TestCrashIsolation(t *testing.T) {
	pre := &fakePreloader{panicky: true}
	srv := newTestServer(t, pre)
	handler := srv.Handler()

	rec := postPreload(t, handler, `{"secret_id":"id","secret_key":"key"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on panic, got %d", rec.Code)
	}

	// The service must stay available after the fault.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	healthRec := httptest.NewRecorder()
	handler.ServeHTTP(healthRec, req)
	if healthRec.Code != http.StatusOK {
		t.Fatalf("expected health to succeed after panic, got %d", healthRec.Code)
	}

	pre.panicky = false
	retryRec := postPreload(t, handler, `{"secret_id":"id","secret_key":"key"}`)
	if retryRec.Code != http.StatusOK {
		t.Fatalf("expected preload to succeed after panic, got %d", retryRec.Code)
	}
	if resp := decodeResponse(t, retryRec); !resp.Success {
		t.Errorf("expected retry to succeed, got %q", resp.Message)
	}
}

func TestPreloadSingleFlight(t *testing.T) {
	pre := &fakePreloader{block: make(chan struct{})}
	srv := newTestServer(t, pre)
	handler := srv.Handler()

	firstDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		firstDone <- postPreload(t, handler, `{"secret_id":"id","secret_key":"key"}`)
	}()

	// Wait for the first request to be inside the preloader.
	deadline := time.After(2 * time.Second)
	for {
		pre.mu.Lock()
		started := len(pre.calls) > 0
		pre.mu.Unlock()
		if started {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first preload never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	second := postPreload(t, handler, `{"secret_id":"id","secret_key":"key"}`)
	if second.Code != http.StatusConflict {
		t.Fatalf("expected 409 for concurrent preload, got %d", second.Code)
	}
	if resp := decodeResponse(t, second); resp.Success {
		t.Error("expected concurrent preload rejection")
	}

	close(pre.block)
	first := <-firstDone
	if first.Code != http.StatusOK {
		t.Fatalf("expected first preload to finish with 200, got %d", first.Code)
	}
}
