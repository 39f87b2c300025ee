package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"clipmerge/internal/logging"
)

func TestRecorderCycle(t *testing.T) {
	r := NewRecorder()
	before := testutil.ToFloat64(CyclesTotal.WithLabelValues("watch"))

	r.CycleStarted()
	if got := testutil.ToFloat64(Consolidating); got != 1 {
		t.Fatalf("Consolidating during cycle = %v", got)
	}
	r.CycleFinished("watch", 2*time.Second)
	if got := testutil.ToFloat64(Consolidating); got != 0 {
		t.Fatalf("Consolidating after cycle = %v", got)
	}
	if got := testutil.ToFloat64(CyclesTotal.WithLabelValues("watch")); got != before+1 {
		t.Fatalf("CyclesTotal = %v, want %v", got, before+1)
	}
}

func TestRecorderBatchOutcomes(t *testing.T) {
	r := NewRecorder()
	committed := testutil.ToFloat64(BatchesTotal.WithLabelValues("extend", "committed"))
	archived := testutil.ToFloat64(FragmentsArchivedTotal)

	r.BatchFinished("extend", "committed", 3)
	r.BatchFinished("new", "failed", 0)

	if got := testutil.ToFloat64(BatchesTotal.WithLabelValues("extend", "committed")); got != committed+1 {
		t.Fatalf("committed batches = %v", got)
	}
	if got := testutil.ToFloat64(FragmentsArchivedTotal); got != archived+3 {
		t.Fatalf("archived fragments = %v, want %v", got, archived+3)
	}
}

func TestRecorderEngineFailureDefaultsReason(t *testing.T) {
	r := NewRecorder()
	before := testutil.ToFloat64(EngineFailuresTotal.WithLabelValues("unknown"))
	r.EngineFailure("")
	if got := testutil.ToFloat64(EngineFailuresTotal.WithLabelValues("unknown")); got != before+1 {
		t.Fatalf("unknown failures = %v", got)
	}
}

func TestRecorderWatch(t *testing.T) {
	r := NewRecorder()
	r.WatchedDirectories(7)
	if got := testutil.ToFloat64(WatchedDirectories); got != 7 {
		t.Fatalf("WatchedDirectories = %v", got)
	}
	before := testutil.ToFloat64(WatchEventsTotal.WithLabelValues("fragment"))
	r.WatchEvent("fragment")
	if got := testutil.ToFloat64(WatchEventsTotal.WithLabelValues("fragment")); got != before+1 {
		t.Fatalf("WatchEventsTotal = %v", got)
	}
}

type staticStatus struct {
	payload any
	err     error
}

func (s staticStatus) Status(context.Context) (any, error) {
	return s.payload, s.err
}

func TestNewServerDisabledWithoutBind(t *testing.T) {
	if s := NewServer("  ", nil, logging.NewNop()); s != nil {
		t.Fatal("expected nil server for empty bind")
	}
	var s *Server
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start on nil server: %v", err)
	}
	s.Stop()
}

func TestServerRoutes(t *testing.T) {
	s := NewServer("127.0.0.1:0", staticStatus{payload: map[string]any{"state": "idle"}}, logging.NewNop())
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	resp.Body.Close()
	if payload["state"] != "idle" {
		t.Fatalf("unexpected status payload %#v", payload)
	}

	NewRecorder().CycleStarted()
	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "clipmerge_consolidating") {
		t.Fatalf("metrics output missing clipmerge_consolidating")
	}
	NewRecorder().CycleFinished("manual", 0)

	resp, err = http.Post(ts.URL+"/healthz", "text/plain", nil)
	if err != nil {
		t.Fatalf("POST /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST /healthz status = %d, want 405", resp.StatusCode)
	}
}

func TestServerStatusError(t *testing.T) {
	s := NewServer("127.0.0.1:0", staticStatus{err: errors.New("ledger closed")}, logging.NewNop())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ledger closed") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestServerStartAndStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewServer("127.0.0.1:0", nil, logging.NewNop())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET live server: %v", err)
	}
	resp.Body.Close()
	s.Stop()
}
