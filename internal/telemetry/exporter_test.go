package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/studiowebux/chirpload/internal/metrics"
	"github.com/studiowebux/chirpload/internal/scenario"
)

func TestExporter_CountsOutcomes(t *testing.T) {
	e := NewExporter(nil)

	ok := metrics.Outcome{BucketKey: "POST /api/v1/tweets", Status: 201, Latency: 20 * time.Millisecond, Succeeded: true}
	bad := metrics.Outcome{BucketKey: "POST /api/v1/tweets", Status: 503, Latency: 5 * time.Millisecond, FailureReason: "HTTP 503"}

	e.OnOutcome(metrics.PhaseSetup, ok)
	e.OnOutcome(metrics.PhaseRuntime, ok)
	e.OnOutcome(metrics.PhaseRuntime, ok)
	e.OnOutcome(metrics.PhaseRuntime, bad)

	if got := testutil.ToFloat64(e.requests.WithLabelValues("POST /api/v1/tweets", "runtime", "success")); got != 2 {
		t.Errorf("runtime successes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(e.requests.WithLabelValues("POST /api/v1/tweets", "runtime", "failure")); got != 1 {
		t.Errorf("runtime failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(e.requests.WithLabelValues("POST /api/v1/tweets", "setup", "success")); got != 1 {
		t.Errorf("setup successes = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(e.latency); got != 2 {
		t.Errorf("latency series = %d, want 2", got)
	}
}

func TestExporter_PhaseGauges(t *testing.T) {
	e := NewExporter(func() int { return 7 })

	first := scenario.PhaseInfo{Index: 0, Name: "1. Initialize Users", Tag: metrics.PhaseSetup, Total: 10}
	second := scenario.PhaseInfo{Index: 1, Name: "2. Build Celebrity Followers", Tag: metrics.PhaseSetup, Total: 4}

	e.PhaseStarted(first)
	e.TaskDone(first, 3)
	if got := testutil.ToFloat64(e.tasks.WithLabelValues(first.Name, "completed")); got != 3 {
		t.Errorf("completed = %v, want 3", got)
	}
	e.PhaseFinished(first, time.Second)
	e.PhaseStarted(second)

	if got := testutil.ToFloat64(e.phaseInfo.WithLabelValues(first.Name)); got != 0 {
		t.Errorf("first phase info = %v, want 0", got)
	}
	if got := testutil.ToFloat64(e.phaseInfo.WithLabelValues(second.Name)); got != 1 {
		t.Errorf("second phase info = %v, want 1", got)
	}

	e.StateChanged(scenario.StateCompleted, "")
	if got := testutil.ToFloat64(e.phaseInfo.WithLabelValues(second.Name)); got != 0 {
		t.Errorf("phase info after completion = %v, want 0", got)
	}

	expected := `
# HELP chirpload_inflight_requests Requests currently holding a dispatch permit
# TYPE chirpload_inflight_requests gauge
chirpload_inflight_requests 7
`
	if err := testutil.GatherAndCompare(e.Registry(), strings.NewReader(expected), "chirpload_inflight_requests"); err != nil {
		t.Errorf("inflight gauge: %v", err)
	}
}

func TestExporter_Handler(t *testing.T) {
	e := NewExporter(nil)
	e.OnOutcome(metrics.PhaseRuntime, metrics.Outcome{BucketKey: "GET /api/v1/users/{id}/timeline", Succeeded: true, Latency: time.Millisecond})

	srv := httptest.NewServer(e.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `chirpload_requests_total{bucket="GET /api/v1/users/{id}/timeline",outcome="success",phase="runtime"} 1`) {
		t.Errorf("exposition missing counter:\n%s", body)
	}
}

func TestServe(t *testing.T) {
	e := NewExporter(nil)
	s, err := Serve("127.0.0.1:0", e, nil)
	if err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	defer s.Shutdown(context.Background())

	resp, err := http.Get(s.URL())
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
