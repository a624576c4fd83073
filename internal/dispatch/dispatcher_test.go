package dispatch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/studiowebux/chirpload/internal/metrics"
)

// fakeTransport counts live calls and answers with a fixed status
type fakeTransport struct {
	status  int
	err     error
	delay   time.Duration
	block   bool
	live    int64
	maxLive int64
	calls   int64
}

func (f *fakeTransport) Execute(ctx context.Context, method, path string, headers http.Header, body []byte) (int, []byte, error) {
	atomic.AddInt64(&f.calls, 1)
	n := atomic.AddInt64(&f.live, 1)
	defer atomic.AddInt64(&f.live, -1)
	for {
		cur := atomic.LoadInt64(&f.maxLive)
		if n <= cur || atomic.CompareAndSwapInt64(&f.maxLive, cur, n) {
			break
		}
	}

	if f.block {
		<-ctx.Done()
		return 0, nil, ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		}
	}
	if f.err != nil {
		return 0, nil, f.err
	}
	return f.status, []byte(`{"ok":true}`), nil
}

func newTestDispatcher(t *testing.T, cfg Config, tr Transport) (*Dispatcher, *metrics.Collector) {
	t.Helper()
	collector := metrics.NewCollector()
	d, err := New(cfg, tr, collector, nil)
	if err != nil {
		t.Fatalf("Failed to create dispatcher: %v", err)
	}
	return d, collector
}

func TestDispatcher_NeverExceedsCeiling(t *testing.T) {
	tr := &fakeTransport{status: 200, delay: 2 * time.Millisecond}
	d, collector := newTestDispatcher(t, Config{MaxConcurrency: 5}, tr)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Dispatch(context.Background(), Request{Method: "GET", Path: "/api/v1/tweets"}); err != nil {
				t.Errorf("Unexpected dispatch error: %v", err)
			}
		}()
	}
	wg.Wait()

	if max := atomic.LoadInt64(&tr.maxLive); max > 5 {
		t.Errorf("Transport saw %d concurrent calls, ceiling is 5", max)
	}
	if d.MaxInFlight() > 5 {
		t.Errorf("Dispatcher reported %d in flight, ceiling is 5", d.MaxInFlight())
	}
	if got := collector.GlobalStats().Total; got != 200 {
		t.Errorf("Expected 200 outcomes, got %d", got)
	}
	if d.InFlight() != 0 {
		t.Errorf("Expected no requests in flight after completion, got %d", d.InFlight())
	}
}

func TestDispatcher_ClassifiesStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		expect     []int
		wantOK     bool
		wantReason string
	}{
		{"created", 201, []int{201}, true, ""},
		{"conflict accepted", 409, []int{201, 409}, true, ""},
		{"not found rejected", 404, []int{200}, false, "HTTP 404"},
		{"server error", 503, []int{200}, false, "HTTP 503"},
		{"default 2xx", 204, nil, true, ""},
		{"default rejects 3xx", 302, nil, false, "HTTP 302"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, collector := newTestDispatcher(t, Config{MaxConcurrency: 1}, &fakeTransport{status: tt.status})

			res, err := d.Dispatch(context.Background(), Request{Method: "POST", Path: "/api/v1/tweets", Expect: tt.expect})
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if res.OK() != tt.wantOK {
				t.Errorf("OK() = %v, want %v", res.OK(), tt.wantOK)
			}
			if res.Outcome.FailureReason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", res.Outcome.FailureReason, tt.wantReason)
			}
			if res.Status != tt.status {
				t.Errorf("Status = %d, want %d", res.Status, tt.status)
			}

			stats := collector.EndpointStats()["POST /api/v1/tweets"]
			if stats.Total != 1 {
				t.Errorf("Expected exactly one outcome, got %d", stats.Total)
			}
		})
	}
}

func TestDispatcher_TimeoutIsFailureAndReleasesPermit(t *testing.T) {
	tr := &fakeTransport{block: true}
	d, collector := newTestDispatcher(t, Config{MaxConcurrency: 1, RequestTimeout: 20 * time.Millisecond}, tr)

	for i := 0; i < 3; i++ {
		res, err := d.Dispatch(context.Background(), Request{Method: "GET", Path: "/slow"})
		if err != nil {
			t.Fatalf("Dispatch %d returned error: %v", i, err)
		}
		if res.OK() {
			t.Fatalf("Expected timeout to fail")
		}
		if res.Outcome.FailureReason != ReasonTimeout {
			t.Errorf("Expected reason %q, got %q", ReasonTimeout, res.Outcome.FailureReason)
		}
		if res.Status != 0 {
			t.Errorf("Expected status 0 for timeout, got %d", res.Status)
		}
	}

	// one attempt per request, no retries
	if calls := atomic.LoadInt64(&tr.calls); calls != 3 {
		t.Errorf("Expected 3 transport calls, got %d", calls)
	}
	if got := collector.GlobalStats().Failed; got != 3 {
		t.Errorf("Expected 3 failures, got %d", got)
	}
}

func TestDispatcher_TransportErrorReleasesPermit(t *testing.T) {
	tr := &fakeTransport{err: errors.New("dial tcp 127.0.0.1:1: connect: connection refused")}
	d, collector := newTestDispatcher(t, Config{MaxConcurrency: 1}, tr)

	for i := 0; i < 5; i++ {
		res, err := d.Dispatch(context.Background(), Request{Method: "GET", Path: "/down"})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if res.Outcome.FailureReason != ReasonConnectionRefused {
			t.Errorf("Expected connection refused, got %q", res.Outcome.FailureReason)
		}
	}

	stats := collector.GlobalStats()
	if stats.Total != 5 || stats.Failed != 5 {
		t.Errorf("Expected 5 failed outcomes, got %+v", stats)
	}
	if stats.FailureReasons[ReasonConnectionRefused] != 5 {
		t.Errorf("Unexpected failure reasons: %v", stats.FailureReasons)
	}
}

func TestDispatcher_CancelledWhileWaitingIsAbandoned(t *testing.T) {
	tr := &fakeTransport{block: true}
	d, collector := newTestDispatcher(t, Config{MaxConcurrency: 1, RequestTimeout: time.Second}, tr)

	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := d.Dispatch(ctx, Request{Method: "GET", Path: "/holder"})
		done <- err
	}()
	<-started

	// wait until the first request holds the only permit
	deadline := time.Now().Add(time.Second)
	for d.InFlight() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	waiter := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(ctx, Request{Method: "GET", Path: "/waiter"})
		waiter <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := <-waiter; !errors.Is(err, ErrAbandoned) {
		t.Errorf("Expected ErrAbandoned for waiter, got %v", err)
	}
	if err := <-done; !errors.Is(err, ErrAbandoned) {
		t.Errorf("Expected ErrAbandoned for in-flight request, got %v", err)
	}
	if got := collector.GlobalStats().Total; got != 0 {
		t.Errorf("Abandoned requests must not be recorded, got %d outcomes", got)
	}
}

func TestDispatcher_RateLimit(t *testing.T) {
	tr := &fakeTransport{status: 200}
	d, _ := newTestDispatcher(t, Config{MaxConcurrency: 10, RequestsPerSecond: 100, Burst: 1}, tr)

	start := time.Now()
	for i := 0; i < 6; i++ {
		if _, err := d.Dispatch(context.Background(), Request{Method: "GET", Path: "/"}); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	// 6 requests at 100 rps with burst 1 need at least 5 intervals of 10ms
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Rate ceiling not applied, 6 requests took %v", elapsed)
	}
}

func TestNew_Validation(t *testing.T) {
	tr := &fakeTransport{status: 200}
	collector := metrics.NewCollector()

	if _, err := New(Config{MaxConcurrency: -1}, tr, collector, nil); err == nil {
		t.Error("Expected error for negative concurrency")
	}
	if _, err := New(Config{MaxConcurrency: MaxConcurrencyLimit + 1}, tr, collector, nil); err == nil {
		t.Error("Expected error for concurrency over the limit")
	}
	if _, err := New(Config{}, nil, collector, nil); err == nil {
		t.Error("Expected error for nil transport")
	}

	d, err := New(Config{}, tr, collector, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if d.MaxConcurrency() != DefaultMaxConcurrency {
		t.Errorf("Expected default concurrency %d, got %d", DefaultMaxConcurrency, d.MaxConcurrency())
	}
}
