package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/studiowebux/chirpload/internal/metrics"
)

const (
	DefaultMaxConcurrency = 50
	DefaultRequestTimeout = 30 * time.Second
	MaxConcurrencyLimit   = 10000
)

// ErrAbandoned is returned when a request was dropped before producing an
// outcome because the caller's context ended
var ErrAbandoned = errors.New("request abandoned")

// Recorder receives one outcome per dispatched request
type Recorder interface {
	Record(o metrics.Outcome)
}

// Config controls the permit pool and per-request deadline
type Config struct {
	MaxConcurrency    int
	RequestTimeout    time.Duration
	RequestsPerSecond float64 // 0 disables the rate ceiling
	Burst             int
}

// Validate checks the dispatcher configuration
func (c *Config) Validate() error {
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be greater than 0")
	}
	if c.MaxConcurrency > MaxConcurrencyLimit {
		return fmt.Errorf("max concurrency cannot exceed %d", MaxConcurrencyLimit)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout cannot be negative")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative")
	}
	return nil
}

// GetRequestTimeout returns the per-request deadline
func (c *Config) GetRequestTimeout() time.Duration {
	if c.RequestTimeout == 0 {
		return DefaultRequestTimeout
	}
	return c.RequestTimeout
}

// Request is one unit of work for the dispatcher
type Request struct {
	Method  string
	Path    string // path and query, relative to the transport base URL
	Headers http.Header
	Body    []byte
	Expect  []int // acceptable status codes
}

// Result is what the caller gets back after a dispatch
type Result struct {
	Status  int
	Payload []byte
	Outcome metrics.Outcome
}

// OK reports whether the request succeeded
func (r Result) OK() bool {
	return r.Outcome.Succeeded
}

// Dispatcher runs requests under a global concurrency ceiling. Every
// request gets exactly one attempt; failures are recorded, never retried.
type Dispatcher struct {
	transport Transport
	recorder  Recorder
	sem       *semaphore.Weighted
	limiter   *rate.Limiter
	config    Config
	logger    *zap.Logger

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	completed   atomic.Int64
}

// New creates a dispatcher. A nil logger disables logging.
func New(config Config, transport Transport, recorder Recorder, logger *zap.Logger) (*Dispatcher, error) {
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = DefaultMaxConcurrency
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dispatcher config: %w", err)
	}
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("recorder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		transport: transport,
		recorder:  recorder,
		sem:       semaphore.NewWeighted(int64(config.MaxConcurrency)),
		config:    config,
		logger:    logger.With(zap.String("component", "dispatcher")),
	}

	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}

	return d, nil
}

// Dispatch waits for a permit, performs one attempt, records the outcome
// and releases the permit. It only returns an error when ctx ends before
// an outcome could be produced.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrAbandoned, err)
		}
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrAbandoned, err)
	}
	defer d.sem.Release(1)

	d.enter()
	defer d.inFlight.Add(-1)

	callCtx, cancel := context.WithTimeout(ctx, d.config.GetRequestTimeout())
	defer cancel()

	start := time.Now()
	status, payload, err := d.transport.Execute(callCtx, req.Method, req.Path, req.Headers, req.Body)
	latency := time.Since(start)

	// the run is being torn down; drop the in-flight unit
	if ctx.Err() != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrAbandoned, ctx.Err())
	}

	outcome := metrics.Outcome{
		BucketKey: metrics.BucketKey(req.Method, req.Path),
		Status:    status,
		Latency:   latency,
		Timestamp: start,
	}

	switch {
	case err != nil:
		outcome.Status = 0
		outcome.FailureReason = TransportReason(err)
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			outcome.FailureReason = ReasonTimeout
		}
	case !req.expects(status):
		outcome.FailureReason = StatusReason(status)
	default:
		outcome.Succeeded = true
	}

	d.recorder.Record(outcome)
	d.completed.Add(1)

	if !outcome.Succeeded {
		d.logger.Debug("request failed",
			zap.String("bucket", outcome.BucketKey),
			zap.Int("status", status),
			zap.String("reason", outcome.FailureReason),
			zap.Duration("latency", latency),
			zap.Error(err))
	}

	return Result{
		Status:  outcome.Status,
		Payload: payload,
		Outcome: outcome,
	}, nil
}

// InFlight returns the number of requests currently holding a permit
func (d *Dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}

// MaxInFlight returns the highest concurrency observed so far
func (d *Dispatcher) MaxInFlight() int {
	return int(d.maxInFlight.Load())
}

// Completed returns the number of recorded outcomes
func (d *Dispatcher) Completed() int64 {
	return d.completed.Load()
}

// MaxConcurrency returns the permit pool size
func (d *Dispatcher) MaxConcurrency() int {
	return d.config.MaxConcurrency
}

func (d *Dispatcher) enter() {
	n := d.inFlight.Add(1)
	for {
		cur := d.maxInFlight.Load()
		if n <= cur || d.maxInFlight.CompareAndSwap(cur, n) {
			return
		}
	}
}

// expects reports whether status is acceptable; an empty set means 2xx
func (r Request) expects(status int) bool {
	if len(r.Expect) == 0 {
		return status >= 200 && status < 300
	}
	return slices.Contains(r.Expect, status)
}
