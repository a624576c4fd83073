package scenario

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/studiowebux/chirpload/internal/metrics"
	"github.com/studiowebux/chirpload/internal/verdict"
)

var (
	// ErrHealthCheckFailed aborts a run before any load is generated
	ErrHealthCheckFailed = errors.New("health check failed")

	// ErrAborted is returned when the run was cancelled mid-phase
	ErrAborted = errors.New("run aborted")
)

// Task is one unit of phase work. It may dispatch several requests; it
// returns an error only when abandoned by ctx.
type Task func(ctx context.Context) error

// Phase is a named stage whose tasks all finish before the next stage
type Phase struct {
	Name        string
	Tag         metrics.Phase
	Build       func() []Task // materializes the task set when the phase starts
	SettleAfter time.Duration // pause after the barrier, with nothing in flight
}

// PhaseTiming records how long a finished phase took
type PhaseTiming struct {
	Name    string
	Tag     metrics.Phase
	Tasks   int
	Elapsed time.Duration
}

// Result is what a run leaves behind
type Result struct {
	State    State
	Snapshot metrics.Snapshot
	Verdict  verdict.Verdict
	Phases   []PhaseTiming
}

// Collector is the part of metrics.Collector the runner drives
type Collector interface {
	SetPhase(p metrics.Phase)
	CurrentPhase() metrics.Phase
	Start()
	Finish()
	Snapshot() metrics.Snapshot
}

// RunnerConfig wires a Runner
type RunnerConfig struct {
	Phases     []Phase
	Collector  Collector
	Probe      Prober // nil skips the health check
	Thresholds verdict.Thresholds
	Listener   Listener
	Logger     *zap.Logger
}

// Runner drives phases in order with a barrier after each one
type Runner struct {
	phases     []Phase
	collector  Collector
	probe      Prober
	thresholds verdict.Thresholds
	listener   Listener
	logger     *zap.Logger

	mu    sync.Mutex
	state State
	ran   bool

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner validates the configuration and creates a runner
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Collector == nil {
		return nil, fmt.Errorf("collector is required")
	}
	if len(cfg.Phases) == 0 {
		return nil, fmt.Errorf("at least one phase is required")
	}
	seenRuntime := false
	for i, p := range cfg.Phases {
		if p.Build == nil {
			return nil, fmt.Errorf("phase %d (%s) has no task builder", i+1, p.Name)
		}
		switch p.Tag {
		case metrics.PhaseRuntime:
			seenRuntime = true
		case metrics.PhaseSetup:
			if seenRuntime {
				return nil, fmt.Errorf("setup phase %q cannot follow a runtime phase", p.Name)
			}
		default:
			return nil, fmt.Errorf("phase %q has unknown tag %q", p.Name, p.Tag)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	listener := cfg.Listener
	if listener == nil {
		listener = Listeners(nil)
	}

	return &Runner{
		phases:     cfg.Phases,
		collector:  cfg.Collector,
		probe:      cfg.Probe,
		thresholds: cfg.Thresholds,
		listener:   listener,
		logger:     logger.With(zap.String("component", "runner")),
		state:      StateIdle,
		sleep:      sleepContext,
	}, nil
}

// State returns the current lifecycle state
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Run executes the scenario once. On a failed health check it returns
// ErrHealthCheckFailed and no result. On cancellation it returns the
// partial result with ErrAborted and no verdict.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	r.mu.Lock()
	if r.ran {
		r.mu.Unlock()
		return nil, fmt.Errorf("runner has already been used")
	}
	r.ran = true
	r.mu.Unlock()

	if r.probe != nil && !r.probe.Probe(ctx) {
		r.setState(StateAborted, "")
		return nil, ErrHealthCheckFailed
	}

	r.collector.SetPhase(metrics.PhaseSetup)
	r.collector.Start()
	r.setState(StateSetup, "")

	result := &Result{}

	for i, phase := range r.phases {
		if phase.Tag != r.collector.CurrentPhase() {
			r.logger.Info("switching phase tag",
				zap.String("from", string(r.collector.CurrentPhase())),
				zap.String("to", string(phase.Tag)))
			r.collector.SetPhase(phase.Tag)
		}

		timing, err := r.runPhase(ctx, i, phase)
		result.Phases = append(result.Phases, timing)
		if err != nil {
			return r.abort(result, err)
		}

		if phase.SettleAfter > 0 {
			r.setState(StateTransition, phase.Name)
			r.logger.Info("settling", zap.String("after", phase.Name), zap.Duration("delay", phase.SettleAfter))
			if err := r.sleep(ctx, phase.SettleAfter); err != nil {
				return r.abort(result, err)
			}
		}
	}

	r.collector.Finish()
	r.setState(StateCompleted, "")

	result.State = StateCompleted
	result.Snapshot = r.collector.Snapshot()
	runtime := result.Snapshot.Phases[metrics.PhaseRuntime]
	if runtime.Total == 0 {
		r.logger.Warn("no runtime requests were recorded; verdict is vacuous")
	}
	result.Verdict = verdict.Evaluate(runtime, r.thresholds)

	r.logger.Info("run completed",
		zap.Int("requests", result.Snapshot.Global.Total),
		zap.Bool("passed", result.Verdict.Passed),
		zap.Duration("elapsed", result.Snapshot.Duration()))

	return result, nil
}

// runPhase fans out every task and waits for all of them
func (r *Runner) runPhase(ctx context.Context, index int, phase Phase) (PhaseTiming, error) {
	if err := ctx.Err(); err != nil {
		return PhaseTiming{Name: phase.Name, Tag: phase.Tag}, err
	}

	tasks := phase.Build()
	info := PhaseInfo{Index: index, Name: phase.Name, Tag: phase.Tag, Total: len(tasks)}

	r.setState(StateRunning, phase.Name)
	r.listener.PhaseStarted(info)
	r.logger.Info("phase started",
		zap.Int("index", index+1),
		zap.String("phase", phase.Name),
		zap.String("tag", string(phase.Tag)),
		zap.Int("tasks", len(tasks)))

	start := time.Now()
	var completed atomic.Int64
	var g errgroup.Group

	for _, task := range tasks {
		g.Go(func() error {
			err := task(ctx)
			n := completed.Add(1)
			r.listener.TaskDone(info, int(n))
			return err
		})
	}

	err := g.Wait()
	elapsed := time.Since(start)
	timing := PhaseTiming{Name: phase.Name, Tag: phase.Tag, Tasks: len(tasks), Elapsed: elapsed}

	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return timing, err
	}

	r.listener.PhaseFinished(info, elapsed)
	r.logger.Info("phase finished",
		zap.String("phase", phase.Name),
		zap.Duration("elapsed", elapsed))

	return timing, nil
}

func (r *Runner) abort(result *Result, cause error) (*Result, error) {
	r.collector.Finish()
	r.setState(StateAborted, "")

	result.State = StateAborted
	result.Snapshot = r.collector.Snapshot()

	r.logger.Warn("run aborted", zap.Error(cause))
	return result, fmt.Errorf("%w: %v", ErrAborted, cause)
}

func (r *Runner) setState(s State, phase string) {
	r.mu.Lock()
	prev := r.state
	r.state = s
	r.mu.Unlock()

	r.logger.Debug("state transition",
		zap.String("from", prev.String()),
		zap.String("to", s.String()),
		zap.String("phase", phase))
	r.listener.StateChanged(s, phase)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
