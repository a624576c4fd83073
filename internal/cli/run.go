package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/studiowebux/chirpload/internal/config"
	"github.com/studiowebux/chirpload/internal/dispatch"
	"github.com/studiowebux/chirpload/internal/journal"
	"github.com/studiowebux/chirpload/internal/metrics"
	"github.com/studiowebux/chirpload/internal/progress"
	"github.com/studiowebux/chirpload/internal/report"
	"github.com/studiowebux/chirpload/internal/scenario"
	"github.com/studiowebux/chirpload/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// RunOptions contains options for a load run
type RunOptions struct {
	Config       *config.Config
	Log          LogOptions
	MetricsAddr  string // serve Prometheus metrics while running
	ProgressAddr string // serve the websocket progress stream while running
	JournalPath  string // sqlite export of every outcome
	Format       string // text or json
	OutPath      string // also write the report here
	NoTUI        bool
	Stdout       io.Writer
	Stderr       io.Writer
}

// Run executes the full scenario against cfg.Target.Host and prints the
// report. The returned error maps to the exit code through ExitCode: nil
// when the verdict passed.
func Run(ctx context.Context, opts RunOptions) error {
	cfg := opts.Config
	if cfg == nil {
		return &ExitCodeError{Code: ExitError, Err: errors.New("configuration is required")}
	}

	tui := !opts.NoTUI && opts.Format != report.FormatJSON && isTerminal(opts.Stdout)
	logOut := opts.Stderr
	if tui {
		// the progress view owns the terminal
		logOut = io.Discard
	}
	logger, err := newLogger(opts.Log, logOut)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if opts.Format != report.FormatJSON {
		fmt.Fprintln(opts.Stdout, report.RenderPlan(cfg.Target.Host, cfg.Settings()))
	}

	transport, err := dispatch.NewHTTPTransport(dispatch.HTTPConfig{
		BaseURL:        cfg.Target.Host,
		MaxConns:       cfg.Concurrency.MaxConcurrentRequests,
		RequestTimeout: cfg.RequestTimeout(),
		TLS:            &dispatch.TLSConfig{InsecureSkipVerify: cfg.Target.InsecureSkipVerify},
	})
	if err != nil {
		return &ExitCodeError{Code: ExitError, Err: err}
	}
	defer transport.Close()

	var dispatcher atomic.Pointer[dispatch.Dispatcher]
	inFlight := func() int {
		if d := dispatcher.Load(); d != nil {
			return d.InFlight()
		}
		return 0
	}

	var observers []metrics.Observer
	var listeners scenario.Listeners

	if opts.MetricsAddr != "" {
		exporter := telemetry.NewExporter(inFlight)
		srv, err := telemetry.Serve(opts.MetricsAddr, exporter, logger)
		if err != nil {
			return &ExitCodeError{Code: ExitError, Err: err}
		}
		defer shutdown(srv.Shutdown)
		observers = append(observers, exporter)
		listeners = append(listeners, exporter)
	}

	var jrnl *journal.Journal
	if opts.JournalPath != "" {
		jrnl, err = journal.Open(opts.JournalPath, logger)
		if err != nil {
			return &ExitCodeError{Code: ExitError, Err: err}
		}
		defer jrnl.Close()
		observers = append(observers, jrnl)
	}

	if opts.ProgressAddr != "" {
		hub := progress.NewHub(logger)
		defer hub.Close()
		stop, err := serve(opts.ProgressAddr, hub.Handler(), logger)
		if err != nil {
			return &ExitCodeError{Code: ExitError, Err: err}
		}
		defer shutdown(stop)
		listeners = append(listeners, hub)
	}

	collector := metrics.NewCollector(observers...)
	d, err := dispatch.New(cfg.DispatchConfig(), transport, collector, logger)
	if err != nil {
		return &ExitCodeError{Code: ExitError, Err: err}
	}
	dispatcher.Store(d)

	cursor, err := scenario.NewCursorExtractor(cfg.Pagination.CursorExpression)
	if err != nil {
		return &ExitCodeError{Code: ExitError, Err: err}
	}
	client := scenario.NewClient(d, &scenario.Pager{Cursor: cursor, MaxPages: cfg.Pagination.MaxPages})
	workload := scenario.NewWorkload(client, cfg.Settings())
	phases := workload.Phases()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var tracker *progress.Tracker
	if tui {
		tracker = progress.NewTracker(len(phases), inFlight)
		listeners = append(listeners, tracker)
	} else {
		listeners = append(listeners, progress.NewLogListener(logger))
	}

	runner, err := scenario.NewRunner(scenario.RunnerConfig{
		Phases:     phases,
		Collector:  collector,
		Probe:      scenario.NewHTTPProbe(transport.Client(), cfg.Target.Host, cfg.Target.HealthEndpoint),
		Thresholds: cfg.VerdictThresholds(),
		Listener:   listeners,
		Logger:     logger,
	})
	if err != nil {
		return &ExitCodeError{Code: ExitError, Err: err}
	}

	if jrnl != nil {
		if err := jrnl.Begin(journal.RunInfo{
			Target:         cfg.Target.Host,
			Seed:           cfg.Seed,
			MaxConcurrency: cfg.Concurrency.MaxConcurrentRequests,
		}); err != nil {
			return &ExitCodeError{Code: ExitError, Err: err}
		}
	}

	var tuiDone sync.WaitGroup
	if tracker != nil {
		tuiDone.Add(1)
		go func() {
			defer tuiDone.Done()
			if err := progress.RunTUI(runCtx, tracker, cancel); err != nil {
				logger.Warn("progress view stopped", zap.Error(err))
			}
		}()
	}

	result, runErr := runner.Run(runCtx)
	tuiDone.Wait()

	if jrnl != nil {
		if err := jrnl.Finish(result); err != nil {
			logger.Error("failed to finish journal", zap.Error(err))
		} else {
			logger.Info("journal written", zap.String("path", opts.JournalPath), zap.Int("outcomes", jrnl.Written()))
		}
	}

	if errors.Is(runErr, scenario.ErrHealthCheckFailed) {
		return &ExitCodeError{Code: ExitError, Err: fmt.Errorf("target %s is not healthy: %w", cfg.Target.Host, runErr)}
	}
	if result == nil {
		return &ExitCodeError{Code: ExitError, Err: runErr}
	}

	rep := report.New(cfg.Target.Host, result, workload.Population(), cfg.VerdictThresholds())
	if err := report.Write(opts.Stdout, rep, opts.Format); err != nil {
		return &ExitCodeError{Code: ExitError, Err: err}
	}
	if opts.OutPath != "" {
		if err := report.WriteFile(opts.OutPath, rep, opts.Format); err != nil {
			return &ExitCodeError{Code: ExitError, Err: err}
		}
	}

	if runErr != nil {
		return &ExitCodeError{Code: ExitError, Err: runErr}
	}
	if !result.Verdict.Passed {
		return &ExitCodeError{Code: ExitFailed}
	}
	return nil
}

// serve runs handler on addr in the background and returns its shutdown
func serve(addr string, handler http.Handler, logger *zap.Logger) (func(context.Context) error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("progress server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving progress stream", zap.String("url", "ws://"+ln.Addr().String()+"/ws"))
	return srv.Shutdown, nil
}

func shutdown(stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = stop(ctx)
}
