package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/studiowebux/chirpload/internal/config"
	"github.com/studiowebux/chirpload/internal/dispatch"
	"github.com/studiowebux/chirpload/internal/metrics"
	"github.com/studiowebux/chirpload/internal/report"
	"github.com/studiowebux/chirpload/internal/scenario"
)

// SmokeOptions contains options for a smoke walk-through
type SmokeOptions struct {
	Config *config.Config
	Log    LogOptions
	UserA  string // empty picks a fresh user
	UserB  string
	Stdout io.Writer
	Stderr io.Writer
}

// Smoke calls every endpoint once as two users and prints each step.
// It returns nil only when every step got an expected status.
func Smoke(ctx context.Context, opts SmokeOptions) error {
	cfg := opts.Config
	if cfg == nil {
		return &ExitCodeError{Code: ExitError, Err: fmt.Errorf("configuration is required")}
	}
	logger, err := newLogger(opts.Log, opts.Stderr)
	if err != nil {
		return err
	}
	defer logger.Sync()

	transport, err := dispatch.NewHTTPTransport(dispatch.HTTPConfig{
		BaseURL:        cfg.Target.Host,
		MaxConns:       1,
		RequestTimeout: cfg.RequestTimeout(),
		TLS:            &dispatch.TLSConfig{InsecureSkipVerify: cfg.Target.InsecureSkipVerify},
	})
	if err != nil {
		return &ExitCodeError{Code: ExitError, Err: err}
	}
	defer transport.Close()

	d, err := dispatch.New(dispatch.Config{MaxConcurrency: 1, RequestTimeout: cfg.RequestTimeout()}, transport, metrics.NewCollector(), logger)
	if err != nil {
		return &ExitCodeError{Code: ExitError, Err: err}
	}
	cursor, err := scenario.NewCursorExtractor(cfg.Pagination.CursorExpression)
	if err != nil {
		return &ExitCodeError{Code: ExitError, Err: err}
	}
	client := scenario.NewClient(d, &scenario.Pager{Cursor: cursor, MaxPages: cfg.Pagination.MaxPages})

	a, b := opts.UserA, opts.UserB
	if a == "" {
		a = "smoke-a-" + uuid.NewString()[:8]
	}
	if b == "" {
		b = "smoke-b-" + uuid.NewString()[:8]
	}
	fmt.Fprintf(opts.Stdout, "Smoke test against %s as %s and %s\n\n", cfg.Target.Host, a, b)

	steps, err := scenario.Smoke(ctx, client, scenario.SmokeOptions{UserA: a, UserB: b}, func(step scenario.SmokeStep) {
		fmt.Fprint(opts.Stdout, report.RenderSmokeStep(step))
	})
	if err != nil {
		return &ExitCodeError{Code: ExitError, Err: fmt.Errorf("smoke test interrupted: %w", err)}
	}

	passed := 0
	for _, s := range steps {
		if s.OK {
			passed++
		}
	}
	fmt.Fprintf(opts.Stdout, "\n%d/%d smoke steps passed\n", passed, len(steps))

	if !scenario.SmokePassed(steps) {
		return &ExitCodeError{Code: ExitFailed}
	}
	return nil
}
