package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/studiowebux/chirpload/internal/config"
	"github.com/studiowebux/chirpload/internal/logging"
)

// Exit codes
const (
	ExitPassed = 0
	ExitFailed = 1 // verdict failed or a smoke step failed
	ExitError  = 2 // bad configuration, unhealthy target or aborted run
)

// ExitCodeError carries the process exit code for an outcome. A nil Err
// means the outcome has already been reported and needs no message.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

// ExitCode maps an error returned by this package to a process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitPassed
	}
	var ec *ExitCodeError
	if errors.As(err, &ec) {
		return ec.Code
	}
	return ExitError
}

// Overrides are command-line values that win over the file and the
// environment. Nil fields are left alone.
type Overrides struct {
	Host        *string
	Concurrency *int
	RPS         *float64
	Regular     *int
	Celebrities *int
	Seed        *int64
	Timeout     *time.Duration
}

// Apply writes the set overrides into cfg
func (o Overrides) Apply(cfg *config.Config) {
	if o.Host != nil && *o.Host != "" {
		cfg.Target.Host = *o.Host
	}
	if o.Concurrency != nil {
		cfg.Concurrency.MaxConcurrentRequests = *o.Concurrency
	}
	if o.RPS != nil {
		cfg.Concurrency.RequestsPerSecond = *o.RPS
	}
	if o.Regular != nil {
		cfg.Users.Regular = *o.Regular
	}
	if o.Celebrities != nil {
		cfg.Users.Celebrities = *o.Celebrities
	}
	if o.Seed != nil {
		cfg.Seed = *o.Seed
	}
	if o.Timeout != nil {
		cfg.Timing.RequestTimeoutMs = int(*o.Timeout / time.Millisecond)
	}
}

// LoadConfig reads the scenario file, then layers the environment and
// the overrides on top, then validates the result.
func LoadConfig(path string, overrides Overrides, lookup func(string) (string, bool)) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if lookup != nil {
		if err := cfg.ApplyEnv(lookup); err != nil {
			return nil, err
		}
	}
	overrides.Apply(cfg)
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogOptions selects the logger
type LogOptions struct {
	Level  string
	Format string
}

func newLogger(opts LogOptions, w io.Writer) (*zap.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	logger, err := logging.NewWithWriter(w, opts.Level, opts.Format)
	if err != nil {
		return nil, &ExitCodeError{Code: ExitError, Err: err}
	}
	return logger, nil
}

// isTerminal checks if w is an interactive terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
