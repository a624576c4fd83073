package cli

import (
	"context"

	"go.uber.org/zap"

	"github.com/studiowebux/chirpload/internal/mock"
)

// MockOptions contains options for the mock target
type MockOptions struct {
	ConfigPath string // optional YAML/JSON mock config
	Host       string
	Port       int
	LatencyMs  int
	JitterMs   int
	FailRate   float64
	Seed       int64
	Log        LogOptions
}

// Mock serves the in-memory chirp API until ctx is cancelled
func Mock(ctx context.Context, opts MockOptions) error {
	logger, err := newLogger(opts.Log, nil)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg := &mock.Config{}
	if opts.ConfigPath != "" {
		cfg, err = mock.LoadConfig(opts.ConfigPath)
		if err != nil {
			return &ExitCodeError{Code: ExitError, Err: err}
		}
	}
	if opts.Host != "" {
		cfg.Host = opts.Host
	}
	if opts.Port != 0 {
		cfg.Port = opts.Port
	}
	if opts.LatencyMs != 0 {
		cfg.LatencyMs = opts.LatencyMs
	}
	if opts.JitterMs != 0 {
		cfg.JitterMs = opts.JitterMs
	}
	if opts.FailRate != 0 {
		cfg.FailureRate = opts.FailRate
	}
	if opts.Seed != 0 {
		cfg.Seed = opts.Seed
	}

	server := mock.NewServer(cfg, logger)
	if err := server.Start(); err != nil {
		return &ExitCodeError{Code: ExitError, Err: err}
	}

	<-ctx.Done()

	stats := server.Stats()
	logger.Info("mock server stopping",
		zap.Int("requests", stats.Requests),
		zap.Int("users", stats.Users),
		zap.Int("tweets", stats.Tweets))
	return server.Stop()
}
