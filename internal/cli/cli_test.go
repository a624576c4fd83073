package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/studiowebux/chirpload/internal/config"
	"github.com/studiowebux/chirpload/internal/mock"
)

func smallConfig(host string) *config.Config {
	cfg := config.Default()
	cfg.Target.Host = host
	cfg.Users.Regular = 5
	cfg.Users.Celebrities = 1
	cfg.Users.CelebrityFollowerThreshold = 3
	cfg.Activity.TweetsPerUser = 2
	cfg.Activity.FollowsPerRegularUser = 2
	cfg.Activity.PaginationPageSize = 3
	cfg.Timing.DelayAfterWritesMs = 0
	cfg.Thresholds.MaxP95LatencyMs = 5000
	cfg.Concurrency.MaxConcurrentRequests = 8
	cfg.Seed = 7
	return cfg
}

func startMock(t *testing.T, cfg *mock.Config) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(mock.NewServer(cfg, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitPassed},
		{"verdict failed", &ExitCodeError{Code: ExitFailed}, ExitFailed},
		{"wrapped", errors.Join(errors.New("ctx"), &ExitCodeError{Code: ExitFailed}), ExitFailed},
		{"plain error", errors.New("boom"), ExitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLoadConfig_Layering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	doc := "target:\n  host: http://file-host\nusers:\n  regular: 4\nconcurrency:\n  max_concurrent_requests: 9\n"
	if err := os.WriteFile(path, []byte(doc), config.FilePermissions); err != nil {
		t.Fatal(err)
	}

	env := map[string]string{config.EnvHost: "http://env-host", config.EnvConcurrency: "11"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	regular := 2
	timeout := 750 * time.Millisecond
	cfg, err := LoadConfig(path, Overrides{Regular: &regular, Timeout: &timeout}, lookup)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Target.Host != "http://env-host" {
		t.Errorf("host = %q, env should beat the file", cfg.Target.Host)
	}
	if cfg.Concurrency.MaxConcurrentRequests != 11 {
		t.Errorf("concurrency = %d", cfg.Concurrency.MaxConcurrentRequests)
	}
	if cfg.Users.Regular != 2 {
		t.Errorf("regular = %d, flag should beat the file", cfg.Users.Regular)
	}
	if cfg.RequestTimeout() != timeout {
		t.Errorf("timeout = %v", cfg.RequestTimeout())
	}

	host := "http://flag-host"
	cfg, err = LoadConfig(path, Overrides{Host: &host}, lookup)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Target.Host != host {
		t.Errorf("host = %q, flag should beat env", cfg.Target.Host)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	host := "http://localhost:8080"
	negative := -5
	negativeTimeout := -time.Second

	tests := []struct {
		name      string
		overrides Overrides
		env       map[string]string
		wantErr   string
	}{
		{
			name:    "missing host",
			wantErr: "target.host is required",
		},
		{
			name:      "negative concurrency flag",
			overrides: Overrides{Host: &host, Concurrency: &negative},
			wantErr:   "concurrency.max_concurrent_requests cannot be negative",
		},
		{
			name:      "negative concurrency env",
			overrides: Overrides{Host: &host},
			env:       map[string]string{config.EnvConcurrency: "-3"},
			wantErr:   "concurrency.max_concurrent_requests cannot be negative",
		},
		{
			name:      "negative timeout flag",
			overrides: Overrides{Host: &host, Timeout: &negativeTimeout},
			wantErr:   "timing.request_timeout_ms cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := func(k string) (string, bool) {
				v, ok := tt.env[k]
				return v, ok
			}
			cfg, err := LoadConfig("", tt.overrides, lookup)
			if err == nil {
				t.Fatalf("LoadConfig() accepted config: concurrency=%d timeout=%dms",
					cfg.Concurrency.MaxConcurrentRequests, cfg.Timing.RequestTimeoutMs)
			}
			if !errors.Is(err, config.ErrInvalidConfig) {
				t.Errorf("error %v does not wrap ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadConfig() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_ZeroConcurrencyUsesDefault(t *testing.T) {
	host := "http://localhost:8080"
	zero := 0
	cfg, err := LoadConfig("", Overrides{Host: &host, Concurrency: &zero}, nil)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Concurrency.MaxConcurrentRequests != 50 {
		t.Errorf("concurrency = %d, want default 50", cfg.Concurrency.MaxConcurrentRequests)
	}
}

func TestRun_PassesAgainstMock(t *testing.T) {
	srv := startMock(t, &mock.Config{Seed: 1})
	journalPath := filepath.Join(t.TempDir(), "run.db")
	outPath := filepath.Join(t.TempDir(), "report.json")

	var stdout, stderr bytes.Buffer
	err := Run(context.Background(), RunOptions{
		Config:       smallConfig(srv.URL),
		Log:          LogOptions{Level: "warn"},
		MetricsAddr:  "127.0.0.1:0",
		ProgressAddr: "127.0.0.1:0",
		JournalPath:  journalPath,
		Format:       "json",
		OutPath:      outPath,
		Stdout:       &stdout,
		Stderr:       &stderr,
	})
	if err != nil {
		t.Fatalf("Run() error = %v\nstderr: %s", err, stderr.String())
	}

	var rep struct {
		State   string `json:"state"`
		Passed  bool   `json:"passed"`
		Runtime struct {
			Total int `json:"total"`
		} `json:"runtime"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &rep); err != nil {
		t.Fatalf("stdout is not a JSON report: %v\n%s", err, stdout.String())
	}
	if rep.State != "completed" || !rep.Passed || rep.Runtime.Total == 0 {
		t.Errorf("report = %+v", rep)
	}

	if _, err := os.Stat(journalPath); err != nil {
		t.Errorf("journal not written: %v", err)
	}
	if data, err := os.ReadFile(outPath); err != nil || !json.Valid(data) {
		t.Errorf("report file = %s, %v", data, err)
	}
}

func TestRun_FailedVerdict(t *testing.T) {
	srv := startMock(t, &mock.Config{FailureRate: 1, Seed: 1})

	var stdout bytes.Buffer
	err := Run(context.Background(), RunOptions{
		Config: smallConfig(srv.URL),
		Log:    LogOptions{Level: "error"},
		Stdout: &stdout,
		Stderr: &bytes.Buffer{},
	})
	if ExitCode(err) != ExitFailed {
		t.Fatalf("Run() error = %v, want verdict failure", err)
	}
	out := stdout.String()
	if !strings.Contains(out, "FAILED") || !strings.Contains(out, "HTTP 503") {
		t.Errorf("text report should explain the failure:\n%s", out)
	}
}

func TestRun_UnhealthyTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := Run(context.Background(), RunOptions{
		Config: smallConfig(srv.URL),
		Log:    LogOptions{Level: "error"},
		Stdout: &bytes.Buffer{},
		Stderr: &bytes.Buffer{},
	})
	if ExitCode(err) != ExitError {
		t.Fatalf("Run() error = %v, want exit code %d", err, ExitError)
	}
	if !strings.Contains(err.Error(), "not healthy") {
		t.Errorf("error = %v", err)
	}
}

func TestSmoke(t *testing.T) {
	srv := startMock(t, &mock.Config{})

	var stdout bytes.Buffer
	err := Smoke(context.Background(), SmokeOptions{
		Config: smallConfig(srv.URL),
		Log:    LogOptions{Level: "error"},
		Stdout: &stdout,
		Stderr: &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("Smoke() error = %v\n%s", err, stdout.String())
	}
	if !strings.Contains(stdout.String(), "13/13 smoke steps passed") {
		t.Errorf("smoke output:\n%s", stdout.String())
	}
}

func TestSmoke_FailingTarget(t *testing.T) {
	srv := startMock(t, &mock.Config{FailureRate: 1})

	err := Smoke(context.Background(), SmokeOptions{
		Config: smallConfig(srv.URL),
		Log:    LogOptions{Level: "error"},
		UserA:  "a",
		UserB:  "b",
		Stdout: &bytes.Buffer{},
		Stderr: &bytes.Buffer{},
	})
	if ExitCode(err) != ExitFailed {
		t.Fatalf("Smoke() error = %v, want exit code %d", err, ExitFailed)
	}
}

func TestValidate(t *testing.T) {
	var buf bytes.Buffer
	if err := Validate(&buf, smallConfig("http://chirp.test"), false); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Scenario Plan", "http://chirp.test", "p95 < 5000ms", "8 permits"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("validate output missing %q:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	if err := Validate(&buf, nil, true); err != nil {
		t.Fatal(err)
	}
	if !json.Valid(buf.Bytes()) {
		t.Error("schema output is not JSON")
	}
}
