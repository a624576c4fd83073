package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmespath/go-jmespath"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/studiowebux/chirpload/internal/dispatch"
	"github.com/studiowebux/chirpload/internal/scenario"
	"github.com/studiowebux/chirpload/internal/verdict"
)

const (
	// FilePermissions is the default permission mode for regular files (read/write for owner, read for others)
	FilePermissions = 0644
	// DirPermissions is the default permission mode for directories (rwxr-xr-x)
	DirPermissions = 0755
)

// Environment variables consulted by ApplyEnv
const (
	EnvHost        = "CHIRPLOAD_HOST"
	EnvConcurrency = "CHIRPLOAD_CONCURRENCY"
)

// ErrInvalidConfig wraps every configuration error
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the scenario file
type Config struct {
	Target      TargetConfig      `json:"target"`
	Users       UsersConfig       `json:"users"`
	Activity    ActivityConfig    `json:"activity"`
	Timing      TimingConfig      `json:"timing"`
	Thresholds  ThresholdsConfig  `json:"thresholds"`
	Concurrency ConcurrencyConfig `json:"concurrency"`
	Pagination  PaginationConfig  `json:"pagination"`
	Seed        int64             `json:"seed,omitempty"` // 0 picks a time-based seed
}

type TargetConfig struct {
	Host               string `json:"host"`
	HealthEndpoint     string `json:"health_endpoint"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify,omitempty"`
}

type UsersConfig struct {
	Regular                    int `json:"regular"`
	Celebrities                int `json:"celebrities"`
	CelebrityFollowerThreshold int `json:"celebrity_follower_threshold"`
}

type ActivityConfig struct {
	TweetsPerUser         int `json:"tweets_per_user"`
	TimelineReadsPerUser  int `json:"timeline_reads_per_user"`
	FollowsPerRegularUser int `json:"follows_per_regular_user"`
	UnfollowsPerUser      int `json:"unfollows_per_user"`
	PaginationPageSize    int `json:"pagination_page_size"`
	ProfilePageSize       int `json:"profile_page_size"`
	MixedRounds           int `json:"mixed_rounds"`
}

type TimingConfig struct {
	DelayAfterWritesMs int `json:"delay_after_writes_ms"`
	RequestTimeoutMs   int `json:"request_timeout_ms"`
}

type ThresholdsConfig struct {
	MaxErrorRatePercent float64 `json:"max_error_rate_percent"`
	MaxP95LatencyMs     float64 `json:"max_p95_latency_ms"`
}

type ConcurrencyConfig struct {
	MaxConcurrentRequests int     `json:"max_concurrent_requests"`
	RequestsPerSecond     float64 `json:"requests_per_second,omitempty"`
}

type PaginationConfig struct {
	CursorExpression string `json:"cursor_expression"`
	MaxPages         int    `json:"max_pages"`
}

// Default returns the configuration used when a key is absent
func Default() *Config {
	return &Config{
		Target: TargetConfig{
			HealthEndpoint: scenario.DefaultHealthEndpoint,
		},
		Users: UsersConfig{
			Regular:                    10,
			Celebrities:                0,
			CelebrityFollowerThreshold: scenario.DefaultCelebrityFollowerThreshold,
		},
		Activity: ActivityConfig{
			TweetsPerUser:         1,
			TimelineReadsPerUser:  1,
			FollowsPerRegularUser: 5,
			UnfollowsPerUser:      1,
			PaginationPageSize:    10,
			ProfilePageSize:       20,
			MixedRounds:           2,
		},
		Timing: TimingConfig{
			DelayAfterWritesMs: 1000,
			RequestTimeoutMs:   int(dispatch.DefaultRequestTimeout / time.Millisecond),
		},
		Thresholds: ThresholdsConfig{
			MaxErrorRatePercent: 5,
			MaxP95LatencyMs:     500,
		},
		Concurrency: ConcurrencyConfig{
			MaxConcurrentRequests: dispatch.DefaultMaxConcurrency,
		},
		Pagination: PaginationConfig{
			CursorExpression: scenario.DefaultCursorExpression,
			MaxPages:         scenario.DefaultMaxPages,
		},
	}
}

// Load reads a scenario file. YAML, JSON and JSONC are accepted, chosen by
// extension. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data, filepath.Ext(path))
}

// Parse decodes a scenario document over the defaults. Keys present in the
// document win, including explicit zeros.
func Parse(data []byte, ext string) (*Config, error) {
	raw, err := toJSON(data, ext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := validateSchema(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg := Default()
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.ApplyDefaults()

	return cfg, nil
}

// toJSON normalizes every supported format to plain JSON
func toJSON(data []byte, ext string) ([]byte, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
		if doc == nil {
			return []byte("{}"), nil
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert YAML config: %w", err)
		}
		return raw, nil
	case ".json", ".jsonc", "":
		raw := jsonc.ToJSON(data)
		if !json.Valid(raw) {
			return nil, fmt.Errorf("failed to parse JSON config")
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, .json or .jsonc)", ext)
	}
}

// ApplyDefaults fills settings left at zero. Negative values are kept so
// Validate can reject them.
func (c *Config) ApplyDefaults() {
	d := Default()
	if c.Target.HealthEndpoint == "" {
		c.Target.HealthEndpoint = d.Target.HealthEndpoint
	}
	if c.Users.CelebrityFollowerThreshold == 0 {
		c.Users.CelebrityFollowerThreshold = d.Users.CelebrityFollowerThreshold
	}
	if c.Activity.PaginationPageSize == 0 {
		c.Activity.PaginationPageSize = d.Activity.PaginationPageSize
	}
	if c.Activity.ProfilePageSize == 0 {
		c.Activity.ProfilePageSize = d.Activity.ProfilePageSize
	}
	if c.Timing.RequestTimeoutMs == 0 {
		c.Timing.RequestTimeoutMs = d.Timing.RequestTimeoutMs
	}
	if c.Concurrency.MaxConcurrentRequests == 0 {
		c.Concurrency.MaxConcurrentRequests = d.Concurrency.MaxConcurrentRequests
	}
	if c.Pagination.CursorExpression == "" {
		c.Pagination.CursorExpression = d.Pagination.CursorExpression
	}
	if c.Pagination.MaxPages == 0 {
		c.Pagination.MaxPages = d.Pagination.MaxPages
	}
}

// ApplyEnv overrides the host and concurrency from the environment.
// lookup is normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvHost); ok && v != "" {
		c.Target.Host = v
	}
	if v, ok := lookup(EnvConcurrency); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalidConfig, EnvConcurrency, v)
		}
		c.Concurrency.MaxConcurrentRequests = n
	}
	return nil
}

// Validate checks cross-field rules the schema cannot express
func (c *Config) Validate() error {
	var problems []string

	if c.Target.Host == "" {
		problems = append(problems, "target.host is required")
	} else if u, err := url.Parse(c.Target.Host); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Sprintf("target.host must be an absolute http(s) URL, got %q", c.Target.Host))
	}

	counts := map[string]int{
		"users.regular":                       c.Users.Regular,
		"users.celebrities":                   c.Users.Celebrities,
		"activity.tweets_per_user":            c.Activity.TweetsPerUser,
		"activity.timeline_reads_per_user":    c.Activity.TimelineReadsPerUser,
		"activity.follows_per_regular_user":   c.Activity.FollowsPerRegularUser,
		"activity.unfollows_per_user":         c.Activity.UnfollowsPerUser,
		"activity.mixed_rounds":               c.Activity.MixedRounds,
		"timing.delay_after_writes_ms":        c.Timing.DelayAfterWritesMs,
		"timing.request_timeout_ms":           c.Timing.RequestTimeoutMs,
		"users.celebrity_follower_threshold":  c.Users.CelebrityFollowerThreshold,
		"activity.pagination_page_size":       c.Activity.PaginationPageSize,
		"activity.profile_page_size":          c.Activity.ProfilePageSize,
		"concurrency.max_concurrent_requests": c.Concurrency.MaxConcurrentRequests,
		"pagination.max_pages":                c.Pagination.MaxPages,
	}
	for _, key := range sortedKeys(counts) {
		if counts[key] < 0 {
			problems = append(problems, fmt.Sprintf("%s cannot be negative", key))
		}
	}
	if c.Users.Regular+c.Users.Celebrities == 0 {
		problems = append(problems, "at least one regular user or celebrity is required")
	}

	if c.Thresholds.MaxErrorRatePercent < 0 || c.Thresholds.MaxErrorRatePercent > 100 {
		problems = append(problems, "thresholds.max_error_rate_percent must be between 0 and 100")
	}
	if c.Thresholds.MaxP95LatencyMs <= 0 {
		problems = append(problems, "thresholds.max_p95_latency_ms must be greater than 0")
	}

	dc := c.DispatchConfig()
	if err := dc.Validate(); err != nil {
		problems = append(problems, err.Error())
	}

	if _, err := jmespath.Compile(c.Pagination.CursorExpression); err != nil {
		problems = append(problems, fmt.Sprintf("pagination.cursor_expression is not valid JMESPath: %v", err))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Settings converts the file into workload settings
func (c *Config) Settings() scenario.Settings {
	return scenario.Settings{
		RegularUsers:               c.Users.Regular,
		Celebrities:                c.Users.Celebrities,
		CelebrityFollowerThreshold: c.Users.CelebrityFollowerThreshold,
		TweetsPerUser:              c.Activity.TweetsPerUser,
		TimelineReadsPerUser:       c.Activity.TimelineReadsPerUser,
		FollowsPerRegularUser:      c.Activity.FollowsPerRegularUser,
		UnfollowsPerUser:           c.Activity.UnfollowsPerUser,
		PageSize:                   c.Activity.PaginationPageSize,
		ProfilePageSize:            c.Activity.ProfilePageSize,
		MixedRounds:                c.Activity.MixedRounds,
		SettleDelay:                c.SettleDelay(),
		Seed:                       c.Seed,
	}
}

// DispatchConfig converts the concurrency and timing sections
func (c *Config) DispatchConfig() dispatch.Config {
	return dispatch.Config{
		MaxConcurrency:    c.Concurrency.MaxConcurrentRequests,
		RequestTimeout:    c.RequestTimeout(),
		RequestsPerSecond: c.Concurrency.RequestsPerSecond,
	}
}

// VerdictThresholds converts the pass/fail limits
func (c *Config) VerdictThresholds() verdict.Thresholds {
	return verdict.Thresholds{
		MaxErrorRatePercent: c.Thresholds.MaxErrorRatePercent,
		MaxP95:              time.Duration(c.Thresholds.MaxP95LatencyMs * float64(time.Millisecond)),
	}
}

// SettleDelay is the pause after write-heavy phases
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Timing.DelayAfterWritesMs) * time.Millisecond
}

// RequestTimeout is the per-request deadline
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Timing.RequestTimeoutMs) * time.Millisecond
}

// ExpandPath expands a leading ~/ to the home directory
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, path[2:])
}

// EnsureParentDir creates the directory that will hold path
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, DirPermissions); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
