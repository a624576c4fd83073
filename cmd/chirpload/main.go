package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/studiowebux/chirpload/internal/cli"
	"github.com/studiowebux/chirpload/internal/config"
	"github.com/studiowebux/chirpload/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		if msg := err.Error(); !isSilent(err) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
		}
		os.Exit(cli.ExitCode(err))
	}
}

func isSilent(err error) bool {
	var ec *cli.ExitCodeError
	return errors.As(err, &ec) && ec.Err == nil
}

var rootCmd = &cobra.Command{
	Use:   "chirpload",
	Short: "Load generator for the chirp social API",
	Long: `chirpload drives a chirp deployment through a fixed user-behaviour scenario
and judges the result against latency and error-rate thresholds.

The scenario runs eight phases with a barrier after each one:
  1-3  setup:   create users, fan out celebrity followers, build the social graph
  4-8  runtime: tweet, read timelines, check profiles, unfollow, mixed activity

Only runtime traffic counts toward the verdict. The process exits 0 when the
verdict passes, 1 when it fails and 2 when the run could not be judged.

Examples:
  chirpload run http://localhost:8080                  # Defaults: 10 users
  chirpload run -c scenario.yaml                       # Scenario file
  chirpload run -c scenario.yaml --concurrency 200     # Override a file value
  chirpload run http://staging --format json --out r.json
  chirpload smoke http://localhost:8080                # One call per endpoint
  chirpload validate -c scenario.yaml                  # Show the plan, send nothing
  chirpload mock --port 8080 --latency 20              # In-memory target`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run [host]",
	Short: "Run the load scenario and print the verdict",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, args)
		if err != nil {
			return err
		}
		return cli.Run(cmd.Context(), cli.RunOptions{
			Config:       cfg,
			Log:          logOptions(),
			MetricsAddr:  flagMetricsAddr,
			ProgressAddr: flagProgressAddr,
			JournalPath:  flagJournal,
			Format:       flagFormat,
			OutPath:      flagOut,
			NoTUI:        flagNoTUI,
			Stdout:       os.Stdout,
			Stderr:       os.Stderr,
		})
	},
}

var smokeCmd = &cobra.Command{
	Use:   "smoke [host]",
	Short: "Call every endpoint once as two users",
	Long: `Smoke walks two users through every endpoint in order: tweets, a mutual
follow, paginated tweets and timeline, followers, following and an unfollow.
Each step prints its status and the start of the response body.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, args)
		if err != nil {
			return err
		}
		return cli.Smoke(cmd.Context(), cli.SmokeOptions{
			Config: cfg,
			Log:    logOptions(),
			UserA:  flagUserA,
			UserB:  flagUserB,
			Stdout: os.Stdout,
			Stderr: os.Stderr,
		})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [host]",
	Short: "Check a scenario file and preview its plan",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagSchema {
			return cli.Validate(os.Stdout, nil, true)
		}
		cfg, err := loadConfig(cmd, args)
		if err != nil {
			return err
		}
		return cli.Validate(os.Stdout, cfg, false)
	},
}

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Serve an in-memory chirp API for rehearsals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Mock(cmd.Context(), cli.MockOptions{
			ConfigPath: flagMockConfig,
			Host:       flagMockHost,
			Port:       flagMockPort,
			LatencyMs:  flagMockLatency,
			JitterMs:   flagMockJitter,
			FailRate:   flagMockFailRate,
			Seed:       flagMockSeed,
			Log:        logOptions(),
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and check for a newer release",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("chirpload %s\n", version.Version)
		if !flagCheckUpdate {
			return nil
		}
		u, err := version.NewChecker().Check(cmd.Context(), version.Version)
		if err != nil {
			return fmt.Errorf("update check failed: %w", err)
		}
		if u.Available {
			fmt.Printf("A newer release is available: %s (%s)\n", u.Latest, u.URL)
		} else {
			fmt.Println("You are on the latest release")
		}
		return nil
	},
}

// Shared flags
var (
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
	flagTimeout   time.Duration
)

// Flags for run
var (
	flagConcurrency  int
	flagRPS          float64
	flagRegular      int
	flagCelebrities  int
	flagSeed         int64
	flagMetricsAddr  string
	flagProgressAddr string
	flagJournal      string
	flagFormat       string
	flagOut          string
	flagNoTUI        bool
)

// Flags for smoke
var (
	flagUserA string
	flagUserB string
)

// Flags for validate
var flagSchema bool

// Flags for mock
var (
	flagMockConfig   string
	flagMockHost     string
	flagMockPort     int
	flagMockLatency  int
	flagMockJitter   int
	flagMockFailRate float64
	flagMockSeed     int64
)

// Flags for version
var flagCheckUpdate bool

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Scenario file (.yaml, .yml, .json, .jsonc)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug/info/warn/error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "console", "Log format (console/json)")

	runCmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "Maximum requests in flight")
	runCmd.Flags().Float64Var(&flagRPS, "rps", 0, "Requests per second ceiling (0 = unlimited)")
	runCmd.Flags().IntVar(&flagRegular, "regular", 0, "Number of regular users")
	runCmd.Flags().IntVar(&flagCelebrities, "celebrities", 0, "Number of celebrity users")
	runCmd.Flags().Int64Var(&flagSeed, "seed", 0, "Random seed for user selection")
	runCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "Per-request timeout")
	runCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	runCmd.Flags().StringVar(&flagProgressAddr, "progress-addr", "", "Serve a websocket progress stream (/ws) on this address")
	runCmd.Flags().StringVar(&flagJournal, "journal", "", "Write every outcome to this sqlite file")
	runCmd.Flags().StringVarP(&flagFormat, "format", "f", "text", "Report format (text/json)")
	runCmd.Flags().StringVarP(&flagOut, "out", "o", "", "Also write the report to this file")
	runCmd.Flags().BoolVar(&flagNoTUI, "no-tui", false, "Log progress instead of drawing it")

	smokeCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "Per-request timeout")
	smokeCmd.Flags().StringVar(&flagUserA, "user-a", "", "First user id (default: fresh id)")
	smokeCmd.Flags().StringVar(&flagUserB, "user-b", "", "Second user id (default: fresh id)")

	validateCmd.Flags().BoolVar(&flagSchema, "schema", false, "Print the scenario JSON Schema and exit")

	mockCmd.Flags().StringVar(&flagMockConfig, "mock-config", "", "Mock configuration file (.yaml, .yml, .json)")
	mockCmd.Flags().StringVar(&flagMockHost, "host", "", "Listen host (default localhost)")
	mockCmd.Flags().IntVarP(&flagMockPort, "port", "p", 0, "Listen port (default 8080)")
	mockCmd.Flags().IntVar(&flagMockLatency, "latency", 0, "Added latency per request in ms")
	mockCmd.Flags().IntVar(&flagMockJitter, "jitter", 0, "Random extra latency up to this many ms")
	mockCmd.Flags().Float64Var(&flagMockFailRate, "fail-rate", 0, "Fraction of requests answered with 503")
	mockCmd.Flags().Int64Var(&flagMockSeed, "seed", 0, "Random seed for latency and failures")

	versionCmd.Flags().BoolVar(&flagCheckUpdate, "check", false, "Look up the latest release")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(smokeCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(mockCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig layers file, environment, then the flags the user set
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	var o cli.Overrides
	if len(args) > 0 {
		o.Host = &args[0]
	}

	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		o.Concurrency = &flagConcurrency
	}
	if flags.Changed("rps") {
		o.RPS = &flagRPS
	}
	if flags.Changed("regular") {
		o.Regular = &flagRegular
	}
	if flags.Changed("celebrities") {
		o.Celebrities = &flagCelebrities
	}
	if flags.Changed("seed") {
		o.Seed = &flagSeed
	}
	if flags.Changed("timeout") {
		o.Timeout = &flagTimeout
	}

	cfg, err := cli.LoadConfig(flagConfig, o, os.LookupEnv)
	if err != nil {
		return nil, &cli.ExitCodeError{Code: cli.ExitError, Err: err}
	}
	return cfg, nil
}

func logOptions() cli.LogOptions {
	return cli.LogOptions{Level: flagLogLevel, Format: flagLogFormat}
}
