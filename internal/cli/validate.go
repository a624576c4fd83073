package cli

import (
	"fmt"
	"io"

	"github.com/studiowebux/chirpload/internal/config"
	"github.com/studiowebux/chirpload/internal/report"
)

// Validate prints the plan a configuration would run. Loading and
// validation happen in LoadConfig; a config that reaches here is valid.
func Validate(w io.Writer, cfg *config.Config, showSchema bool) error {
	if showSchema {
		_, err := w.Write(config.SchemaDocument())
		return err
	}
	fmt.Fprintln(w, report.RenderPlan(cfg.Target.Host, cfg.Settings()))
	fmt.Fprintf(w, "Thresholds: error rate <= %.1f%%, p95 < %.0fms\n",
		cfg.Thresholds.MaxErrorRatePercent, cfg.Thresholds.MaxP95LatencyMs)
	fmt.Fprintf(w, "Concurrency: %d permits", cfg.Concurrency.MaxConcurrentRequests)
	if cfg.Concurrency.RequestsPerSecond > 0 {
		fmt.Fprintf(w, ", %.1f req/s ceiling", cfg.Concurrency.RequestsPerSecond)
	}
	fmt.Fprintln(w)
	return nil
}
