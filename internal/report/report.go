// Package report renders run results for people (lipgloss text) and for
// machines (JSON).
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/studiowebux/chirpload/internal/config"
	"github.com/studiowebux/chirpload/internal/metrics"
	"github.com/studiowebux/chirpload/internal/scenario"
	"github.com/studiowebux/chirpload/internal/verdict"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// TopFailureCount is how many failure reasons the report lists
const TopFailureCount = 10

// Report is everything the renderers need about a finished run
type Report struct {
	Target     string
	State      scenario.State
	Population scenario.Population
	Snapshot   metrics.Snapshot
	Verdict    verdict.Verdict
	Thresholds verdict.Thresholds
	Phases     []scenario.PhaseTiming
}

// New assembles a report from a run result
func New(target string, result *scenario.Result, population scenario.Population, thresholds verdict.Thresholds) Report {
	r := Report{
		Target:     target,
		Population: population,
		Thresholds: thresholds,
	}
	if result != nil {
		r.State = result.State
		r.Snapshot = result.Snapshot
		r.Verdict = result.Verdict
		r.Phases = result.Phases
	}
	return r
}

// Write renders the report in format to w
func Write(w io.Writer, r Report, format string) error {
	switch strings.ToLower(format) {
	case "", FormatText:
		_, err := io.WriteString(w, RenderText(r))
		return err
	case FormatJSON:
		return WriteJSON(w, r)
	default:
		return fmt.Errorf("unknown report format %q (use text or json)", format)
	}
}

// WriteFile renders the report into path, creating parent directories
func WriteFile(path string, r Report, format string) error {
	path = config.ExpandPath(path)
	if err := config.EnsureParentDir(path); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, config.FilePermissions)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if err := Write(f, r, format); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}

func formatLatency(d time.Duration) string {
	return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
}
