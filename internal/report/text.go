package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/studiowebux/chirpload/internal/metrics"
	"github.com/studiowebux/chirpload/internal/scenario"
)

// RenderText renders the full human-readable report
func RenderText(r Report) string {
	var b strings.Builder

	b.WriteString(styleTitle.Render("Chirp Load Test Results") + "\n")
	b.WriteString(styleSubtle.Render(fmt.Sprintf("target %s · %s", r.Target, r.State)) + "\n\n")

	writeSetup(&b, r)
	writeRuntime(&b, r)
	writeEndpoints(&b, r)
	writePhases(&b, r)
	writeFailures(&b, r)
	b.WriteString(renderVerdictPanel(r) + "\n")

	return b.String()
}

func writeSetup(b *strings.Builder, r Report) {
	setup := r.Snapshot.Phases[metrics.PhaseSetup]

	b.WriteString(styleHeading.Render("Setup Phase") + "\n")
	fmt.Fprintf(b, "  Requests:      %d\n", setup.Total)
	fmt.Fprintf(b, "  Success rate:  %s\n", rateStyle(setup.SuccessRate()).Render(fmt.Sprintf("%.1f%%", setup.SuccessRate())))
	fmt.Fprintf(b, "  p95:           %s\n", formatLatency(setup.P95))
	fmt.Fprintf(b, "  Users created: %d regular, %d celebrities, %d celebrity followers\n\n",
		r.Population.Regular, r.Population.Celebrities, r.Population.CelebrityFollowers)
}

func writeRuntime(b *strings.Builder, r Report) {
	rt := r.Snapshot.Phases[metrics.PhaseRuntime]

	b.WriteString(styleHeading.Render("Runtime Performance") + "\n")
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleSubtle).
		Headers("Metric", "Value")
	t.Row("Total requests", strconv.Itoa(rt.Total))
	t.Row("Duration", formatDuration(rt.Duration))
	t.Row("Throughput", fmt.Sprintf("%.1f req/s", rt.RequestsPerSecond()))
	t.Row("Success rate", fmt.Sprintf("%.1f%%", rt.SuccessRate()))
	t.Row("p50", formatLatency(rt.P50))
	t.Row("p95", formatLatency(rt.P95))
	t.Row("p99", formatLatency(rt.P99))
	b.WriteString(t.Render() + "\n\n")
}

func writeEndpoints(b *strings.Builder, r Report) {
	endpoints := r.Snapshot.PhaseEndpoints[metrics.PhaseRuntime]
	if len(endpoints) == 0 {
		return
	}

	b.WriteString(styleHeading.Render("Runtime Endpoints") + "\n")
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleSubtle).
		Headers("Endpoint", "Total", "OK", "Fail", "Success", "p50", "p95")

	for _, key := range metrics.SortedKeys(endpoints) {
		s := endpoints[key]
		t.Row(key,
			strconv.Itoa(s.Total),
			strconv.Itoa(s.Success),
			strconv.Itoa(s.Failed),
			fmt.Sprintf("%.1f%%", s.SuccessRate()),
			formatLatency(s.P50),
			formatLatency(s.P95))
	}
	b.WriteString(t.Render() + "\n\n")
}

func writePhases(b *strings.Builder, r Report) {
	if len(r.Phases) == 0 {
		return
	}
	b.WriteString(styleHeading.Render("Phases") + "\n")
	for _, p := range r.Phases {
		fmt.Fprintf(b, "  %-30s %-8s %6d tasks  %s\n", p.Name, p.Tag, p.Tasks, formatDuration(p.Elapsed))
	}
	b.WriteString("\n")
}

func writeFailures(b *strings.Builder, r Report) {
	failures := metrics.TopFailures(r.Snapshot.Endpoints, TopFailureCount)
	if len(failures) == 0 {
		return
	}
	b.WriteString(styleHeading.Render("Top Errors") + "\n")
	for _, f := range failures {
		fmt.Fprintf(b, "  %s → %s: %d\n", f.BucketKey, styleError.Render(f.Reason), f.Count)
	}
	b.WriteString("\n")
}

func renderVerdictPanel(r Report) string {
	v := r.Verdict

	var lines []string
	var border lipgloss.TerminalColor
	switch {
	case r.State == scenario.StateAborted:
		border = colorYellow
		lines = append(lines, styleWarning.Render("ABORTED"), "Run was interrupted; no verdict.")
	case v.Passed:
		border = colorGreen
		lines = append(lines, styleSuccess.Render("PASSED"))
	default:
		border = colorRed
		lines = append(lines, styleError.Render("FAILED"))
		for _, reason := range v.Reasons {
			lines = append(lines, "• "+reason.Message)
		}
	}

	if r.State != scenario.StateAborted {
		lines = append(lines, styleSubtle.Render(fmt.Sprintf(
			"error rate %.2f%% (max %.1f%%) · p95 %s (max %s)",
			v.ErrorRate, r.Thresholds.MaxErrorRatePercent,
			formatLatency(v.P95), formatLatency(r.Thresholds.MaxP95))))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}
