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

// RenderPlan previews the phases a configuration would run
func RenderPlan(target string, s scenario.Settings) string {
	plan := scenario.PlanTotals(s)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleSubtle).
		Headers("Phase", "Tag", "Requests")
	for _, p := range plan {
		t.Row(p.Name, string(p.Tag), strconv.Itoa(p.Ops))
	}

	var b strings.Builder
	b.WriteString(styleTitle.Render("Scenario Plan") + "\n")
	b.WriteString(styleSubtle.Render("target "+target) + "\n\n")
	fmt.Fprintf(&b, "  Users: %d regular, %d celebrities (%d followers each)\n",
		s.RegularUsers, s.Celebrities, s.CelebrityFollowerThreshold)
	fmt.Fprintf(&b, "  Seed:  %d\n\n", s.Seed)
	b.WriteString(t.Render() + "\n")
	fmt.Fprintf(&b, "  Setup requests:   %d\n", scenario.SumOps(plan, metrics.PhaseSetup))
	fmt.Fprintf(&b, "  Runtime requests: %d\n", scenario.SumOps(plan, metrics.PhaseRuntime))
	return b.String()
}
