package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/studiowebux/chirpload/internal/scenario"
)

// RenderSmokeStep formats one smoke step as a status line plus its payload
func RenderSmokeStep(step scenario.SmokeStep) string {
	var b strings.Builder

	mark := styleSuccess.Render("✓")
	if !step.OK {
		mark = styleError.Render("✗")
	}
	status := "---"
	if step.Status != 0 {
		status = fmt.Sprintf("%d", step.Status)
	}

	fmt.Fprintf(&b, "%s %s\n", mark, styleHeading.Render(step.Title))
	fmt.Fprintf(&b, "  %s %s → %s\n", step.Method, step.Path, status)
	if step.Reason != "" && !step.OK {
		fmt.Fprintf(&b, "  %s\n", styleError.Render(step.Reason))
	}
	if step.Payload != "" {
		fmt.Fprintf(&b, "  %s\n", styleSubtle.Render(step.Payload))
	}
	return b.String()
}

// RenderSmoke writes all steps followed by a pass count
func RenderSmoke(w io.Writer, steps []scenario.SmokeStep) error {
	passed := 0
	for _, step := range steps {
		if step.OK {
			passed++
		}
		if _, err := io.WriteString(w, RenderSmokeStep(step)); err != nil {
			return err
		}
	}

	style := styleSuccess
	if passed != len(steps) {
		style = styleError
	}
	_, err := fmt.Fprintf(w, "\n%s\n", style.Render(fmt.Sprintf("%d/%d smoke steps passed", passed, len(steps))))
	return err
}
