// Package verdict judges runtime traffic against latency and error-rate SLOs.
package verdict

import (
	"fmt"
	"time"

	"github.com/studiowebux/chirpload/internal/metrics"
)

// Metric names used in reasons
const (
	MetricErrorRate = "error_rate_percent"
	MetricP95       = "p95_latency"
)

// Thresholds are the SLOs a run must meet
type Thresholds struct {
	MaxErrorRatePercent float64
	MaxP95              time.Duration
}

// Reason describes one violated threshold
type Reason struct {
	Metric    string
	Measured  float64 // percent for error rate, milliseconds for latency
	Threshold float64
	Message   string
}

// Verdict is the pass/fail outcome of a run
type Verdict struct {
	Passed    bool
	ErrorRate float64
	P95       time.Duration
	Requests  int
	Reasons   []Reason
}

// Evaluate compares runtime aggregates against thresholds. The error rate
// may equal its limit; p95 must stay strictly below its limit. Every
// violated condition is reported.
func Evaluate(runtime metrics.Summary, t Thresholds) Verdict {
	v := Verdict{
		ErrorRate: runtime.ErrorRate(),
		P95:       runtime.P95,
		Requests:  runtime.Total,
	}

	if v.ErrorRate > t.MaxErrorRatePercent {
		v.Reasons = append(v.Reasons, Reason{
			Metric:    MetricErrorRate,
			Measured:  v.ErrorRate,
			Threshold: t.MaxErrorRatePercent,
			Message:   fmt.Sprintf("error rate %.1f%% > %.1f%%", v.ErrorRate, t.MaxErrorRatePercent),
		})
	}

	if v.P95 >= t.MaxP95 {
		v.Reasons = append(v.Reasons, Reason{
			Metric:    MetricP95,
			Measured:  milliseconds(v.P95),
			Threshold: milliseconds(t.MaxP95),
			Message:   fmt.Sprintf("p95 %.0fms >= %.0fms", milliseconds(v.P95), milliseconds(t.MaxP95)),
		})
	}

	v.Passed = len(v.Reasons) == 0
	return v
}

// Summary returns a one-line description of the verdict
func (v Verdict) Summary() string {
	if v.Passed {
		return fmt.Sprintf("PASSED: runtime %.1f%% success, p95 %.0fms", 100-v.ErrorRate, milliseconds(v.P95))
	}
	msg := "FAILED:"
	for i, r := range v.Reasons {
		if i > 0 {
			msg += ","
		}
		msg += " " + r.Message
	}
	return msg
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
