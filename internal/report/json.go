package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/studiowebux/chirpload/internal/metrics"
)

type jsonReport struct {
	Target      string                 `json:"target"`
	State       string                 `json:"state"`
	Passed      bool                   `json:"passed"`
	Reasons     []string               `json:"reasons"`
	Thresholds  jsonThresholds         `json:"thresholds"`
	Population  jsonPopulation         `json:"population"`
	DurationMs  float64                `json:"duration_ms"`
	Global      jsonSummary            `json:"global"`
	Setup       jsonSummary            `json:"setup"`
	Runtime     jsonSummary            `json:"runtime"`
	Endpoints   map[string]jsonSummary `json:"endpoints"`
	Phases      []jsonPhase            `json:"phases"`
	TopFailures []jsonFailure          `json:"top_failures"`
}

type jsonFailure struct {
	Endpoint string `json:"endpoint"`
	Reason   string `json:"reason"`
	Count    int    `json:"count"`
}

type jsonThresholds struct {
	MaxErrorRatePercent float64 `json:"max_error_rate_percent"`
	MaxP95Ms            float64 `json:"max_p95_latency_ms"`
}

type jsonPopulation struct {
	Regular            int `json:"regular"`
	Celebrities        int `json:"celebrities"`
	CelebrityFollowers int `json:"celebrity_followers"`
}

type jsonSummary struct {
	Total          int            `json:"total"`
	Success        int            `json:"success"`
	Failed         int            `json:"failed"`
	SuccessRate    float64        `json:"success_rate"`
	RPS            float64        `json:"rps,omitempty"`
	MinMs          float64        `json:"min_ms"`
	MeanMs         float64        `json:"mean_ms"`
	P50Ms          float64        `json:"p50_ms"`
	P95Ms          float64        `json:"p95_ms"`
	P99Ms          float64        `json:"p99_ms"`
	MaxMs          float64        `json:"max_ms"`
	DurationMs     float64        `json:"duration_ms,omitempty"`
	FailureReasons map[string]int `json:"failure_reasons,omitempty"`
}

type jsonPhase struct {
	Name      string  `json:"name"`
	Tag       string  `json:"tag"`
	Tasks     int     `json:"tasks"`
	ElapsedMs float64 `json:"elapsed_ms"`
}

// WriteJSON writes the report as indented JSON, latencies in milliseconds
func WriteJSON(w io.Writer, r Report) error {
	out := jsonReport{
		Target:  r.Target,
		State:   r.State.String(),
		Passed:  r.Verdict.Passed,
		Reasons: make([]string, 0, len(r.Verdict.Reasons)),
		Thresholds: jsonThresholds{
			MaxErrorRatePercent: r.Thresholds.MaxErrorRatePercent,
			MaxP95Ms:            ms(r.Thresholds.MaxP95),
		},
		Population: jsonPopulation{
			Regular:            r.Population.Regular,
			Celebrities:        r.Population.Celebrities,
			CelebrityFollowers: r.Population.CelebrityFollowers,
		},
		DurationMs:  ms(r.Snapshot.Duration()),
		Global:      toJSONSummary(r.Snapshot.Global),
		Setup:       toJSONSummary(r.Snapshot.Phases[metrics.PhaseSetup]),
		Runtime:     toJSONSummary(r.Snapshot.Phases[metrics.PhaseRuntime]),
		Endpoints:   make(map[string]jsonSummary, len(r.Snapshot.Endpoints)),
		Phases:      make([]jsonPhase, 0, len(r.Phases)),
		TopFailures: []jsonFailure{},
	}

	for _, reason := range r.Verdict.Reasons {
		out.Reasons = append(out.Reasons, reason.Message)
	}
	for _, f := range metrics.TopFailures(r.Snapshot.Endpoints, TopFailureCount) {
		out.TopFailures = append(out.TopFailures, jsonFailure{Endpoint: f.BucketKey, Reason: f.Reason, Count: f.Count})
	}
	for key, s := range r.Snapshot.Endpoints {
		out.Endpoints[key] = toJSONSummary(s)
	}
	for _, p := range r.Phases {
		out.Phases = append(out.Phases, jsonPhase{
			Name:      p.Name,
			Tag:       string(p.Tag),
			Tasks:     p.Tasks,
			ElapsedMs: ms(p.Elapsed),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func toJSONSummary(s metrics.Summary) jsonSummary {
	return jsonSummary{
		Total:          s.Total,
		Success:        s.Success,
		Failed:         s.Failed,
		SuccessRate:    s.SuccessRate(),
		RPS:            s.RequestsPerSecond(),
		MinMs:          ms(s.Min),
		MeanMs:         ms(s.Mean),
		P50Ms:          ms(s.P50),
		P95Ms:          ms(s.P95),
		P99Ms:          ms(s.P99),
		MaxMs:          ms(s.Max),
		DurationMs:     ms(s.Duration),
		FailureReasons: s.FailureReasons,
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
