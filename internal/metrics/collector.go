package metrics

import (
	"sort"
	"sync"
	"time"
)

// Phase tags every outcome as setup traffic or scored runtime traffic
type Phase string

const (
	PhaseSetup   Phase = "setup"
	PhaseRuntime Phase = "runtime"
)

// Outcome is the recorded result of one dispatched request
type Outcome struct {
	BucketKey     string
	Status        int // 0 when the request never got a response
	Latency       time.Duration
	Succeeded     bool
	FailureReason string
	Timestamp     time.Time
}

// Observer receives every outcome after it has been aggregated
type Observer interface {
	OnOutcome(phase Phase, o Outcome)
}

// EndpointStats holds counters and latencies for one bucket.
// Total always equals Success + Failed.
type EndpointStats struct {
	Total          int
	Success        int
	Failed         int
	FailureReasons map[string]int
	Sketch         *LatencySketch
}

func newEndpointStats() *EndpointStats {
	return &EndpointStats{
		FailureReasons: make(map[string]int),
		Sketch:         NewLatencySketch(),
	}
}

func (e *EndpointStats) add(o Outcome) {
	e.Total++
	if o.Succeeded {
		e.Success++
	} else {
		e.Failed++
		reason := o.FailureReason
		if reason == "" {
			reason = "unknown"
		}
		e.FailureReasons[reason]++
	}
	e.Sketch.Record(o.Latency)
}

func (e *EndpointStats) summary() Summary {
	reasons := make(map[string]int, len(e.FailureReasons))
	for k, v := range e.FailureReasons {
		reasons[k] = v
	}
	return Summary{
		Total:          e.Total,
		Success:        e.Success,
		Failed:         e.Failed,
		FailureReasons: reasons,
		Min:            e.Sketch.Min(),
		Mean:           e.Sketch.Mean(),
		P50:            e.Sketch.P50(),
		P95:            e.Sketch.P95(),
		P99:            e.Sketch.P99(),
		Max:            e.Sketch.Max(),
	}
}

// Summary is a frozen, read-only view of an EndpointStats
type Summary struct {
	Total          int
	Success        int
	Failed         int
	FailureReasons map[string]int
	Min            time.Duration
	Mean           time.Duration
	P50            time.Duration
	P95            time.Duration
	P99            time.Duration
	Max            time.Duration
	Duration       time.Duration // wall time of the phase, zero for endpoints
}

// SuccessRate returns the success rate as a percentage
func (s Summary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Success) / float64(s.Total) * 100
}

// ErrorRate returns the failure rate as a percentage
func (s Summary) ErrorRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Failed) / float64(s.Total) * 100
}

// RequestsPerSecond returns throughput over Duration
func (s Summary) RequestsPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Total) / s.Duration.Seconds()
}

// Snapshot is the read-only view of a run handed to reporters
type Snapshot struct {
	StartedAt      time.Time
	FinishedAt     time.Time
	Global         Summary
	Phases         map[Phase]Summary
	Endpoints      map[string]Summary
	PhaseEndpoints map[Phase]map[string]Summary
}

// Duration returns the wall time of the whole run
func (s Snapshot) Duration() time.Duration {
	if s.FinishedAt.IsZero() || s.StartedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Collector aggregates outcomes per bucket, per phase and globally.
// Record is safe for concurrent use; SetPhase must only be called by the
// goroutine driving phase transitions, between phase barriers.
type Collector struct {
	mu             sync.Mutex
	phase          Phase
	global         *EndpointStats
	phases         map[Phase]*EndpointStats
	endpoints      map[string]*EndpointStats
	phaseEndpoints map[Phase]map[string]*EndpointStats
	phaseStart     map[Phase]time.Time
	phaseEnd       map[Phase]time.Time
	startedAt      time.Time
	finishedAt     time.Time
	observers      []Observer
	now            func() time.Time
}

// NewCollector creates a collector tagged with PhaseSetup
func NewCollector(observers ...Observer) *Collector {
	c := &Collector{
		phase:          PhaseSetup,
		global:         newEndpointStats(),
		phases:         make(map[Phase]*EndpointStats),
		endpoints:      make(map[string]*EndpointStats),
		phaseEndpoints: make(map[Phase]map[string]*EndpointStats),
		phaseStart:     make(map[Phase]time.Time),
		phaseEnd:       make(map[Phase]time.Time),
		now:            time.Now,
	}
	for _, o := range observers {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
	return c
}

// Start marks the beginning of the run and of the current phase
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.startedAt = now
	if _, ok := c.phaseStart[c.phase]; !ok {
		c.phaseStart[c.phase] = now
	}
}

// Finish marks the end of the run
func (c *Collector) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.finishedAt = now
	c.phaseEnd[c.phase] = now
}

// SetPhase switches the tag applied to subsequent outcomes. The tag is
// monotonic: once runtime has started, switching back to setup is ignored.
func (c *Collector) SetPhase(p Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p == c.phase {
		return
	}
	if c.phase == PhaseRuntime && p == PhaseSetup {
		return
	}
	now := c.now()
	c.phaseEnd[c.phase] = now
	c.phase = p
	c.phaseStart[p] = now
}

// CurrentPhase returns the active tag
func (c *Collector) CurrentPhase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Record aggregates one outcome under the active phase
func (c *Collector) Record(o Outcome) {
	c.mu.Lock()
	phase := c.phase

	c.global.add(o)

	ps, ok := c.phases[phase]
	if !ok {
		ps = newEndpointStats()
		c.phases[phase] = ps
	}
	ps.add(o)

	es, ok := c.endpoints[o.BucketKey]
	if !ok {
		es = newEndpointStats()
		c.endpoints[o.BucketKey] = es
	}
	es.add(o)

	pe, ok := c.phaseEndpoints[phase]
	if !ok {
		pe = make(map[string]*EndpointStats)
		c.phaseEndpoints[phase] = pe
	}
	pes, ok := pe[o.BucketKey]
	if !ok {
		pes = newEndpointStats()
		pe[o.BucketKey] = pes
	}
	pes.add(o)
	c.mu.Unlock()

	for _, obs := range c.observers {
		obs.OnOutcome(phase, o)
	}
}

// PhaseStats returns the aggregate for one phase
func (c *Collector) PhaseStats(p Phase) Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phaseSummaryLocked(p)
}

// GlobalStats returns the aggregate over all phases
func (c *Collector) GlobalStats() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.global.summary()
	if !c.startedAt.IsZero() {
		end := c.finishedAt
		if end.IsZero() {
			end = c.now()
		}
		s.Duration = end.Sub(c.startedAt)
	}
	return s
}

// EndpointStats returns per-bucket aggregates across all phases
func (c *Collector) EndpointStats() map[string]Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return summarize(c.endpoints)
}

// PhaseEndpointStats returns per-bucket aggregates for one phase
func (c *Collector) PhaseEndpointStats(p Phase) map[string]Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return summarize(c.phaseEndpoints[p])
}

// Snapshot freezes every view of the run. It may be called during the
// run for an approximate live view.
func (c *Collector) Snapshot() Snapshot {
	global := c.GlobalStats()

	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		StartedAt:      c.startedAt,
		FinishedAt:     c.finishedAt,
		Global:         global,
		Phases:         make(map[Phase]Summary, 2),
		Endpoints:      summarize(c.endpoints),
		PhaseEndpoints: make(map[Phase]map[string]Summary, 2),
	}
	for _, p := range []Phase{PhaseSetup, PhaseRuntime} {
		snap.Phases[p] = c.phaseSummaryLocked(p)
		snap.PhaseEndpoints[p] = summarize(c.phaseEndpoints[p])
	}
	return snap
}

func (c *Collector) phaseSummaryLocked(p Phase) Summary {
	var s Summary
	if ps, ok := c.phases[p]; ok {
		s = ps.summary()
	} else {
		s = Summary{FailureReasons: map[string]int{}}
	}

	start, ok := c.phaseStart[p]
	if !ok {
		return s
	}
	end, ok := c.phaseEnd[p]
	if !ok || end.Before(start) {
		end = c.now()
	}
	s.Duration = end.Sub(start)
	return s
}

func summarize(in map[string]*EndpointStats) map[string]Summary {
	out := make(map[string]Summary, len(in))
	for k, v := range in {
		out[k] = v.summary()
	}
	return out
}

// FailureCount is one "bucket → reason" pair and how often it occurred
type FailureCount struct {
	BucketKey string
	Reason    string
	Count     int
}

// TopFailures ranks failure reasons across buckets, most frequent first.
// Ties are broken by bucket key then reason so the order is stable.
func TopFailures(endpoints map[string]Summary, n int) []FailureCount {
	var all []FailureCount
	for key, s := range endpoints {
		for reason, count := range s.FailureReasons {
			all = append(all, FailureCount{BucketKey: key, Reason: reason, Count: count})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		if all[i].BucketKey != all[j].BucketKey {
			return all[i].BucketKey < all[j].BucketKey
		}
		return all[i].Reason < all[j].Reason
	})
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

// SortedKeys returns bucket keys in lexical order
func SortedKeys(m map[string]Summary) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
