package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// LatencySketch accumulates latency samples for one bucket and answers
// nearest-rank quantile queries. Samples are kept exactly; memory grows
// with the number of recorded requests.
type LatencySketch struct {
	mu      sync.Mutex
	samples []time.Duration
	sorted  bool
	total   time.Duration
}

// NewLatencySketch creates an empty sketch
func NewLatencySketch() *LatencySketch {
	return &LatencySketch{
		samples: make([]time.Duration, 0, 64),
		sorted:  true,
	}
}

// Record appends a latency sample
func (s *LatencySketch) Record(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.samples); n > 0 && d < s.samples[n-1] {
		s.sorted = false
	}
	s.samples = append(s.samples, d)
	s.total += d
}

// Count returns the number of recorded samples
func (s *LatencySketch) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// Quantile returns the sample at index floor(n*q), clamped to [0, n-1].
// An empty sketch returns 0 for every q.
func (s *LatencySketch) Quantile(q float64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.samples)
	if n == 0 {
		return 0
	}
	s.sortLocked()
	return s.samples[quantileIndex(n, q)]
}

// P50 returns the median
func (s *LatencySketch) P50() time.Duration {
	return s.Quantile(0.50)
}

// P95 returns the 95th percentile
func (s *LatencySketch) P95() time.Duration {
	return s.Quantile(0.95)
}

// P99 returns the 99th percentile
func (s *LatencySketch) P99() time.Duration {
	return s.Quantile(0.99)
}

// Min returns the smallest sample, or 0 if empty
func (s *LatencySketch) Min() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) == 0 {
		return 0
	}
	s.sortLocked()
	return s.samples[0]
}

// Max returns the largest sample, or 0 if empty
func (s *LatencySketch) Max() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) == 0 {
		return 0
	}
	s.sortLocked()
	return s.samples[len(s.samples)-1]
}

// Mean returns the arithmetic mean, or 0 if empty
func (s *LatencySketch) Mean() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) == 0 {
		return 0
	}
	return s.total / time.Duration(len(s.samples))
}

// sortLocked sorts samples in place; caller holds mu
func (s *LatencySketch) sortLocked() {
	if s.sorted {
		return
	}
	sort.Slice(s.samples, func(i, j int) bool {
		return s.samples[i] < s.samples[j]
	})
	s.sorted = true
}

func quantileIndex(n int, q float64) int {
	if math.IsNaN(q) || q <= 0 {
		return 0
	}
	if q >= 1 {
		return n - 1
	}
	idx := int(math.Floor(float64(n) * q))
	if idx > n-1 {
		idx = n - 1
	}
	return idx
}
