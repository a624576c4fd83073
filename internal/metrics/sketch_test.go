package metrics

import (
	"math/rand"
	"sync"
	"testing"
	"time"
)

func TestLatencySketch_Empty(t *testing.T) {
	s := NewLatencySketch()

	for _, q := range []float64{0, 0.5, 0.95, 0.99, 1} {
		if got := s.Quantile(q); got != 0 {
			t.Errorf("Quantile(%v) on empty sketch = %v, want 0", q, got)
		}
	}
	if s.Count() != 0 {
		t.Errorf("Expected count 0, got %d", s.Count())
	}
	if s.Min() != 0 || s.Max() != 0 || s.Mean() != 0 {
		t.Errorf("Expected zero min/max/mean, got %v/%v/%v", s.Min(), s.Max(), s.Mean())
	}
}

func TestLatencySketch_NearestRankDown(t *testing.T) {
	s := NewLatencySketch()
	// record 1..20ms in reverse to exercise the lazy sort
	for i := 20; i >= 1; i-- {
		s.Record(time.Duration(i) * time.Millisecond)
	}

	tests := []struct {
		q    float64
		want time.Duration
	}{
		{0, 1 * time.Millisecond},
		{0.5, 11 * time.Millisecond},  // floor(20*0.5)=10
		{0.95, 20 * time.Millisecond}, // floor(20*0.95)=19
		{0.99, 20 * time.Millisecond}, // floor(19.8)=19
		{1, 20 * time.Millisecond},    // clamped
		{1.5, 20 * time.Millisecond},
		{-1, 1 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := s.Quantile(tt.q); got != tt.want {
			t.Errorf("Quantile(%v) = %v, want %v", tt.q, got, tt.want)
		}
	}

	if s.Mean() != 10500*time.Microsecond {
		t.Errorf("Expected mean 10.5ms, got %v", s.Mean())
	}
}

func TestLatencySketch_SingleSample(t *testing.T) {
	s := NewLatencySketch()
	s.Record(42 * time.Millisecond)

	for _, q := range []float64{0, 0.5, 0.99} {
		if got := s.Quantile(q); got != 42*time.Millisecond {
			t.Errorf("Quantile(%v) = %v, want 42ms", q, got)
		}
	}
}

func TestLatencySketch_QuantilesAreOrdered(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 50; round++ {
		s := NewLatencySketch()
		var max time.Duration
		n := 1 + rng.Intn(500)
		for i := 0; i < n; i++ {
			d := time.Duration(rng.Int63n(int64(2 * time.Second)))
			if d > max {
				max = d
			}
			s.Record(d)
		}

		q0, q50, q95, q99 := s.Quantile(0), s.P50(), s.P95(), s.P99()
		if !(q0 <= q50 && q50 <= q95 && q95 <= q99 && q99 <= max) {
			t.Fatalf("round %d: quantiles out of order: %v %v %v %v (max %v)", round, q0, q50, q95, q99, max)
		}
		if s.Max() != max {
			t.Fatalf("round %d: Max() = %v, want %v", round, s.Max(), max)
		}
	}
}

func TestLatencySketch_RecordAfterQuery(t *testing.T) {
	s := NewLatencySketch()
	s.Record(5 * time.Millisecond)
	s.Record(1 * time.Millisecond)

	if got := s.Max(); got != 5*time.Millisecond {
		t.Fatalf("Expected max 5ms, got %v", got)
	}

	s.Record(3 * time.Millisecond)
	if got := s.P50(); got != 3*time.Millisecond {
		t.Errorf("Expected p50 3ms after new sample, got %v", got)
	}
}

func TestLatencySketch_ConcurrentRecord(t *testing.T) {
	s := NewLatencySketch()
	var wg sync.WaitGroup

	for w := 0; w < 20; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Record(time.Duration(w*100+i) * time.Microsecond)
				if i%25 == 0 {
					_ = s.P95()
				}
			}
		}(w)
	}
	wg.Wait()

	if s.Count() != 2000 {
		t.Errorf("Expected 2000 samples, got %d", s.Count())
	}
}
