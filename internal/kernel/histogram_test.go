package kernel

import "testing"

func TestLatencyHistogramEmpty(t *testing.T) {
	h := NewLatencyHistogram()
	if h.Count() != 0 || h.Mean() != 0 || h.Percentile(0.5) != 0 {
		t.Fatalf("empty histogram should report zero everywhere, got count=%d mean=%v p50=%v", h.Count(), h.Mean(), h.Percentile(0.5))
	}
}

func TestLatencyHistogramRecordTicks(t *testing.T) {
	h := NewLatencyHistogram()
	// 10 ticks of 100ns = 1us; 1000 ticks = 100us.
	h.RecordTicks(10)
	h.RecordTicks(1000)

	if h.Count() != 2 {
		t.Fatalf("Count = %d, want 2", h.Count())
	}
	if h.Min() != 1 || h.Max() != 100 {
		t.Errorf("Min/Max = %d/%d, want 1/100", h.Min(), h.Max())
	}
	if got, want := h.Mean(), 50.5; got != want {
		t.Errorf("Mean = %v, want %v", got, want)
	}
}

func TestLatencyHistogramPercentileMonotonic(t *testing.T) {
	h := NewLatencyHistogram()
	for _, us := range []int64{5, 50, 500, 5_000, 50_000} {
		h.RecordTicks(us * 10)
	}

	p50 := h.Percentile(0.5)
	p99 := h.Percentile(0.99)
	if p99 < p50 {
		t.Errorf("p99 (%d) should be >= p50 (%d)", p99, p50)
	}
}

func TestLatencyHistogramOverflowBucket(t *testing.T) {
	h := NewLatencyHistogram()
	// Far beyond the largest bound (100_000_000us): lands in the overflow bucket.
	h.RecordTicks(1_000_000_000_000)

	if got, want := h.Percentile(1.0), histogramBucketBoundsUs[len(histogramBucketBoundsUs)-1]*10; got != want {
		t.Errorf("Percentile(1.0) = %d, want overflow sentinel %d", got, want)
	}
}
