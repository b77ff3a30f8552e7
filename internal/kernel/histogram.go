package kernel

import "sort"

// histogramBucketBoundsUs are the exponential bucket upper bounds in
// microseconds: 10, 100, 1e3, 1e4, 1e5, 1e6, 1e7,
// 1e8, plus an implicit overflow bucket above the last bound.
var histogramBucketBoundsUs = []int64{10, 100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000, 100_000_000}

// LatencyHistogram is a fixed-size exponential-bucket histogram over
// per-event dispatch latency. Input is recorded in integer ticks of
// 100ns (so dividing by 10 yields microseconds); buckets are
// preallocated arrays so Record is allocation-free on the hot path.
type LatencyHistogram struct {
	bounds  []int64
	counts  []uint64
	count   uint64
	sum     int64
	min     int64
	max     int64
	hasData bool
}

// NewLatencyHistogram constructs an empty histogram with the fixed
// exponential bucket bounds.
func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{
		bounds: histogramBucketBoundsUs,
		counts: make([]uint64, len(histogramBucketBoundsUs)+1), // +1 overflow
	}
}

// RecordTicks bins a raw elapsed-time sample given in ticks of 100ns.
// It is O(log B) in the number of buckets via binary search.
func (h *LatencyHistogram) RecordTicks(ticks int64) {
	us := ticks / 10
	h.record(us)
}

// record bins a microsecond sample.
func (h *LatencyHistogram) record(us int64) {
	idx := sort.Search(len(h.bounds), func(i int) bool { return h.bounds[i] >= us })
	h.counts[idx]++
	h.count++
	h.sum += us
	if !h.hasData || us < h.min {
		h.min = us
	}
	if !h.hasData || us > h.max {
		h.max = us
	}
	h.hasData = true
}

// Count returns the total number of recorded samples.
func (h *LatencyHistogram) Count() uint64 { return h.count }

// Sum returns the sum of all recorded samples in microseconds.
func (h *LatencyHistogram) Sum() int64 { return h.sum }

// Min returns the minimum recorded sample in microseconds, or 0 if empty.
func (h *LatencyHistogram) Min() int64 { return h.min }

// Max returns the maximum recorded sample in microseconds, or 0 if empty.
func (h *LatencyHistogram) Max() int64 { return h.max }

// Mean returns the arithmetic mean in microseconds, or 0 if empty.
func (h *LatencyHistogram) Mean() float64 {
	if h.count == 0 {
		return 0
	}
	return float64(h.sum) / float64(h.count)
}

// Percentile walks buckets in ascending order accumulating counts until
// the running total crosses p*total, then returns that bucket's upper
// bound in microseconds (or the overflow bound scaled by 10 on
// saturation). p is in [0, 1].
func (h *LatencyHistogram) Percentile(p float64) int64 {
	if h.count == 0 {
		return 0
	}
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	target := p * float64(h.count)
	var running uint64
	for i, c := range h.counts {
		running += c
		if float64(running) >= target {
			if i < len(h.bounds) {
				return h.bounds[i]
			}
			return h.bounds[len(h.bounds)-1] * 10
		}
	}
	return h.bounds[len(h.bounds)-1] * 10
}
