package kernel

import (
	"sort"

	"optbacktest/internal/simtypes"
)

// eventQueue is the kernel's exclusively-owned input queue: events bucketed
// by ts_ns, each bucket sorted by the deterministic tie-break (kind
// priority, then insertion order) once the run starts. Producers populate
// it through the Kernel's Add* methods (which call push) before Run; the
// queue is frozen once draining begins.
type eventQueue struct {
	buckets map[uint64][]simtypes.Event
	seq     uint64
	sorted  []uint64
	frozen  bool
}

func newEventQueue() *eventQueue {
	return &eventQueue{buckets: make(map[uint64][]simtypes.Event)}
}

// push enqueues an externally supplied event (pre-run), stamping it with
// the next insertion sequence number if it doesn't already carry one.
// Kernel-synthesised acks and fills never go through push: they are
// dispatched inline via dispatchCore and never re-enter the queue.
func (q *eventQueue) push(e simtypes.Event) {
	if e.Seq == 0 {
		q.seq++
		e.Seq = q.seq
	} else if e.Seq > q.seq {
		q.seq = e.Seq
	}
	q.buckets[e.TsNs] = append(q.buckets[e.TsNs], e)
	q.frozen = false
}

// nextSeq returns the next insertion sequence number, for synthesising new
// events (order acks, fills) during dispatch.
func (q *eventQueue) nextSeq() uint64 {
	q.seq++
	return q.seq
}

// freeze finalises the bucket key order and sorts each bucket by the
// deterministic tie-break. Idempotent.
func (q *eventQueue) freeze() {
	if q.frozen {
		return
	}
	q.sorted = q.sorted[:0]
	for k := range q.buckets {
		q.sorted = append(q.sorted, k)
	}
	sort.Slice(q.sorted, func(i, j int) bool { return q.sorted[i] < q.sorted[j] })
	for _, k := range q.sorted {
		bucket := q.buckets[k]
		sort.SliceStable(bucket, func(i, j int) bool {
			pi, pj := bucket[i].Kind.Priority(), bucket[j].Kind.Priority()
			if pi != pj {
				return pi < pj
			}
			return bucket[i].Seq < bucket[j].Seq
		})
		q.buckets[k] = bucket
	}
	q.frozen = true
}

// bucketKeys returns the ascending ts_ns keys once frozen.
func (q *eventQueue) bucketKeys() []uint64 {
	q.freeze()
	return q.sorted
}

// bucket returns the sorted events for one key.
func (q *eventQueue) bucket(key uint64) []simtypes.Event {
	return q.buckets[key]
}
