package metrics

import (
	"sync/atomic"
	"time"
)

// HistogramBuckets is the fixed bucket count of every latency histogram.
const HistogramBuckets = 8

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

type histogram struct {
	buckets [HistogramBuckets]uint64
}

// Set is a fixed-size group of counters addressed by dense integer ids, with
// a latency histogram for each id listed in latencyIDs.
type Set struct {
	counters   []paddedCounter
	histograms map[int]*histogram
}

// New allocates a Set of size counters.
func New(size int, latencyIDs ...int) *Set {
	s := &Set{
		counters:   make([]paddedCounter, size),
		histograms: make(map[int]*histogram, len(latencyIDs)),
	}
	for _, id := range latencyIDs {
		if id >= 0 && id < size {
			s.histograms[id] = &histogram{}
		}
	}
	return s
}

// Inc adds one to counter id. Out-of-range ids are ignored.
func (s *Set) Inc(id int) {
	if s == nil || id < 0 || id >= len(s.counters) {
		return
	}
	atomic.AddUint64(&s.counters[id].value, 1)
}

// Observe records d in the histogram for id, if it has one.
func (s *Set) Observe(id int, d time.Duration) {
	if s == nil {
		return
	}
	h, ok := s.histograms[id]
	if !ok {
		return
	}
	atomic.AddUint64(&h.buckets[BucketIndex(d)], 1)
}

// Value returns the current value of counter id.
func (s *Set) Value(id int) uint64 {
	if s == nil || id < 0 || id >= len(s.counters) {
		return 0
	}
	return atomic.LoadUint64(&s.counters[id].value)
}

// Len reports the number of counters.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.counters)
}

// Buckets returns a copy of the non-cumulative histogram for id, or nil.
func (s *Set) Buckets(id int) []uint64 {
	if s == nil {
		return nil
	}
	h, ok := s.histograms[id]
	if !ok {
		return nil
	}
	out := make([]uint64, HistogramBuckets)
	for i := range out {
		out[i] = atomic.LoadUint64(&h.buckets[i])
	}
	return out
}

// BucketIndex maps a latency to its bucket: <=5ms, 10, 25, 50, 100, 250,
// 500 and +Inf.
func BucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
