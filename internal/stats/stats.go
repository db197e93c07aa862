// Package stats tracks per-service operational metrics: cache hit/miss
// counters, a sticky error counter with the last error message, and a rolling
// window of processing durations held in a ring buffer so that only the most
// recent measurements contribute to the average.
//
// Each NLP service owns exactly one [Recorder]; the health monitor reads
// snapshots through the owning service's accessor and never mutates the
// recorder directly.
package stats

import (
	"sync"
	"time"
)

// DefaultWindow is the ring buffer capacity used when a non-positive size is
// supplied.
const DefaultWindow = 1000

// Recorder accumulates service metrics. All methods are safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	hits   uint64
	misses uint64

	errCount int
	lastErr  string

	samples []time.Duration // ring buffer of processing durations
	pos     int             // next write position
	count   int             // total samples written (may exceed len(samples))
}

// NewRecorder creates a Recorder whose duration window holds up to size
// samples. A non-positive size defaults to [DefaultWindow].
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = DefaultWindow
	}
	return &Recorder{samples: make([]time.Duration, size)}
}

// Hit increments the cache hit counter.
func (r *Recorder) Hit() {
	r.mu.Lock()
	r.hits++
	r.mu.Unlock()
}

// Miss increments the cache miss counter.
func (r *Recorder) Miss() {
	r.mu.Lock()
	r.misses++
	r.mu.Unlock()
}

// Observe appends a processing duration to the rolling window, overwriting
// the oldest sample once the window is full.
func (r *Recorder) Observe(d time.Duration) {
	r.mu.Lock()
	r.samples[r.pos] = d
	r.pos = (r.pos + 1) % len(r.samples)
	r.count++
	r.mu.Unlock()
}

// RecordError increments the sticky error counter and stores the error message.
// A nil err is ignored.
func (r *Recorder) RecordError(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	r.errCount++
	r.lastErr = err.Error()
	r.mu.Unlock()
}

// Reset zeroes all counters and empties the duration window.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.hits, r.misses = 0, 0
	r.errCount, r.lastErr = 0, ""
	r.samples = make([]time.Duration, len(r.samples))
	r.pos, r.count = 0, 0
	r.mu.Unlock()
}

// Snapshot is a point-in-time copy of a Recorder's counters.
type Snapshot struct {
	Hits        uint64
	Misses      uint64
	HitRate     float64 // hits / (hits+misses); 0 when no lookups yet
	AvgDuration time.Duration
	SampleCount int // samples currently in the window (≤ window size)
	ErrorCount  int
	LastError   string
}

// Snapshot returns a consistent copy of the current counters.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Hits:       r.hits,
		Misses:     r.misses,
		ErrorCount: r.errCount,
		LastError:  r.lastErr,
	}
	if total := r.hits + r.misses; total > 0 {
		s.HitRate = float64(r.hits) / float64(total)
	}

	n := r.count
	if n > len(r.samples) {
		n = len(r.samples)
	}
	s.SampleCount = n
	if n > 0 {
		var sum time.Duration
		for i := 0; i < n; i++ {
			sum += r.samples[i]
		}
		s.AvgDuration = sum / time.Duration(n)
	}
	return s
}
