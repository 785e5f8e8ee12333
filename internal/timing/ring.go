// Package timing provides the fixed-capacity frame timestamp ring used by
// the frame scheduler.
package timing

import "time"

// Ring is a fixed-capacity circular sequence of frame timestamps. The write
// index advances modulo capacity and the count saturates, so the oldest
// samples are silently overwritten once the ring is full. There is no
// separate eviction step; it is an array ring, not an LRU.
//
// Ring is not safe for concurrent use; the scheduler serializes access.
type Ring struct {
	samples []time.Time
	next    int // write index
	count   int // saturates at len(samples)
}

// NewRing creates a ring holding up to capacity timestamps.
// Returns nil if capacity is not positive.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		return nil
	}
	return &Ring{samples: make([]time.Time, capacity)}
}

// Push records a timestamp, overwriting the oldest sample when full.
func (r *Ring) Push(t time.Time) {
	r.samples[r.next] = t
	r.next = (r.next + 1) % len(r.samples)
	if r.count < len(r.samples) {
		r.count++
	}
}

// Len returns the number of recorded samples, at most Cap.
func (r *Ring) Len() int { return r.count }

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.samples) }

// Snapshot returns the recorded timestamps in chronological order,
// oldest first.
func (r *Ring) Snapshot() []time.Time {
	out := make([]time.Time, 0, r.count)
	start := r.next - r.count
	if start < 0 {
		start += len(r.samples)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.samples[(start+i)%len(r.samples)])
	}
	return out
}

// Deltas returns the durations between consecutive samples in chronological
// order. A ring with fewer than two samples yields nil.
func (r *Ring) Deltas() []time.Duration {
	if r.count < 2 {
		return nil
	}
	ts := r.Snapshot()
	out := make([]time.Duration, len(ts)-1)
	for i := 1; i < len(ts); i++ {
		out[i-1] = ts[i].Sub(ts[i-1])
	}
	return out
}

// Reset drops all recorded samples.
func (r *Ring) Reset() {
	r.next = 0
	r.count = 0
	clear(r.samples)
}
