package chartcore

import (
	"sync"
	"sync/atomic"
	"time"
)

// FrameHandle identifies a scheduled frame callback for cancellation.
type FrameHandle uint64

// FrameSource is the host's per-frame scheduling primitive: the equivalent
// of requestAnimationFrame in a browser, or a vsync callback in a windowing
// framework.
//
// Schedule must be asynchronous: the callback must not run before Schedule
// returns. Between registration and invocation the caller's goroutine is
// free; there is no blocking wait anywhere in the contract.
type FrameSource interface {
	// Schedule registers fn to be invoked once at the next frame
	// opportunity, passing the invocation time from the source's clock.
	Schedule(fn func(now time.Time)) FrameHandle

	// Cancel revokes a scheduled callback. Canceling a handle that has
	// already fired, or was never issued, is a no-op.
	Cancel(h FrameHandle)

	// Now returns the current time on the source's monotonic clock.
	Now() time.Time
}

// TickerSource is a timer-backed FrameSource for standalone or headless
// use, firing callbacks a fixed interval after they are scheduled. It
// approximates a 60 Hz vsync by default; hosts with a real compositor
// callback should implement FrameSource over that instead.
//
// TickerSource is safe for concurrent use. Callbacks run on timer
// goroutines; the FrameScheduler serializes its own state internally.
type TickerSource struct {
	interval time.Duration
	nextID   atomic.Uint64

	mu     sync.Mutex
	timers map[FrameHandle]*time.Timer
}

// NewTickerSource creates a TickerSource firing after the given interval.
// A non-positive interval defaults to 1/60 s.
func NewTickerSource(interval time.Duration) *TickerSource {
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &TickerSource{
		interval: interval,
		timers:   make(map[FrameHandle]*time.Timer),
	}
}

// Schedule registers fn to fire once after the source's interval.
func (t *TickerSource) Schedule(fn func(now time.Time)) FrameHandle {
	id := FrameHandle(t.nextID.Add(1))

	t.mu.Lock()
	t.timers[id] = time.AfterFunc(t.interval, func() {
		t.mu.Lock()
		delete(t.timers, id)
		t.mu.Unlock()
		fn(time.Now())
	})
	t.mu.Unlock()

	return id
}

// Cancel stops a pending callback. Already-fired handles are ignored.
func (t *TickerSource) Cancel(h FrameHandle) {
	t.mu.Lock()
	timer, ok := t.timers[h]
	if ok {
		delete(t.timers, h)
	}
	t.mu.Unlock()

	if ok {
		timer.Stop()
	}
}

// Now returns the current wall-clock time (with Go's monotonic reading).
func (t *TickerSource) Now() time.Time { return time.Now() }
