package chartcore

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gogpu/chartcore/internal/timing"
)

// Scheduler errors.
var (
	// ErrNilCallback is returned when Start is called without a callback.
	ErrNilCallback = errors.New("chartcore: frame callback is nil")

	// ErrAlreadyRunning is returned when Start is called on a running
	// scheduler.
	ErrAlreadyRunning = errors.New("chartcore: scheduler already running")

	// ErrSchedulerDestroyed is returned when Start is called after Destroy.
	ErrSchedulerDestroyed = errors.New("chartcore: scheduler has been destroyed")
)

// Frame pacing constants.
const (
	// frameRingCapacity is the number of retained timing samples:
	// the most recent ~2 seconds at 60 Hz.
	frameRingCapacity = 120

	// expectedFrameTime is the target inter-frame interval (60 fps).
	expectedFrameTime = time.Second / 60

	// dropThreshold classifies a frame as dropped: delta > 1.5x the
	// expected interval.
	dropThreshold = expectedFrameTime * 3 / 2

	// maxFrameDelta caps the measured delta to avoid animation
	// discontinuities after a long idle gap (e.g. a backgrounded window).
	maxFrameDelta = 100 * time.Millisecond
)

// schedulerState tracks the scheduler's position in its state machine.
type schedulerState int

const (
	// stateIdle means not running, no callback registered.
	stateIdle schedulerState = iota
	// stateRunningIdle means running but no frame is scheduled because
	// nothing is dirty.
	stateRunningIdle
	// stateRunningScheduled means a frame callback has been requested.
	stateRunningScheduled
)

// String returns the string representation of schedulerState.
func (s schedulerState) String() string {
	switch s {
	case stateIdle:
		return "Idle"
	case stateRunningIdle:
		return "RunningIdle"
	case stateRunningScheduled:
		return "RunningScheduled"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// FrameStats contains frame time distribution statistics over the retained
// timing window.
type FrameStats struct {
	// Min is the shortest inter-frame delta.
	Min time.Duration

	// Max is the longest inter-frame delta.
	Max time.Duration

	// Avg is the mean inter-frame delta.
	Avg time.Duration

	// P50, P95 and P99 are percentile frame times: sorted ascending,
	// indexed by floor(n * percentile).
	P50 time.Duration
	P95 time.Duration
	P99 time.Duration

	// SampleCount is the number of deltas the stats were computed over.
	SampleCount int
}

// String returns a human-readable string of frame stats.
func (s FrameStats) String() string {
	return fmt.Sprintf("Frames[avg %.2fms, min %.2fms, max %.2fms, p95 %.2fms, n=%d]",
		durationMs(s.Avg), durationMs(s.Min), durationMs(s.Max), durationMs(s.P95), s.SampleCount)
}

// FrameDropStats contains cumulative dropped-frame counters. A frame is
// dropped when its inter-frame delta exceeds 1.5x the 60 fps target
// interval; an averaged FPS number hides this jitter, which is why drops
// are reported separately.
type FrameDropStats struct {
	// TotalDrops is the cumulative number of dropped frames.
	TotalDrops uint64

	// ConsecutiveDrops is the current run of dropped frames. Resets to
	// zero on any non-dropped frame.
	ConsecutiveDrops uint64

	// LastDrop is the timestamp of the most recent dropped frame.
	// Zero if no frame has been dropped.
	LastDrop time.Time

	// DropRate is TotalDrops divided by total frames, 0 to 1.
	DropRate float64
}

// FrameScheduler drives a cooperative render-on-demand loop: it suppresses
// redundant frames via dirty-bit coalescing and records per-frame timing
// telemetry.
//
// The scheduler is an explicit state machine: Idle (not running) to
// RunningScheduled (frame requested) to RunningIdle (running, clean) and
// back. A callback that calls RequestRender re-arms the next frame, which is
// how continuous animation sustains itself without a caller-driven timer;
// when nothing has changed the loop goes idle and costs nothing.
//
// Create exactly one scheduler per chart and release it explicitly with
// Destroy. Stop and Destroy are safe to call at any time, including from
// within the active frame callback.
type FrameScheduler struct {
	mu     sync.Mutex
	source FrameSource

	callback func(now time.Time)
	state    schedulerState
	dirty    bool
	handle   FrameHandle

	// generation is bumped by Destroy so a frame body that released the
	// lock to run the callback can detect destruction afterwards.
	generation uint64
	destroyed  bool

	// Timing telemetry
	ring             *timing.Ring
	lastFrameTime    time.Time
	startTime        time.Time
	totalFrames      uint64
	totalDrops       uint64
	consecutiveDrops uint64
	lastDrop         time.Time
}

// NewFrameScheduler creates a scheduler driven by the given frame source.
// A nil source defaults to a 60 Hz TickerSource.
func NewFrameScheduler(source FrameSource) *FrameScheduler {
	if source == nil {
		source = NewTickerSource(0)
	}
	return &FrameScheduler{
		source: source,
		ring:   timing.NewRing(frameRingCapacity),
	}
}

// Start begins the render loop with the given per-frame callback.
// The scheduler starts dirty, so the first frame runs unconditionally.
//
// Returns ErrAlreadyRunning if the loop is running, ErrNilCallback if fn is
// nil, ErrSchedulerDestroyed after Destroy.
func (s *FrameScheduler) Start(fn func(now time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrSchedulerDestroyed
	}
	if s.state != stateIdle {
		return ErrAlreadyRunning
	}
	if fn == nil {
		return ErrNilCallback
	}

	s.callback = fn
	s.dirty = true
	s.startTime = s.source.Now()
	s.lastFrameTime = s.startTime
	s.state = stateRunningScheduled
	s.handle = s.source.Schedule(s.frame)
	return nil
}

// RequestRender marks state dirty and ensures a frame is scheduled.
//
// Multiple calls between frames coalesce into exactly one render. If the
// scheduler is not running the dirty flag is still set, so the next Start
// renders immediately. Safe to call from within the frame callback: the
// callback re-arms the loop instead of scheduling a duplicate.
func (s *FrameScheduler) RequestRender() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}
	s.dirty = true
	if s.state != stateRunningIdle {
		// Not running: stays dirty for the next Start.
		// Scheduled: coalesce with the pending frame.
		return
	}

	// Reset the frame clock so the delta after an idle period is not
	// artificially huge.
	s.lastFrameTime = s.source.Now()
	s.state = stateRunningScheduled
	s.handle = s.source.Schedule(s.frame)
}

// Stop halts the loop and cancels any pending frame, preserving timing
// history. The scheduler may be started again.
func (s *FrameScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed || s.state == stateIdle {
		return
	}
	if s.state == stateRunningScheduled {
		s.source.Cancel(s.handle)
	}
	s.state = stateIdle
	s.callback = nil
}

// Destroy stops the loop and releases all tracking state. The scheduler is
// unusable afterwards and must be recreated; a subsequent Start returns
// ErrSchedulerDestroyed.
func (s *FrameScheduler) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}
	if s.state == stateRunningScheduled {
		s.source.Cancel(s.handle)
	}
	s.state = stateIdle
	s.callback = nil
	s.dirty = false
	s.destroyed = true
	s.generation++

	s.ring.Reset()
	s.lastFrameTime = time.Time{}
	s.startTime = time.Time{}
	s.totalFrames = 0
	s.totalDrops = 0
	s.consecutiveDrops = 0
	s.lastDrop = time.Time{}
}

// Running reports whether the loop is running (scheduled or idle-clean).
func (s *FrameScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != stateIdle
}

// CurrentFPS returns the average frame rate over the retained timing
// window, or 0 if fewer than two samples exist.
func (s *FrameScheduler) CurrentFPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	deltas := s.cappedDeltasLocked()
	if len(deltas) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range deltas {
		sum += d
	}
	avg := durationMs(sum) / float64(len(deltas))
	if avg <= 0 {
		return 0
	}
	return 1000 / avg
}

// Stats returns min/max/avg and percentile frame times over the retained
// timing window. Zero-valued if fewer than two samples exist.
func (s *FrameScheduler) Stats() FrameStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	deltas := s.cappedDeltasLocked()
	if len(deltas) == 0 {
		return FrameStats{}
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })

	var sum time.Duration
	for _, d := range deltas {
		sum += d
	}

	n := len(deltas)
	percentile := func(p float64) time.Duration {
		i := int(float64(n) * p)
		if i >= n {
			i = n - 1
		}
		return deltas[i]
	}

	return FrameStats{
		Min:         deltas[0],
		Max:         deltas[n-1],
		Avg:         sum / time.Duration(n),
		P50:         percentile(0.50),
		P95:         percentile(0.95),
		P99:         percentile(0.99),
		SampleCount: n,
	}
}

// DropStats returns cumulative dropped-frame counters.
func (s *FrameScheduler) DropStats() FrameDropStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := FrameDropStats{
		TotalDrops:       s.totalDrops,
		ConsecutiveDrops: s.consecutiveDrops,
		LastDrop:         s.lastDrop,
	}
	if s.totalFrames > 0 {
		stats.DropRate = float64(s.totalDrops) / float64(s.totalFrames)
	}
	return stats
}

// TotalFrames returns the cumulative number of executed frames.
func (s *FrameScheduler) TotalFrames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalFrames
}

// Elapsed returns the wall time since Start, or 0 if never started.
func (s *FrameScheduler) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.startTime.IsZero() {
		return 0
	}
	return s.source.Now().Sub(s.startTime)
}

// frame is the scheduled frame body. It records timing, classifies drops,
// runs the callback if dirty, and re-arms or idles the loop.
func (s *FrameScheduler) frame(now time.Time) {
	s.mu.Lock()

	// A canceled frame can still be delivered by a racing source; a frame
	// arriving after Stop or Destroy must not mutate released state.
	if s.destroyed || s.state != stateRunningScheduled {
		s.mu.Unlock()
		return
	}
	gen := s.generation

	s.ring.Push(now)
	s.totalFrames++

	delta := now.Sub(s.lastFrameTime)
	if delta < 0 {
		delta = 0
	}
	if delta > maxFrameDelta {
		delta = maxFrameDelta
	}
	s.lastFrameTime = now

	if delta > dropThreshold {
		s.totalDrops++
		s.consecutiveDrops++
		s.lastDrop = now
	} else {
		s.consecutiveDrops = 0
	}

	if !s.dirty {
		// Clean frame: go idle, saving cycles until the next
		// RequestRender.
		s.state = stateRunningIdle
		s.mu.Unlock()
		return
	}

	// Clear the flag before invoking the callback so a callback that
	// requests another render is not lost.
	s.dirty = false
	cb := s.callback
	s.mu.Unlock()

	cb(now)

	s.mu.Lock()
	defer s.mu.Unlock()

	// The callback may have called Stop or Destroy; revalidate before
	// touching loop state.
	if s.destroyed || s.generation != gen || s.state != stateRunningScheduled {
		return
	}
	if s.dirty {
		// The callback re-dirtied the state: continuous animation
		// sustains itself by re-arming here.
		s.handle = s.source.Schedule(s.frame)
	} else {
		s.state = stateRunningIdle
	}
}

// cappedDeltasLocked returns the ring's consecutive deltas with each
// clamped to maxFrameDelta, the same delta notion used for per-frame drop
// classification. Without the clamp a single idle gap would dominate every
// aggregate for the next two seconds of history.
func (s *FrameScheduler) cappedDeltasLocked() []time.Duration {
	deltas := s.ring.Deltas()
	for i, d := range deltas {
		if d < 0 {
			deltas[i] = 0
		} else if d > maxFrameDelta {
			deltas[i] = maxFrameDelta
		}
	}
	return deltas
}

// durationMs converts a duration to fractional milliseconds.
func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
