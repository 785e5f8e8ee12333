package chartcore

import (
	"errors"
	"math"
	"testing"
	"time"
)

// fakeSource is a step-driven FrameSource: scheduled callbacks are held
// until the test fires them with an explicit timestamp.
type fakeSource struct {
	now       time.Time
	nextID    FrameHandle
	pending   map[FrameHandle]func(time.Time)
	scheduled int
	canceled  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		now:     time.Unix(0, 0),
		pending: make(map[FrameHandle]func(time.Time)),
	}
}

func (f *fakeSource) Schedule(fn func(now time.Time)) FrameHandle {
	f.nextID++
	f.pending[f.nextID] = fn
	f.scheduled++
	return f.nextID
}

func (f *fakeSource) Cancel(h FrameHandle) {
	if _, ok := f.pending[h]; ok {
		delete(f.pending, h)
		f.canceled++
	}
}

func (f *fakeSource) Now() time.Time { return f.now }

// fire advances the clock to at and delivers the single pending frame.
func (f *fakeSource) fire(t *testing.T, at time.Time) {
	t.Helper()
	if len(f.pending) != 1 {
		t.Fatalf("expected exactly 1 pending frame, have %d", len(f.pending))
	}
	var fn func(time.Time)
	for h, cb := range f.pending {
		fn = cb
		delete(f.pending, h)
	}
	f.now = at
	fn(at)
}

// fireAfter delivers the pending frame delta after the current fake time.
func (f *fakeSource) fireAfter(t *testing.T, delta time.Duration) {
	t.Helper()
	f.fire(t, f.now.Add(delta))
}

func TestStartValidation(t *testing.T) {
	src := newFakeSource()
	s := NewFrameScheduler(src)

	if err := s.Start(nil); !errors.Is(err, ErrNilCallback) {
		t.Errorf("expected ErrNilCallback, got %v", err)
	}

	if err := s.Start(func(time.Time) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(func(time.Time) {}); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	s.Destroy()
	if err := s.Start(func(time.Time) {}); !errors.Is(err, ErrSchedulerDestroyed) {
		t.Errorf("expected ErrSchedulerDestroyed, got %v", err)
	}
}

func TestStartRunsFirstFrame(t *testing.T) {
	src := newFakeSource()
	s := NewFrameScheduler(src)

	frames := 0
	if err := s.Start(func(time.Time) { frames++ }); err != nil {
		t.Fatal(err)
	}
	if !s.Running() {
		t.Error("expected running after Start")
	}
	if src.scheduled != 1 {
		t.Fatalf("expected 1 scheduled frame, got %d", src.scheduled)
	}

	src.fireAfter(t, 16*time.Millisecond)
	if frames != 1 {
		t.Errorf("expected callback to run once, got %d", frames)
	}
	if s.TotalFrames() != 1 {
		t.Errorf("expected 1 total frame, got %d", s.TotalFrames())
	}

	// The callback did not re-dirty, so the loop idles with nothing
	// pending.
	if len(src.pending) != 0 {
		t.Error("expected no pending frame after a clean callback")
	}
	if !s.Running() {
		t.Error("a clean frame keeps the scheduler running (idle)")
	}
}

func TestRequestRenderCoalesces(t *testing.T) {
	src := newFakeSource()
	s := NewFrameScheduler(src)

	frames := 0
	if err := s.Start(func(time.Time) { frames++ }); err != nil {
		t.Fatal(err)
	}
	src.fireAfter(t, 16*time.Millisecond) // first frame, loop idles

	before := src.scheduled
	for i := 0; i < 5; i++ {
		s.RequestRender()
	}
	if src.scheduled != before+1 {
		t.Errorf("expected 5 RequestRender calls to schedule exactly 1 frame, got %d",
			src.scheduled-before)
	}

	src.fireAfter(t, 16*time.Millisecond)
	if frames != 2 {
		t.Errorf("expected exactly 1 extra render, total frames ran %d", frames)
	}
}

func TestRequestRenderWhileNotRunning(t *testing.T) {
	src := newFakeSource()
	s := NewFrameScheduler(src)

	s.RequestRender()
	if src.scheduled != 0 {
		t.Error("RequestRender while stopped must not schedule")
	}
}

func TestCallbackSelfRearms(t *testing.T) {
	src := newFakeSource()
	s := NewFrameScheduler(src)

	frames := 0
	err := s.Start(func(time.Time) {
		frames++
		if frames < 3 {
			s.RequestRender() // continuous animation
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		src.fireAfter(t, 16*time.Millisecond)
	}

	if frames != 3 {
		t.Errorf("expected 3 frames, got %d", frames)
	}
	if len(src.pending) != 0 {
		t.Error("expected loop idle after the callback stopped re-arming")
	}
}

func TestCurrentFPS(t *testing.T) {
	src := newFakeSource()
	s := NewFrameScheduler(src)

	if got := s.CurrentFPS(); got != 0 {
		t.Errorf("expected 0 FPS with no samples, got %v", got)
	}

	if err := s.Start(func(time.Time) { s.RequestRender() }); err != nil {
		t.Fatal(err)
	}

	src.fireAfter(t, 16667*time.Microsecond)
	if got := s.CurrentFPS(); got != 0 {
		t.Errorf("expected 0 FPS with a single sample, got %v", got)
	}

	for i := 0; i < 10; i++ {
		src.fireAfter(t, 16667*time.Microsecond)
	}

	got := s.CurrentFPS()
	if math.Abs(got-60.0) > 0.1 {
		t.Errorf("expected ~60 FPS for 16.667ms spacing, got %v", got)
	}
	s.Destroy()
}

func TestDropClassification(t *testing.T) {
	src := newFakeSource()
	s := NewFrameScheduler(src)

	if err := s.Start(func(time.Time) { s.RequestRender() }); err != nil {
		t.Fatal(err)
	}

	// 40ms against a 60fps expectation (16.667ms * 1.5 = 25ms) is dropped.
	for i := 0; i < 3; i++ {
		src.fireAfter(t, 40*time.Millisecond)
	}

	drops := s.DropStats()
	if drops.TotalDrops != 3 {
		t.Errorf("expected 3 total drops, got %d", drops.TotalDrops)
	}
	if drops.ConsecutiveDrops != 3 {
		t.Errorf("expected consecutiveDrops == 3, got %d", drops.ConsecutiveDrops)
	}
	if drops.LastDrop.IsZero() {
		t.Error("expected lastDrop timestamp to be set")
	}

	// A fast frame resets the consecutive counter but not the total.
	src.fireAfter(t, 10*time.Millisecond)
	drops = s.DropStats()
	if drops.ConsecutiveDrops != 0 {
		t.Errorf("expected consecutive counter reset, got %d", drops.ConsecutiveDrops)
	}
	if drops.TotalDrops != 3 {
		t.Errorf("total drops must be cumulative, got %d", drops.TotalDrops)
	}
	if drops.DropRate <= 0 || drops.DropRate >= 1 {
		t.Errorf("expected drop rate in (0,1), got %v", drops.DropRate)
	}
	s.Destroy()
}

func TestDeltaCappedAfterIdleGap(t *testing.T) {
	src := newFakeSource()
	s := NewFrameScheduler(src)

	if err := s.Start(func(time.Time) { s.RequestRender() }); err != nil {
		t.Fatal(err)
	}
	src.fireAfter(t, 16*time.Millisecond)

	// A 5s gap (backgrounded window) is capped to 100ms.
	src.fireAfter(t, 5*time.Second)

	stats := s.Stats()
	if stats.Max != maxFrameDelta {
		t.Errorf("expected max delta capped at %v, got %v", maxFrameDelta, stats.Max)
	}
	s.Destroy()
}

func TestStatsPercentiles(t *testing.T) {
	src := newFakeSource()
	s := NewFrameScheduler(src)

	if got := s.Stats(); got.SampleCount != 0 {
		t.Errorf("expected empty stats, got %+v", got)
	}

	if err := s.Start(func(time.Time) { s.RequestRender() }); err != nil {
		t.Fatal(err)
	}

	// Frame timestamps 0, 10, 30, 60, 100ms -> ring deltas 10, 20, 30, 40ms.
	// The first frame's delta is measured against the Start clock and does
	// not enter the ring (deltas come from ring timestamps).
	src.fire(t, src.now)
	for _, d := range []int{10, 20, 30, 40} {
		src.fireAfter(t, time.Duration(d)*time.Millisecond)
	}

	stats := s.Stats()
	if stats.SampleCount != 4 {
		t.Fatalf("expected 4 deltas, got %d", stats.SampleCount)
	}
	if stats.Min != 10*time.Millisecond || stats.Max != 40*time.Millisecond {
		t.Errorf("expected min 10ms / max 40ms, got %v / %v", stats.Min, stats.Max)
	}
	if stats.Avg != 25*time.Millisecond {
		t.Errorf("expected avg 25ms, got %v", stats.Avg)
	}
	// floor(4 * 0.5) = index 2 -> 30ms.
	if stats.P50 != 30*time.Millisecond {
		t.Errorf("expected p50 30ms, got %v", stats.P50)
	}
	// floor(4 * 0.95) = index 3 -> 40ms.
	if stats.P95 != 40*time.Millisecond || stats.P99 != 40*time.Millisecond {
		t.Errorf("expected p95/p99 40ms, got %v / %v", stats.P95, stats.P99)
	}
	if s := stats.String(); s == "" {
		t.Error("expected non-empty stats string")
	}
}

func TestStopPreservesHistory(t *testing.T) {
	src := newFakeSource()
	s := NewFrameScheduler(src)

	if err := s.Start(func(time.Time) { s.RequestRender() }); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		src.fireAfter(t, 16*time.Millisecond)
	}

	s.Stop()
	if s.Running() {
		t.Error("expected stopped")
	}
	if src.canceled != 1 {
		t.Errorf("expected pending frame canceled, canceled=%d", src.canceled)
	}
	if s.TotalFrames() != 5 {
		t.Errorf("stop must preserve frame count, got %d", s.TotalFrames())
	}
	if s.CurrentFPS() == 0 {
		t.Error("stop must preserve timing history")
	}

	// The scheduler can be started again.
	if err := s.Start(func(time.Time) {}); err != nil {
		t.Errorf("restart after stop: %v", err)
	}
}

func TestDestroyReleasesState(t *testing.T) {
	src := newFakeSource()
	s := NewFrameScheduler(src)

	if err := s.Start(func(time.Time) { s.RequestRender() }); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		src.fireAfter(t, 16*time.Millisecond)
	}

	s.Destroy()
	if s.Running() {
		t.Error("expected not running after destroy")
	}
	if s.TotalFrames() != 0 {
		t.Error("destroy must release counters")
	}
	if s.CurrentFPS() != 0 {
		t.Error("destroy must release timing history")
	}
	if s.Elapsed() != 0 {
		t.Error("destroy must release the start time")
	}

	// Post-destroy calls are safe no-ops.
	s.RequestRender()
	s.Stop()
	s.Destroy()
	if len(src.pending) != 0 {
		t.Error("destroyed scheduler must not schedule")
	}
}

func TestStopFromWithinCallback(t *testing.T) {
	src := newFakeSource()
	s := NewFrameScheduler(src)

	err := s.Start(func(time.Time) {
		s.RequestRender()
		s.Stop()
	})
	if err != nil {
		t.Fatal(err)
	}

	src.fireAfter(t, 16*time.Millisecond)

	if s.Running() {
		t.Error("expected stopped after in-callback Stop")
	}
	if len(src.pending) != 0 {
		t.Error("frame body must not re-arm after in-callback Stop")
	}
}

func TestDestroyFromWithinCallback(t *testing.T) {
	src := newFakeSource()
	s := NewFrameScheduler(src)

	err := s.Start(func(time.Time) {
		s.RequestRender()
		s.Destroy()
	})
	if err != nil {
		t.Fatal(err)
	}

	src.fireAfter(t, 16*time.Millisecond)

	if s.Running() {
		t.Error("expected destroyed after in-callback Destroy")
	}
	if len(src.pending) != 0 {
		t.Error("frame body must not re-arm after in-callback Destroy")
	}
	if err := s.Start(func(time.Time) {}); !errors.Is(err, ErrSchedulerDestroyed) {
		t.Errorf("expected ErrSchedulerDestroyed, got %v", err)
	}
}

func TestElapsed(t *testing.T) {
	src := newFakeSource()
	s := NewFrameScheduler(src)

	if s.Elapsed() != 0 {
		t.Error("expected 0 elapsed before start")
	}

	if err := s.Start(func(time.Time) { s.RequestRender() }); err != nil {
		t.Fatal(err)
	}
	src.fireAfter(t, 16*time.Millisecond)
	src.fireAfter(t, 16*time.Millisecond)

	if got := s.Elapsed(); got != 32*time.Millisecond {
		t.Errorf("expected 32ms elapsed, got %v", got)
	}
	s.Destroy()
}

func TestLateFrameAfterStopIgnored(t *testing.T) {
	src := newFakeSource()
	s := NewFrameScheduler(src)

	frames := 0
	if err := s.Start(func(time.Time) { frames++ }); err != nil {
		t.Fatal(err)
	}

	// Grab the pending callback, then stop: the source races and still
	// delivers the frame.
	var late func(time.Time)
	for _, cb := range src.pending {
		late = cb
	}
	s.Stop()
	late(src.now.Add(16 * time.Millisecond))

	if frames != 0 {
		t.Error("late frame after Stop must not run the callback")
	}
	if s.TotalFrames() != 0 {
		t.Error("late frame after Stop must not record timing")
	}
}
