package chartcore

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"golang.org/x/image/math/f32"

	"github.com/gogpu/chartcore/gpucore"
	"github.com/gogpu/chartcore/internal/fingerprint"
)

// Store errors.
var (
	// ErrSeriesNotFound is returned when operating on a series index that
	// was never set.
	ErrSeriesNotFound = errors.New("chartcore: series not found")

	// ErrStoreDisposed is returned when operating on a disposed store.
	ErrStoreDisposed = errors.New("chartcore: store has been disposed")

	// ErrCapacityExceeded is returned when the required or grown buffer size
	// exceeds the device's maximum single-buffer size.
	ErrCapacityExceeded = errors.New("chartcore: buffer size exceeds device limit")
)

// seriesBufferUsage is the usage for all series buffers: bound as vertex
// data during draws, written through the queue.
const seriesBufferUsage = gpucore.BufferUsageVertex | gpucore.BufferUsageCopyDst

// seriesEntry tracks one GPU-resident series.
type seriesEntry struct {
	// buffer is the GPU buffer holding the packed points.
	buffer gpucore.BufferID

	// capacityBytes is the allocated buffer size. Always a multiple of 4
	// and never shrinks while the series is alive.
	capacityBytes uint64

	// pointCount is the number of coordinate pairs currently represented.
	pointCount int

	// fingerprint is the rolling hash over the packed bytes, used to skip
	// redundant uploads.
	fingerprint uint32

	// shadow is the CPU-side copy of the points, read by external consumers
	// (hit-testing) without a GPU round trip. Appends extend it in place.
	shadow []f32.Vec2
}

// StoreStats contains series buffer store statistics.
type StoreStats struct {
	// SeriesCount is the number of live series.
	SeriesCount int

	// CapacityBytes is the total allocated GPU buffer capacity.
	CapacityBytes uint64

	// Uploads is the cumulative number of GPU write operations.
	Uploads uint64

	// SkippedUploads is the number of SetSeries calls elided because point
	// count and fingerprint were unchanged.
	SkippedUploads uint64

	// Reallocs is the number of buffer replacements due to growth.
	Reallocs uint64
}

// String returns a human-readable string of store stats.
func (s StoreStats) String() string {
	return fmt.Sprintf("Store[%d series, %d KB, %d uploads, %d skipped, %d reallocs]",
		s.SeriesCount,
		s.CapacityBytes/1024,
		s.Uploads,
		s.SkippedUploads,
		s.Reallocs)
}

// SeriesBufferStore maintains one GPU buffer per series index, minimizing
// reallocation and redundant uploads.
//
// Buffers grow geometrically (next power of two at or above the required
// size, never below the current capacity) to amortize reallocation cost
// across repeated appends. Growth is clamped against the device's maximum
// single-buffer size; exceeding it is a hard ErrCapacityExceeded.
//
// The store exclusively owns the buffers it creates; no other component may
// write to them directly. SeriesBufferStore is safe for concurrent use, but
// the intended deployment is cooperative single-threaded access from the
// render loop.
type SeriesBufferStore struct {
	mu     sync.Mutex
	device gpucore.Device
	series map[int]*seriesEntry

	// Statistics
	uploads        uint64
	skippedUploads uint64
	reallocs       uint64

	disposed bool
}

// NewSeriesBufferStore creates a store backed by the given device.
// The device must not be nil.
func NewSeriesBufferStore(device gpucore.Device) *SeriesBufferStore {
	return &SeriesBufferStore{
		device: device,
		series: make(map[int]*seriesEntry),
	}
}

// SetSeries replaces the points of the series at index, creating it on
// first use.
//
// Points are packed into the tightly packed little-endian x,y float layout.
// Gap points (NaN coordinates, see Gap) are written with their exact bit
// pattern; downstream rendering treats them as breaks in the trace.
//
// If both point count and fingerprint match the stored entry, the call is a
// no-op and skips the GPU upload entirely. This is the primary cost-avoidance
// path for idempotent re-renders.
//
// Returns ErrStoreDisposed after Dispose, ErrCapacityExceeded if the packed
// payload cannot fit in a single device buffer.
func (s *SeriesBufferStore) SetSeries(index int, pts []f32.Vec2) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrStoreDisposed
	}

	packed := packPoints(pts)
	fp := fingerprint.Sum(packed)

	entry, ok := s.series[index]
	if ok && entry.pointCount == len(pts) && entry.fingerprint == fp {
		s.skippedUploads++
		Logger().Debug("series unchanged, skipping upload",
			"series", index, "points", len(pts))
		return nil
	}
	if !ok {
		entry = &seriesEntry{}
	}

	required := requiredBytes(len(pts))
	if entry.buffer == gpucore.InvalidID || required > entry.capacityBytes {
		if err := s.growLocked(index, entry, required); err != nil {
			return err
		}
	}

	if len(packed) > 0 {
		s.device.WriteBuffer(entry.buffer, 0, packed)
		s.uploads++
	}

	entry.pointCount = len(pts)
	entry.fingerprint = fp
	entry.shadow = append(entry.shadow[:0], pts...)
	s.series[index] = entry
	return nil
}

// AppendSeries appends points to an existing series.
//
// When the existing capacity covers the new total, only the newly packed
// bytes are written at the current end of the buffer and the fingerprint is
// folded forward incrementally (fast path). Otherwise the buffer is grown
// and the entire concatenated point set re-uploaded (slow path). In both
// paths the CPU-side shadow copy is extended in place.
//
// Returns ErrSeriesNotFound if the series was never set, ErrStoreDisposed
// after Dispose, ErrCapacityExceeded if the grown size exceeds the device
// buffer limit.
func (s *SeriesBufferStore) AppendSeries(index int, pts []f32.Vec2) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrStoreDisposed
	}

	entry, ok := s.series[index]
	if !ok {
		return fmt.Errorf("%w: series %d", ErrSeriesNotFound, index)
	}
	if len(pts) == 0 {
		return nil
	}

	next := entry.pointCount + len(pts)
	required := requiredBytes(next)

	if required <= entry.capacityBytes {
		// Fast path: byte-range write into existing capacity.
		packed := packPoints(pts)
		s.device.WriteBuffer(entry.buffer, uint64(entry.pointCount)*pointStride, packed)
		s.uploads++
		entry.fingerprint = fingerprint.Fold(entry.fingerprint, packed)
		entry.shadow = append(entry.shadow, pts...)
		entry.pointCount = next
		return nil
	}

	// Slow path: grow, then re-upload the full concatenated set.
	if err := s.growLocked(index, entry, required); err != nil {
		return err
	}
	entry.shadow = append(entry.shadow, pts...)
	full := packPoints(entry.shadow)
	s.device.WriteBuffer(entry.buffer, 0, full)
	s.uploads++
	entry.fingerprint = fingerprint.Sum(full)
	entry.pointCount = next
	return nil
}

// RemoveSeries frees the series' GPU buffer and drops the entry.
// Removing a series that was never set is a no-op.
func (s *SeriesBufferStore) RemoveSeries(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrStoreDisposed
	}

	entry, ok := s.series[index]
	if !ok {
		return nil
	}
	if entry.buffer != gpucore.InvalidID {
		s.tryFreeLocked(entry.buffer)
	}
	delete(s.series, index)
	return nil
}

// SeriesBuffer returns the GPU buffer handle for the series at index.
// The caller may bind the buffer for drawing but must not write to it.
func (s *SeriesBufferStore) SeriesBuffer(index int) (gpucore.BufferID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.lookupLocked(index)
	if err != nil {
		return gpucore.InvalidID, err
	}
	return entry.buffer, nil
}

// SeriesPointCount returns the number of points in the series at index.
func (s *SeriesBufferStore) SeriesPointCount(index int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.lookupLocked(index)
	if err != nil {
		return 0, err
	}
	return entry.pointCount, nil
}

// SeriesData returns the CPU-side copy of the series' points. The returned
// slice is owned by the store; callers must not modify it.
func (s *SeriesBufferStore) SeriesData(index int) ([]f32.Vec2, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.lookupLocked(index)
	if err != nil {
		return nil, err
	}
	return entry.shadow, nil
}

// Dispose frees every remaining buffer and marks the store unusable.
// All subsequent operations, including a second Dispose, return
// ErrStoreDisposed.
func (s *SeriesBufferStore) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrStoreDisposed
	}

	for _, entry := range s.series {
		if entry.buffer != gpucore.InvalidID {
			s.tryFreeLocked(entry.buffer)
		}
	}
	s.series = nil
	s.disposed = true
	Logger().Debug("series buffer store disposed")
	return nil
}

// Stats returns a snapshot of store statistics. Counters survive Dispose.
func (s *SeriesBufferStore) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := StoreStats{
		SeriesCount:    len(s.series),
		Uploads:        s.uploads,
		SkippedUploads: s.skippedUploads,
		Reallocs:       s.reallocs,
	}
	for _, entry := range s.series {
		stats.CapacityBytes += entry.capacityBytes
	}
	return stats
}

// lookupLocked returns the entry at index or the appropriate sentinel error.
func (s *SeriesBufferStore) lookupLocked(index int) (*seriesEntry, error) {
	if s.disposed {
		return nil, ErrStoreDisposed
	}
	entry, ok := s.series[index]
	if !ok {
		return nil, fmt.Errorf("%w: series %d", ErrSeriesNotFound, index)
	}
	return entry, nil
}

// growLocked allocates a buffer sized to the growth policy, frees the old
// one best-effort, and installs the new handle. The caller re-uploads the
// payload afterwards.
func (s *SeriesBufferStore) growLocked(index int, entry *seriesEntry, required uint64) error {
	maxSize := s.device.MaxBufferSize()
	if required > maxSize {
		return fmt.Errorf("%w: series %d needs %d bytes, device limit is %d",
			ErrCapacityExceeded, index, required, maxSize)
	}

	newCap := nextPowerOfTwo(required)
	if newCap > maxSize {
		newCap = maxSize
	}
	if newCap < entry.capacityBytes {
		newCap = entry.capacityBytes
	}

	//nolint:gosec // G115: newCap is bounded by the device buffer limit
	id, err := s.device.CreateBuffer(int(newCap), seriesBufferUsage)
	if err != nil {
		return fmt.Errorf("chartcore: series %d buffer allocation failed: %w", index, err)
	}

	if entry.buffer != gpucore.InvalidID {
		s.tryFreeLocked(entry.buffer)
		s.reallocs++
	}

	Logger().Debug("series buffer grown",
		"series", index, "capacity", newCap, "required", required)

	entry.buffer = id
	entry.capacityBytes = newCap
	return nil
}

// tryFreeLocked releases a buffer best-effort. A destroy failure must not
// prevent store bookkeeping from proceeding: the resource is being discarded
// anyway, so the error is logged and swallowed.
func (s *SeriesBufferStore) tryFreeLocked(id gpucore.BufferID) {
	if err := s.device.DestroyBuffer(id); err != nil {
		Logger().Warn("buffer release failed", "buffer", uint64(id), "err", err)
	}
}

// requiredBytes returns the buffer size needed for n points: at least 4
// bytes, aligned to 4 for copy operations.
func requiredBytes(n int) uint64 {
	const copyBufferAlignment = 4
	b := uint64(n) * pointStride
	b = (b + copyBufferAlignment - 1) &^ (copyBufferAlignment - 1)
	if b < copyBufferAlignment {
		b = copyBufferAlignment
	}
	return b
}

// nextPowerOfTwo returns the smallest power of two >= v.
func nextPowerOfTwo(v uint64) uint64 {
	if v&(v-1) == 0 {
		return v
	}
	return 1 << bits.Len64(v)
}
