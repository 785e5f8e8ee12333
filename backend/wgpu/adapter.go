// Package wgpu provides a gpucore.Device implementation over gogpu/wgpu HAL.
//
// The adapter bridges the narrow device contract the series buffer store
// consumes and the HAL layer: buffers are tracked behind opaque IDs, queue
// writes go through hal.Queue, and the buffer-size limit comes from the
// adapter's types.Limits.
//
// Key principle: chartcore RECEIVES the device from the host, it does NOT
// create one. The host application (e.g. a gogpu.App) passes its shared
// hal.Device and hal.Queue, or a gpucontext.DeviceProvider via NewFromProvider.
package wgpu

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	types "github.com/gogpu/gputypes"

	"github.com/gogpu/chartcore/gpucore"
)

// Adapter errors.
var (
	// ErrNilDevice is returned when constructing an adapter without a device.
	ErrNilDevice = errors.New("wgpu: device is nil")

	// ErrNilQueue is returned when constructing an adapter without a queue.
	ErrNilQueue = errors.New("wgpu: queue is nil")

	// ErrUnknownBuffer is returned when destroying a buffer the adapter
	// does not track.
	ErrUnknownBuffer = errors.New("wgpu: unknown buffer")

	// ErrNoHALProvider is returned when a device provider does not expose
	// HAL types.
	ErrNoHALProvider = errors.New("wgpu: provider does not expose HAL types")
)

// Adapter implements gpucore.Device using gogpu/wgpu/hal directly.
//
// Thread Safety: Adapter is safe for concurrent use from multiple
// goroutines. All resource operations are protected by a mutex.
type Adapter struct {
	mu     sync.RWMutex
	device hal.Device
	queue  hal.Queue

	maxBufferSz uint64

	// ID generation
	nextID atomic.Uint64

	// buffers maps gpucore IDs to hal resources.
	buffers map[gpucore.BufferID]hal.Buffer
}

// New creates an Adapter wrapping the given device and queue.
// The limits parameter provides the adapter's capability limits;
// if nil, default limits are used.
func New(device hal.Device, queue hal.Queue, limits *types.Limits) (*Adapter, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if queue == nil {
		return nil, ErrNilQueue
	}

	var lim types.Limits
	if limits != nil {
		lim = *limits
	} else {
		lim = types.DefaultLimits()
	}

	a := &Adapter{
		device:      device,
		queue:       queue,
		maxBufferSz: lim.MaxBufferSize,
		buffers:     make(map[gpucore.BufferID]hal.Buffer),
	}

	// Start ID generation at 1 (0 is invalid)
	a.nextID.Store(1)

	return a, nil
}

// NewFromProvider creates an Adapter from a shared GPU device provider
// (e.g. gogpu.App.GPUContextProvider()). The provider must also implement
// HalDevice() any and HalQueue() any returning hal.Device and hal.Queue.
//
// Default limits are assumed; pass explicit limits to New when the host
// exposes the real adapter limits.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Adapter, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHALProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHALProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHALProvider)
	}
	return New(device, queue, nil)
}

// newID generates a unique resource ID.
func (a *Adapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// CreateBuffer creates a GPU buffer.
func (a *Adapter) CreateBuffer(size int, usage gpucore.BufferUsage) (gpucore.BufferID, error) {
	if size <= 0 {
		return gpucore.InvalidID, fmt.Errorf("wgpu: buffer size must be positive, got %d", size)
	}

	desc := &hal.BufferDescriptor{
		Label: "chartcore-series",
		Size:  uint64(size),
		Usage: convertBufferUsage(usage),
	}

	buffer, err := a.device.CreateBuffer(desc)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: buffer creation failed: %w", err)
	}

	id := gpucore.BufferID(a.newID())

	a.mu.Lock()
	a.buffers[id] = buffer
	a.mu.Unlock()

	return id, nil
}

// DestroyBuffer releases a GPU buffer. Destroying an ID the adapter does not
// track returns ErrUnknownBuffer; callers discarding the resource treat this
// as advisory.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) error {
	a.mu.Lock()
	buffer, ok := a.buffers[id]
	if ok {
		delete(a.buffers, id)
	}
	a.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownBuffer, id)
	}
	a.device.DestroyBuffer(buffer)
	return nil
}

// WriteBuffer writes data to a buffer through the queue. Writes to unknown
// buffers or with empty payloads are ignored.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) {
	a.mu.RLock()
	buffer, ok := a.buffers[id]
	a.mu.RUnlock()

	if ok && len(data) > 0 {
		a.queue.WriteBuffer(buffer, offset, data)
	}
}

// MaxBufferSize returns the maximum single-buffer size in bytes.
func (a *Adapter) MaxBufferSize() uint64 {
	return a.maxBufferSz
}

// BufferCount returns the number of live buffers tracked by the adapter.
func (a *Adapter) BufferCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.buffers)
}

// convertBufferUsage converts gpucore.BufferUsage to gputypes.BufferUsage.
func convertBufferUsage(usage gpucore.BufferUsage) gputypes.BufferUsage {
	var result gputypes.BufferUsage

	if usage&gpucore.BufferUsageCopySrc != 0 {
		result |= gputypes.BufferUsageCopySrc
	}
	if usage&gpucore.BufferUsageCopyDst != 0 {
		result |= gputypes.BufferUsageCopyDst
	}
	if usage&gpucore.BufferUsageVertex != 0 {
		result |= gputypes.BufferUsageVertex
	}
	if usage&gpucore.BufferUsageStorage != 0 {
		result |= gputypes.BufferUsageStorage
	}
	return result
}
