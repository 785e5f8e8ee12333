// Package chartcore provides the performance core of a streaming 2D chart
// renderer for the GoGPU ecosystem.
//
// # Overview
//
// chartcore implements the two subsystems that dominate the cost of rendering
// large, frequently updated data series on a GPU-backed canvas:
//
//   - SeriesBufferStore keeps one GPU-resident vertex buffer per series,
//     minimizing reallocation (power-of-two growth) and redundant uploads
//     (fingerprint-based change detection, byte-range appends).
//   - FrameScheduler drives a render-on-demand loop with dirty-bit
//     coalescing, exact frame timing, and dropped-frame statistics.
//
// The two are independent leaves: a higher-level chart orchestrator wires
// buffer mutation to scheduling by calling RequestRender after store writes.
// Axis layout, hit-testing, theming, and drawing itself live outside this
// module; hit-testing consumers read the CPU-side shadow copy via SeriesData.
//
// # Quick Start
//
//	dev, _ := wgpu.New(halDevice, halQueue, nil) // backend/wgpu adapter
//	store := chartcore.NewSeriesBufferStore(dev)
//	sched := chartcore.NewFrameScheduler(chartcore.NewTickerSource(0))
//
//	_ = sched.Start(func(now time.Time) {
//		// read buffers via store.SeriesBuffer, issue draw commands
//	})
//
//	_ = store.SetSeries(0, []f32.Vec2{{0, 0}, {1, 1}})
//	sched.RequestRender()
//
// # Architecture
//
// The library is organized into:
//   - Public API: SeriesBufferStore, FrameScheduler, FrameSource, stats types
//   - gpucore: narrow device abstraction (buffers, queue writes, limits)
//   - backend/wgpu: gpucore.Device over gogpu/wgpu HAL
//   - Internal: fingerprint (change detection), timing (sample ring)
//
// # Concurrency
//
// Both subsystems are designed for cooperative single-threaded use from the
// render loop's goroutine. Store and scheduler operations are re-entrant-safe
// from within a scheduled frame callback, including Stop and Destroy.
package chartcore

// Version information
const (
	// Version is the current version of the library
	Version = "0.2.0"
)
