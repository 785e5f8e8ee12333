// Package gpucore provides the GPU device abstraction consumed by chartcore.
//
// This package defines the [Device] interface, the narrow slice of a GPU
// backend that series buffer management needs: buffer allocation and
// destruction, queue-style writes, and the device buffer-size limit.
// Keeping the surface this small lets the same store logic run against:
//   - gogpu/wgpu (Pure Go WebGPU via HAL), see backend/wgpu
//   - in-memory fakes in tests
//
// # Resource Management
//
// GPU buffers are addressed via opaque [BufferID] handles. Implementations
// track the mapping between IDs and actual backend resources; IDs become
// invalid after destruction and must not be reused. Buffers created through
// a Device are exclusively owned by their creator (the series buffer store),
// which prevents torn writes from concurrent appenders.
package gpucore
