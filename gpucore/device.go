package gpucore

// BufferID is an opaque handle to a GPU buffer.
//
// Each Device implementation maintains a mapping between IDs and actual
// backend resources. IDs are uint64 to accommodate various backend handle
// sizes.
type BufferID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	// BufferUsageCopySrc indicates the buffer can be used as a copy source.
	BufferUsageCopySrc BufferUsage = 1 << 0

	// BufferUsageCopyDst indicates the buffer can be used as a copy destination.
	BufferUsageCopyDst BufferUsage = 1 << 1

	// BufferUsageVertex indicates the buffer can be used as a vertex buffer.
	BufferUsageVertex BufferUsage = 1 << 2

	// BufferUsageStorage indicates the buffer can be used as a storage buffer.
	BufferUsageStorage BufferUsage = 1 << 3
)

// Device abstracts the GPU operations needed for series buffer management.
//
// Resource lifecycle:
//   - Buffers are created via CreateBuffer
//   - Buffers must be explicitly destroyed via DestroyBuffer
//   - Destroying a buffer while in use by an in-flight frame is undefined
//     behavior; the caller sequences destruction with its frame loop
type Device interface {
	// CreateBuffer creates a GPU buffer.
	//
	// Parameters:
	//   - size: buffer size in bytes (must be positive)
	//   - usage: buffer usage flags (bitmask of BufferUsage*)
	//
	// Returns the buffer ID or an error if allocation fails.
	CreateBuffer(size int, usage BufferUsage) (BufferID, error)

	// DestroyBuffer releases a GPU buffer.
	//
	// The result is advisory: callers discarding a resource treat a destroy
	// failure as best-effort cleanup, log it, and proceed with their own
	// bookkeeping.
	DestroyBuffer(id BufferID) error

	// WriteBuffer writes data to a buffer at the given byte offset.
	// The data is copied to the GPU immediately or staged for later upload;
	// the slice may be reused by the caller once WriteBuffer returns.
	WriteBuffer(id BufferID, offset uint64, data []byte)

	// MaxBufferSize returns the maximum single-buffer size in bytes.
	// Allocations and growth are validated against this limit.
	MaxBufferSize() uint64
}
