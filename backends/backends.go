// Package backends declares the execution backends the runtime can drive and
// the "slow ops" tables through which all backend primitives are invoked.
//
// The core never calls an OS or GPU API directly: every create/destroy of a
// device object goes through the function table the backend registers. The
// CPU table (backends/cpu) is self-contained; the CUDA and Metal tables
// adapt an externally supplied driver.
package backends

// Backend identifies one execution backend.
type Backend int

//go:generate stringer -type=Backend backends.go

const (
	CPU Backend = iota
	CUDA
	Metal
)

// NumBackends is the number of defined backends.
const NumBackends = 3

// IsValid reports whether b is one of the defined backends.
func (b Backend) IsValid() bool { return b >= CPU && b <= Metal }

// NativeHandle is a pointer-sized opaque identifier for a backend object
// (device, stream, module, ...). The core stores and passes these around;
// only the owning slow-ops table gives them meaning.
type NativeHandle uintptr

// NilNative is the zero NativeHandle, meaning "no object".
const NilNative NativeHandle = 0

// CommandBufferID identifies one submitted command buffer on a queue.
// IDs are monotonically increasing per queue; 0 means "not submitted".
type CommandBufferID uint64
