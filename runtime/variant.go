package runtime

import (
	"github.com/orteaf/go-orteaf/backends"
)

// Backend-tagged wrappers around a storage lease. The distinct types let
// call sites that resolved the variant keep the backend in the type.
type (
	// CPUStorageLease is a storage lease known to live on the CPU backend.
	CPUStorageLease struct{ StrongLease[Storage] }
	// CUDAStorageLease is a storage lease known to live on the CUDA backend.
	CUDAStorageLease struct{ StrongLease[Storage] }
	// MetalStorageLease is a storage lease known to live on the Metal backend.
	MetalStorageLease struct{ StrongLease[Storage] }
)

// AnyStorageLease is the type-erased storage lease: empty, or exactly one
// of the backend-tagged leases. There is no downcast without a prior tag
// check — TryAs returns nil on mismatch.
type AnyStorageLease struct {
	backend backends.Backend
	valid   bool
	lease   StrongLease[Storage]
}

// EraseStorageLease wraps a storage lease, taking ownership. The tag comes
// from the storage payload itself. An invalid lease erases to the empty
// variant.
func EraseStorageLease(lease StrongLease[Storage]) AnyStorageLease {
	if !lease.Valid() {
		return AnyStorageLease{}
	}
	return AnyStorageLease{
		backend: lease.Payload().Backend,
		valid:   true,
		lease:   lease,
	}
}

// Valid reports whether the variant holds a lease.
func (v *AnyStorageLease) Valid() bool { return v.valid && v.lease.Valid() }

// Execution returns the backend tag. Only meaningful while Valid.
func (v *AnyStorageLease) Execution() backends.Backend { return v.backend }

// Storage returns the payload regardless of backend, nil when empty.
func (v *AnyStorageLease) Storage() *Storage {
	if !v.Valid() {
		return nil
	}
	return v.lease.Payload()
}

// TryAsCPU returns the CPU view of the lease, nil unless the tag matches.
func (v *AnyStorageLease) TryAsCPU() *CPUStorageLease {
	if !v.Valid() || v.backend != backends.CPU {
		return nil
	}
	return &CPUStorageLease{v.lease}
}

// TryAsCUDA returns the CUDA view of the lease, nil unless the tag matches.
func (v *AnyStorageLease) TryAsCUDA() *CUDAStorageLease {
	if !v.Valid() || v.backend != backends.CUDA {
		return nil
	}
	return &CUDAStorageLease{v.lease}
}

// TryAsMetal returns the Metal view of the lease, nil unless the tag
// matches.
func (v *AnyStorageLease) TryAsMetal() *MetalStorageLease {
	if !v.Valid() || v.backend != backends.Metal {
		return nil
	}
	return &MetalStorageLease{v.lease}
}

// StorageVisitor dispatches on the variant's tag. Handlers may be nil, in
// which case that case is a no-op.
type StorageVisitor struct {
	OnEmpty func()
	OnCPU   func(*Storage)
	OnCUDA  func(*Storage)
	OnMetal func(*Storage)
}

// Visit calls the handler matching the tag.
func (v *AnyStorageLease) Visit(visitor StorageVisitor) {
	if !v.Valid() {
		if visitor.OnEmpty != nil {
			visitor.OnEmpty()
		}
		return
	}
	switch v.backend {
	case backends.CPU:
		if visitor.OnCPU != nil {
			visitor.OnCPU(v.lease.Payload())
		}
	case backends.CUDA:
		if visitor.OnCUDA != nil {
			visitor.OnCUDA(v.lease.Payload())
		}
	case backends.Metal:
		if visitor.OnMetal != nil {
			visitor.OnMetal(v.lease.Payload())
		}
	}
}

// Release drops the held lease and empties the variant. Idempotent.
func (v *AnyStorageLease) Release() {
	if v.valid {
		v.lease.Release()
		v.valid = false
	}
}
