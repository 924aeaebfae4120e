package backends

import (
	"github.com/pkg/errors"
)

// Ops is the slow-operation table one backend supplies to the runtime.
// Every entry is a plain function value; the runtime invokes them from its
// Create/Destroy callbacks and never caches results across calls.
//
// All entries listed by Validate as required must be non-nil before the
// table is handed to a registry.
type Ops struct {
	Backend Backend

	CreateDevice  func(ordinal int) (NativeHandle, error)
	DestroyDevice func(device NativeHandle) error

	// Context objects exist on CUDA (primary contexts); other backends may
	// leave these nil and the context manager stays unconfigured.
	CreateContext  func(device NativeHandle) (NativeHandle, error)
	DestroyContext func(context NativeHandle) error

	CreateStream  func(device NativeHandle) (NativeHandle, error)
	DestroyStream func(stream NativeHandle) error

	CreateCommandQueue  func(device NativeHandle) (NativeHandle, error)
	DestroyCommandQueue func(queue NativeHandle) error

	CreateEvent  func(device NativeHandle) (NativeHandle, error)
	DestroyEvent func(event NativeHandle) error

	CreateFence  func(device NativeHandle) (NativeHandle, error)
	DestroyFence func(fence NativeHandle) error

	// Heaps back the hierarchical allocator: CreateHeap returns the opaque
	// heap object plus the base address of its contiguous range.
	CreateHeap  func(device NativeHandle, size int) (heap NativeHandle, base uintptr, err error)
	DestroyHeap func(heap NativeHandle) error

	CreateModule  func(device NativeHandle, source string) (NativeHandle, error)
	DestroyModule func(module NativeHandle) error

	GetFunction func(module NativeHandle, name string) (NativeHandle, error)

	CreatePipelineState  func(function NativeHandle) (NativeHandle, error)
	DestroyPipelineState func(pipeline NativeHandle) error

	// RecordSubmit submits pending work on the queue, associating it with
	// the fence, and returns the command buffer id.
	RecordSubmit func(queue NativeHandle, fence NativeHandle) (CommandBufferID, error)
	// FenceSignalled is the completion probe: non-blocking, callable from
	// any goroutine.
	FenceSignalled func(fence NativeHandle, buf CommandBufferID) (bool, error)
}

// Validate checks the table carries every required entry. Context entries
// are optional (CUDA-only). Either both of a create/destroy pair must be
// set, or neither.
func (o *Ops) Validate() error {
	if o == nil {
		return errors.New("backend ops table is nil")
	}
	if !o.Backend.IsValid() {
		return errors.Errorf("backend ops table has invalid backend %d", int(o.Backend))
	}
	type pair struct {
		name            string
		create, destroy bool
		required        bool
	}
	pairs := []pair{
		{"device", o.CreateDevice != nil, o.DestroyDevice != nil, true},
		{"context", o.CreateContext != nil, o.DestroyContext != nil, false},
		{"stream", o.CreateStream != nil, o.DestroyStream != nil, true},
		{"command queue", o.CreateCommandQueue != nil, o.DestroyCommandQueue != nil, true},
		{"event", o.CreateEvent != nil, o.DestroyEvent != nil, true},
		{"fence", o.CreateFence != nil, o.DestroyFence != nil, true},
		{"heap", o.CreateHeap != nil, o.DestroyHeap != nil, true},
		{"module", o.CreateModule != nil, o.DestroyModule != nil, true},
		{"pipeline state", o.CreatePipelineState != nil, o.DestroyPipelineState != nil, true},
	}
	for _, p := range pairs {
		if p.required && (!p.create || !p.destroy) {
			return errors.Errorf("backend %s ops table is missing %s entries", o.Backend, p.name)
		}
		if p.create != p.destroy {
			return errors.Errorf("backend %s ops table has a partial %s create/destroy pair", o.Backend, p.name)
		}
	}
	if o.GetFunction == nil {
		return errors.Errorf("backend %s ops table is missing GetFunction", o.Backend)
	}
	if o.RecordSubmit == nil || o.FenceSignalled == nil {
		return errors.Errorf("backend %s ops table is missing submission entries", o.Backend)
	}
	return nil
}

// HasContexts reports whether the backend vends context objects.
func (o *Ops) HasContexts() bool {
	return o.CreateContext != nil && o.DestroyContext != nil
}
