// Package metal adapts an externally supplied Metal/MPS driver to the
// slow-ops table the runtime consumes. The Objective-C shim lives outside
// the core; tests plug in mock drivers.
package metal

import (
	"github.com/pkg/errors"

	"github.com/orteaf/go-orteaf/backends"
)

// Driver is the primitive set a Metal shim must provide.
type Driver interface {
	CreateSystemDevice(ordinal int) (backends.NativeHandle, error)
	ReleaseDevice(device backends.NativeHandle) error

	NewCommandQueue(device backends.NativeHandle) (backends.NativeHandle, error)
	ReleaseCommandQueue(queue backends.NativeHandle) error

	NewEvent(device backends.NativeHandle) (backends.NativeHandle, error)
	ReleaseEvent(event backends.NativeHandle) error

	NewFence(device backends.NativeHandle) (backends.NativeHandle, error)
	ReleaseFence(fence backends.NativeHandle) error

	NewHeap(device backends.NativeHandle, size int) (heap backends.NativeHandle, base uintptr, err error)
	ReleaseHeap(heap backends.NativeHandle) error

	NewLibrary(device backends.NativeHandle, source string) (backends.NativeHandle, error)
	ReleaseLibrary(library backends.NativeHandle) error
	NewFunction(library backends.NativeHandle, name string) (backends.NativeHandle, error)

	NewComputePipelineState(function backends.NativeHandle) (backends.NativeHandle, error)
	ReleaseComputePipelineState(pipeline backends.NativeHandle) error

	CommitCommandBuffer(queue backends.NativeHandle, fence backends.NativeHandle) (backends.CommandBufferID, error)
	CommandBufferCompleted(fence backends.NativeHandle, buf backends.CommandBufferID) (bool, error)
}

// New wraps driver into a slow-ops table. Metal has no stream object
// distinct from the command queue; the queue entries serve both.
func New(driver Driver) (*backends.Ops, error) {
	if driver == nil {
		return nil, errors.New("metal: nil driver")
	}
	ops := &backends.Ops{
		Backend: backends.Metal,

		CreateDevice:  driver.CreateSystemDevice,
		DestroyDevice: driver.ReleaseDevice,

		CreateStream:  driver.NewCommandQueue,
		DestroyStream: driver.ReleaseCommandQueue,

		CreateCommandQueue:  driver.NewCommandQueue,
		DestroyCommandQueue: driver.ReleaseCommandQueue,

		CreateEvent:  driver.NewEvent,
		DestroyEvent: driver.ReleaseEvent,

		CreateFence:  driver.NewFence,
		DestroyFence: driver.ReleaseFence,

		CreateHeap:  driver.NewHeap,
		DestroyHeap: driver.ReleaseHeap,

		CreateModule:  driver.NewLibrary,
		DestroyModule: driver.ReleaseLibrary,

		GetFunction: driver.NewFunction,

		CreatePipelineState:  driver.NewComputePipelineState,
		DestroyPipelineState: driver.ReleaseComputePipelineState,

		RecordSubmit:   driver.CommitCommandBuffer,
		FenceSignalled: driver.CommandBufferCompleted,
	}
	if err := ops.Validate(); err != nil {
		return nil, err
	}
	return ops, nil
}
