// Package cuda adapts an externally supplied CUDA driver to the slow-ops
// table the runtime consumes. The driver shim that actually calls the CUDA
// driver API lives outside the core; tests plug in mock drivers.
package cuda

import (
	"github.com/pkg/errors"

	"github.com/orteaf/go-orteaf/backends"
)

// Driver is the primitive set a CUDA shim must provide. All handles are the
// driver's own pointer-sized identifiers (CUdevice, CUcontext, CUstream...).
type Driver interface {
	DeviceGet(ordinal int) (backends.NativeHandle, error)
	DeviceRelease(device backends.NativeHandle) error

	PrimaryCtxRetain(device backends.NativeHandle) (backends.NativeHandle, error)
	PrimaryCtxRelease(context backends.NativeHandle) error

	StreamCreate(device backends.NativeHandle) (backends.NativeHandle, error)
	StreamDestroy(stream backends.NativeHandle) error

	EventCreate(device backends.NativeHandle) (backends.NativeHandle, error)
	EventDestroy(event backends.NativeHandle) error

	MemAlloc(device backends.NativeHandle, size int) (heap backends.NativeHandle, base uintptr, err error)
	MemFree(heap backends.NativeHandle) error

	ModuleLoadData(device backends.NativeHandle, ptx string) (backends.NativeHandle, error)
	ModuleUnload(module backends.NativeHandle) error
	ModuleGetFunction(module backends.NativeHandle, name string) (backends.NativeHandle, error)

	LaunchRecord(stream backends.NativeHandle, event backends.NativeHandle) (backends.CommandBufferID, error)
	EventQuery(event backends.NativeHandle, buf backends.CommandBufferID) (bool, error)
}

// New wraps driver into a slow-ops table.
//
// CUDA has no separate command-queue or pipeline-state objects: streams
// stand in for queues, functions for pipeline states, and events for
// fences, matching how the runtime's managers use them.
func New(driver Driver) (*backends.Ops, error) {
	if driver == nil {
		return nil, errors.New("cuda: nil driver")
	}
	ops := &backends.Ops{
		Backend: backends.CUDA,

		CreateDevice:  driver.DeviceGet,
		DestroyDevice: driver.DeviceRelease,

		CreateContext:  driver.PrimaryCtxRetain,
		DestroyContext: driver.PrimaryCtxRelease,

		CreateStream:  driver.StreamCreate,
		DestroyStream: driver.StreamDestroy,

		CreateCommandQueue:  driver.StreamCreate,
		DestroyCommandQueue: driver.StreamDestroy,

		CreateEvent:  driver.EventCreate,
		DestroyEvent: driver.EventDestroy,

		CreateFence:  driver.EventCreate,
		DestroyFence: driver.EventDestroy,

		CreateHeap:  driver.MemAlloc,
		DestroyHeap: driver.MemFree,

		CreateModule:  driver.ModuleLoadData,
		DestroyModule: driver.ModuleUnload,

		GetFunction: driver.ModuleGetFunction,

		CreatePipelineState: func(fn backends.NativeHandle) (backends.NativeHandle, error) {
			// CUDA launches functions directly; the pipeline object is the
			// function handle itself.
			return fn, nil
		},
		DestroyPipelineState: func(backends.NativeHandle) error { return nil },

		RecordSubmit:   driver.LaunchRecord,
		FenceSignalled: driver.EventQuery,
	}
	if err := ops.Validate(); err != nil {
		return nil, err
	}
	return ops, nil
}
