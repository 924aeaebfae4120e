package runtime

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/orteaf/go-orteaf/allocator"
	"github.com/orteaf/go-orteaf/backends"
	"github.com/orteaf/go-orteaf/base"
	"github.com/orteaf/go-orteaf/dtypes"
	"github.com/orteaf/go-orteaf/orterr"
)

// Heap is a pooled raw backing region obtained straight from the backend,
// bypassing the hierarchical allocator. Raw category: no counting, the
// holder's release frees it.
type Heap struct {
	Device StrongLease[Device]
	Native backends.NativeHandle
	Base   uintptr
	Size   int
}

// HeapRequest sizes a raw heap on one device.
type HeapRequest struct {
	Device base.Handle[Device]
	Size   int
}

func newHeapManager(ops *backends.Ops, devices *Manager[Device, DeviceRequest]) *Manager[Heap, HeapRequest] {
	return NewManager("heap manager", Raw, Ops[Heap, HeapRequest]{
		Validate: func(r HeapRequest) error {
			if r.Size <= 0 {
				return orterr.Errorf(orterr.InvalidArgument, "heap size must be positive, got %d", r.Size)
			}
			return nil
		},
		Create: func(p *Heap, r HeapRequest) error {
			dev, err := devices.AcquireHandle(r.Device)
			if err != nil {
				return err
			}
			native, addr, err := ops.CreateHeap(dev.Payload().Native, r.Size)
			if err != nil {
				dev.Release()
				return wrapBackend(err, "creating heap")
			}
			*p = Heap{Device: dev, Native: native, Base: addr, Size: r.Size}
			return nil
		},
		Destroy: func(p *Heap) {
			if err := ops.DestroyHeap(p.Native); err != nil {
				klog.Errorf("Heap destroy failed: %v", err)
			}
			p.Device.Release()
			*p = Heap{}
		},
	})
}

// deviceAllocators lazily builds one hierarchical allocator per device,
// wiring its heap ops to that device's backend handle.
type deviceAllocators struct {
	ops *backends.Ops
	cfg allocator.Config

	mu       sync.Mutex
	byDevice map[base.Handle[Device]]*allocator.Allocator
}

func newDeviceAllocators(ops *backends.Ops, cfg allocator.Config) *deviceAllocators {
	return &deviceAllocators{
		ops:      ops,
		cfg:      cfg,
		byDevice: make(map[base.Handle[Device]]*allocator.Allocator),
	}
}

func (da *deviceAllocators) forDevice(dev *StrongLease[Device]) (*allocator.Allocator, error) {
	key := dev.Handle()
	da.mu.Lock()
	defer da.mu.Unlock()
	if a, ok := da.byDevice[key]; ok {
		return a, nil
	}
	native := dev.Payload().Native
	a := allocator.New(allocator.HeapOps{
		Alloc: func(size int) (backends.NativeHandle, uintptr, error) {
			return da.ops.CreateHeap(native, size)
		},
		Free: da.ops.DestroyHeap,
	})
	if err := a.Configure(da.cfg); err != nil {
		return nil, err
	}
	da.byDevice[key] = a
	return a, nil
}

func (da *deviceAllocators) shutdownAll() error {
	da.mu.Lock()
	defer da.mu.Unlock()
	var firstErr error
	for key, a := range da.byDevice {
		if err := a.Shutdown(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		delete(da.byDevice, key)
	}
	return firstErr
}

// Buffer is a pooled slice of device memory carved out of the device's
// hierarchical allocator. Unique: one holder at a time.
type Buffer struct {
	Device StrongLease[Device]
	View   allocator.BufferView
	Size   int

	alloc *allocator.Allocator
}

// BufferRequest sizes a buffer on one device.
type BufferRequest struct {
	Device base.Handle[Device]
	Size   int
}

func newBufferManager(devices *Manager[Device, DeviceRequest], allocs *deviceAllocators) *Manager[Buffer, BufferRequest] {
	return NewManager("buffer manager", Unique, Ops[Buffer, BufferRequest]{
		Validate: func(r BufferRequest) error {
			if r.Size <= 0 {
				return orterr.Errorf(orterr.InvalidArgument, "buffer size must be positive, got %d", r.Size)
			}
			return nil
		},
		Create: func(p *Buffer, r BufferRequest) error {
			dev, err := devices.AcquireHandle(r.Device)
			if err != nil {
				return err
			}
			a, err := allocs.forDevice(&dev)
			if err != nil {
				dev.Release()
				return err
			}
			view, err := a.Allocate(r.Size)
			if err != nil {
				dev.Release()
				return err
			}
			*p = Buffer{Device: dev, View: view, Size: r.Size, alloc: a}
			return nil
		},
		Destroy: func(p *Buffer) {
			if err := p.alloc.Deallocate(p.View, p.Size); err != nil {
				klog.Errorf("Buffer deallocate failed: %v", err)
			}
			p.Device.Release()
			*p = Buffer{}
		},
	})
}

// Storage is a pooled, dtype-aware allocation shared by tensor
// implementations. WeakShared: caches may hold weak leases and promote
// while some tensor still keeps the storage alive.
type Storage struct {
	Backend backends.Backend
	Device  StrongLease[Device]
	DType   dtypes.DType
	Count   int
	View    allocator.BufferView

	alloc *allocator.Allocator
}

// ByteSize returns the storage's length in bytes.
func (s *Storage) ByteSize() int { return s.DType.Size() * s.Count }

// StorageRequest sizes a storage by element type and count.
type StorageRequest struct {
	Device base.Handle[Device]
	DType  dtypes.DType
	Count  int
}

func newStorageManager(ops *backends.Ops, devices *Manager[Device, DeviceRequest], allocs *deviceAllocators) *Manager[Storage, StorageRequest] {
	return NewManager("storage manager", WeakShared, Ops[Storage, StorageRequest]{
		Validate: func(r StorageRequest) error {
			if !r.DType.IsSupported() {
				return orterr.Errorf(orterr.InvalidArgument, "unsupported dtype %s", r.DType)
			}
			if r.Count <= 0 {
				return orterr.Errorf(orterr.InvalidArgument, "element count must be positive, got %d", r.Count)
			}
			return nil
		},
		Create: func(p *Storage, r StorageRequest) error {
			dev, err := devices.AcquireHandle(r.Device)
			if err != nil {
				return err
			}
			a, err := allocs.forDevice(&dev)
			if err != nil {
				dev.Release()
				return err
			}
			view, err := a.Allocate(r.DType.Size() * r.Count)
			if err != nil {
				dev.Release()
				return err
			}
			*p = Storage{
				Backend: ops.Backend,
				Device:  dev,
				DType:   r.DType,
				Count:   r.Count,
				View:    view,
				alloc:   a,
			}
			return nil
		},
		Destroy: func(p *Storage) {
			if err := p.alloc.Deallocate(p.View, p.ByteSize()); err != nil {
				klog.Errorf("Storage deallocate failed: %v", err)
			}
			p.Device.Release()
			*p = Storage{}
		},
	})
}
