// Package cpu supplies the self-contained CPU slow-ops table. Objects are
// plain host-side records held in an id table; heaps are host allocations.
// Work on a CPU queue completes synchronously, so fences signal as soon as
// their command buffer is recorded.
package cpu

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/orteaf/go-orteaf/backends"
)

type device struct {
	ordinal int
}

type stream struct {
	device backends.NativeHandle
}

type queue struct {
	device  backends.NativeHandle
	lastBuf backends.CommandBufferID
}

type event struct{}

type fence struct {
	device backends.NativeHandle
}

type heap struct {
	// buf stays referenced here so the base address remains valid for the
	// lifetime of the heap object.
	buf []byte
}

type module struct {
	device backends.NativeHandle
	source string
}

type function struct {
	module backends.NativeHandle
	name   string
}

type pipeline struct {
	function backends.NativeHandle
}

// table owns every live CPU object, keyed by opaque id.
type table struct {
	mu      sync.Mutex
	nextID  backends.NativeHandle
	objects map[backends.NativeHandle]any
}

func (t *table) put(obj any) backends.NativeHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.objects[id] = obj
	return id
}

func (t *table) get(id backends.NativeHandle) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	obj, ok := t.objects[id]
	return obj, ok
}

func (t *table) drop(id backends.NativeHandle, kind string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.objects[id]; !ok {
		return errors.Errorf("cpu: destroying unknown %s handle %d", kind, id)
	}
	delete(t.objects, id)
	return nil
}

// New builds the CPU slow-ops table. Each call returns an independent table
// with its own object namespace.
func New() *backends.Ops {
	t := &table{objects: make(map[backends.NativeHandle]any)}
	ops := &backends.Ops{
		Backend: backends.CPU,

		CreateDevice: func(ordinal int) (backends.NativeHandle, error) {
			if ordinal < 0 {
				return backends.NilNative, errors.Errorf("cpu: negative device ordinal %d", ordinal)
			}
			return t.put(&device{ordinal: ordinal}), nil
		},
		DestroyDevice: func(h backends.NativeHandle) error { return t.drop(h, "device") },

		CreateStream: func(dev backends.NativeHandle) (backends.NativeHandle, error) {
			if _, ok := t.get(dev); !ok {
				return backends.NilNative, errors.Errorf("cpu: stream on unknown device %d", dev)
			}
			return t.put(&stream{device: dev}), nil
		},
		DestroyStream: func(h backends.NativeHandle) error { return t.drop(h, "stream") },

		CreateCommandQueue: func(dev backends.NativeHandle) (backends.NativeHandle, error) {
			if _, ok := t.get(dev); !ok {
				return backends.NilNative, errors.Errorf("cpu: queue on unknown device %d", dev)
			}
			return t.put(&queue{device: dev}), nil
		},
		DestroyCommandQueue: func(h backends.NativeHandle) error { return t.drop(h, "queue") },

		CreateEvent: func(dev backends.NativeHandle) (backends.NativeHandle, error) {
			return t.put(&event{}), nil
		},
		DestroyEvent: func(h backends.NativeHandle) error { return t.drop(h, "event") },

		CreateFence: func(dev backends.NativeHandle) (backends.NativeHandle, error) {
			return t.put(&fence{device: dev}), nil
		},
		DestroyFence: func(h backends.NativeHandle) error { return t.drop(h, "fence") },

		CreateHeap: func(dev backends.NativeHandle, size int) (backends.NativeHandle, uintptr, error) {
			if size <= 0 {
				return backends.NilNative, 0, errors.Errorf("cpu: heap size must be positive, got %d", size)
			}
			h := &heap{buf: make([]byte, size)}
			return t.put(h), uintptr(unsafe.Pointer(&h.buf[0])), nil
		},
		DestroyHeap: func(h backends.NativeHandle) error { return t.drop(h, "heap") },

		CreateModule: func(dev backends.NativeHandle, source string) (backends.NativeHandle, error) {
			if source == "" {
				return backends.NilNative, errors.New("cpu: empty module source")
			}
			return t.put(&module{device: dev, source: source}), nil
		},
		DestroyModule: func(h backends.NativeHandle) error { return t.drop(h, "module") },

		GetFunction: func(mod backends.NativeHandle, name string) (backends.NativeHandle, error) {
			if _, ok := t.get(mod); !ok {
				return backends.NilNative, errors.Errorf("cpu: function lookup on unknown module %d", mod)
			}
			if name == "" {
				return backends.NilNative, errors.New("cpu: empty function name")
			}
			return t.put(&function{module: mod, name: name}), nil
		},

		CreatePipelineState: func(fn backends.NativeHandle) (backends.NativeHandle, error) {
			if _, ok := t.get(fn); !ok {
				return backends.NilNative, errors.Errorf("cpu: pipeline on unknown function %d", fn)
			}
			return t.put(&pipeline{function: fn}), nil
		},
		DestroyPipelineState: func(h backends.NativeHandle) error { return t.drop(h, "pipeline") },

		RecordSubmit: func(q backends.NativeHandle, f backends.NativeHandle) (backends.CommandBufferID, error) {
			t.mu.Lock()
			defer t.mu.Unlock()
			obj, ok := t.objects[q]
			if !ok {
				return 0, errors.Errorf("cpu: submit on unknown queue %d", q)
			}
			cq, ok := obj.(*queue)
			if !ok {
				return 0, errors.Errorf("cpu: submit on non-queue handle %d", q)
			}
			cq.lastBuf++
			return cq.lastBuf, nil
		},
		// CPU work is synchronous: anything recorded has already completed.
		FenceSignalled: func(f backends.NativeHandle, buf backends.CommandBufferID) (bool, error) {
			if _, ok := t.get(f); !ok {
				return false, errors.Errorf("cpu: probing unknown fence %d", f)
			}
			return buf != 0, nil
		},
	}
	return ops
}
