package runtime

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/orteaf/go-orteaf/backends"
	"github.com/orteaf/go-orteaf/base"
	"github.com/orteaf/go-orteaf/orterr"
)

// Module is a pooled, compiled kernel module (CUDA module / Metal library).
type Module struct {
	Device StrongLease[Device]
	Source string
	Native backends.NativeHandle
}

// ModuleRequest compiles source for one device.
type ModuleRequest struct {
	Device base.Handle[Device]
	Source string
}

type moduleKey struct {
	device base.Handle[Device]
	source string
}

// ModuleManager pools modules and caches them by (device, source), so
// repeated acquires of the same source share one compiled module.
type ModuleManager struct {
	*Manager[Module, ModuleRequest]

	mu    sync.Mutex
	cache map[moduleKey]base.Handle[Module]
}

func newModuleManager(ops *backends.Ops, devices *Manager[Device, DeviceRequest]) *ModuleManager {
	mm := &ModuleManager{cache: make(map[moduleKey]base.Handle[Module])}
	mm.Manager = NewManager("module manager", Shared, Ops[Module, ModuleRequest]{
		Validate: func(r ModuleRequest) error {
			if r.Source == "" {
				return orterr.New(orterr.InvalidArgument, "module source must not be empty")
			}
			return nil
		},
		Create: func(p *Module, r ModuleRequest) error {
			dev, err := devices.AcquireHandle(r.Device)
			if err != nil {
				return err
			}
			native, err := ops.CreateModule(dev.Payload().Native, r.Source)
			if err != nil {
				dev.Release()
				return wrapBackend(err, "creating module")
			}
			*p = Module{Device: dev, Source: r.Source, Native: native}
			return nil
		},
		Destroy: func(p *Module) {
			if err := ops.DestroyModule(p.Native); err != nil {
				klog.Errorf("Module destroy failed: %v", err)
			}
			p.Device.Release()
			*p = Module{}
		},
	})
	return mm
}

// AcquireCached returns a lease on the cached module for (device, source),
// compiling it on first use. Stale cache entries (module fully released
// since) are replaced transparently.
func (mm *ModuleManager) AcquireCached(req ModuleRequest) (StrongLease[Module], error) {
	key := moduleKey{device: req.Device, source: req.Source}
	mm.mu.Lock()
	h, ok := mm.cache[key]
	mm.mu.Unlock()
	if ok {
		if lease, err := mm.AcquireHandle(h); err == nil {
			return lease, nil
		} else if !orterr.IsCode(err, orterr.HandleExpired) {
			return StrongLease[Module]{}, err
		}
	}
	lease, err := mm.Acquire(req)
	if err != nil {
		return StrongLease[Module]{}, err
	}
	mm.mu.Lock()
	mm.cache[key] = lease.Handle()
	mm.mu.Unlock()
	return lease, nil
}

// Shutdown drops the key cache along with the pools.
func (mm *ModuleManager) Shutdown() error {
	if err := mm.Manager.Shutdown(); err != nil {
		return err
	}
	mm.mu.Lock()
	mm.cache = make(map[moduleKey]base.Handle[Module])
	mm.mu.Unlock()
	return nil
}

// Pipeline is a pooled compute pipeline state: one function of a module,
// made launchable.
type Pipeline struct {
	Module   StrongLease[Module]
	Function string
	Native   backends.NativeHandle
}

// PipelineRequest resolves a function inside a module.
type PipelineRequest struct {
	Module   base.Handle[Module]
	Function string
}

type pipelineKey struct {
	module   base.Handle[Module]
	function string
}

// PipelineManager pools pipeline states and caches them by
// (module, function).
type PipelineManager struct {
	*Manager[Pipeline, PipelineRequest]

	mu    sync.Mutex
	cache map[pipelineKey]base.Handle[Pipeline]
}

func newPipelineManager(ops *backends.Ops, modules *ModuleManager) *PipelineManager {
	pm := &PipelineManager{cache: make(map[pipelineKey]base.Handle[Pipeline])}
	pm.Manager = NewManager("pipeline manager", Shared, Ops[Pipeline, PipelineRequest]{
		Validate: func(r PipelineRequest) error {
			if r.Function == "" {
				return orterr.New(orterr.InvalidArgument, "pipeline function name must not be empty")
			}
			return nil
		},
		Create: func(p *Pipeline, r PipelineRequest) error {
			mod, err := modules.AcquireHandle(r.Module)
			if err != nil {
				return err
			}
			fn, err := ops.GetFunction(mod.Payload().Native, r.Function)
			if err != nil {
				mod.Release()
				return wrapBackend(err, "resolving function")
			}
			native, err := ops.CreatePipelineState(fn)
			if err != nil {
				mod.Release()
				return wrapBackend(err, "creating pipeline state")
			}
			*p = Pipeline{Module: mod, Function: r.Function, Native: native}
			return nil
		},
		Destroy: func(p *Pipeline) {
			if err := ops.DestroyPipelineState(p.Native); err != nil {
				klog.Errorf("Pipeline destroy failed: %v", err)
			}
			p.Module.Release()
			*p = Pipeline{}
		},
	})
	return pm
}

// AcquireCached returns a lease on the cached pipeline for
// (module, function), building it on first use.
func (pm *PipelineManager) AcquireCached(req PipelineRequest) (StrongLease[Pipeline], error) {
	key := pipelineKey{module: req.Module, function: req.Function}
	pm.mu.Lock()
	h, ok := pm.cache[key]
	pm.mu.Unlock()
	if ok {
		if lease, err := pm.AcquireHandle(h); err == nil {
			return lease, nil
		} else if !orterr.IsCode(err, orterr.HandleExpired) {
			return StrongLease[Pipeline]{}, err
		}
	}
	lease, err := pm.Acquire(req)
	if err != nil {
		return StrongLease[Pipeline]{}, err
	}
	pm.mu.Lock()
	pm.cache[key] = lease.Handle()
	pm.mu.Unlock()
	return lease, nil
}

// Shutdown drops the key cache along with the pools.
func (pm *PipelineManager) Shutdown() error {
	if err := pm.Manager.Shutdown(); err != nil {
		return err
	}
	pm.mu.Lock()
	pm.cache = make(map[pipelineKey]base.Handle[Pipeline])
	pm.mu.Unlock()
	return nil
}
