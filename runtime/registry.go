package runtime

import (
	"github.com/orteaf/go-orteaf/allocator"
	"github.com/orteaf/go-orteaf/backends"
	"github.com/orteaf/go-orteaf/base"
	"github.com/orteaf/go-orteaf/orterr"
)

// RegistryConfig sizes every manager of a registry. Zero manager configs
// take the stock sizing; zero allocator levels take DefaultAllocatorLevels.
type RegistryConfig struct {
	// Managers applies to every pooled manager. Per-manager overrides go
	// through the Overrides map, keyed by manager name.
	Managers  Config
	Overrides map[string]Config
	// Allocator shapes the per-device hierarchical allocators backing
	// buffers and storages.
	Allocator allocator.Config
}

// DefaultAllocatorLevels is the stock level vector for device memory:
// 1 MiB coarse slots down to 4 KiB fine slots.
var DefaultAllocatorLevels = []int{1 << 20, 1 << 16, 1 << 12}

// Registry owns one manager per payload type for a single backend,
// configured and shut down as a unit in dependency order.
type Registry struct {
	ops *backends.Ops

	Devices   *Manager[Device, DeviceRequest]
	Contexts  *Manager[DeviceContext, ContextRequest]
	Streams   *Manager[Stream, StreamRequest]
	Queues    *Manager[CommandQueue, QueueRequest]
	Events    *Manager[Event, EventRequest]
	Fences    *Manager[Fence, FenceRequest]
	Heaps     *Manager[Heap, HeapRequest]
	Modules   *ModuleManager
	Pipelines *PipelineManager
	// Buffers, Storages and Tensors sit on the per-device allocators and
	// are populated by Configure.
	Buffers  *Manager[Buffer, BufferRequest]
	Storages *Manager[Storage, StorageRequest]
	Tensors  *Manager[TensorImpl, TensorRequest]

	allocators *deviceAllocators
	configured bool
}

// NewRegistry wires a registry over one backend ops table.
func NewRegistry(ops *backends.Ops) (*Registry, error) {
	if err := ops.Validate(); err != nil {
		return nil, orterr.Wrap(orterr.InvalidArgument, err, "validating backend ops")
	}
	r := &Registry{ops: ops}
	r.Devices = newDeviceManager(ops)
	r.Contexts = newContextManager(ops, r.Devices)
	r.Streams = newStreamManager(ops, r.Devices)
	r.Queues = newQueueManager(ops, r.Devices)
	r.Events = newEventManager(ops, r.Devices)
	r.Fences = newFenceManager(ops, r.Devices)
	r.Heaps = newHeapManager(ops, r.Devices)
	r.Modules = newModuleManager(ops, r.Devices)
	r.Pipelines = newPipelineManager(ops, r.Modules)
	return r, nil
}

// Backend returns the backend this registry drives.
func (r *Registry) Backend() backends.Backend { return r.ops.Backend }

// Ops exposes the slow-ops table (for Submit and probes).
func (r *Registry) Ops() *backends.Ops { return r.ops }

func (r *Registry) managerConfig(cfg *RegistryConfig, name string) Config {
	if cfg.Overrides != nil {
		if c, ok := cfg.Overrides[name]; ok {
			return c
		}
	}
	if cfg.Managers == (Config{}) {
		return DefaultConfig()
	}
	return cfg.Managers
}

// Configure brings every manager up in dependency order (devices first).
// On any failure the already-configured managers are shut down again, so a
// failed Configure leaves the registry as it was.
func (r *Registry) Configure(cfg RegistryConfig) error {
	if r.configured {
		return orterr.New(orterr.InvalidState, "registry is already configured")
	}
	allocCfg := cfg.Allocator
	if len(allocCfg.Levels) == 0 {
		allocCfg.Levels = DefaultAllocatorLevels
	}
	r.allocators = newDeviceAllocators(r.ops, allocCfg)
	r.Buffers = newBufferManager(r.Devices, r.allocators)
	r.Storages = newStorageManager(r.ops, r.Devices, r.allocators)
	r.Tensors = newTensorManager(r.Storages)

	type step struct {
		name      string
		configure func(Config) error
		shutdown  func() error
		skip      bool
	}
	steps := []step{
		{"device manager", r.Devices.Configure, r.Devices.Shutdown, false},
		{"context manager", r.Contexts.Configure, r.Contexts.Shutdown, !r.ops.HasContexts()},
		{"stream manager", r.Streams.Configure, r.Streams.Shutdown, false},
		{"command queue manager", r.Queues.Configure, r.Queues.Shutdown, false},
		{"event manager", r.Events.Configure, r.Events.Shutdown, false},
		{"fence manager", r.Fences.Configure, r.Fences.Shutdown, false},
		{"heap manager", r.Heaps.Configure, r.Heaps.Shutdown, false},
		{"module manager", r.Modules.Configure, r.Modules.Shutdown, false},
		{"pipeline manager", r.Pipelines.Configure, r.Pipelines.Shutdown, false},
		{"buffer manager", r.Buffers.Configure, r.Buffers.Shutdown, false},
		{"storage manager", r.Storages.Configure, r.Storages.Shutdown, false},
		{"tensor impl manager", r.Tensors.Configure, r.Tensors.Shutdown, false},
	}
	for i, s := range steps {
		if s.skip {
			continue
		}
		if err := s.configure(r.managerConfig(&cfg, s.name)); err != nil {
			for j := i - 1; j >= 0; j-- {
				if steps[j].skip {
					continue
				}
				_ = steps[j].shutdown()
			}
			return err
		}
	}
	r.configured = true
	return nil
}

// Shutdown tears the managers down in reverse dependency order. The first
// manager still holding outstanding leases aborts the shutdown with
// InvalidState, leaving earlier teardown already applied — release the
// leases and call Shutdown again.
func (r *Registry) Shutdown() error {
	if !r.configured {
		return orterr.New(orterr.NotConfigured, "registry is not configured")
	}
	type step struct {
		shutdown func() error
		skip     bool
	}
	steps := []step{
		{r.Tensors.Shutdown, false},
		{r.Storages.Shutdown, false},
		{r.Buffers.Shutdown, false},
		{func() error { return r.allocators.shutdownAll() }, false},
		{r.Pipelines.Shutdown, false},
		{r.Modules.Shutdown, false},
		{r.Heaps.Shutdown, false},
		{r.Fences.Shutdown, false},
		{r.Events.Shutdown, false},
		{r.Queues.Shutdown, false},
		{r.Streams.Shutdown, false},
		{r.Contexts.Shutdown, !r.ops.HasContexts()},
		{r.Devices.Shutdown, false},
	}
	for _, s := range steps {
		if s.skip {
			continue
		}
		if err := s.shutdown(); err != nil && !orterr.IsCode(err, orterr.NotConfigured) {
			return err
		}
	}
	r.configured = false
	return nil
}

// FenceLifetimeFor builds the fence lifetime manager of one command queue,
// with the production completion probe.
func (r *Registry) FenceLifetimeFor(queue *StrongLease[CommandQueue]) (*FenceLifetime, error) {
	if !queue.Valid() {
		return nil, orterr.New(orterr.InvalidArgument, "fence lifetime requires a live queue lease")
	}
	var device base.Handle[Device]
	if devLease := &queue.Payload().Device; devLease.Valid() {
		device = devLease.Handle()
	}
	return NewFenceLifetime(r.Fences, device, queue.Handle(), ProbeFromOps(r.ops)), nil
}
