package runtime

import (
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"

	"github.com/orteaf/go-orteaf/backends"
	"github.com/orteaf/go-orteaf/backends/cpu"
	"github.com/orteaf/go-orteaf/base"
	"github.com/orteaf/go-orteaf/dtypes"
	"github.com/orteaf/go-orteaf/orterr"
)

func TestRegistryRejectsBrokenOps(t *testing.T) {
	ops := cpu.New()
	ops.CreateDevice = nil
	ops.DestroyDevice = nil
	_, err := NewRegistry(ops)
	require.True(t, orterr.IsCode(err, orterr.InvalidArgument))
}

func TestRegistryConfigureShutdownRoundTrip(t *testing.T) {
	reg, err := NewRegistry(cpu.New())
	require.NoError(t, err)
	require.NoError(t, reg.Configure(RegistryConfig{}))
	require.True(t, orterr.IsCode(reg.Configure(RegistryConfig{}), orterr.InvalidState))
	require.NoError(t, reg.Shutdown())
	require.True(t, orterr.IsCode(reg.Shutdown(), orterr.NotConfigured))
	require.NoError(t, reg.Configure(RegistryConfig{}))
	require.NoError(t, reg.Shutdown())
}

func TestRegistryManagerOverrides(t *testing.T) {
	reg, err := NewRegistry(cpu.New())
	require.NoError(t, err)
	small := DefaultConfig()
	small.PayloadCapacity = 2
	small.PayloadBlockSize = 2
	small.PayloadMaxCapacity = 2
	require.NoError(t, reg.Configure(RegistryConfig{
		Overrides: map[string]Config{"device manager": small},
	}))
	defer func() { require.NoError(t, reg.Shutdown()) }()

	a := must.M1(reg.Devices.Acquire(DeviceRequest{Ordinal: 0}))
	b := must.M1(reg.Devices.Acquire(DeviceRequest{Ordinal: 1}))
	_, err = reg.Devices.Acquire(DeviceRequest{Ordinal: 2})
	require.True(t, orterr.IsCode(err, orterr.OutOfCapacity))
	a.Release()
	b.Release()
}

func TestCompoundAcquireRollsBack(t *testing.T) {
	reg := newTestRegistry(t)

	dev := must.M1(reg.Devices.Acquire(DeviceRequest{Ordinal: 0}))
	stale := dev.Handle()
	dev.Release()

	// The stream pulls a device lease first; the stale handle fails that
	// step and nothing stays acquired.
	_, err := reg.Streams.Acquire(StreamRequest{Device: stale})
	require.True(t, orterr.IsCode(err, orterr.HandleExpired))
	require.Equal(t, 0, reg.Streams.OutstandingLeases())
	require.Equal(t, 0, reg.Devices.OutstandingLeases())
}

func TestStreamHoldsItsDevice(t *testing.T) {
	reg := newTestRegistry(t)

	dev := must.M1(reg.Devices.Acquire(DeviceRequest{Ordinal: 0}))
	stream := must.M1(reg.Streams.Acquire(StreamRequest{Device: dev.Handle()}))

	// The device stays alive through the stream even after the caller's
	// lease goes away.
	h := dev.Handle()
	dev.Release()
	require.True(t, reg.Devices.IsAlive(h))

	stream.Release()
	require.False(t, reg.Devices.IsAlive(h))
}

func TestModuleCacheSharesCompiledModules(t *testing.T) {
	reg := newTestRegistry(t)
	dev := must.M1(reg.Devices.Acquire(DeviceRequest{Ordinal: 0}))
	defer dev.Release()

	req := ModuleRequest{Device: dev.Handle(), Source: "kernel void add() {}"}
	m1 := must.M1(reg.Modules.AcquireCached(req))
	m2 := must.M1(reg.Modules.AcquireCached(req))
	require.Equal(t, m1.Handle(), m2.Handle())
	h1 := m1.Handle()

	other := must.M1(reg.Modules.AcquireCached(ModuleRequest{Device: dev.Handle(), Source: "kernel void mul() {}"}))
	require.NotEqual(t, m1.Handle(), other.Handle())

	// Release the other module first so that m1's slot is the last one
	// pushed on the LIFO free-list.
	other.Release()
	m1.Release()
	m2.Release()

	// Fully released: the cache entry is stale and a fresh acquire
	// recompiles into a bumped generation.
	m3 := must.M1(reg.Modules.AcquireCached(req))
	require.Equal(t, h1.Index(), m3.Handle().Index())
	require.NotEqual(t, h1.Generation(), m3.Handle().Generation())
	m3.Release()
}

func TestPipelineCache(t *testing.T) {
	reg := newTestRegistry(t)
	dev := must.M1(reg.Devices.Acquire(DeviceRequest{Ordinal: 0}))
	defer dev.Release()

	mod := must.M1(reg.Modules.AcquireCached(ModuleRequest{Device: dev.Handle(), Source: "kernel void add() {}"}))
	defer mod.Release()

	p1 := must.M1(reg.Pipelines.AcquireCached(PipelineRequest{Module: mod.Handle(), Function: "add"}))
	p2 := must.M1(reg.Pipelines.AcquireCached(PipelineRequest{Module: mod.Handle(), Function: "add"}))
	require.Equal(t, p1.Handle(), p2.Handle())

	_, err := reg.Pipelines.AcquireCached(PipelineRequest{Module: mod.Handle(), Function: ""})
	require.True(t, orterr.IsCode(err, orterr.InvalidArgument))

	p1.Release()
	p2.Release()
}

func TestHeapManagerRawLifecycle(t *testing.T) {
	reg := newTestRegistry(t)
	dev := must.M1(reg.Devices.Acquire(DeviceRequest{Ordinal: 0}))
	defer dev.Release()

	heap := must.M1(reg.Heaps.Acquire(HeapRequest{Device: dev.Handle(), Size: 4096}))
	require.NotZero(t, heap.Payload().Base)
	require.Equal(t, 4096, heap.Payload().Size)
	heap.Release()

	_, err := reg.Heaps.Acquire(HeapRequest{Device: dev.Handle(), Size: 0})
	require.True(t, orterr.IsCode(err, orterr.InvalidArgument))
}

func TestBufferManagerUniqueOverAllocator(t *testing.T) {
	reg := newTestRegistry(t)
	dev := must.M1(reg.Devices.Acquire(DeviceRequest{Ordinal: 0}))
	defer dev.Release()

	buf := must.M1(reg.Buffers.Acquire(BufferRequest{Device: dev.Handle(), Size: 1024}))
	require.True(t, buf.Payload().View.IsValid())

	_, err := reg.Buffers.AcquireHandle(buf.Handle())
	require.True(t, orterr.IsCode(err, orterr.InvalidState)) // unique: already held

	buf.Release()
}

func TestStorageWeakSharedOverAllocator(t *testing.T) {
	reg := newTestRegistry(t)
	dev := must.M1(reg.Devices.Acquire(DeviceRequest{Ordinal: 0}))
	defer dev.Release()

	s := must.M1(reg.Storages.Acquire(StorageRequest{Device: dev.Handle(), DType: dtypes.Float32, Count: 256}))
	require.Equal(t, 1024, s.Payload().ByteSize())
	require.True(t, s.Payload().View.IsValid())

	w := must.M1(s.Downgrade())
	s.Release()
	_, ok := w.TryPromote()
	require.False(t, ok)
	w.Release()
}

func TestTensorImplCarriesErasedStorage(t *testing.T) {
	reg := newTestRegistry(t)
	dev := must.M1(reg.Devices.Acquire(DeviceRequest{Ordinal: 0}))
	defer dev.Release()

	tensor := must.M1(reg.Tensors.Acquire(TensorRequest{
		Device: dev.Handle(),
		DType:  dtypes.Float32,
		Shape:  []int{4, 8},
	}))
	impl := tensor.Payload()
	require.Equal(t, 32, impl.Count)
	require.True(t, impl.Storage.Valid())
	require.Equal(t, backends.CPU, impl.Storage.Execution())

	// Tag-checked downcasts: only the CPU view resolves.
	require.NotNil(t, impl.Storage.TryAsCPU())
	require.Nil(t, impl.Storage.TryAsCUDA())
	require.Nil(t, impl.Storage.TryAsMetal())

	var visited backends.Backend = -1
	impl.Storage.Visit(StorageVisitor{
		OnCPU:   func(*Storage) { visited = backends.CPU },
		OnCUDA:  func(*Storage) { visited = backends.CUDA },
		OnMetal: func(*Storage) { visited = backends.Metal },
	})
	require.Equal(t, backends.CPU, visited)

	_, err := reg.Tensors.Acquire(TensorRequest{Device: dev.Handle(), DType: dtypes.Float32, Shape: []int{4, 0}})
	require.True(t, orterr.IsCode(err, orterr.InvalidArgument))

	tensor.Release()
	require.Equal(t, 0, reg.Storages.OutstandingLeases())
}

func TestEmptyStorageVariant(t *testing.T) {
	var v AnyStorageLease
	require.False(t, v.Valid())
	require.Nil(t, v.Storage())
	require.Nil(t, v.TryAsCPU())

	called := false
	v.Visit(StorageVisitor{OnEmpty: func() { called = true }})
	require.True(t, called)
	v.Release() // no-op

	require.Equal(t, AnyStorageLease{}, EraseStorageLease(StrongLease[Storage]{}))
}

func TestRegistryShutdownRejectsOutstanding(t *testing.T) {
	reg, err := NewRegistry(cpu.New())
	require.NoError(t, err)
	require.NoError(t, reg.Configure(RegistryConfig{}))

	dev := must.M1(reg.Devices.Acquire(DeviceRequest{Ordinal: 0}))
	require.True(t, orterr.IsCode(reg.Shutdown(), orterr.InvalidState))
	dev.Release()
	require.NoError(t, reg.Shutdown())
}

func TestHandlePackedABI(t *testing.T) {
	reg := newTestRegistry(t)
	dev := must.M1(reg.Devices.Acquire(DeviceRequest{Ordinal: 0}))
	defer dev.Release()

	packed := dev.Handle().Pack()
	back := base.UnpackHandle[Device](packed)
	require.Equal(t, dev.Handle(), back)
	require.True(t, reg.Devices.IsAlive(back))
}
