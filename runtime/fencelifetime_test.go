package runtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orteaf/go-orteaf/backends"
	"github.com/orteaf/go-orteaf/backends/cpu"
	"github.com/orteaf/go-orteaf/orterr"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(cpu.New())
	require.NoError(t, err)
	require.NoError(t, reg.Configure(RegistryConfig{}))
	t.Cleanup(func() { _ = reg.Shutdown() })
	return reg
}

// fenceProbe simulates GPU progress: buffers become done as the test says
// so.
type fenceProbe struct {
	mu   sync.Mutex
	done map[backends.CommandBufferID]bool
}

func newFenceProbe() *fenceProbe {
	return &fenceProbe{done: make(map[backends.CommandBufferID]bool)}
}

func (p *fenceProbe) markDone(bufs ...backends.CommandBufferID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range bufs {
		p.done[b] = true
	}
}

func (p *fenceProbe) probe(f *Fence) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done[f.CommandBuffer()]
}

type fenceFixture struct {
	reg   *Registry
	dev   StrongLease[Device]
	queue StrongLease[CommandQueue]
	fl    *FenceLifetime
	probe *fenceProbe
}

func newFenceFixture(t *testing.T) *fenceFixture {
	t.Helper()
	reg := newTestRegistry(t)
	dev, err := reg.Devices.Acquire(DeviceRequest{Ordinal: 0})
	require.NoError(t, err)
	queue, err := reg.Queues.Acquire(QueueRequest{Device: dev.Handle()})
	require.NoError(t, err)
	probe := newFenceProbe()
	fl := NewFenceLifetime(reg.Fences, dev.Handle(), queue.Handle(), probe.probe)
	t.Cleanup(func() {
		fl.Clear()
		queue.Release()
		dev.Release()
	})
	return &fenceFixture{reg: reg, dev: dev, queue: queue, fl: fl, probe: probe}
}

// track submits one hazard on the fixture queue and hands it to the
// lifetime manager, returning its command buffer id.
func (fx *fenceFixture) track(t *testing.T) backends.CommandBufferID {
	t.Helper()
	lease, err := fx.fl.Acquire()
	require.NoError(t, err)
	require.NoError(t, Submit(fx.reg.Ops(), &fx.queue, &lease))
	buf := lease.Payload().CommandBuffer()
	require.NoError(t, fx.fl.Track(lease))
	return buf
}

func TestFenceLifetimeUnconfigured(t *testing.T) {
	fl := &FenceLifetime{}
	_, err := fl.Acquire()
	require.True(t, orterr.IsCode(err, orterr.InvalidState))
}

// Fence FIFO: three hazards, partial progress, batch
// release in track order.
func TestFenceFIFORelease(t *testing.T) {
	fx := newFenceFixture(t)

	b1 := fx.track(t)
	b2 := fx.track(t)
	b3 := fx.track(t)
	require.Equal(t, 3, fx.fl.Size())
	require.Equal(t, 3, fx.reg.Fences.OutstandingLeases())

	// Nothing signalled: nothing releases.
	require.Equal(t, 0, fx.fl.ReleaseReady())
	require.Equal(t, 3, fx.fl.Size())

	fx.probe.markDone(b1, b2)
	require.Equal(t, 2, fx.fl.ReleaseReady())
	require.Equal(t, 1, fx.fl.Size())
	require.Equal(t, 1, fx.reg.Fences.OutstandingLeases())

	fx.probe.markDone(b3)
	require.Equal(t, 1, fx.fl.ReleaseReady())
	require.True(t, fx.fl.Empty())
	require.Equal(t, 0, fx.reg.Fences.OutstandingLeases())
}

// An unsignalled hazard blocks every hazard tracked after it, even one whose
// own probe already reports done; once it signals, the ready prefix
// releases in one batch.
func TestFenceUnsignalledHazardBlocksLater(t *testing.T) {
	fx := newFenceFixture(t)

	b1 := fx.track(t)
	b2 := fx.track(t)
	b3 := fx.track(t)

	fx.probe.markDone(b2)
	require.Equal(t, 0, fx.fl.ReleaseReady())
	require.Equal(t, 3, fx.fl.Size())

	fx.probe.markDone(b1)
	require.Equal(t, 2, fx.fl.ReleaseReady())
	require.Equal(t, 1, fx.fl.Size())

	// The unsignalled tail hazard blocks until its own probe flips.
	require.Equal(t, 0, fx.fl.ReleaseReady())
	fx.probe.markDone(b3)
	require.Equal(t, 1, fx.fl.ReleaseReady())
}

func TestFenceTrackValidation(t *testing.T) {
	fx := newFenceFixture(t)

	// A released lease is rejected outright.
	require.True(t, orterr.IsCode(fx.fl.Track(StrongLease[Fence]{}), orterr.InvalidArgument))

	// A fence without a command buffer is rejected and released.
	lease, err := fx.fl.Acquire()
	require.NoError(t, err)
	err = fx.fl.Track(lease)
	require.True(t, orterr.IsCode(err, orterr.InvalidState))
	require.Equal(t, 0, fx.reg.Fences.OutstandingLeases())

	// A fence bound to a different queue is rejected and released.
	other, err := fx.reg.Queues.Acquire(QueueRequest{Device: fx.dev.Handle()})
	require.NoError(t, err)
	defer other.Release()
	otherFl := NewFenceLifetime(fx.reg.Fences, fx.dev.Handle(), other.Handle(), fx.probe.probe)
	foreign, err := otherFl.Acquire()
	require.NoError(t, err)
	require.NoError(t, Submit(fx.reg.Ops(), &other, &foreign))
	err = fx.fl.Track(foreign)
	require.True(t, orterr.IsCode(err, orterr.InvalidArgument))
	require.Equal(t, 0, fx.reg.Fences.OutstandingLeases())
}

func TestFenceClear(t *testing.T) {
	fx := newFenceFixture(t)
	fx.track(t)
	fx.track(t)
	require.Equal(t, 2, fx.fl.Size())
	fx.fl.Clear()
	require.True(t, fx.fl.Empty())
	require.Equal(t, 0, fx.reg.Fences.OutstandingLeases())
}

func TestFenceCompaction(t *testing.T) {
	fx := newFenceFixture(t)

	bufs := make([]backends.CommandBufferID, 6)
	for i := range bufs {
		bufs[i] = fx.track(t)
	}

	// Release half: head crosses the compaction threshold and the backing
	// slice shifts down.
	fx.probe.markDone(bufs[0], bufs[1], bufs[2])
	require.Equal(t, 3, fx.fl.ReleaseReady())
	require.Equal(t, 0, fx.fl.head)
	require.Equal(t, 3, len(fx.fl.hazards))

	fx.probe.markDone(bufs[3], bufs[4], bufs[5])
	require.Equal(t, 3, fx.fl.ReleaseReady())
	require.True(t, fx.fl.Empty())
}

func TestFenceReuseAfterRelease(t *testing.T) {
	fx := newFenceFixture(t)

	b1 := fx.track(t)
	fx.probe.markDone(b1)
	require.Equal(t, 1, fx.fl.ReleaseReady())

	// The recycled fence comes back unbound: no stale queue or buffer.
	lease, err := fx.fl.Acquire()
	require.NoError(t, err)
	require.False(t, lease.Payload().HasCommandBuffer())
	require.Equal(t, fx.queue.Handle(), lease.Payload().CommandQueue())
	lease.Release()
}
