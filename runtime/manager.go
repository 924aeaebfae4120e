package runtime

import (
	"sync"
	"sync/atomic"

	"github.com/orteaf/go-orteaf/base"
	"github.com/orteaf/go-orteaf/orterr"
)

// Config sizes a manager's paired pools. Zero capacities and block sizes
// take the defaults listed in slotpool.go; the growth chunk sizes must be
// positive (zero is rejected with InvalidArgument) and a zero MaxCapacity
// leaves growth unbounded.
type Config struct {
	ControlBlockCapacity        int
	ControlBlockBlockSize       int
	ControlBlockGrowthChunkSize int
	ControlBlockMaxCapacity     int

	PayloadCapacity        int
	PayloadBlockSize       int
	PayloadGrowthChunkSize int
	PayloadMaxCapacity     int
}

// DefaultConfig returns the stock pool sizing: 64-slot capacity in 16-slot
// blocks, growing one block at a time, for both pools.
func DefaultConfig() Config {
	return Config{
		ControlBlockCapacity:        DefaultPoolCapacity,
		ControlBlockBlockSize:       DefaultPoolBlockSize,
		ControlBlockGrowthChunkSize: DefaultPoolGrowthChunk,
		PayloadCapacity:             DefaultPoolCapacity,
		PayloadBlockSize:            DefaultPoolBlockSize,
		PayloadGrowthChunkSize:      DefaultPoolGrowthChunk,
	}
}

// Ops carries the payload callbacks a typed manager is instantiated with.
// Create and Destroy run without any pool mutex held, so they are free to
// acquire sub-resources from other managers.
type Ops[P, R any] struct {
	// Validate rejects malformed requests before any slot is reserved.
	// Optional.
	Validate func(req R) error
	// Create initializes the payload in place. On error the reservation is
	// rolled back completely.
	Create func(payload *P, req R) error
	// Destroy tears the payload down. It must not fail: the slot is
	// returned to the free-list unconditionally afterwards.
	Destroy func(payload *P)
}

// Manager pairs a payload slot pool with a control-block slot pool and
// vends leases over them. Any goroutine may call any method.
type Manager[P, R any] struct {
	name string
	cat  Category
	ops  Ops[P, R]

	mu         sync.Mutex
	configured bool
	payloads   *SlotPool[P]
	cbs        *SlotPool[controlBlock[P]]
	// cbOf maps a live payload index to its control block index.
	cbOf []uint32

	outstanding atomic.Int64
}

// NewManager builds an unconfigured manager.
func NewManager[P, R any](name string, category Category, ops Ops[P, R]) *Manager[P, R] {
	return &Manager[P, R]{name: name, cat: category, ops: ops}
}

// Name returns the manager's diagnostic name.
func (m *Manager[P, R]) Name() string { return m.name }

// Category returns the control-block discipline.
func (m *Manager[P, R]) Category() Category { return m.cat }

// Configure builds the pools. Reconfiguring without an intervening
// Shutdown is rejected; configure-shutdown-configure yields a pool
// indistinguishable from a fresh one.
func (m *Manager[P, R]) Configure(cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.configured {
		return orterr.Errorf(orterr.InvalidState, "%s is already configured", m.name)
	}
	if m.ops.Create == nil || m.ops.Destroy == nil {
		return orterr.Errorf(orterr.InvalidArgument, "%s requires create and destroy callbacks", m.name)
	}
	payloads, err := NewSlotPool[P](PoolConfig{
		Capacity:        cfg.PayloadCapacity,
		BlockSize:       cfg.PayloadBlockSize,
		GrowthChunkSize: cfg.PayloadGrowthChunkSize,
		MaxCapacity:     cfg.PayloadMaxCapacity,
	})
	if err != nil {
		return orterr.Wrap(orterr.CodeOf(err), err, m.name+" payload pool")
	}
	cbs, err := NewSlotPool[controlBlock[P]](PoolConfig{
		Capacity:        cfg.ControlBlockCapacity,
		BlockSize:       cfg.ControlBlockBlockSize,
		GrowthChunkSize: cfg.ControlBlockGrowthChunkSize,
		MaxCapacity:     cfg.ControlBlockMaxCapacity,
	})
	if err != nil {
		return orterr.Wrap(orterr.CodeOf(err), err, m.name+" control block pool")
	}
	m.payloads = payloads
	m.cbs = cbs
	m.cbOf = nil
	m.outstanding.Store(0)
	m.configured = true
	return nil
}

// Shutdown tears the pools down. It fails with InvalidState while strong
// leases are outstanding; outstanding weak leases are permitted and their
// later TryPromote returns false.
func (m *Manager[P, R]) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.configured {
		return orterr.Errorf(orterr.NotConfigured, "%s is not configured", m.name)
	}
	if n := m.outstanding.Load(); n > 0 {
		return orterr.Errorf(orterr.InvalidState, "%s shutdown with %d outstanding leases", m.name, n)
	}
	m.payloads = nil
	m.cbs = nil
	m.cbOf = nil
	m.configured = false
	return nil
}

// IsConfigured reports whether the manager holds live pools.
func (m *Manager[P, R]) IsConfigured() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.configured
}

// OutstandingLeases returns the number of live strong leases.
func (m *Manager[P, R]) OutstandingLeases() int {
	return int(m.outstanding.Load())
}

func (m *Manager[P, R]) pools() (*SlotPool[P], *SlotPool[controlBlock[P]], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.configured {
		return nil, nil, orterr.Errorf(orterr.NotConfigured, "%s is not configured", m.name)
	}
	return m.payloads, m.cbs, nil
}

// Acquire creates a payload for req and returns a strong lease on it.
func (m *Manager[P, R]) Acquire(req R) (StrongLease[P], error) {
	payloads, cbs, err := m.pools()
	if err != nil {
		return StrongLease[P]{}, err
	}
	if m.ops.Validate != nil {
		if err := m.ops.Validate(req); err != nil {
			return StrongLease[P]{}, orterr.Wrap(orterr.InvalidArgument, err, "validating "+m.name+" request")
		}
	}

	index, err := payloads.ReserveUncreated()
	if err != nil {
		return StrongLease[P]{}, orterr.Wrap(orterr.CodeOf(err), err, m.name+" payload reservation")
	}
	slot := payloads.At(index)
	if err := m.ops.Create(slot.Payload(), req); err != nil {
		payloads.Unreserve(index)
		return StrongLease[P]{}, orterr.Wrap(orterr.CodeOf(err), err, "creating "+m.name+" payload")
	}
	payloads.MarkCreated(index)
	handle := payloads.HandleFor(index)

	cbIndex, err := cbs.ReserveUncreated()
	if err != nil {
		m.ops.Destroy(slot.Payload())
		payloads.Release(index)
		return StrongLease[P]{}, orterr.Wrap(orterr.CodeOf(err), err, m.name+" control block reservation")
	}
	cb := cbs.At(cbIndex).Payload()
	cb.reset(m.cat, slot.Payload(), index, handle, cbIndex)
	cbs.MarkCreated(cbIndex)
	m.bindControlBlock(index, cbIndex)

	cb.acquire()
	m.outstanding.Add(1)
	return StrongLease[P]{owner: m, cb: cb, payload: slot.Payload()}, nil
}

// AcquireHandle mints a fresh strong lease for a payload the caller
// already holds a handle to. Fails with HandleExpired if the generation
// mismatches or the slot is not created, and with InvalidState when a
// Unique payload is already held.
func (m *Manager[P, R]) AcquireHandle(h base.Handle[P]) (StrongLease[P], error) {
	payloads, cbs, err := m.pools()
	if err != nil {
		return StrongLease[P]{}, err
	}
	if !h.IsValid() {
		return StrongLease[P]{}, orterr.Errorf(orterr.InvalidArgument, "%s: invalid handle", m.name)
	}
	if !payloads.IsLive(h) {
		return StrongLease[P]{}, orterr.Errorf(orterr.HandleExpired, "%s: handle %s is stale", m.name, h)
	}
	cbIndex, ok := m.controlBlockOf(h.Index())
	if !ok {
		return StrongLease[P]{}, orterr.Errorf(orterr.HandleExpired, "%s: handle %s has no control block", m.name, h)
	}
	cb := cbs.At(cbIndex).Payload()
	if !cb.acquire() {
		return StrongLease[P]{}, orterr.Errorf(orterr.InvalidState, "%s: %s is exclusively held", m.name, h)
	}
	// The slot may have been released between the liveness check and the
	// acquire; back out if the generation moved.
	if !payloads.IsLive(h) {
		cb.release()
		return StrongLease[P]{}, orterr.Errorf(orterr.HandleExpired, "%s: handle %s expired", m.name, h)
	}
	m.outstanding.Add(1)
	return StrongLease[P]{owner: m, cb: cb, payload: cb.payload}, nil
}

// AcquireWeak mints a weak lease for a live WeakShared payload.
func (m *Manager[P, R]) AcquireWeak(h base.Handle[P]) (WeakLease[P], error) {
	payloads, cbs, err := m.pools()
	if err != nil {
		return WeakLease[P]{}, err
	}
	if m.cat != WeakShared {
		return WeakLease[P]{}, orterr.Errorf(orterr.InvalidState, "%s: %s payloads have no weak leases", m.name, m.cat)
	}
	if !payloads.IsLive(h) {
		return WeakLease[P]{}, orterr.Errorf(orterr.HandleExpired, "%s: handle %s is stale", m.name, h)
	}
	cbIndex, ok := m.controlBlockOf(h.Index())
	if !ok {
		return WeakLease[P]{}, orterr.Errorf(orterr.HandleExpired, "%s: handle %s has no control block", m.name, h)
	}
	cb := cbs.At(cbIndex).Payload()
	cb.acquireWeak()
	return WeakLease[P]{owner: m, cb: cb}, nil
}

// IsAlive reports whether h still refers to a live payload.
func (m *Manager[P, R]) IsAlive(h base.Handle[P]) bool {
	m.mu.Lock()
	payloads := m.payloads
	m.mu.Unlock()
	return payloads != nil && payloads.IsLive(h)
}

func (m *Manager[P, R]) bindControlBlock(payloadIndex, cbIndex uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for int(payloadIndex) >= len(m.cbOf) {
		m.cbOf = append(m.cbOf, base.InvalidIndex)
	}
	m.cbOf[payloadIndex] = cbIndex
}

func (m *Manager[P, R]) controlBlockOf(payloadIndex uint32) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(payloadIndex) >= len(m.cbOf) || m.cbOf[payloadIndex] == base.InvalidIndex {
		return 0, false
	}
	return m.cbOf[payloadIndex], true
}

func (m *Manager[P, R]) unbindControlBlock(payloadIndex uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(payloadIndex) < len(m.cbOf) {
		m.cbOf[payloadIndex] = base.InvalidIndex
	}
}

// releaseStrong implements the lease callback: the terminal release runs
// Destroy and returns both slots. For WeakShared payloads with live weak
// references the payload goes away but the control block stays until the
// weak count drains.
func (m *Manager[P, R]) releaseStrong(cb *controlBlock[P]) {
	terminal := cb.release()
	m.outstanding.Add(-1)
	if !terminal {
		return
	}
	m.destroyPayload(cb)
	if cb.category == WeakShared {
		m.mu.Lock()
		cb.payloadFreed = true
		drained := cb.weak.Load() == 0
		m.mu.Unlock()
		if !drained {
			return
		}
	}
	m.recycleControlBlock(cb)
}

// releaseWeakRef implements the weak lease callback.
func (m *Manager[P, R]) releaseWeakRef(cb *controlBlock[P]) {
	if !cb.releaseWeak() {
		return
	}
	m.mu.Lock()
	freed := cb.payloadFreed
	m.mu.Unlock()
	if freed {
		m.recycleControlBlock(cb)
	}
}

func (m *Manager[P, R]) noteAcquire() {
	m.outstanding.Add(1)
}

func (m *Manager[P, R]) category() Category { return m.cat }

func (m *Manager[P, R]) destroyPayload(cb *controlBlock[P]) {
	m.ops.Destroy(cb.payload)
	m.unbindControlBlock(cb.payloadIndex)
	m.mu.Lock()
	payloads := m.payloads
	m.mu.Unlock()
	if payloads != nil {
		payloads.Release(cb.payloadIndex)
	}
	cb.payload = nil
}

func (m *Manager[P, R]) recycleControlBlock(cb *controlBlock[P]) {
	m.mu.Lock()
	cbs := m.cbs
	m.mu.Unlock()
	if cbs != nil {
		cbs.Release(cb.self)
	}
}
