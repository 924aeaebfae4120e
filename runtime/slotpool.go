package runtime

import (
	"sync"

	"github.com/orteaf/go-orteaf/base"
	"github.com/orteaf/go-orteaf/orterr"
)

// Slot is one reusable storage cell inside a SlotPool: payload storage, a
// created flag and a generation counter. While created is false the payload
// region holds a stale or zero value and must not be read.
type Slot[T any] struct {
	payload    T
	created    bool
	generation uint32
}

// Payload returns a pointer to the payload storage. Only meaningful while
// the slot is created.
func (s *Slot[T]) Payload() *T { return &s.payload }

// Created reports whether the payload is live.
func (s *Slot[T]) Created() bool { return s.created }

// Generation returns the slot's current generation. Generations start at 1
// and bump on every release; 0 is reserved and never current.
func (s *Slot[T]) Generation() uint32 { return s.generation }

// PoolConfig shapes one SlotPool.
type PoolConfig struct {
	// Capacity is the initial slot count, rounded up to whole blocks.
	Capacity int
	// BlockSize is the number of slots per storage block.
	BlockSize int
	// GrowthChunkSize is the number of blocks added when the free-list
	// runs dry. Must be positive; growth is disabled via MaxCapacity, not
	// by zeroing the chunk size.
	GrowthChunkSize int
	// MaxCapacity caps the total slot count; 0 means unbounded. Setting
	// it at or below Capacity disables growth.
	MaxCapacity int
}

// Defaults applied by NewSlotPool for zero fields.
const (
	DefaultPoolCapacity    = 64
	DefaultPoolBlockSize   = 16
	DefaultPoolGrowthChunk = 1
)

func (c *PoolConfig) withDefaults() PoolConfig {
	out := *c
	if out.Capacity <= 0 {
		out.Capacity = DefaultPoolCapacity
	}
	if out.BlockSize <= 0 {
		out.BlockSize = DefaultPoolBlockSize
	}
	return out
}

// SlotPool is a segmented, address-stable array of slots with a LIFO
// free-list. Slot pointers stay valid for the pool's lifetime; growth adds
// blocks and never relocates.
type SlotPool[T any] struct {
	mu    sync.Mutex
	slots *base.BlockVector[Slot[T]]
	free  []uint32
	cfg   PoolConfig
}

// NewSlotPool builds a pool with cfg (zero capacity and block size take
// defaults). A non-positive GrowthChunkSize is rejected with
// InvalidArgument.
func NewSlotPool[T any](cfg PoolConfig) (*SlotPool[T], error) {
	if cfg.GrowthChunkSize <= 0 {
		return nil, orterr.Errorf(orterr.InvalidArgument, "growth chunk size must be > 0, got %d", cfg.GrowthChunkSize)
	}
	cfg = cfg.withDefaults()
	p := &SlotPool[T]{
		slots: base.NewBlockVector[Slot[T]](cfg.BlockSize),
		cfg:   cfg,
	}
	blocks := (cfg.Capacity + cfg.BlockSize - 1) / cfg.BlockSize
	p.growLocked(blocks)
	return p, nil
}

// growLocked appends blocks new blocks and pushes their indices on the
// free-list so they pop lowest-index first.
func (p *SlotPool[T]) growLocked(blocks int) {
	if blocks <= 0 {
		return
	}
	add := blocks * p.cfg.BlockSize
	if p.cfg.MaxCapacity > 0 {
		room := p.cfg.MaxCapacity - p.slots.Len()
		if room <= 0 {
			return
		}
		if add > room {
			add = room
		}
	}
	start := p.slots.Len()
	p.slots.Grow(add)
	for i := 0; i < add; i++ {
		idx := start + add - 1 - i
		p.slots.At(idx).generation = 1
		p.free = append(p.free, uint32(idx))
	}
}

// ReserveUncreated pops a free slot index, growing the pool by the
// configured chunk when the free-list is empty. Fails with OutOfCapacity
// once MaxCapacity is reached.
func (p *SlotPool[T]) ReserveUncreated() (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		p.growLocked(p.cfg.GrowthChunkSize)
	}
	if len(p.free) == 0 {
		return 0, orterr.Errorf(orterr.OutOfCapacity, "pool exhausted at %d slots", p.slots.Len())
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return idx, nil
}

// At returns the slot at index. The pointer is stable for the pool's
// lifetime.
func (p *SlotPool[T]) At(index uint32) *Slot[T] {
	return p.slots.At(int(index))
}

// MarkCreated flips the created flag after a successful create callback.
func (p *SlotPool[T]) MarkCreated(index uint32) {
	p.slots.At(int(index)).created = true
}

// Unreserve returns a still-uncreated slot to the free-list (create
// callback failure rollback).
func (p *SlotPool[T]) Unreserve(index uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, index)
}

// Release destroys nothing itself: the caller runs the destroy callback
// first. It clears the payload, bumps the generation and pushes the index
// back on the free-list. The bump happens before the slot can be handed
// out again (both run under the pool mutex).
func (p *SlotPool[T]) Release(index uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.slots.At(int(index))
	var zero T
	s.payload = zero
	s.created = false
	s.generation++
	if s.generation == 0 { // generation 0 stays reserved across wraps
		s.generation = 1
	}
	p.free = append(p.free, index)
}

// IsLive reports whether h resolves to a created slot of matching
// generation.
func (p *SlotPool[T]) IsLive(h base.Handle[T]) bool {
	if !h.IsValid() || int(h.Index()) >= p.slots.Len() {
		return false
	}
	s := p.slots.At(int(h.Index()))
	return s.created && s.generation == h.Generation()
}

// HandleFor mints the handle of a live slot.
func (p *SlotPool[T]) HandleFor(index uint32) base.Handle[T] {
	return base.NewHandle[T](index, p.slots.At(int(index)).generation)
}

// Len returns the number of slots, free or not.
func (p *SlotPool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slots.Len()
}

// FreeCount returns the length of the free-list.
func (p *SlotPool[T]) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
