// Package allocator implements the hierarchical slot allocator that backs
// device memory: variable-size requests are decomposed onto a fixed set of
// descending slot sizes (levels), slots split into children on descent and
// merge back upward when every sibling is free.
//
// This is not a buddy allocator: levels need not be powers of two and the
// fan-out between adjacent levels is whatever the level ratio gives.
package allocator

import (
	"sync"

	"github.com/orteaf/go-orteaf/backends"
	"github.com/orteaf/go-orteaf/orterr"
)

// SlotState is the allocation state of one slot within a level.
type SlotState int

//go:generate stringer -type=SlotState allocator.go

const (
	// Free slots are available for allocation or splitting.
	Free SlotState = iota
	// InUse slots belong to a live allocation.
	InUse
	// Split slots delegate their byte range to a run of children one
	// level down.
	Split
	// Retired slots are children of a merged parent. They keep their
	// position so a later re-split can revive them, but they do not
	// participate in searches or region accounting.
	Retired
)

// BufferView is a window into a backing heap region: a base address plus a
// size in bytes. The address is opaque to the core; only backend code may
// dereference it.
type BufferView struct {
	addr uintptr
	size int
}

// Addr returns the base address of the view.
func (v BufferView) Addr() uintptr { return v.addr }

// Size returns the view's length in bytes.
func (v BufferView) Size() int { return v.size }

// IsValid reports whether the view points at backing memory.
func (v BufferView) IsValid() bool { return v.addr != 0 }

// HeapOps allocates and frees the contiguous backing regions. The runtime
// wires these to the backend's CreateHeap/DestroyHeap slow ops.
type HeapOps struct {
	Alloc func(size int) (region backends.NativeHandle, base uintptr, err error)
	Free  func(region backends.NativeHandle) error
}

// Config shapes the allocator.
type Config struct {
	// Levels are the slot sizes in bytes, largest first. Each level must
	// divide the previous one evenly.
	Levels []int
	// InitialRegionSize, if positive, allocates one region up front. It is
	// rounded up to a multiple of Levels[0].
	InitialRegionSize int
}

type heapRegion struct {
	native backends.NativeHandle
	base   uintptr
	size   int
}

type slot struct {
	state SlotState
	addr  uintptr
	// childBegin indexes the first child in the next layer, once the slot
	// has been split at least once. Stays valid across merge/re-split.
	childBegin int
	parent     int
}

const noSlot = -1

type layer struct {
	slotSize int
	slots    []slot
}

// Allocator is the hierarchical slot allocator. All public methods are
// safe for concurrent use; a single mutex guards every operation.
type Allocator struct {
	mu         sync.Mutex
	cfg        Config
	heapOps    HeapOps
	regions    []heapRegion
	layers     []layer
	configured bool
}

// New returns an unconfigured allocator over the given heap ops.
func New(heapOps HeapOps) *Allocator {
	return &Allocator{heapOps: heapOps}
}

// Configure validates cfg, builds the level table and allocates the initial
// region if requested. Reconfiguring a live allocator is rejected.
func (a *Allocator) Configure(cfg Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.configured {
		return orterr.New(orterr.InvalidState, "allocator already configured")
	}
	if a.heapOps.Alloc == nil || a.heapOps.Free == nil {
		return orterr.New(orterr.InvalidArgument, "allocator requires heap ops")
	}
	if len(cfg.Levels) == 0 {
		return orterr.New(orterr.InvalidArgument, "allocator requires at least one level")
	}
	for i, l := range cfg.Levels {
		if l <= 0 {
			return orterr.Errorf(orterr.InvalidArgument, "level %d has non-positive size %d", i, l)
		}
		if i > 0 {
			if l > cfg.Levels[i-1] {
				return orterr.Errorf(orterr.InvalidArgument,
					"levels must be non-increasing, level %d (%d) > level %d (%d)", i, l, i-1, cfg.Levels[i-1])
			}
			if cfg.Levels[i-1]%l != 0 {
				return orterr.Errorf(orterr.InvalidArgument,
					"level %d (%d) does not divide level %d (%d)", i, l, i-1, cfg.Levels[i-1])
			}
		}
	}
	a.cfg = cfg
	a.layers = make([]layer, len(cfg.Levels))
	for i, l := range cfg.Levels {
		a.layers[i] = layer{slotSize: l}
	}
	a.configured = true
	if cfg.InitialRegionSize > 0 {
		if err := a.addRegionLocked(cfg.InitialRegionSize); err != nil {
			a.configured = false
			a.layers = nil
			return err
		}
	}
	return nil
}

// Shutdown releases every backing region. Fails with InvalidState while any
// slot is still InUse.
func (a *Allocator) Shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.configured {
		return orterr.New(orterr.NotConfigured, "allocator is not configured")
	}
	for li := range a.layers {
		for si := range a.layers[li].slots {
			if a.layers[li].slots[si].state == InUse {
				return orterr.Errorf(orterr.InvalidState,
					"allocator shutdown with live allocation at level %d slot %d", li, si)
			}
		}
	}
	var firstErr error
	for _, r := range a.regions {
		if err := a.heapOps.Free(r.native); err != nil && firstErr == nil {
			firstErr = orterr.Wrap(orterr.BackendFailure, err, "freeing heap region")
		}
	}
	a.regions = nil
	a.layers = nil
	a.configured = false
	return firstErr
}

// AddRegion grows the allocator by one backing region of at least size
// bytes (rounded up to a multiple of the coarsest level).
func (a *Allocator) AddRegion(size int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.configured {
		return orterr.New(orterr.NotConfigured, "allocator is not configured")
	}
	return a.addRegionLocked(size)
}

func (a *Allocator) addRegionLocked(size int) error {
	if size <= 0 {
		return orterr.Errorf(orterr.InvalidArgument, "region size must be positive, got %d", size)
	}
	l0 := a.cfg.Levels[0]
	size = (size + l0 - 1) / l0 * l0
	native, base, err := a.heapOps.Alloc(size)
	if err != nil {
		return orterr.Wrap(orterr.OutOfMemory, err, "allocating heap region")
	}
	if base == 0 {
		return orterr.New(orterr.BackendFailure, "heap region has nil base address")
	}
	a.regions = append(a.regions, heapRegion{native: native, base: base, size: size})
	root := &a.layers[0]
	for off := 0; off < size; off += l0 {
		root.slots = append(root.slots, slot{
			state:      Free,
			addr:       base + uintptr(off),
			childBegin: noSlot,
			parent:     noSlot,
		})
	}
	return nil
}

// requestSlots decomposes size greedily onto the level sizes, coarsest
// first. A remainder smaller than the finest level rounds the finest count
// up.
func (a *Allocator) requestSlots(size int) []int {
	rs := make([]int, len(a.cfg.Levels))
	rem := size
	for i, l := range a.cfg.Levels {
		rs[i] = rem / l
		rem %= l
	}
	if rem > 0 {
		rs[len(rs)-1]++
	}
	return rs
}

// Allocate satisfies a request of size bytes: tail search, then middle
// search, then expand-and-retry. Fails with OutOfMemory when all three
// fail, OutOfCapacity never (growth is region-based), InvalidArgument on a
// non-positive size.
func (a *Allocator) Allocate(size int) (BufferView, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.configured {
		return BufferView{}, orterr.New(orterr.NotConfigured, "allocator is not configured")
	}
	if size <= 0 {
		return BufferView{}, orterr.Errorf(orterr.InvalidArgument, "allocation size must be positive, got %d", size)
	}
	rs := a.requestSlots(size)

	p := a.findPlan(rs, backward)
	if !p.found {
		p = a.findPlan(rs, forward)
	}
	if !p.found {
		if err := a.expandForRequest(rs); err != nil {
			return BufferView{}, err
		}
		p = a.findPlan(rs, backward)
	}
	if !p.found {
		return BufferView{}, orterr.New(orterr.OutOfMemory, "cannot allocate dense region")
	}
	return a.executePlan(p, rs, size), nil
}

// expandForRequest adds a region big enough for the whole decomposed
// request, rounded up to the coarsest level.
func (a *Allocator) expandForRequest(rs []int) error {
	total := 0
	for i, n := range rs {
		total += n * a.cfg.Levels[i]
	}
	return a.addRegionLocked(total)
}

// Deallocate returns the slots behind view to the allocator and merges
// upward where possible. Freeing slots that are already free is a no-op;
// a view outside every managed region is rejected with InvalidArgument.
func (a *Allocator) Deallocate(view BufferView, size int) error {
	if !view.IsValid() {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.configured {
		return orterr.New(orterr.NotConfigured, "allocator is not configured")
	}
	if !a.ownsAddr(view.Addr()) {
		return orterr.Errorf(orterr.InvalidArgument, "view addr %#x is outside every managed region", view.Addr())
	}
	rs := a.requestSlots(size)
	offset := uintptr(0)
	for li := range rs {
		l := &a.layers[li]
		for i := 0; i < rs[li]; i++ {
			want := view.Addr() + offset
			for si := range l.slots {
				s := &l.slots[si]
				if s.state == InUse && s.addr == want {
					s.state = Free
					a.tryMergeUpward(li, si)
					break
				}
			}
			offset += uintptr(l.slotSize)
		}
	}
	return nil
}

func (a *Allocator) ownsAddr(addr uintptr) bool {
	for _, r := range a.regions {
		if addr >= r.base && addr < r.base+uintptr(r.size) {
			return true
		}
	}
	return false
}

// splitSlot turns a Free slot into a Split parent. First-time splits append
// fresh children to the next layer; re-splits revive the retired children
// in place.
func (a *Allocator) splitSlot(layerIdx, slotIdx int) {
	l := &a.layers[layerIdx]
	s := &l.slots[slotIdx]
	child := &a.layers[layerIdx+1]
	fan := l.slotSize / child.slotSize
	if s.childBegin == noSlot {
		s.childBegin = len(child.slots)
		for i := 0; i < fan; i++ {
			child.slots = append(child.slots, slot{
				state:      Free,
				addr:       s.addr + uintptr(i*child.slotSize),
				childBegin: noSlot,
				parent:     slotIdx,
			})
		}
	} else {
		for i := 0; i < fan; i++ {
			child.slots[s.childBegin+i].state = Free
		}
	}
	s.state = Split
}

// tryMergeUpward walks from a just-freed slot towards the root, collapsing
// any parent whose children are all Free.
func (a *Allocator) tryMergeUpward(layerIdx, slotIdx int) {
	for layerIdx > 0 {
		s := &a.layers[layerIdx].slots[slotIdx]
		parentIdx := s.parent
		if parentIdx == noSlot {
			return
		}
		parent := &a.layers[layerIdx-1].slots[parentIdx]
		fan := a.layers[layerIdx-1].slotSize / a.layers[layerIdx].slotSize
		for i := 0; i < fan; i++ {
			if a.layers[layerIdx].slots[parent.childBegin+i].state != Free {
				return
			}
		}
		for i := 0; i < fan; i++ {
			a.layers[layerIdx].slots[parent.childBegin+i].state = Retired
		}
		parent.state = Free
		slotIdx = parentIdx
		layerIdx--
	}
}

// CheckConsistency verifies that the Free/InUse slots tile every backing
// region exactly: no overlap, no leak, Split ranges exactly covered by
// their children. Intended for tests and debug sweeps.
func (a *Allocator) CheckConsistency() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.configured {
		return nil
	}
	var covered int
	for si := range a.layers[0].slots {
		n, err := a.coveredBytes(0, si)
		if err != nil {
			return err
		}
		covered += n
	}
	var total int
	for _, r := range a.regions {
		total += r.size
	}
	if covered != total {
		return orterr.Errorf(orterr.InvalidState,
			"slots cover %d bytes of %d managed", covered, total)
	}
	return nil
}

func (a *Allocator) coveredBytes(layerIdx, slotIdx int) (int, error) {
	l := &a.layers[layerIdx]
	s := &l.slots[slotIdx]
	switch s.state {
	case Free, InUse:
		return l.slotSize, nil
	case Retired:
		return 0, orterr.Errorf(orterr.InvalidState,
			"retired slot reached from a live parent at level %d slot %d", layerIdx, slotIdx)
	case Split:
		if layerIdx+1 >= len(a.layers) {
			return 0, orterr.Errorf(orterr.InvalidState, "split slot at finest level %d", layerIdx)
		}
		fan := l.slotSize / a.layers[layerIdx+1].slotSize
		sum := 0
		for i := 0; i < fan; i++ {
			n, err := a.coveredBytes(layerIdx+1, s.childBegin+i)
			if err != nil {
				return 0, err
			}
			sum += n
		}
		if sum != l.slotSize {
			return 0, orterr.Errorf(orterr.InvalidState,
				"children of level %d slot %d cover %d bytes of %d", layerIdx, slotIdx, sum, l.slotSize)
		}
		return sum, nil
	}
	return 0, orterr.Errorf(orterr.InvalidState, "slot in unknown state %d", s.state)
}
