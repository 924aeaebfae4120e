package allocator

// Plan search. The tail search scans from the back (preferring placements
// near the end of the managed range), the middle search scans from the
// front and takes the first fit. A plan places a run of rs[first] slots at
// the coarsest level with a non-zero count, anchored so that the slot
// following the run can serve the finer levels through its child chain.

type direction int

const (
	forward direction = iota
	backward
)

type allocationPlan struct {
	found bool
	// fresh plans split downward from a Free slot above the run's level;
	// the run and everything below land on the leftmost fresh children.
	fresh                 bool
	freshLayer, freshSlot int
	// runLayer/runStart locate the leftmost slot of the run; anchor is the
	// slot following the run whose children serve the finer levels, noSlot
	// when the request needs none.
	runLayer, runStart, anchor int
}

func deeperNeed(rs []int, from int) bool {
	for _, n := range rs[from:] {
		if n > 0 {
			return true
		}
	}
	return false
}

func firstNonZero(rs []int) int {
	for i, n := range rs {
		if n > 0 {
			return i
		}
	}
	return len(rs)
}

// findPlan looks for a placement of rs. dir == backward is the tail
// search, dir == forward the middle search.
func (a *Allocator) findPlan(rs []int, dir direction) allocationPlan {
	firstNZ := firstNonZero(rs)
	if firstNZ == len(rs) {
		return allocationPlan{}
	}
	return a.searchLevel(rs, 0, 0, len(a.layers[0].slots)-1, dir, firstNZ)
}

// searchLevel scans slots [lo, hi] of one layer. Above the run's layer it
// descends through Split slots (or plans a fresh split of a Free slot); at
// the run's layer it looks for the run itself.
func (a *Allocator) searchLevel(rs []int, layerIdx, lo, hi int, dir direction, firstNZ int) allocationPlan {
	if hi < lo {
		return allocationPlan{}
	}
	if layerIdx == firstNZ {
		return a.searchRun(rs, layerIdx, lo, hi, dir)
	}
	l := &a.layers[layerIdx]
	for idx := range scan(lo, hi, dir) {
		s := &l.slots[idx]
		switch s.state {
		case Split:
			fan := l.slotSize / a.layers[layerIdx+1].slotSize
			if p := a.searchLevel(rs, layerIdx+1, s.childBegin, s.childBegin+fan-1, dir, firstNZ); p.found {
				return p
			}
		case Free:
			if a.canServeFresh(layerIdx, rs) {
				return allocationPlan{found: true, fresh: true, freshLayer: layerIdx, freshSlot: idx}
			}
		}
	}
	return allocationPlan{}
}

// scan yields indices of [lo, hi] in dir order.
func scan(lo, hi int, dir direction) func(func(int) bool) {
	return func(yield func(int) bool) {
		if dir == forward {
			for i := lo; i <= hi; i++ {
				if !yield(i) {
					return
				}
			}
			return
		}
		for i := hi; i >= lo; i-- {
			if !yield(i) {
				return
			}
		}
	}
}

// searchRun looks for a run of rs[layerIdx] Free slots within [lo, hi],
// plus a usable anchor when finer levels are wanted.
func (a *Allocator) searchRun(rs []int, layerIdx, lo, hi int, dir direction) allocationPlan {
	l := &a.layers[layerIdx]
	need := rs[layerIdx]
	wantDeeper := deeperNeed(rs, layerIdx+1)

	idx := hi
	if dir == forward {
		idx = lo
	}
	for lo <= idx && idx <= hi {
		if l.slots[idx].state != Free {
			idx = step(idx, dir)
			continue
		}
		rLo, rHi := a.maximalRun(layerIdx, idx, lo, hi)
		if rHi-rLo+1 >= need {
			if p, ok := a.placeRun(rs, layerIdx, rLo, rHi, hi, need, wantDeeper, dir); ok {
				return p
			}
		}
		if dir == forward {
			idx = rHi + 1
		} else {
			idx = rLo - 1
		}
	}
	return allocationPlan{}
}

func step(idx int, dir direction) int {
	if dir == forward {
		return idx + 1
	}
	return idx - 1
}

// maximalRun extends from a Free slot to the largest surrounding run of
// Free slots inside [lo, hi] that is contiguous in address space (runs
// never cross region boundaries).
func (a *Allocator) maximalRun(layerIdx, idx, lo, hi int) (rLo, rHi int) {
	l := &a.layers[layerIdx]
	sz := uintptr(l.slotSize)
	rLo, rHi = idx, idx
	for rLo > lo && l.slots[rLo-1].state == Free && l.slots[rLo-1].addr+sz == l.slots[rLo].addr {
		rLo--
	}
	for rHi < hi && l.slots[rHi+1].state == Free && l.slots[rHi].addr+sz == l.slots[rHi+1].addr {
		rHi++
	}
	return rLo, rHi
}

// placeRun picks a placement of need slots inside the maximal run
// [rLo, rHi]. With finer levels wanted, the slot following the placement
// must serve them: either the boundary slot just past the run, or a Free
// slot inside the run that execution will split.
func (a *Allocator) placeRun(rs []int, layerIdx, rLo, rHi, hi, need int, wantDeeper bool, dir direction) (allocationPlan, bool) {
	l := &a.layers[layerIdx]
	if !wantDeeper {
		start := rLo
		if dir == backward {
			start = rHi - need + 1
		}
		return allocationPlan{found: true, runLayer: layerIdx, runStart: start, anchor: noSlot}, true
	}

	boundaryOK := func(runEnd, anchor int) bool {
		if anchor > hi {
			return false
		}
		if l.slots[runEnd].addr+uintptr(l.slotSize) != l.slots[anchor].addr {
			return false
		}
		return a.canServe(layerIdx, anchor, rs)
	}
	plan := func(start, anchor int) (allocationPlan, bool) {
		return allocationPlan{found: true, runLayer: layerIdx, runStart: start, anchor: anchor}, true
	}

	if dir == backward {
		// Prefer the boundary slot just past the run, then fall back to
		// splitting the run's own tail slot.
		if boundaryOK(rHi, rHi+1) {
			return plan(rHi-need+1, rHi+1)
		}
		if rHi-rLo+1 >= need+1 && a.canServe(layerIdx, rHi, rs) {
			return plan(rHi-need, rHi)
		}
		return allocationPlan{}, false
	}

	// Forward: leftmost placement first (anchor inside the run), then the
	// placement ending at the run's edge with the boundary as anchor.
	if anchor := rLo + need; anchor <= rHi {
		if a.canServe(layerIdx, anchor, rs) {
			return plan(rLo, anchor)
		}
	}
	if boundaryOK(rHi, rHi+1) {
		return plan(rHi-need+1, rHi+1)
	}
	return allocationPlan{}, false
}

// canServe reports whether the slot's child chain can satisfy rs at the
// levels below layerIdx: the leftmost rs[layerIdx+1] children free
// (splitting a Free slot on demand), recursing through the following child
// for yet finer levels.
func (a *Allocator) canServe(layerIdx, slotIdx int, rs []int) bool {
	next := layerIdx + 1
	if next >= len(a.layers) || next >= len(rs) {
		return false
	}
	l := &a.layers[layerIdx]
	s := &l.slots[slotIdx]
	fan := l.slotSize / a.layers[next].slotSize
	need := rs[next]
	deeper := deeperNeed(rs, next+1)
	if need > fan || (deeper && need >= fan) {
		return false
	}
	switch s.state {
	case Free:
		// Splitting on execution yields all-free children; only the
		// fan-out of the remaining levels can disqualify.
		if deeper {
			return a.canServeFresh(next, rs)
		}
		return true
	case Split:
		for i := 0; i < need; i++ {
			if a.layers[next].slots[s.childBegin+i].state != Free {
				return false
			}
		}
		if deeper {
			return a.canServe(next, s.childBegin+need, rs)
		}
		return true
	}
	return false
}

// canServeFresh is canServe for a slot that will be split fresh: every
// descendant is free, so only fan-outs are checked.
func (a *Allocator) canServeFresh(layerIdx int, rs []int) bool {
	for l := layerIdx; l+1 < len(rs); l++ {
		if !deeperNeed(rs, l+1) {
			return true
		}
		if l+1 >= len(a.layers) {
			return false
		}
		fan := a.layers[l].slotSize / a.layers[l+1].slotSize
		need := rs[l+1]
		deeper := deeperNeed(rs, l+2)
		if need > fan || (deeper && need >= fan) {
			return false
		}
	}
	return true
}

// executePlan acquires the planned slots. The plan is known to fit, so
// execution is deterministic: the run first, then for each finer level the
// leftmost children of the anchor chain, splitting Free parents on the way
// down.
func (a *Allocator) executePlan(p allocationPlan, rs []int, size int) BufferView {
	if p.fresh {
		layerIdx, slotIdx := p.freshLayer, p.freshSlot
		firstNZ := firstNonZero(rs)
		for layerIdx < firstNZ {
			a.splitSlot(layerIdx, slotIdx)
			slotIdx = a.layers[layerIdx].slots[slotIdx].childBegin
			layerIdx++
		}
		p.runLayer = layerIdx
		p.runStart = slotIdx
		p.anchor = noSlot
		if deeperNeed(rs, layerIdx+1) {
			p.anchor = slotIdx + rs[layerIdx]
		}
	}

	var base uintptr
	runLayer := &a.layers[p.runLayer]
	for i := 0; i < rs[p.runLayer]; i++ {
		s := &runLayer.slots[p.runStart+i]
		s.state = InUse
		if base == 0 {
			base = s.addr
		}
	}

	parentIdx := p.anchor
	for l := p.runLayer + 1; l < len(rs) && parentIdx != noSlot; l++ {
		if !deeperNeed(rs, l) {
			break
		}
		parent := &a.layers[l-1].slots[parentIdx]
		if parent.state == Free {
			a.splitSlot(l-1, parentIdx)
		}
		for i := 0; i < rs[l]; i++ {
			c := &a.layers[l].slots[parent.childBegin+i]
			c.state = InUse
			if base == 0 {
				base = c.addr
			}
		}
		parentIdx = parent.childBegin + rs[l]
	}

	return BufferView{addr: base, size: size}
}
