package runtime

import (
	"sync/atomic"

	"github.com/orteaf/go-orteaf/base"
)

// controlBlock enforces the ownership discipline of one payload slot. The
// block itself lives in a slot pool paired with the payload pool, so leases
// can cache a stable pointer to it.
//
// Counter memory ordering follows the usual shared-pointer pattern: strong
// acquire is a relaxed add, release an acq-rel sub so the final decrement
// synchronizes with every prior release. Unique uses CAS in both
// directions. Go's sync/atomic is sequentially consistent, which is
// strictly stronger and keeps the same invariants.
type controlBlock[P any] struct {
	category Category
	alive    atomic.Bool

	inUse  atomic.Bool   // Unique
	strong atomic.Uint32 // Shared, WeakShared
	weak   atomic.Uint32 // WeakShared

	// payloadFreed marks a WeakShared block whose payload slot has been
	// returned while weak references keep the block itself alive.
	payloadFreed bool

	payload       *P
	payloadIndex  uint32
	payloadHandle base.Handle[P]
	self          uint32 // own index in the control-block pool
}

// reset prepares a recycled block for a new binding.
func (cb *controlBlock[P]) reset(category Category, payload *P, index uint32, handle base.Handle[P], self uint32) {
	cb.category = category
	cb.alive.Store(false)
	cb.inUse.Store(false)
	cb.strong.Store(0)
	cb.weak.Store(0)
	cb.payloadFreed = false
	cb.payload = payload
	cb.payloadIndex = index
	cb.payloadHandle = handle
	cb.self = self
}

// acquire takes one strong reference (or the exclusive slot for Unique).
// Returns false only for Unique blocks that are already held.
func (cb *controlBlock[P]) acquire() bool {
	switch cb.category {
	case Raw:
		cb.alive.Store(true)
		return true
	case Unique:
		if cb.inUse.CompareAndSwap(false, true) {
			cb.alive.Store(true)
			return true
		}
		return false
	default:
		cb.strong.Add(1)
		cb.alive.Store(true)
		return true
	}
}

// release drops one strong reference. Returns true when the release is
// terminal: the payload must be destroyed.
func (cb *controlBlock[P]) release() bool {
	switch cb.category {
	case Raw:
		cb.alive.Store(false)
		return true
	case Unique:
		if cb.inUse.CompareAndSwap(true, false) {
			cb.alive.Store(false)
			return true
		}
		return false
	default:
		if cb.strong.Add(^uint32(0)) == 0 {
			cb.alive.Store(false)
			return true
		}
		return false
	}
}

func (cb *controlBlock[P]) isAlive() bool { return cb.alive.Load() }

// count returns the current strong count (0 for Raw/Unique).
func (cb *controlBlock[P]) count() uint32 { return cb.strong.Load() }

// acquireWeak takes one weak reference. WeakShared only.
func (cb *controlBlock[P]) acquireWeak() { cb.weak.Add(1) }

// releaseWeak drops one weak reference. Returns true when both counts are
// zero and the block itself can be recycled.
func (cb *controlBlock[P]) releaseWeak() bool {
	return cb.weak.Add(^uint32(0)) == 0 && cb.strong.Load() == 0
}

func (cb *controlBlock[P]) weakCount() uint32 { return cb.weak.Load() }

// tryPromote attempts to turn a weak reference into a strong one. It only
// succeeds while at least one strong reference is still live.
func (cb *controlBlock[P]) tryPromote() bool {
	for {
		current := cb.strong.Load()
		if current == 0 {
			return false
		}
		if cb.strong.CompareAndSwap(current, current+1) {
			cb.alive.Store(true)
			return true
		}
	}
}
