package runtime

import (
	"github.com/orteaf/go-orteaf/base"
	"github.com/orteaf/go-orteaf/orterr"
)

// releaser is the callback surface a lease needs from its manager. Only the
// manager mints leases; the lease calls back here on release so slot
// recycling stays inside the manager.
type releaser[P any] interface {
	releaseStrong(cb *controlBlock[P])
	releaseWeakRef(cb *controlBlock[P])
	noteAcquire()
	category() Category
}

// StrongLease owns one strong reference on a control block, with the
// payload pointer cached at acquisition time. Leases have move semantics:
// pass them by pointer, never copy a lease that will be released twice.
// Release is idempotent.
type StrongLease[P any] struct {
	owner   releaser[P]
	cb      *controlBlock[P]
	payload *P
}

// Valid reports whether the lease still holds its reference.
func (l *StrongLease[P]) Valid() bool { return l.cb != nil }

// Payload returns the cached payload pointer, nil after release.
func (l *StrongLease[P]) Payload() *P { return l.payload }

// Handle returns the payload handle the lease was minted for, or the
// invalid handle once the lease has been released.
func (l *StrongLease[P]) Handle() base.Handle[P] {
	if l.cb == nil {
		return base.InvalidHandle[P]()
	}
	return l.cb.payloadHandle
}

// Release drops the strong reference. The terminal release destroys the
// payload and returns its slots to the pools. Releasing twice is a no-op.
func (l *StrongLease[P]) Release() {
	if l.cb == nil {
		return
	}
	cb, owner := l.cb, l.owner
	l.cb = nil
	l.payload = nil
	l.owner = nil
	owner.releaseStrong(cb)
}

// Clone takes an additional strong reference. Only shared categories can
// clone; Raw and Unique leases fail with InvalidState.
func (l *StrongLease[P]) Clone() (StrongLease[P], error) {
	if l.cb == nil {
		return StrongLease[P]{}, orterr.New(orterr.InvalidState, "cloning a released lease")
	}
	if !l.owner.category().isCounted() {
		return StrongLease[P]{}, orterr.Errorf(orterr.InvalidState,
			"%s leases cannot be cloned", l.owner.category())
	}
	l.cb.acquire()
	l.owner.noteAcquire()
	return StrongLease[P]{owner: l.owner, cb: l.cb, payload: l.payload}, nil
}

// Downgrade takes a weak reference alongside this strong one. WeakShared
// only.
func (l *StrongLease[P]) Downgrade() (WeakLease[P], error) {
	if l.cb == nil {
		return WeakLease[P]{}, orterr.New(orterr.InvalidState, "downgrading a released lease")
	}
	if l.owner.category() != WeakShared {
		return WeakLease[P]{}, orterr.Errorf(orterr.InvalidState,
			"%s leases cannot be downgraded", l.owner.category())
	}
	l.cb.acquireWeak()
	return WeakLease[P]{owner: l.owner, cb: l.cb}, nil
}

// WeakLease observes a WeakShared control block without keeping the payload
// alive. It must be promoted before the payload can be touched.
type WeakLease[P any] struct {
	owner releaser[P]
	cb    *controlBlock[P]
}

// Valid reports whether the lease still holds its weak reference.
func (w *WeakLease[P]) Valid() bool { return w.cb != nil }

// TryPromote attempts to mint a strong lease. It fails (returning false)
// once the last strong reference is gone — including after manager
// shutdown.
func (w *WeakLease[P]) TryPromote() (StrongLease[P], bool) {
	if w.cb == nil || !w.cb.tryPromote() {
		return StrongLease[P]{}, false
	}
	w.owner.noteAcquire()
	return StrongLease[P]{owner: w.owner, cb: w.cb, payload: w.cb.payload}, true
}

// Release drops the weak reference. Idempotent.
func (w *WeakLease[P]) Release() {
	if w.cb == nil {
		return
	}
	cb, owner := w.cb, w.owner
	w.cb = nil
	w.owner = nil
	owner.releaseWeakRef(cb)
}
