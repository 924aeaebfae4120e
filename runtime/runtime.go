// Package runtime is the resource-management kernel of the tensor runtime:
// pooled payload slots with generation-tagged handles, control blocks
// implementing four ownership disciplines, strong/weak leases, the typed
// managers composed into a Registry, fence-deferred lease release, and the
// ambient execution context.
//
// A caller acquires a resource from a typed manager and gets back a strong
// lease; releasing the last lease runs the payload's destroy callback and
// returns both the payload slot and its control block to their pools with
// bumped generations, so stale handles can never resolve again.
package runtime

import "github.com/orteaf/go-orteaf/orterr"

// Category selects the ownership discipline of a manager's control blocks.
type Category int

//go:generate stringer -type=Category runtime.go

const (
	// Raw blocks carry no counting: acquire marks alive, release dead.
	Raw Category = iota
	// Unique blocks admit one holder at a time, enforced by CAS.
	Unique
	// Shared blocks count strong references; the last release destroys.
	Shared
	// WeakShared blocks add a weak count and promote-from-weak.
	WeakShared
)

// isCounted reports whether the category uses a strong reference count.
func (c Category) isCounted() bool { return c == Shared || c == WeakShared }

// wrapBackend tags a slow-op error with BackendFailure.
func wrapBackend(err error, msg string) error {
	return orterr.Wrap(orterr.BackendFailure, err, msg)
}
