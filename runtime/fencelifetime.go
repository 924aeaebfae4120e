package runtime

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/orteaf/go-orteaf/backends"
	"github.com/orteaf/go-orteaf/base"
	"github.com/orteaf/go-orteaf/orterr"
)

// CompletionProbe reports whether the GPU has drained past a fence. Probes
// are injected so tests can simulate progress; they must be non-blocking.
type CompletionProbe func(f *Fence) bool

// ProbeFromOps builds the production probe over the backend's
// FenceSignalled entry. Probe errors read as "not done" and are logged.
func ProbeFromOps(ops *backends.Ops) CompletionProbe {
	return func(f *Fence) bool {
		done, err := ops.FenceSignalled(f.Native, f.CommandBuffer())
		if err != nil {
			klog.Errorf("Fence probe failed: %v", err)
			return false
		}
		return done
	}
}

// FenceLifetime defers fence-lease release until the GPU has drained the
// hazard: every tracked lease stays alive until its command buffer
// signals. One instance serves one command queue, and because a queue
// completes in FIFO order, tracked leases release in exactly the order
// they were tracked.
type FenceLifetime struct {
	fences *Manager[Fence, FenceRequest]
	device base.Handle[Device]
	queue  base.Handle[CommandQueue]
	probe  CompletionProbe

	mu      sync.Mutex
	hazards []StrongLease[Fence]
	head    int
}

// NewFenceLifetime builds a lifetime manager for one queue.
func NewFenceLifetime(fences *Manager[Fence, FenceRequest], device base.Handle[Device], queue base.Handle[CommandQueue], probe CompletionProbe) *FenceLifetime {
	return &FenceLifetime{fences: fences, device: device, queue: queue, probe: probe}
}

// Acquire obtains a fence from the fence pool, bound to this queue.
func (fl *FenceLifetime) Acquire() (StrongLease[Fence], error) {
	if fl.fences == nil {
		return StrongLease[Fence]{}, orterr.New(orterr.InvalidState, "fence lifetime manager requires a fence manager")
	}
	if !fl.queue.IsValid() {
		return StrongLease[Fence]{}, orterr.New(orterr.InvalidArgument, "fence lifetime manager requires a valid command queue handle")
	}
	lease, err := fl.fences.Acquire(FenceRequest{Device: fl.device})
	if err != nil {
		return StrongLease[Fence]{}, err
	}
	if !lease.Payload().BindCommandQueue(fl.queue) {
		lease.Release()
		return StrongLease[Fence]{}, orterr.New(orterr.InvalidState, "fence hazard failed to bind command queue handle")
	}
	return lease, nil
}

// Track hands a hazard lease over for deferred release. The lease must be
// bound to this manager's queue and must already carry a command buffer id;
// a rejected lease is released before the error returns.
func (fl *FenceLifetime) Track(lease StrongLease[Fence]) error {
	if !lease.Valid() {
		return orterr.New(orterr.InvalidArgument, "fence lifetime manager requires a valid lease")
	}
	p := lease.Payload()
	if p.CommandQueue() != fl.queue {
		lease.Release()
		return orterr.New(orterr.InvalidArgument, "fence hazard command queue handle mismatch")
	}
	if !p.HasCommandBuffer() {
		lease.Release()
		return orterr.New(orterr.InvalidState, "fence hazard must have a command buffer before tracking")
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.hazards = append(fl.hazards, lease)
	return nil
}

// ReleaseReady releases the longest ready prefix of tracked hazards, in
// track order, as one batch. The scan runs from the head and stops at the
// first hazard whose probe does not report done, so a not-yet-signalled
// hazard blocks everything tracked after it.
func (fl *FenceLifetime) ReleaseReady() int {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.head >= len(fl.hazards) {
		fl.hazards = fl.hazards[:0]
		fl.head = 0
		return 0
	}

	readyEnd := fl.head
	for readyEnd < len(fl.hazards) {
		p := fl.hazards[readyEnd].Payload()
		if p != nil && !fl.probe(p) {
			break
		}
		readyEnd++
	}
	if readyEnd == fl.head {
		return 0
	}

	released := readyEnd - fl.head
	for i := fl.head; i < readyEnd; i++ {
		fl.hazards[i].Release()
	}
	fl.head = readyEnd
	fl.compactIfNeeded()
	return released
}

// Clear drops every tracked hazard unconditionally (shutdown path).
func (fl *FenceLifetime) Clear() {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	for i := fl.head; i < len(fl.hazards); i++ {
		fl.hazards[i].Release()
	}
	fl.hazards = nil
	fl.head = 0
}

// Size returns the number of still-held hazards.
func (fl *FenceLifetime) Size() int {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.head >= len(fl.hazards) {
		return 0
	}
	return len(fl.hazards) - fl.head
}

// Empty reports whether no hazards are held.
func (fl *FenceLifetime) Empty() bool { return fl.Size() == 0 }

// compactIfNeeded shifts live entries down once half the backing slice is
// tombstones.
func (fl *FenceLifetime) compactIfNeeded() {
	if fl.head == 0 {
		return
	}
	if fl.head >= len(fl.hazards) {
		fl.hazards = fl.hazards[:0]
		fl.head = 0
		return
	}
	if fl.head < len(fl.hazards)/2 {
		return
	}
	n := copy(fl.hazards, fl.hazards[fl.head:])
	fl.hazards = fl.hazards[:n]
	fl.head = 0
}
