package runtime

import (
	"sync"

	"github.com/orteaf/go-orteaf/orterr"
)

// ExecutionContext bundles the strong leases ambient work runs against:
// device, command queue and stream, acquired in that order.
type ExecutionContext struct {
	Device StrongLease[Device]
	Queue  StrongLease[CommandQueue]
	Stream StrongLease[Stream]
}

// NewExecutionContext acquires the bundle for one device ordinal. Any
// intermediate failure releases the leases acquired so far, so a failed
// call leaves no trace.
func NewExecutionContext(reg *Registry, ordinal int) (*ExecutionContext, error) {
	dev, err := reg.Devices.Acquire(DeviceRequest{Ordinal: ordinal})
	if err != nil {
		return nil, err
	}
	queue, err := reg.Queues.Acquire(QueueRequest{Device: dev.Handle()})
	if err != nil {
		dev.Release()
		return nil, err
	}
	stream, err := reg.Streams.Acquire(StreamRequest{Device: dev.Handle()})
	if err != nil {
		queue.Release()
		dev.Release()
		return nil, err
	}
	return &ExecutionContext{Device: dev, Queue: queue, Stream: stream}, nil
}

// Release drops the bundle in reverse acquisition order. Idempotent.
func (c *ExecutionContext) Release() {
	if c == nil {
		return
	}
	c.Stream.Release()
	c.Queue.Release()
	c.Device.Release()
}

// The ambient current context is process-global, guarded by its own mutex.
var currentContext struct {
	mu  sync.Mutex
	ctx *ExecutionContext
}

// CurrentDevice returns a fresh strong lease on the current context's
// device. Fails with NotConfigured when no context is installed.
func CurrentDevice() (StrongLease[Device], error) {
	currentContext.mu.Lock()
	defer currentContext.mu.Unlock()
	if currentContext.ctx == nil {
		return StrongLease[Device]{}, orterr.New(orterr.NotConfigured, "no current execution context")
	}
	return currentContext.ctx.Device.Clone()
}

// CurrentCommandQueue returns a fresh strong lease on the current
// context's command queue.
func CurrentCommandQueue() (StrongLease[CommandQueue], error) {
	currentContext.mu.Lock()
	defer currentContext.mu.Unlock()
	if currentContext.ctx == nil {
		return StrongLease[CommandQueue]{}, orterr.New(orterr.NotConfigured, "no current execution context")
	}
	return currentContext.ctx.Queue.Clone()
}

// CurrentStream returns a fresh strong lease on the current context's
// stream.
func CurrentStream() (StrongLease[Stream], error) {
	currentContext.mu.Lock()
	defer currentContext.mu.Unlock()
	if currentContext.ctx == nil {
		return StrongLease[Stream]{}, orterr.New(orterr.NotConfigured, "no current execution context")
	}
	return currentContext.ctx.Stream.Clone()
}

// HasCurrentContext reports whether an execution context is installed.
func HasCurrentContext() bool {
	currentContext.mu.Lock()
	defer currentContext.mu.Unlock()
	return currentContext.ctx != nil
}

// ContextGuard scopes a replacement of the current context: construction
// installs a fresh context, Restore puts the previous one back and drops
// the intermediate leases. Guards must not be copied.
type ContextGuard struct {
	previous  *ExecutionContext
	installed *ExecutionContext
	active    bool
}

// PushContext acquires an execution context for the device ordinal
// (0 by convention for the default device) and installs it as current.
func PushContext(reg *Registry, ordinal int) (*ContextGuard, error) {
	ctx, err := NewExecutionContext(reg, ordinal)
	if err != nil {
		return nil, err
	}
	currentContext.mu.Lock()
	previous := currentContext.ctx
	currentContext.ctx = ctx
	currentContext.mu.Unlock()
	return &ContextGuard{previous: previous, installed: ctx, active: true}, nil
}

// Restore reinstates the previous context and releases the installed one.
// A guard restores at most once; later calls are no-ops.
func (g *ContextGuard) Restore() {
	if g == nil || !g.active {
		return
	}
	g.active = false
	currentContext.mu.Lock()
	if currentContext.ctx == g.installed {
		currentContext.ctx = g.previous
	}
	currentContext.mu.Unlock()
	g.installed.Release()
	g.installed = nil
	g.previous = nil
}

// Active reports whether the guard still owns its replacement.
func (g *ContextGuard) Active() bool { return g != nil && g.active }
