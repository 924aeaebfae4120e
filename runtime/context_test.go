package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orteaf/go-orteaf/orterr"
)

func resetCurrentContext() {
	currentContext.mu.Lock()
	currentContext.ctx = nil
	currentContext.mu.Unlock()
}

func TestCurrentContextEmpty(t *testing.T) {
	resetCurrentContext()
	require.False(t, HasCurrentContext())
	_, err := CurrentDevice()
	require.True(t, orterr.IsCode(err, orterr.NotConfigured))
	_, err = CurrentCommandQueue()
	require.True(t, orterr.IsCode(err, orterr.NotConfigured))
	_, err = CurrentStream()
	require.True(t, orterr.IsCode(err, orterr.NotConfigured))
}

func TestPushContextAndRestore(t *testing.T) {
	resetCurrentContext()
	reg := newTestRegistry(t)

	guard, err := PushContext(reg, 0)
	require.NoError(t, err)
	require.True(t, guard.Active())
	require.True(t, HasCurrentContext())

	// Ambient accessors hand out fresh strong leases.
	dev, err := CurrentDevice()
	require.NoError(t, err)
	require.Equal(t, 0, dev.Payload().Ordinal)
	queue, err := CurrentCommandQueue()
	require.NoError(t, err)
	stream, err := CurrentStream()
	require.NoError(t, err)
	dev.Release()
	queue.Release()
	stream.Release()

	guard.Restore()
	require.False(t, guard.Active())
	require.False(t, HasCurrentContext())
	guard.Restore() // second restore is a no-op

	require.Equal(t, 0, reg.Devices.OutstandingLeases())
	require.Equal(t, 0, reg.Queues.OutstandingLeases())
	require.Equal(t, 0, reg.Streams.OutstandingLeases())
}

func TestNestedGuardsRestoreInOrder(t *testing.T) {
	resetCurrentContext()
	reg := newTestRegistry(t)

	outer, err := PushContext(reg, 0)
	require.NoError(t, err)
	outerDev, err := CurrentDevice()
	require.NoError(t, err)

	inner, err := PushContext(reg, 1)
	require.NoError(t, err)
	innerDev, err := CurrentDevice()
	require.NoError(t, err)
	require.Equal(t, 1, innerDev.Payload().Ordinal)

	inner.Restore()
	back, err := CurrentDevice()
	require.NoError(t, err)
	require.Equal(t, 0, back.Payload().Ordinal)
	require.Equal(t, outerDev.Handle(), back.Handle())

	outerDev.Release()
	innerDev.Release()
	back.Release()
	outer.Restore()
	require.False(t, HasCurrentContext())
}

func TestExecutionContextRollsBackOnFailure(t *testing.T) {
	resetCurrentContext()
	reg := newTestRegistry(t)

	_, err := NewExecutionContext(reg, -1)
	require.True(t, orterr.IsCode(err, orterr.InvalidArgument))
	require.Equal(t, 0, reg.Devices.OutstandingLeases())
	require.Equal(t, 0, reg.Queues.OutstandingLeases())
	require.Equal(t, 0, reg.Streams.OutstandingLeases())
}

func TestExecutionContextReleaseIdempotent(t *testing.T) {
	resetCurrentContext()
	reg := newTestRegistry(t)

	ctx, err := NewExecutionContext(reg, 0)
	require.NoError(t, err)
	ctx.Release()
	ctx.Release()
	require.Equal(t, 0, reg.Devices.OutstandingLeases())

	var nilCtx *ExecutionContext
	nilCtx.Release() // nil-safe
}
