package runtime

import (
	"k8s.io/klog/v2"

	"github.com/orteaf/go-orteaf/backends"
	"github.com/orteaf/go-orteaf/base"
	"github.com/orteaf/go-orteaf/orterr"
)

// CommandQueue is a pooled submission queue. Work submitted to one queue
// completes in FIFO order, which is what the fence lifetime manager's
// release ordering relies on.
type CommandQueue struct {
	Device StrongLease[Device]
	Native backends.NativeHandle
}

// QueueRequest selects the device the queue submits to.
type QueueRequest struct {
	Device base.Handle[Device]
}

func newQueueManager(ops *backends.Ops, devices *Manager[Device, DeviceRequest]) *Manager[CommandQueue, QueueRequest] {
	return NewManager("command queue manager", Shared, Ops[CommandQueue, QueueRequest]{
		Create: func(p *CommandQueue, r QueueRequest) error {
			dev, err := devices.AcquireHandle(r.Device)
			if err != nil {
				return err
			}
			native, err := ops.CreateCommandQueue(dev.Payload().Native)
			if err != nil {
				dev.Release()
				return wrapBackend(err, "creating command queue")
			}
			*p = CommandQueue{Device: dev, Native: native}
			return nil
		},
		Destroy: func(p *CommandQueue) {
			if err := ops.DestroyCommandQueue(p.Native); err != nil {
				klog.Errorf("Command queue destroy failed: %v", err)
			}
			p.Device.Release()
			*p = CommandQueue{}
		},
	})
}

// Submit records pending work on the queue against fence, stamping the
// fence with the resulting command buffer id. The fence must already be
// bound to this queue.
func Submit(ops *backends.Ops, queue *StrongLease[CommandQueue], fence *StrongLease[Fence]) error {
	if !queue.Valid() || !fence.Valid() {
		return orterr.New(orterr.InvalidArgument, "submitting requires live queue and fence leases")
	}
	if fence.Payload().CommandQueue() != queue.Handle() {
		return orterr.New(orterr.InvalidArgument, "fence is bound to a different command queue")
	}
	buf, err := ops.RecordSubmit(queue.Payload().Native, fence.Payload().Native)
	if err != nil {
		return wrapBackend(err, "recording submit")
	}
	fence.Payload().SetCommandBuffer(buf)
	return nil
}
