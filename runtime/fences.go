package runtime

import (
	"k8s.io/klog/v2"

	"github.com/orteaf/go-orteaf/backends"
	"github.com/orteaf/go-orteaf/base"
)

// Fence is a pooled completion marker. A fence binds to one command queue,
// then carries the id of the command buffer whose completion it witnesses.
// Unique: each fence has exactly one holder until it returns to the pool.
type Fence struct {
	Device StrongLease[Device]
	Native backends.NativeHandle

	queue base.Handle[CommandQueue]
	buf   backends.CommandBufferID
}

// FenceRequest selects the device the fence belongs to.
type FenceRequest struct {
	Device base.Handle[Device]
}

// BindCommandQueue attaches the fence to a queue. Rebinding to a different
// queue while bound is rejected.
func (f *Fence) BindCommandQueue(h base.Handle[CommandQueue]) bool {
	if f.queue.IsValid() && f.queue != h {
		return false
	}
	f.queue = h
	return true
}

// CommandQueue returns the bound queue handle (invalid if unbound).
func (f *Fence) CommandQueue() base.Handle[CommandQueue] { return f.queue }

// SetCommandBuffer stamps the fence with a submitted command buffer id.
func (f *Fence) SetCommandBuffer(buf backends.CommandBufferID) { f.buf = buf }

// HasCommandBuffer reports whether the fence witnessed a submission.
func (f *Fence) HasCommandBuffer() bool { return f.buf != 0 }

// CommandBuffer returns the stamped id (0 before submission).
func (f *Fence) CommandBuffer() backends.CommandBufferID { return f.buf }

func newFenceManager(ops *backends.Ops, devices *Manager[Device, DeviceRequest]) *Manager[Fence, FenceRequest] {
	return NewManager("fence manager", Unique, Ops[Fence, FenceRequest]{
		Create: func(p *Fence, r FenceRequest) error {
			dev, err := devices.AcquireHandle(r.Device)
			if err != nil {
				return err
			}
			native, err := ops.CreateFence(dev.Payload().Native)
			if err != nil {
				dev.Release()
				return wrapBackend(err, "creating fence")
			}
			*p = Fence{Device: dev, Native: native, queue: base.InvalidHandle[CommandQueue]()}
			return nil
		},
		Destroy: func(p *Fence) {
			if err := ops.DestroyFence(p.Native); err != nil {
				klog.Errorf("Fence destroy failed: %v", err)
			}
			p.Device.Release()
			*p = Fence{}
		},
	})
}
