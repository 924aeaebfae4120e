package runtime

import (
	"k8s.io/klog/v2"

	"github.com/orteaf/go-orteaf/backends"
	"github.com/orteaf/go-orteaf/base"
	"github.com/orteaf/go-orteaf/orterr"
)

// Device is a pooled reference to one backend device.
type Device struct {
	Backend backends.Backend
	Ordinal int
	Native  backends.NativeHandle
}

// DeviceRequest selects a device by ordinal.
type DeviceRequest struct {
	Ordinal int
}

func newDeviceManager(ops *backends.Ops) *Manager[Device, DeviceRequest] {
	return NewManager("device manager", Shared, Ops[Device, DeviceRequest]{
		Validate: func(r DeviceRequest) error {
			if r.Ordinal < 0 {
				return orterr.Errorf(orterr.InvalidArgument, "device ordinal must be non-negative, got %d", r.Ordinal)
			}
			return nil
		},
		Create: func(p *Device, r DeviceRequest) error {
			native, err := ops.CreateDevice(r.Ordinal)
			if err != nil {
				return wrapBackend(err, "creating device")
			}
			*p = Device{Backend: ops.Backend, Ordinal: r.Ordinal, Native: native}
			return nil
		},
		Destroy: func(p *Device) {
			if err := ops.DestroyDevice(p.Native); err != nil {
				klog.Errorf("Device destroy failed (ordinal %d): %v", p.Ordinal, err)
			}
			*p = Device{}
		},
	})
}

// DeviceContext is a pooled backend context (CUDA primary contexts). On
// backends without context objects its manager stays unconfigured.
type DeviceContext struct {
	Device StrongLease[Device]
	Native backends.NativeHandle
}

// ContextRequest selects the device the context belongs to.
type ContextRequest struct {
	Device base.Handle[Device]
}

func newContextManager(ops *backends.Ops, devices *Manager[Device, DeviceRequest]) *Manager[DeviceContext, ContextRequest] {
	return NewManager("context manager", Shared, Ops[DeviceContext, ContextRequest]{
		Create: func(p *DeviceContext, r ContextRequest) error {
			dev, err := devices.AcquireHandle(r.Device)
			if err != nil {
				return err
			}
			native, err := ops.CreateContext(dev.Payload().Native)
			if err != nil {
				dev.Release()
				return wrapBackend(err, "creating context")
			}
			*p = DeviceContext{Device: dev, Native: native}
			return nil
		},
		Destroy: func(p *DeviceContext) {
			if err := ops.DestroyContext(p.Native); err != nil {
				klog.Errorf("Context destroy failed: %v", err)
			}
			p.Device.Release()
			*p = DeviceContext{}
		},
	})
}
