package runtime

import (
	"k8s.io/klog/v2"

	"github.com/orteaf/go-orteaf/backends"
	"github.com/orteaf/go-orteaf/base"
)

// Stream is a pooled execution stream bound to a device. The stream holds a
// strong lease on its device for its whole lifetime.
type Stream struct {
	Device StrongLease[Device]
	Native backends.NativeHandle
}

// StreamRequest selects the device the stream runs on.
type StreamRequest struct {
	Device base.Handle[Device]
}

func newStreamManager(ops *backends.Ops, devices *Manager[Device, DeviceRequest]) *Manager[Stream, StreamRequest] {
	return NewManager("stream manager", Shared, Ops[Stream, StreamRequest]{
		Create: func(p *Stream, r StreamRequest) error {
			dev, err := devices.AcquireHandle(r.Device)
			if err != nil {
				return err
			}
			native, err := ops.CreateStream(dev.Payload().Native)
			if err != nil {
				dev.Release()
				return wrapBackend(err, "creating stream")
			}
			*p = Stream{Device: dev, Native: native}
			return nil
		},
		Destroy: func(p *Stream) {
			if err := ops.DestroyStream(p.Native); err != nil {
				klog.Errorf("Stream destroy failed: %v", err)
			}
			p.Device.Release()
			*p = Stream{}
		},
	})
}

// Event is a pooled synchronization event. Unique: one holder at a time.
type Event struct {
	Device StrongLease[Device]
	Native backends.NativeHandle
}

// EventRequest selects the device the event belongs to.
type EventRequest struct {
	Device base.Handle[Device]
}

func newEventManager(ops *backends.Ops, devices *Manager[Device, DeviceRequest]) *Manager[Event, EventRequest] {
	return NewManager("event manager", Unique, Ops[Event, EventRequest]{
		Create: func(p *Event, r EventRequest) error {
			dev, err := devices.AcquireHandle(r.Device)
			if err != nil {
				return err
			}
			native, err := ops.CreateEvent(dev.Payload().Native)
			if err != nil {
				dev.Release()
				return wrapBackend(err, "creating event")
			}
			*p = Event{Device: dev, Native: native}
			return nil
		},
		Destroy: func(p *Event) {
			if err := ops.DestroyEvent(p.Native); err != nil {
				klog.Errorf("Event destroy failed: %v", err)
			}
			p.Device.Release()
			*p = Event{}
		},
	})
}
