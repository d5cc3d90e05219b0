package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher. Delivery is asynchronous: each
// subscriber receives events in publish order on its own goroutine.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes ev to all subscribers of its concrete type.
// A nil bus drops the event.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case DeviceDiscoveryEvent:
		event.Publish(b.dispatcher, e)
	case ScanStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case CodeDetectedEvent:
		event.Publish(b.dispatcher, e)
	case ScanErrorEvent:
		event.Publish(b.dispatcher, e)
	case ProbeAttemptEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type named by its parameter and
// returns the unsubscribe function. Unknown handler types get a no-op.
//
//	unsub := bus.Subscribe(func(e CodeDetectedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	if b == nil {
		return func() {}
	}
	switch h := handler.(type) {
	case func(DeviceDiscoveryEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ScanStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CodeDetectedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ScanErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProbeAttemptEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
