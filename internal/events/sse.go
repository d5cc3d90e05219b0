package events

import "github.com/kelindar/event"

// SubscribeToChannel forwards events of type T into ch for SSE handlers that
// select over a channel. Events are dropped when ch is full.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	if bus == nil {
		return func() {}
	}
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
