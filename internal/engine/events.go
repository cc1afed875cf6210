package engine

import (
	"slices"

	"github.com/muurk/freeathome/internal/devices"
)

// EventType identifies what an Event reports
type EventType int

const (
	// EventStateChanged is sent when a datapoint update changed a device
	// object's value.
	EventStateChanged EventType = iota

	// EventRebuilt is sent after a new device set was installed
	EventRebuilt
)

// String returns a readable event type
func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "state_changed"
	case EventRebuilt:
		return "rebuilt"
	default:
		return "unknown"
	}
}

// Event is delivered to listeners
type Event struct {
	Type      EventType
	Device    devices.Device
	Datapoint string
	Old       string
	New       string
}

// Listener receives engine events. Listeners run synchronously on the
// dispatching goroutine and must not call back into UpdateDevices, Apply or
// FindDevices.
type Listener func(Event)

type subscription struct {
	id int
	l  Listener
}

// Subscribe registers a listener and returns a function that removes it.
// Listeners are called in registration order.
func (e *Engine) Subscribe(l Listener) (unsubscribe func()) {
	e.listenersMu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners = append(e.listeners, subscription{id: id, l: l})
	e.listenersMu.Unlock()

	return func() {
		e.listenersMu.Lock()
		e.listeners = slices.DeleteFunc(e.listeners, func(s subscription) bool { return s.id == id })
		e.listenersMu.Unlock()
	}
}

func (e *Engine) notify(ev Event) {
	e.listenersMu.RLock()
	defer e.listenersMu.RUnlock()

	for _, s := range e.listeners {
		s.l(ev)
	}
}
