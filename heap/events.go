package heap

import (
	runtimebridge "github.com/wippyai/runtime-bridge"
)

// Event types for object lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventIncRef
	EventDecRef
	EventDestroyed
)

// Event describes one movement of an object's reference count.
type Event struct {
	Handle   runtimebridge.Raw
	TypeID   runtimebridge.TypeID
	Type     EventType
	RefCount int // count after the event
}

// Observer receives notifications about object lifecycle events.
type Observer interface {
	OnHeapEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnHeapEvent implements Observer.
func (f ObserverFunc) OnHeapEvent(e Event) { f(e) }

// observerReg pairs an observer with a registration id. Observers are
// removed by id, never compared: Observer values (ObserverFunc in
// particular) need not be comparable.
type observerReg struct {
	id  uint64
	obs Observer
}

// Subscribe adds an observer for lifecycle events. The returned func
// removes it again; calling it more than once is a no-op.
func (h *Heap) Subscribe(o Observer) (unsubscribe func()) {
	h.obsSeq++
	id := h.obsSeq
	h.observers = append(h.observers, observerReg{id: id, obs: o})
	return func() {
		for i, reg := range h.observers {
			if reg.id == id {
				h.observers = append(h.observers[:i], h.observers[i+1:]...)
				return
			}
		}
	}
}

func (h *Heap) notify(e Event) {
	for _, reg := range h.observers {
		reg.obs.OnHeapEvent(e)
	}
}
