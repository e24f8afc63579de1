package session

import (
	"sync"

	"github.com/xexgm/chatlink/logger"
)

// Handler receives one event. Handlers run sequentially on the session's
// read goroutine; a handler that blocks stalls inbound processing.
type Handler func(Event)

type subscription struct {
	id int
	fn Handler
}

// Dispatcher is the typed publish/subscribe fan-out between the transport
// and application state. Handlers fire in registration order; a panicking
// handler is recovered and logged so the rest still run.
type Dispatcher struct {
	mu   sync.RWMutex
	subs map[EventType][]subscription
	next int
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{subs: make(map[EventType][]subscription)}
}

// On registers a handler and returns its unsubscribe func.
func (d *Dispatcher) On(t EventType, h Handler) func() {
	d.mu.Lock()
	d.next++
	id := d.next
	d.subs[t] = append(d.subs[t], subscription{id: id, fn: h})
	d.mu.Unlock()
	return func() { d.off(t, id) }
}

func (d *Dispatcher) off(t EventType, id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.subs[t]
	for i, sub := range subs {
		if sub.id == id {
			d.subs[t] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

func (d *Dispatcher) emit(ev Event) {
	d.mu.RLock()
	subs := make([]subscription, len(d.subs[ev.Type()]))
	copy(subs, d.subs[ev.Type()])
	d.mu.RUnlock()

	for _, sub := range subs {
		invoke(sub.fn, ev)
	}
}

func invoke(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("event handler panic: %v", r)
		}
	}()
	h(ev)
}
