package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Event is an inbound hub event.
type Event struct {
	Name string
	Args []json.RawMessage
}

// Decode unmarshals argument i into dst.
func (e Event) Decode(i int, dst any) error {
	if i < 0 || i >= len(e.Args) {
		return fmt.Errorf("event %s: no argument %d", e.Name, i)
	}
	return json.Unmarshal(e.Args[i], dst)
}

// Handler consumes an event.
type Handler func(Event)

// HandlerID identifies a registration for Off.
type HandlerID uint64

type registration struct {
	id HandlerID
	fn Handler
}

// Dispatcher fans events out to handlers in registration order.
// Registrations are independent of any connection.
type Dispatcher struct {
	log *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]registration
	nextID   HandlerID
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{log: log, handlers: make(map[string][]registration)}
}

// On registers fn for event and returns its id.
func (d *Dispatcher) On(event string, fn Handler) HandlerID {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	if fn != nil {
		d.handlers[event] = append(d.handlers[event], registration{id: id, fn: fn})
	}
	return id
}

// Off removes one registration. Unknown ids are ignored.
func (d *Dispatcher) Off(event string, id HandlerID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	regs := d.handlers[event]
	for i, r := range regs {
		if r.id == id {
			next := make([]registration, 0, len(regs)-1)
			next = append(next, regs[:i]...)
			next = append(next, regs[i+1:]...)
			if len(next) == 0 {
				delete(d.handlers, event)
			} else {
				d.handlers[event] = next
			}
			return
		}
	}
}

// OffAll removes every handler for event.
func (d *Dispatcher) OffAll(event string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, event)
}

// Count returns the number of handlers registered for event.
func (d *Dispatcher) Count(event string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[event])
}

// Dispatch invokes every handler for ev.Name in order. A panicking handler is
// logged and skipped; the rest still run.
func (d *Dispatcher) Dispatch(ev Event) {
	d.mu.RLock()
	regs := d.handlers[ev.Name]
	d.mu.RUnlock()

	if len(regs) == 0 {
		d.log.Debug("channel.event.unhandled", "event", ev.Name)
		return
	}
	for _, r := range regs {
		d.call(ev, r)
	}
}

func (d *Dispatcher) call(ev Event, r registration) {
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error("channel.event.handler_panic", "event", ev.Name, "handler_id", r.id, "panic", fmt.Sprint(rec))
		}
	}()
	r.fn(ev)
}
