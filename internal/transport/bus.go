package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Handler receives the raw payload of one event.
type Handler func(data json.RawMessage)

type subscription struct {
	id int
	fn Handler
}

// Bus is an in-process publish/subscribe dispatcher. Dispatch is
// synchronous and in subscription order, so subscribers observe events for
// a session in the order the mutations occurred. A panicking handler is
// recovered and logged at the emit site and does not prevent the remaining
// handlers from running.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string][]subscription
	log      *slog.Logger
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string][]subscription),
		log:      slog.Default(),
	}
}

// Subscribe registers a handler for an event and returns its unsubscribe
// handle.
func (b *Bus) Subscribe(event string, h Handler) (off func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[event] = append(b.handlers[event], subscription{id: id, fn: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.handlers[event]
		for i, s := range subs {
			if s.id == id {
				b.handlers[event] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers data to every handler of the event, in order.
func (b *Bus) Emit(event string, data json.RawMessage) {
	b.mu.RLock()
	subs := make([]subscription, len(b.handlers[event]))
	copy(subs, b.handlers[event])
	b.mu.RUnlock()

	for _, s := range subs {
		b.dispatch(event, s, data)
	}
}

func (b *Bus) dispatch(event string, s subscription, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("transport: event handler panic",
				"event", event,
				"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
			)
		}
	}()

	s.fn(data)
}

// EmitPayload marshals payload and emits it.
func (b *Bus) EmitPayload(event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.log.Error("transport: marshal event payload", "event", event, "error", err)
		return
	}
	b.Emit(event, raw)
}
