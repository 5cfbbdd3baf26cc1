package collab

import (
	"sync"

	"collab-backend/internal/protocol"
)

// EventHandler receives an ephemeral app event with the connection id
// that sent it.
type EventHandler func(sender string, ev protocol.AppEvent)

// Bus fans inbound broadcast events out to local subscribers by event
// name. Delivery is at-most-once and synchronous; handlers must not
// block.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]EventHandler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]EventHandler)}
}

// Subscribe registers a handler for one event name and returns an
// unsubscribe func. Unsubscribing twice is harmless.
func (b *Bus) Subscribe(name string, h EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	if b.subs[name] == nil {
		b.subs[name] = make(map[int]EventHandler)
	}
	b.subs[name][id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[name], id)
	}
}

// Dispatch delivers one event to every handler subscribed to its name.
func (b *Bus) Dispatch(sender string, ev protocol.AppEvent) {
	b.mu.Lock()
	handlers := make([]EventHandler, 0, len(b.subs[ev.Name]))
	for _, h := range b.subs[ev.Name] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()
	for _, h := range handlers {
		h(sender, ev)
	}
}
