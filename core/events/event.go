package events

import (
	"sync"

	"subsync/core/types"
)

// Event represents a structured state change emitted by the chain.
type Event interface {
	EventType() string
}

// Renderable events expose their attributes in the flat form used by logs and
// the RPC layer.
type Renderable interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events until the surrounding transaction decides whether
// to publish them. A failed transaction discards its buffer so no event is
// observable for a reverted state change.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
}

// Events returns a copy of the buffered events.
func (b *Buffer) Events() []Event {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}

// Flush forwards every buffered event to target and empties the buffer.
func (b *Buffer) Flush(target Emitter) []Event {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	pending := b.events
	b.events = nil
	b.mu.Unlock()
	if target != nil {
		for _, evt := range pending {
			target.Emit(evt)
		}
	}
	return pending
}

// Discard drops every buffered event.
func (b *Buffer) Discard() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// Types lists the event types currently buffered, in emission order.
func (b *Buffer) Types() []string {
	pending := b.Events()
	out := make([]string, len(pending))
	for i, evt := range pending {
		out[i] = evt.EventType()
	}
	return out
}
