package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handler receives an emitted event.
type Handler func(Event)

type subscription struct {
	id      string
	name    Name
	handler Handler
}

// Bus delivers events synchronously to subscribers in subscription order.
// Handlers may subscribe, unsubscribe or emit from inside a handler.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger zerolog.Logger
}

// NewBus creates a bus that logs recovered handler panics to logger.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{logger: logger}
}

// On subscribes handler to name and returns the subscription id.
func (b *Bus) On(name Name, handler Handler) string {
	id := uuid.NewString()
	b.mu.Lock()
	b.subs = append(b.subs, subscription{id: id, name: name, handler: handler})
	b.mu.Unlock()
	return id
}

// Off removes a subscription. It reports whether one was removed.
func (b *Bus) Off(name Name, id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id && s.name == name {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Emit calls every matching handler in order. A panicking handler is
// logged and skipped.
func (b *Bus) Emit(ev Event) {
	if ev == nil {
		return
	}
	name := ev.EventName()

	b.mu.RLock()
	targets := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.name == name || s.name == Any {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		b.deliver(s, ev)
	}
}

func (b *Bus) deliver(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("event", string(ev.EventName())).
				Str("subscription", s.id).
				Str("panic", fmt.Sprint(r)).
				Msg("event handler panicked")
		}
	}()
	s.handler(ev)
}

// Stream subscribes to every event and forwards it to a buffered channel.
// Events are dropped when the channel is full. The returned func
// unsubscribes and closes the channel.
func (b *Bus) Stream(buffer int) (<-chan Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Event, buffer)

	var mu sync.Mutex
	closed := false

	id := b.On(Any, func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- ev:
		default:
		}
	})

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.Off(Any, id)
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
	return ch, cancel
}
