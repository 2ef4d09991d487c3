// Package events is a synchronous publish/subscribe bus. Emit runs every
// listener registered for the event, in registration order, on the caller's
// goroutine. A panicking listener is recovered and logged so the remaining
// listeners still run.
package events

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Wildcard subscribes a listener to every event.
const Wildcard = "*"

// Event is one published notification.
type Event struct {
	Name    string
	Payload any
}

// Listener handles one event.
type Listener func(Event)

// SubscriptionID identifies a registered listener for Unsubscribe.
type SubscriptionID uint64

type subscription struct {
	id   SubscriptionID
	name string
	fn   Listener
}

// Bus dispatches events to listeners. The zero value is not usable; call New.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID SubscriptionID
	logger *zap.Logger
}

// Option configures a Bus.
type Option func(*Bus)

func WithLogger(logger *zap.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func New(opts ...Option) *Bus {
	b := &Bus{logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Subscribe registers fn for name (or Wildcard) and returns its id.
func (b *Bus) Subscribe(name string, fn Listener) SubscriptionID {
	if fn == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs = append(b.subs, subscription{id: b.nextID, name: name, fn: fn})
	return b.nextID
}

// Unsubscribe removes the listener registered under id, reporting whether it
// was present. Removing a listener during an Emit does not affect that Emit.
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			next := make([]subscription, 0, len(b.subs)-1)
			next = append(next, b.subs[:i]...)
			b.subs = append(next, b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// UnsubscribeAll removes every listener registered for name.
func (b *Bus) UnsubscribeAll(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.name != name {
			next = append(next, s)
		}
	}
	removed := len(b.subs) - len(next)
	b.subs = next
	return removed
}

// ListenerCount reports how many listeners would receive name, wildcard
// listeners included.
func (b *Bus) ListenerCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, s := range b.subs {
		if s.name == name || s.name == Wildcard {
			n++
		}
	}
	return n
}

// Emit delivers payload to the listeners of name registered at call time.
// Listeners may emit further events; those complete before Emit moves on to
// the next listener.
func (b *Bus) Emit(name string, payload any) {
	if b == nil {
		return
	}
	b.mu.RLock()
	targets := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.name == name || s.name == Wildcard {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	evt := Event{Name: name, Payload: payload}
	for _, s := range targets {
		b.dispatch(s, evt)
	}
}

func (b *Bus) dispatch(s subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked",
				zap.String("event", evt.Name),
				zap.Uint64("subscription", uint64(s.id)),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	s.fn(evt)
}
