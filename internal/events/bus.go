// Package events provides the synchronous listener registry used by the
// handoff manager and sessions.
package events

import (
	"fmt"
	"sync"

	"github.com/arach/fabric/internal/logging"
)

// Bus delivers events of type E to subscribers in registration order.
// A panicking listener is recovered and logged; later listeners still run.
type Bus[E any] struct {
	mu        sync.RWMutex
	next      int
	listeners []subscription[E]
}

type subscription[E any] struct {
	id int
	fn func(E)
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus[E]) Subscribe(fn func(E)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.listeners = append(b.listeners, subscription[E]{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.listeners {
				if s.id == id {
					b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Emit calls every listener with e on the caller's goroutine.
func (b *Bus[E]) Emit(e E) {
	b.mu.RLock()
	listeners := make([]subscription[E], len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	for _, s := range listeners {
		deliver(s.fn, e)
	}
}

// Len returns the number of registered listeners.
func (b *Bus[E]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

func deliver[E any](fn func(E), e E) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn("event listener panicked", "event", fmt.Sprintf("%T", e), "panic", r)
		}
	}()
	fn(e)
}
