// Package event provides typed single-subscriber notifications.
//
// Each event kind gets its own field. Subscribing replaces the previous
// subscriber; Emit with no subscriber does nothing. Callbacks run on the
// emitting goroutine.
package event

import "sync"

// Signal is a notification without payload.
type Signal struct {
	mu sync.RWMutex
	fn func()
}

// Subscribe installs fn, replacing any previous subscriber. nil clears it.
func (s *Signal) Subscribe(fn func()) {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
}

// Emit calls the subscriber, if any.
func (s *Signal) Emit() {
	s.mu.RLock()
	fn := s.fn
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Event is a notification carrying a value of type T.
type Event[T any] struct {
	mu sync.RWMutex
	fn func(T)
}

// Subscribe installs fn, replacing any previous subscriber. nil clears it.
func (e *Event[T]) Subscribe(fn func(T)) {
	e.mu.Lock()
	e.fn = fn
	e.mu.Unlock()
}

// Emit calls the subscriber with v, if any.
func (e *Event[T]) Emit(v T) {
	e.mu.RLock()
	fn := e.fn
	e.mu.RUnlock()
	if fn != nil {
		fn(v)
	}
}
