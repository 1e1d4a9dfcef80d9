// Package handles provides the typed handle tables that own every native
// resource created by a backend.
//
// A Store maps small integer handles to values. Handles are issued from a
// high-water-mark counter, and freed handles are reissued (most recently
// freed first) before the counter advances. A Store is not safe for
// concurrent use; backends serialize all access behind their own lock.
package handles

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// Handle identifies a live entry within one Store.
type Handle uint32

// Invalid is never issued by a Store.
const Invalid Handle = math.MaxUint32

var (
	// ErrNotFound is returned when a handle does not index a live entry.
	ErrNotFound = errors.New("handles: item not found")

	// ErrExhausted is returned when the handle counter has saturated and
	// there are no freed handles left to reissue.
	ErrExhausted = errors.New("handles: max items reached")
)

// Store owns values of type T keyed by Handle.
type Store[T any] struct {
	next  Handle
	items map[Handle]T
	freed []Handle
}

// NewStore creates an empty store. capacity pre-sizes the table and is not
// a limit.
func NewStore[T any](capacity int) *Store[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Store[T]{items: make(map[Handle]T, capacity)}
}

// Add takes ownership of v and returns its handle.
func (s *Store[T]) Add(v T) (Handle, error) {
	if n := len(s.freed); n > 0 {
		h := s.freed[n-1]
		s.freed = s.freed[:n-1]
		s.items[h] = v
		return h, nil
	}
	if s.next == Invalid {
		return Invalid, ErrExhausted
	}
	h := s.next
	s.next++
	s.items[h] = v
	return h, nil
}

// Remove moves the value for h out of the store and marks h free for reuse.
func (s *Store[T]) Remove(h Handle) (T, error) {
	v, ok := s.items[h]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %d", ErrNotFound, h)
	}
	delete(s.items, h)
	s.freed = append(s.freed, h)
	return v, nil
}

// Get returns the value for h.
func (s *Store[T]) Get(h Handle) (T, error) {
	v, ok := s.items[h]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %d", ErrNotFound, h)
	}
	return v, nil
}

// Set replaces the value of a live entry. It never allocates a handle.
func (s *Store[T]) Set(h Handle, v T) error {
	if _, ok := s.items[h]; !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, h)
	}
	s.items[h] = v
	return nil
}

// Contains reports whether h indexes a live entry.
func (s *Store[T]) Contains(h Handle) bool {
	_, ok := s.items[h]
	return ok
}

// Len returns the number of live entries.
func (s *Store[T]) Len() int { return len(s.items) }

// Handles returns the live handles in ascending order.
func (s *Store[T]) Handles() []Handle {
	hs := make([]Handle, 0, len(s.items))
	for h := range s.items {
		hs = append(hs, h)
	}
	slices.Sort(hs)
	return hs
}

// Each calls fn for every live entry in ascending handle order. fn must
// not add or remove entries.
func (s *Store[T]) Each(fn func(Handle, T)) {
	for _, h := range s.Handles() {
		fn(h, s.items[h])
	}
}

// Drain removes every live entry, calling fn for each in ascending handle
// order. All handles become free even if fn panics part way.
func (s *Store[T]) Drain(fn func(Handle, T)) {
	hs := s.Handles()
	items := s.items
	s.items = make(map[Handle]T)
	s.freed = append(s.freed, hs...)
	for _, h := range hs {
		fn(h, items[h])
	}
}
