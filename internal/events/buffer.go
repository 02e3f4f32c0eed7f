package events

import "sync"

// Ring holds the newest values up to a fixed capacity, dropping the oldest
// on overflow. It is safe for concurrent use.
type Ring[T any] struct {
	mu   sync.RWMutex
	buf  []T
	next int // slot for the next Push
	full bool
}

// NewRing returns a Ring holding at most capacity values (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{buf: make([]T, max(capacity, 1))}
}

func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	r.buf[r.next] = v
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// Snapshot copies the stored values, oldest first.
func (r *Ring[T]) Snapshot() []T {
	return r.Select(nil)
}

// Select returns the stored values accepted by keep, oldest first. A nil
// keep accepts everything.
func (r *Ring[T]) Select(keep func(T) bool) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []T
	visit := func(part []T) {
		for _, v := range part {
			if keep == nil || keep(v) {
				out = append(out, v)
			}
		}
	}
	if r.full {
		visit(r.buf[r.next:])
	}
	visit(r.buf[:r.next])
	return out
}

// Last returns at most n of the newest values, oldest first. n <= 0 means
// all of them.
func (r *Ring[T]) Last(n int) []T {
	all := r.Snapshot()
	if n > 0 && len(all) > n {
		return all[len(all)-n:]
	}
	return all
}

func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

func (r *Ring[T]) Cap() int { return len(r.buf) }

// FromSource selects the events raised for source.
func FromSource(source string) func(Event) bool {
	return func(e Event) bool { return e.Source == source }
}

// OfKind selects the events of kind k.
func OfKind(k Kind) func(Event) bool {
	return func(e Event) bool { return e.Kind == k }
}
