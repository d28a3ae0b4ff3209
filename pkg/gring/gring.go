package gring

import (
	"iter"
)

// Fixed capacity ring buffer that overwrites
// its oldest element when full
type Ring[T any] struct {
	l   int
	s   []T
	pos int
}

func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{
		s: make([]T, max(capacity, 1)),
	}
}

func (r *Ring[T]) Size() int { return r.l }
func (r *Ring[T]) Cap() int  { return len(r.s) }

func (r *Ring[T]) Push(e T) {
	r.s[r.pos] = e
	r.pos = (r.pos + 1) % len(r.s)
	if r.l < len(r.s) {
		r.l++
	}
}

// Returns the zero value on an empty ring
func (r *Ring[T]) Newest() T {
	if r.l == 0 {
		var zero T
		return zero
	}
	return r.s[(r.pos-1+len(r.s))%len(r.s)]
}

// Iterates newest to oldest
func (r *Ring[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := range r.l {
			if !yield(r.s[(r.pos-1-i+2*len(r.s))%len(r.s)]) {
				return
			}
		}
	}
}
