package gset

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
	"strings"
)

// Sorted set of unique values. The zero value is an empty set
// ready to use.
type Set[T cmp.Ordered] struct {
	s []T
}

func NewSet[T cmp.Ordered](values ...T) *Set[T] {
	s := &Set[T]{s: make([]T, 0, len(values))}
	s.Add(values...)
	return s
}

func (s *Set[T]) Add(values ...T) {
	for _, value := range values {
		ind, found := slices.BinarySearch(s.s, value)
		if found {
			continue
		}
		s.s = slices.Insert(s.s, ind, value)
	}
}

func (s *Set[T]) Del(values ...T) {
	for _, value := range values {
		if ind, found := slices.BinarySearch(s.s, value); found {
			s.s = slices.Delete(s.s, ind, ind+1)
		}
	}
}

func (s *Set[T]) Contains(value T) bool {
	if s == nil {
		return false
	}
	_, found := slices.BinarySearch(s.s, value)
	return found
}

func (s *Set[T]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.s)
}

// Iterates in ascending order
func (s *Set[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		if s == nil {
			return
		}
		for _, value := range s.s {
			if !yield(value) {
				return
			}
		}
	}
}

func (s *Set[T]) Values() []T {
	if s == nil {
		return nil
	}
	return slices.Clone(s.s)
}

func (s *Set[T]) Sprintf(format string) string {
	b := new(strings.Builder)
	b.WriteString("[ ")
	for e := range s.All() {
		b.WriteString(fmt.Sprintf(format, e))
		b.WriteString(" ")
	}
	b.WriteString("]")
	return b.String()
}

func (s *Set[T]) String() string {
	return s.Sprintf("%v")
}
