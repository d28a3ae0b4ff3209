package seq

import (
	"cmp"
	"iter"

	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer | constraints.Float
}

// Index and value of the first maximum. ok is false for an empty sequence
func MaxInd[I any, T cmp.Ordered](it iter.Seq2[I, T]) (ind I, value T, ok bool) {
	for i, v := range it {
		if !ok || v > value {
			ind, value, ok = i, v, true
		}
	}
	return
}

// Index and value of the first minimum. ok is false for an empty sequence
func MinInd[I any, T cmp.Ordered](it iter.Seq2[I, T]) (ind I, value T, ok bool) {
	for i, v := range it {
		if !ok || v < value {
			ind, value, ok = i, v, true
		}
	}
	return
}

// Most frequent element. Ties go to the element seen first
func Majority[T comparable](s []T) (T, bool) {
	var winner T
	if len(s) == 0 {
		return winner, false
	}
	counts := make(map[T]int, len(s))
	best := 0
	for _, v := range s {
		counts[v]++
	}
	for _, v := range s {
		if counts[v] > best {
			winner, best = v, counts[v]
		}
	}
	return winner, true
}

func Sum[T Number](s []T) T {
	var sum T
	for _, v := range s {
		sum += v
	}
	return sum
}
