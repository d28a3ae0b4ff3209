package gring

import (
	"slices"
	"testing"
)

func TestRing(t *testing.T) {
	r := NewRing[string](3)
	if r.Newest() != "" {
		t.Fatalf("Empty ring must return zero value")
	}
	r.Push("waiting")
	r.Push("detecting")
	if got := slices.Collect(r.All()); !slices.Equal(got, []string{"detecting", "waiting"}) {
		t.Fatalf("Partial ring: %v", got)
	}
	r.Push("tracking")
	r.Push("tracking2")
	if got := slices.Collect(r.All()); !slices.Equal(got, []string{"tracking2", "tracking", "detecting"}) {
		t.Fatalf("Wrapped ring: %v", got)
	}
	if r.Newest() != "tracking2" || r.Size() != 3 || r.Cap() != 3 {
		t.Fatalf("Bad ring state: newest %s size %d", r.Newest(), r.Size())
	}
}
