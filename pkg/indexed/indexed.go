package indexed

import "time"

// Value tagged with the index and wall time of the
// frame it was produced from
type Indexed[T any] struct {
	id    uint64
	t     time.Time
	value T
}

func NewIndexed[T any](id uint64, t time.Time, value T) Indexed[T] {
	return Indexed[T]{id, t, value}
}

func (i Indexed[T]) Less(other Indexed[T]) bool { return i.id < other.id }
func (i Indexed[T]) Id() uint64                 { return i.id }
func (i Indexed[T]) Time() time.Time            { return i.t }
func (i Indexed[T]) Value() T                   { return i.value }
