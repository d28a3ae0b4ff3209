package gsma

import (
	"errors"
	"fmt"

	"github.com/Robogera/headcount/pkg/seq"
)

var (
	ERR_VALUE = errors.New("Bad value")
)

// Simple moving average over the last capacity values
type SMA[T seq.Number] struct {
	data []T
	next int
}

func NewSMA[T seq.Number](capacity int) (*SMA[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("Invalid capacity: %d. Error: %w", capacity, ERR_VALUE)
	}
	return &SMA[T]{data: make([]T, 0, capacity)}, nil
}

func (s *SMA[T]) Push(value T) {
	if len(s.data) < cap(s.data) {
		s.data = append(s.data, value)
		return
	}
	s.data[s.next] = value
	s.next = (s.next + 1) % len(s.data)
}

func (s *SMA[T]) Len() int { return len(s.data) }

// Zero until the first value
func (s *SMA[T]) Average() float64 {
	if len(s.data) == 0 {
		return 0
	}
	return float64(seq.Sum(s.data)) / float64(len(s.data))
}
