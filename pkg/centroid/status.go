package centroid

import (
	"fmt"
	"image"
)

// Per identity outcome of a single update, for debug logging
type Status interface {
	Id() uint64
	String() string
}

type StatusNew struct {
	id    uint64
	coord image.Point
}

func (s StatusNew) Id() uint64 { return s.id }
func (s StatusNew) String() string {
	return fmt.Sprintf("New: registered at %dx%d", s.coord.X, s.coord.Y)
}

type StatusMatched struct {
	id          uint64
	observation int
	moved       float64
}

func (s StatusMatched) Id() uint64 { return s.id }
func (s StatusMatched) String() string {
	return fmt.Sprintf("Associated with %d. Moved %.2fpx", s.observation, s.moved)
}

type StatusMissed struct {
	id           uint64
	missed       uint
	nearest      float64
	max_distance float64
}

func (s StatusMissed) Id() uint64 { return s.id }
func (s StatusMissed) String() string {
	switch {
	case s.nearest < 0:
		return fmt.Sprintf("Not associated: nothing detected. Missed %d frames", s.missed)
	case s.nearest > s.max_distance:
		return fmt.Sprintf("Not associated: too far (%.2fpx > %.2fpx). Missed %d frames", s.nearest, s.max_distance, s.missed)
	}
	return fmt.Sprintf("Not associated: closest centroid taken. Missed %d frames", s.missed)
}

type StatusEvicted struct {
	id     uint64
	coord  image.Point
	missed uint
}

func (s StatusEvicted) Id() uint64 { return s.id }
func (s StatusEvicted) String() string {
	return fmt.Sprintf("Deleted: lost for %d frames. Last known coordinate: %dx%d", s.missed, s.coord.X, s.coord.Y)
}
