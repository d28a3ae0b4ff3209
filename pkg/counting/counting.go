// Package counting turns identity trajectories into one-shot
// up/down crossing counts with per-attribute splits.
package counting

import (
	"errors"
	"fmt"
	"image"
	"maps"
	"slices"

	"github.com/Robogera/headcount/pkg/detection"
	"github.com/Robogera/headcount/pkg/seq"
)

// Attribute votes kept per identity
const MaxVotes = 3

var (
	ERR_BAD_FRACTION     = errors.New("Crossing fraction must be in (0, 0.5]")
	ERR_BAD_BOUNDS       = errors.New("Frame bounds are empty")
	ERR_INVALID_CENTROID = errors.New("Centroid is outside the frame")
)

type Direction int8

const (
	None Direction = iota
	Up
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	}
	return "none"
}

type Crossing struct {
	Id        uint64
	Direction Direction
	Attribute string
}

type Counts struct {
	TotalUp   uint            `json:"total_up"`
	TotalDown uint            `json:"total_down"`
	Up        map[string]uint `json:"up"`
	Down      map[string]uint `json:"down"`
}

func NewCounts() Counts {
	return Counts{Up: make(map[string]uint), Down: make(map[string]uint)}
}

func (c Counts) Clone() Counts {
	return Counts{
		TotalUp:   c.TotalUp,
		TotalDown: c.TotalDown,
		Up:        maps.Clone(c.Up),
		Down:      maps.Clone(c.Down),
	}
}

type Trajectory struct {
	id        uint64
	centroids []image.Point
	counted   bool
	votes     []string
	decided   string
}

func (tr *Trajectory) Id() uint64               { return tr.id }
func (tr *Trajectory) Counted() bool            { return tr.counted }
func (tr *Trajectory) Centroids() []image.Point { return slices.Clone(tr.centroids) }
func (tr *Trajectory) Votes() []string          { return slices.Clone(tr.votes) }
func (tr *Trajectory) Newest() image.Point      { return tr.centroids[len(tr.centroids)-1] }

// Majority vote, detection.Unknown until someone votes
func (tr *Trajectory) Attribute() string {
	if tr.decided == "" {
		return detection.Unknown
	}
	return tr.decided
}

// Vertical displacement from the first recorded centroid,
// negative when moving up the frame
func (tr *Trajectory) Displacement() int {
	return tr.Newest().Y - tr.centroids[0].Y
}

func (tr *Trajectory) vote(attribute string) {
	if attribute == "" || attribute == detection.Undetected || len(tr.votes) >= MaxVotes {
		return
	}
	tr.votes = append(tr.votes, attribute)
	tr.decided, _ = seq.Majority(tr.votes)
}

// Counters and per identity trajectories. Not safe for concurrent use.
type State struct {
	bounds       image.Rectangle
	threshold    float64
	trajectories map[uint64]*Trajectory
	counts       Counts
}

// threshold is fraction of the frame height
func NewState(bounds image.Rectangle, fraction float64) (*State, error) {
	if bounds.Empty() {
		return nil, fmt.Errorf("%v: %w", bounds, ERR_BAD_BOUNDS)
	}
	if !(fraction > 0 && fraction <= 0.5) {
		return nil, fmt.Errorf("Got %f: %w", fraction, ERR_BAD_FRACTION)
	}
	return &State{
		bounds:       bounds,
		threshold:    fraction * float64(bounds.Dy()),
		trajectories: make(map[uint64]*Trajectory),
		counts:       NewCounts(),
	}, nil
}

func (s *State) Bounds() image.Rectangle { return s.bounds }
func (s *State) Threshold() float64      { return s.threshold }

// Records one centroid for an identity and decides its crossing if it
// hasn't been counted yet. attribute may be empty or detection.Undetected
// when no classification is available for this frame.
func (s *State) Observe(id uint64, centroid image.Point, attribute string) (Crossing, error) {
	if !centroid.In(s.bounds) {
		return Crossing{Id: id}, fmt.Errorf("Identity %d at %v, frame %v: %w", id, centroid, s.bounds, ERR_INVALID_CENTROID)
	}

	tr, seen := s.trajectories[id]
	if !seen {
		tr = &Trajectory{id: id, centroids: []image.Point{centroid}}
		tr.vote(attribute)
		s.trajectories[id] = tr
		return Crossing{Id: id}, nil
	}

	tr.vote(attribute)
	tr.centroids = append(tr.centroids, centroid)

	crossing := Crossing{Id: id, Attribute: tr.Attribute()}
	if tr.counted {
		return crossing, nil
	}
	direction := float64(tr.Displacement())
	switch {
	case direction < -s.threshold:
		crossing.Direction = Up
		s.counts.TotalUp++
		s.counts.Up[crossing.Attribute]++
		tr.counted = true
	case direction > s.threshold:
		crossing.Direction = Down
		s.counts.TotalDown++
		s.counts.Down[crossing.Attribute]++
		tr.counted = true
	}
	return crossing, nil
}

// Whether an attribute vote for this identity would still be recorded
func (s *State) NeedsVotes(id uint64) bool {
	tr, seen := s.trajectories[id]
	return !seen || len(tr.votes) < MaxVotes
}

func (s *State) Trajectory(id uint64) (*Trajectory, bool) {
	tr, ok := s.trajectories[id]
	return tr, ok
}

// Drops the trajectory of an identity that no longer exists.
// Identity ids are never reused so this can't cause a recount.
func (s *State) Forget(ids ...uint64) {
	for _, id := range ids {
		delete(s.trajectories, id)
	}
}

func (s *State) Len() int { return len(s.trajectories) }

func (s *State) Counts() Counts { return s.counts.Clone() }
