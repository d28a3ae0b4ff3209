package counting

import (
	"image"
	"testing"

	"github.com/Robogera/headcount/pkg/detection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var frame_480p = image.Rect(0, 0, 640, 480)

func newState(t *testing.T) *State {
	t.Helper()
	s, err := NewState(frame_480p, 0.2)
	require.NoError(t, err)
	return s
}

func observe(t *testing.T, s *State, id uint64, x, y int, attribute string) Crossing {
	t.Helper()
	crossing, err := s.Observe(id, image.Pt(x, y), attribute)
	require.NoError(t, err)
	return crossing
}

func TestNewStateValidation(t *testing.T) {
	_, err := NewState(frame_480p, 0)
	assert.ErrorIs(t, err, ERR_BAD_FRACTION)
	_, err = NewState(frame_480p, 0.51)
	assert.ErrorIs(t, err, ERR_BAD_FRACTION)
	_, err = NewState(image.Rectangle{}, 0.2)
	assert.ErrorIs(t, err, ERR_BAD_BOUNDS)

	s, err := NewState(frame_480p, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 240.0, s.Threshold())
}

func TestUpwardCrossingCountedOnce(t *testing.T) {
	s := newState(t)
	assert.Equal(t, 96.0, s.Threshold())

	assert.Equal(t, None, observe(t, s, 7, 320, 300, "").Direction)
	for _, y := range []int{280, 250, 220} {
		assert.Equal(t, None, observe(t, s, 7, 320, y, "").Direction)
	}
	crossing := observe(t, s, 7, 320, 150, "")
	assert.Equal(t, Up, crossing.Direction)
	assert.Equal(t, detection.Unknown, crossing.Attribute)

	counts := s.Counts()
	assert.Equal(t, uint(1), counts.TotalUp)
	assert.Zero(t, counts.TotalDown)
	assert.Equal(t, uint(1), counts.Up[detection.Unknown])

	tr, ok := s.Trajectory(7)
	require.True(t, ok)
	assert.True(t, tr.Counted())

	// oscillating back below the start never counts again
	for _, y := range []int{200, 350, 450, 100, 420} {
		assert.Equal(t, None, observe(t, s, 7, 320, y, "").Direction)
	}
	counts = s.Counts()
	assert.Equal(t, uint(1), counts.TotalUp)
	assert.Zero(t, counts.TotalDown)
	assert.Len(t, tr.Centroids(), 10)
}

func TestDownwardCrossing(t *testing.T) {
	s := newState(t)
	observe(t, s, 1, 100, 100, "woman")
	// exactly the threshold is not enough
	assert.Equal(t, None, observe(t, s, 1, 100, 196, "").Direction)
	crossing := observe(t, s, 1, 100, 197, "")
	assert.Equal(t, Down, crossing.Direction)
	assert.Equal(t, "woman", crossing.Attribute)

	counts := s.Counts()
	assert.Equal(t, uint(1), counts.TotalDown)
	assert.Equal(t, uint(1), counts.Down["woman"])
}

func TestDirectionUsesFirstCentroid(t *testing.T) {
	s := newState(t)
	observe(t, s, 3, 50, 400, "")
	// small steps, none of them crosses the threshold alone
	for y := 390; y > 304; y -= 10 {
		assert.Equal(t, None, observe(t, s, 3, 50, y, "").Direction)
	}
	assert.Equal(t, Up, observe(t, s, 3, 50, 300, "").Direction)
}

func TestEachIdentityCountsAtMostOnce(t *testing.T) {
	s := newState(t)
	for id := range uint64(5) {
		observe(t, s, id, 100, 50, "")
	}
	for step := range 10 {
		for id := range uint64(5) {
			observe(t, s, id, 100, 50+(step+1)*40, "")
		}
	}
	counts := s.Counts()
	assert.Equal(t, uint(5), counts.TotalDown)
	assert.Zero(t, counts.TotalUp)
}

func TestAttributeMajority(t *testing.T) {
	s := newState(t)
	observe(t, s, 9, 10, 10, "man")
	observe(t, s, 9, 10, 11, detection.Undetected)
	observe(t, s, 9, 10, 12, "woman")
	observe(t, s, 9, 10, 13, "")
	observe(t, s, 9, 10, 14, "man")
	// capped, ignored
	observe(t, s, 9, 10, 15, "woman")
	observe(t, s, 9, 10, 16, "woman")

	tr, _ := s.Trajectory(9)
	assert.Equal(t, []string{"man", "woman", "man"}, tr.Votes())
	assert.Equal(t, "man", tr.Attribute())
	assert.False(t, s.NeedsVotes(9))
	assert.True(t, s.NeedsVotes(10))
}

func TestAttributeTieKeepsFirstSeen(t *testing.T) {
	s := newState(t)
	observe(t, s, 2, 10, 10, "woman")
	observe(t, s, 2, 10, 10, "man")
	tr, _ := s.Trajectory(2)
	assert.Equal(t, "woman", tr.Attribute())
}

func TestInvalidCentroidRejected(t *testing.T) {
	s := newState(t)
	_, err := s.Observe(1, image.Pt(10, 480), "")
	assert.ErrorIs(t, err, ERR_INVALID_CENTROID)
	_, err = s.Observe(1, image.Pt(-1, 10), "")
	assert.ErrorIs(t, err, ERR_INVALID_CENTROID)
	assert.Zero(t, s.Len())
}

func TestForget(t *testing.T) {
	s := newState(t)
	observe(t, s, 4, 10, 400, "")
	observe(t, s, 4, 10, 100, "")
	s.Forget(4)
	assert.Zero(t, s.Len())
	assert.Equal(t, uint(1), s.Counts().TotalUp)
}

func TestCountsSnapshotIsDetached(t *testing.T) {
	s := newState(t)
	observe(t, s, 1, 10, 400, "man")
	observe(t, s, 1, 10, 100, "")
	counts := s.Counts()
	counts.Up["man"] = 100
	assert.Equal(t, uint(1), s.Counts().Up["man"])
}
