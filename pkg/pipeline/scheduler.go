package pipeline

import (
	"image"
	"log/slog"

	"github.com/Robogera/headcount/pkg/detection"
	"github.com/Robogera/headcount/pkg/gset"
)

type State uint8

const (
	StateWaiting State = iota
	StateDetecting
	StateTracking
)

func (s State) String() string {
	switch s {
	case StateDetecting:
		return "detecting"
	case StateTracking:
		return "tracking"
	}
	return "waiting"
}

// Picks between the detector and the visual trackers for every frame
// and owns the tracker handles of the current detection interval.
type Scheduler[F Frame] struct {
	logger        *slog.Logger
	detector      Detector[F]
	tracker       VisualTracker[F]
	skip_interval uint64
	min_score     float32
	classes       *gset.Set[string]
	handles       []Handle[F]
	state         State
}

func NewScheduler[F Frame](
	logger *slog.Logger,
	detector Detector[F],
	tracker VisualTracker[F],
	skip_interval uint,
	min_score float32,
	classes *gset.Set[string],
) *Scheduler[F] {
	return &Scheduler[F]{
		logger:        logger,
		detector:      detector,
		tracker:       tracker,
		skip_interval: uint64(max(skip_interval, 1)),
		min_score:     min_score,
		classes:       classes,
		state:         StateWaiting,
	}
}

func (s *Scheduler[F]) State() State       { return s.state }
func (s *Scheduler[F]) ActiveHandles() int { return len(s.handles) }

// Boxes for frame number index, in a stable order for the frame
func (s *Scheduler[F]) Schedule(index uint64, frame F) (State, []detection.Observation) {
	if index%s.skip_interval == 0 {
		if observations, ok := s.detect(frame); ok {
			s.state = StateDetecting
			return s.state, observations
		}
	}
	s.state = StateTracking
	return s.state, s.track(frame)
}

func (s *Scheduler[F]) detect(frame F) ([]detection.Observation, bool) {
	detections, err := s.detector.Detect(frame)
	if err != nil {
		s.logger.Warn("Detector failed, falling back to tracking", "error", err, "handles", len(s.handles))
		return nil, false
	}

	s.Close()
	bounds := frame.Bounds()
	cleaned := detection.Clean(detections, s.min_score, s.classes)
	observations := make([]detection.Observation, 0, len(cleaned))
	handles := make([]Handle[F], 0, len(cleaned))
	for _, d := range cleaned {
		box, err := detection.Clip(d.Box, bounds)
		if err == nil {
			err = detection.Detection{Box: box, Score: d.Score}.Validate()
		}
		if err != nil {
			s.logger.Warn("Dropping malformed detection", "box", d.Box, "score", d.Score, "error", err)
			continue
		}
		observation := detection.NewObservation(box)
		if d.Attribute != "" {
			observation.Attribute = d.Attribute
		}
		observations = append(observations, observation)

		handle, err := s.tracker.Start(frame, box)
		if err != nil {
			s.logger.Warn("Can't start visual tracker", "box", box, "error", err)
			continue
		}
		handles = append(handles, handle)
	}
	s.handles = handles
	s.logger.Debug("Detected", "raw", len(detections), "kept", len(observations), "handles", len(handles))
	return observations, true
}

func (s *Scheduler[F]) track(frame F) []detection.Observation {
	bounds := frame.Bounds()
	observations := make([]detection.Observation, 0, len(s.handles))
	kept := s.handles[:0]
	for _, handle := range s.handles {
		box, ok := handle.Update(frame)
		var err error
		var clipped image.Rectangle
		if ok {
			clipped, err = detection.Clip(box, bounds)
		}
		if !ok || err != nil {
			s.logger.Debug("Visual tracker lost its target", "box", box, "error", err)
			handle.Close()
			continue
		}
		kept = append(kept, handle)
		observations = append(observations, detection.NewObservation(clipped))
	}
	clear(s.handles[len(kept):])
	s.handles = kept
	return observations
}

// Releases every tracker handle of the current interval
func (s *Scheduler[F]) Close() {
	for _, handle := range s.handles {
		if err := handle.Close(); err != nil {
			s.logger.Warn("Can't close visual tracker", "error", err)
		}
	}
	s.handles = nil
}
