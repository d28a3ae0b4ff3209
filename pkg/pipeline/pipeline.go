// Package pipeline drives detection, association and counting one
// frame at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	"github.com/Robogera/headcount/pkg/centroid"
	"github.com/Robogera/headcount/pkg/counting"
	"github.com/Robogera/headcount/pkg/detection"
	"github.com/Robogera/headcount/pkg/gset"
)

var (
	ERR_FRAME_SIZE_CHANGED = errors.New("Frame size changed mid stream")
	ERR_NO_DETECTOR        = errors.New("Detector is required")
	ERR_NO_TRACKER         = errors.New("Visual tracker is required")
)

type Options struct {
	SkipInterval     uint
	MaxDistance      float64
	MaxDisappeared   uint
	Strategy         centroid.Strategy
	Classes          []string
	MinScore         float32
	CrossingFraction float64
	// Minimal wall time per frame, zero disables pacing
	Pace             time.Duration
}

type Track struct {
	Id        uint64
	Centroid  image.Point
	// Zero unless the identity was matched this frame
	Box       image.Rectangle
	Attribute string
	Counted   bool
}

type Result struct {
	Index     uint64
	State     State
	Tracks    []Track
	Crossings []counting.Crossing
	Counts    counting.Counts
}

type Pipeline[F Frame] struct {
	logger     *slog.Logger
	opts       Options
	scheduler  *Scheduler[F]
	classifier Classifier[F]
	engine     *centroid.Tracker
	counting   *counting.State
	index      uint64
}

// classifier may be nil to skip attribute classification
func New[F Frame](
	logger *slog.Logger,
	opts Options,
	detector Detector[F],
	tracker VisualTracker[F],
	classifier Classifier[F],
) (*Pipeline[F], error) {
	if detector == nil {
		return nil, ERR_NO_DETECTOR
	}
	if tracker == nil {
		return nil, ERR_NO_TRACKER
	}
	engine, err := centroid.NewTracker(opts.MaxDistance, opts.MaxDisappeared, opts.Strategy)
	if err != nil {
		return nil, fmt.Errorf("Can't create association engine: %w", err)
	}
	return &Pipeline[F]{
		logger:     logger,
		opts:       opts,
		scheduler:  NewScheduler(logger, detector, tracker, opts.SkipInterval, opts.MinScore, gset.NewSet(opts.Classes...)),
		classifier: classifier,
		engine:     engine,
	}, nil
}

func (p *Pipeline[F]) State() State { return p.scheduler.State() }

func (p *Pipeline[F]) Counts() counting.Counts {
	if p.counting == nil {
		return counting.NewCounts()
	}
	return p.counting.Counts()
}

// Runs one frame through scheduling, association and counting. Errors
// reject the frame only, the pipeline stays usable.
func (p *Pipeline[F]) Process(frame F) (*Result, error) {
	bounds := frame.Bounds()
	if p.counting == nil {
		state, err := counting.NewState(bounds, p.opts.CrossingFraction)
		if err != nil {
			return nil, fmt.Errorf("Can't create counting state: %w", err)
		}
		p.counting = state
		p.logger.Info("Counting started", "frame", bounds, "threshold (px)", state.Threshold())
	} else if bounds != p.counting.Bounds() {
		return nil, fmt.Errorf("Expected %v, got %v: %w", p.counting.Bounds(), bounds, ERR_FRAME_SIZE_CHANGED)
	}

	index := p.index
	p.index++

	state, observations := p.scheduler.Schedule(index, frame)
	update := p.engine.Update(detection.Centroids(observations))
	p.counting.Forget(update.Evicted...)
	for _, status := range update.Statuses {
		p.logger.Debug("Identity", "frame", index, "id", status.Id(), "status", status)
	}

	result := &Result{
		Index:  index,
		State:  state,
		Tracks: make([]Track, 0, len(update.Assignments)),
	}
	for _, a := range update.Assignments {
		var box image.Rectangle
		attribute := ""
		if a.Observation >= 0 {
			observation := observations[a.Observation]
			box = observation.Box
			attribute = observation.Attribute
			if attribute == detection.Undetected && p.classifier != nil && p.counting.NeedsVotes(a.Id) {
				attribute = p.classify(frame, box)
			}
		}
		crossing, err := p.counting.Observe(a.Id, a.Centroid, attribute)
		if err != nil {
			p.logger.Warn("Rejected observation", "frame", index, "id", a.Id, "error", err)
			continue
		}
		if crossing.Direction != counting.None {
			p.logger.Info("Crossing", "frame", index, "id", a.Id, "direction", crossing.Direction, "attribute", crossing.Attribute)
			result.Crossings = append(result.Crossings, crossing)
		}
		tr, _ := p.counting.Trajectory(a.Id)
		result.Tracks = append(result.Tracks, Track{
			Id:        a.Id,
			Centroid:  a.Centroid,
			Box:       box,
			Attribute: tr.Attribute(),
			Counted:   tr.Counted(),
		})
	}
	result.Counts = p.counting.Counts()
	return result, nil
}

func (p *Pipeline[F]) classify(frame F, box image.Rectangle) string {
	label, err := p.classifier.Classify(frame, box)
	if err != nil {
		p.logger.Warn("Classifier failed", "box", box, "error", err)
		return detection.Undetected
	}
	return label
}

// Reads frames until the source is exhausted or ctx is cancelled.
// ctx is only checked between frames. A failed read ends the run
// normally, the returned counts are final either way.
func (p *Pipeline[F]) Run(ctx context.Context, src Source[F], on_frame func(F, *Result) error) (counting.Counts, error) {
	defer p.scheduler.Close()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Pipeline cancelled by context", "frames", p.index)
			return p.Counts(), ctx.Err()
		default:
		}

		started := time.Now()
		frame, err := src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.logger.Info("Stream ended", "frames", p.index)
			} else {
				p.logger.Warn("Can't read next frame. Stopping...", "frames", p.index, "error", err)
			}
			return p.Counts(), nil
		}

		result, err := p.Process(frame)
		if err != nil {
			p.logger.Warn("Frame rejected", "error", err)
			continue
		}
		if on_frame != nil {
			if err := on_frame(frame, result); err != nil {
				return p.Counts(), err
			}
		}

		if wait := p.opts.Pace - time.Since(started); p.opts.Pace > 0 && wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}
}
