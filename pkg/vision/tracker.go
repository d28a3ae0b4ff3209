package vision

import (
	"errors"
	"fmt"
	"image"

	"github.com/Robogera/headcount/pkg/enums"
	"github.com/Robogera/headcount/pkg/pipeline"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

var (
	ERR_TRACKER_INIT = errors.New("Tracker refused the box")
)

// Creates single object gocv trackers of one kind
type TrackerFactory struct {
	kind enums.VisualTracker
}

func NewTrackerFactory(kind enums.VisualTracker) (*TrackerFactory, error) {
	if !enums.VisualTrackers.Contains(kind) {
		return nil, fmt.Errorf("Unknown visual tracker %q", kind.Value)
	}
	return &TrackerFactory{kind: kind}, nil
}

func (f *TrackerFactory) Kind() enums.VisualTracker { return f.kind }

func (f *TrackerFactory) create() gocv.Tracker {
	switch f.kind {
	case enums.TrackerKCF:
		return contrib.NewTrackerKCF()
	case enums.TrackerCSRT:
		return contrib.NewTrackerCSRT()
	default:
		return gocv.NewTrackerMIL()
	}
}

func (f *TrackerFactory) Start(frame Frame, box image.Rectangle) (pipeline.Handle[Frame], error) {
	img := frame.Mat()
	if img == nil || img.Empty() {
		return nil, ERR_EMPTY_FRAME
	}
	tracker := f.create()
	if !tracker.Init(*img, box) {
		tracker.Close()
		return nil, fmt.Errorf("%w: %s at %v", ERR_TRACKER_INIT, f.kind.Value, box)
	}
	return &handle{tracker: tracker}, nil
}

type handle struct {
	tracker gocv.Tracker
}

func (h *handle) Update(frame Frame) (image.Rectangle, bool) {
	img := frame.Mat()
	if img == nil || img.Empty() {
		return image.Rectangle{}, false
	}
	return h.tracker.Update(*img)
}

func (h *handle) Close() error {
	return h.tracker.Close()
}
