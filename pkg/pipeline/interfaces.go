package pipeline

import (
	"image"

	"github.com/Robogera/headcount/pkg/detection"
)

type Frame interface {
	Bounds() image.Rectangle
}

// Full object detector, expensive, runs on DETECTING frames only
type Detector[F Frame] interface {
	Detect(frame F) ([]detection.Detection, error)
}

// Attribute classifier. Returns detection.Undetected for crops it
// can't make sense of.
type Classifier[F Frame] interface {
	Classify(frame F, box image.Rectangle) (string, error)
}

// Short-term appearance tracker seeded from a detection
type VisualTracker[F Frame] interface {
	Start(frame F, box image.Rectangle) (Handle[F], error)
}

type Handle[F Frame] interface {
	Update(frame F) (image.Rectangle, bool)
	Close() error
}

// Returns io.EOF once the stream is exhausted
type Source[F Frame] interface {
	Next() (F, error)
}
