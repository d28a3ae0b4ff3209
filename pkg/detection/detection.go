package detection

import (
	"errors"
	"fmt"
	"image"

	"github.com/Robogera/headcount/pkg/gset"
)

const (
	// Classifier verdict for crops it can't work with
	Undetected = "undetected"
	// Attribute of an identity nobody has voted on yet
	Unknown = "unknown"
)

var (
	ERR_EMPTY_BOX     = errors.New("Empty bounding box")
	ERR_NEGATIVE_BOX  = errors.New("Bounding box has negative coordinates")
	ERR_OUTSIDE_FRAME = errors.New("Bounding box is outside the frame")
	ERR_BAD_SCORE     = errors.New("Score out of [0, 1]")
)

// Single detector or visual tracker output for one frame
type Detection struct {
	Box       image.Rectangle
	Class     string
	Score     float32
	Attribute string
}

// Ordered per-frame record handed to the association engine.
// The position of an observation in its frame's slice is the
// key the engine reports matches with.
type Observation struct {
	Box       image.Rectangle
	Centroid  image.Point
	Attribute string
}

func NewObservation(box image.Rectangle) Observation {
	return Observation{Box: box, Centroid: Centroid(box), Attribute: Undetected}
}

func Centroid(r image.Rectangle) image.Point {
	return image.Pt(
		(r.Min.X+r.Max.X)/2,
		(r.Min.Y+r.Max.Y)/2,
	)
}

func Centroids(observations []Observation) []image.Point {
	points := make([]image.Point, len(observations))
	for i, o := range observations {
		points[i] = o.Centroid
	}
	return points
}

// Rejects boxes that are malformed on their own, frame bounds aside
func ValidateBox(r image.Rectangle) error {
	if r.Min.X < 0 || r.Min.Y < 0 || r.Max.X < 0 || r.Max.Y < 0 {
		return fmt.Errorf("%v: %w", r, ERR_NEGATIVE_BOX)
	}
	if r.Min.X >= r.Max.X || r.Min.Y >= r.Max.Y {
		return fmt.Errorf("%v: %w", r, ERR_EMPTY_BOX)
	}
	return nil
}

// Clips a box to the frame. Boxes left with no area are an error
func Clip(r, frame image.Rectangle) (image.Rectangle, error) {
	clipped := r.Intersect(frame)
	if clipped.Empty() {
		return image.Rectangle{}, fmt.Errorf("%v not in %v: %w", r, frame, ERR_OUTSIDE_FRAME)
	}
	return clipped, ValidateBox(clipped)
}

func (d Detection) Validate() error {
	if d.Score < 0 || d.Score > 1 {
		return fmt.Errorf("%f: %w", d.Score, ERR_BAD_SCORE)
	}
	return ValidateBox(d.Box)
}

// Keeps detections scoring at least min_score whose class is allowed.
// A nil or empty allow-list lets every class through.
func Clean(detections []Detection, min_score float32, classes *gset.Set[string]) []Detection {
	cleaned := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if d.Score < min_score {
			continue
		}
		if classes.Len() > 0 && !classes.Contains(d.Class) {
			continue
		}
		cleaned = append(cleaned, d)
	}
	return cleaned
}
