package vision

import (
	"fmt"
	"image"
	"slices"

	"github.com/Robogera/headcount/pkg/detection"
	"github.com/Robogera/headcount/pkg/seq"

	"gocv.io/x/gocv"
)

// Crops smaller than this on either side are not classified
const MinCropSide = 8

type ClassifierConfig struct {
	Net         NetConfig
	// Output index i is labels[i]
	Labels      []string
	// Feed single channel crops, channels last
	Grayscale   bool
	ScaleFactor float64
	Size        image.Point
}

// Whole-crop attribute classifier with one score per label
type Classifier struct {
	net       gocv.Net
	params    gocv.ImageToBlobParams
	labels    []string
	grayscale bool
}

func NewClassifier(cfg ClassifierConfig) (*Classifier, error) {
	if len(cfg.Labels) == 0 {
		return nil, fmt.Errorf("%w: classifier needs labels", ERR_BAD_MODEL)
	}
	net, err := ReadNet(cfg.Net)
	if err != nil {
		return nil, err
	}
	layout := gocv.DataLayoutNCHW
	if cfg.Grayscale {
		layout = gocv.DataLayoutNHWC
	}
	return &Classifier{
		net: net,
		params: gocv.NewImageToBlobParams(
			cfg.ScaleFactor,
			cfg.Size,
			gocv.NewScalar(0, 0, 0, 0),
			!cfg.Grayscale,
			gocv.MatTypeCV32F,
			layout,
			gocv.PaddingModeNull,
			gocv.NewScalar(0, 0, 0, 0),
		),
		labels:    cfg.Labels,
		grayscale: cfg.Grayscale,
	}, nil
}

func (c *Classifier) Classify(frame Frame, box image.Rectangle) (string, error) {
	img := frame.Mat()
	if img == nil || img.Empty() {
		return detection.Undetected, ERR_EMPTY_FRAME
	}
	crop := box.Intersect(frame.Bounds())
	if crop.Dx() < MinCropSide || crop.Dy() < MinCropSide {
		return detection.Undetected, nil
	}

	region := img.Region(crop)
	defer region.Close()
	input := region
	if c.grayscale {
		gray := gocv.NewMat()
		defer gray.Close()
		gocv.CvtColor(region, &gray, gocv.ColorBGRToGray)
		input = gray
	}

	blob := gocv.BlobFromImageWithParams(input, c.params)
	defer blob.Close()
	c.net.SetInput(blob, "")
	output := c.net.Forward("")
	defer output.Close()

	scores, err := output.DataPtrFloat32()
	if err != nil {
		return detection.Undetected, fmt.Errorf("Can't read classifier output: %w", err)
	}
	if len(scores) != len(c.labels) {
		return detection.Undetected, fmt.Errorf("Classifier returned %d scores for %d labels", len(scores), len(c.labels))
	}
	ind, _, ok := seq.MaxInd(slices.All(scores))
	if !ok {
		return detection.Undetected, nil
	}
	return c.labels[ind], nil
}

func (c *Classifier) Close() error {
	return c.net.Close()
}
