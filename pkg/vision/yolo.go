package vision

import (
	"bufio"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"

	"github.com/Robogera/headcount/pkg/detection"

	"gocv.io/x/gocv"
)

type YOLOConfig struct {
	Net                 NetConfig
	// One class name per line, class index is the line number
	LabelsPath          string
	// ultralytics exports are [1, 4+classes, boxes] and need transposing
	Transpose           bool
	ScaleFactor         float64
	Size                image.Point
	ConfidenceThreshold float32
	NMSThreshold        float32
}

// Single stage detector with one row per candidate box:
// cx, cy, w, h followed by the class scores
type YOLO struct {
	net                gocv.Net
	output_layer_names []string
	params             gocv.ImageToBlobParams
	labels             []string
	transpose          bool
	conf_threshold     float32
	nms_threshold      float32
}

func NewYOLO(cfg YOLOConfig) (*YOLO, error) {
	labels, err := ReadLabels(cfg.LabelsPath)
	if err != nil {
		return nil, err
	}
	net, err := ReadNet(cfg.Net)
	if err != nil {
		return nil, err
	}
	output_layer_names := outputLayerNames(&net)
	if len(output_layer_names) == 0 {
		net.Close()
		return nil, fmt.Errorf("%w: no output layers in %s", ERR_BAD_MODEL, cfg.Net.Path)
	}
	return &YOLO{
		net:                net,
		output_layer_names: output_layer_names,
		params: gocv.NewImageToBlobParams(
			cfg.ScaleFactor,
			cfg.Size,
			gocv.NewScalar(0, 0, 0, 0),
			true,
			gocv.MatTypeCV32F,
			gocv.DataLayoutNCHW,
			gocv.PaddingModeLetterbox,
			gocv.NewScalar(0, 0, 0, 0),
		),
		labels:         labels,
		transpose:      cfg.Transpose,
		conf_threshold: cfg.ConfidenceThreshold,
		nms_threshold:  cfg.NMSThreshold,
	}, nil
}

// Empty path means no labels, classes are then named by their index
func ReadLabels(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("Can't read labels: %w", err)
	}
	defer f.Close()
	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		labels = append(labels, strings.TrimSpace(scanner.Text()))
	}
	return labels, scanner.Err()
}

func (y *YOLO) label(class_id int) string {
	if class_id >= 0 && class_id < len(y.labels) && y.labels[class_id] != "" {
		return y.labels[class_id]
	}
	return strconv.Itoa(class_id)
}

func (y *YOLO) Detect(frame Frame) ([]detection.Detection, error) {
	img := frame.Mat()
	if img == nil || img.Empty() {
		return nil, ERR_EMPTY_FRAME
	}
	blob := gocv.BlobFromImageWithParams(*img, y.params)
	defer blob.Close()

	y.net.SetInput(blob, "")

	outputs := y.net.ForwardLayers(y.output_layer_names)
	defer func() {
		for _, output := range outputs {
			output.Close()
		}
	}()
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%w: no outputs", ERR_BAD_MODEL)
	}

	if y.transpose {
		gocv.TransposeND(outputs[0], []int{0, 2, 1}, &outputs[0])
	}

	var detections []detection.Detection

	for _, output := range outputs {
		output_2d := output.Reshape(1, output.Size()[1])
		cols := output_2d.Cols()
		var boxes []image.Rectangle
		var confidences []float32
		var classes []int
		for i := 0; i < output_2d.Rows(); i++ {
			func() {
				row := output_2d.RowRange(i, i+1)
				defer row.Close()
				// values at indexes 4:cols are the class scores
				scores := row.ColRange(4, cols)
				defer scores.Close()
				_, confidence, _, class_id := gocv.MinMaxLoc(scores)
				if confidence < y.conf_threshold {
					return
				}
				// box center
				cx, cy := int(row.GetFloatAt(0, 0)), int(row.GetFloatAt(0, 1))
				// box dimensions
				half_w, half_h := int(row.GetFloatAt(0, 2)/2.0), int(row.GetFloatAt(0, 3)/2.0)
				boxes = append(boxes, image.Rect(cx-half_w, cy-half_h, cx+half_w, cy+half_h))
				confidences = append(confidences, confidence)
				classes = append(classes, class_id.X)
			}()
		}
		output_2d.Close()

		if len(boxes) == 0 {
			continue
		}
		indices := gocv.NMSBoxes(boxes, confidences, y.conf_threshold, y.nms_threshold)
		if len(indices) == 0 {
			continue
		}
		kept := make([]image.Rectangle, len(indices))
		for i, j := range indices {
			kept[i] = boxes[j]
		}
		kept = y.params.BlobRectsToImageRects(kept, image.Pt(img.Cols(), img.Rows()))
		for i, j := range indices {
			detections = append(detections, detection.Detection{
				Box:       kept[i],
				Class:     y.label(classes[j]),
				Score:     confidences[j],
				Attribute: detection.Undetected,
			})
		}
	}

	return detections, nil
}

func (y *YOLO) Close() error {
	return y.net.Close()
}
