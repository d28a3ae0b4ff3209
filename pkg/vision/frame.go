// Package vision holds the gocv backed collaborators of the counting
// pipeline.
package vision

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
)

var (
	ERR_BAD_STREAM  = errors.New("Can't open stream")
	ERR_BAD_MODEL   = errors.New("Can't load model")
	ERR_EMPTY_FRAME = errors.New("Empty frame")
)

// Borrowed view of a source's current image. Valid until the source's
// next Next call, the source owns the underlying Mat.
type Frame struct {
	mat *gocv.Mat
}

func NewFrame(mat *gocv.Mat) Frame { return Frame{mat: mat} }

func (f Frame) Mat() *gocv.Mat { return f.mat }

func (f Frame) Bounds() image.Rectangle {
	if f.mat == nil || f.mat.Empty() {
		return image.Rectangle{}
	}
	return image.Rect(0, 0, f.mat.Cols(), f.mat.Rows())
}

// Copies the frame as jpeg, scaled to w x h when both are non-zero
func EncodeJPEG(f Frame, w, h uint) ([]byte, error) {
	if f.mat == nil || f.mat.Empty() {
		return nil, ERR_EMPTY_FRAME
	}
	img := *f.mat
	if w != 0 && h != 0 {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(img, &resized, image.Pt(int(w), int(h)), 0, 0, gocv.InterpolationLinear)
		img = resized
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}
