package vision

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Annotated video output. The file is created on the first frame,
// its size fixes the video size.
type VideoWriter struct {
	path   string
	codec  string
	fps    float64
	writer *gocv.VideoWriter
}

func NewVideoWriter(path string, fps float64) *VideoWriter {
	return &VideoWriter{path: path, codec: "MJPG", fps: fps}
}

func (w *VideoWriter) Write(frame Frame) error {
	img := frame.Mat()
	if img == nil || img.Empty() {
		return ERR_EMPTY_FRAME
	}
	if w.writer == nil {
		writer, err := gocv.VideoWriterFile(w.path, w.codec, w.fps, img.Cols(), img.Rows(), true)
		if err != nil {
			return fmt.Errorf("Can't create %s: %w", w.path, err)
		}
		w.writer = writer
	}
	return w.writer.Write(*img)
}

func (w *VideoWriter) Close() error {
	if w.writer == nil {
		return nil
	}
	err := w.writer.Close()
	w.writer = nil
	return err
}
