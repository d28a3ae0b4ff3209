package vision

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/Robogera/headcount/pkg/enums"

	"gocv.io/x/gocv"
)

// Frames pulled from a gocv.VideoCapture, optionally resized to a fixed
// width keeping the aspect ratio
type VideoSource struct {
	capture *gocv.VideoCapture
	raw     gocv.Mat
	resized gocv.Mat
	width   int
	fps     float64
}

// "0" or "webcam" as the path of a webcam input opens the default
// camera, any other number opens that device index
func OpenVideo(input_type enums.InputType, path string, width uint) (*VideoSource, error) {
	var capture *gocv.VideoCapture
	var err error

	switch input_type {
	case enums.InputFile:
		capture, err = gocv.VideoCaptureFile(path)
	case enums.InputWebcam:
		device := 0
		if path != "" && path != "webcam" {
			device, err = strconv.Atoi(path)
			if err != nil {
				return nil, fmt.Errorf("%w: bad webcam index %q", ERR_BAD_STREAM, path)
			}
		}
		capture, err = gocv.VideoCaptureDevice(device)
	case enums.InputIPC:
		capture, err = gocv.OpenVideoCapture(path)
	default:
		return nil, fmt.Errorf("%w: %s input is not a video", ERR_BAD_STREAM, input_type.Value)
	}
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ERR_BAD_STREAM, path, err)
	}
	return &VideoSource{
		capture: capture,
		raw:     gocv.NewMat(),
		resized: gocv.NewMat(),
		width:   int(width),
		fps:     capture.Get(gocv.VideoCaptureFPS),
	}, nil
}

// Zero when the stream doesn't report it
func (s *VideoSource) FPS() float64 { return s.fps }

func (s *VideoSource) Next() (Frame, error) {
	for {
		if !s.capture.Read(&s.raw) {
			return Frame{}, io.EOF
		}
		if !s.raw.Empty() {
			break
		}
	}
	if s.width <= 0 || s.raw.Cols() == s.width {
		return NewFrame(&s.raw), nil
	}
	return NewFrame(resize(s.raw, &s.resized, s.width)), nil
}

func (s *VideoSource) Close() error {
	s.raw.Close()
	s.resized.Close()
	return s.capture.Close()
}

func resize(src gocv.Mat, dst *gocv.Mat, width int) *gocv.Mat {
	height := src.Rows() * width / src.Cols()
	gocv.Resize(src, dst, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)
	return dst
}

var image_extensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

// Replays the images of a folder in lexical order
type FolderSource struct {
	names   []string
	next    int
	current gocv.Mat
	resized gocv.Mat
	width   int
	fps     float64
}

func OpenFolder(dir string, width uint, fps float64) (*FolderSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ERR_BAD_STREAM, dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || !slices.Contains(image_extensions, ext) {
			continue
		}
		names = append(names, filepath.Join(dir, entry.Name()))
	}
	slices.Sort(names)
	return &FolderSource{
		names:   names,
		current: gocv.NewMat(),
		resized: gocv.NewMat(),
		width:   int(width),
		fps:     fps,
	}, nil
}

func (s *FolderSource) FPS() float64 { return s.fps }
func (s *FolderSource) Len() int     { return len(s.names) }

// Unreadable images are skipped
func (s *FolderSource) Next() (Frame, error) {
	for s.next < len(s.names) {
		img := gocv.IMRead(s.names[s.next], gocv.IMReadColor)
		s.next++
		if img.Empty() {
			img.Close()
			continue
		}
		s.current.Close()
		s.current = img
		if s.width <= 0 || s.current.Cols() == s.width {
			return NewFrame(&s.current), nil
		}
		return NewFrame(resize(s.current, &s.resized, s.width)), nil
	}
	return Frame{}, io.EOF
}

func (s *FolderSource) Close() error {
	s.current.Close()
	s.resized.Close()
	return nil
}
