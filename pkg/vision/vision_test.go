package vision

import (
	"image"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Robogera/headcount/pkg/counting"
	"github.com/Robogera/headcount/pkg/enums"
	"github.com/Robogera/headcount/pkg/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func blank(t *testing.T, rows, cols int) *gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return &m
}

func TestFrameBounds(t *testing.T) {
	assert.Equal(t, image.Rect(0, 0, 640, 480), NewFrame(blank(t, 480, 640)).Bounds())
	assert.True(t, Frame{}.Bounds().Empty())
}

func TestEncodeJPEG(t *testing.T) {
	frame := NewFrame(blank(t, 120, 160))
	data, err := EncodeJPEG(frame, 0, 0)
	require.NoError(t, err)
	require.Greater(t, len(data), 2)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])

	scaled, err := EncodeJPEG(frame, 80, 60)
	require.NoError(t, err)
	decoded, err := gocv.IMDecode(scaled, gocv.IMReadColor)
	require.NoError(t, err)
	defer decoded.Close()
	assert.Equal(t, 80, decoded.Cols())
	assert.Equal(t, 60, decoded.Rows())

	_, err = EncodeJPEG(Frame{}, 0, 0)
	assert.ErrorIs(t, err, ERR_EMPTY_FRAME)
}

func TestFolderSource(t *testing.T) {
	dir := t.TempDir()
	img := blank(t, 100, 200)
	for _, name := range []string{"002.jpg", "001.png", "003.jpg"} {
		require.True(t, gocv.IMWrite(filepath.Join(dir, name), *img))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644))

	src, err := OpenFolder(dir, 100, 25)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, 3, src.Len())
	assert.Equal(t, 25.0, src.FPS())

	for range 3 {
		frame, err := src.Next()
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 100, 50), frame.Bounds())
	}
	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)

	_, err = OpenFolder(filepath.Join(dir, "missing"), 0, 0)
	assert.ErrorIs(t, err, ERR_BAD_STREAM)
}

func TestReadLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coco.names")
	require.NoError(t, os.WriteFile(path, []byte("person\nbicycle\ncar\n"), 0o644))
	labels, err := ReadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"person", "bicycle", "car"}, labels)

	labels, err = ReadLabels("")
	assert.NoError(t, err)
	assert.Empty(t, labels)

	y := &YOLO{labels: []string{"person"}}
	assert.Equal(t, "person", y.label(0))
	assert.Equal(t, "7", y.label(7))
}

func TestOverlayLines(t *testing.T) {
	counts := counting.NewCounts()
	counts.TotalUp = 3
	counts.Up["man"] = 2
	counts.Up["woman"] = 1
	counts.TotalDown = 1
	counts.Down["unknown"] = 1

	assert.Equal(t, []string{
		"Up: 3 (man: 2 woman: 1)",
		"Down: 1 (man: 0 woman: 0 unknown: 1)",
		"Status: tracking",
	}, OverlayLines(counts, pipeline.StateTracking, []string{"man", "woman"}))

	assert.Equal(t, "Down: 1 (unknown: 1 man: 0)",
		OverlayLines(counts, pipeline.StateTracking, []string{"unknown", "man"})[1])

	assert.Equal(t, []string{"Up: 3", "Down: 1", "Status: waiting"},
		OverlayLines(counts, pipeline.StateWaiting, nil))
}

func TestRenderer(t *testing.T) {
	r := NewRenderer(5, []string{"man", "woman"})
	frame := NewFrame(blank(t, 240, 320))
	first := &pipeline.Result{
		State: pipeline.StateDetecting,
		Tracks: []pipeline.Track{
			{Id: 0, Centroid: image.Pt(50, 200), Box: image.Rect(40, 180, 60, 220)},
			{Id: 1, Centroid: image.Pt(150, 100)},
		},
		Counts: counting.NewCounts(),
	}
	r.Render(frame, first)
	assert.Equal(t, 2, r.Len())
	assert.NotEqual(t, r.marks[0].color, r.marks[1].color)

	second := &pipeline.Result{
		State:  pipeline.StateTracking,
		Tracks: []pipeline.Track{{Id: 1, Centroid: image.Pt(150, 90)}},
		Counts: counting.NewCounts(),
	}
	r.Render(frame, second)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 2, r.marks[1].tail.Size())
	assert.Equal(t, image.Pt(150, 90), r.marks[1].tail.Newest())
}

func TestTrackerFactory(t *testing.T) {
	_, err := NewTrackerFactory(enums.VisualTracker{Value: "boosting"})
	assert.Error(t, err)

	factory, err := NewTrackerFactory(enums.TrackerMIL)
	require.NoError(t, err)
	assert.Equal(t, enums.TrackerMIL, factory.Kind())
	_, err = factory.Start(Frame{}, image.Rect(0, 0, 10, 10))
	assert.ErrorIs(t, err, ERR_EMPTY_FRAME)
}
