package pipeline

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"testing"

	"github.com/Robogera/headcount/pkg/centroid"
	"github.com/Robogera/headcount/pkg/counting"
	"github.com/Robogera/headcount/pkg/detection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Synthetic frame carrying its ground truth boxes, one slot per object
type fakeFrame struct {
	w, h  int
	boxes []image.Rectangle
}

func (f fakeFrame) Bounds() image.Rectangle { return image.Rect(0, 0, f.w, f.h) }

type fakeDetector struct {
	calls int
	fail  map[int]bool
	extra []detection.Detection
}

func (d *fakeDetector) Detect(f fakeFrame) ([]detection.Detection, error) {
	call := d.calls
	d.calls++
	if d.fail[call] {
		return nil, errors.New("inference blew up")
	}
	detections := make([]detection.Detection, 0, len(f.boxes)+len(d.extra))
	for _, box := range f.boxes {
		detections = append(detections, detection.Detection{Box: box, Class: "person", Score: 0.9})
	}
	return append(detections, d.extra...), nil
}

type fakeTracker struct {
	started, closed int
}

type fakeHandle struct {
	tracker *fakeTracker
	slot    int
}

func (tr *fakeTracker) Start(f fakeFrame, box image.Rectangle) (Handle[fakeFrame], error) {
	slot := -1
	for i, b := range f.boxes {
		if b == box {
			slot = i
		}
	}
	tr.started++
	return &fakeHandle{tracker: tr, slot: slot}, nil
}

func (h *fakeHandle) Update(f fakeFrame) (image.Rectangle, bool) {
	if h.slot < 0 || h.slot >= len(f.boxes) {
		return image.Rectangle{}, false
	}
	return f.boxes[h.slot], true
}

func (h *fakeHandle) Close() error {
	h.tracker.closed++
	return nil
}

type fakeClassifier struct {
	label string
	calls int
	// first calls that fail, negative fails every call
	fail int
}

func (c *fakeClassifier) Classify(f fakeFrame, box image.Rectangle) (string, error) {
	c.calls++
	if c.fail < 0 || c.calls <= c.fail {
		return "", errors.New("crop too blurry")
	}
	return c.label, nil
}

type sliceSource struct {
	frames []fakeFrame
	pos    int
}

func (s *sliceSource) Next() (fakeFrame, error) {
	if s.pos >= len(s.frames) {
		return fakeFrame{}, io.EOF
	}
	s.pos++
	return s.frames[s.pos-1], nil
}

func box(cx, cy int) image.Rectangle {
	return image.Rect(cx-20, cy-40, cx+20, cy+40)
}

func defaultOptions() Options {
	return Options{
		SkipInterval:     5,
		MaxDistance:      70,
		MaxDisappeared:   15,
		Strategy:         centroid.StrategyGreedy,
		Classes:          []string{"person"},
		MinScore:         0.5,
		CrossingFraction: 0.2,
	}
}

func newPipeline(t *testing.T, opts Options, d *fakeDetector, tr *fakeTracker, c Classifier[fakeFrame]) *Pipeline[fakeFrame] {
	t.Helper()
	p, err := New(slog.New(slog.DiscardHandler), opts, Detector[fakeFrame](d), VisualTracker[fakeFrame](tr), c)
	require.NoError(t, err)
	return p
}

func walker(frames int, from, to image.Point) []fakeFrame {
	out := make([]fakeFrame, frames)
	for i := range frames {
		c := image.Pt(
			from.X+(to.X-from.X)*i/(frames-1),
			from.Y+(to.Y-from.Y)*i/(frames-1),
		)
		out[i] = fakeFrame{w: 640, h: 480, boxes: []image.Rectangle{box(c.X, c.Y)}}
	}
	return out
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New[fakeFrame](slog.New(slog.DiscardHandler), defaultOptions(), nil, &fakeTracker{}, nil)
	assert.ErrorIs(t, err, ERR_NO_DETECTOR)

	opts := defaultOptions()
	opts.MaxDistance = -1
	_, err = New[fakeFrame](slog.New(slog.DiscardHandler), opts, &fakeDetector{}, &fakeTracker{}, nil)
	assert.ErrorIs(t, err, centroid.ERR_BAD_DISTANCE)
}

func TestSchedulerStates(t *testing.T) {
	opts := defaultOptions()
	opts.SkipInterval = 3
	d, tr := &fakeDetector{}, &fakeTracker{}
	p := newPipeline(t, opts, d, tr, nil)
	assert.Equal(t, StateWaiting, p.State())

	frames := walker(7, image.Pt(100, 100), image.Pt(160, 100))
	want := []State{
		StateDetecting, StateTracking, StateTracking,
		StateDetecting, StateTracking, StateTracking,
		StateDetecting,
	}
	for i, f := range frames {
		r, err := p.Process(f)
		require.NoError(t, err)
		assert.Equal(t, want[i], r.State, "frame %d", i)
		assert.Equal(t, uint64(i), r.Index)
		require.Len(t, r.Tracks, 1, "frame %d", i)
		assert.Equal(t, uint64(0), r.Tracks[0].Id, "frame %d", i)
	}
	assert.Equal(t, 3, d.calls)
	assert.Equal(t, 3, tr.started)
	// handles of the first two intervals were discarded
	assert.Equal(t, 2, tr.closed)
}

func TestDetectorFailureFallsBackToTracking(t *testing.T) {
	opts := defaultOptions()
	opts.SkipInterval = 2
	d, tr := &fakeDetector{fail: map[int]bool{1: true}}, &fakeTracker{}
	p := newPipeline(t, opts, d, tr, nil)

	for i, f := range walker(4, image.Pt(100, 100), image.Pt(130, 100)) {
		r, err := p.Process(f)
		require.NoError(t, err)
		if i == 2 {
			assert.Equal(t, StateTracking, r.State)
			assert.False(t, r.Tracks[0].Box.Empty())
		}
	}
	assert.Equal(t, 1, tr.started)
	assert.Zero(t, tr.closed)
}

func TestCleaningDropsOtherClassesAndLowScores(t *testing.T) {
	d := &fakeDetector{extra: []detection.Detection{
		{Box: box(400, 300), Class: "car", Score: 0.99},
		{Box: box(500, 300), Class: "person", Score: 0.3},
		{Box: image.Rect(700, 10, 760, 50), Class: "person", Score: 0.9},
	}}
	tr := &fakeTracker{}
	p := newPipeline(t, defaultOptions(), d, tr, nil)
	r, err := p.Process(fakeFrame{w: 640, h: 480, boxes: []image.Rectangle{box(100, 100)}})
	require.NoError(t, err)
	assert.Len(t, r.Tracks, 1)
	assert.Equal(t, 1, tr.started)
}

func TestUpwardWalkerCountedOnceWithAttribute(t *testing.T) {
	c := &fakeClassifier{label: "man"}
	p := newPipeline(t, defaultOptions(), &fakeDetector{}, &fakeTracker{}, c)

	frames := walker(30, image.Pt(320, 400), image.Pt(320, 100))
	// and back down, which must not count again
	frames = append(frames, walker(30, image.Pt(320, 100), image.Pt(320, 420))...)
	counts, err := p.Run(context.Background(), &sliceSource{frames: frames}, nil)
	require.NoError(t, err)

	assert.Equal(t, uint(1), counts.TotalUp)
	assert.Zero(t, counts.TotalDown)
	assert.Equal(t, map[string]uint{"man": 1}, counts.Up)
	assert.Equal(t, counting.MaxVotes, c.calls)
}

func TestClassifierFailureCastsNoVote(t *testing.T) {
	c := &fakeClassifier{label: "woman", fail: 2}
	p := newPipeline(t, defaultOptions(), &fakeDetector{}, &fakeTracker{}, c)
	counts, err := p.Run(context.Background(), &sliceSource{frames: walker(30, image.Pt(320, 400), image.Pt(320, 100))}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]uint{"woman": 1}, counts.Up)
	assert.Equal(t, counting.MaxVotes+2, c.calls)

	c = &fakeClassifier{label: "woman", fail: -1}
	p = newPipeline(t, defaultOptions(), &fakeDetector{}, &fakeTracker{}, c)
	frames := walker(30, image.Pt(320, 400), image.Pt(320, 100))
	var last *Result
	counts, err = p.Run(context.Background(), &sliceSource{frames: frames}, func(f fakeFrame, r *Result) error {
		last = r
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint(1), counts.TotalUp)
	assert.Equal(t, map[string]uint{detection.Unknown: 1}, counts.Up)
	require.Len(t, last.Tracks, 1)
	assert.Equal(t, detection.Unknown, last.Tracks[0].Attribute)
	// every matched frame retries
	assert.Equal(t, len(frames), c.calls)
}

func TestLostHandleDroppedForInterval(t *testing.T) {
	tests := []struct {
		name string
		// boxes seen on frames 1..3, the second walker is at slot 1
		boxes func(i int) []image.Rectangle
	}{
		{"target lost", func(i int) []image.Rectangle {
			return []image.Rectangle{box(100+i, 300)}
		}},
		{"box left the frame", func(i int) []image.Rectangle {
			return []image.Rectangle{box(100+i, 300), box(900, 300)}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := defaultOptions()
			opts.SkipInterval = 10
			opts.MaxDisappeared = 2
			d, tr := &fakeDetector{}, &fakeTracker{}
			p := newPipeline(t, opts, d, tr, nil)

			r, err := p.Process(fakeFrame{w: 640, h: 480, boxes: []image.Rectangle{box(100, 300), box(400, 300)}})
			require.NoError(t, err)
			require.Len(t, r.Tracks, 2)
			assert.Equal(t, 2, p.scheduler.ActiveHandles())

			for i := 1; i <= 3; i++ {
				r, err = p.Process(fakeFrame{w: 640, h: 480, boxes: tt.boxes(i)})
				require.NoError(t, err)
				assert.Equal(t, StateTracking, r.State)
				assert.Equal(t, 1, tr.closed, "frame %d", i)
				assert.Equal(t, 1, p.scheduler.ActiveHandles(), "frame %d", i)
				if i < 3 {
					require.Len(t, r.Tracks, 2, "frame %d", i)
					assert.True(t, r.Tracks[1].Box.Empty(), "frame %d", i)
				}
			}
			// patience of 2 frames used up
			require.Len(t, r.Tracks, 1)
			assert.Equal(t, uint64(0), r.Tracks[0].Id)
			assert.Equal(t, image.Pt(103, 300), r.Tracks[0].Centroid)
			assert.Zero(t, r.Counts.TotalUp+r.Counts.TotalDown)
			assert.Equal(t, 1, p.counting.Len())
			assert.Equal(t, 1, d.calls)
			assert.Equal(t, 2, tr.started)
		})
	}
}

func TestDisappearedIdentityEvictedWithoutCounting(t *testing.T) {
	opts := defaultOptions()
	opts.SkipInterval = 1
	opts.MaxDisappeared = 2
	p := newPipeline(t, opts, &fakeDetector{}, &fakeTracker{}, nil)

	r, err := p.Process(fakeFrame{w: 640, h: 480, boxes: []image.Rectangle{box(300, 300)}})
	require.NoError(t, err)
	require.Len(t, r.Tracks, 1)

	for i := range 3 {
		r, err = p.Process(fakeFrame{w: 640, h: 480})
		require.NoError(t, err)
		if i < 2 {
			assert.Len(t, r.Tracks, 1, "retained after %d misses", i+1)
		}
	}
	assert.Empty(t, r.Tracks)
	assert.Zero(t, r.Counts.TotalUp+r.Counts.TotalDown)
	assert.Zero(t, p.counting.Len())
}

func TestFrameSizeChangeRejected(t *testing.T) {
	p := newPipeline(t, defaultOptions(), &fakeDetector{}, &fakeTracker{}, nil)
	_, err := p.Process(fakeFrame{w: 640, h: 480})
	require.NoError(t, err)
	_, err = p.Process(fakeFrame{w: 800, h: 600})
	assert.ErrorIs(t, err, ERR_FRAME_SIZE_CHANGED)
	_, err = p.Process(fakeFrame{w: 640, h: 480})
	assert.NoError(t, err)
}

func TestRunStopsOnCancelAndCallback(t *testing.T) {
	p := newPipeline(t, defaultOptions(), &fakeDetector{}, &fakeTracker{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	seen := 0
	_, err := p.Run(ctx, &sliceSource{frames: walker(10, image.Pt(100, 100), image.Pt(100, 200))},
		func(f fakeFrame, r *Result) error {
			seen++
			if seen == 3 {
				cancel()
			}
			return nil
		})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, seen)

	stop := errors.New("sink full")
	p = newPipeline(t, defaultOptions(), &fakeDetector{}, &fakeTracker{}, nil)
	_, err = p.Run(context.Background(), &sliceSource{frames: walker(10, image.Pt(100, 100), image.Pt(100, 200))},
		func(f fakeFrame, r *Result) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestRunWithoutFrames(t *testing.T) {
	p := newPipeline(t, defaultOptions(), &fakeDetector{}, &fakeTracker{}, nil)
	counts, err := p.Run(context.Background(), &sliceSource{}, nil)
	require.NoError(t, err)
	assert.Equal(t, counting.NewCounts(), counts)
	assert.Equal(t, StateWaiting, p.State())
}
