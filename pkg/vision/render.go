package vision

import (
	"fmt"
	"image"
	"image/color"
	"slices"
	"strings"

	"github.com/Robogera/headcount/pkg/counting"
	"github.com/Robogera/headcount/pkg/detection"
	"github.com/Robogera/headcount/pkg/gring"
	"github.com/Robogera/headcount/pkg/pipeline"

	"github.com/muesli/gamut"
	"gocv.io/x/gocv"
)

var (
	base_color = color.RGBA{0, 255, 0, 255}
	text_color = color.RGBA{0, 0, 255, 255}
)

type mark struct {
	color color.RGBA
	tail  *gring.Ring[image.Point]
}

// Draws identities, their recent trajectory and the counter overlay.
// Keeps per identity state, so one renderer per stream.
type Renderer struct {
	marks       map[uint64]*mark
	next_color  color.Color
	tail_length int
	labels      []string
}

// labels are the attributes shown in the overlay split
func NewRenderer(tail_length uint, labels []string) *Renderer {
	return &Renderer{
		marks:       make(map[uint64]*mark),
		next_color:  base_color,
		tail_length: max(int(tail_length), 1),
		labels:      labels,
	}
}

func (r *Renderer) mark(id uint64) *mark {
	m, ok := r.marks[id]
	if ok {
		return m
	}
	r.next_color = gamut.HueOffset(r.next_color, 153)
	cr, cg, cb, _ := r.next_color.RGBA()
	m = &mark{
		color: color.RGBA{uint8(cr >> 8), uint8(cg >> 8), uint8(cb >> 8), 255},
		tail:  gring.NewRing[image.Point](r.tail_length),
	}
	r.marks[id] = m
	return m
}

// Number of identities with a live trajectory
func (r *Renderer) Len() int { return len(r.marks) }

// Updates trajectories from result, forgets identities it no longer
// reports
func (r *Renderer) Update(result *pipeline.Result) {
	live := make(map[uint64]struct{}, len(result.Tracks))
	for _, track := range result.Tracks {
		live[track.Id] = struct{}{}
		r.mark(track.Id).tail.Push(track.Centroid)
	}
	for id := range r.marks {
		if _, ok := live[id]; !ok {
			delete(r.marks, id)
		}
	}
}

func (r *Renderer) Render(frame Frame, result *pipeline.Result) {
	r.Update(result)
	img := frame.Mat()
	if img == nil || img.Empty() {
		return
	}
	for _, track := range result.Tracks {
		m := r.mark(track.Id)
		prev_point := track.Centroid
		for point := range m.tail.All() {
			gocv.Line(img, prev_point, point, m.color, 2)
			prev_point = point
		}
		if !track.Box.Empty() {
			gocv.Rectangle(img, track.Box, m.color, 1)
		}
		gocv.PutText(img, fmt.Sprintf("ID %d", track.Id), track.Centroid.Sub(image.Pt(10, 10)),
			gocv.FontHersheySimplex, 0.5, m.color, 2)
		gocv.Circle(img, track.Centroid, 4, m.color, -1)
	}

	h := img.Rows()
	for i, line := range OverlayLines(result.Counts, result.State, r.labels) {
		gocv.PutText(img, line, image.Pt(10, h-(i*20+20)), gocv.FontHersheySimplex, 0.45, text_color, 1)
	}
}

// Bottom-up order: up, down, status
func OverlayLines(counts counting.Counts, state pipeline.State, labels []string) []string {
	split := func(total uint, by map[string]uint) string {
		if len(labels) == 0 {
			return fmt.Sprint(total)
		}
		parts := make([]string, 0, len(labels))
		for _, label := range labels {
			parts = append(parts, fmt.Sprintf("%s: %d", label, by[label]))
		}
		if by[detection.Unknown] > 0 && !slices.Contains(labels, detection.Unknown) {
			parts = append(parts, fmt.Sprintf("%s: %d", detection.Unknown, by[detection.Unknown]))
		}
		return fmt.Sprintf("%d (%s)", total, strings.Join(parts, " "))
	}
	return []string{
		"Up: " + split(counts.TotalUp, counts.Up),
		"Down: " + split(counts.TotalDown, counts.Down),
		"Status: " + state.String(),
	}
}
