// Package report delivers one record per processed frame to
// append-only sinks.
package report

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/Robogera/headcount/pkg/counting"
	"github.com/Robogera/headcount/pkg/pipeline"
	"github.com/Robogera/headcount/pkg/synapse"
)

var (
	ERR_SINK_CLOSED = errors.New("Sink is closed")
)

type Track struct {
	Id        uint64 `json:"id"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Attribute string `json:"attribute"`
}

type Record struct {
	Timestamp time.Time
	VideoTime time.Duration
	Frame     uint64
	State     string
	Tracks    []Track
	Counts    counting.Counts
	// Set on the record flushed after the stream ends
	Final     bool
}

type Sink interface {
	Write(ctx context.Context, r Record) error
	Close() error
}

// fps is the source frame rate used to derive the video time,
// non-positive values leave it at zero
func FromResult(t time.Time, fps float64, r *pipeline.Result) Record {
	record := Record{
		Timestamp: t,
		Frame:     r.Index,
		State:     r.State.String(),
		Tracks:    make([]Track, 0, len(r.Tracks)),
		Counts:    r.Counts.Clone(),
	}
	if fps > 0 {
		record.VideoTime = time.Duration(float64(r.Index) / fps * float64(time.Second))
	}
	for _, tr := range r.Tracks {
		record.Tracks = append(record.Tracks, Track{
			Id:        tr.Id,
			X:         tr.Centroid.X,
			Y:         tr.Centroid.Y,
			Attribute: tr.Attribute,
		})
	}
	return record
}

func (r Record) Command(sender string) *synapse.Command {
	people := make([]synapse.Person, 0, len(r.Tracks))
	for _, tr := range r.Tracks {
		people = append(people, synapse.Person{Id: tr.Id, X: tr.X, Y: tr.Y, Attribute: tr.Attribute})
	}
	command_type := synapse.CommandTypeFrame
	if r.Final {
		command_type = synapse.CommandTypeFinal
	}
	return &synapse.Command{
		Id:      r.Frame,
		Sender:  sender,
		Type:    command_type,
		Subject: "counts",
		Message: &synapse.Message{
			Timestamp: r.Timestamp,
			VideoTime: r.VideoTime.Seconds(),
			State:     r.State,
			People:    people,
			TotalUp:   r.Counts.TotalUp,
			TotalDown: r.Counts.TotalDown,
			Up:        r.Counts.Up,
			Down:      r.Counts.Down,
		},
	}
}

// Attribute labels present in the record's splits, sorted
func (r Record) Attributes() []string {
	labels := slices.Collect(maps.Keys(r.Counts.Up))
	for label := range r.Counts.Down {
		if !slices.Contains(labels, label) {
			labels = append(labels, label)
		}
	}
	slices.Sort(labels)
	return labels
}

// Formats like H:MM:SS.ffffff, dropping the fraction when it's zero
func FormatVideoTime(d time.Duration) string {
	d = d.Round(time.Microsecond)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	if d == 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d:%02d.%06d", h, m, s, d/time.Microsecond)
}

// Fans records out to every sink. A failing sink doesn't stop the others.
type Multi struct {
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Write(ctx context.Context, r Record) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Write(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.sinks = nil
	return errors.Join(errs...)
}
