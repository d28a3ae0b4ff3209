package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"sync"

	"github.com/Robogera/headcount/pkg/detection"
)

// Delimited text log, one row per frame. Columns:
// timestamp, video time, track information, total up, <label> up...,
// total down, <label> down... An unknown split follows the labels for
// crossings decided before any vote.
type CSV struct {
	mu     sync.Mutex
	closer io.Closer
	w      *csv.Writer
	labels []string
}

// Truncates path and writes the header row
func NewCSVFile(path string, labels []string) (*CSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("Can't create %s: %w", path, err)
	}
	c, err := NewCSV(f, labels)
	if err != nil {
		f.Close()
		return nil, err
	}
	c.closer = f
	return c, nil
}

func NewCSV(w io.Writer, labels []string) (*CSV, error) {
	if len(labels) > 0 && !slices.Contains(labels, detection.Unknown) {
		labels = append(slices.Clip(labels), detection.Unknown)
	}
	c := &CSV{w: csv.NewWriter(w), labels: labels}
	header := []string{"timestamp", "video time", "track information", "total up"}
	for _, label := range labels {
		header = append(header, label+" up")
	}
	header = append(header, "total down")
	for _, label := range labels {
		header = append(header, label+" down")
	}
	if err := c.w.Write(header); err != nil {
		return nil, fmt.Errorf("Can't write header: %w", err)
	}
	c.w.Flush()
	return c, c.w.Error()
}

func (c *CSV) Write(_ context.Context, r Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return ERR_SINK_CLOSED
	}
	// the final record repeats a frame that is already logged
	if r.Final {
		return nil
	}
	tracks, err := json.Marshal(r.Tracks)
	if err != nil {
		return fmt.Errorf("Can't encode tracks: %w", err)
	}
	row := []string{
		r.Timestamp.Format("15:04:05"),
		FormatVideoTime(r.VideoTime),
		string(tracks),
		strconv.FormatUint(uint64(r.Counts.TotalUp), 10),
	}
	for _, label := range c.labels {
		row = append(row, strconv.FormatUint(uint64(r.Counts.Up[label]), 10))
	}
	row = append(row, strconv.FormatUint(uint64(r.Counts.TotalDown), 10))
	for _, label := range c.labels {
		row = append(row, strconv.FormatUint(uint64(r.Counts.Down[label]), 10))
	}
	if err := c.w.Write(row); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *CSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return nil
	}
	c.w.Flush()
	err := c.w.Error()
	c.w = nil
	if c.closer != nil {
		if cerr := c.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
