package main

import (
	// stdlib
	"context"
	"log/slog"
	"time"

	// internal
	"github.com/Robogera/headcount/pkg/gsma"
	"github.com/Robogera/headcount/pkg/pipeline"
)

type Statistics struct {
	frame_time time.Duration
	state      pipeline.State
	tracks     int
}

// Sliding window over the last window frames
type frameStats struct {
	frame_times *gsma.SMA[time.Duration]
	detecting   uint
	total       uint
}

func newFrameStats(window int) (*frameStats, error) {
	frame_times, err := gsma.NewSMA[time.Duration](window)
	if err != nil {
		return nil, err
	}
	return &frameStats{frame_times: frame_times}, nil
}

func (s *frameStats) add(stat Statistics) {
	s.frame_times.Push(stat.frame_time)
	s.total++
	if stat.state == pipeline.StateDetecting {
		s.detecting++
	}
}

func (s *frameStats) average() time.Duration {
	return time.Duration(s.frame_times.Average())
}

func (s *frameStats) fps() float64 {
	average := s.average()
	if average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(average)
}

func stat(ctx context.Context, parent_logger *slog.Logger, stats <-chan Statistics, stat_period_sec uint) error {
	logger := parent_logger.With("coroutine", "stat")
	stats_window, err := newFrameStats(64)
	if err != nil {
		return err
	}
	var tracks int
	ticker := time.NewTicker(time.Second * time.Duration(max(stat_period_sec, 1)))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Stat cancelled by context")
			return context.Canceled
		case stat := <-stats:
			stats_window.add(stat)
			tracks = stat.tracks
		case <-ticker.C:
			logger.Info(
				"Stats",
				"frames processed", stats_window.total,
				"detecting frames", stats_window.detecting,
				"frames per second", stats_window.fps(),
				"average frame time", stats_window.average(),
				"live tracks", tracks)
		}
	}
}
