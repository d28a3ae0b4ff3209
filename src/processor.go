package main

import (
	// stdlib
	"context"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"time"

	// internal
	"github.com/Robogera/headcount/pkg/centroid"
	"github.com/Robogera/headcount/pkg/config"
	"github.com/Robogera/headcount/pkg/enums"
	"github.com/Robogera/headcount/pkg/indexed"
	"github.com/Robogera/headcount/pkg/pipeline"
	"github.com/Robogera/headcount/pkg/report"
	"github.com/Robogera/headcount/pkg/synapse"
	"github.com/Robogera/headcount/pkg/vision"
)

type frameSource interface {
	pipeline.Source[vision.Frame]
	FPS() float64
	Close() error
}

func openSource(cfg *config.ConfigFile) (frameSource, error) {
	input_type := *enums.InputTypes.Parse(cfg.Input.Type)
	if input_type == enums.InputFolder {
		return vision.OpenFolder(cfg.Input.Path, cfg.Input.Width, cfg.Output.FPS)
	}
	return vision.OpenVideo(input_type, cfg.Input.Path, cfg.Input.Width)
}

func netConfig(format, path, config_path string, d config.DetectorConfig) vision.NetConfig {
	return vision.NetConfig{
		Format:     *enums.ModelFormats.Parse(format),
		Path:       path,
		ConfigPath: config_path,
		Device:     *enums.DeviceTypes.Parse(d.Device),
		Backend:    *enums.BackendTypes.Parse(d.Backend),
	}
}

// Owns the source, the models and the pipeline. Everything downstream
// gets copies over channels.
func processor(
	ctx context.Context,
	parent_logger *slog.Logger,
	cfg *config.ConfigFile,
	frames_chan chan<- indexed.Indexed[[]byte],
	messages_chan chan<- indexed.Indexed[*synapse.Message],
	records_chan chan<- report.Record,
	stat_chan chan<- Statistics,
) error {

	// gocv handles stay on one thread
	runtime.LockOSThread()

	logger := parent_logger.With("coroutine", "processor")

	// the recorder stops once this is closed
	defer close(records_chan)

	source, err := openSource(cfg)
	if err != nil {
		logger.Error("Can't open input", "type", cfg.Input.Type, "address", cfg.Input.Path, "error", err)
		return fmt.Errorf("%w: %w", ERR_BAD_INPUT, err)
	}
	defer source.Close()

	fps := source.FPS()
	logger.Info("Input opened", "type", cfg.Input.Type, "address", cfg.Input.Path, "fps", fps)

	detector, err := vision.NewYOLO(vision.YOLOConfig{
		Net:                 netConfig(cfg.Detector.Format, cfg.Detector.Path, cfg.Detector.ConfigPath, cfg.Detector),
		LabelsPath:          cfg.Detector.LabelsPath,
		Transpose:           cfg.Detector.Transpose,
		ScaleFactor:         cfg.Detector.ScaleFactor,
		Size:                image.Pt(int(cfg.Detector.X), int(cfg.Detector.Y)),
		ConfidenceThreshold: cfg.Detector.ConfidenceThreshold,
		NMSThreshold:        cfg.Detector.NMSThreshold,
	})
	if err != nil {
		logger.Error("Error reading detector model", "model", cfg.Detector.Path, "error", err)
		return fmt.Errorf("%w: %w", ERR_BAD_MODEL, err)
	}
	defer detector.Close()

	// must stay a nil interface when disabled
	var classifier pipeline.Classifier[vision.Frame]
	if cfg.Classifier.Enabled {
		c, err := vision.NewClassifier(vision.ClassifierConfig{
			Net:         netConfig(cfg.Classifier.Format, cfg.Classifier.Path, cfg.Classifier.ConfigPath, cfg.Detector),
			Labels:      cfg.Classifier.Labels,
			Grayscale:   cfg.Classifier.Grayscale,
			ScaleFactor: cfg.Classifier.ScaleFactor,
			Size:        image.Pt(int(cfg.Classifier.X), int(cfg.Classifier.Y)),
		})
		if err != nil {
			logger.Error("Error reading classifier model", "model", cfg.Classifier.Path, "error", err)
			return fmt.Errorf("%w: %w", ERR_BAD_MODEL, err)
		}
		defer c.Close()
		classifier = c
	}

	trackers, err := vision.NewTrackerFactory(*enums.VisualTrackers.Parse(cfg.Tracking.VisualTracker))
	if err != nil {
		return fmt.Errorf("%w: %w", ERR_INVALID_CONFIG, err)
	}

	strategy := centroid.StrategyGreedy
	if *enums.Associations.Parse(cfg.Tracking.Association) == enums.AssociationHungarian {
		strategy = centroid.StrategyHungarian
	}
	var pace time.Duration
	if cfg.Input.Pace && fps > 0 {
		pace = time.Duration(float64(time.Second) / fps)
	}

	counter, err := pipeline.New[vision.Frame](
		logger,
		pipeline.Options{
			SkipInterval:     cfg.Tracking.SkipInterval,
			MaxDistance:      cfg.Tracking.MaxDistance,
			MaxDisappeared:   cfg.Tracking.MaxDisappeared,
			Strategy:         strategy,
			Classes:          cfg.Detector.Classes,
			MinScore:         cfg.Detector.MinScore,
			CrossingFraction: cfg.Tracking.CrossingFraction,
			Pace:             pace,
		},
		detector,
		trackers,
		classifier,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ERR_INVALID_CONFIG, err)
	}

	renderer := vision.NewRenderer(cfg.Output.TailLength, cfg.Report.CSV.Attributes)
	var writer *vision.VideoWriter
	if cfg.Output.VideoPath != "" {
		writer = vision.NewVideoWriter(cfg.Output.VideoPath, cfg.Output.FPS)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Warn("Can't finalize output video", "path", cfg.Output.VideoPath, "error", err)
			}
		}()
	}

	var last *pipeline.Result
	var frames uint64
	last_frame_timestamp := time.Now()

	logger.Info("Video loop started", "skip", cfg.Tracking.SkipInterval, "tracker", trackers.Kind().Value, "association", strategy)

	counts, err := counter.Run(ctx, source, func(frame vision.Frame, result *pipeline.Result) error {
		now := time.Now()
		last = result
		frames++

		renderer.Render(frame, result)
		if writer != nil {
			if err := writer.Write(frame); err != nil {
				logger.Warn("Can't write output video", "path", cfg.Output.VideoPath, "error", err)
			}
		}

		record := report.FromResult(now, fps, result)
		records_chan <- record

		select {
		case messages_chan <- indexed.NewIndexed(result.Index, now, record.Command(cfg.Report.MQTT.ClientID).Message):
		default:
		}

		if cfg.Webserver.Enabled {
			data, err := vision.EncodeJPEG(frame, cfg.Webserver.W, cfg.Webserver.H)
			if err != nil {
				logger.Error("Can't encode frame", "error", err)
				return err
			}
			select {
			case frames_chan <- indexed.NewIndexed(result.Index, now, data):
			default:
				logger.Debug("Frame channel full. Droping the frame...", "capacity", cap(frames_chan))
			}
		}

		select {
		case stat_chan <- Statistics{
			frame_time: time.Since(last_frame_timestamp),
			state:      result.State,
			tracks:     len(result.Tracks),
		}:
		default:
		}
		last_frame_timestamp = time.Now()
		return nil
	})

	final := report.Record{
		Timestamp: time.Now(),
		State:     counter.State().String(),
		Counts:    counts,
		Final:     true,
	}
	if last != nil {
		final = report.FromResult(final.Timestamp, fps, last)
		final.Counts = counts
		final.Final = true
	}
	records_chan <- final

	logger.Info(
		"Final counts",
		"frames", frames,
		"total up", counts.TotalUp,
		"total down", counts.TotalDown,
		"up", counts.Up,
		"down", counts.Down)

	if err != nil {
		logger.Info("Video loop stopped", "error", err)
		return err
	}
	return ERR_STREAM_ENDED
}
