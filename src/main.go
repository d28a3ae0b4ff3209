package main

import (
	// stdlib
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	// internal
	"github.com/Robogera/headcount/pkg/config"
	"github.com/Robogera/headcount/pkg/enums"
	"github.com/Robogera/headcount/pkg/indexed"
	"github.com/Robogera/headcount/pkg/report"
	"github.com/Robogera/headcount/pkg/rpath"
	"github.com/Robogera/headcount/pkg/synapse"

	// external
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
)

const (
	default_cfg_path string = "../cfg/config.default.toml"
)

var (
	cfg_path   string
	exe_dir    string
	create_cfg bool

	input_flag     string
	skip_flag      uint
	classes_flag   string
	distance_flag  float64
	disappear_flag uint
	log_flag       string
	output_flag    string
)

func init() {
	var err error

	exe_dir, err = rpath.ExecutableDir()
	if err != nil {
		slog.Error("Can't find the executable's location", "error", err)
		return
	}

	flag.StringVar(&cfg_path, "config", default_cfg_path, "Path to config file")
	flag.BoolVar(&create_cfg, "create-config", false, "Write the default config to -config and exit")
	flag.StringVar(&input_flag, "input", "", "Video file, image folder, stream address, or 0/webcam for the camera")
	flag.UintVar(&skip_flag, "skip", 0, "Run the detector every N frames")
	flag.StringVar(&classes_flag, "classes", "", "Comma separated detector classes to keep")
	flag.Float64Var(&distance_flag, "distance", 0, "Max centroid distance (px) for association")
	flag.UintVar(&disappear_flag, "disappear", 0, "Frames an identity may go unmatched before eviction")
	flag.StringVar(&log_flag, "log", "", "CSV log path")
	flag.StringVar(&output_flag, "output", "", "Annotated video path")
}

// Flags the user actually passed win over the config file
func applyFlags(cfg *config.ConfigFile) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input.Path = input_flag
			switch {
			case input_flag == "0" || input_flag == "webcam":
				cfg.Input.Type = enums.InputWebcam.Value
			case isDir(input_flag):
				cfg.Input.Type = enums.InputFolder.Value
			case strings.Contains(input_flag, "://"):
				cfg.Input.Type = enums.InputIPC.Value
			default:
				cfg.Input.Type = enums.InputFile.Value
			}
		case "skip":
			cfg.Tracking.SkipInterval = skip_flag
		case "classes":
			var classes []string
			for _, class := range strings.Split(classes_flag, ",") {
				if class = strings.TrimSpace(class); class != "" {
					classes = append(classes, class)
				}
			}
			cfg.Detector.Classes = classes
		case "distance":
			cfg.Tracking.MaxDistance = distance_flag
		case "disappear":
			cfg.Tracking.MaxDisappeared = disappear_flag
		case "log":
			cfg.Report.CSV.Path = log_flag
		case "output":
			cfg.Output.VideoPath = output_flag
		}
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func logLevel(level string) slog.Level {
	parsed := enums.LoggingLevels.Parse(level)
	if parsed == nil {
		return slog.LevelInfo
	}
	switch *parsed {
	case enums.LoggingLevelDebug:
		return slog.LevelDebug
	case enums.LoggingLevelWarn:
		return slog.LevelWarn
	case enums.LoggingLevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

func main() {

	// Configuration init

	flag.Parse()

	if create_cfg {
		if err := config.CreateDefault(cfg_path); err != nil {
			slog.Error("Can't create config", "path", cfg_path, "error", err)
			os.Exit(1)
		}
		slog.Info("Default config written", "path", cfg_path)
		return
	}

	if cfg_path == default_cfg_path {
		cfg_path = rpath.Convert(exe_dir, cfg_path)
	}
	cfg, err := config.Unmarshal(cfg_path)
	if err != nil {
		slog.Error("Config file not loaded. Shutting down...", "provided path", cfg_path, "error", err)
		os.Exit(1)
	}
	cfg.Resolve(exe_dir)
	// paths given on the command line are relative to the working dir
	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("Config is invalid. Shutting down...", "provided path", cfg_path, "error", err)
		os.Exit(1)
	}

	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevel(cfg.Logging.Level),
		TimeFormat: time.RFC3339,
		AddSource:  cfg.Logging.AddSource,
	}))

	logger.Info("Starting...", "input", cfg.Input.Path, "type", cfg.Input.Type)

	ctx := context.Background()
	eg, child_ctx := errgroup.WithContext(ctx)

	frames_chan := make(chan indexed.Indexed[[]byte], 1)
	messages_chan := make(chan indexed.Indexed[*synapse.Message], 1)
	records_chan := make(chan report.Record, 64)
	stat_chan := make(chan Statistics, 16)

	if cfg.Webserver.Enabled {
		eg.Go(func() error {
			return webplayer(child_ctx, logger, cfg, frames_chan, messages_chan)
		})
	}

	eg.Go(func() error {
		return recorder(child_ctx, logger, cfg, records_chan)
	})

	eg.Go(func() error {
		return processor(child_ctx, logger, cfg, frames_chan, messages_chan, records_chan, stat_chan)
	})

	eg.Go(func() error {
		return stat(child_ctx, logger, stat_chan, cfg.Logging.StatPeriodSec)
	})

	eg.Go(func() error {
		return control(child_ctx, logger)
	})

	err = eg.Wait()
	switch {
	case err == nil, errors.Is(err, ERR_STREAM_ENDED), errors.Is(err, ERR_INTERRUPTED_BY_USER):
		logger.Info("Stopped", "reason", err)
	default:
		logger.Error("Stopped", "error", err)
		os.Exit(1)
	}
}

func control(ctx context.Context, logger *slog.Logger) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt,
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGINT)
	defer signal.Stop(interrupt)

	select {
	case <-ctx.Done():
		logger.Info("Control cancelled by context")
		return context.Canceled
	case <-interrupt:
		logger.Info("Cancelled by user")
		return ERR_INTERRUPTED_BY_USER
	}
}
