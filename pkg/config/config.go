package config

import (
	// stdlib
	"errors"
	"fmt"
	"os"

	// internal
	"github.com/Robogera/headcount/pkg/enums"
	"github.com/Robogera/headcount/pkg/rpath"

	// external
	"github.com/pelletier/go-toml/v2"
)

var (
	ERR_INVALID_CONFIG = errors.New("Invalid config")
)

// Config file structure

type ConfigFile struct {
	Input      InputConfig
	Detector   DetectorConfig
	Classifier ClassifierConfig
	Tracking   TrackingConfig
	Output     OutputConfig
	Report     ReportConfig
	Webserver  WebserverConfig
	Logging    LoggingConfig
}

type InputConfig struct {
	Type  string
	Path  string
	// Frames are resized to this width keeping the aspect ratio, 0 keeps the source size
	Width uint
	// Sleep between frames to match the source frame rate
	Pace  bool
}

type DetectorConfig struct {
	Format              string
	Path                string
	ConfigPath          string `toml:"config_path"`
	LabelsPath          string `toml:"labels_path"`
	Device              string
	Backend             string
	Transpose           bool
	ScaleFactor         float64 `toml:"scale_factor"`
	X                   uint
	Y                   uint
	ConfidenceThreshold float32  `toml:"confidence_threshold"`
	NMSThreshold        float32  `toml:"nms_threshold"`
	MinScore            float32  `toml:"min_score"`
	Classes             []string `toml:"classes"`
}

type ClassifierConfig struct {
	Enabled     bool
	Format      string
	Path        string
	ConfigPath  string `toml:"config_path"`
	Labels      []string
	Grayscale   bool
	ScaleFactor float64 `toml:"scale_factor"`
	X           uint
	Y           uint
}

type TrackingConfig struct {
	SkipInterval     uint    `toml:"skip_interval"`
	MaxDistance      float64 `toml:"max_distance"`
	MaxDisappeared   uint    `toml:"max_disappeared"`
	CrossingFraction float64 `toml:"crossing_fraction"`
	Association      string
	VisualTracker    string `toml:"visual_tracker"`
}

type OutputConfig struct {
	// Annotated video, empty disables
	VideoPath  string  `toml:"video_path"`
	FPS        float64 `toml:"fps"`
	TailLength uint    `toml:"tail_length"`
}

type ReportConfig struct {
	CSV    CSVConfig
	SQLite SQLiteConfig
	MQTT   MQTTConfig
}

type CSVConfig struct {
	// Empty disables
	Path       string
	Attributes []string
}

type SQLiteConfig struct {
	// Empty disables
	Path string
}

type MQTTConfig struct {
	Enabled    bool
	Address    string
	Topic      string
	ClientID   string `toml:"client_id"`
	TimeoutSec uint   `toml:"timeout_sec"`
}

type WebserverConfig struct {
	Enabled            bool
	Port               uint
	ReadTimeoutSec     uint `toml:"read_timeout_sec"`
	WriteTimeoutSec    uint `toml:"write_timeout_sec"`
	ShutdownTimeoutSec uint `toml:"shutdown_timeout_sec"`
	W                  uint
	H                  uint
}

type LoggingConfig struct {
	Level         string
	StatPeriodSec uint `toml:"stat_period_sec"`
	AddSource     bool `toml:"add_source"`
}

func Default() *ConfigFile {
	return &ConfigFile{
		Input: InputConfig{
			Type:  enums.InputFile.Value,
			Path:  "videos/example_01.mp4",
			Width: 800,
			Pace:  true,
		},
		Detector: DetectorConfig{
			Format:              enums.ModelONNX.Value,
			Path:                "models/yolov8n.onnx",
			LabelsPath:          "models/coco.names",
			Device:              enums.DeviceCPU.Value,
			Backend:             enums.BackendDefault.Value,
			Transpose:           true,
			ScaleFactor:         1.0 / 255.0,
			X:                   640,
			Y:                   640,
			ConfidenceThreshold: 0.5,
			NMSThreshold:        0.4,
			MinScore:            0.5,
			Classes:             []string{"person"},
		},
		Classifier: ClassifierConfig{
			Enabled:     false,
			Format:      enums.ModelONNX.Value,
			Path:        "models/gender.onnx",
			Labels:      []string{"man", "woman"},
			ScaleFactor: 1.0 / 255.0,
			X:           96,
			Y:           96,
		},
		Tracking: TrackingConfig{
			SkipInterval:     20,
			MaxDistance:      70,
			MaxDisappeared:   15,
			CrossingFraction: 0.2,
			Association:      enums.AssociationGreedy.Value,
			VisualTracker:    enums.TrackerMIL.Value,
		},
		Output: OutputConfig{
			FPS:        30,
			TailLength: 20,
		},
		Report: ReportConfig{
			CSV: CSVConfig{
				Path:       "log.csv",
				Attributes: []string{"man", "woman"},
			},
			MQTT: MQTTConfig{
				Address:    "127.0.0.1:1883",
				Topic:      "headcount/counts",
				ClientID:   "headcount",
				TimeoutSec: 5,
			},
		},
		Webserver: WebserverConfig{
			Enabled:            true,
			Port:               8080,
			ReadTimeoutSec:     10,
			WriteTimeoutSec:    0,
			ShutdownTimeoutSec: 5,
		},
		Logging: LoggingConfig{
			Level:         enums.LoggingLevelInfo.Value,
			StatPeriodSec: 5,
		},
	}
}

// Missing keys keep their default values
func Unmarshal(file_path string) (*ConfigFile, error) {
	config_file := Default()
	data, err := os.ReadFile(file_path)
	if err != nil {
		return nil,
			fmt.Errorf("Unable to read %s error: %w", file_path, err)
	}
	err = toml.Unmarshal(data, config_file)
	if err != nil {
		return nil,
			fmt.Errorf("Unable to unmarshal %s error: %w", file_path, err)
	}
	return config_file, nil
}

// Writes the default config to file_path, fails if the file exists
func CreateDefault(file_path string) error {
	data, err := toml.Marshal(Default())
	if err != nil {
		return err
	}
	f, err := os.OpenFile(file_path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("Unable to create %s error: %w", file_path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Makes every relative path in the config relative to base_dir
func (c *ConfigFile) Resolve(base_dir string) {
	if c.Input.Type != enums.InputWebcam.Value {
		c.Input.Path = rpath.Convert(base_dir, c.Input.Path)
	}
	c.Detector.Path = rpath.Convert(base_dir, c.Detector.Path)
	c.Detector.ConfigPath = rpath.Convert(base_dir, c.Detector.ConfigPath)
	c.Detector.LabelsPath = rpath.Convert(base_dir, c.Detector.LabelsPath)
	c.Classifier.Path = rpath.Convert(base_dir, c.Classifier.Path)
	c.Classifier.ConfigPath = rpath.Convert(base_dir, c.Classifier.ConfigPath)
	c.Output.VideoPath = rpath.Convert(base_dir, c.Output.VideoPath)
	c.Report.CSV.Path = rpath.Convert(base_dir, c.Report.CSV.Path)
	c.Report.SQLite.Path = rpath.Convert(base_dir, c.Report.SQLite.Path)
}

// Reports every problem at once, all of them wrap ERR_INVALID_CONFIG
func (c *ConfigFile) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ERR_INVALID_CONFIG}, args...)...))
	}

	input_type := enums.InputTypes.Parse(c.Input.Type)
	if input_type == nil {
		fail("unknown input type %q", c.Input.Type)
	} else if *input_type != enums.InputWebcam && c.Input.Path == "" {
		fail("input path is required for %s input", c.Input.Type)
	}

	if enums.ModelFormats.Parse(c.Detector.Format) == nil {
		fail("unknown detector format %q", c.Detector.Format)
	}
	if c.Detector.Path == "" {
		fail("detector model path is required")
	}
	if enums.DeviceTypes.Parse(c.Detector.Device) == nil {
		fail("unknown device %q", c.Detector.Device)
	}
	if enums.BackendTypes.Parse(c.Detector.Backend) == nil {
		fail("unknown backend %q", c.Detector.Backend)
	}
	if c.Detector.X == 0 || c.Detector.Y == 0 {
		fail("detector input size must be positive, got %dx%d", c.Detector.X, c.Detector.Y)
	}
	for name, v := range map[string]float32{
		"confidence_threshold": c.Detector.ConfidenceThreshold,
		"nms_threshold":        c.Detector.NMSThreshold,
		"min_score":            c.Detector.MinScore,
	} {
		if v < 0 || v > 1 {
			fail("%s must be within [0, 1], got %v", name, v)
		}
	}

	if c.Classifier.Enabled {
		if enums.ModelFormats.Parse(c.Classifier.Format) == nil {
			fail("unknown classifier format %q", c.Classifier.Format)
		}
		if c.Classifier.Path == "" {
			fail("classifier model path is required")
		}
		if len(c.Classifier.Labels) == 0 {
			fail("classifier labels are required")
		}
		if c.Classifier.X == 0 || c.Classifier.Y == 0 {
			fail("classifier input size must be positive, got %dx%d", c.Classifier.X, c.Classifier.Y)
		}
	}

	if c.Tracking.SkipInterval == 0 {
		fail("skip_interval must be positive")
	}
	if c.Tracking.MaxDistance <= 0 {
		fail("max_distance must be positive, got %v", c.Tracking.MaxDistance)
	}
	if c.Tracking.CrossingFraction <= 0 || c.Tracking.CrossingFraction > 0.5 {
		fail("crossing_fraction must be within (0, 0.5], got %v", c.Tracking.CrossingFraction)
	}
	if enums.Associations.Parse(c.Tracking.Association) == nil {
		fail("unknown association %q", c.Tracking.Association)
	}
	if enums.VisualTrackers.Parse(c.Tracking.VisualTracker) == nil {
		fail("unknown visual tracker %q", c.Tracking.VisualTracker)
	}

	if c.Output.VideoPath != "" && c.Output.FPS <= 0 {
		fail("output fps must be positive, got %v", c.Output.FPS)
	}

	if c.Report.MQTT.Enabled {
		if c.Report.MQTT.Address == "" {
			fail("mqtt address is required")
		}
		if c.Report.MQTT.Topic == "" {
			fail("mqtt topic is required")
		}
	}

	if c.Webserver.Enabled && (c.Webserver.Port == 0 || c.Webserver.Port > 65535) {
		fail("webserver port %d is out of range", c.Webserver.Port)
	}

	if enums.LoggingLevels.Parse(c.Logging.Level) == nil {
		fail("unknown logging level %q", c.Logging.Level)
	}
	if c.Logging.StatPeriodSec == 0 {
		fail("stat_period_sec must be positive")
	}

	return errors.Join(errs...)
}
