package enums

// string enums for validating user supplied config values

import (
	"github.com/orsinium-labs/enum"
)

type ModelFormat enum.Member[string]

var (
	mf = enum.NewBuilder[string, ModelFormat]()

	ModelONNX     = mf.Add(ModelFormat{"onnx"})
	ModelOpenVINO = mf.Add(ModelFormat{"openvino"})
	ModelCaffe    = mf.Add(ModelFormat{"caffe"})
	ModelDarknet  = mf.Add(ModelFormat{"darknet"})

	ModelFormats = mf.Enum()
)

type DeviceType enum.Member[string]

var (
	dt = enum.NewBuilder[string, DeviceType]()

	DeviceCPU = dt.Add(DeviceType{"cpu"})
	DeviceGPU = dt.Add(DeviceType{"gpu"})
	DeviceVPU = dt.Add(DeviceType{"vpu"})

	DeviceTypes = dt.Enum()
)

type BackendType enum.Member[string]

var (
	bt = enum.NewBuilder[string, BackendType]()

	BackendDefault  = bt.Add(BackendType{"default"})
	BackendOpenCV   = bt.Add(BackendType{"opencv"})
	BackendOpenVINO = bt.Add(BackendType{"openvino"})
	BackendCUDA     = bt.Add(BackendType{"cuda"})

	BackendTypes = bt.Enum()
)

type InputType enum.Member[string]

var (
	ifl = enum.NewBuilder[string, InputType]()

	InputFile   = ifl.Add(InputType{"file"})
	InputWebcam = ifl.Add(InputType{"webcam"})
	InputIPC    = ifl.Add(InputType{"ipc"})
	InputFolder = ifl.Add(InputType{"folder"})

	InputTypes = ifl.Enum()
)

type VisualTracker enum.Member[string]

var (
	vt = enum.NewBuilder[string, VisualTracker]()

	TrackerMIL  = vt.Add(VisualTracker{"mil"})
	TrackerKCF  = vt.Add(VisualTracker{"kcf"})
	TrackerCSRT = vt.Add(VisualTracker{"csrt"})

	VisualTrackers = vt.Enum()
)

type Association enum.Member[string]

var (
	as = enum.NewBuilder[string, Association]()

	AssociationGreedy    = as.Add(Association{"greedy"})
	AssociationHungarian = as.Add(Association{"hungarian"})

	Associations = as.Enum()
)

type LoggingLevel enum.Member[string]

var (
	ll = enum.NewBuilder[string, LoggingLevel]()

	LoggingLevelDebug = ll.Add(LoggingLevel{"debug"})
	LoggingLevelInfo  = ll.Add(LoggingLevel{"info"})
	LoggingLevelWarn  = ll.Add(LoggingLevel{"warn"})
	LoggingLevelError = ll.Add(LoggingLevel{"error"})

	LoggingLevels = ll.Enum()
)
