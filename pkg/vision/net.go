package vision

import (
	"fmt"

	"github.com/Robogera/headcount/pkg/enums"

	"gocv.io/x/gocv"
)

type NetConfig struct {
	Format     enums.ModelFormat
	Path       string
	ConfigPath string
	Device     enums.DeviceType
	Backend    enums.BackendType
}

// Caller owns the returned net
func ReadNet(cfg NetConfig) (gocv.Net, error) {
	var net gocv.Net
	switch cfg.Format {
	case enums.ModelCaffe:
		net = gocv.ReadNetFromCaffe(cfg.ConfigPath, cfg.Path)
	case enums.ModelONNX:
		net = gocv.ReadNetFromONNX(cfg.Path)
	case enums.ModelOpenVINO, enums.ModelDarknet:
		net = gocv.ReadNet(cfg.Path, cfg.ConfigPath)
	default:
		return net, fmt.Errorf("%w: unsupported format %s", ERR_BAD_MODEL, cfg.Format.Value)
	}
	if net.Empty() {
		net.Close()
		return net, fmt.Errorf("%w %s", ERR_BAD_MODEL, cfg.Path)
	}

	backend, target := preferences(cfg.Backend, cfg.Device)
	if err := net.SetPreferableBackend(backend); err != nil {
		net.Close()
		return net, fmt.Errorf("Can't set backend %s: %w", cfg.Backend.Value, err)
	}
	if err := net.SetPreferableTarget(target); err != nil {
		net.Close()
		return net, fmt.Errorf("Can't set target %s: %w", cfg.Device.Value, err)
	}
	return net, nil
}

func preferences(backend enums.BackendType, device enums.DeviceType) (gocv.NetBackendType, gocv.NetTargetType) {
	var b gocv.NetBackendType = gocv.NetBackendDefault
	switch backend {
	case enums.BackendOpenCV:
		b = gocv.NetBackendOpenCV
	case enums.BackendOpenVINO:
		b = gocv.NetBackendOpenVINO
	case enums.BackendCUDA:
		b = gocv.NetBackendCUDA
	}
	var t gocv.NetTargetType = gocv.NetTargetCPU
	switch device {
	case enums.DeviceGPU:
		if b == gocv.NetBackendCUDA {
			t = gocv.NetTargetCUDA
		} else {
			t = gocv.NetTargetFP32
		}
	case enums.DeviceVPU:
		t = gocv.NetTargetVPU
	}
	return b, t
}

func outputLayerNames(net *gocv.Net) []string {
	var output_layer_names []string
	for _, i := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(i)
		name := layer.GetName()
		layer.Close()
		if name != "_input" {
			output_layer_names = append(output_layer_names, name)
		}
	}
	return output_layer_names
}
