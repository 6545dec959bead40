// Package models - registry for models.
package models

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cyclopcam/logs"

	"github.com/nvr-ai/detect-bench/models/edgetpu"
	"github.com/nvr-ai/detect-bench/models/model"
	"github.com/nvr-ai/detect-bench/models/onnx"
)

// Format is the on-disk format of a model's weights.
type Format string

const (
	// FormatTFLite is a quantized TFLite flatbuffer compiled for the EdgeTPU.
	FormatTFLite Format = "tflite"
	// FormatONNX is an ONNX graph run through onnxruntime.
	FormatONNX Format = "onnx"
)

// FormatFromPath picks the weights format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tflite":
		return FormatTFLite, nil
	case ".onnx":
		return FormatONNX, nil
	default:
		return "", fmt.Errorf("unsupported model file %q: expected .tflite or .onnx", filepath.Base(path))
	}
}

// NewModelArgs is the arguments for creating a new model.
type NewModelArgs struct {
	Path    string        `json:"path" yaml:"path"`
	Names   []string      `json:"names" yaml:"names"`
	Options model.Options `json:"options" yaml:"options"`
	EdgeTPU edgetpu.Options
	ONNX    onnx.Options
}

// NewModel opens a detection model, choosing the backend from the weights
// file extension.
//
// Arguments:
//   - log: Logger passed to the backend and the model handle.
//   - args: Weights path, class names, thresholds and backend options.
//
// Returns:
//   - model.Model: The opened model.
//   - error: An error if the format is unsupported or the backend fails to load.
func NewModel(log logs.Log, args NewModelArgs) (model.Model, error) {
	format, err := FormatFromPath(args.Path)
	if err != nil {
		return nil, err
	}

	var backend model.Backend
	switch format {
	case FormatTFLite:
		backend, err = edgetpu.New(log, args.Path, args.EdgeTPU)
	case FormatONNX:
		backend, err = onnx.New(log, args.Path, args.ONNX)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s model: %w", format, err)
	}

	names := args.Names
	if len(names) == 0 {
		names = model.COCONames
	}
	return model.NewDetector(log, backend, names, args.Options), nil
}
