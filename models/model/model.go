// Package model - The detection model handle and the accelerator backends it
// drives.
package model

import (
	"image"
	"time"

	"gorgonia.org/tensor"

	"github.com/nvr-ai/detect-bench/images"
	"github.com/nvr-ai/detect-bench/models/postprocess"
)

// Backend is a raw accelerator runtime that executes a YOLO graph.
//
// Backends are black boxes: they take letterboxed RGB pixels and return the
// detection head output. Packing, quantization and dequantization are the
// backend's concern.
type Backend interface {
	// InputSize returns the network input size (width, height).
	InputSize() image.Point
	// Invoke runs the network on an (H, W, 3) pixel slice with values in
	// [0, 255] and returns the dequantized head output and its shape.
	Invoke(input []float32) ([]float32, []int, error)
	// NormalizedBoxes reports whether boxes are emitted in [0, 1].
	NormalizedBoxes() bool
	// Close releases the runtime.
	Close() error
}

// Model is an opened detection model ready for inference.
type Model interface {
	// Forward runs inference and NMS on an (H, W, 3) float32 tensor with
	// values in [0, 255] that already has the network size. Boxes are in
	// network pixel coordinates.
	Forward(x *tensor.Dense) ([]postprocess.Result, error)
	// Predict runs the full pipeline on an image file and returns boxes in
	// source image coordinates.
	Predict(path string, opts PredictOptions) ([]postprocess.Result, error)
	// ProcessPredictions maps network-space predictions back to the full
	// image and returns an annotated copy of it.
	ProcessPredictions(pred []postprocess.Result, full image.Image, pad images.Pad) (image.Image, []postprocess.Result)
	// ImageSize returns the network input size.
	ImageSize() image.Point
	// LastInferenceTime returns the durations of the last Forward call.
	LastInferenceTime() (inference, nms time.Duration)
	// SetThresholds replaces the confidence and IoU thresholds.
	SetThresholds(conf, iou float32)
	// Thresholds returns the current confidence and IoU thresholds.
	Thresholds() (conf, iou float32)
	// Names returns the class names.
	Names() []string
	// Close releases the backend.
	Close() error
}

// PredictOptions control what Predict writes to disk.
type PredictOptions struct {
	// SaveImage writes an annotated copy as <stem>_detect<ext>.
	SaveImage bool
	// SaveTxt writes YOLO-format labels as <stem>_detect.txt.
	SaveTxt bool
	// OutputDir receives the files; empty means next to the source image.
	OutputDir string
}

// Options configure a Detector.
type Options struct {
	ConfThreshold float32
	IoUThreshold  float32
	// ClassAgnostic suppresses overlapping boxes across classes.
	ClassAgnostic bool
	// MaxDetections caps kept detections, postprocess.DefaultMaxDetections when 0.
	MaxDetections int
}

// DefaultOptions returns the thresholds used unless overridden.
func DefaultOptions() Options {
	return Options{
		ConfThreshold: 0.25,
		IoUThreshold:  0.45,
		MaxDetections: postprocess.DefaultMaxDetections,
	}
}
