package config

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(args ...string) (*Config, error) {
	return Parse(append([]string{"detect"}, args...))
}

func TestParseDefaults(t *testing.T) {
	c, err := parse("-m", "yolov5s-int8_edgetpu.tflite")
	require.NoError(t, err)

	assert.Equal(t, "yolov5s-int8_edgetpu.tflite", c.Model)
	assert.Equal(t, float32(0.25), c.ConfThresh)
	assert.Equal(t, float32(0.45), c.IoUThresh)
	assert.Equal(t, "data/coco.yaml", c.Names)
	assert.Equal(t, 0, c.Device)
	assert.Equal(t, 100, c.Runs)
	assert.Equal(t, "127.0.0.1:41451", c.SimAddress)
	assert.Equal(t, "3", c.SimCamera)
	assert.Equal(t, "./coco_eval", c.Output)
	assert.Equal(t, "cpu", c.OrtProvider)
	assert.False(t, c.EdgeTPUCPU)
	assert.Zero(t, c.Threads)
	assert.False(t, c.Quiet)
	assert.Equal(t, ModeNone, c.Mode())
}

func TestParseFlags(t *testing.T) {
	c, err := parse("--model", "m.onnx", "--conf_thresh", "0.5", "--iou_thresh", "0.6",
		"-i", "bus.jpg", "-q", "--names", "names.txt", "--runs", "10", "--show")
	require.NoError(t, err)

	assert.Equal(t, float32(0.5), c.ConfThresh)
	assert.Equal(t, float32(0.6), c.IoUThresh)
	assert.Equal(t, "bus.jpg", c.Image)
	assert.True(t, c.Quiet)
	assert.True(t, c.Show)
	assert.Equal(t, "names.txt", c.Names)
	assert.Equal(t, 10, c.Runs)
	assert.Equal(t, ModeImage, c.Mode())
}

func TestParseMissingModel(t *testing.T) {
	_, err := parse("--bench_speed")
	var usage *UsageError
	require.ErrorAs(t, err, &usage)
	assert.Equal(t, 2, ExitCode(err))
}

func TestImageAndStreamConflict(t *testing.T) {
	_, err := parse("-m", "m.tflite", "--stream", "--image", "a.jpg")
	assert.ErrorIs(t, err, ErrConflictingInputs)
	assert.Equal(t, 1, ExitCode(err))

	// The conflict is rejected even when another mode would win.
	_, err = parse("-m", "m.tflite", "--bench_speed", "--stream", "-i", "a.jpg")
	assert.ErrorIs(t, err, ErrConflictingInputs)
}

func TestCOCORequiresPath(t *testing.T) {
	_, err := parse("-m", "m.tflite", "--bench_coco")
	assert.ErrorIs(t, err, ErrMissingCOCOPath)
	assert.Equal(t, 1, ExitCode(err))

	c, err := parse("-m", "m.tflite", "--bench_coco", "--coco_path", "/data/val2017")
	require.NoError(t, err)
	assert.Equal(t, ModeBenchCOCO, c.Mode())

	// Only checked when the COCO benchmark is the selected mode.
	c, err = parse("-m", "m.tflite", "--bench_coco", "--bench_image")
	require.NoError(t, err)
	assert.Equal(t, ModeBenchImage, c.Mode())
}

func TestValidateRanges(t *testing.T) {
	_, err := parse("-m", "m.tflite", "--conf_thresh", "1.5")
	assert.Error(t, err)
	_, err = parse("-m", "m.tflite", "--iou_thresh", "-0.1")
	assert.Error(t, err)
	_, err = parse("-m", "m.tflite", "--bench_speed", "--runs", "0")
	assert.Error(t, err)
}

func TestValidateRuntimeOptions(t *testing.T) {
	c, err := parse("-m", "m.onnx", "--ort_provider", "CUDA", "--threads", "4")
	require.NoError(t, err)
	assert.Equal(t, 4, c.Threads)
	assert.Equal(t, "onnxruntime/cuda", c.Backend())

	_, err = parse("-m", "m.onnx", "--ort_provider", "tensorrt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tensorrt")
	assert.Equal(t, 1, ExitCode(err))

	assert.Error(t, (&Config{Model: "m.tflite", Threads: -1}).Validate())

	c, err = parse("-m", "yolov5s-int8_edgetpu.tflite", "--edgetpu_cpu", "--edgetpu_device", "1")
	require.NoError(t, err)
	assert.True(t, c.EdgeTPUCPU)
	assert.Equal(t, 1, c.EdgeTPUDevice)
	assert.Equal(t, "edgetpu", c.Backend())
}

func TestBackend(t *testing.T) {
	assert.Equal(t, "edgetpu", (&Config{Model: "w/M.TFLITE"}).Backend())
	assert.Equal(t, "onnxruntime/cpu", (&Config{Model: "w/m.onnx"}).Backend())
	assert.Equal(t, "onnxruntime/coreml", (&Config{Model: "m.onnx", OrtProvider: "coreml"}).Backend())
	assert.Equal(t, "", (&Config{Model: "m.pt"}).Backend())
}

func TestModePrecedence(t *testing.T) {
	tests := []struct {
		cfg  Config
		want Mode
	}{
		{Config{}, ModeNone},
		{Config{Stream: true}, ModeStream},
		{Config{Stream: true, Image: "a.jpg"}, ModeImage},
		{Config{Image: "a.jpg", BenchCOCO: true}, ModeBenchCOCO},
		{Config{BenchCOCO: true, BenchAirSim: true}, ModeBenchAirSim},
		{Config{BenchAirSim: true, BenchImage: true}, ModeBenchImage},
		{Config{BenchImage: true, BenchSpeed: true, Stream: true}, ModeBenchSpeed},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Mode())
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("device lost")))
	assert.Equal(t, 1, ExitCode(fmt.Errorf("run: %w", ErrConflictingInputs)))
	assert.Equal(t, 2, ExitCode(fmt.Errorf("parse: %w", &UsageError{Usage: "usage"})))
}
