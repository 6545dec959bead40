package models

import (
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFromPath(t *testing.T) {
	f, err := FormatFromPath("weights/yolov5s-int8_edgetpu.tflite")
	require.NoError(t, err)
	assert.Equal(t, FormatTFLite, f)

	f, err = FormatFromPath("yolov8n.ONNX")
	require.NoError(t, err)
	assert.Equal(t, FormatONNX, f)

	_, err = FormatFromPath("yolov5s.pt")
	assert.Error(t, err)
}

func TestNewModelUnsupported(t *testing.T) {
	_, err := NewModel(logs.NewTestingLog(t), NewModelArgs{Path: "model.bin"})
	assert.ErrorContains(t, err, "unsupported model file")
}
