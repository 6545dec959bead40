package benchmark

import (
	"encoding/csv"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	s, err := Summarize([]time.Duration{2 * time.Millisecond, 4 * time.Millisecond})
	require.NoError(t, err)
	assert.InDelta(t, 3, s.MeanMs, 1e-9)
	assert.InDelta(t, 1, s.StdMs, 1e-9)

	_, err = Summarize(nil)
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestSingleRun(t *testing.T) {
	m, err := NewPerformanceMetrics([]Timing{{Inference: 8 * time.Millisecond, NMS: 2 * time.Millisecond}})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Runs)
	assert.Zero(t, m.Inference.StdMs)
	assert.Zero(t, m.NMS.StdMs)
	assert.InDelta(t, 10, m.Total.MeanMs, 1e-9)
	assert.InDelta(t, 100, m.FPS, 1e-9)
	assert.False(t, math.IsInf(m.FPS, 0))
}

func TestZeroDurations(t *testing.T) {
	m, err := NewPerformanceMetrics([]Timing{{}, {}})
	require.NoError(t, err)
	assert.Zero(t, m.FPS)
	assert.False(t, math.IsNaN(m.Total.StdMs))
}

func TestNoRuns(t *testing.T) {
	_, err := NewPerformanceMetrics(nil)
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestFPS(t *testing.T) {
	assert.Equal(t, 0.0, FPS(0))
	assert.Equal(t, 0.0, FPS(-1))
	assert.InDelta(t, 40, FPS(25), 1e-9)
}

func TestLog(t *testing.T) {
	m, err := NewPerformanceMetrics([]Timing{{Inference: time.Millisecond}})
	require.NoError(t, err)
	m.Log(logs.NewTestingLog(t))
}

func TestSaveResults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bench")
	m, err := NewPerformanceMetrics([]Timing{{Inference: 5 * time.Millisecond, NMS: time.Millisecond}})
	require.NoError(t, err)
	m.Model = "weights/yolov5s-int8_edgetpu.tflite"
	m.Backend = "tflite"
	m.Width, m.Height = 224, 224

	paths, err := SaveResults(dir, m)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	raw, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	var decoded []PerformanceMetrics
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, m.Total, decoded[0].Total)

	csv, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csv)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "yolov5s-int8_edgetpu.tflite,tflite,224x224,1,5.000,0.000,1.000,0.000,6.000,166.67,"))
}

func TestSummaryCSVQuotesFields(t *testing.T) {
	m, err := NewPerformanceMetrics([]Timing{{Inference: 4 * time.Millisecond}})
	require.NoError(t, err)
	m.Model = "weights/yolo,v5 \"tiny\".onnx"
	m.Backend = "onnxruntime/cpu"

	paths, err := SaveResults(t.TempDir(), m)
	require.NoError(t, err)
	f, err := os.Open(paths[1])
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Len(t, rows[1], len(rows[0]))
	assert.Equal(t, "yolo,v5 \"tiny\".onnx", rows[1][0])
	assert.Equal(t, "onnxruntime/cpu", rows[1][1])
	assert.Equal(t, "4.000", rows[1][4])
}

func TestFPSMeter(t *testing.T) {
	var m FPSMeter
	start := time.Unix(100, 0)
	assert.Zero(t, m.Tick(start))
	for i := 1; i < 10; i++ {
		m.Tick(start.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	assert.InDelta(t, 10, m.Tick(start.Add(time.Second)), 1e-9)
}
