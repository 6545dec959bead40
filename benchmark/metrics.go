// Package benchmark - Timing statistics and result export for benchmark runs.
package benchmark

import (
	"errors"
	"runtime"
	"time"

	"gonum.org/v1/gonum/stat"
)

// ErrNoSamples is returned when statistics are requested for zero runs.
var ErrNoSamples = errors.New("at least one run is required")

// Timing is the split duration of one forward pass.
type Timing struct {
	Inference time.Duration `json:"inference"`
	NMS       time.Duration `json:"nms"`
}

// Total is the end-to-end duration of the pass.
func (t Timing) Total() time.Duration {
	return t.Inference + t.NMS
}

// Stats is the mean and population standard deviation of a sample, in
// milliseconds.
type Stats struct {
	MeanMs float64 `json:"mean_ms"`
	StdMs  float64 `json:"std_ms"`
}

// Summarize computes Stats over durations. A single sample has a standard
// deviation of 0.
func Summarize(samples []time.Duration) (Stats, error) {
	if len(samples) == 0 {
		return Stats{}, ErrNoSamples
	}
	ms := make([]float64, len(samples))
	for i, d := range samples {
		ms[i] = float64(d) / float64(time.Millisecond)
	}
	mean, std := stat.PopMeanStdDev(ms, nil)
	return Stats{MeanMs: mean, StdMs: std}, nil
}

// FPS converts a mean frame time to frames per second. A zero mean yields 0.
func FPS(meanMs float64) float64 {
	if meanMs <= 0 {
		return 0
	}
	return 1000 / meanMs
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"`
}

// CaptureMemory reads the Go runtime memory statistics.
func CaptureMemory() MemoryMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryMetrics{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		SysBytes:        m.Sys,
		NumGC:           m.NumGC,
		HeapAllocBytes:  m.HeapAlloc,
		HeapSysBytes:    m.HeapSys,
	}
}

// FPSMeter reports a frame rate averaged over one-second windows.
type FPSMeter struct {
	frames int
	last   time.Time
	fps    float64
}

// Tick records a frame at now and returns the latest completed rate.
func (m *FPSMeter) Tick(now time.Time) float64 {
	if m.last.IsZero() {
		m.last = now
		return 0
	}
	m.frames++
	if elapsed := now.Sub(m.last).Seconds(); elapsed >= 1.0 {
		m.fps = float64(m.frames) / elapsed
		m.frames = 0
		m.last = now
	}
	return m.fps
}
