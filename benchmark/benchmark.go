package benchmark

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/cyclopcam/logs"
)

// PerformanceMetrics is the summary of a speed run.
type PerformanceMetrics struct {
	Model     string        `json:"model"`
	Backend   string        `json:"backend"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	Runs      int           `json:"runs"`
	Timestamp time.Time     `json:"timestamp"`
	Inference Stats         `json:"inference"`
	NMS       Stats         `json:"nms"`
	Total     Stats         `json:"total"`
	FPS       float64       `json:"fps"`
	NumCPU    int           `json:"num_cpu"`
	Memory    MemoryMetrics `json:"memory"`
}

// NewPerformanceMetrics summarizes the timings of a run.
//
// Arguments:
//   - samples: One Timing per forward pass.
//
// Returns:
//   - PerformanceMetrics: Statistics with the descriptive fields left empty.
//   - error: ErrNoSamples when samples is empty.
func NewPerformanceMetrics(samples []Timing) (PerformanceMetrics, error) {
	inference := make([]time.Duration, len(samples))
	nms := make([]time.Duration, len(samples))
	total := make([]time.Duration, len(samples))
	for i, s := range samples {
		inference[i], nms[i], total[i] = s.Inference, s.NMS, s.Total()
	}

	m := PerformanceMetrics{
		Runs:      len(samples),
		Timestamp: time.Now(),
		NumCPU:    runtime.NumCPU(),
		Memory:    CaptureMemory(),
	}
	var err error
	if m.Inference, err = Summarize(inference); err != nil {
		return m, err
	}
	if m.NMS, err = Summarize(nms); err != nil {
		return m, err
	}
	if m.Total, err = Summarize(total); err != nil {
		return m, err
	}
	m.FPS = FPS(m.Total.MeanMs)
	return m, nil
}

// Log writes the summary lines of a speed run.
func (m PerformanceMetrics) Log(log logs.Log) {
	log.Infof("Inference time (EdgeTPU): %.2f +- %.2f ms", m.Inference.MeanMs, m.Inference.StdMs)
	log.Infof("NMS time (CPU): %.2f +- %.2f ms", m.NMS.MeanMs, m.NMS.StdMs)
	log.Infof("Mean FPS: %.2f", m.FPS)
}

// SaveResults writes the metrics as timestamped JSON and CSV files in dir.
//
// Arguments:
//   - dir: Output directory, created if missing.
//   - results: The runs to export.
//
// Returns:
//   - []string: The JSON and CSV paths.
//   - error: An error if a file cannot be written.
func SaveResults(dir string, results ...PerformanceMetrics) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(dir, fmt.Sprintf("benchmark_results_%s.json", timestamp))

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write results file: %w", err)
	}

	summaryFile := filepath.Join(dir, fmt.Sprintf("benchmark_summary_%s.csv", timestamp))
	var buf bytes.Buffer
	if err := writeSummaryCSV(&buf, results); err != nil {
		return nil, fmt.Errorf("failed to build summary CSV: %w", err)
	}
	if err := os.WriteFile(summaryFile, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("failed to save summary CSV: %w", err)
	}
	return []string{resultsFile, summaryFile}, nil
}

var summaryHeader = []string{
	"Model", "Backend", "Resolution", "Runs",
	"Inference_ms", "Inference_std_ms", "NMS_ms", "NMS_std_ms", "Total_ms", "FPS", "Alloc_MB",
}

func writeSummaryCSV(w io.Writer, results []PerformanceMetrics) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(summaryHeader); err != nil {
		return err
	}
	ms := func(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
	for _, r := range results {
		err := cw.Write([]string{
			filepath.Base(r.Model),
			r.Backend,
			fmt.Sprintf("%dx%d", r.Width, r.Height),
			strconv.Itoa(r.Runs),
			ms(r.Inference.MeanMs), ms(r.Inference.StdMs),
			ms(r.NMS.MeanMs), ms(r.NMS.StdMs),
			ms(r.Total.MeanMs),
			strconv.FormatFloat(r.FPS, 'f', 2, 64),
			strconv.FormatFloat(float64(r.Memory.AllocBytes)/(1024*1024), 'f', 2, 64),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
