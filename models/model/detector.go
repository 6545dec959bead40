package model

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cyclopcam/logs"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/detect-bench/images"
	"github.com/nvr-ai/detect-bench/models/postprocess"
)

// Detector implements Model on top of a Backend: letterbox, invoke, decode,
// suppress, annotate.
type Detector struct {
	log     logs.Log
	backend Backend
	names   []string
	opts    Options

	inferenceTime time.Duration
	nmsTime       time.Duration
}

var _ Model = (*Detector)(nil)

// NewDetector wraps a backend.
//
// Arguments:
//   - log: Logger for detection summaries.
//   - backend: The opened accelerator runtime. The Detector owns it from now on.
//   - names: Class names indexed by class id.
//   - opts: Thresholds and NMS options.
//
// Returns:
//   - *Detector: The model handle.
func NewDetector(log logs.Log, backend Backend, names []string, opts Options) *Detector {
	if opts.MaxDetections <= 0 {
		opts.MaxDetections = postprocess.DefaultMaxDetections
	}
	return &Detector{
		log:     log,
		backend: backend,
		names:   names,
		opts:    opts,
	}
}

// Forward runs the backend and postprocessing on a network-sized tensor.
func (d *Detector) Forward(x *tensor.Dense) ([]postprocess.Result, error) {
	data, size, err := images.HWC(x)
	if err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}
	if want := d.backend.InputSize(); size != want {
		return nil, fmt.Errorf("forward: input is %dx%d, model expects %dx%d", size.X, size.Y, want.X, want.Y)
	}

	start := time.Now()
	out, shape, err := d.backend.Invoke(data)
	if err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}
	d.inferenceTime = time.Since(start)

	start = time.Now()
	head, err := postprocess.ParseHead(shape)
	if err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}
	candidates, err := postprocess.Decode(out, head, postprocess.DecodeOptions{
		ConfThreshold: d.opts.ConfThreshold,
		Normalized:    d.backend.NormalizedBoxes(),
		Size:          size,
	})
	if err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}
	results := postprocess.ApplyNMS(candidates, postprocess.NMSConfig{
		IoUThreshold:  d.opts.IoUThreshold,
		ClassAware:    !d.opts.ClassAgnostic,
		MaxDetections: d.opts.MaxDetections,
	})
	d.nmsTime = time.Since(start)
	return results, nil
}

// Predict loads an image file, runs detection on it and optionally saves
// an annotated copy and a label file.
func (d *Detector) Predict(path string, opts PredictOptions) ([]postprocess.Result, error) {
	full, err := images.Load(path)
	if err != nil {
		return nil, err
	}
	boxed, pad := images.Letterbox(full, d.ImageSize(), nil)
	pred, err := d.Forward(images.ToTensor(boxed))
	if err != nil {
		return nil, fmt.Errorf("predict %s: %w", path, err)
	}
	annotated, results := d.ProcessPredictions(pred, full, pad)

	if opts.SaveImage {
		out := outputPath(path, opts.OutputDir, filepath.Ext(path))
		if err := images.Save(out, annotated); err != nil {
			return nil, err
		}
		d.log.Infof("Saved annotated image to %v", out)
	}
	if opts.SaveTxt {
		out := outputPath(path, opts.OutputDir, ".txt")
		b := full.Bounds()
		if err := os.WriteFile(out, []byte(FormatLabels(results, b.Dx(), b.Dy())), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write labels: %w", err)
		}
	}
	return results, nil
}

// ProcessPredictions scales predictions to the full image, logs a summary
// and returns an annotated copy of the image.
func (d *Detector) ProcessPredictions(pred []postprocess.Result, full image.Image, pad images.Pad) (image.Image, []postprocess.Result) {
	b := full.Bounds()
	results := postprocess.Scale(append([]postprocess.Result(nil), pred...), pad, b.Dx(), b.Dy())

	if len(results) > 0 {
		d.log.Infof("Detected: %v", d.Summary(results))
	}

	labels := make([]images.Label, len(results))
	for i, r := range results {
		labels[i] = images.Label{
			Box:   r.Box,
			Text:  fmt.Sprintf("%v %.2f", d.className(r.Class), r.Score),
			Class: r.Class,
		}
	}
	return images.Annotate(full, labels), results
}

// Summary counts detections per class, e.g. "2 persons, 1 tie".
func (d *Detector) Summary(results []postprocess.Result) string {
	counts := map[int]int{}
	for _, r := range results {
		counts[r.Class]++
	}
	classes := make([]int, 0, len(counts))
	for c := range counts {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	parts := make([]string, 0, len(classes))
	for _, c := range classes {
		n := counts[c]
		plural := ""
		if n > 1 {
			plural = "s"
		}
		parts = append(parts, fmt.Sprintf("%d %v%v", n, d.className(c), plural))
	}
	return strings.Join(parts, ", ")
}

func (d *Detector) ImageSize() image.Point {
	return d.backend.InputSize()
}

func (d *Detector) LastInferenceTime() (time.Duration, time.Duration) {
	return d.inferenceTime, d.nmsTime
}

func (d *Detector) SetThresholds(conf, iou float32) {
	d.opts.ConfThreshold = conf
	d.opts.IoUThreshold = iou
}

func (d *Detector) Thresholds() (float32, float32) {
	return d.opts.ConfThreshold, d.opts.IoUThreshold
}

func (d *Detector) Names() []string {
	return d.names
}

func (d *Detector) Close() error {
	return d.backend.Close()
}

func (d *Detector) className(class int) string {
	if class >= 0 && class < len(d.names) {
		return d.names[class]
	}
	return fmt.Sprintf("class%d", class)
}

// FormatLabels renders results in YOLO label format, one
// "class cx cy w h conf" line per box, coordinates normalized to the image.
func FormatLabels(results []postprocess.Result, w, h int) string {
	var sb strings.Builder
	fw, fh := float32(w), float32(h)
	for _, r := range results {
		cx, cy := r.Box.Center()
		fmt.Fprintf(&sb, "%d %g %g %g %g %g\n", r.Class, cx/fw, cy/fh, r.Box.Width()/fw, r.Box.Height()/fh, r.Score)
	}
	return sb.String()
}

// outputPath returns <dir>/<stem>_detect<ext>, with dir defaulting to the
// source directory.
func outputPath(src, dir, ext string) string {
	if dir == "" {
		dir = filepath.Dir(src)
	}
	base := filepath.Base(src)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+"_detect"+ext)
}
