// Package runner executes the benchmark and demo modes against an opened
// detection model.
package runner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/schollz/progressbar/v3"

	"github.com/nvr-ai/detect-bench/airsim"
	"github.com/nvr-ai/detect-bench/benchmark"
	"github.com/nvr-ai/detect-bench/coco"
	"github.com/nvr-ai/detect-bench/config"
	"github.com/nvr-ai/detect-bench/images"
	"github.com/nvr-ai/detect-bench/models/model"
	"github.com/nvr-ai/detect-bench/models/postprocess"
)

// ErrNoSimulatorImage is returned when the simulator camera yields no image.
var ErrNoSimulatorImage = errors.New("camera is not returning image, please check airsim for error messages")

// Thresholds used for the COCO export, low enough to compute a full
// precision/recall curve.
const (
	COCOConfThresh = 0.001
	COCOIoUThresh  = 0.65
)

// FrameSource yields decoded frames, e.g. a webcam.
type FrameSource interface {
	Read() (image.Image, error)
	Close() error
}

// Display shows frames and reports key presses.
type Display interface {
	Show(img image.Image) error
	WaitKey(delay int) int
	Close() error
}

// SimCamera pulls encoded images from a simulator.
type SimCamera interface {
	SimGetImage(ctx context.Context, camera string, imageType airsim.ImageType) ([]byte, error)
	Close() error
}

// Runner dispatches a run mode.
type Runner struct {
	Log    logs.Log
	Model  model.Model
	Config *config.Config
	// Rand feeds the synthetic tensors.
	Rand *rand.Rand
	// Progress receives progress bars, nil disables them.
	Progress io.Writer
	// SampleImage is the image used by the image and simulator benchmarks.
	SampleImage string

	// OpenSource opens a capture device for stream mode.
	OpenSource func(device int) (FrameSource, error)
	// OpenDisplay opens a window when frames should be shown, may be nil.
	OpenDisplay func(name string) Display
	// DialSim connects to the simulator.
	DialSim func(ctx context.Context, address string) (SimCamera, error)
}

// New returns a Runner with the defaults filled in. Device constructors are
// left for the caller.
func New(log logs.Log, m model.Model, cfg *config.Config) *Runner {
	return &Runner{
		Log:         log,
		Model:       m,
		Config:      cfg,
		Rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
		SampleImage: config.SampleImage,
	}
}

// Warmup runs one forward pass on random data so the first timed run does
// not pay for lazy initialization.
func (r *Runner) Warmup() error {
	x := images.RandomTensor(r.Rand, r.Model.ImageSize())
	if _, err := r.Model.Forward(x); err != nil {
		return fmt.Errorf("warm-up failed: %w", err)
	}
	return nil
}

// Run executes one mode.
func (r *Runner) Run(ctx context.Context, mode config.Mode) error {
	switch mode {
	case config.ModeNone:
		r.Log.Infof("No mode selected, model loaded and warmed up")
		return nil
	case config.ModeBenchSpeed:
		_, err := r.BenchSpeed(ctx, r.Config.Runs)
		return err
	case config.ModeBenchImage:
		return r.BenchImage(ctx)
	case config.ModeBenchAirSim:
		err := r.BenchAirSim(ctx)
		if errors.Is(err, ErrNoSimulatorImage) {
			r.Log.Warnf("Camera is not returning image, please check airsim for error messages")
			return nil
		}
		return err
	case config.ModeBenchCOCO:
		_, err := r.BenchCOCO(ctx, r.Config.COCOPath, r.Config.Output)
		return err
	case config.ModeImage:
		return r.PredictImage(ctx, r.Config.Image)
	case config.ModeStream:
		return r.Stream(ctx, r.Config.Device)
	default:
		return fmt.Errorf("unknown mode %v", mode)
	}
}

func (r *Runner) progress(n int, description string) *progressbar.ProgressBar {
	if r.Progress == nil {
		return progressbar.DefaultSilent(int64(n), description)
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(r.Progress),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
	)
}

// BenchSpeed times runs forward passes on fresh random tensors.
func (r *Runner) BenchSpeed(ctx context.Context, runs int) (benchmark.PerformanceMetrics, error) {
	if runs < 1 {
		return benchmark.PerformanceMetrics{}, benchmark.ErrNoSamples
	}
	r.Log.Infof("Performing test run")

	size := r.Model.ImageSize()
	samples := make([]benchmark.Timing, 0, runs)
	bar := r.progress(runs, "speed")
	for i := 0; i < runs; i++ {
		if err := ctx.Err(); err != nil {
			return benchmark.PerformanceMetrics{}, err
		}
		x := images.RandomTensor(r.Rand, size)
		if _, err := r.Model.Forward(x); err != nil {
			return benchmark.PerformanceMetrics{}, err
		}
		inf, nms := r.Model.LastInferenceTime()
		samples = append(samples, benchmark.Timing{Inference: inf, NMS: nms})
		bar.Add(1)
	}
	bar.Finish()

	metrics, err := benchmark.NewPerformanceMetrics(samples)
	if err != nil {
		return metrics, err
	}
	metrics.Model = r.Config.Model
	metrics.Backend = r.Config.Backend()
	metrics.Width, metrics.Height = size.X, size.Y
	metrics.Log(r.Log)

	if r.Config.BenchOut != "" {
		paths, err := benchmark.SaveResults(r.Config.BenchOut, metrics)
		if err != nil {
			return metrics, err
		}
		r.Log.Infof("Results saved to: %v", paths)
	}
	return metrics, nil
}

// BenchImage runs one prediction on the sample image.
func (r *Runner) BenchImage(ctx context.Context) error {
	r.Log.Infof("Testing on Zidane image")
	_, err := r.Model.Predict(r.SampleImage, model.PredictOptions{SaveImage: true, SaveTxt: true})
	return err
}

// PredictImage runs one prediction on a user image.
func (r *Runner) PredictImage(ctx context.Context, path string) error {
	r.Log.Infof("Testing on user image: %v", path)
	_, err := r.Model.Predict(path, model.PredictOptions{SaveImage: true, SaveTxt: true})
	return err
}

// isQuitKey reports Esc, q or x.
func isQuitKey(key int) bool {
	key &= 0xFF
	return key == 27 || key == 'q' || key == 'x'
}

// BenchAirSim pulls frames from the simulator camera until the camera stops
// returning images, a quit key is pressed or ctx is cancelled. Each frame is
// written to the sample image path and run through Predict.
func (r *Runner) BenchAirSim(ctx context.Context) error {
	r.Log.Infof("Testing on AirSim camera %v at %v", r.Config.SimCamera, r.Config.SimAddress)
	sim, err := r.DialSim(ctx, r.Config.SimAddress)
	if err != nil {
		return err
	}
	defer sim.Close()

	display := r.display("airsim")
	if display != nil {
		defer display.Close()
	}
	if err := os.MkdirAll(filepath.Dir(r.SampleImage), 0o755); err != nil {
		return err
	}

	for ctx.Err() == nil {
		raw, err := sim.SimGetImage(ctx, r.Config.SimCamera, airsim.ImageTypeScene)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
		if raw == nil {
			return ErrNoSimulatorImage
		}
		frame, err := images.Decode(raw, "")
		if err != nil {
			return err
		}
		if err := images.Save(r.SampleImage, frame); err != nil {
			return err
		}
		results, err := r.Model.Predict(r.SampleImage, model.PredictOptions{SaveImage: true})
		if err != nil {
			return err
		}
		if display != nil {
			if err := display.Show(r.annotate(frame, results)); err != nil {
				return err
			}
			if isQuitKey(display.WaitKey(1)) {
				break
			}
		}
	}
	return nil
}

// BenchCOCO runs the dataset export: every *.jpg under dir is predicted with
// relaxed thresholds and the detections are written as one COCO results
// file in outDir. It returns the results path.
func (r *Runner) BenchCOCO(ctx context.Context, dir, outDir string) (string, error) {
	r.Log.Infof("Testing on COCO dataset")
	r.Model.SetThresholds(COCOConfThresh, COCOIoUThresh)

	r.Log.Infof("Looking for: %v", filepath.Join(dir, "*.jpg"))
	files, err := coco.Glob(dir)
	if err != nil {
		return "", fmt.Errorf("cannot read COCO folder: %w", err)
	}
	r.Log.Infof("Found %v images", len(files))

	records := []coco.Record{}
	bar := r.progress(len(files), "coco")
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		results, err := r.Model.Predict(file, model.PredictOptions{})
		if err != nil {
			return "", err
		}
		recs, err := coco.NewRecords(file, results)
		if err != nil {
			return "", err
		}
		records = append(records, recs...)
		bar.Add(1)
	}
	bar.Finish()

	out := coco.ResultsPath(outDir, r.Config.Model)
	if err := coco.WriteJSON(out, records); err != nil {
		return "", err
	}
	r.Log.Infof("Saved %v predictions to %v", len(records), out)
	return out, nil
}

// Stream runs detection on a capture device until a read fails, a quit key
// is pressed or ctx is cancelled. The device is released exactly once.
func (r *Runner) Stream(ctx context.Context, device int) error {
	r.Log.Infof("Opening stream on device: %v", device)
	src, err := r.OpenSource(device)
	if err != nil {
		return err
	}
	defer src.Close()

	display := r.display(fmt.Sprintf("device %v", device))
	if display != nil {
		defer display.Close()
	}

	size := r.Model.ImageSize()
	var fps benchmark.FPSMeter
	for ctx.Err() == nil {
		frame, err := src.Read()
		if err != nil {
			r.Log.Errorf("Empty image received: %v", err)
			break
		}
		boxed, pad := images.Letterbox(frame, size, nil)
		pred, err := r.Model.Forward(images.ToTensor(boxed))
		if err != nil {
			return err
		}
		annotated, _ := r.Model.ProcessPredictions(pred, frame, pad)
		inf, nms := r.Model.LastInferenceTime()
		r.Log.Infof("Frame done in %v (%.1f FPS)", inf+nms, fps.Tick(time.Now()))

		if display != nil {
			if err := display.Show(annotated); err != nil {
				return err
			}
			if isQuitKey(display.WaitKey(1)) {
				break
			}
		}
	}
	return nil
}

func (r *Runner) display(name string) Display {
	if !r.Config.Show || r.OpenDisplay == nil {
		return nil
	}
	return r.OpenDisplay(name)
}

func (r *Runner) annotate(frame image.Image, results []postprocess.Result) image.Image {
	names := r.Model.Names()
	labels := make([]images.Label, len(results))
	for i, res := range results {
		text := fmt.Sprintf("%d %.2f", res.Class, res.Score)
		if res.Class >= 0 && res.Class < len(names) {
			text = fmt.Sprintf("%v %.2f", names[res.Class], res.Score)
		}
		labels[i] = images.Label{Box: res.Box, Text: text, Class: res.Class}
	}
	return images.Annotate(frame, labels)
}
