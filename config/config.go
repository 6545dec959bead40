// Package config parses the command line of the detection benchmark and
// resolves which run mode to execute.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/akamensky/argparse"
)

var (
	// ErrConflictingInputs is returned when both an image and a stream are requested.
	ErrConflictingInputs = errors.New("please select either an input image or a stream")
	// ErrMissingCOCOPath is returned when the COCO benchmark has no dataset folder.
	ErrMissingCOCOPath = errors.New("--bench_coco requires --coco_path")
)

// UsageError is a malformed command line. Its message includes the usage text.
type UsageError struct {
	Usage string
	Err   error
}

func (e *UsageError) Error() string {
	return e.Usage
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// Mode is the single action a run performs.
type Mode int

const (
	// ModeNone only loads and warms up the model.
	ModeNone Mode = iota
	ModeBenchSpeed
	ModeBenchImage
	ModeBenchAirSim
	ModeBenchCOCO
	ModeImage
	ModeStream
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeBenchSpeed:
		return "bench_speed"
	case ModeBenchImage:
		return "bench_image"
	case ModeBenchAirSim:
		return "bench_airsim"
	case ModeBenchCOCO:
		return "bench_coco"
	case ModeImage:
		return "image"
	case ModeStream:
		return "stream"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Defaults.
const (
	DefaultConfThresh = 0.25
	DefaultIoUThresh  = 0.45
	DefaultNames      = "data/coco.yaml"
	DefaultRuns       = 100
	DefaultSimAddress = "127.0.0.1:41451"
	DefaultSimCamera  = "3"
	DefaultCOCOOutput = "./coco_eval"
	// SampleImage is the fixed image used by the image and simulator benchmarks.
	SampleImage = "./data/images/zidane.jpg"
)

// OrtProviders are the accepted --ort_provider values.
var OrtProviders = []string{"cpu", "cuda", "coreml", "openvino"}

// Config is the resolved command line.
type Config struct {
	Model      string
	Names      string
	ConfThresh float32
	IoUThresh  float32
	Image      string
	Device     int
	Stream     bool
	COCOPath   string
	Quiet      bool

	BenchSpeed  bool
	BenchImage  bool
	BenchAirSim bool
	BenchCOCO   bool

	Runs          int
	SimAddress    string
	SimCamera     string
	Show          bool
	Output        string
	BenchOut      string
	OrtLib        string
	OrtProvider   string
	EdgeTPUDevice int
	// EdgeTPUCPU runs a .tflite model on the CPU when no EdgeTPU is attached.
	EdgeTPUCPU bool
	// Threads bounds the CPU threads of the runtime, 0 picks its default.
	Threads int
}

// Mode picks the action to run. When several are requested the first of
// bench_speed, bench_image, bench_airsim, bench_coco, image, stream wins.
func (c *Config) Mode() Mode {
	switch {
	case c.BenchSpeed:
		return ModeBenchSpeed
	case c.BenchImage:
		return ModeBenchImage
	case c.BenchAirSim:
		return ModeBenchAirSim
	case c.BenchCOCO:
		return ModeBenchCOCO
	case c.Image != "":
		return ModeImage
	case c.Stream:
		return ModeStream
	default:
		return ModeNone
	}
}

// Backend names the runtime the model file selects: "edgetpu" for .tflite
// and "onnxruntime/<provider>" for .onnx weights.
func (c *Config) Backend() string {
	switch strings.ToLower(filepath.Ext(c.Model)) {
	case ".tflite":
		return "edgetpu"
	case ".onnx":
		provider := strings.ToLower(strings.TrimSpace(c.OrtProvider))
		if provider == "" {
			provider = "cpu"
		}
		return "onnxruntime/" + provider
	default:
		return ""
	}
}

// Validate checks option combinations. It runs before any model is opened.
func (c *Config) Validate() error {
	if c.Stream && c.Image != "" {
		return ErrConflictingInputs
	}
	if c.ConfThresh < 0 || c.ConfThresh > 1 {
		return fmt.Errorf("--conf_thresh must be in [0, 1], got %v", c.ConfThresh)
	}
	if c.IoUThresh < 0 || c.IoUThresh > 1 {
		return fmt.Errorf("--iou_thresh must be in [0, 1], got %v", c.IoUThresh)
	}
	if p := strings.ToLower(strings.TrimSpace(c.OrtProvider)); p != "" && !slices.Contains(OrtProviders, p) {
		return fmt.Errorf("--ort_provider must be one of %v, got %q", strings.Join(OrtProviders, ", "), c.OrtProvider)
	}
	if c.Threads < 0 {
		return fmt.Errorf("--threads must not be negative, got %d", c.Threads)
	}
	switch c.Mode() {
	case ModeBenchCOCO:
		if c.COCOPath == "" {
			return ErrMissingCOCOPath
		}
	case ModeBenchSpeed:
		if c.Runs < 1 {
			return fmt.Errorf("--runs must be at least 1, got %d", c.Runs)
		}
	}
	return nil
}

// Parse reads the command line. args[0] is the program name.
//
// Arguments:
//   - args: The full argument vector, as in os.Args.
//
// Returns:
//   - *Config: The validated configuration.
//   - error: A *UsageError for malformed flags, or a validation error.
func Parse(args []string) (*Config, error) {
	parser := argparse.NewParser("detect", "EdgeTPU test runner")
	model := parser.String("m", "model", &argparse.Options{Help: "weights file (.tflite for EdgeTPU, .onnx for onnxruntime)", Required: true})
	benchSpeed := parser.Flag("", "bench_speed", &argparse.Options{Help: "run speed test on dummy data"})
	benchImage := parser.Flag("", "bench_image", &argparse.Options{Help: "run detection test"})
	benchAirSim := parser.Flag("", "bench_airsim", &argparse.Options{Help: "run detection on airsim"})
	confThresh := parser.Float("", "conf_thresh", &argparse.Options{Help: "model confidence threshold", Default: DefaultConfThresh})
	iouThresh := parser.Float("", "iou_thresh", &argparse.Options{Help: "NMS IOU threshold", Default: DefaultIoUThresh})
	names := parser.String("", "names", &argparse.Options{Help: "Names file", Default: DefaultNames})
	image := parser.String("i", "image", &argparse.Options{Help: "Image file to run detection on"})
	device := parser.Int("", "device", &argparse.Options{Help: "Image capture device to run live detection", Default: 0})
	stream := parser.Flag("", "stream", &argparse.Options{Help: "Process a stream"})
	benchCOCO := parser.Flag("", "bench_coco", &argparse.Options{Help: "Run the COCO validation export"})
	cocoPath := parser.String("", "coco_path", &argparse.Options{Help: "Path to COCO 2017 Val folder"})
	quiet := parser.Flag("q", "quiet", &argparse.Options{Help: "Disable logging (except errors)"})

	runs := parser.Int("", "runs", &argparse.Options{Help: "Number of speed test iterations", Default: DefaultRuns})
	simAddress := parser.String("", "sim_address", &argparse.Options{Help: "AirSim RPC address", Default: DefaultSimAddress})
	simCamera := parser.String("", "sim_camera", &argparse.Options{Help: "AirSim camera name", Default: DefaultSimCamera})
	show := parser.Flag("", "show", &argparse.Options{Help: "Display annotated frames in a window"})
	output := parser.String("", "output", &argparse.Options{Help: "COCO predictions directory", Default: DefaultCOCOOutput})
	benchOut := parser.String("", "bench_out", &argparse.Options{Help: "Write speed test results as JSON and CSV to this directory"})
	ortLib := parser.String("", "ort_lib", &argparse.Options{Help: "onnxruntime shared library (default $ORT_LIB)"})
	ortProvider := parser.String("", "ort_provider", &argparse.Options{Help: "onnxruntime execution provider: cpu, cuda, coreml, openvino", Default: "cpu"})
	edgeTPUDevice := parser.Int("", "edgetpu_device", &argparse.Options{Help: "EdgeTPU device index", Default: 0})
	edgeTPUCPU := parser.Flag("", "edgetpu_cpu", &argparse.Options{Help: "Run .tflite models on the CPU when no EdgeTPU is attached"})
	threads := parser.Int("", "threads", &argparse.Options{Help: "CPU threads for the runtime (0 picks a default)", Default: 0})

	if err := parser.Parse(args); err != nil {
		return nil, &UsageError{Usage: parser.Usage(err), Err: err}
	}

	c := &Config{
		Model:         *model,
		Names:         *names,
		ConfThresh:    float32(*confThresh),
		IoUThresh:     float32(*iouThresh),
		Image:         *image,
		Device:        *device,
		Stream:        *stream,
		COCOPath:      *cocoPath,
		Quiet:         *quiet,
		BenchSpeed:    *benchSpeed,
		BenchImage:    *benchImage,
		BenchAirSim:   *benchAirSim,
		BenchCOCO:     *benchCOCO,
		Runs:          *runs,
		SimAddress:    *simAddress,
		SimCamera:     *simCamera,
		Show:          *show,
		Output:        *output,
		BenchOut:      *benchOut,
		OrtLib:        *ortLib,
		OrtProvider:   *ortProvider,
		EdgeTPUDevice: *edgeTPUDevice,
		EdgeTPUCPU:    *edgeTPUCPU,
		Threads:       *threads,
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// ExitCode maps an error from a run to a process exit status: 0 on success,
// 2 for a malformed command line and 1 for everything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var usage *UsageError
	if errors.As(err, &usage) {
		return 2
	}
	return 1
}
