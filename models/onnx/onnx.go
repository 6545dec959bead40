// Package onnx runs YOLO detectors exported to ONNX through onnxruntime.
package onnx

import (
	"image"
	"os"

	"github.com/cyclopcam/logs"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/detect-bench/models/model"
	"github.com/nvr-ai/detect-bench/models/model/preprocess"
)

// defaultSize is used for exports with dynamic spatial input dimensions.
const defaultSize = 640

// Options configure an onnxruntime session.
type Options struct {
	// LibraryPath is the onnxruntime shared library, see SharedLibPath.
	LibraryPath string
	Provider    Provider
	// IntraOpThreads parallelizes work inside graph nodes. 0 lets onnxruntime decide.
	IntraOpThreads int
}

// Backend is an onnxruntime session with preallocated float32 tensors.
type Backend struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	size    image.Point
	shape   []int
}

var _ model.Backend = (*Backend)(nil)

// New opens an ONNX YOLO export.
//
// Arguments:
//   - log: Logger for session details.
//   - path: The .onnx file.
//   - opts: Runtime options.
//
// Returns:
//   - *Backend: The ready session.
//   - error: An error if the runtime or the model cannot be loaded.
func New(log logs.Log, path string, opts Options) (*Backend, error) {
	libPath := SharedLibPath(opts.LibraryPath)
	if _, err := os.Stat(libPath); err != nil {
		return nil, errors.Wrapf(err, "onnxruntime library not found at %s, set --ort_lib or %s", libPath, LibraryEnv)
	}
	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(err, "error initializing ORT environment")
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to inspect %s", path)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, errors.Errorf("expected 1 input and at least 1 output, got %d and %d", len(inputs), len(outputs))
	}
	inShape, size, err := inputShape(inputs[0].Dimensions)
	if err != nil {
		return nil, err
	}
	outShape, err := staticShape(outputs[0].Dimensions)
	if err != nil {
		return nil, err
	}

	b := &Backend{size: size}
	if b.input, err = ort.NewEmptyTensor[float32](inShape); err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	if b.output, err = ort.NewEmptyTensor[float32](outShape); err != nil {
		b.Close()
		return nil, errors.Wrap(err, "error creating output tensor")
	}
	for _, d := range outShape {
		b.shape = append(b.shape, int(d))
	}

	options, err := sessionOptions(opts)
	if err != nil {
		b.Close()
		return nil, err
	}
	defer options.Destroy()

	b.session, err = ort.NewAdvancedSession(
		path,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]ort.ArbitraryTensor{b.input},
		[]ort.ArbitraryTensor{b.output},
		options,
	)
	if err != nil {
		b.Close()
		return nil, errors.Wrap(err, "error creating ORT session")
	}
	log.Infof("Loaded ONNX model %v: input %v, output %v, provider %v", path, inShape, outShape, opts.Provider)
	return b, nil
}

func sessionOptions(opts Options) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}
	if opts.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "error setting thread count")
		}
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "error setting optimization level")
	}

	switch opts.Provider {
	case CoreMLExecutionProvider:
		err = options.AppendExecutionProviderCoreML(0)
	case OpenVINOExecutionProvider:
		err = options.AppendExecutionProviderOpenVINO(map[string]string{
			"device_type": "CPU",
			"precision":   "FP32",
		})
	case CUDAExecutionProvider:
		var cuda *ort.CUDAProviderOptions
		if cuda, err = ort.NewCUDAProviderOptions(); err == nil {
			defer cuda.Destroy()
			err = options.AppendExecutionProviderCUDA(cuda)
		}
	}
	if err != nil {
		options.Destroy()
		return nil, errors.Wrapf(err, "error enabling %s", opts.Provider)
	}
	return options, nil
}

// inputShape resolves an NCHW image input, substituting defaultSize for
// dynamic spatial dimensions.
func inputShape(dims ort.Shape) (ort.Shape, image.Point, error) {
	if len(dims) != 4 || (dims[1] != 3 && dims[1] > 0) {
		return nil, image.Point{}, errors.Errorf("expected a (1, 3, H, W) input, got %v", dims)
	}
	shape := ort.NewShape(1, 3, dims[2], dims[3])
	for i := 2; i < 4; i++ {
		if shape[i] <= 0 {
			shape[i] = defaultSize
		}
	}
	return shape, image.Pt(int(shape[3]), int(shape[2])), nil
}

func staticShape(dims ort.Shape) (ort.Shape, error) {
	shape := ort.NewShape(dims...)
	if len(shape) > 0 && shape[0] <= 0 {
		shape[0] = 1
	}
	for _, d := range shape {
		if d <= 0 {
			return nil, errors.Errorf("dynamic output shape %v is not supported, export with a fixed image size", dims)
		}
	}
	return shape, nil
}

func (b *Backend) InputSize() image.Point {
	return b.size
}

func (b *Backend) NormalizedBoxes() bool {
	return false
}

// Invoke packs pixels into the NCHW input, runs the session and returns a
// copy of the output.
func (b *Backend) Invoke(hwc []float32) ([]float32, []int, error) {
	err := preprocess.Pack(b.input.GetData(), hwc, b.size, preprocess.Config{
		Normalization: preprocess.NormalizeZeroToOne,
		ChannelOrder:  preprocess.ChannelOrderCHW,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := b.session.Run(); err != nil {
		return nil, nil, errors.Wrap(err, "onnxruntime run failed")
	}
	out := append([]float32(nil), b.output.GetData()...)
	return out, b.shape, nil
}

// Close releases the session and its tensors.
func (b *Backend) Close() error {
	if b.input != nil {
		b.input.Destroy()
		b.input = nil
	}
	if b.output != nil {
		b.output.Destroy()
		b.output = nil
	}
	if b.session != nil {
		err := b.session.Destroy()
		b.session = nil
		return err
	}
	return nil
}
