// Package edgetpu runs quantized YOLO TFLite models on a Coral EdgeTPU
// through the TensorFlow Lite C API and the libedgetpu delegate.
package edgetpu

import (
	"image"
	"runtime"

	"github.com/cyclopcam/logs"
	"github.com/mattn/go-tflite"
	"github.com/mattn/go-tflite/delegates"
	"github.com/mattn/go-tflite/delegates/edgetpu"
	"github.com/pkg/errors"

	"github.com/nvr-ai/detect-bench/models/model"
	"github.com/nvr-ai/detect-bench/models/model/preprocess"
)

// Options configure the TFLite interpreter.
type Options struct {
	// Device selects the EdgeTPU when more than one is attached.
	Device int
	// Threads used by CPU kernels that are not delegated. 0 uses all cores.
	Threads int
	// AllowCPU runs the model on the CPU when no EdgeTPU is found.
	AllowCPU bool
}

// Backend is a TFLite interpreter with the EdgeTPU delegate attached.
type Backend struct {
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	delegate    delegates.Delegater
	interpreter *tflite.Interpreter

	size     image.Point
	inType   tflite.TensorType
	inQuant  preprocess.Quantization
	outQuant preprocess.Quantization
	scratch  []float32
}

var _ model.Backend = (*Backend)(nil)

// New loads a compiled *_edgetpu.tflite model.
//
// Arguments:
//   - log: Logger for device and tensor details.
//   - path: The .tflite file.
//   - opts: Device and threading options.
//
// Returns:
//   - *Backend: The ready interpreter.
//   - error: An error if no device is available or the model cannot be loaded.
func New(log logs.Log, path string, opts Options) (*Backend, error) {
	b := &Backend{}
	b.model = tflite.NewModelFromFile(path)
	if b.model == nil {
		return nil, errors.Errorf("cannot load model %s", path)
	}

	b.options = tflite.NewInterpreterOptions()
	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	b.options.SetNumThread(threads)
	b.options.SetErrorReporter(func(msg string, _ interface{}) {
		log.Errorf("tflite: %v", msg)
	}, nil)

	devices, err := edgetpu.DeviceList()
	if err != nil {
		b.Close()
		return nil, errors.Wrap(err, "cannot list EdgeTPU devices")
	}
	useTPU, err := useDevice(opts.Device, len(devices), opts.AllowCPU)
	if err != nil {
		b.Close()
		return nil, err
	}
	if useTPU {
		b.delegate = edgetpu.New(devices[opts.Device])
		if b.delegate == nil {
			b.Close()
			return nil, errors.Errorf("cannot open EdgeTPU %s", devices[opts.Device].Path)
		}
		b.options.AddDelegate(b.delegate)
		log.Infof("Using EdgeTPU %v (%v devices found)", devices[opts.Device].Path, len(devices))
	} else {
		log.Warnf("No EdgeTPU device %v (%v found), running on the CPU with %v threads", opts.Device, len(devices), threads)
	}

	b.interpreter = tflite.NewInterpreter(b.model, b.options)
	if b.interpreter == nil {
		b.Close()
		return nil, errors.New("cannot create interpreter")
	}
	if status := b.interpreter.AllocateTensors(); status != tflite.OK {
		b.Close()
		return nil, errors.Errorf("tensor allocation failed: %v", status)
	}

	input := b.interpreter.GetInputTensor(0)
	if input.NumDims() != 4 || input.Dim(3) != 3 {
		b.Close()
		return nil, errors.Errorf("expected a (1, H, W, 3) input, got %d dims", input.NumDims())
	}
	b.size = image.Pt(input.Dim(2), input.Dim(1))
	b.inType = input.Type()
	b.inQuant = quantization(input)
	if isQuantized(b.inType) {
		if err := b.inQuant.Check("input"); err != nil {
			b.Close()
			return nil, err
		}
	}
	output := b.interpreter.GetOutputTensor(0)
	b.outQuant = quantization(output)
	if isQuantized(output.Type()) {
		if err := b.outQuant.Check("output"); err != nil {
			b.Close()
			return nil, err
		}
	}
	b.scratch = make([]float32, b.size.X*b.size.Y*3)

	log.Infof("Loaded TFLite model %v: input %vx%v %v", path, b.size.X, b.size.Y, b.inType)
	return b, nil
}

// useDevice picks the EdgeTPU at index device out of found attached ones,
// or the CPU when allowCPU is set and there is no such device.
func useDevice(device, found int, allowCPU bool) (bool, error) {
	switch {
	case device >= 0 && device < found:
		return true, nil
	case allowCPU:
		return false, nil
	default:
		return false, errors.Errorf("EdgeTPU device %d not found, %d devices attached", device, found)
	}
}

func isQuantized(t tflite.TensorType) bool {
	return t == tflite.UInt8 || t == tflite.Int8
}

func quantization(t *tflite.Tensor) preprocess.Quantization {
	p := t.QuantizationParams()
	return preprocess.Quantization{Scale: float32(p.Scale), ZeroPoint: int32(p.ZeroPoint)}
}

func (b *Backend) InputSize() image.Point {
	return b.size
}

// NormalizedBoxes is true: TFLite YOLO exports emit xywh in [0, 1].
func (b *Backend) NormalizedBoxes() bool {
	return true
}

// Invoke quantizes the pixels, runs the interpreter and dequantizes the
// first output tensor.
func (b *Backend) Invoke(hwc []float32) ([]float32, []int, error) {
	err := preprocess.Pack(b.scratch, hwc, b.size, preprocess.Config{
		Normalization: preprocess.NormalizeZeroToOne,
		ChannelOrder:  preprocess.ChannelOrderHWC,
	})
	if err != nil {
		return nil, nil, err
	}

	input := b.interpreter.GetInputTensor(0)
	switch b.inType {
	case tflite.UInt8:
		b.inQuant.QuantizeUint8(input.UInt8s(), b.scratch)
	case tflite.Int8:
		b.inQuant.QuantizeInt8(input.Int8s(), b.scratch)
	case tflite.Float32:
		copy(input.Float32s(), b.scratch)
	default:
		return nil, nil, errors.Errorf("unsupported input type %v", b.inType)
	}

	if status := b.interpreter.Invoke(); status != tflite.OK {
		return nil, nil, errors.Errorf("invoke failed: %v", status)
	}

	output := b.interpreter.GetOutputTensor(0)
	shape := make([]int, output.NumDims())
	for i := range shape {
		shape[i] = output.Dim(i)
	}
	var out []float32
	switch output.Type() {
	case tflite.UInt8:
		raw := output.UInt8s()
		out = make([]float32, len(raw))
		b.outQuant.DequantizeUint8(out, raw)
	case tflite.Int8:
		raw := output.Int8s()
		out = make([]float32, len(raw))
		b.outQuant.DequantizeInt8(out, raw)
	case tflite.Float32:
		out = append([]float32(nil), output.Float32s()...)
	default:
		return nil, nil, errors.Errorf("unsupported output type %v", output.Type())
	}
	return out, shape, nil
}

// Close releases the interpreter, delegate and model, in that order.
func (b *Backend) Close() error {
	if b.interpreter != nil {
		b.interpreter.Delete()
		b.interpreter = nil
	}
	if b.delegate != nil {
		b.delegate.Delete()
		b.delegate = nil
	}
	if b.options != nil {
		b.options.Delete()
		b.options = nil
	}
	if b.model != nil {
		b.model.Delete()
		b.model = nil
	}
	return nil
}
