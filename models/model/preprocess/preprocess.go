// Package preprocess packs HWC pixel tensors into the input layout and
// numeric type a backend expects.
package preprocess

import (
	"image"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// NormalizationType defines how pixel values are normalized.
type NormalizationType int

const (
	// NormalizeNone keeps pixel values as 0-255.
	NormalizeNone NormalizationType = iota
	// NormalizeZeroToOne scales pixel values to [0, 1].
	NormalizeZeroToOne
)

// ChannelOrder defines the memory layout of the packed tensor.
type ChannelOrder int

const (
	// ChannelOrderHWC keeps pixels interleaved (TFLite).
	ChannelOrderHWC ChannelOrder = iota
	// ChannelOrderCHW stores one plane per channel (ONNX).
	ChannelOrderCHW
)

// Config defines the input packing for a backend.
type Config struct {
	Normalization NormalizationType
	ChannelOrder  ChannelOrder
}

// Pack writes an (H, W, 3) pixel slice with values in [0, 255] into dst.
//
// Arguments:
//   - dst: Destination slice, at least 3*W*H long.
//   - hwc: Interleaved RGB pixels.
//   - size: Spatial size of the image.
//   - cfg: Normalization and channel order.
//
// Returns:
//   - error: When either slice is too short.
func Pack(dst, hwc []float32, size image.Point, cfg Config) error {
	plane := size.X * size.Y
	if len(hwc) < plane*3 {
		return errors.Errorf("input has %d values, want %d", len(hwc), plane*3)
	}
	if len(dst) < plane*3 {
		return errors.Errorf("destination has %d values, want %d", len(dst), plane*3)
	}
	scale := float32(1)
	if cfg.Normalization == NormalizeZeroToOne {
		scale = 1.0 / 255
	}
	switch cfg.ChannelOrder {
	case ChannelOrderCHW:
		for i := 0; i < plane; i++ {
			dst[i] = hwc[i*3] * scale
			dst[plane+i] = hwc[i*3+1] * scale
			dst[2*plane+i] = hwc[i*3+2] * scale
		}
	default:
		for i, v := range hwc[:plane*3] {
			dst[i] = v * scale
		}
	}
	return nil
}

// Quantization holds the affine parameters of a quantized tensor:
// real = Scale * (q - ZeroPoint).
type Quantization struct {
	Scale     float32
	ZeroPoint int32
}

// Valid reports whether the parameters describe a quantized tensor.
func (q Quantization) Valid() bool {
	return q.Scale > 0
}

// Check returns an error when q cannot map the integer data of the named
// tensor to reals, e.g. a zero scale from a model that was not fully
// quantized.
func (q Quantization) Check(name string) error {
	if !q.Valid() {
		return errors.Errorf("%s tensor has invalid quantization (scale %v, zero point %d)", name, q.Scale, q.ZeroPoint)
	}
	return nil
}

// QuantizeUint8 converts real values into uint8 with saturation.
func (q Quantization) QuantizeUint8(dst []uint8, src []float32) {
	for i, v := range src {
		dst[i] = uint8(clamp(math32.Round(v/q.Scale)+float32(q.ZeroPoint), 0, 255))
	}
}

// QuantizeInt8 converts real values into int8 with saturation.
func (q Quantization) QuantizeInt8(dst []int8, src []float32) {
	for i, v := range src {
		dst[i] = int8(clamp(math32.Round(v/q.Scale)+float32(q.ZeroPoint), -128, 127))
	}
}

// DequantizeUint8 converts uint8 values back to reals.
func (q Quantization) DequantizeUint8(dst []float32, src []uint8) {
	for i, v := range src {
		dst[i] = q.Scale * float32(int32(v)-q.ZeroPoint)
	}
}

// DequantizeInt8 converts int8 values back to reals.
func (q Quantization) DequantizeInt8(dst []float32, src []int8) {
	for i, v := range src {
		dst[i] = q.Scale * float32(int32(v)-q.ZeroPoint)
	}
}

func clamp(v, lo, hi float32) float32 {
	return math32.Min(math32.Max(v, lo), hi)
}
