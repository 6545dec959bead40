package images

import (
	"image"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ToTensor converts an image into an (H, W, 3) float32 tensor holding RGB
// values in [0, 255].
func ToTensor(img image.Image) *tensor.Dense {
	rgba := ToRGBA(img)
	w, h := rgba.Rect.Dx(), rgba.Rect.Dy()
	data := make([]float32, h*w*3)
	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride : y*rgba.Stride+w*4]
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			data[i] = float32(row[x*4])
			data[i+1] = float32(row[x*4+1])
			data[i+2] = float32(row[x*4+2])
		}
	}
	return tensor.New(tensor.WithShape(h, w, 3), tensor.WithBacking(data))
}

// RandomTensor returns an (H, W, 3) tensor of uniform noise in [0, 255),
// the synthetic input used for warm-up and speed runs.
func RandomTensor(rng *rand.Rand, size image.Point) *tensor.Dense {
	data := make([]float32, size.Y*size.X*3)
	for i := range data {
		data[i] = 255 * rng.Float32()
	}
	return tensor.New(tensor.WithShape(size.Y, size.X, 3), tensor.WithBacking(data))
}

// HWC validates that t is an (H, W, 3) float32 tensor and returns its
// backing slice and spatial size.
func HWC(t *tensor.Dense) ([]float32, image.Point, error) {
	if t == nil {
		return nil, image.Point{}, errors.New("nil tensor")
	}
	shape := t.Shape()
	if len(shape) != 3 || shape[2] != 3 {
		return nil, image.Point{}, errors.Errorf("expected (H, W, 3) tensor, got %v", shape)
	}
	if shape[0] <= 0 || shape[1] <= 0 {
		return nil, image.Point{}, errors.Errorf("invalid tensor shape %v", shape)
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, image.Point{}, errors.Errorf("expected float32 tensor, got %v", t.Dtype())
	}
	return data, image.Pt(shape[1], shape[0]), nil
}
