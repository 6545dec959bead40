package images

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/chewxy/math32"
	"github.com/nfnt/resize"
)

// LetterboxColor is the grey used to pad letterboxed frames, matching what
// YOLO models were trained with.
var LetterboxColor = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// Pad records how a full image was fitted into the network input so that
// detections can be mapped back.
type Pad struct {
	// Scale is the resize gain applied to the source image.
	Scale float32 `json:"scale"`
	// Left is the horizontal padding in network pixels.
	Left float32 `json:"left"`
	// Top is the vertical padding in network pixels.
	Top float32 `json:"top"`
}

// Identity is the Pad of an image that already has the network size.
var Identity = Pad{Scale: 1}

// ToOriginal maps a box from network coordinates to source image
// coordinates and clips it to the w x h source image.
func (p Pad) ToOriginal(r Rect, w, h int) Rect {
	scale := p.Scale
	if scale <= 0 {
		scale = 1
	}
	return Rect{
		X1: (r.X1 - p.Left) / scale,
		Y1: (r.Y1 - p.Top) / scale,
		X2: (r.X2 - p.Left) / scale,
		Y2: (r.Y2 - p.Top) / scale,
	}.Clip(w, h)
}

// ToNetwork maps a box from source image coordinates to network coordinates.
func (p Pad) ToNetwork(r Rect) Rect {
	return Rect{
		X1: r.X1*p.Scale + p.Left,
		Y1: r.Y1*p.Scale + p.Top,
		X2: r.X2*p.Scale + p.Left,
		Y2: r.Y2*p.Scale + p.Top,
	}
}

// Letterbox resizes img to fit inside size while keeping its aspect ratio,
// and centers it on a canvas filled with fill.
//
// Arguments:
//   - img: The source image.
//   - size: The network input size (width, height).
//   - fill: The padding color, LetterboxColor when nil.
//
// Returns:
//   - *image.RGBA: The size.X x size.Y letterboxed image.
//   - Pad: The scale and offsets that were applied.
func Letterbox(img image.Image, size image.Point, fill color.Color) (*image.RGBA, Pad) {
	if fill == nil {
		fill = LetterboxColor
	}
	b := img.Bounds()
	srcW, srcH := float32(b.Dx()), float32(b.Dy())

	scale := math32.Min(float32(size.X)/srcW, float32(size.Y)/srcH)
	newW := max(1, int(math32.Round(srcW*scale)))
	newH := max(1, int(math32.Round(srcH*scale)))

	dw := float32(size.X-newW) / 2
	dh := float32(size.Y-newH) / 2
	left := int(math32.Round(dw - 0.1))
	top := int(math32.Round(dh - 0.1))

	canvas := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)

	var resized image.Image = img
	if newW != b.Dx() || newH != b.Dy() {
		resized = resize.Resize(uint(newW), uint(newH), img, resize.Bilinear)
	}
	dst := image.Rect(left, top, left+newW, top+newH)
	draw.Draw(canvas, dst, resized, resized.Bounds().Min, draw.Src)

	return canvas, Pad{Scale: scale, Left: float32(left), Top: float32(top)}
}
