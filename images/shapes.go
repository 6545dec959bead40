// Package images - Image processing utilities
package images

import (
	"image"

	"github.com/chewxy/math32"
)

// Rect is a lightweight bounding box in pixel coordinates.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 float32
}

// Width returns the horizontal extent of the box, never negative.
func (r Rect) Width() float32 {
	return math32.Max(0, r.X2-r.X1)
}

// Height returns the vertical extent of the box, never negative.
func (r Rect) Height() float32 {
	return math32.Max(0, r.Y2-r.Y1)
}

// Area returns the area of the box in square pixels.
func (r Rect) Area() float32 {
	return r.Width() * r.Height()
}

// Center returns the center point of the box.
func (r Rect) Center() (float32, float32) {
	return (r.X1 + r.X2) / 2, (r.Y1 + r.Y2) / 2
}

// Clip clamps the box to [0, w) x [0, h).
//
// Arguments:
//   - w: The width of the image the box lives in.
//   - h: The height of the image the box lives in.
//
// Returns:
//   - Rect: The clamped box.
func (r Rect) Clip(w, h int) Rect {
	fw, fh := float32(w), float32(h)
	return Rect{
		X1: clamp(r.X1, 0, fw),
		Y1: clamp(r.Y1, 0, fh),
		X2: clamp(r.X2, 0, fw),
		Y2: clamp(r.Y2, 0, fh),
	}
}

// ToRectangle converts the box to an integral image.Rectangle, rounding to
// the nearest pixel.
func (r Rect) ToRectangle() image.Rectangle {
	return image.Rect(
		int(math32.Round(r.X1)),
		int(math32.Round(r.Y1)),
		int(math32.Round(r.X2)),
		int(math32.Round(r.Y2)),
	).Canon()
}

// RectFromCenter builds a box from a center point and a size, which is how
// YOLO heads emit their boxes.
func RectFromCenter(cx, cy, w, h float32) Rect {
	return Rect{
		X1: cx - w/2,
		Y1: cy - h/2,
		X2: cx + w/2,
		Y2: cy + h/2,
	}
}

// CalculateIoU returns the Intersection over Union of two boxes.
//
//	IoU = Area of Intersection / Area of Union
//
// A value of 1.0 means the boxes are identical and 0.0 means they do not
// overlap at all. Degenerate boxes (zero union) yield 0.
//
// Arguments:
//   - r: The first box.
//   - o: The other box to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
func CalculateIoU(r, o Rect) float32 {
	ix1 := math32.Max(r.X1, o.X1)
	iy1 := math32.Max(r.Y1, o.Y1)
	ix2 := math32.Min(r.X2, o.X2)
	iy2 := math32.Min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}
	return interArea / unionArea
}

func clamp(v, lo, hi float32) float32 {
	return math32.Min(math32.Max(v, lo), hi)
}
