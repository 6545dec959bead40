package images

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestIoU_Correctness validates the IoU implementation against known test cases
func TestIoU_Correctness(t *testing.T) {
	tests := []struct {
		name     string
		r1       Rect
		r2       Rect
		expected float32
	}{
		{
			name:     "Identical rectangles",
			r1:       Rect{0, 0, 100, 100},
			r2:       Rect{0, 0, 100, 100},
			expected: 1.0,
		},
		{
			name:     "No overlap",
			r1:       Rect{0, 0, 100, 100},
			r2:       Rect{200, 200, 300, 300},
			expected: 0.0,
		},
		{
			name:     "Touching edges",
			r1:       Rect{0, 0, 100, 100},
			r2:       Rect{100, 0, 200, 100},
			expected: 0.0,
		},
		{
			name:     "Half overlap",
			r1:       Rect{0, 0, 100, 100},
			r2:       Rect{50, 50, 150, 150},
			expected: 0.142857, // 2500 / 17500
		},
		{
			name:     "One inside other",
			r1:       Rect{0, 0, 100, 100},
			r2:       Rect{25, 25, 75, 75},
			expected: 0.25,
		},
		{
			name:     "Degenerate boxes",
			r1:       Rect{10, 10, 10, 10},
			r2:       Rect{10, 10, 10, 10},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CalculateIoU(tt.r1, tt.r2), 0.001)
			assert.InDelta(t, tt.expected, CalculateIoU(tt.r2, tt.r1), 0.001, "IoU must be symmetric")
		})
	}
}

func TestRectClip(t *testing.T) {
	r := Rect{X1: -10, Y1: 5, X2: 700, Y2: 500}.Clip(640, 480)
	assert.Equal(t, Rect{X1: 0, Y1: 5, X2: 640, Y2: 480}, r)
	assert.Equal(t, float32(640*475), r.Area())
}

func TestRectFromCenter(t *testing.T) {
	r := RectFromCenter(50, 40, 20, 10)
	assert.Equal(t, Rect{X1: 40, Y1: 35, X2: 60, Y2: 45}, r)
	cx, cy := r.Center()
	assert.Equal(t, float32(50), cx)
	assert.Equal(t, float32(40), cy)
	assert.Equal(t, image.Rect(40, 35, 60, 45), r.ToRectangle())
}

func TestRectNegativeExtent(t *testing.T) {
	r := Rect{X1: 10, Y1: 10, X2: 5, Y2: 5}
	assert.Zero(t, r.Width())
	assert.Zero(t, r.Height())
	assert.Zero(t, r.Area())
}
