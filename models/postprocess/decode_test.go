package postprocess

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHead(t *testing.T) {
	h, err := ParseHead([]int{1, 25200, 85})
	require.NoError(t, err)
	assert.Equal(t, Head{Layout: LayoutRows, Candidates: 25200, Classes: 80}, h)

	h, err = ParseHead([]int{1, 84, 8400})
	require.NoError(t, err)
	assert.Equal(t, Head{Layout: LayoutChannels, Candidates: 8400, Classes: 80}, h)

	h, err = ParseHead([]int{6300, 85})
	require.NoError(t, err)
	assert.Equal(t, LayoutRows, h.Layout)

	for _, bad := range [][]int{{2, 84, 8400}, {1, 1, 2, 3}, {10, 5}, {3, 100}, {}} {
		_, err := ParseHead(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestDecodeRows(t *testing.T) {
	head := Head{Layout: LayoutRows, Candidates: 3, Classes: 2}
	out := []float32{
		// cx, cy, w, h, obj, c0, c1
		0.5, 0.5, 0.2, 0.2, 0.9, 0.1, 0.8, // kept: 0.72 class 1
		0.5, 0.5, 0.2, 0.2, 0.2, 0.9, 0.9, // obj below threshold
		0.5, 0.5, 0.2, 0.2, 0.5, 0.4, 0.3, // score 0.2 below threshold
	}
	got, err := Decode(out, head, DecodeOptions{ConfThreshold: 0.25, Normalized: true, Size: image.Pt(100, 100)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Class)
	assert.InDelta(t, 0.72, got[0].Score, 1e-6)
	assert.InDelta(t, 40, got[0].Box.X1, 1e-4)
	assert.InDelta(t, 60, got[0].Box.X2, 1e-4)
}

func TestDecodeChannels(t *testing.T) {
	head := Head{Layout: LayoutChannels, Candidates: 2, Classes: 2}
	out := []float32{
		50, 10, // cx
		50, 10, // cy
		20, 4, // w
		10, 4, // h
		0.1, 0.2, // class 0
		0.7, 0.1, // class 1
	}
	got, err := Decode(out, head, DecodeOptions{ConfThreshold: 0.25})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Result{Box: box(40, 45, 60, 55), Score: 0.7, Class: 1}, got[0])
}

func TestDecodeShortOutput(t *testing.T) {
	_, err := Decode(make([]float32, 5), Head{Layout: LayoutRows, Candidates: 2, Classes: 1}, DecodeOptions{})
	assert.Error(t, err)
}
