// Package postprocess - Postprocessing utilities for models.
package postprocess

import "github.com/nvr-ai/detect-bench/images"

// Result represents a single detection result.
type Result struct {
	// The bounding box of the result.
	Box images.Rect `json:"box"`
	// The confidence score of the result.
	Score float32 `json:"score"`
	// The predicted class index of the result.
	Class int `json:"class"`
}

// Scale maps every result from network to source image coordinates in place
// and returns the same slice.
func Scale(results []Result, pad images.Pad, w, h int) []Result {
	for i := range results {
		results[i].Box = pad.ToOriginal(results[i].Box, w, h)
	}
	return results
}
