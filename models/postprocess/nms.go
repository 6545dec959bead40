package postprocess

import (
	"sort"

	flatbush "github.com/bmharper/flatbush-go"
	"github.com/chewxy/math32"

	"github.com/nvr-ai/detect-bench/images"
)

// DefaultMaxDetections caps the detections kept per image.
const DefaultMaxDetections = 1000

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold  float32 // Overlap threshold for suppression.
	ClassAware    bool    // If true, suppress only within same class.
	MaxDetections int     // Upper bound on kept detections, DefaultMaxDetections when 0.
}

// ApplyNMS performs greedy Non-Maximum Suppression.
//
// Detections are visited by descending score. Each kept detection suppresses
// every later one whose IoU with it exceeds the threshold. Candidate pairs
// come from a spatial index so only intersecting boxes are compared.
//
// Arguments:
//   - detections: Candidate detections in any order. The slice is sorted in place.
//   - config: NMS configuration.
//
// Returns:
//   - Filtered slice of detections, highest score first. nil when no detections are provided.
func ApplyNMS(detections []Result, config NMSConfig) []Result {
	n := len(detections)
	if n == 0 {
		return nil
	}
	maxDet := config.MaxDetections
	if maxDet <= 0 {
		maxDet = DefaultMaxDetections
	}

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Score > detections[j].Score
	})

	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(n)
	for _, d := range detections {
		x1, y1, x2, y2 := outer(d.Box)
		fb.Add(x1, y1, x2, y2)
	}
	fb.Finish()

	suppressed := make([]bool, n)
	filtered := make([]Result, 0, min(n, maxDet))
	for i, anchor := range detections {
		if suppressed[i] {
			continue
		}
		filtered = append(filtered, anchor)
		if len(filtered) == maxDet {
			break
		}
		x1, y1, x2, y2 := outer(anchor.Box)
		for _, j := range fb.Search(x1, y1, x2, y2) {
			if j <= i || suppressed[j] {
				continue
			}
			if config.ClassAware && detections[j].Class != anchor.Class {
				continue
			}
			if images.CalculateIoU(anchor.Box, detections[j].Box) > config.IoUThreshold {
				suppressed[j] = true
			}
		}
	}
	return filtered
}

// outer returns the smallest integral box containing r.
func outer(r images.Rect) (int32, int32, int32, int32) {
	return int32(math32.Floor(r.X1)), int32(math32.Floor(r.Y1)),
		int32(math32.Ceil(r.X2)), int32(math32.Ceil(r.Y2))
}
