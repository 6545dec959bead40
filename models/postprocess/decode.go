package postprocess

import (
	"fmt"
	"image"

	"github.com/nvr-ai/detect-bench/images"
)

// Layout is the arrangement of a YOLO detection head's output tensor.
type Layout int

const (
	// LayoutRows is the YOLOv5 layout: N rows of [cx, cy, w, h, obj, cls...].
	LayoutRows Layout = iota
	// LayoutChannels is the YOLOv8 layout: [cx, cy, w, h, cls...] channels
	// of N candidates each, without an objectness score.
	LayoutChannels
)

func (l Layout) String() string {
	switch l {
	case LayoutRows:
		return "rows"
	case LayoutChannels:
		return "channels"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// Head describes a detection output after the batch dimension is removed.
type Head struct {
	Layout     Layout
	Candidates int
	Classes    int
}

// ParseHead infers the layout of a detection output from its shape. A
// leading batch dimension of 1 is ignored. The candidate axis is always the
// longer one.
//
// Arguments:
//   - shape: The output tensor shape, e.g. [1 25200 85] or [1 84 8400].
//
// Returns:
//   - Head: The decoded layout, candidate count and class count.
//   - error: When the shape is not a YOLO detection head.
func ParseHead(shape []int) (Head, error) {
	dims := shape
	if len(dims) == 3 {
		if dims[0] != 1 {
			return Head{}, fmt.Errorf("batch size %d is not supported", dims[0])
		}
		dims = dims[1:]
	}
	if len(dims) != 2 {
		return Head{}, fmt.Errorf("unexpected output shape %v", shape)
	}
	if dims[0] >= dims[1] {
		if dims[1] < 6 {
			return Head{}, fmt.Errorf("output shape %v has no class scores", shape)
		}
		return Head{Layout: LayoutRows, Candidates: dims[0], Classes: dims[1] - 5}, nil
	}
	if dims[0] < 5 {
		return Head{}, fmt.Errorf("output shape %v has no class scores", shape)
	}
	return Head{Layout: LayoutChannels, Candidates: dims[1], Classes: dims[0] - 4}, nil
}

// DecodeOptions control how raw head output turns into candidate boxes.
type DecodeOptions struct {
	// ConfThreshold drops candidates whose final score is not above it.
	ConfThreshold float32
	// Normalized is set when boxes are emitted in [0, 1] rather than in
	// network pixels, as TFLite exports do.
	Normalized bool
	// Size is the network input size, used to scale normalized boxes.
	Size image.Point
}

// Decode turns raw head output into candidate detections in network pixel
// coordinates, not yet suppressed.
//
// For LayoutRows the score is objectness times the best class probability
// and both must exceed the threshold. For LayoutChannels the score is the
// best class probability.
func Decode(out []float32, head Head, opts DecodeOptions) ([]Result, error) {
	stride := head.Classes + 4
	if head.Layout == LayoutRows {
		stride++
	}
	if len(out) < head.Candidates*stride {
		return nil, fmt.Errorf("output has %d values, want %d", len(out), head.Candidates*stride)
	}

	sx, sy := float32(1), float32(1)
	if opts.Normalized {
		sx, sy = float32(opts.Size.X), float32(opts.Size.Y)
	}

	var results []Result
	switch head.Layout {
	case LayoutRows:
		for i := 0; i < head.Candidates; i++ {
			row := out[i*stride : (i+1)*stride]
			obj := row[4]
			if obj <= opts.ConfThreshold {
				continue
			}
			cls, best := argmax(row[5:])
			score := obj * best
			if score <= opts.ConfThreshold {
				continue
			}
			results = append(results, Result{
				Box:   images.RectFromCenter(row[0]*sx, row[1]*sy, row[2]*sx, row[3]*sy),
				Score: score,
				Class: cls,
			})
		}
	case LayoutChannels:
		n := head.Candidates
		for i := 0; i < n; i++ {
			cls, best := -1, float32(0)
			for c := 0; c < head.Classes; c++ {
				if p := out[(4+c)*n+i]; cls < 0 || p > best {
					cls, best = c, p
				}
			}
			if best <= opts.ConfThreshold {
				continue
			}
			results = append(results, Result{
				Box:   images.RectFromCenter(out[i]*sx, out[n+i]*sy, out[2*n+i]*sx, out[3*n+i]*sy),
				Score: best,
				Class: cls,
			})
		}
	default:
		return nil, fmt.Errorf("unknown layout %v", head.Layout)
	}
	return results, nil
}

func argmax(v []float32) (int, float32) {
	idx, best := 0, v[0]
	for i, x := range v[1:] {
		if x > best {
			idx, best = i+1, x
		}
	}
	return idx, best
}
