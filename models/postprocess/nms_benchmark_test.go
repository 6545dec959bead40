package postprocess

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/nvr-ai/detect-bench/images"
)

func randomResults(rng *rand.Rand, n int) []Result {
	out := make([]Result, n)
	for i := range out {
		cx, cy := rng.Float32()*640, rng.Float32()*640
		w, h := 8+rng.Float32()*160, 8+rng.Float32()*160
		out[i] = Result{
			Box:   images.RectFromCenter(cx, cy, w, h),
			Score: rng.Float32(),
			Class: rng.Intn(80),
		}
	}
	return out
}

// BenchmarkApplyNMS covers typical candidate counts after the confidence
// filter, up to the COCO export where almost every box survives it.
func BenchmarkApplyNMS(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	for _, n := range []int{100, 1000, 10000} {
		dets := randomResults(rng, n)
		for _, classAware := range []bool{true, false} {
			b.Run(fmt.Sprintf("n=%d/classAware=%v", n, classAware), func(b *testing.B) {
				cfg := NMSConfig{IoUThreshold: 0.45, ClassAware: classAware}
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					ApplyNMS(dets, cfg)
				}
			})
		}
	}
}
