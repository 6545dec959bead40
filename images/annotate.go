package images

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
)

// Label is a box to draw on an image together with its caption.
type Label struct {
	Box   Rect
	Text  string
	Class int
}

// palette is the Ultralytics box palette, indexed by class id.
var palette = []color.RGBA{
	{0xFF, 0x38, 0x38, 0xFF}, {0xFF, 0x9D, 0x97, 0xFF}, {0xFF, 0x70, 0x1F, 0xFF}, {0xFF, 0xB2, 0x1D, 0xFF},
	{0xCF, 0xD2, 0x31, 0xFF}, {0x48, 0xF9, 0x0A, 0xFF}, {0x92, 0xCC, 0x17, 0xFF}, {0x3D, 0xDB, 0x86, 0xFF},
	{0x1A, 0x93, 0x34, 0xFF}, {0x00, 0xD4, 0xBB, 0xFF}, {0x2C, 0x99, 0xA8, 0xFF}, {0x00, 0xC2, 0xFF, 0xFF},
	{0x34, 0x45, 0x93, 0xFF}, {0x64, 0x73, 0xFF, 0xFF}, {0x00, 0x18, 0xEC, 0xFF}, {0x84, 0x38, 0xFF, 0xFF},
	{0x52, 0x00, 0x85, 0xFF}, {0xCB, 0x38, 0xFF, 0xFF}, {0xFF, 0x95, 0xC8, 0xFF}, {0xFF, 0x37, 0xC7, 0xFF},
}

// ClassColor returns the drawing color for a class id.
func ClassColor(class int) color.RGBA {
	if class < 0 {
		class = -class
	}
	return palette[class%len(palette)]
}

// Annotate draws labelled boxes on a copy of img and returns the copy.
// The source image is left untouched.
func Annotate(img image.Image, labels []Label) *image.RGBA {
	dc := gg.NewContextForRGBA(cloneRGBA(img))
	lineWidth := float64(max(2, (img.Bounds().Dx()+img.Bounds().Dy())/600))
	dc.SetLineWidth(lineWidth)

	for _, l := range labels {
		c := ClassColor(l.Class)
		x, y := float64(l.Box.X1), float64(l.Box.Y1)
		w, h := float64(l.Box.Width()), float64(l.Box.Height())

		dc.SetColor(c)
		dc.DrawRectangle(x, y, w, h)
		dc.Stroke()

		if l.Text == "" {
			continue
		}
		tw, th := dc.MeasureString(l.Text)
		ty := y - th - 4
		if ty < 0 {
			ty = y
		}
		dc.DrawRectangle(x, ty, tw+4, th+4)
		dc.Fill()
		dc.SetColor(color.White)
		dc.DrawStringAnchored(l.Text, x+2, ty+2, 0, 1)
	}
	return dc.Image().(*image.RGBA)
}

func cloneRGBA(img image.Image) *image.RGBA {
	src := ToRGBA(img)
	out := image.NewRGBA(image.Rect(0, 0, src.Rect.Dx(), src.Rect.Dy()))
	for y := 0; y < out.Rect.Dy(); y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+out.Rect.Dx()*4], src.Pix[y*src.Stride:])
	}
	return out
}
