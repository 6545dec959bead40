// Package images - Image definition for processing utilities.
package images

import (
	"bytes"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
)

// ImageFormat represents supported image formats
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)

// FormatFromPath guesses the image format from a file extension.
//
// Arguments:
//   - path: The file path.
//
// Returns:
//   - ImageFormat: The format.
//   - error: An error if the extension is not a supported image type.
func FormatFromPath(path string) (ImageFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	case ".png":
		return FormatPNG, nil
	case ".webp":
		return FormatWebP, nil
	default:
		return "", errors.Errorf("unsupported image extension: %q", filepath.Ext(path))
	}
}

// Decode decodes raw encoded bytes into an image. When format is empty the
// format is sniffed from the data.
func Decode(data []byte, format ImageFormat) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("image data is empty")
	}
	r := bytes.NewReader(data)
	var (
		img image.Image
		err error
	)
	switch format {
	case FormatJPEG:
		img, err = jpeg.Decode(r)
	case FormatPNG:
		img, err = png.Decode(r)
	case FormatWebP:
		img, err = webp.Decode(r)
	default:
		img, _, err = image.Decode(r)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s image", formatName(format))
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.Errorf("invalid image dimensions: %dx%d", b.Dx(), b.Dy())
	}
	return img, nil
}

// Load reads and decodes an image file.
func Load(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read image file")
	}
	format, err := FormatFromPath(path)
	if err != nil {
		// Unknown extension, let the registered decoders sniff it.
		format = ""
	}
	return Decode(data, format)
}

// Save encodes img according to the extension of path and writes it.
func Save(path string, img image.Image) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	switch format {
	case FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})
	case FormatPNG:
		err = png.Encode(&buf, img)
	case FormatWebP:
		err = webp.Encode(&buf, img, &webp.Options{Quality: 90})
	}
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	return errors.Wrap(os.WriteFile(path, buf.Bytes(), 0o644), "failed to write image")
}

// ToRGBA returns img as an *image.RGBA whose bounds start at the origin,
// copying only when necessary.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func formatName(f ImageFormat) string {
	if f == "" {
		return "auto-detected"
	}
	return string(f)
}
