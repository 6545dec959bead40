// Package capture reads frames from OpenCV capture devices and shows them in
// HighGUI windows.
package capture

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ErrEmptyFrame is returned when the device yields no frame.
var ErrEmptyFrame = errors.New("empty image received")

// Webcam is an open video capture device.
type Webcam struct {
	device int
	vc     *gocv.VideoCapture
	frame  gocv.Mat
}

// Open opens a capture device by index.
//
// Arguments:
//   - device: The V4L2/DirectShow device index.
//
// Returns:
//   - *Webcam: The open device.
//   - error: An error if the device cannot be opened.
func Open(device int) (*Webcam, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("cannot open capture device %v: %w", device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("capture device %v is not available", device)
	}
	return &Webcam{device: device, vc: vc, frame: gocv.NewMat()}, nil
}

// Read grabs the next frame as an RGBA image.
func (w *Webcam) Read() (image.Image, error) {
	if w.vc == nil {
		return nil, fmt.Errorf("capture device %v is closed", w.device)
	}
	if ok := w.vc.Read(&w.frame); !ok || w.frame.Empty() {
		return nil, ErrEmptyFrame
	}
	img, err := w.frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("cannot convert frame: %w", err)
	}
	return img, nil
}

// Close releases the device. Calling it more than once is a no-op.
func (w *Webcam) Close() error {
	if w.vc == nil {
		return nil
	}
	err := w.vc.Close()
	w.frame.Close()
	w.vc = nil
	return err
}

// Window is a HighGUI display window.
type Window struct {
	win *gocv.Window
}

// NewWindow opens a display window.
func NewWindow(name string) *Window {
	return &Window{win: gocv.NewWindow(name)}
}

// Show draws img in the window.
func (w *Window) Show(img image.Image) error {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("cannot convert image: %w", err)
	}
	defer mat.Close()
	if err := w.win.IMShow(mat); err != nil {
		return fmt.Errorf("cannot show frame: %w", err)
	}
	return nil
}

// WaitKey pumps the window event loop for up to delay milliseconds and
// returns the pressed key, or -1.
func (w *Window) WaitKey(delay int) int {
	return w.win.WaitKey(delay)
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.win.Close()
}
