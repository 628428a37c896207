package cv

import (
	"fmt"
	"image"
	"image/color"

	"github.com/kbinani/screenshot"

	"jordanella.com/autoclick-go/internal/display"
)

// FrameSource captures the pixels of one monitor rectangle
type FrameSource interface {
	Capture(m display.Monitor) (*image.RGBA, error)
}

// ScreenSource captures monitors from the live desktop
type ScreenSource struct{}

// NewScreenSource creates a frame source backed by the OS screen grabber
func NewScreenSource() *ScreenSource {
	return &ScreenSource{}
}

// Capture grabs the exact monitor rectangle and drops the alpha channel
func (s *ScreenSource) Capture(m display.Monitor) (*image.RGBA, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid monitor dimensions: %dx%d", m.Width, m.Height)
	}

	img, err := screenshot.CaptureRect(m.Bounds())
	if err != nil {
		return nil, fmt.Errorf("failed to capture monitor %s: %w", m, err)
	}

	frame := Opaque(img)
	if frame.Rect.Dx() != m.Width || frame.Rect.Dy() != m.Height {
		return nil, fmt.Errorf("capture size mismatch: expected %dx%d, got %dx%d",
			m.Width, m.Height, frame.Rect.Dx(), frame.Rect.Dy())
	}
	return frame, nil
}

// Opaque converts any image to an RGBA buffer anchored at (0,0) with every
// alpha byte set to 255. Colour comparison downstream uses R, G and B only.
func Opaque(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	// Screen grabs arrive as RGBA; the alpha byte is simply discarded
	if src, ok := img.(*image.RGBA); ok {
		for y := 0; y < bounds.Dy(); y++ {
			srcRow := src.Pix[src.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			dstRow := out.Pix[y*out.Stride:]
			for x := 0; x < bounds.Dx(); x++ {
				i := x * 4
				dstRow[i] = srcRow[i]
				dstRow[i+1] = srcRow[i+1]
				dstRow[i+2] = srcRow[i+2]
				dstRow[i+3] = 255
			}
		}
		return out
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			i := out.PixOffset(x-bounds.Min.X, y-bounds.Min.Y)
			out.Pix[i] = c.R
			out.Pix[i+1] = c.G
			out.Pix[i+2] = c.B
			out.Pix[i+3] = 255
		}
	}
	return out
}
