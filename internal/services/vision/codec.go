package vision

import (
	"fmt"
	"image"
	"math"
	"os"

	"gocv.io/x/gocv"

	"platestation/internal/models"
)

const (
	// DisplayWidth and DisplayHeight bound the frame pushed to viewers.
	DisplayWidth  = 800
	DisplayHeight = 600
)

// Codec encodes frames to JPEG and decodes uploaded images.
type Codec struct{}

// NewCodec returns the gocv codec.
func NewCodec() *Codec {
	return &Codec{}
}

// EncodeJPEG encodes the frame at full size.
func (c *Codec) EncodeJPEG(frame models.Frame) ([]byte, error) {
	mat, err := matOf(frame)
	if err != nil {
		return nil, err
	}
	return encode(*mat)
}

// EncodeForDisplay fits the frame inside DisplayWidth x DisplayHeight keeping
// its aspect ratio, then encodes it. Frames that already fit are not scaled up.
func (c *Codec) EncodeForDisplay(frame models.Frame) ([]byte, error) {
	mat, err := matOf(frame)
	if err != nil {
		return nil, err
	}

	size := FitSize(image.Pt(mat.Cols(), mat.Rows()), image.Pt(DisplayWidth, DisplayHeight))
	if size.X == mat.Cols() && size.Y == mat.Rows() {
		return encode(*mat)
	}

	resized := gocv.NewMat()
	defer resized.Close()
	if err := gocv.Resize(*mat, &resized, size, 0, 0, gocv.InterpolationArea); err != nil {
		return nil, fmt.Errorf("failed to resize frame: %w", err)
	}
	return encode(resized)
}

// WriteJPEG writes the frame to path.
func (c *Codec) WriteJPEG(path string, frame models.Frame) error {
	data, err := c.EncodeJPEG(frame)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Decode reads an encoded image into a frame.
func (c *Codec) Decode(data []byte) (models.Frame, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("failed to decode image: empty result")
	}
	return NewMatFrame(mat), nil
}

func encode(mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(".jpg", mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return data, nil
}

// FitSize scales size down to fit within bounds, preserving aspect ratio.
func FitSize(size, bounds image.Point) image.Point {
	if size.X <= 0 || size.Y <= 0 {
		return size
	}
	if size.X <= bounds.X && size.Y <= bounds.Y {
		return size
	}
	scale := float64(bounds.X) / float64(size.X)
	if s := float64(bounds.Y) / float64(size.Y); s < scale {
		scale = s
	}
	w := int(math.Round(float64(size.X) * scale))
	h := int(math.Round(float64(size.Y) * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return image.Pt(w, h)
}
