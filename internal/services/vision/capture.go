package vision

import (
	"fmt"

	"gocv.io/x/gocv"

	"platestation/internal/models"
	"platestation/internal/services/capture"
)

// Opener opens local devices and network URLs through gocv.VideoCapture.
type Opener struct{}

// NewOpener returns the gocv-backed opener.
func NewOpener() *Opener {
	return &Opener{}
}

func (o *Opener) OpenDevice(index int) (capture.Handle, error) {
	vc, err := gocv.VideoCaptureDevice(index)
	if err != nil {
		return nil, fmt.Errorf("failed to open device %d: %w", index, err)
	}
	return &videoHandle{capture: vc}, nil
}

func (o *Opener) OpenURL(url string) (capture.Handle, error) {
	vc, err := gocv.OpenVideoCapture(url)
	if err != nil {
		return nil, fmt.Errorf("failed to open video capture: %w", err)
	}
	return &videoHandle{capture: vc}, nil
}

type videoHandle struct {
	capture *gocv.VideoCapture
	closed  bool
}

func (h *videoHandle) IsOpened() bool {
	return !h.closed && h.capture.IsOpened()
}

// Read returns a new matrix per call; the caller owns it.
func (h *videoHandle) Read() (models.Frame, bool) {
	if h.closed {
		return nil, false
	}
	img := gocv.NewMat()
	if !h.capture.Read(&img) || img.Empty() {
		img.Close()
		return nil, false
	}
	return NewMatFrame(img), true
}

func (h *videoHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	return h.capture.Close()
}
