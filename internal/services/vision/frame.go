// Package vision adapts gocv to the station's capture, drawing and image codec
// interfaces.
package vision

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"platestation/internal/models"
)

// ErrNotMat is returned when a frame from another backend reaches a gocv call.
var ErrNotMat = errors.New("vision: frame is not backed by a gocv.Mat")

// MatFrame is a models.Frame backed by an OpenCV matrix.
type MatFrame struct {
	mat gocv.Mat
}

// NewMatFrame takes ownership of mat.
func NewMatFrame(mat gocv.Mat) *MatFrame {
	return &MatFrame{mat: mat}
}

func (f *MatFrame) Clone() models.Frame {
	return &MatFrame{mat: f.mat.Clone()}
}

func (f *MatFrame) Empty() bool {
	return f.mat.Empty()
}

func (f *MatFrame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.mat.Cols(), f.mat.Rows())
}

func (f *MatFrame) Close() error {
	return f.mat.Close()
}

// Mat exposes the matrix for drawing and encoding.
func (f *MatFrame) Mat() *gocv.Mat {
	return &f.mat
}

func matOf(frame models.Frame) (*gocv.Mat, error) {
	mf, ok := frame.(*MatFrame)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotMat, frame)
	}
	if mf.mat.Empty() {
		return nil, errors.New("vision: empty frame")
	}
	return &mf.mat, nil
}
