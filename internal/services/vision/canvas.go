package vision

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"platestation/internal/models"
)

const (
	fontScale     = 0.8
	fontThickness = 2
	filled        = -1
)

// Canvas draws detections with OpenCV primitives.
type Canvas struct{}

// NewCanvas returns the gocv canvas.
func NewCanvas() *Canvas {
	return &Canvas{}
}

func (c *Canvas) FillPoly(frame models.Frame, quad models.Quad, col color.RGBA) error {
	mat, err := matOf(frame)
	if err != nil {
		return err
	}
	pts := gocv.NewPointsVectorFromPoints([][]image.Point{quad[:]})
	defer pts.Close()
	return gocv.FillPoly(mat, pts, col)
}

func (c *Canvas) PutText(frame models.Frame, text string, at image.Point, col color.RGBA) error {
	mat, err := matOf(frame)
	if err != nil {
		return err
	}
	return gocv.PutText(mat, text, at, gocv.FontHersheySimplex, fontScale, col, fontThickness)
}

func (c *Canvas) Polylines(frame models.Frame, quad models.Quad, col color.RGBA, thickness int) error {
	mat, err := matOf(frame)
	if err != nil {
		return err
	}
	pts := gocv.NewPointsVectorFromPoints([][]image.Point{quad[:]})
	defer pts.Close()
	return gocv.Polylines(mat, pts, true, col, thickness)
}

func (c *Canvas) Circle(frame models.Frame, center image.Point, radius int, col color.RGBA) error {
	mat, err := matOf(frame)
	if err != nil {
		return err
	}
	return gocv.Circle(mat, center, radius, col, filled)
}
