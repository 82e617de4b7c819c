package models

import (
	"image"
	"time"
)

// Quad is the region of a recognized text, four points in the order the
// recognizer reports them (top-left, top-right, bottom-right, bottom-left).
type Quad [4]image.Point

// DetectionResult is a single text region accepted for one frame.
// It is never mutated after creation.
type DetectionResult struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Quad       Quad      `json:"quad"`
	Timestamp  time.Time `json:"timestamp"`
}
