// Package detection turns a frame into plate detections and an annotated copy.
package detection

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"time"

	"platestation/internal/logger"
	"platestation/internal/models"
)

const (
	// DefaultThreshold is the confidence a raw result must exceed to be kept.
	DefaultThreshold = 0.5
	// DefaultAllowlist restricts recognition to plate characters.
	DefaultAllowlist = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-"
)

var (
	// AccentColor fills and outlines each detected region.
	AccentColor = color.RGBA{R: 242, G: 56, B: 166, A: 255}
	// TextColor is used for the label.
	TextColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	// CornerColors marks the four points of a region, by index.
	CornerColors = [4]color.RGBA{
		{R: 0, G: 0, B: 255, A: 255},
		{R: 0, G: 255, B: 0, A: 255},
		{R: 255, G: 0, B: 0, A: 255},
		{R: 255, G: 255, B: 0, A: 255},
	}
)

const (
	outlineThickness = 3
	cornerRadius     = 5
)

// RawText is one region reported by the recognizer, before filtering.
type RawText struct {
	Quad       models.Quad
	Text       string
	Confidence float64
}

// Recognizer reads text regions from a frame, limited to allowlist characters.
type Recognizer interface {
	ReadText(frame models.Frame, allowlist string) ([]RawText, error)
}

// Canvas draws on frames in place.
type Canvas interface {
	FillPoly(frame models.Frame, quad models.Quad, c color.RGBA) error
	PutText(frame models.Frame, text string, at image.Point, c color.RGBA) error
	Polylines(frame models.Frame, quad models.Quad, c color.RGBA, thickness int) error
	Circle(frame models.Frame, center image.Point, radius int, c color.RGBA) error
}

// Recorder observes per-frame outcomes. metrics.Metrics implements it.
type Recorder interface {
	ObserveDetections(accepted, rejected int)
	ObserveRecognitionError()
}

type noopRecorder struct{}

func (noopRecorder) ObserveDetections(int, int) {}
func (noopRecorder) ObserveRecognitionError()   {}

// RecognitionError wraps a recognizer failure for one frame.
type RecognitionError struct {
	Err error
}

func (e *RecognitionError) Error() string { return fmt.Sprintf("recognition failed: %v", e.Err) }

func (e *RecognitionError) Unwrap() error { return e.Err }

// Options configure an Engine.
type Options struct {
	// Threshold overrides DefaultThreshold when set. Zero accepts every
	// result with a positive confidence.
	Threshold *float64
	Allowlist string
	Recorder  Recorder
}

// Engine runs recognition and annotation for one frame at a time.
type Engine struct {
	recognizer Recognizer
	canvas     Canvas
	logger     *logger.Logger
	recorder   Recorder
	threshold  float64
	allowlist  string
	now        func() time.Time
}

// NewEngine creates an Engine. Unset options fall back to the defaults.
func NewEngine(recognizer Recognizer, canvas Canvas, logger *logger.Logger, opts Options) *Engine {
	e := &Engine{
		recognizer: recognizer,
		canvas:     canvas,
		logger:     logger,
		recorder:   opts.Recorder,
		threshold:  DefaultThreshold,
		allowlist:  opts.Allowlist,
		now:        time.Now,
	}
	if opts.Threshold != nil {
		e.threshold = *opts.Threshold
	}
	if e.allowlist == "" {
		e.allowlist = DefaultAllowlist
	}
	if e.recorder == nil {
		e.recorder = noopRecorder{}
	}
	return e
}

// Threshold returns the confidence gate in use.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Process recognizes text on frame and returns an annotated copy together with
// the accepted detections. frame itself is never drawn on. The returned frame
// is always usable: when recognition fails it is an unannotated copy and the
// error is a *RecognitionError.
func (e *Engine) Process(frame models.Frame) (models.Frame, []models.DetectionResult, error) {
	annotated := frame.Clone()

	raw, err := e.recognize(frame)
	if err != nil {
		e.recorder.ObserveRecognitionError()
		e.logger.Error("Error processing frame: %v", err)
		return annotated, nil, &RecognitionError{Err: err}
	}

	now := e.now()
	var (
		detections []models.DetectionResult
		rejected   int
	)
	for _, r := range raw {
		if r.Confidence <= e.threshold {
			rejected++
			continue
		}
		text := e.sanitize(r.Text)
		if text == "" {
			rejected++
			continue
		}

		det := models.DetectionResult{
			Text:       text,
			Confidence: r.Confidence,
			Quad:       r.Quad,
			Timestamp:  now,
		}
		if err := e.annotate(annotated, det); err != nil {
			e.logger.Error("Error drawing detection %s: %v", det.Text, err)
		}
		detections = append(detections, det)
	}

	e.recorder.ObserveDetections(len(detections), rejected)
	return annotated, detections, nil
}

func (e *Engine) recognize(frame models.Frame) (raw []RawText, err error) {
	defer func() {
		if r := recover(); r != nil {
			raw, err = nil, fmt.Errorf("recognizer panic: %v", r)
		}
	}()
	return e.recognizer.ReadText(frame, e.allowlist)
}

// annotate draws one detection. Every step is attempted even if an earlier one
// fails; the errors are joined.
func (e *Engine) annotate(frame models.Frame, det models.DetectionResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(err, fmt.Errorf("canvas panic: %v", r))
		}
	}()

	label := fmt.Sprintf("%s (%.2f)", det.Text, det.Confidence)
	errs := []error{
		e.canvas.FillPoly(frame, det.Quad, AccentColor),
		e.canvas.PutText(frame, label, det.Quad[0], TextColor),
		e.canvas.Polylines(frame, det.Quad, AccentColor, outlineThickness),
	}
	for i, pt := range det.Quad {
		errs = append(errs, e.canvas.Circle(frame, pt, cornerRadius, CornerColors[i]))
	}
	return errors.Join(errs...)
}

// sanitize upper-cases text and drops characters outside the allowlist.
func (e *Engine) sanitize(text string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(e.allowlist, r) {
			return r
		}
		return -1
	}, strings.ToUpper(strings.TrimSpace(text)))
}
