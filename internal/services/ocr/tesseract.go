// Package ocr reads plate text with Tesseract.
package ocr

import (
	"fmt"
	"image"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"

	"platestation/internal/models"
	"platestation/internal/services/detection"
	"platestation/internal/services/vision"
)

// TesseractRecognizer implements detection.Recognizer over a single gosseract
// client. Calls are serialised because the client is not safe for concurrent use.
type TesseractRecognizer struct {
	client *gosseract.Client
	mu     sync.Mutex
}

// NewTesseractRecognizer loads the given languages. It fails when the
// Tesseract data for any of them is missing.
func NewTesseractRecognizer(languages ...string) (*TesseractRecognizer, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage(languages...); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	return &TesseractRecognizer{client: client}, nil
}

// ReadText returns every word Tesseract finds, with confidence scaled to [0,1].
func (r *TesseractRecognizer) ReadText(frame models.Frame, allowlist string) ([]detection.RawText, error) {
	mf, ok := frame.(*vision.MatFrame)
	if !ok {
		return nil, fmt.Errorf("%w: %T", vision.ErrNotMat, frame)
	}

	buf, err := gocv.IMEncode(".png", *mf.Mat())
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.SetWhitelist(allowlist); err != nil {
		return nil, fmt.Errorf("failed to set whitelist: %w", err)
	}
	if err := r.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return nil, fmt.Errorf("failed to set OCR image: %w", err)
	}
	boxes, err := r.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("failed to get bounding boxes: %w", err)
	}

	return toRawText(boxes), nil
}

// Close releases the Tesseract client.
func (r *TesseractRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client.Close()
}

func toRawText(boxes []gosseract.BoundingBox) []detection.RawText {
	out := make([]detection.RawText, 0, len(boxes))
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		out = append(out, detection.RawText{
			Quad:       QuadFromRect(box.Box),
			Text:       box.Word,
			Confidence: box.Confidence / 100,
		})
	}
	return out
}

// QuadFromRect lists the corners of r clockwise from the top-left.
func QuadFromRect(r image.Rectangle) models.Quad {
	return models.Quad{
		{X: r.Min.X, Y: r.Min.Y},
		{X: r.Max.X, Y: r.Min.Y},
		{X: r.Max.X, Y: r.Max.Y},
		{X: r.Min.X, Y: r.Max.Y},
	}
}
