package stream

import (
	"errors"
	"fmt"

	"platestation/internal/models"
)

var (
	// ErrStreamLost is reported once when a running session stops yielding frames.
	ErrStreamLost = errors.New("stream: connection lost")
	// ErrSessionBusy is returned by Open while a session is already running.
	ErrSessionBusy = errors.New("stream: session already running")
	// ErrNotOpen is returned by CaptureStill when nothing is streaming.
	ErrNotOpen = errors.New("stream: no open session")
	// ErrNoFrame is returned by CaptureStill when the source gave nothing back.
	ErrNoFrame = errors.New("stream: source returned no frame")
)

// ConnectionError means a source could not be opened.
type ConnectionError struct {
	Source models.CameraSource
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("could not connect to %s", e.Source)
	}
	return fmt.Sprintf("could not connect to %s: %v", e.Source, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
