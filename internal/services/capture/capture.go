// Package capture defines the narrow view the station has of the frame-capture
// engine: open a device or URL, check it, read frames, release it.
package capture

import (
	"fmt"

	"platestation/internal/models"
)

// Handle is an open capture source. It has exactly one reader at a time and
// must be closed explicitly.
type Handle interface {
	IsOpened() bool
	// Read returns the next frame. ok is false when the source produced nothing.
	// The returned frame belongs to the caller.
	Read() (frame models.Frame, ok bool)
	Close() error
}

// Opener creates handles.
type Opener interface {
	OpenDevice(index int) (Handle, error)
	OpenURL(url string) (Handle, error)
}

// Open resolves a source descriptor to a handle.
func Open(opener Opener, source models.CameraSource) (Handle, error) {
	switch source.Kind {
	case models.SourceLocal:
		return opener.OpenDevice(source.DeviceIndex)
	case models.SourceIP:
		return opener.OpenURL(source.URL)
	default:
		return nil, fmt.Errorf("unknown source kind %q", source.Kind)
	}
}
