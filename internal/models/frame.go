package models

import "image"

// Frame is an opaque raster handed through the pipeline. Whoever holds a frame
// closes it; Clone returns an independent copy that must be closed separately.
type Frame interface {
	Clone() Frame
	Empty() bool
	Bounds() image.Rectangle
	Close() error
}
