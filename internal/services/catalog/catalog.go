// Package catalog holds the discovered sources and the operator's selection.
// A Catalog is owned by the station loop and is not safe for concurrent use.
package catalog

import (
	"errors"
	"fmt"

	"platestation/internal/models"
)

var (
	// ErrNoSources means there is nothing to select from.
	ErrNoSources = errors.New("catalog: no sources available")
	// ErrIndexOutOfRange is a caller error: the index does not name a source.
	ErrIndexOutOfRange = errors.New("catalog: index out of range")
)

// Catalog is an ordered list of sources plus an optional selected position.
type Catalog struct {
	sources  []models.CameraSource
	selected int
}

// New returns an empty catalog with nothing selected.
func New() *Catalog {
	return &Catalog{selected: -1}
}

// Replace swaps in the result of a discovery pass and clears the selection.
func (c *Catalog) Replace(sources []models.CameraSource) {
	c.sources = append([]models.CameraSource(nil), sources...)
	c.selected = -1
}

// Select marks the source at index as current and returns it.
func (c *Catalog) Select(index int) (models.CameraSource, error) {
	if len(c.sources) == 0 {
		return models.CameraSource{}, ErrNoSources
	}
	if index < 0 || index >= len(c.sources) {
		return models.CameraSource{}, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, index, len(c.sources))
	}
	c.selected = index
	return c.sources[index], nil
}

// Current returns the selected source, if any.
func (c *Catalog) Current() (models.CameraSource, bool) {
	if c.selected < 0 || c.selected >= len(c.sources) {
		return models.CameraSource{}, false
	}
	return c.sources[c.selected], true
}

// SelectedIndex returns the selected position or -1.
func (c *Catalog) SelectedIndex() int {
	return c.selected
}

// Sources returns a copy of the catalog contents.
func (c *Catalog) Sources() []models.CameraSource {
	return append([]models.CameraSource(nil), c.sources...)
}

// Len returns the number of sources.
func (c *Catalog) Len() int {
	return len(c.sources)
}
