package repository

import "platestation/internal/models"

// SourceRepository caches the result of the last discovery pass so the catalog
// is not empty at startup.
type SourceRepository interface {
	// ReplaceAll stores sources in order, dropping whatever was cached before.
	ReplaceAll(sources []models.CameraSource) error
	// List returns the cached sources in discovery order.
	List() ([]models.CameraSource, error)
}
