// Package storage writes annotated detections and manual stills to disk.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"platestation/internal/logger"
	"platestation/internal/models"
)

// ImageWriter encodes a frame and writes it to path.
type ImageWriter interface {
	WriteJPEG(path string, frame models.Frame) error
}

// PersistenceError means an image could not be written.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to save image %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Saver owns the detections and capture directories. Directories are created
// on first write.
type Saver struct {
	writer        ImageWriter
	detectionsDir string
	captureDir    string
	logger        *logger.Logger
	now           func() time.Time

	mu      sync.Mutex
	created map[string]bool
}

// NewSaver creates a Saver that writes through writer.
func NewSaver(writer ImageWriter, detectionsDir, captureDir string, logger *logger.Logger) *Saver {
	return &Saver{
		writer:        writer,
		detectionsDir: detectionsDir,
		captureDir:    captureDir,
		logger:        logger,
		now:           time.Now,
		created:       make(map[string]bool),
	}
}

// Persist saves an annotated frame for one accepted detection as
// plate_<text>_<unix>.jpg and returns the file name.
func (s *Saver) Persist(frame models.Frame, text string) (string, error) {
	name := fmt.Sprintf("plate_%s_%d.jpg", safeName(text), s.now().Unix())
	if err := s.write(s.detectionsDir, name, frame); err != nil {
		return "", err
	}
	s.logger.Info("Detection saved: %s", name)
	return name, nil
}

// SaveCapture saves a still as capture_<unix>.jpg and returns the file name.
func (s *Saver) SaveCapture(frame models.Frame) (string, error) {
	name := fmt.Sprintf("capture_%d.jpg", s.now().Unix())
	if err := s.write(s.captureDir, name, frame); err != nil {
		return "", err
	}
	return name, nil
}

func (s *Saver) write(dir, name string, frame models.Frame) error {
	path := filepath.Join(dir, name)
	if err := s.ensureDir(dir); err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	if err := s.writer.WriteJPEG(path, frame); err != nil {
		s.logger.Error("Error saving image %s: %v", name, err)
		return &PersistenceError{Path: path, Err: err}
	}
	return nil
}

func (s *Saver) ensureDir(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.created[dir] {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.logger.Error("Error creating directory: %v", err)
		return err
	}
	s.created[dir] = true
	return nil
}

// safeName keeps a detection text usable as part of a file name.
func safeName(text string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, text)
}
