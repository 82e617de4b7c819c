package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"platestation/internal/logger"
	"platestation/internal/models"
	"platestation/internal/services/capture/capturetest"
)

type fileWriter struct {
	paths []string
	err   error
}

func (w *fileWriter) WriteJPEG(path string, frame models.Frame) error {
	if w.err != nil {
		return w.err
	}
	w.paths = append(w.paths, path)
	return os.WriteFile(path, []byte(frame.(*capturetest.Frame).Label), 0644)
}

func newSaver(t *testing.T, w ImageWriter) (*Saver, string) {
	t.Helper()
	root := t.TempDir()
	s := NewSaver(w, filepath.Join(root, "detections"), filepath.Join(root, "captures"), logger.Discard())
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	return s, root
}

func TestPersist_CreatesDirectoryLazily(t *testing.T) {
	w := &fileWriter{}
	s, root := newSaver(t, w)

	if _, err := os.Stat(filepath.Join(root, "detections")); !os.IsNotExist(err) {
		t.Fatal("directory should not exist before the first write")
	}

	name, err := s.Persist(capturetest.NewFrame("annotated"), "ABC123")
	if err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if name != "plate_ABC123_1700000000.jpg" {
		t.Errorf("unexpected name %q", name)
	}

	data, err := os.ReadFile(filepath.Join(root, "detections", name))
	if err != nil {
		t.Fatalf("file not written: %v", err)
	}
	if string(data) != "annotated" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestPersist_SanitizesName(t *testing.T) {
	s, _ := newSaver(t, &fileWriter{})

	name, err := s.Persist(capturetest.NewFrame("x"), "A/B 1")
	if err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if name != "plate_A_B_1_1700000000.jpg" {
		t.Errorf("unexpected name %q", name)
	}
}

func TestSaveCapture(t *testing.T) {
	s, root := newSaver(t, &fileWriter{})

	name, err := s.SaveCapture(capturetest.NewFrame("still"))
	if err != nil {
		t.Fatalf("SaveCapture failed: %v", err)
	}
	if name != "capture_1700000000.jpg" {
		t.Errorf("unexpected name %q", name)
	}
	if _, err := os.Stat(filepath.Join(root, "captures", name)); err != nil {
		t.Errorf("capture missing: %v", err)
	}
}

func TestPersist_WriterError(t *testing.T) {
	s, _ := newSaver(t, &fileWriter{err: errors.New("disk full")})

	_, err := s.Persist(capturetest.NewFrame("x"), "ABC")

	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if filepath.Base(perr.Path) != "plate_ABC_1700000000.jpg" {
		t.Errorf("unexpected path %q", perr.Path)
	}
}

func TestPersist_UnwritableDirectory(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	s := NewSaver(&fileWriter{}, filepath.Join(blocker, "detections"), root, logger.Discard())

	if _, err := s.Persist(capturetest.NewFrame("x"), "ABC"); err == nil {
		t.Error("expected an error when the directory cannot be created")
	}
}
