package services

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"platestation/internal/logger"
	"platestation/internal/models"
	"platestation/internal/services/capture"
	"platestation/internal/services/capture/capturetest"
	"platestation/internal/services/detection"
	"platestation/internal/services/probe"
	"platestation/internal/services/storage"
	"platestation/internal/services/stream"
)

// labelRecognizer answers by frame label.
type labelRecognizer map[string][]detection.RawText

func (r labelRecognizer) ReadText(frame models.Frame, _ string) ([]detection.RawText, error) {
	return r[frame.(*capturetest.Frame).Label], nil
}

type opCanvas struct{}

func (opCanvas) mark(frame models.Frame, op string) error {
	f := frame.(*capturetest.Frame)
	f.Ops = append(f.Ops, op)
	return nil
}

func (c opCanvas) FillPoly(f models.Frame, _ models.Quad, _ color.RGBA) error { return c.mark(f, "fill") }
func (c opCanvas) PutText(f models.Frame, text string, _ image.Point, _ color.RGBA) error {
	return c.mark(f, "text "+text)
}
func (c opCanvas) Polylines(f models.Frame, _ models.Quad, _ color.RGBA, _ int) error {
	return c.mark(f, "outline")
}
func (c opCanvas) Circle(f models.Frame, _ image.Point, _ int, _ color.RGBA) error {
	return c.mark(f, "corner")
}

type shownFrame struct {
	label string
	ops   int
}

type fakePresenter struct {
	mu       sync.Mutex
	frames   []shownFrame
	statuses []string
	logs     []string
	clears   []string
}

func (p *fakePresenter) ShowFrame(frame models.Frame) {
	f := frame.(*capturetest.Frame)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, shownFrame{label: f.Label, ops: len(f.Ops)})
}

func (p *fakePresenter) ShowStatus(message string, _ models.Severity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, message)
}

func (p *fakePresenter) AppendLog(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logs = append(p.logs, line)
}

func (p *fakePresenter) ClearFrame(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clears = append(p.clears, message)
}

func (p *fakePresenter) hasStatus(message string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.statuses {
		if s == message {
			return true
		}
	}
	return false
}

func (p *fakePresenter) shown() []shownFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]shownFrame(nil), p.frames...)
}

type fixedDiscoverer struct {
	sources []models.CameraSource
	err     error
}

func (d fixedDiscoverer) Discover(context.Context) (probe.Discovery, error) {
	return probe.Discovery{Sources: d.sources}, d.err
}

type fileWriter struct{}

func (fileWriter) WriteJPEG(path string, frame models.Frame) error {
	return os.WriteFile(path, []byte(frame.(*capturetest.Frame).Label), 0644)
}

// failingWriter refuses every write, like a full or read-only disk.
type failingWriter struct {
	mu       sync.Mutex
	attempts []string
}

func (w *failingWriter) WriteJPEG(path string, _ models.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts = append(w.attempts, filepath.Base(path))
	return errors.New("no space left on device")
}

func (w *failingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.attempts)
}

type memorySources struct {
	mu     sync.Mutex
	stored []models.CameraSource
}

func (m *memorySources) ReplaceAll(sources []models.CameraSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = append([]models.CameraSource(nil), sources...)
	return nil
}

func (m *memorySources) List() ([]models.CameraSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.CameraSource(nil), m.stored...), nil
}

type harness struct {
	station    *Station
	presenter  *fakePresenter
	opener     *capturetest.Opener
	detections string
	captures   string
}

func newHarness(t *testing.T, opts Options, discoverer Discoverer, sources *memorySources) *harness {
	t.Helper()
	return newHarnessWithWriter(t, opts, discoverer, sources, fileWriter{})
}

func newHarnessWithWriter(t *testing.T, opts Options, discoverer Discoverer, sources *memorySources, writer storage.ImageWriter) *harness {
	t.Helper()

	recognizer := labelRecognizer{
		"f1": {{Text: "ABC123", Confidence: 0.9}},
		"f2": {{Text: "X", Confidence: 0.3}},
		"f3": {{Text: "ZZZ999", Confidence: 0.6}},
	}
	root := t.TempDir()
	h := &harness{
		presenter:  &fakePresenter{},
		opener:     capturetest.NewOpener(),
		detections: filepath.Join(root, "detections"),
		captures:   filepath.Join(root, "captures"),
	}
	if opts.PullInterval == 0 {
		opts.PullInterval = time.Millisecond
	}

	deps := Dependencies{
		Opener:     h.opener,
		Discoverer: discoverer,
		Engine:     detection.NewEngine(recognizer, opCanvas{}, logger.Discard(), detection.Options{}),
		Saver:      storage.NewSaver(writer, h.detections, h.captures, logger.Discard()),
		Presenter:  h.presenter,
	}
	if sources != nil {
		deps.Sources = sources
	}
	h.station = NewStation(deps, opts, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	go h.station.Run(ctx)
	t.Cleanup(func() {
		h.station.Close()
		cancel()
	})
	return h
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (h *harness) discover(t *testing.T) {
	t.Helper()
	if err := h.station.Discover(); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	eventually(t, "discovery", func() bool {
		st, err := h.station.State()
		return err == nil && !st.Discovering
	})
}

func scripted() func() capture.Handle {
	return func() capture.Handle {
		return &capturetest.Handle{Script: []models.Frame{
			capturetest.NewFrame("f1"),
			capturetest.NewFrame("f2"),
			capturetest.NewFrame("f3"),
		}}
	}
}

func plateEntries(entries []models.LogEntry) []string {
	var plates []string
	for _, e := range entries {
		if e.Confidence != nil {
			plates = append(plates, e.Message)
		}
	}
	return plates
}

func TestStation_ThreeFrameScenario(t *testing.T) {
	h := newHarness(t, Options{DetectionEnabled: true}, fixedDiscoverer{sources: []models.CameraSource{models.NewLocalSource(0)}}, nil)
	h.opener.Devices[0] = scripted()

	h.discover(t)
	if !h.presenter.hasStatus("Found 1 cameras") {
		t.Fatalf("missing discovery status: %v", h.presenter.statuses)
	}
	if err := h.station.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	eventually(t, "stream loss", func() bool { return h.presenter.hasStatus(StatusLost) })

	// State runs on the loop, so the loss handling has finished once it returns.
	st, err := h.station.State()
	if err != nil {
		t.Fatal(err)
	}
	if st.Session.State != stream.Idle {
		t.Errorf("session should be idle after loss, got %v", st.Session.State)
	}

	plates := plateEntries(h.station.Log())
	if len(plates) != 2 || plates[0] != "ABC123" || plates[1] != "ZZZ999" {
		t.Errorf("expected plates [ABC123 ZZZ999], got %v", plates)
	}

	shown := h.presenter.shown()
	if len(shown) != 3 {
		t.Fatalf("expected 3 frames shown, got %+v", shown)
	}
	if shown[0].ops == 0 || shown[2].ops == 0 {
		t.Errorf("frames 1 and 3 should be annotated: %+v", shown)
	}
	if shown[1].label != "f2" || shown[1].ops != 0 {
		t.Errorf("frame 2 should be shown without overlay: %+v", shown[1])
	}

	if len(h.presenter.clears) != 1 || h.presenter.clears[0] != StatusStopped {
		t.Errorf("expected one clear with %q, got %v", StatusStopped, h.presenter.clears)
	}
}

func TestStation_AutoSaveOnlyWhenEnabled(t *testing.T) {
	for _, autoSave := range []bool{false, true} {
		t.Run(onOff(autoSave), func(t *testing.T) {
			h := newHarness(t, Options{DetectionEnabled: true, AutoSave: autoSave}, fixedDiscoverer{sources: []models.CameraSource{models.NewLocalSource(0)}}, nil)
			h.opener.Devices[0] = scripted()
			h.discover(t)

			if err := h.station.Start(); err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			eventually(t, "stream loss", func() bool { return h.presenter.hasStatus(StatusLost) })

			files, err := os.ReadDir(h.detections)
			if !autoSave {
				if !os.IsNotExist(err) {
					t.Errorf("auto-save off must not create anything, got %v (%d files)", err, len(files))
				}
				return
			}
			if err != nil {
				t.Fatalf("detections directory missing: %v", err)
			}
			var names []string
			for _, f := range files {
				names = append(names, f.Name())
			}
			if len(names) != 2 || !strings.HasPrefix(names[0], "plate_ABC123_") || !strings.HasPrefix(names[1], "plate_ZZZ999_") {
				t.Errorf("unexpected saved files: %v", names)
			}
		})
	}
}

func TestStation_PersistenceFailureKeepsPipelineRunning(t *testing.T) {
	writer := &failingWriter{}
	h := newHarnessWithWriter(t, Options{DetectionEnabled: true, AutoSave: true}, fixedDiscoverer{sources: []models.CameraSource{models.NewLocalSource(0)}}, nil, writer)
	h.opener.Devices[0] = scripted()
	h.discover(t)

	if err := h.station.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	eventually(t, "stream loss", func() bool { return h.presenter.hasStatus(StatusLost) })
	if _, err := h.station.State(); err != nil {
		t.Fatal(err)
	}

	if n := writer.count(); n != 2 {
		t.Errorf("expected a save attempt per detection, got %d", n)
	}
	plates := plateEntries(h.station.Log())
	if len(plates) != 2 || plates[0] != "ABC123" || plates[1] != "ZZZ999" {
		t.Errorf("failed saves must not touch the log, got %v", plates)
	}
	shown := h.presenter.shown()
	if len(shown) != 3 {
		t.Fatalf("expected every frame shown after failed saves, got %+v", shown)
	}
	if shown[0].ops == 0 || shown[2].ops == 0 {
		t.Errorf("frames with plates should still be annotated: %+v", shown)
	}
}

func TestStation_OpenFailureStaysIdle(t *testing.T) {
	h := newHarness(t, Options{DetectionEnabled: true}, fixedDiscoverer{sources: []models.CameraSource{models.NewLocalSource(7)}}, nil)
	h.discover(t)

	err := h.station.Start()

	var connErr *stream.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	st, _ := h.station.State()
	if st.Session.State != stream.Idle {
		t.Errorf("expected idle, got %v", st.Session.State)
	}
	if !h.presenter.hasStatus(StatusConnectFailed) {
		t.Errorf("missing connect failure status: %v", h.presenter.statuses)
	}
	time.Sleep(10 * time.Millisecond)
	if len(h.presenter.shown()) != 0 {
		t.Error("no frame should be pulled after a failed open")
	}
}

func TestStation_StartRequiresSelection(t *testing.T) {
	h := newHarness(t, Options{}, fixedDiscoverer{}, nil)
	h.discover(t)

	if !h.presenter.hasStatus(StatusNoCameras) {
		t.Errorf("missing empty discovery status: %v", h.presenter.statuses)
	}
	if err := h.station.Start(); !errors.Is(err, ErrNoSelection) {
		t.Errorf("expected ErrNoSelection, got %v", err)
	}
	if !h.presenter.hasStatus(StatusSelectFirst) {
		t.Errorf("missing selection hint: %v", h.presenter.statuses)
	}
}

func TestStation_DiscoveryErrorKeepsCatalog(t *testing.T) {
	cache := &memorySources{stored: []models.CameraSource{models.NewLocalSource(1)}}
	h := newHarness(t, Options{}, fixedDiscoverer{err: errors.New("discovery cancelled")}, cache)

	h.discover(t)

	sources, err := h.station.Sources()
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 1 || sources[0].DeviceIndex != 1 {
		t.Errorf("cached sources should survive a failed pass, got %+v", sources)
	}
}

func TestStation_CachesDiscoveredSources(t *testing.T) {
	cache := &memorySources{}
	found := []models.CameraSource{models.NewLocalSource(0), models.NewIPSource("192.168.1.100", "http://192.168.1.100/video")}
	h := newHarness(t, Options{}, fixedDiscoverer{sources: found}, cache)

	h.discover(t)

	stored, _ := cache.List()
	if len(stored) != 2 || stored[1].Host != "192.168.1.100" {
		t.Errorf("discovery result not cached: %+v", stored)
	}
	st, _ := h.station.State()
	if st.Selected != 0 {
		t.Errorf("first source should be selected, got %d", st.Selected)
	}
}

func TestStation_DetectionDisabledShowsRawFrames(t *testing.T) {
	h := newHarness(t, Options{DetectionEnabled: false}, fixedDiscoverer{sources: []models.CameraSource{models.NewLocalSource(0)}}, nil)
	h.opener.Devices[0] = scripted()
	h.discover(t)

	if err := h.station.Start(); err != nil {
		t.Fatal(err)
	}
	eventually(t, "stream loss", func() bool { return h.presenter.hasStatus(StatusLost) })

	for _, f := range h.presenter.shown() {
		if f.ops != 0 {
			t.Errorf("frame %s annotated with detection off", f.label)
		}
	}
	if plates := plateEntries(h.station.Log()); len(plates) != 0 {
		t.Errorf("no plates expected, got %v", plates)
	}
}

func TestStation_CaptureAndToggles(t *testing.T) {
	h := newHarness(t, Options{PullInterval: 5 * time.Millisecond}, fixedDiscoverer{sources: []models.CameraSource{models.NewLocalSource(0)}}, nil)
	h.opener.Devices[0] = capturetest.Working()
	h.discover(t)

	if _, err := h.station.Capture(); !errors.Is(err, stream.ErrNotOpen) {
		t.Errorf("capture without stream: expected ErrNotOpen, got %v", err)
	}

	if err := h.station.Start(); err != nil {
		t.Fatal(err)
	}
	name, err := h.station.Capture()
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if !strings.HasPrefix(name, "capture_") || !strings.HasSuffix(name, ".jpg") {
		t.Errorf("unexpected capture name %q", name)
	}
	if _, err := os.Stat(filepath.Join(h.captures, name)); err != nil {
		t.Errorf("capture not written: %v", err)
	}

	h.station.SetDetection(true)
	h.station.SetAutoSave(true)
	h.station.SetAutoSave(false)
	if err := h.station.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := h.station.Stop(); err != nil {
		t.Fatal(err)
	}

	var notes []string
	for _, e := range h.station.Log() {
		notes = append(notes, e.Message)
	}
	want := []string{"Image saved: " + name, "Detection enabled", "Auto-save enabled", "Auto-save disabled"}
	if strings.Join(notes, "|") != strings.Join(want, "|") {
		t.Errorf("log = %v, expected %v", notes, want)
	}
}

func TestStation_ProcessImage(t *testing.T) {
	h := newHarness(t, Options{}, fixedDiscoverer{}, nil)

	frame := capturetest.NewFrame("f1")
	detections, err := h.station.ProcessImage(frame, "car.jpg")
	if err != nil {
		t.Fatalf("ProcessImage failed: %v", err)
	}
	if len(detections) != 1 || detections[0].Text != "ABC123" {
		t.Errorf("unexpected detections %+v", detections)
	}
	if frame.Closed() != 1 {
		t.Errorf("input frame should be closed once, got %d", frame.Closed())
	}
	if !h.presenter.hasStatus("Image loaded: car.jpg") {
		t.Errorf("missing image status: %v", h.presenter.statuses)
	}

	entries := h.station.Log()
	if len(entries) != 2 || entries[0].Message != "Processing image: car.jpg" || entries[1].Message != "ABC123" {
		t.Errorf("unexpected log %+v", entries)
	}
}

func TestStation_OperationsAfterCloseFail(t *testing.T) {
	h := newHarness(t, Options{}, fixedDiscoverer{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	other := NewStation(Dependencies{Opener: h.opener, Presenter: h.presenter}, Options{}, logger.Discard())
	done := make(chan struct{})
	go func() {
		other.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if err := other.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
