package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"platestation/internal/config"
	"platestation/internal/logger"
	"platestation/internal/models"
	"platestation/internal/repository"
	"platestation/internal/services/capture"
	"platestation/internal/services/catalog"
	"platestation/internal/services/journal"
	"platestation/internal/services/loop"
	"platestation/internal/services/probe"
	"platestation/internal/services/stream"
)

// Presenter renders the operator view. The websocket hub implements it.
type Presenter interface {
	ShowFrame(frame models.Frame)
	ShowStatus(message string, severity models.Severity)
	AppendLog(line string)
	ClearFrame(message string)
}

// Discoverer runs one discovery pass. probe.Probe implements it.
type Discoverer interface {
	Discover(ctx context.Context) (probe.Discovery, error)
}

// FrameProcessor recognizes and annotates one frame. detection.Engine implements it.
type FrameProcessor interface {
	Process(frame models.Frame) (models.Frame, []models.DetectionResult, error)
}

// ImageSaver writes detections and stills. storage.Saver implements it.
type ImageSaver interface {
	Persist(frame models.Frame, text string) (string, error)
	SaveCapture(frame models.Frame) (string, error)
}

// Observer receives pipeline counters. metrics.Metrics implements it.
type Observer interface {
	ObserveFrame()
	ObserveStreamLost()
	ObservePersistenceFailure()
	SetSessionState(current string, all ...string)
}

type noopObserver struct{}

func (noopObserver) ObserveFrame()                      {}
func (noopObserver) ObserveStreamLost()                 {}
func (noopObserver) ObservePersistenceFailure()         {}
func (noopObserver) SetSessionState(string, ...string) {}

var sessionStates = []string{
	stream.Idle.String(),
	stream.Running.String(),
	stream.Stopping.String(),
	stream.Error.String(),
}

// Status messages shown to the operator.
const (
	StatusSearching     = "Searching for cameras..."
	StatusNoCameras     = "No cameras found"
	StatusSelectFirst   = "Select a camera first"
	StatusConnectFailed = "Could not connect to the camera"
	StatusStreaming     = "Streaming..."
	StatusStopped       = "Stream stopped"
	StatusLost          = "Lost connection to the camera"
	StatusNoStream      = "No active stream"
)

// Dependencies are the collaborators a Station drives. Sources and Metrics
// are optional.
type Dependencies struct {
	Opener     capture.Opener
	Discoverer Discoverer
	Engine     FrameProcessor
	Saver      ImageSaver
	Presenter  Presenter
	Sources    repository.SourceRepository
	Metrics    Observer
}

// Options are the runtime switches of a Station.
type Options struct {
	PullInterval     time.Duration
	ReadRetries      int
	LogCapacity      int
	DetectionEnabled bool
	AutoSave         bool
}

// OptionsFromConfig maps the loaded configuration onto station options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PullInterval:     cfg.PullInterval,
		ReadRetries:      cfg.ReadRetries,
		LogCapacity:      cfg.LogCapacity,
		DetectionEnabled: cfg.DetectionEnabled,
		AutoSave:         cfg.AutoSave,
	}
}

// State is a read-only view of the station for the control API.
type State struct {
	Session          stream.Snapshot       `json:"session"`
	Sources          []models.CameraSource `json:"sources"`
	Selected         int                   `json:"selected"`
	DetectionEnabled bool                  `json:"detection_enabled"`
	AutoSave         bool                  `json:"auto_save"`
	Discovering      bool                  `json:"discovering"`
	Status           string                `json:"status"`
	Severity         models.Severity       `json:"severity"`
}

// Station wires discovery, streaming, detection and persistence for one
// operator. Every field below the loop is only touched by tasks on the loop;
// exported methods are safe from any goroutine.
type Station struct {
	loop       *loop.Loop
	logger     *logger.Logger
	journal    *journal.Journal
	discoverer Discoverer
	engine     FrameProcessor
	saver      ImageSaver
	presenter  Presenter
	sources    repository.SourceRepository
	metrics    Observer

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	catalog          *catalog.Catalog
	session          *stream.Session
	detectionEnabled bool
	autoSave         bool
	discovering      bool
	status           string
	severity         models.Severity
}

// NewStation builds an idle station. Nothing runs until Run is called.
func NewStation(deps Dependencies, opts Options, logger *logger.Logger) *Station {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Station{
		loop:             loop.New(64),
		logger:           logger,
		journal:          journal.New(opts.LogCapacity),
		discoverer:       deps.Discoverer,
		engine:           deps.Engine,
		saver:            deps.Saver,
		presenter:        deps.Presenter,
		sources:          deps.Sources,
		metrics:          deps.Metrics,
		ctx:              ctx,
		cancel:           cancel,
		catalog:          catalog.New(),
		detectionEnabled: opts.DetectionEnabled,
		autoSave:         opts.AutoSave,
		status:           "Ready",
		severity:         models.SeverityInfo,
	}
	if s.metrics == nil {
		s.metrics = noopObserver{}
	}
	s.session = stream.NewSession(deps.Opener, s.loop, s, logger, stream.Options{
		Interval:    opts.PullInterval,
		ReadRetries: opts.ReadRetries,
	})
	s.journal.OnAppend(func(entry models.LogEntry) {
		s.presenter.AppendLog(entry.Line())
	})
	return s
}

// Run executes the station loop until ctx is cancelled. The cached source
// list, if any, is loaded first.
func (s *Station) Run(ctx context.Context) {
	s.loop.Post(s.loadCachedSources)
	s.logger.Info("🎬 Station started - detection %s, auto-save %s", onOff(s.detectionEnabled), onOff(s.autoSave))
	s.loop.Run(ctx)
	s.cancel()
}

// Close stops any running session and aborts a pending discovery.
func (s *Station) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.call(func() error {
			s.session.Stop()
			return nil
		})
		s.logger.Info("🛑 Station closed")
	})
	return err
}

// Discover starts a discovery pass in the background. The result replaces the
// catalog when it arrives.
func (s *Station) Discover() error {
	return s.call(func() error {
		if s.discovering {
			return ErrDiscoveryRunning
		}
		s.discovering = true
		s.setStatus(StatusSearching, models.SeverityWarning)
		go s.runDiscovery()
		return nil
	})
}

func (s *Station) runDiscovery() {
	result, err := s.discoverer.Discover(s.ctx)
	s.loop.Post(func() { s.finishDiscovery(result, err) })
}

func (s *Station) finishDiscovery(result probe.Discovery, err error) {
	s.discovering = false
	if err != nil {
		s.logger.Error("Error searching for cameras: %v", err)
		s.setStatus(fmt.Sprintf("Error searching for cameras: %v", err), models.SeverityError)
		return
	}

	s.catalog.Replace(result.Sources)
	if s.sources != nil {
		if err := s.sources.ReplaceAll(result.Sources); err != nil {
			s.logger.Warning("Failed to cache discovered sources: %v", err)
		}
	}

	if s.catalog.Len() == 0 {
		s.setStatus(StatusNoCameras, models.SeverityError)
		return
	}
	s.catalog.Select(0)
	s.setStatus(fmt.Sprintf("Found %d cameras", s.catalog.Len()), models.SeveritySuccess)
}

func (s *Station) loadCachedSources() {
	if s.sources == nil {
		return
	}
	cached, err := s.sources.List()
	if err != nil {
		s.logger.Warning("Failed to load cached sources: %v", err)
		return
	}
	if len(cached) == 0 || s.catalog.Len() > 0 {
		return
	}
	s.catalog.Replace(cached)
	s.logger.Info("Loaded %d cached source(s)", len(cached))
	s.setStatus(fmt.Sprintf("Loaded %d cached cameras", len(cached)), models.SeverityInfo)
}

// Sources returns the catalog contents.
func (s *Station) Sources() ([]models.CameraSource, error) {
	var out []models.CameraSource
	err := s.call(func() error {
		out = s.catalog.Sources()
		return nil
	})
	return out, err
}

// Select makes the source at index current.
func (s *Station) Select(index int) (models.CameraSource, error) {
	var source models.CameraSource
	err := s.call(func() error {
		var err error
		source, err = s.catalog.Select(index)
		if err != nil {
			return err
		}
		s.setStatus("Camera selected: "+source.DisplayName, models.SeverityInfo)
		return nil
	})
	return source, err
}

// Start opens the selected source and begins streaming.
func (s *Station) Start() error {
	return s.call(func() error {
		source, ok := s.catalog.Current()
		if !ok {
			s.setStatus(StatusSelectFirst, models.SeverityWarning)
			return ErrNoSelection
		}

		if err := s.session.Open(source); err != nil {
			if errors.Is(err, stream.ErrSessionBusy) {
				return err
			}
			s.logger.Error("Failed to start stream on %s: %v", source, err)
			s.setStatus(StatusConnectFailed, models.SeverityError)
			return err
		}
		s.setStatus(StatusStreaming, models.SeveritySuccess)
		return nil
	})
}

// Stop ends the current session. It is safe to call at any time.
func (s *Station) Stop() error {
	return s.call(func() error {
		s.stopStream(StatusStopped, models.SeverityInfo)
		return nil
	})
}

func (s *Station) stopStream(status string, severity models.Severity) {
	s.session.Stop()
	s.setStatus(status, severity)
	s.presenter.ClearFrame(StatusStopped)
}

// Capture saves one still from the running stream and returns its file name.
func (s *Station) Capture() (string, error) {
	var name string
	err := s.call(func() error {
		frame, err := s.session.CaptureStill()
		if err != nil {
			s.setStatus(StatusNoStream, models.SeverityWarning)
			return err
		}
		defer frame.Close()

		name, err = s.saver.SaveCapture(frame)
		if err != nil {
			s.metrics.ObservePersistenceFailure()
			s.setStatus("Could not save image", models.SeverityError)
			return err
		}
		s.journal.Note("Image saved: " + name)
		s.setStatus("Image saved as "+name, models.SeveritySuccess)
		return nil
	})
	return name, err
}

// SetDetection turns recognition on live frames on or off.
func (s *Station) SetDetection(enabled bool) error {
	return s.call(func() error {
		s.detectionEnabled = enabled
		if enabled {
			s.journal.Note("Detection enabled")
		} else {
			s.journal.Note("Detection disabled")
		}
		return nil
	})
}

// SetAutoSave turns saving of annotated detections on or off.
func (s *Station) SetAutoSave(enabled bool) error {
	return s.call(func() error {
		s.autoSave = enabled
		if enabled {
			s.journal.Note("Auto-save enabled")
		} else {
			s.journal.Note("Auto-save disabled")
		}
		return nil
	})
}

// ProcessImage runs detection on a single still and displays the result. The
// station takes ownership of frame.
func (s *Station) ProcessImage(frame models.Frame, name string) ([]models.DetectionResult, error) {
	var detections []models.DetectionResult
	err := s.call(func() error {
		defer frame.Close()

		s.journal.Note("Processing image: " + name)
		var annotated models.Frame
		annotated, detections = s.analyze(frame)
		defer annotated.Close()

		s.presenter.ShowFrame(annotated)
		s.setStatus("Image loaded: "+name, models.SeveritySuccess)
		return nil
	})
	if errors.Is(err, ErrClosed) {
		frame.Close()
	}
	return detections, err
}

// Log returns the detection log, oldest first.
func (s *Station) Log() []models.LogEntry {
	return s.journal.Entries()
}

// State returns a snapshot of the station.
func (s *Station) State() (State, error) {
	var st State
	err := s.call(func() error {
		st = State{
			Session:          s.session.Snapshot(),
			Sources:          s.catalog.Sources(),
			Selected:         s.catalog.SelectedIndex(),
			DetectionEnabled: s.detectionEnabled,
			AutoSave:         s.autoSave,
			Discovering:      s.discovering,
			Status:           s.status,
			Severity:         s.severity,
		}
		return nil
	})
	return st, err
}

// OnFrame handles one pulled frame.
func (s *Station) OnFrame(frame models.Frame) {
	defer frame.Close()
	s.metrics.ObserveFrame()

	if !s.detectionEnabled {
		s.presenter.ShowFrame(frame)
		return
	}

	annotated, _ := s.analyze(frame)
	defer annotated.Close()
	s.presenter.ShowFrame(annotated)
}

// OnStreamLost returns the session to Idle and tells the operator.
func (s *Station) OnStreamLost(source models.CameraSource, err error) {
	s.metrics.ObserveStreamLost()
	s.logger.Warning("⚠️  Stream from %s lost: %v", source, err)
	s.stopStream(StatusLost, models.SeverityError)
}

// OnStateChange mirrors the session state into the metrics.
func (s *Station) OnStateChange(snapshot stream.Snapshot) {
	s.metrics.SetSessionState(snapshot.State.String(), sessionStates...)
}

// analyze runs the engine on frame, records every detection and saves the
// annotated copy when auto-save is on. The returned frame belongs to the caller.
func (s *Station) analyze(frame models.Frame) (models.Frame, []models.DetectionResult) {
	annotated, detections, err := s.engine.Process(frame)
	if annotated == nil {
		annotated = frame.Clone()
	}
	if err != nil {
		return annotated, nil
	}

	for _, det := range detections {
		s.journal.Plate(det.Text, det.Confidence)
		if s.autoSave {
			if _, err := s.saver.Persist(annotated, det.Text); err != nil {
				s.metrics.ObservePersistenceFailure()
			}
		}
	}
	return annotated, detections
}

func (s *Station) setStatus(message string, severity models.Severity) {
	s.status = message
	s.severity = severity
	s.presenter.ShowStatus(message, severity)
}

// call runs fn on the loop and returns its error.
func (s *Station) call(fn func() error) error {
	var err error
	if callErr := s.loop.Call(func() { err = fn() }); callErr != nil {
		return ErrClosed
	}
	return err
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
