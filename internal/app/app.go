package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"platestation/internal/config"
	"platestation/internal/logger"
	"platestation/internal/metrics"
	"platestation/internal/repository/sqlite"
	"platestation/internal/routes"
	"platestation/internal/services"
	"platestation/internal/services/detection"
	"platestation/internal/services/ocr"
	"platestation/internal/services/probe"
	"platestation/internal/services/storage"
	"platestation/internal/services/vision"
	"platestation/internal/services/websocket"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config     *config.Config
	logger     *logger.Logger
	db         *sqlite.DB
	recognizer *ocr.TesseractRecognizer
	hubService *websocket.HubService
	station    *services.Station
	server     *http.Server
}

// NewApp loads the configuration and builds every service.
func NewApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.NewLogger(cfg.LogDirectory)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	recognizer, err := ocr.NewTesseractRecognizer(cfg.OCRLanguages...)
	if err != nil {
		db.Close()
		return nil, err
	}

	m := metrics.New()
	opener := vision.NewOpener()
	codec := vision.NewCodec()

	engine := detection.NewEngine(recognizer, vision.NewCanvas(), log, detection.Options{
		Threshold: &cfg.ConfidenceThreshold,
		Allowlist: cfg.Allowlist,
		Recorder:  m,
	})
	hub := websocket.NewHubService(codec, log)

	station := services.NewStation(services.Dependencies{
		Opener:     opener,
		Discoverer: probe.New(opener, cfg.Discovery, log, probe.WithRecorder(m)),
		Engine:     engine,
		Saver:      storage.NewSaver(codec, cfg.DetectionsDirectory, cfg.CaptureDirectory, log),
		Presenter:  hub,
		Sources:    sqlite.NewSourceRepository(db),
		Metrics:    m,
	}, services.OptionsFromConfig(cfg), log)

	router := routes.SetupRoutes(routes.Dependencies{
		Station: station,
		Decoder: codec,
		Hub:     hub,
		Metrics: m.Handler(),
	}, cfg, log)

	return &App{
		config:     cfg,
		logger:     log,
		db:         db,
		recognizer: recognizer,
		hubService: hub,
		station:    station,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves until ctx is cancelled or the listener fails. The station is
// closed while its loop is still running so the camera is released.
func (a *App) Run(ctx context.Context) error {
	background, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start background services
	go a.hubService.Run(background)
	go a.station.Run(background)

	if err := a.station.Discover(); err != nil {
		a.logger.Warning("Initial discovery not started: %v", err)
	}

	fmt.Printf("🚗 Plate Station\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("📁 Detections: %s\n", a.config.DetectionsDirectory)
	fmt.Printf("🔤 OCR languages: %v\n", a.config.OCRLanguages)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	}

	a.shutdown()
	return serveErr
}

func (a *App) shutdown() {
	if err := a.station.Close(); err != nil && !errors.Is(err, services.ErrClosed) {
		a.logger.Warning("Error closing station: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warning("Error shutting down server: %v", err)
	}
	if err := a.recognizer.Close(); err != nil {
		a.logger.Warning("Error closing recognizer: %v", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warning("Error closing database: %v", err)
	}
}
