package routes

import (
	"net/http"
	"os"
	"path/filepath"

	"platestation/internal/config"
	"platestation/internal/handlers"
	"platestation/internal/logger"
	"platestation/internal/middleware"
	wshub "platestation/internal/services/websocket"
)

// Dependencies are the handlers' collaborators.
type Dependencies struct {
	Station handlers.Controller
	Decoder handlers.ImageDecoder
	Hub     *wshub.HubService
	Metrics http.Handler
}

// dynamicHTMLHandler serves /path as /static/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/" {
		path = "/index"
	}

	filePath := filepath.Join("static", path+".html")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, filePath)
}

// SetupRoutes registers the control API, the live view, metrics and log views.
func SetupRoutes(deps Dependencies, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	// Control API
	mux.HandleFunc("/api/sources", handlers.SourcesHandler(deps.Station, logger))
	mux.HandleFunc("/api/discover", handlers.DiscoverHandler(deps.Station, logger))
	mux.HandleFunc("/api/select", handlers.SelectHandler(deps.Station, logger))
	mux.HandleFunc("/api/start", handlers.StartHandler(deps.Station, logger))
	mux.HandleFunc("/api/stop", handlers.StopHandler(deps.Station, logger))
	mux.HandleFunc("/api/capture", handlers.CaptureHandler(deps.Station, logger))
	mux.HandleFunc("/api/detection", handlers.DetectionToggleHandler(deps.Station, logger))
	mux.HandleFunc("/api/autosave", handlers.AutoSaveToggleHandler(deps.Station, logger))
	mux.HandleFunc("/api/image", handlers.ProcessImageHandler(deps.Station, deps.Decoder, logger))
	mux.HandleFunc("/api/log", handlers.LogHandler(deps.Station, logger))
	mux.HandleFunc("/api/state", handlers.StateHandler(deps.Station, logger))

	// Saved detections
	mux.HandleFunc("/api/detections", handlers.ListDetectionsHandler(cfg, logger))
	mux.HandleFunc("/api/detections/view", handlers.ViewDetectionHandler(cfg))

	// Live view
	mux.HandleFunc("/api/view", handlers.ViewWebsocketHandler(deps.Hub, logger))

	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics)
	}

	// Log endpoints
	for _, level := range []string{"info", "warning", "error"} {
		file := level + ".log"
		mux.HandleFunc("/logs/"+level, handlers.ShowLogsHandler(cfg, file))
		mux.HandleFunc("/logs/"+level+"/clear", handlers.ClearLogsHandler(logger, file))
	}

	// Automatic HTML handler mapping for example: /settings -> /static/settings.html
	mux.HandleFunc("/", dynamicHTMLHandler)

	return middleware.LoggingMiddleware(logger, mux)
}
