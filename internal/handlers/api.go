package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"platestation/internal/logger"
	"platestation/internal/models"
	"platestation/internal/services"
	"platestation/internal/services/catalog"
	"platestation/internal/services/stream"
)

// maxImageUpload bounds the body accepted by ProcessImageHandler.
const maxImageUpload = 16 << 20

// Controller is the station surface the HTTP API drives.
type Controller interface {
	Discover() error
	Sources() ([]models.CameraSource, error)
	Select(index int) (models.CameraSource, error)
	Start() error
	Stop() error
	Capture() (string, error)
	SetDetection(enabled bool) error
	SetAutoSave(enabled bool) error
	ProcessImage(frame models.Frame, name string) ([]models.DetectionResult, error)
	Log() []models.LogEntry
	State() (services.State, error)
}

// ImageDecoder turns an uploaded file into a frame.
type ImageDecoder interface {
	Decode(data []byte) (models.Frame, error)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, logger *logger.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

// writeError maps station errors onto HTTP status codes.
func writeError(w http.ResponseWriter, logger *logger.Logger, err error) {
	status := http.StatusInternalServerError
	var connErr *stream.ConnectionError
	switch {
	case errors.Is(err, catalog.ErrIndexOutOfRange):
		status = http.StatusBadRequest
	case errors.Is(err, catalog.ErrNoSources),
		errors.Is(err, services.ErrNoSelection),
		errors.Is(err, stream.ErrNotOpen),
		errors.Is(err, stream.ErrNoFrame):
		status = http.StatusPreconditionFailed
	case errors.Is(err, stream.ErrSessionBusy), errors.Is(err, services.ErrDiscoveryRunning):
		status = http.StatusConflict
	case errors.As(err, &connErr):
		status = http.StatusBadGateway
	case errors.Is(err, services.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, logger, status, errorResponse{Error: err.Error()})
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// SourcesHandler lists the catalog.
func SourcesHandler(station Controller, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		sources, err := station.Sources()
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if sources == nil {
			sources = []models.CameraSource{}
		}
		writeJSON(w, logger, http.StatusOK, sources)
	}
}

// DiscoverHandler starts a discovery pass and returns immediately.
func DiscoverHandler(station Controller, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		if err := station.Discover(); err != nil {
			writeError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// SelectHandler selects the source given by the "index" query parameter.
func SelectHandler(station Controller, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		index, err := strconv.Atoi(r.URL.Query().Get("index"))
		if err != nil {
			http.Error(w, "index parameter must be an integer", http.StatusBadRequest)
			return
		}
		source, err := station.Select(index)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, source)
	}
}

// StartHandler opens the selected source.
func StartHandler(station Controller, logger *logger.Logger) http.HandlerFunc {
	return actionHandler(station.Start, logger)
}

// StopHandler stops the stream.
func StopHandler(station Controller, logger *logger.Logger) http.HandlerFunc {
	return actionHandler(station.Stop, logger)
}

func actionHandler(action func() error, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		if err := action(); err != nil {
			writeError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CaptureHandler saves one still and returns its file name.
func CaptureHandler(station Controller, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		name, err := station.Capture()
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusCreated, map[string]string{"file": name})
	}
}

// DetectionToggleHandler sets detection from the "enabled" query parameter.
func DetectionToggleHandler(station Controller, logger *logger.Logger) http.HandlerFunc {
	return toggleHandler(station.SetDetection, logger)
}

// AutoSaveToggleHandler sets auto-save from the "enabled" query parameter.
func AutoSaveToggleHandler(station Controller, logger *logger.Logger) http.HandlerFunc {
	return toggleHandler(station.SetAutoSave, logger)
}

func toggleHandler(set func(bool) error, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
		if err != nil {
			http.Error(w, "enabled parameter must be a boolean", http.StatusBadRequest)
			return
		}
		if err := set(enabled); err != nil {
			writeError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ProcessImageHandler runs detection on an uploaded image. The optional "name"
// query parameter labels it in the log.
func ProcessImageHandler(station Controller, decoder ImageDecoder, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		data, err := io.ReadAll(io.LimitReader(r.Body, maxImageUpload))
		if err != nil || len(data) == 0 {
			http.Error(w, "image body is required", http.StatusBadRequest)
			return
		}
		frame, err := decoder.Decode(data)
		if err != nil {
			logger.Warning("Could not load uploaded image: %v", err)
			http.Error(w, "Could not load the image", http.StatusUnprocessableEntity)
			return
		}

		name := r.URL.Query().Get("name")
		if name == "" {
			name = "upload"
		}
		detections, err := station.ProcessImage(frame, name)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if detections == nil {
			detections = []models.DetectionResult{}
		}
		writeJSON(w, logger, http.StatusOK, detections)
	}
}

// LogHandler returns the detection log as rendered lines.
func LogHandler(station Controller, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		entries := station.Log()
		lines := make([]string, len(entries))
		for i, e := range entries {
			lines[i] = e.Line()
		}
		writeJSON(w, logger, http.StatusOK, lines)
	}
}

// StateHandler returns the station snapshot.
func StateHandler(station Controller, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		state, err := station.State()
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, state)
	}
}
