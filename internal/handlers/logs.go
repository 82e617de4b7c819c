package handlers

import (
	"net/http"
	"os"
	"path/filepath"

	"platestation/internal/config"
	"platestation/internal/logger"
)

// ShowLogsHandler serves one of the per-level log files.
func ShowLogsHandler(cfg *config.Config, fileName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveLogFile(w, r, cfg.LogDirectory, fileName)
	}
}

func serveLogFile(w http.ResponseWriter, r *http.Request, logDir, filename string) {
	filePath := filepath.Join(logDir, filename)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Log file not found: " + filename))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, filePath)
}

// ClearLogsHandler truncates one of the per-level log files.
func ClearLogsHandler(logger *logger.Logger, fileName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		logger.CleanLogs(fileName)
		w.WriteHeader(http.StatusNoContent)
	}
}
