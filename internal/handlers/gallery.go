package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"platestation/internal/config"
	"platestation/internal/logger"
)

const maxPageSize = 100

// SavedDetection describes one auto-saved image.
type SavedDetection struct {
	Name    string    `json:"name"`
	Text    string    `json:"text"`
	SavedAt time.Time `json:"saved_at"`
	Size    int64     `json:"size"`
}

// DetectionsPage is a paginated listing of the detections directory.
type DetectionsPage struct {
	Detections  []SavedDetection `json:"detections"`
	Length      int              `json:"length"`
	TotalPages  int              `json:"totalPages"`
	CurrentPage int              `json:"currentPage"`
	Limit       int              `json:"pageSize"`
}

// ListDetectionsHandler lists auto-saved detections, newest first. The "text"
// query parameter filters by plate text prefix.
func ListDetectionsHandler(cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := min(atoiDefault(q.Get("limit"), 24), maxPageSize)
		prefix := strings.ToUpper(q.Get("text"))

		files, err := os.ReadDir(cfg.DetectionsDirectory)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Error("Error reading detections directory: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		var saved []SavedDetection
		for _, e := range files {
			if e.IsDir() {
				continue
			}
			det, ok := parseDetectionName(e.Name())
			if !ok || !strings.HasPrefix(det.Text, prefix) {
				continue
			}
			if info, err := e.Info(); err == nil {
				det.Size = info.Size()
			}
			saved = append(saved, det)
		}

		slices.SortFunc(saved, func(a, b SavedDetection) int {
			if c := b.SavedAt.Compare(a.SavedAt); c != 0 {
				return c
			}
			return strings.Compare(a.Name, b.Name)
		})

		start := len(saved)
		if page-1 < len(saved)/limit+1 {
			start = min((page-1)*limit, len(saved))
		}
		end := min(start+limit, len(saved))
		listing := DetectionsPage{
			Detections:  saved[start:end],
			Length:      len(saved),
			TotalPages:  (len(saved) + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		}
		if listing.Detections == nil {
			listing.Detections = []SavedDetection{}
		}
		writeJSON(w, logger, http.StatusOK, listing)
	}
}

// ViewDetectionHandler serves one saved detection named by the "name" query parameter.
func ViewDetectionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" || name != filepath.Base(name) {
			http.Error(w, "name parameter is required", http.StatusBadRequest)
			return
		}
		if _, ok := parseDetectionName(name); !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(cfg.DetectionsDirectory, name))
	}
}

// parseDetectionName reads plate_<text>_<unix>.jpg.
func parseDetectionName(name string) (SavedDetection, bool) {
	base, ok := strings.CutSuffix(name, ".jpg")
	if !ok {
		return SavedDetection{}, false
	}
	base, ok = strings.CutPrefix(base, "plate_")
	if !ok {
		return SavedDetection{}, false
	}
	i := strings.LastIndexByte(base, '_')
	if i <= 0 {
		return SavedDetection{}, false
	}
	unix, err := strconv.ParseInt(base[i+1:], 10, 64)
	if err != nil {
		return SavedDetection{}, false
	}
	return SavedDetection{Name: name, Text: base[:i], SavedAt: time.Unix(unix, 0)}, true
}

func atoiDefault(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return def
}
