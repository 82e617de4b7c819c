package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"platestation/internal/logger"
)

func TestLoggingMiddleware_RecoversPanics(t *testing.T) {
	h := LoggingMiddleware(logger.Discard(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/start", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestLoggingMiddleware_PassesStatusThrough(t *testing.T) {
	h := LoggingMiddleware(logger.Discard(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/start", nil))

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}
