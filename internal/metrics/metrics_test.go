package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"platestation/internal/models"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestMetricsExposition(t *testing.T) {
	m := New()
	m.ObserveProbe(models.SourceLocal, true)
	m.ObserveProbe(models.SourceIP, false)
	m.ObserveDetections(2, 1)
	m.ObserveRecognitionError()
	m.ObserveFrame()
	m.ObserveStreamLost()
	m.SetSessionState("running", "idle", "running", "stopping", "error")

	body := scrape(t, m)
	for _, want := range []string{
		`platestation_probes_total{kind="local",result="available"} 1`,
		`platestation_probes_total{kind="ip",result="unavailable"} 1`,
		`platestation_detections_total{outcome="accepted"} 2`,
		`platestation_detections_total{outcome="rejected"} 1`,
		`platestation_recognition_errors_total 1`,
		`platestation_frames_pulled_total 1`,
		`platestation_streams_lost_total 1`,
		`platestation_session_state{state="running"} 1`,
		`platestation_session_state{state="idle"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in exposition", want)
		}
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.ObserveFrame()

	if strings.Contains(scrape(t, b), "platestation_frames_pulled_total 1") {
		t.Error("metrics leaked between instances")
	}
}
