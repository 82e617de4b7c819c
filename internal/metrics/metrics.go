// Package metrics exposes station counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"platestation/internal/models"
)

const namespace = "platestation"

// Metrics owns a private registry so tests and multiple stations never collide.
type Metrics struct {
	registry *prometheus.Registry

	probes              *prometheus.CounterVec
	detections          *prometheus.CounterVec
	recognitionErrors   prometheus.Counter
	framesPulled        prometheus.Counter
	streamsLost         prometheus.Counter
	persistenceFailures prometheus.Counter
	sessionState        *prometheus.GaugeVec
}

// New registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Discovery probes by source kind and outcome.",
		}, []string{"kind", "result"}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Recognized text regions by confidence gate outcome.",
		}, []string{"outcome"}),
		recognitionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_errors_total",
			Help:      "Frames the recognizer failed on.",
		}),
		framesPulled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_pulled_total",
			Help:      "Frames read from the active stream.",
		}),
		streamsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_lost_total",
			Help:      "Sessions that ended because the source stopped yielding frames.",
		}),
		persistenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Images that could not be written to disk.",
		}),
		sessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "1 for the current stream session state, 0 otherwise.",
		}, []string{"state"}),
	}

	m.registry.MustRegister(
		m.probes,
		m.detections,
		m.recognitionErrors,
		m.framesPulled,
		m.streamsLost,
		m.persistenceFailures,
		m.sessionState,
	)
	return m
}

func (m *Metrics) ObserveProbe(kind models.SourceKind, available bool) {
	result := "unavailable"
	if available {
		result = "available"
	}
	m.probes.WithLabelValues(string(kind), result).Inc()
}

func (m *Metrics) ObserveDetections(accepted, rejected int) {
	m.detections.WithLabelValues("accepted").Add(float64(accepted))
	m.detections.WithLabelValues("rejected").Add(float64(rejected))
}

func (m *Metrics) ObserveRecognitionError() { m.recognitionErrors.Inc() }

func (m *Metrics) ObserveFrame() { m.framesPulled.Inc() }

func (m *Metrics) ObserveStreamLost() { m.streamsLost.Inc() }

func (m *Metrics) ObservePersistenceFailure() { m.persistenceFailures.Inc() }

// SetSessionState marks current as the only active state among all.
func (m *Metrics) SetSessionState(current string, all ...string) {
	for _, s := range all {
		m.sessionState.WithLabelValues(s).Set(0)
	}
	m.sessionState.WithLabelValues(current).Set(1)
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
