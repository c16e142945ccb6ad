package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/krabwidget/krab/internal/backend"
)

// Recorder holds the Prometheus metrics of the dispatcher. A nil *Recorder
// is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	Sends            *prometheus.CounterVec
	SendDuration     *prometheus.HistogramVec
	HealthChecks     *prometheus.CounterVec
	ConnectionStatus *prometheus.GaugeVec
}

// New registers the metrics on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		Sends: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "krab_sends_total",
			Help: "Chat messages sent, by backend and result",
		}, []string{"backend", "result"}),

		// Local models can take minutes to answer.
		SendDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "krab_send_duration_seconds",
			Help:    "Chat request latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"backend"}),

		HealthChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "krab_health_checks_total",
			Help: "Backend health checks, by backend and result",
		}, []string{"backend", "result"}),

		ConnectionStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "krab_connection_status",
			Help: "Connection status per backend (0 disconnected, 1 connecting, 2 connected, 3 error)",
		}, []string{"backend"}),
	}
}

// Result maps an error onto the result label.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	var be *backend.Error
	if errors.As(err, &be) {
		switch be.Kind {
		case backend.NotConnected:
			return "not_connected"
		case backend.NotConfigured:
			return "not_configured"
		case backend.InvalidURL:
			return "invalid_url"
		case backend.InvalidCredentials:
			return "invalid_credentials"
		case backend.RequestFailed:
			return "request_failed"
		case backend.InvalidResponse:
			return "invalid_response"
		case backend.TransportError:
			return "transport_error"
		}
	}
	return "error"
}

// RecordSend counts one send attempt and its latency.
func (r *Recorder) RecordSend(k backend.Kind, took time.Duration, err error) {
	if r == nil {
		return
	}
	r.Sends.WithLabelValues(string(k), Result(err)).Inc()
	r.SendDuration.WithLabelValues(string(k)).Observe(took.Seconds())
}

// RecordRejectedSend counts a send refused before any request was made.
func (r *Recorder) RecordRejectedSend(k backend.Kind, err error) {
	if r == nil {
		return
	}
	r.Sends.WithLabelValues(string(k), Result(err)).Inc()
}

// RecordHealthCheck counts one health check.
func (r *Recorder) RecordHealthCheck(k backend.Kind, err error) {
	if r == nil {
		return
	}
	r.HealthChecks.WithLabelValues(string(k), Result(err)).Inc()
}

// SetStatus records the current status of k.
func (r *Recorder) SetStatus(k backend.Kind, s backend.Status) {
	if r == nil {
		return
	}
	r.ConnectionStatus.WithLabelValues(string(k)).Set(float64(s))
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
