// Package metrics exposes provisioning and supervision counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics defines the observations recorded by the engine.
type Metrics interface {
	ObserveDownload(label, outcome string, bytes int64, durationSeconds float64)
	IncVerification(asset, status string)
	IncProcessEvent(event string)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) ObserveDownload(string, string, int64, float64) {}
func (Noop) IncVerification(string, string)                 {}
func (Noop) IncProcessEvent(string)                         {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	downloads     *prometheus.CounterVec
	downloadBytes *prometheus.CounterVec
	downloadTime  *prometheus.HistogramVec
	verifications *prometheus.CounterVec
	process       *prometheus.CounterVec
}

// NewProm creates the collectors and registers them with reg. A nil reg
// uses the default registerer.
func NewProm(namespace string, reg prometheus.Registerer) *Prom {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prom{
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Downloads by asset label and outcome",
		}, []string{"label", "outcome"}),
		downloadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes received by asset label",
		}, []string{"label"}),
		downloadTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Download wall time by asset label",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"label"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Verification results by asset and status",
		}, []string{"asset", "status"}),
		process: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_events_total",
			Help:      "Supervised process lifecycle events",
		}, []string{"event"}),
	}
	reg.MustRegister(p.downloads, p.downloadBytes, p.downloadTime, p.verifications, p.process)
	return p
}

func (p *Prom) ObserveDownload(label, outcome string, bytes int64, durationSeconds float64) {
	p.downloads.WithLabelValues(label, outcome).Inc()
	p.downloadBytes.WithLabelValues(label).Add(float64(bytes))
	p.downloadTime.WithLabelValues(label).Observe(durationSeconds)
}

func (p *Prom) IncVerification(asset, status string) {
	p.verifications.WithLabelValues(asset, status).Inc()
}

func (p *Prom) IncProcessEvent(event string) {
	p.process.WithLabelValues(event).Inc()
}

// Handler returns an HTTP handler for /metrics over gatherer. A nil
// gatherer uses the default gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// OrNoop returns m, or Noop when m is nil.
func OrNoop(m Metrics) Metrics {
	if m == nil {
		return Noop{}
	}
	return m
}
