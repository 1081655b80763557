// Package metrics exposes twin and telemetry loop activity to Prometheus.
package metrics

import (
	"net/http"

	"github.com/ohowland/substation_twin/internal/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so several instances can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	edgeLoading      *prometheus.GaugeVec
	transformerLoad  prometheus.Gauge
	totalLoad        prometheus.Gauge
	alerts           prometheus.Gauge
	degraded         prometheus.Gauge
	healthScore      *prometheus.GaugeVec
	frames           prometheus.Counter
	divergences      prometheus.Counter
	ignoredAnomalies *prometheus.CounterVec
	sensorErrors     *prometheus.CounterVec
	deliveryFailures prometheus.Counter
	streamFailures   *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		edgeLoading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "substation_edge_loading_percent",
			Help: "Loading of each line and transformer in percent of rating.",
		}, []string{"edge"}),
		transformerLoad: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "substation_transformer_loading_percent",
			Help: "Loading of the critical transformer in percent of rating.",
		}),
		totalLoad: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "substation_total_load_mw",
			Help: "Sum of load setpoints.",
		}),
		alerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "substation_active_alerts",
			Help: "Number of alerts in the latest status.",
		}),
		degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "substation_degraded",
			Help: "1 when the latest state was carried over from a failed solve.",
		}),
		healthScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "substation_asset_health_score",
			Help: "Latest health score per asset.",
		}, []string{"asset"}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "substation_telemetry_frames_total",
			Help: "Telemetry frames produced.",
		}),
		divergences: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "substation_solver_divergence_total",
			Help: "Power flow solves that failed and fell back to the last good state.",
		}),
		ignoredAnomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "substation_ignored_anomaly_total",
			Help: "Anomaly injections with an unrecognised kind.",
		}, []string{"kind"}),
		sensorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "substation_sensor_errors_total",
			Help: "Failed sensor reads per asset.",
		}, []string{"asset"}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "substation_subscriber_failures_total",
			Help: "Frames the telemetry subscriber failed to accept.",
		}),
		streamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "substation_stream_failures_total",
			Help: "Failed publishes per datastream sink.",
		}, []string{"sink"}),
	}
	m.registry.MustRegister(
		m.edgeLoading, m.transformerLoad, m.totalLoad, m.alerts, m.degraded, m.healthScore,
		m.frames, m.divergences, m.ignoredAnomalies, m.sensorErrors, m.deliveryFailures, m.streamFailures,
	)
	return m
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFrame updates gauges from a telemetry frame.
func (m *Metrics) ObserveFrame(f telemetry.Frame) {
	m.frames.Inc()
	m.transformerLoad.Set(f.Grid.TransformerLoadingPercent)
	m.totalLoad.Set(f.Grid.TotalLoadMW)
	m.alerts.Set(float64(len(f.Grid.Alerts)))
	if f.Grid.Degraded {
		m.degraded.Set(1)
	} else {
		m.degraded.Set(0)
	}
	for edge, loading := range f.Grid.EdgeLoading {
		m.edgeLoading.WithLabelValues(edge).Set(loading)
	}
	for id, a := range f.Assets {
		m.healthScore.WithLabelValues(id).Set(a.Health.HealthScore)
	}
}

// Degraded counts a solver divergence.
func (m *Metrics) Degraded(error) {
	m.divergences.Inc()
}

// SensorError counts a failed sensor read.
func (m *Metrics) SensorError(assetID string) {
	m.sensorErrors.WithLabelValues(assetID).Inc()
}

// DeliveryFailure counts a frame the subscriber rejected.
func (m *Metrics) DeliveryFailure() {
	m.deliveryFailures.Inc()
}

// AnomalyIgnored counts an unrecognised anomaly kind.
func (m *Metrics) AnomalyIgnored(kind string) {
	m.ignoredAnomalies.WithLabelValues(kind).Inc()
}

// StreamFailure counts a failed publish on a datastream sink.
func (m *Metrics) StreamFailure(sink string) {
	m.streamFailures.WithLabelValues(sink).Inc()
}
