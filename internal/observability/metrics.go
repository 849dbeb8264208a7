package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "crash_hotspot"

// Metrics holds the Prometheus collectors for analysis runs.
type Metrics struct {
	RunsTotal     *prometheus.CounterVec   // labels: outcome={success,config_error,data_error,internal_error}
	StageDuration *prometheus.HistogramVec // labels: stage
	RunDuration   prometheus.Histogram

	ObservationsProcessed prometheus.Counter
	PointsSnapped         prometheus.Counter
	SegmentsAnalyzed      prometheus.Gauge
	HotspotSegments       *prometheus.GaugeVec // labels: variable={crash,fatality}, class={hot,cold}

	// Result publication metrics.
	MessagesPublished prometheus.Counter
	PublishErrors     prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RunsTotal,
		m.StageDuration,
		m.RunDuration,
		m.ObservationsProcessed,
		m.PointsSnapped,
		m.SegmentsAnalyzed,
		m.HotspotSegments,
		m.MessagesPublished,
		m.PublishErrors,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as many
// as they like without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Analysis runs by outcome.",
		}, []string{"outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"stage"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete analysis run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		ObservationsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_processed_total",
			Help:      "Crash observations read into a run.",
		}),
		PointsSnapped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_snapped_total",
			Help:      "Crash observations moved onto the road network.",
		}),
		SegmentsAnalyzed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "segments_analyzed",
			Help:      "Road segments in the most recent output layer.",
		}),
		HotspotSegments: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hotspot_segments",
			Help:      "Significant segments in the most recent run by variable and class.",
		}, []string{"variable", "class"}),
		MessagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Result messages written to Kafka.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed Kafka publish attempts.",
		}),
	}
}
