package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quake_intensity"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	MessagesConsumed prometheus.Counter
	MessagesProduced prometheus.Counter
	TransformErrors  prometheus.Counter
	PipelineRunning  prometheus.Gauge
	PipelineRetries  *prometheus.CounterVec // labels: stage={extract,assess,load}

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Estimation metrics.
	EstimationDuration prometheus.Histogram
	AffectedAreas      prometheus.Histogram
	Assessments        *prometheus.CounterVec // labels: source, tier={safe,warning,danger,none}

	// Gazetteer metrics.
	GazetteerRegions prometheus.Gauge
	GazetteerSkipped prometheus.Gauge
	GazetteerLoads   *prometheus.CounterVec // labels: outcome={success,fallback,error}
	LocatorCache     *prometheus.CounterVec // labels: result={hit,miss}

	// Feed collector metrics.
	FeedRequests    *prometheus.CounterVec   // labels: dataset, outcome={success,error}
	FeedAPIDuration *prometheus.HistogramVec // labels: dataset
	QuakesPublished prometheus.Counter
	MockFallbacks   prometheus.Counter

	// Weather observation metrics.
	WeatherCache *prometheus.CounterVec // labels: result={hit,refresh,stale}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)

	prometheus.MustRegister(
		m.MessagesConsumed,
		m.MessagesProduced,
		m.TransformErrors,
		m.PipelineRunning,
		m.PipelineRetries,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.EstimationDuration,
		m.AffectedAreas,
		m.Assessments,
		m.GazetteerRegions,
		m.GazetteerSkipped,
		m.GazetteerLoads,
		m.LocatorCache,
		m.FeedRequests,
		m.FeedAPIDuration,
		m.QuakesPublished,
		m.MockFallbacks,
		m.WeatherCache,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      help("Total quake messages read from the source topic."),
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      help("Total assessments written to the sink topic."),
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      help("Quake messages skipped as malformed or with an invalid epicenter."),
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 when the pipeline is active, 0 when shut down."),
		}),
		PipelineRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_retries_total",
			Help:      help("Pipeline stage attempts that failed and were retried."),
		}, []string{"stage"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      help("Number of messages per batch extracted from Kafka."),
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      help("Duration of a complete batch extract-transform-load cycle."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		EstimationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "estimation_duration_seconds",
			Help:      help("Time to build one intensity map."),
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		AffectedAreas: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "affected_areas",
			Help:      help("Districts at or above the affected threshold per assessment."),
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		Assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_total",
			Help:      help("Assessments produced by source and personal risk tier."),
		}, []string{"source", "tier"}),
		GazetteerRegions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gazetteer_regions",
			Help:      help("Well-formed districts in the active gazetteer."),
		}),
		GazetteerSkipped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gazetteer_skipped_entries",
			Help:      help("Malformed or duplicate entries skipped by the last gazetteer load."),
		}),
		GazetteerLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gazetteer_loads_total",
			Help:      help("Gazetteer load attempts by outcome."),
		}, []string{"outcome"}),
		LocatorCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locator_cache_total",
			Help:      help("Nearest-region cache lookups by result."),
		}, []string{"result"}),
		FeedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_requests_total",
			Help:      help("CWA open-data requests by dataset and outcome."),
		}, []string{"dataset", "outcome"}),
		FeedAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_api_duration_seconds",
			Help:      help("CWA open-data request duration in seconds."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"dataset"}),
		QuakesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quakes_published_total",
			Help:      help("Quake messages published to the source topic by the collector."),
		}),
		MockFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collector_mock_fallbacks_total",
			Help:      help("Polls that fell back to canned mock reports because the feed failed."),
		}),
		WeatherCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_cache_total",
			Help:      help("Weather observation lookups by cache result."),
		}, []string{"result"}),
	}
}
