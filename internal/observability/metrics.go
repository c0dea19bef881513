package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weather_indicators"

// Metrics holds the Prometheus counters, histograms, and gauges for indicator runs.
type Metrics struct {
	RecordsProcessed *prometheus.CounterVec // labels: event
	ExtremeDays      *prometheus.CounterVec // labels: event, ranking={1,2}
	RunErrors        *prometheus.CounterVec // labels: event, stage={extract,process,aggregate,load}
	PipelineRunning  prometheus.Gauge

	// Batch processing metrics.
	YearBatches             *prometheus.CounterVec // labels: event
	BatchProcessingDuration prometheus.Histogram
	RunDuration             prometheus.Histogram

	// Cache metrics.
	CacheLookups *prometheus.CounterVec // labels: artifact={thresholds,indicators}, result={hit,miss}

	// Publishing metrics.
	AggregatesPublished *prometheus.CounterVec // labels: event, level
	LastRunTimestamp    prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RecordsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_processed_total",
			Help:      "Daily grid records run through the indicator engine.",
		}, []string{"event"}),
		ExtremeDays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extreme_days_total",
			Help:      "Extreme days found, by event and ranking.",
		}, []string{"event", "ranking"}),
		RunErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_errors_total",
			Help:      "Failed run stages by event.",
		}, []string{"event", "stage"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		YearBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "year_batches_total",
			Help:      "Year batches processed by event.",
		}, []string{"event"}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of anomaly and severity computation for one year batch.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete run over every event profile.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by artifact and result.",
		}, []string{"artifact", "result"}),
		AggregatesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregates_published_total",
			Help:      "Aggregated periods handed to sinks, by event and level.",
		}, []string{"event", "level"}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last successful run finished.",
		}),
	}

	prometheus.MustRegister(
		m.RecordsProcessed,
		m.ExtremeDays,
		m.RunErrors,
		m.PipelineRunning,
		m.YearBatches,
		m.BatchProcessingDuration,
		m.RunDuration,
		m.CacheLookups,
		m.AggregatesPublished,
		m.LastRunTimestamp,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RecordsProcessed:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "records_processed_total"}, []string{"event"}),
		ExtremeDays:             prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "extreme_days_total"}, []string{"event", "ranking"}),
		RunErrors:               prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "run_errors_total"}, []string{"event", "stage"}),
		PipelineRunning:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "pipeline_running"}),
		YearBatches:             prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "year_batches_total"}, []string{"event"}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "batch_processing_duration_seconds"}),
		RunDuration:             prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "run_duration_seconds"}),
		CacheLookups:            prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "cache_lookups_total"}, []string{"artifact", "result"}),
		AggregatesPublished:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "aggregates_published_total"}, []string{"event", "level"}),
		LastRunTimestamp:        prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "last_run_timestamp_seconds"}),
	}
}
