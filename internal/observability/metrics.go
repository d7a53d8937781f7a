package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// raster retrieval pipeline.
type Metrics struct {
	JobsCompleted   *prometheus.CounterVec // labels: outcome={success,partial,failed}
	JobsInFlight    prometheus.Gauge
	DatasetFailures *prometheus.CounterVec // labels: reason
	JobDuration     prometheus.Histogram
	StageDuration   *prometheus.HistogramVec // labels: stage={resolve,download,mosaic,clip,reproject,write,package}

	// Tile acquisition metrics.
	TilesResolved   prometheus.Counter
	TilesDownloaded prometheus.Counter
	DownloadBytes   prometheus.Counter
	DownloadErrors  prometheus.Counter

	// Catalog service metrics.
	CatalogRequests *prometheus.CounterVec   // labels: query={layer_listing,tile_query,catalog_query}, outcome={success,error}
	CatalogDuration *prometheus.HistogramVec // labels: query
	LayerCache      *prometheus.CounterVec   // labels: result={hit,miss}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.JobsCompleted,
		m.JobsInFlight,
		m.DatasetFailures,
		m.JobDuration,
		m.StageDuration,
		m.TilesResolved,
		m.TilesDownloaded,
		m.DownloadBytes,
		m.DownloadErrors,
		m.CatalogRequests,
		m.CatalogDuration,
		m.LayerCache,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		JobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raster_etl",
			Name:      "jobs_completed_total",
			Help:      "Completed jobs by outcome.",
		}, []string{"outcome"}),
		JobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "raster_etl",
			Name:      "jobs_in_flight",
			Help:      "Number of jobs currently executing.",
		}),
		DatasetFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raster_etl",
			Name:      "dataset_failures_total",
			Help:      "Per-dataset failures by reason.",
		}, []string{"reason"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "raster_etl",
			Name:      "job_duration_seconds",
			Help:      "Duration of a complete job invocation.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "raster_etl",
			Name:      "stage_duration_seconds",
			Help:      "Duration of one pipeline stage for one dataset.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage"}),
		TilesResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raster_etl",
			Name:      "tiles_resolved_total",
			Help:      "Tile references returned by the tile index.",
		}),
		TilesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raster_etl",
			Name:      "tiles_downloaded_total",
			Help:      "Tile packages downloaded and extracted.",
		}),
		DownloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raster_etl",
			Name:      "download_bytes_total",
			Help:      "Bytes downloaded from tile storage.",
		}),
		DownloadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raster_etl",
			Name:      "download_errors_total",
			Help:      "Failed tile downloads.",
		}),
		CatalogRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raster_etl",
			Name:      "catalog_requests_total",
			Help:      "ArcGIS service requests by query and outcome.",
		}, []string{"query", "outcome"}),
		CatalogDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "raster_etl",
			Name:      "catalog_request_duration_seconds",
			Help:      "ArcGIS service request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"query"}),
		LayerCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raster_etl",
			Name:      "layer_cache_total",
			Help:      "Layer-id cache lookups by result.",
		}, []string{"result"}),
	}
}
