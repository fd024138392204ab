package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// RunsTotal counts finished ingest runs
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicpulse_runs_total",
			Help: "Total number of ingest runs",
		},
		[]string{"mode", "status"}, // status: done, failed
	)

	// RunDuration measures ingest run duration in seconds
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "civicpulse_run_duration_seconds",
			Help:    "Ingest run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
		},
		[]string{"mode"},
	)

	// PagesFetched counts non-empty pages returned by the source
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicpulse_pages_fetched_total",
			Help: "Total number of non-empty pages fetched",
		},
		[]string{"mode"},
	)

	// RecordsWritten counts rows uploaded to the sink
	RecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicpulse_records_written_total",
			Help: "Total number of records written to the blob sink",
		},
		[]string{"mode"},
	)

	// SourceRequests counts source API requests by outcome
	SourceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicpulse_source_requests_total",
			Help: "Total number of source API requests",
		},
		[]string{"status"}, // status: success, error
	)

	// Uploads counts page uploads by outcome
	Uploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicpulse_uploads_total",
			Help: "Total number of page uploads",
		},
		[]string{"status"},
	)

	// TimestampParseWarnings counts rows left out of the watermark
	TimestampParseWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "civicpulse_timestamp_parse_warnings_total",
			Help: "Rows whose timestamp column was missing or unparseable",
		},
	)

	// WatermarkTimestamp is the last persisted watermark
	WatermarkTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "civicpulse_watermark_timestamp_seconds",
			Help: "Current watermark as Unix epoch seconds",
		},
	)
)

// RecordRun records a finished run
func RecordRun(mode, status string, duration float64) {
	RunsTotal.WithLabelValues(mode, status).Inc()
	RunDuration.WithLabelValues(mode).Observe(duration)
}

// RecordPage records one fetched and written page
func RecordPage(mode string, records, skipped int) {
	PagesFetched.WithLabelValues(mode).Inc()
	RecordsWritten.WithLabelValues(mode).Add(float64(records))
	TimestampParseWarnings.Add(float64(skipped))
}

// RecordSourceRequest records a source request outcome
func RecordSourceRequest(status string) {
	SourceRequests.WithLabelValues(status).Inc()
}

// RecordUpload records an upload outcome
func RecordUpload(status string) {
	Uploads.WithLabelValues(status).Inc()
}

// RecordWatermark records a persisted watermark
func RecordWatermark(unix int64) {
	WatermarkTimestamp.Set(float64(unix))
}
