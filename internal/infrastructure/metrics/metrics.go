package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleet",
			Subsystem: "hub",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fleet",
			Subsystem: "hub",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "endpoint"},
	)

	// Firmware upload counter
	FirmwareUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleet",
			Subsystem: "hub",
			Name:      "firmware_uploads_total",
			Help:      "Total firmware bundle uploads",
		},
		[]string{"model", "status"},
	)

	// Crash dump upload counter
	DumpUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleet",
			Subsystem: "hub",
			Name:      "coredump_uploads_total",
			Help:      "Total crash dump uploads",
		},
		[]string{"status"},
	)

	// Object store operations counter
	ObjectStoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleet",
			Subsystem: "hub",
			Name:      "objectstore_operations_total",
			Help:      "Total object store operations",
		},
		[]string{"operation", "status"},
	)

	// Analysis outcome counter
	AnalysisTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleet",
			Subsystem: "hub",
			Name:      "analysis_total",
			Help:      "Total crash dump analysis outcomes",
		},
		[]string{"outcome"},
	)

	// Analyzer call duration
	AnalyzerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fleet",
			Subsystem: "hub",
			Name:      "analyzer_duration_seconds",
			Help:      "Analyzer sidecar call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30},
		},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// RecordFirmwareUpload records a firmware bundle upload
func RecordFirmwareUpload(model, status string) {
	FirmwareUploadsTotal.WithLabelValues(model, status).Inc()
}

// RecordDumpUpload records a crash dump upload
func RecordDumpUpload(status string) {
	DumpUploadsTotal.WithLabelValues(status).Inc()
}

// RecordObjectStoreOperation records an object store operation
func RecordObjectStoreOperation(operation, status string) {
	ObjectStoreOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordAnalysis records a terminal analysis outcome
func RecordAnalysis(outcome string) {
	AnalysisTotal.WithLabelValues(outcome).Inc()
}

// RecordAnalyzerCall records an analyzer sidecar call duration
func RecordAnalyzerCall(durationSec float64) {
	AnalyzerDuration.Observe(durationSec)
}
