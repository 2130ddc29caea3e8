// Package metrics holds the Prometheus collectors for loads and uploads.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csvload_loads_total",
		Help: "The total number of load attempts by outcome",
	}, []string{"outcome"})

	RowsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csvload_rows_inserted_total",
		Help: "The total number of rows committed by loads",
	})

	ConversionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csvload_conversion_errors_total",
		Help: "The total number of row conversion errors reported",
	})

	LoadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "csvload_load_duration_seconds",
		Help:    "Time taken by a load attempt, from validation to commit or rollback",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"outcome"})

	ActiveLoads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csvload_active_loads",
		Help: "The number of loads currently holding a transaction",
	})

	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csvload_uploads_total",
		Help: "The total number of file uploads by outcome",
	}, []string{"outcome"})

	UploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csvload_upload_bytes_total",
		Help: "The total number of bytes stored by uploads",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csvload_http_requests_total",
		Help: "The total number of HTTP requests by route and status",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "csvload_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// ObserveLoad records one finished load attempt.
func ObserveLoad(outcome string, rows int64, d time.Duration) {
	LoadsTotal.WithLabelValues(outcome).Inc()
	LoadDuration.WithLabelValues(outcome).Observe(d.Seconds())
	if rows > 0 {
		RowsInserted.Add(float64(rows))
	}
}

// ObserveUpload records one upload attempt.
func ObserveUpload(outcome string, bytes int64) {
	UploadsTotal.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		UploadBytes.Add(float64(bytes))
	}
}

// ObserveRequest records one HTTP request. route must be a pattern, not a
// raw path.
func ObserveRequest(method, route, status string, d time.Duration) {
	HTTPRequests.WithLabelValues(method, route, status).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
