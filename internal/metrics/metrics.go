// Package metrics exposes docquery Prometheus metrics: HTTP server traffic,
// error envelopes and the provider rate limiter.
package metrics

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Set holds every collector docquery registers, along with the registry serving them.
type Set struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrorsTotal     *prometheus.CounterVec
	ErrorsTotal         *prometheus.CounterVec
	ErrorsByEndpoint    *prometheus.CounterVec
	PanicsTotal         prometheus.Counter
	OperationsTotal     *prometheus.CounterVec

	namespace string
}

var current atomic.Pointer[Set]

// NewSet creates a Set on a fresh registry. Runtime and process collectors are included.
func NewSet(namespace string) *Set {
	s := &Set{
		Registry:  prometheus.NewRegistry(),
		namespace: namespace,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Number of HTTP requests served.",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "A histogram of the HTTP request durations.",
			// Acquire requests may wait a full window.
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"method", "endpoint", "status"}),
		HTTPErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Number of HTTP responses with a 4xx or 5xx status.",
		}, []string{"method", "endpoint", "status", "error_type"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Number of error envelopes written, by code and HTTP status.",
		}, []string{"error_code", "http_status"}),
		ErrorsByEndpoint: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_by_endpoint_total",
			Help:      "Number of error envelopes written, by endpoint.",
		}, []string{"endpoint", "error_code"}),
		PanicsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panics_total",
			Help:      "Number of recovered panics.",
		}),
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Number of limiter operations served over HTTP (status, acquire), by outcome.",
		}, []string{"operation", "status"}),
	}

	s.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		s.HTTPRequestsTotal,
		s.HTTPRequestDuration,
		s.HTTPErrorsTotal,
		s.ErrorsTotal,
		s.ErrorsByEndpoint,
		s.PanicsTotal,
		s.OperationsTotal,
	)
	return s
}

// Init creates a Set and installs it as the process-wide default used by the Record* helpers.
func Init(namespace string) *Set {
	s := NewSet(namespace)
	current.Store(s)
	return s
}

// Default returns the installed Set, or nil when metrics are disabled.
func Default() *Set {
	return current.Load()
}

// Reset uninstalls the default Set.
func Reset() {
	current.Store(nil)
}

// Namespace returns the metric namespace the Set was built with.
func (s *Set) Namespace() string {
	return s.namespace
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	s := current.Load()
	if s == nil {
		return
	}
	code := strconv.Itoa(status)
	s.HTTPRequestsTotal.WithLabelValues(method, endpoint, code).Inc()
	s.HTTPRequestDuration.WithLabelValues(method, endpoint, code).Observe(duration.Seconds())

	if status >= 400 {
		errorType := "client_error"
		if status >= 500 {
			errorType = "server_error"
		}
		s.HTTPErrorsTotal.WithLabelValues(method, endpoint, code, errorType).Inc()
	}
}

// RecordError records an error with code and status
func RecordError(errorCode string, httpStatus int) {
	if s := current.Load(); s != nil {
		s.ErrorsTotal.WithLabelValues(errorCode, strconv.Itoa(httpStatus)).Inc()
	}
}

// RecordErrorByEndpoint records an error by endpoint
func RecordErrorByEndpoint(endpoint string, errorCode string) {
	if s := current.Load(); s != nil {
		s.ErrorsByEndpoint.WithLabelValues(endpoint, errorCode).Inc()
	}
}

// RecordPanic records a panic recovery
func RecordPanic() {
	if s := current.Load(); s != nil {
		s.PanicsTotal.Inc()
	}
}

// RecordOperation records an application operation with status
func RecordOperation(operation string, success bool) {
	s := current.Load()
	if s == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	s.OperationsTotal.WithLabelValues(operation, status).Inc()
}
