package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/docquery/docquery/internal/ratelimit"
)

const limiterSubsystem = "ratelimit"

// Acquire results used as the "result" label.
const (
	AcquireGranted   = "granted"
	AcquireCancelled = "cancelled"
	AcquireFailed    = "failed"
)

// LimiterCollector exports limiter Status as gauges, read at scrape time.
// Gauges are computed from Status and never reserve a slot.
type LimiterCollector struct {
	limiter *ratelimit.Limiter

	current   *prometheus.Desc
	remaining *prometheus.Desc
	resetIn   *prometheus.Desc
	max       *prometheus.Desc
}

// NewLimiterCollector creates a collector reporting on limiter.
func NewLimiterCollector(namespace string, limiter *ratelimit.Limiter) *LimiterCollector {
	labels := []string{"limiter"}
	return &LimiterCollector{
		limiter: limiter,
		current: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, limiterSubsystem, "current_requests"),
			"Number of calls recorded in the trailing window.", labels, nil),
		remaining: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, limiterSubsystem, "remaining_requests"),
			"Number of calls that may start now without waiting.", labels, nil),
		resetIn: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, limiterSubsystem, "reset_seconds"),
			"Seconds until the oldest recorded call leaves the window.", labels, nil),
		max: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, limiterSubsystem, "max_requests"),
			"Configured maximum calls per window.", labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *LimiterCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.current
	ch <- c.remaining
	ch <- c.resetIn
	ch <- c.max
}

// Collect implements prometheus.Collector.
func (c *LimiterCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.limiter.Status()
	ch <- prometheus.MustNewConstMetric(c.current, prometheus.GaugeValue, float64(st.CurrentCount), st.Name)
	ch <- prometheus.MustNewConstMetric(c.remaining, prometheus.GaugeValue, float64(st.Remaining), st.Name)
	ch <- prometheus.MustNewConstMetric(c.resetIn, prometheus.GaugeValue, st.ResetIn.Seconds(), st.Name)
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(st.MaxRequests), st.Name)
}

// AcquireMetrics implements ratelimit.Observer.
type AcquireMetrics struct {
	AcquireTotal *prometheus.CounterVec
	WaitSeconds  *prometheus.HistogramVec
}

// NewAcquireMetrics creates acquire counters and wait histograms.
func NewAcquireMetrics(namespace string) *AcquireMetrics {
	return &AcquireMetrics{
		AcquireTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: limiterSubsystem,
			Name:      "acquire_total",
			Help:      "Number of Acquire calls, by result.",
		}, []string{"result"}),
		WaitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: limiterSubsystem,
			Name:      "acquire_wait_seconds",
			Help:      "A histogram of the time Acquire spent waiting for a slot.",
			Buckets:   []float64{0, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"result"}),
	}
}

// ObserveAcquire implements ratelimit.Observer.
func (m *AcquireMetrics) ObserveAcquire(waited time.Duration, err error) {
	result := AcquireGranted
	switch {
	case errors.Is(err, ratelimit.ErrCancelled):
		result = AcquireCancelled
	case err != nil:
		result = AcquireFailed
	}
	m.AcquireTotal.WithLabelValues(result).Inc()
	m.WaitSeconds.WithLabelValues(result).Observe(waited.Seconds())
}

// NewLimiterObserver creates the acquire metrics for the limiter and registers them on the Set.
// The Observer is passed to ratelimit.NewWithOpts before the limiter exists, so the status
// gauges are registered separately through RegisterLimiter.
func (s *Set) NewLimiterObserver() (*AcquireMetrics, error) {
	m := NewAcquireMetrics(s.namespace)
	if err := s.Registry.Register(m.AcquireTotal); err != nil {
		return nil, err
	}
	if err := s.Registry.Register(m.WaitSeconds); err != nil {
		s.Registry.Unregister(m.AcquireTotal)
		return nil, err
	}
	return m, nil
}

// RegisterLimiter registers status gauges for limiter.
func (s *Set) RegisterLimiter(limiter *ratelimit.Limiter) error {
	return s.Registry.Register(NewLimiterCollector(s.namespace, limiter))
}
