package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/docquery/docquery/internal/errors"
	"github.com/docquery/docquery/internal/metrics"
)

// MetricsHandler serves set in the Prometheus exposition format. A nil set answers 503.
func MetricsHandler(set *metrics.Set) http.Handler {
	if set == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			HandleError(w, r, apperrors.NewServiceUnavailableError("Metrics are disabled"))
		})
	}
	return promhttp.HandlerFor(set.Registry, promhttp.HandlerOpts{
		Registry: set.Registry,
	})
}
