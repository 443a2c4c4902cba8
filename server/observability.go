package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewObservability serves healthz on /healthz and the metrics gathered from
// gatherer on /metrics.
func NewObservability(config Config, healthz http.Handler, gatherer prometheus.Gatherer) *Server {
	router := http.NewServeMux()
	router.Handle("/healthz", healthz)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))

	return newServer(config, router)
}
