package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters exported on /metrics.
type Metrics struct {
	HTTPRequests   *prometheus.CounterVec
	AIRequests     *prometheus.CounterVec
	CatalogAppends *prometheus.CounterVec
}

// NewMetrics registers the service counters on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intizar_http_requests_total",
				Help: "Total number of action requests processed.",
			},
			[]string{"method", "action", "status"},
		),
		AIRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intizar_ai_requests_total",
				Help: "AI gateway calls by outcome.",
			},
			[]string{"outcome"},
		),
		CatalogAppends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intizar_catalog_appends_total",
				Help: "Catalog append attempts by document type and outcome.",
			},
			[]string{"type", "outcome"},
		),
	}
	for _, c := range []prometheus.Collector{m.HTTPRequests, m.AIRequests, m.CatalogAppends} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveAI counts one gateway call; nil receivers are ignored.
func (m *Metrics) ObserveAI(outcome string) {
	if m == nil {
		return
	}
	m.AIRequests.WithLabelValues(outcome).Inc()
}

// ObserveAppend counts one catalog append attempt; nil receivers are ignored.
func (m *Metrics) ObserveAppend(docType, outcome string) {
	if m == nil {
		return
	}
	m.CatalogAppends.WithLabelValues(docType, outcome).Inc()
}
