// Package metrics exposes Prometheus instrumentation for the decision
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is a
// no-op so instrumentation stays optional.
type Metrics struct {
	Requests      *prometheus.CounterVec
	TokensCharged prometheus.Counter
	CostUSD       prometheus.Counter
	Latency       *prometheus.HistogramVec
}

// New registers the pipeline collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "froth_requests_total",
			Help: "Routed requests by result source.",
		}, []string{"source"}),
		TokensCharged: factory.NewCounter(prometheus.CounterOpts{
			Name: "froth_tokens_charged_total",
			Help: "Tokens actually deducted from user quotas.",
		}),
		CostUSD: factory.NewCounter(prometheus.CounterOpts{
			Name: "froth_cost_usd_total",
			Help: "USD spent on generative calls.",
		}),
		Latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "froth_request_seconds",
			Help:    "End-to-end request latency by result source.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
	}
}

// Observe records the outcome of one routed request.
func (m *Metrics) Observe(source string, tokensCharged int, costUSD, seconds float64) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(source).Inc()
	m.Latency.WithLabelValues(source).Observe(seconds)
	if tokensCharged > 0 {
		m.TokensCharged.Add(float64(tokensCharged))
	}
	if costUSD > 0 {
		m.CostUSD.Add(costUSD)
	}
}
