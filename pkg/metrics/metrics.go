// Package metrics centralises the Prometheus collectors the discovery
// engine exposes beyond pkg/budget's own per-entity cost/iteration
// gauges: call counters for each outbound collaborator and a histogram
// of entity run duration, all under the "discovery" namespace.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps a dedicated prometheus.Registry so the engine's metrics
// don't collide with anything else registered in the same process.
type Registry struct {
	reg *prometheus.Registry

	SearchCalls    *prometheus.CounterVec
	ScrapeCalls    *prometheus.CounterVec
	LLMCalls       *prometheus.CounterVec
	LLMCostUSD     prometheus.Counter
	DossiersEmitted *prometheus.CounterVec
	EntityDuration prometheus.Histogram
}

// New constructs a Registry with every collector registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		SearchCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "discovery",
			Subsystem: "search",
			Name:      "calls_total",
			Help:      "Search engine calls, by engine and outcome.",
		}, []string{"engine", "outcome"}),
		ScrapeCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "discovery",
			Subsystem: "scrape",
			Name:      "calls_total",
			Help:      "Scrape attempts, by outcome.",
		}, []string{"outcome"}),
		LLMCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "discovery",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "LLM judge calls, by tier and outcome.",
		}, []string{"tier", "outcome"}),
		LLMCostUSD: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "discovery",
			Subsystem: "llm",
			Name:      "cost_usd_total",
			Help:      "Cumulative LLM spend in USD across every entity run.",
		}),
		DossiersEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "discovery",
			Subsystem: "dossier",
			Name:      "emitted_total",
			Help:      "Dossiers emitted, by confidence band.",
		}, []string{"confidence_band"}),
		EntityDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "discovery",
			Subsystem: "entity",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of one entity's discovery run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	reg.MustRegister(
		r.SearchCalls,
		r.ScrapeCalls,
		r.LLMCalls,
		r.LLMCostUSD,
		r.DossiersEmitted,
		r.EntityDuration,
	)
	return r
}

// Handler serves the registry's collectors in the Prometheus exposition
// format, mounted at /metrics alongside /healthz (spec §4.C12 domain
// stack: ambient observability on the batch process).
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
