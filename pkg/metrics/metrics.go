// Package metrics defines the counters cubegate emits about context-cache
// behavior and upstream traffic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics captures cache and resolver activity.
type Metrics interface {
	IncCacheHit()
	IncCacheMiss()
	IncStaleServed()
	IncRefresh(status string)
	IncUpstreamRetry(operation string)
	IncReauth()
	ObserveResolve(status string, durationSeconds float64)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncCacheHit()                   {}
func (Noop) IncCacheMiss()                  {}
func (Noop) IncStaleServed()                {}
func (Noop) IncRefresh(string)              {}
func (Noop) IncUpstreamRetry(string)        {}
func (Noop) IncReauth()                     {}
func (Noop) ObserveResolve(string, float64) {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	staleServed     prometheus.Counter
	refreshes       *prometheus.CounterVec
	upstreamRetries *prometheus.CounterVec
	reauths         prometheus.Counter
	resolveDuration *prometheus.HistogramVec
}

// NewProm registers the cubegate collectors with reg and returns them.
// Tests pass a fresh registry for isolation.
func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cubegate",
			Name:      "context_cache_hits_total",
			Help:      "Context cache lookups served from a fresh snapshot",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cubegate",
			Name:      "context_cache_misses_total",
			Help:      "Context cache lookups that triggered a refresh",
		}),
		staleServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cubegate",
			Name:      "context_cache_stale_served_total",
			Help:      "Lookups served from a stale snapshot after a refresh failure",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cubegate",
			Name:      "context_refreshes_total",
			Help:      "Context snapshot refresh attempts by status",
		}, []string{"status"}),
		upstreamRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cubegate",
			Name:      "upstream_retries_total",
			Help:      "Upstream call retries by operation",
		}, []string{"operation"}),
		reauths: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cubegate",
			Name:      "upstream_reauths_total",
			Help:      "Re-authentications forced by a 401 from the upstream",
		}),
		resolveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cubegate",
			Name:      "driver_resolve_duration_seconds",
			Help:      "Driver resolution latency by status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
	}
	reg.MustRegister(
		p.cacheHits, p.cacheMisses, p.staleServed,
		p.refreshes, p.upstreamRetries, p.reauths, p.resolveDuration,
	)
	return p
}

func (p *Prom) IncCacheHit()    { p.cacheHits.Inc() }
func (p *Prom) IncCacheMiss()   { p.cacheMisses.Inc() }
func (p *Prom) IncStaleServed() { p.staleServed.Inc() }

func (p *Prom) IncRefresh(status string) {
	p.refreshes.WithLabelValues(status).Inc()
}

func (p *Prom) IncUpstreamRetry(operation string) {
	p.upstreamRetries.WithLabelValues(operation).Inc()
}

func (p *Prom) IncReauth() { p.reauths.Inc() }

func (p *Prom) ObserveResolve(status string, durationSeconds float64) {
	p.resolveDuration.WithLabelValues(status).Observe(durationSeconds)
}

// Handler returns the scrape endpoint for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
