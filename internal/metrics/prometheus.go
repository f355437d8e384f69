package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus is a Sink backed by prometheus collectors.
type Prometheus struct {
	mutations     *prometheus.CounterVec
	conflicts     prometheus.Counter
	skipped       prometheus.Counter
	pageRows      prometheus.Histogram
	cacheRetries  prometheus.Counter
	cacheFailures prometheus.Counter
}

// NewPrometheus builds a Sink and registers its collectors with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atomstore",
			Name:      "mutations_total",
			Help:      "Committed entry mutations by operation.",
		}, []string{"op"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "atomstore",
			Name:      "mutation_conflicts_total",
			Help:      "Mutations rejected by the optimistic revision check.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "atomstore",
			Name:      "mutations_skipped_total",
			Help:      "Writes short-circuited because content was unchanged.",
		}),
		pageRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "atomstore",
			Name:      "feed_page_rows",
			Help:      "Rows examined per feed page.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		cacheRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "atomstore",
			Name:      "aggregate_cache_advance_retries_total",
			Help:      "Retries of the post-commit aggregate cache advance.",
		}),
		cacheFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "atomstore",
			Name:      "aggregate_cache_advance_failures_total",
			Help:      "Aggregate cache advances abandoned after retries.",
		}),
	}
	reg.MustRegister(p.mutations, p.conflicts, p.skipped, p.pageRows, p.cacheRetries, p.cacheFailures)
	return p
}

func (p *Prometheus) MutationApplied(op string) { p.mutations.WithLabelValues(op).Inc() }
func (p *Prometheus) MutationConflict()         { p.conflicts.Inc() }
func (p *Prometheus) MutationSkipped()          { p.skipped.Inc() }
func (p *Prometheus) PageServed(rows int)       { p.pageRows.Observe(float64(rows)) }
func (p *Prometheus) CacheAdvanceRetried()      { p.cacheRetries.Inc() }
func (p *Prometheus) CacheAdvanceFailed()       { p.cacheFailures.Inc() }
