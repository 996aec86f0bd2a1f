package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics captures counters for the consumer path.
type Metrics interface {
	IncConsumed()
	IncDropped(reason string)
	IncDispatched()
	IncDispatchFailed()
	IncReclaimed()
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncConsumed()       {}
func (Noop) IncDropped(string)  {}
func (Noop) IncDispatched()     {}
func (Noop) IncDispatchFailed() {}
func (Noop) IncReclaimed()      {}

// Prom implements Metrics backed by Prometheus counters.
type Prom struct {
	consumed       prometheus.Counter
	dropped        *prometheus.CounterVec
	dispatched     prometheus.Counter
	dispatchFailed prometheus.Counter
	reclaimed      prometheus.Counter
	once           sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		consumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Log entries read from the case event stream",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Log entries acknowledged without dispatch, by reason",
		}, []string{"reason"}),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_dispatched_total",
			Help:      "Workflow runs started from case events",
		}),
		dispatchFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_dispatch_failures_total",
			Help:      "Dispatch attempts that failed and will be retried",
		}),
		reclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_reclaimed_total",
			Help:      "Stale pending entries force-claimed from other consumers",
		}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.consumed, p.dropped, p.dispatched, p.dispatchFailed, p.reclaimed)
	})
}

func (p *Prom) IncConsumed()             { p.consumed.Inc() }
func (p *Prom) IncDropped(reason string) { p.dropped.WithLabelValues(reason).Inc() }
func (p *Prom) IncDispatched()           { p.dispatched.Inc() }
func (p *Prom) IncDispatchFailed()       { p.dispatchFailed.Inc() }
func (p *Prom) IncReclaimed()            { p.reclaimed.Inc() }

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
