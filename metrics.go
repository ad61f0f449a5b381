package rowbind

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Strategy labels reported on resolution.
const (
	strategyRegistered = "registered"
	strategyCoercion   = "coercion"
	strategyFactory    = "factory"
	strategyReflection = "reflection"
)

type providerMetrics struct {
	resolutions *prometheus.CounterVec // by strategy
	cacheHits   prometheus.Counter
	failures    prometheus.Counter
}

// newProviderMetrics creates the provider collectors and registers them with
// reg. A nil reg leaves them unregistered.
func newProviderMetrics(reg prometheus.Registerer) *providerMetrics {
	f := promauto.With(reg)
	return &providerMetrics{
		resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rowbind_instantiator_resolutions_total",
			Help: "Instantiators resolved for a (type, columns) pair, by strategy.",
		}, []string{"strategy"}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "rowbind_instantiator_cache_hits_total",
			Help: "Instantiator lookups served from the cache.",
		}),
		failures: f.NewCounter(prometheus.CounterOpts{
			Name: "rowbind_instantiator_failures_total",
			Help: "Instantiator lookups that failed.",
		}),
	}
}
