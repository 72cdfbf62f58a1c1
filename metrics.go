package grove

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors a container reports to. One Metrics
// value may be shared by a root container and all of its children.
type Metrics struct {
	// Constructions counts instances built by a registration's factory,
	// labelled by lifetime. Cache hits on Single registrations are not
	// constructions.
	Constructions *prometheus.CounterVec

	// ResolveDuration observes top-level Resolve, TryResolve, ResolveAll and
	// Inject calls, labelled by outcome: ok, not_found or error.
	ResolveDuration *prometheus.HistogramVec

	// Disposals counts tracked instances and child containers disposed,
	// labelled by result: ok or error.
	Disposals *prometheus.CounterVec
}

// NewMetrics creates the collectors under namespace and registers them with
// reg. A nil reg skips registration, which is convenient in tests.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Constructions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "container",
				Name:      "constructions_total",
				Help:      "Total number of service instances constructed",
			},
			[]string{"lifetime"},
		),
		ResolveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "container",
				Name:      "resolve_duration_seconds",
				Help:      "Duration of top-level resolve calls in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"outcome"},
		),
		Disposals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "container",
				Name:      "disposals_total",
				Help:      "Total number of tracked instances disposed",
			},
			[]string{"result"},
		),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.Constructions, m.ResolveDuration, m.Disposals} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) constructed(l Lifetime) {
	if m == nil {
		return
	}
	m.Constructions.WithLabelValues(l.String()).Inc()
}

func (m *Metrics) observeResolve(start time.Time, found bool, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case !found:
		outcome = "not_found"
	}
	m.ResolveDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func (m *Metrics) disposed(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Disposals.WithLabelValues(result).Inc()
}
