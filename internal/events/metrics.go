package events

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups Prometheus collectors for bus activity.
type Metrics struct {
	PublishedTotal       *prometheus.CounterVec
	HandlerFailuresTotal *prometheus.CounterVec
}

// NewMetrics registers and returns bus metrics collectors.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		PublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Count of events published on the in-process bus.",
		}, []string{"topic"}),
		HandlerFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handler_failures_total",
			Help:      "Count of event handler errors and panics, by topic.",
		}, []string{"topic"}),
	}
	registerCounterVec(reg, &m.PublishedTotal)
	registerCounterVec(reg, &m.HandlerFailuresTotal)
	return m
}

func registerCounterVec(reg prometheus.Registerer, vec **prometheus.CounterVec) {
	if err := reg.Register(*vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				*vec = existing
				return
			}
		}
		panic(fmt.Errorf("register bus metric: %w", err))
	}
}
