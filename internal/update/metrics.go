package update

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "depnotify"

// Trigger results used as the "result" label.
const (
	resultDelivered = "delivered"
	resultEmpty     = "empty"
	resultFailed    = "failed"
)

// metrics holds the engine's Prometheus collectors.
// Built with a nil registerer the collectors work but are not exported.
type metrics struct {
	triggers         *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
	overflows        prometheus.Counter
	pending          prometheus.Gauge
	registrations    prometheus.Gauge
	dispatchDuration prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		triggers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "triggers_total",
				Help:      "Synchronous dispatches by result.",
			},
			[]string{"result"},
		),
		deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "deliveries_total",
				Help:      "Dependent Update calls by message kind.",
			},
			[]string{"message"},
		),
		overflows: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dispatch_overflow_total",
			Help:      "Dispatches whose snapshot was truncated at the dependents cap.",
		}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "deferred_pending",
			Help:      "Changes waiting in the deferred queue.",
		}),
		registrations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "registrations",
			Help:      "Dependent registrations across all subjects.",
		}),
		dispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent notifying the dependents of one trigger.",
			Buckets:   []float64{.00001, .0001, .001, .01, .1, 1},
		}),
	}
}

// messageLabel keeps label cardinality bounded: application defined
// messages share one label value.
func messageLabel(m Message) string {
	if m.IsReserved() {
		return m.String()
	}
	return "application"
}
