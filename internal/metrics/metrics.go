// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus instruments.
type Metrics struct {
	WebhooksTotal        *prometheus.CounterVec
	TransitionsTotal     *prometheus.CounterVec
	DroppedEventsTotal   *prometheus.CounterVec
	BalanceSyncsTotal    *prometheus.CounterVec
	NotificationsTotal   *prometheus.CounterVec
	SchedulerRunsTotal   *prometheus.CounterVec
	SchedulerLastRunUnix prometheus.Gauge
	InFlightSettlements  prometheus.Gauge
}

// New registers and returns the service metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the service metrics on the given registerer.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "thellex",
				Subsystem: "webhook",
				Name:      "received_total",
				Help:      "Webhook deliveries partitioned by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		),
		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "thellex",
				Subsystem: "reconciler",
				Name:      "transitions_total",
				Help:      "Applied state transitions partitioned by target status.",
			},
			[]string{"status"},
		),
		DroppedEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "thellex",
				Subsystem: "reconciler",
				Name:      "dropped_events_total",
				Help:      "Discarded events partitioned by reason.",
			},
			[]string{"reason"},
		),
		BalanceSyncsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "thellex",
				Subsystem: "syncer",
				Name:      "balance_syncs_total",
				Help:      "Balance synchronizations partitioned by result.",
			},
			[]string{"result"},
		),
		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "thellex",
				Subsystem: "notify",
				Name:      "dispatched_total",
				Help:      "User notifications partitioned by kind and result.",
			},
			[]string{"kind", "result"},
		),
		SchedulerRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "thellex",
				Subsystem: "scheduler",
				Name:      "runs_total",
				Help:      "Settlement scheduler passes partitioned by class and result.",
			},
			[]string{"class", "result"},
		),
		SchedulerLastRunUnix: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "thellex",
				Subsystem: "scheduler",
				Name:      "last_run_unix",
				Help:      "Unix time of the most recent scheduler pass.",
			},
		),
		InFlightSettlements: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "thellex",
				Subsystem: "scheduler",
				Name:      "in_flight_settlements",
				Help:      "Settlement attempts currently awaiting a provider response.",
			},
		),
	}
}
