package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "acectl",
		Name:      "active_sessions",
		Help:      "Number of session handles that have not been destroyed.",
	})

	StateTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "acectl",
		Name:      "state_transitions_total",
		Help:      "Session state transitions by source and target state.",
	}, []string{"from", "to"})

	RejectedTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "acectl",
		Name:      "rejected_transitions_total",
		Help:      "Engine-reported transitions that the state machine does not allow.",
	}, []string{"from", "to"})

	StaleReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "acectl",
		Name:      "stale_reports_total",
		Help:      "Engine reports discarded because they belong to a superseded load.",
	})

	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "acectl",
		Name:      "commands_total",
		Help:      "Commands submitted to the engine by command, delivery mode and result.",
	}, []string{"command", "mode", "result"})

	CommandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "acectl",
		Name:      "sync_command_duration_seconds",
		Help:      "Time spent waiting for synchronous engine commands.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"command"})

	DroppedEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "acectl",
		Name:      "dropped_events_total",
		Help:      "Events not delivered to a listener because its queue was full or it failed.",
	}, []string{"kind"})

	DetachedListenersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "acectl",
		Name:      "detached_listeners_total",
		Help:      "Listeners detached after repeated delivery failures.",
	})
)

// Register adds all collectors to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		ActiveSessions,
		StateTransitionsTotal,
		RejectedTransitionsTotal,
		StaleReportsTotal,
		CommandsTotal,
		CommandDuration,
		DroppedEventsTotal,
		DetachedListenersTotal,
	)
}
