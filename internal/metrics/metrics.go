package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Attempts counts single forwarded requests by forwarder, query shape and outcome.
	Attempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_race_attempts_total", Help: "forwarded upstream requests",
	}, []string{"forwarder", "shape", "outcome"})

	// RaceFailures counts races in which every attempt failed.
	RaceFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_race_failures_total", Help: "races where every attempt failed",
	}, []string{"kind"})

	// HistoryRetries counts historical load attempts that had to be retried.
	HistoryRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_history_retries_total", Help: "historical load retries",
	}, []string{"symbol"})

	// Ticks counts live poller ticks by outcome.
	Ticks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_poll_ticks_total", Help: "live poller ticks",
	}, []string{"symbol", "outcome"})

	// Restarts counts forced watchdog restarts.
	Restarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_watchdog_restarts_total", Help: "watchdog forced restarts",
	}, []string{"symbol", "reason"})

	// Subscribers tracks active subscriptions per symbol.
	Subscribers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_subscribers", Help: "active subscribers",
	}, []string{"symbol"})

	// Dropped counts updates dropped by slow consumers.
	Dropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_dropped_updates_total", Help: "updates dropped because a consumer was full",
	}, []string{"consumer"})
)

// MustRegister registers every collector with reg.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(Attempts, RaceFailures, HistoryRetries, Ticks, Restarts, Subscribers, Dropped)
}
