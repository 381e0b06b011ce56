// Package metrics exposes the Prometheus instrumentation for the tracker,
// the broadcast hub and the position providers.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tracker metrics
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_ticks_total",
			Help: "Total number of reconciliation ticks by result",
		},
		[]string{"result"},
	)

	TicksSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwatch_ticks_skipped_total",
			Help: "Ticks skipped because the previous cycle was still running",
		},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetwatch_tick_duration_seconds",
			Help:    "Reconciliation tick duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FlightsReconciled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_flights_reconciled_total",
			Help: "Flights updated per tick by match kind (id, tail, simulated)",
		},
		[]string{"match"},
	)

	// Source metrics
	SourceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_source_failures_total",
			Help: "Failed position fetches by provider",
		},
		[]string{"provider"},
	)

	RecordsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_records_dropped_total",
			Help: "Malformed provider records dropped during normalization",
		},
		[]string{"provider"},
	)

	// Hub metrics
	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetwatch_subscribers",
			Help: "Current number of live feed subscribers",
		},
	)

	SnapshotsPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwatch_snapshots_published_total",
			Help: "Total number of snapshots published to subscribers",
		},
	)

	// Alert metrics
	AlertsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_alerts_raised_total",
			Help: "Operational alerts raised by type",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal)
	prometheus.MustRegister(TicksSkipped)
	prometheus.MustRegister(TickDuration)
	prometheus.MustRegister(FlightsReconciled)
	prometheus.MustRegister(SourceFailures)
	prometheus.MustRegister(RecordsDropped)
	prometheus.MustRegister(Subscribers)
	prometheus.MustRegister(SnapshotsPublished)
	prometheus.MustRegister(AlertsRaised)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation for a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in seconds on h.
func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}

// RecordDropped counts one dropped provider record. Its signature matches
// positions.DropFunc.
func RecordDropped(provider string, _ error) {
	RecordsDropped.WithLabelValues(provider).Inc()
}
