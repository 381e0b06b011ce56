// Package alerts raises operational alerts from committed flight state.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/unklstewy/fleetwatch/internal/db"
	"github.com/unklstewy/fleetwatch/internal/metrics"
	"github.com/unklstewy/fleetwatch/pkg/flight"
)

// Notifier is told about every newly raised alert.
type Notifier interface {
	Notify(ctx context.Context, a flight.Alert, f flight.TrackedFlight) error
}

// Config holds the delay thresholds.
type Config struct {
	// DelayThreshold is the delay above which an alert is raised
	DelayThreshold time.Duration

	// HighSeverityThreshold is the delay above which the alert is HIGH
	HighSeverityThreshold time.Duration
}

// DelayChecker raises a DELAY alert for each active flight whose departure
// is later than scheduled by more than the threshold. A flight with an
// unresolved DELAY alert gets no second one.
type DelayChecker struct {
	store     db.AlertStore
	cfg       Config
	notifiers []Notifier
	logger    zerolog.Logger
}

// NewDelayChecker creates a checker writing to store.
func NewDelayChecker(store db.AlertStore, cfg Config, logger zerolog.Logger, notifiers ...Notifier) *DelayChecker {
	return &DelayChecker{
		store:     store,
		cfg:       cfg,
		notifiers: notifiers,
		logger:    logger,
	}
}

// AfterCommit checks every active flight. Failures are logged and never
// returned to the tick.
func (c *DelayChecker) AfterCommit(ctx context.Context, active []flight.TrackedFlight, at time.Time) {
	raised, err := c.Check(ctx, active, at)
	if err != nil {
		c.logger.Error().Err(err).Msg("Delay check failed")
	}
	if len(raised) > 0 {
		c.logger.Info().Int("alerts", len(raised)).Msg("Delay alerts raised")
	}
}

// Check evaluates flights at now and returns the alerts it created.
func (c *DelayChecker) Check(ctx context.Context, flights []flight.TrackedFlight, now time.Time) ([]flight.Alert, error) {
	var raised []flight.Alert
	for _, f := range flights {
		delay, ok := Delay(f, now)
		if !ok || delay <= c.cfg.DelayThreshold {
			continue
		}

		open, err := c.store.HasOpenAlert(ctx, f.ID, flight.AlertDelay)
		if err != nil {
			return raised, fmt.Errorf("failed to check open alerts for flight %d: %w", f.ID, err)
		}
		if open {
			continue
		}

		severity := flight.SeverityMedium
		if delay > c.cfg.HighSeverityThreshold {
			severity = flight.SeverityHigh
		}

		a, err := c.store.CreateAlert(ctx, flight.Alert{
			FlightID:  f.ID,
			Type:      flight.AlertDelay,
			Severity:  severity,
			Message:   fmt.Sprintf("Flight %s delayed by %d minutes", label(f), int(delay.Minutes())),
			CreatedAt: now,
		})
		if err != nil {
			return raised, fmt.Errorf("failed to create alert for flight %d: %w", f.ID, err)
		}
		metrics.AlertsRaised.WithLabelValues(string(a.Type)).Inc()
		raised = append(raised, a)

		for _, n := range c.notifiers {
			if err := n.Notify(ctx, a, f); err != nil {
				c.logger.Warn().Err(err).Int64("alert", a.ID).Msg("Alert notification failed")
			}
		}
	}
	return raised, nil
}

// Delay returns how late f departed, or is departing if it has not yet,
// relative to its scheduled departure. ok is false without a schedule, and
// for a flight that has left without a known departure time.
func Delay(f flight.TrackedFlight, now time.Time) (delay time.Duration, ok bool) {
	if f.ScheduledDeparture == nil {
		return 0, false
	}
	departure := now
	switch {
	case f.ActualDeparture != nil:
		departure = *f.ActualDeparture
	case f.Status.HasDeparted():
		return 0, false
	}
	return departure.Sub(*f.ScheduledDeparture), true
}

// label names a flight for humans.
func label(f flight.TrackedFlight) string {
	switch {
	case f.FlightID != "":
		return f.FlightID
	case f.TailNumber != "":
		return f.TailNumber
	default:
		return fmt.Sprintf("#%d", f.ID)
	}
}
