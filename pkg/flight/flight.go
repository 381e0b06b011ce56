// Package flight defines the tracked-flight model shared by the store,
// the reconciliation engine and the broadcast feed.
package flight

import (
	"strings"
	"time"
)

// Status is the internal flight status vocabulary.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusDeparted  Status = "DEPARTED"
	StatusEnRoute   Status = "EN_ROUTE"
	StatusArrived   Status = "ARRIVED"
	StatusDelayed   Status = "DELAYED"
	StatusCancelled Status = "CANCELLED"
	StatusDiverted  Status = "DIVERTED"

	// StatusActive is assigned when a provider reports a status string
	// that has no internal equivalent.
	StatusActive Status = "ACTIVE"
)

// ActiveStatuses lists the statuses reconciled on every tick.
var ActiveStatuses = []Status{StatusDeparted, StatusEnRoute, StatusDelayed, StatusActive}

// IsActive reports whether flights in this status are reconciled each tick.
func (s Status) IsActive() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the flight is finished and no longer mutated.
func (s Status) IsTerminal() bool {
	return s == StatusArrived || s == StatusCancelled
}

// HasDeparted reports whether a flight in this status has already left.
// ACTIVE counts as departed since providers only report unmapped statuses
// for flights they are tracking.
func (s Status) HasDeparted() bool {
	switch s {
	case StatusDeparted, StatusEnRoute, StatusActive, StatusArrived, StatusDiverted:
		return true
	}
	return false
}

// ParseStatus converts a stored or user-supplied status into a Status.
// Returns false when the value is not part of the vocabulary.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusScheduled, StatusDeparted, StatusEnRoute, StatusArrived,
		StatusDelayed, StatusCancelled, StatusDiverted, StatusActive:
		return st, true
	case "LANDED":
		return StatusArrived, true
	}
	return "", false
}

// TrackedFlight is a flight under active surveillance.
//
// Position fields are nil until the first position is observed. Latitude
// and Longitude are either both set or both nil.
type TrackedFlight struct {
	// ID is assigned by the store and never changes.
	ID int64

	// FlightID is the provider's flight identifier; empty when unknown.
	FlightID string

	// TailNumber is the aircraft registration; empty when unknown.
	TailNumber string

	Status Status

	Latitude  *float64
	Longitude *float64

	// Altitude in feet.
	Altitude *float64

	// Speed is ground speed in knots.
	Speed *float64

	// Heading in degrees, within [0,360).
	Heading *float64

	ScheduledDeparture *time.Time
	ActualDeparture    *time.Time
	ScheduledArrival   *time.Time
	ActualArrival      *time.Time

	LastUpdated time.Time
}

// HasPosition reports whether both coordinates are known.
func (f TrackedFlight) HasPosition() bool {
	return f.Latitude != nil && f.Longitude != nil
}

// Clone returns a deep copy so callers can mutate the result freely.
func (f TrackedFlight) Clone() TrackedFlight {
	c := f
	c.Latitude = cloneFloat(f.Latitude)
	c.Longitude = cloneFloat(f.Longitude)
	c.Altitude = cloneFloat(f.Altitude)
	c.Speed = cloneFloat(f.Speed)
	c.Heading = cloneFloat(f.Heading)
	c.ScheduledDeparture = cloneTime(f.ScheduledDeparture)
	c.ActualDeparture = cloneTime(f.ActualDeparture)
	c.ScheduledArrival = cloneTime(f.ScheduledArrival)
	c.ActualArrival = cloneTime(f.ActualArrival)
	return c
}

// DepartureTime returns the actual departure if known, else the scheduled one.
func (f TrackedFlight) DepartureTime() *time.Time {
	if f.ActualDeparture != nil {
		return f.ActualDeparture
	}
	return f.ScheduledDeparture
}

// ArrivalTime returns the actual arrival if known, else the scheduled one.
func (f TrackedFlight) ArrivalTime() *time.Time {
	if f.ActualArrival != nil {
		return f.ActualArrival
	}
	return f.ScheduledArrival
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Time returns a pointer to t.
func Time(t time.Time) *time.Time {
	return &t
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
