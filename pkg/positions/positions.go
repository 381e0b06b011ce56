// Package positions adapts external live-position providers to a single
// flat record type.
//
// Every provider implements Source. A failed fetch returns an error that
// wraps ErrSourceUnavailable; callers treat it as "no records this tick".
// Individual records that cannot be normalized are dropped without failing
// the fetch.
package positions

import (
	"context"
	"errors"

	"github.com/unklstewy/fleetwatch/pkg/geo"
)

// ErrSourceUnavailable is wrapped by every fetch failure: transport errors,
// timeouts, non-2xx responses and undecodable payloads.
var ErrSourceUnavailable = errors.New("position source unavailable")

// ErrMalformedRecord is wrapped by the error passed to drop handlers when a
// single record fails normalization.
var ErrMalformedRecord = errors.New("malformed position record")

// Record is one provider observation, valid for a single reconciliation
// cycle. Nil numeric fields mean the provider did not report the value.
// Latitude and Longitude are either both set or both nil.
type Record struct {
	// FlightID is the provider's identifier for the flight
	FlightID string

	Callsign string

	// TailNumber is the aircraft registration
	TailNumber string

	Latitude  *float64
	Longitude *float64

	// Altitude in feet; 0 means on the ground
	Altitude *float64

	// Speed is ground speed in knots
	Speed *float64

	// Heading in degrees, normalized into [0,360)
	Heading *float64

	// Status is the provider's status string, unmapped
	Status string

	AircraftType string
	Origin       string
	Destination  string
	Airline      string
}

// Point returns the record's position, if it has one.
func (r Record) Point() (geo.Point, bool) {
	if r.Latitude == nil || r.Longitude == nil {
		return geo.Point{}, false
	}
	return geo.Point{Latitude: *r.Latitude, Longitude: *r.Longitude}, true
}

// Source is implemented by every position provider.
type Source interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Fetch returns the provider's current positions, restricted to bounds
	// when bounds is non-nil. Records keep the provider's order.
	Fetch(ctx context.Context, bounds *geo.Bounds) ([]Record, error)
}

// DropFunc is called once for every record discarded during normalization.
type DropFunc func(provider string, err error)

// filterBounds keeps records inside b. Records without a position are
// dropped because they cannot be shown to be inside.
func filterBounds(records []Record, b *geo.Bounds) []Record {
	if b == nil {
		return records
	}
	out := records[:0]
	for _, r := range records {
		if p, ok := r.Point(); ok && b.Contains(p) {
			out = append(out, r)
		}
	}
	return out
}
