package flight

import (
	"time"
)

// FlightJSON is the wire form of a TrackedFlight used by both the pull
// query and the subscription feed.
type FlightJSON struct {
	ID                 int64      `json:"id"`
	FlightID           *string    `json:"flight_id"`
	TailNumber         *string    `json:"tail_number"`
	Status             Status     `json:"status"`
	DepartureTime      *time.Time `json:"departure_time"`
	ArrivalTime        *time.Time `json:"arrival_time"`
	CurrentPositionLat *float64   `json:"current_position_lat"`
	CurrentPositionLon *float64   `json:"current_position_lon"`
	Altitude           *float64   `json:"altitude"`
	Speed              *float64   `json:"speed"`
	Heading            *float64   `json:"heading"`
}

// ToJSON converts a flight to its wire form. Empty identifiers become null.
func ToJSON(f TrackedFlight) FlightJSON {
	return FlightJSON{
		ID:                 f.ID,
		FlightID:           optString(f.FlightID),
		TailNumber:         optString(f.TailNumber),
		Status:             f.Status,
		DepartureTime:      utc(f.DepartureTime()),
		ArrivalTime:        utc(f.ArrivalTime()),
		CurrentPositionLat: f.Latitude,
		CurrentPositionLon: f.Longitude,
		Altitude:           f.Altitude,
		Speed:              f.Speed,
		Heading:            f.Heading,
	}
}

// ListJSON converts a slice of flights, never returning nil so the
// encoded array is [] rather than null.
func ListJSON(flights []TrackedFlight) []FlightJSON {
	out := make([]FlightJSON, 0, len(flights))
	for _, f := range flights {
		out = append(out, ToJSON(f))
	}
	return out
}

// ActiveFlightsResponse is the body of the pull query.
type ActiveFlightsResponse struct {
	Flights []FlightJSON `json:"flights"`
}

// Snapshot is the set of active flights handed to subscribers after a
// committed tick. A Snapshot is never mutated after NewSnapshot returns.
type Snapshot struct {
	Flights   []FlightJSON `json:"flights"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewSnapshot builds a snapshot of flights stamped with at.
func NewSnapshot(flights []TrackedFlight, at time.Time) Snapshot {
	return Snapshot{
		Flights:   ListJSON(flights),
		Timestamp: at.UTC(),
	}
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
