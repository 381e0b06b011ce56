package positions

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/unklstewy/fleetwatch/pkg/flight"
	"github.com/unklstewy/fleetwatch/pkg/geo"
)

// airport is a fixed endpoint for mock routes.
type airport struct {
	Code string
	geo.Point
}

var mockAirports = []airport{
	{"JFK", geo.Point{Latitude: 40.6413, Longitude: -73.7781}},
	{"LAX", geo.Point{Latitude: 33.9416, Longitude: -118.4085}},
	{"ORD", geo.Point{Latitude: 41.9742, Longitude: -87.9073}},
	{"LHR", geo.Point{Latitude: 51.4700, Longitude: -0.4543}},
	{"CDG", geo.Point{Latitude: 49.0097, Longitude: 2.5479}},
	{"FRA", geo.Point{Latitude: 50.0379, Longitude: 8.5622}},
	{"AMS", geo.Point{Latitude: 52.3105, Longitude: 4.7683}},
	{"MAD", geo.Point{Latitude: 40.4983, Longitude: -3.5676}},
	{"DXB", geo.Point{Latitude: 25.2532, Longitude: 55.3657}},
	{"SIN", geo.Point{Latitude: 1.3644, Longitude: 103.9915}},
	{"HND", geo.Point{Latitude: 35.5494, Longitude: 139.7798}},
	{"SYD", geo.Point{Latitude: -33.9399, Longitude: 151.1753}},
	{"GRU", geo.Point{Latitude: -23.4356, Longitude: -46.4731}},
	{"MEX", geo.Point{Latitude: 19.4363, Longitude: -99.0721}},
}

var mockAirlines = []struct{ Code, Name string }{
	{"AAL", "American Airlines"},
	{"UAL", "United Airlines"},
	{"DAL", "Delta Air Lines"},
	{"BAW", "British Airways"},
	{"AFR", "Air France"},
	{"DLH", "Lufthansa"},
	{"KLM", "KLM Royal Dutch Airlines"},
	{"UAE", "Emirates"},
	{"SIA", "Singapore Airlines"},
	{"QFA", "Qantas"},
}

var mockAircraftTypes = []string{"B738", "B77W", "A320", "A321", "B789", "A350", "B748", "A380", "E190", "CRJ9"}

// mockFlight is one route in the mock fleet.
type mockFlight struct {
	FlightID     string
	Callsign     string
	TailNumber   string
	AircraftType string
	Airline      string
	Origin       airport
	Destination  airport
	Departure    time.Time
	Duration     time.Duration

	// Override replaces the progress-derived status, e.g. "cancelled"
	Override string
}

// Mock is a deterministic in-process Source for tests and offline
// development. Positions move along great-circle routes as time passes.
type Mock struct {
	mu      sync.Mutex
	flights []mockFlight
	now     func() time.Time
	failErr error
}

// NewMock builds a fleet of n flights. The fleet is fully determined by
// seed and start; seed 0 picks a random seed. now supplies the clock used
// by Fetch and defaults to time.Now.
func NewMock(n int, seed int64, start time.Time, now func() time.Time) *Mock {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if now == nil {
		now = time.Now
	}
	rng := rand.New(rand.NewSource(seed))

	flights := make([]mockFlight, 0, n)
	for i := 0; i < n; i++ {
		origin := mockAirports[rng.Intn(len(mockAirports))]
		dest := mockAirports[rng.Intn(len(mockAirports))]
		for dest.Code == origin.Code {
			dest = mockAirports[rng.Intn(len(mockAirports))]
		}
		airline := mockAirlines[rng.Intn(len(mockAirlines))]

		mf := mockFlight{
			FlightID:     fmt.Sprintf("%08x", rng.Uint32()),
			Callsign:     fmt.Sprintf("%s%d", airline.Code, 100+rng.Intn(9900)),
			TailNumber:   fmt.Sprintf("N%d%c%c", 100+rng.Intn(900), 'A'+rune(rng.Intn(26)), 'A'+rune(rng.Intn(26))),
			AircraftType: mockAircraftTypes[rng.Intn(len(mockAircraftTypes))],
			Airline:      airline.Name,
			Origin:       origin,
			Destination:  dest,
			Departure:    start.Add(-time.Duration(rng.Intn(6)) * time.Hour).Add(-time.Duration(rng.Intn(60)) * time.Minute),
			Duration:     time.Duration(1+rng.Intn(12)) * time.Hour,
		}
		if rng.Float64() < 0.05 {
			mf.Override = []string{"diverted", "cancelled"}[rng.Intn(2)]
		}
		flights = append(flights, mf)
	}

	return &Mock{flights: flights, now: now}
}

// Name implements Source.
func (m *Mock) Name() string {
	return "mock"
}

// FailWith makes every following Fetch fail with err wrapped as source
// unavailable; nil restores normal behavior.
func (m *Mock) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// Fetch implements Source.
func (m *Mock) Fetch(ctx context.Context, bounds *geo.Bounds) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(m.Name(), err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return nil, unavailable(m.Name(), m.failErr)
	}

	now := m.now()
	records := make([]Record, 0, len(m.flights))
	for _, mf := range m.flights {
		records = append(records, mf.record(now))
	}
	return filterBounds(records, bounds), nil
}

// Fleet returns tracked-flight templates for the mock fleet so a store can
// be seeded with flights the mock will report on. Flights whose departure
// time has passed start as DEPARTED, departed on schedule, so the tracker
// picks them up. IDs are
// left for the store to assign.
func (m *Mock) Fleet() []flight.TrackedFlight {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]flight.TrackedFlight, 0, len(m.flights))
	for _, mf := range m.flights {
		dep := mf.Departure
		arr := mf.Departure.Add(mf.Duration)
		f := flight.TrackedFlight{
			FlightID:           mf.FlightID,
			TailNumber:         mf.TailNumber,
			Status:             flight.StatusScheduled,
			ScheduledDeparture: &dep,
			ScheduledArrival:   &arr,
		}
		if !now.Before(dep) {
			f.Status = flight.StatusDeparted
			f.ActualDeparture = flight.Time(dep)
		}
		out = append(out, f)
	}
	return out
}

// record computes the flight's observation at now.
func (mf mockFlight) record(now time.Time) Record {
	progress := float64(now.Sub(mf.Departure)) / float64(mf.Duration)
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	var status string
	switch {
	case progress <= 0:
		status = "scheduled"
	case progress < 0.1:
		status = "departed"
	case progress < 0.9:
		status = "en-route"
	default:
		status = "landed"
	}
	if mf.Override != "" {
		status = mf.Override
	}

	pos := geo.Interpolate(mf.Origin.Point, mf.Destination.Point, progress)
	heading := geo.Bearing(pos, mf.Destination.Point)

	// Climb for the first tenth of the route, descend for the last
	var altitude, speed float64
	if progress > 0 && progress < 1 {
		factor := 1.0
		if progress < 0.1 {
			factor = progress / 0.1
		} else if progress > 0.9 {
			factor = (1 - progress) / 0.1
		}
		altitude = float64(int(35000 * factor))
		speed = float64(int(400 + 200*factor))
	}

	return Record{
		FlightID:     mf.FlightID,
		Callsign:     mf.Callsign,
		TailNumber:   mf.TailNumber,
		Latitude:     &pos.Latitude,
		Longitude:    &pos.Longitude,
		Altitude:     &altitude,
		Speed:        &speed,
		Heading:      &heading,
		Status:       status,
		AircraftType: mf.AircraftType,
		Origin:       mf.Origin.Code,
		Destination:  mf.Destination.Code,
		Airline:      mf.Airline,
	}
}
