// Package simulate produces plausible next positions for flights that have
// no fresh provider data.
package simulate

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/unklstewy/fleetwatch/pkg/flight"
)

// Perturbation and clamping limits applied on each step.
const (
	MaxCoordinateJitter = 0.01 // degrees
	MaxAltitudeJitter   = 500  // feet
	MaxSpeedJitter      = 20   // knots

	MinAltitude = 20000.0
	MaxAltitude = 40000.0
	MinSpeed    = 400.0
	MaxSpeed    = 600.0
)

// Simulator perturbs flight positions with bounded random noise.
// It is safe for concurrent use.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a simulator. The same non-zero seed always yields the same
// sequence of positions; seed 0 picks a time-based seed.
func New(seed int64) *Simulator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{rng: rand.New(rand.NewSource(seed))}
}

// Advance returns f moved by one simulated step. The input is not
// modified. Latitude is held at the poles and longitude wraps at the
// antimeridian. A flight without both coordinates is returned unchanged, and
// a nil altitude or speed stays nil. Heading is never changed.
func (s *Simulator) Advance(f flight.TrackedFlight) flight.TrackedFlight {
	if !f.HasPosition() {
		return f
	}

	out := f.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	*out.Latitude = clamp(*out.Latitude+s.uniform(MaxCoordinateJitter), -90, 90)
	*out.Longitude = wrapLongitude(*out.Longitude + s.uniform(MaxCoordinateJitter))

	if out.Altitude != nil {
		*out.Altitude = clamp(*out.Altitude+s.intn(MaxAltitudeJitter), MinAltitude, MaxAltitude)
	}
	if out.Speed != nil {
		*out.Speed = clamp(*out.Speed+s.intn(MaxSpeedJitter), MinSpeed, MaxSpeed)
	}

	return out
}

// uniform returns a value in [-limit, +limit].
func (s *Simulator) uniform(limit float64) float64 {
	return (s.rng.Float64()*2 - 1) * limit
}

// intn returns an integer in [-limit, +limit] as a float.
func (s *Simulator) intn(limit int) float64 {
	return float64(s.rng.Intn(2*limit+1) - limit)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// wrapLongitude maps lon into [-180, 180].
func wrapLongitude(lon float64) float64 {
	if lon >= -180 && lon <= 180 {
		return lon
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
