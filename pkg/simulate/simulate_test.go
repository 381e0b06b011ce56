package simulate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/fleetwatch/pkg/flight"
)

func cruising() flight.TrackedFlight {
	return flight.TrackedFlight{
		ID:        1,
		Status:    flight.StatusEnRoute,
		Latitude:  flight.Float(40.0),
		Longitude: flight.Float(-73.0),
		Altitude:  flight.Float(35000),
		Speed:     flight.Float(480),
		Heading:   flight.Float(270),
	}
}

func TestAdvance(t *testing.T) {
	t.Run("Stays within perturbation and clamp limits", func(t *testing.T) {
		sim := New(42)
		in := cruising()
		for i := 0; i < 1000; i++ {
			out := sim.Advance(in)

			assert.LessOrEqual(t, math.Abs(*out.Latitude-*in.Latitude), MaxCoordinateJitter)
			assert.LessOrEqual(t, math.Abs(*out.Longitude-*in.Longitude), MaxCoordinateJitter)
			assert.GreaterOrEqual(t, *out.Altitude, MinAltitude)
			assert.LessOrEqual(t, *out.Altitude, MaxAltitude)
			assert.GreaterOrEqual(t, *out.Speed, MinSpeed)
			assert.LessOrEqual(t, *out.Speed, MaxSpeed)
			assert.Equal(t, *in.Heading, *out.Heading)
		}
	})

	t.Run("Clamps out-of-range starting values", func(t *testing.T) {
		sim := New(7)
		in := cruising()
		in.Altitude = flight.Float(1000)
		in.Speed = flight.Float(900)

		out := sim.Advance(in)
		assert.Equal(t, MinAltitude, *out.Altitude)
		assert.Equal(t, MaxSpeed, *out.Speed)
	})

	t.Run("Altitude and speed move in whole units", func(t *testing.T) {
		sim := New(3)
		out := sim.Advance(cruising())
		assert.Equal(t, math.Trunc(*out.Altitude), *out.Altitude)
		assert.Equal(t, math.Trunc(*out.Speed), *out.Speed)
	})

	t.Run("Coordinates stay on the globe near the pole and antimeridian", func(t *testing.T) {
		sim := New(11)
		f := cruising()
		f.Latitude = flight.Float(89.999)
		f.Longitude = flight.Float(179.999)
		for i := 0; i < 200; i++ {
			f = sim.Advance(f)
			require.True(t, *f.Latitude >= -90 && *f.Latitude <= 90, "latitude %v", *f.Latitude)
			require.True(t, *f.Longitude >= -180 && *f.Longitude <= 180, "longitude %v", *f.Longitude)
		}
	})

	t.Run("No position is a no-op", func(t *testing.T) {
		sim := New(1)
		in := flight.TrackedFlight{ID: 2, Altitude: flight.Float(30000), Speed: flight.Float(450)}

		out := sim.Advance(in)
		assert.Equal(t, in, out)
		assert.Same(t, in.Altitude, out.Altitude)
	})

	t.Run("Only latitude known is a no-op", func(t *testing.T) {
		sim := New(1)
		in := flight.TrackedFlight{ID: 3, Latitude: flight.Float(10)}
		assert.Equal(t, in, sim.Advance(in))
	})

	t.Run("Nil altitude and speed stay nil", func(t *testing.T) {
		sim := New(1)
		in := cruising()
		in.Altitude = nil
		in.Speed = nil

		out := sim.Advance(in)
		assert.Nil(t, out.Altitude)
		assert.Nil(t, out.Speed)
		assert.NotNil(t, out.Latitude)
	})

	t.Run("Input is not modified", func(t *testing.T) {
		sim := New(9)
		in := cruising()
		_ = sim.Advance(in)
		assert.Equal(t, 40.0, *in.Latitude)
		assert.Equal(t, 35000.0, *in.Altitude)
	})

	t.Run("Same seed gives the same sequence", func(t *testing.T) {
		a, b := New(1234), New(1234)
		fa, fb := cruising(), cruising()
		for i := 0; i < 20; i++ {
			fa, fb = a.Advance(fa), b.Advance(fb)
		}
		require.NotNil(t, fa.Latitude)
		assert.Equal(t, *fa.Latitude, *fb.Latitude)
		assert.Equal(t, *fa.Longitude, *fb.Longitude)
		assert.Equal(t, *fa.Altitude, *fb.Altitude)
		assert.Equal(t, *fa.Speed, *fb.Speed)
	})
}

func TestWrapLongitude(t *testing.T) {
	assert.Equal(t, 179.5, wrapLongitude(179.5))
	assert.Equal(t, 180.0, wrapLongitude(180))
	assert.InDelta(t, -179.995, wrapLongitude(180.005), 1e-9)
	assert.InDelta(t, 179.995, wrapLongitude(-180.005), 1e-9)
	assert.InDelta(t, 10.0, wrapLongitude(370), 1e-9)
}
