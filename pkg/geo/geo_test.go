package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	jfk = Point{Latitude: 40.6413, Longitude: -73.7781}
	lax = Point{Latitude: 33.9416, Longitude: -118.4085}
)

func TestDistanceNauticalMiles(t *testing.T) {
	t.Run("JFK to LAX", func(t *testing.T) {
		// Published great-circle distance is about 2145 nm
		d := DistanceNauticalMiles(jfk, lax)
		assert.InDelta(t, 2145, d, 10)
	})

	t.Run("Same point", func(t *testing.T) {
		assert.InDelta(t, 0, DistanceNauticalMiles(jfk, jfk), 1e-9)
	})
}

func TestBearing(t *testing.T) {
	t.Run("Due east along the equator", func(t *testing.T) {
		b := Bearing(Point{0, 0}, Point{0, 10})
		assert.InDelta(t, 90, b, 1e-6)
	})

	t.Run("Due south", func(t *testing.T) {
		b := Bearing(Point{10, 0}, Point{0, 0})
		assert.InDelta(t, 180, b, 1e-6)
	})

	t.Run("Westbound is within range", func(t *testing.T) {
		b := Bearing(jfk, lax)
		assert.GreaterOrEqual(t, b, 0.0)
		assert.Less(t, b, 360.0)
	})
}

func TestDestination(t *testing.T) {
	t.Run("Round trip with bearing and distance", func(t *testing.T) {
		d := DistanceNauticalMiles(jfk, lax)
		p := Destination(jfk, Bearing(jfk, lax), d)
		assert.InDelta(t, lax.Latitude, p.Latitude, 0.01)
		assert.InDelta(t, lax.Longitude, p.Longitude, 0.01)
	})

	t.Run("Sixty nautical miles north is one degree", func(t *testing.T) {
		p := Destination(Point{0, 0}, 0, 60)
		assert.InDelta(t, 1.0, p.Latitude, 0.01)
		assert.InDelta(t, 0.0, p.Longitude, 1e-9)
	})
}

func TestInterpolate(t *testing.T) {
	assert.Equal(t, jfk, Interpolate(jfk, lax, -1))
	assert.Equal(t, lax, Interpolate(jfk, lax, 2))

	mid := Interpolate(jfk, lax, 0.5)
	assert.InDelta(t, DistanceNauticalMiles(jfk, mid), DistanceNauticalMiles(mid, lax), 1)
}

func TestNormalizeHeading(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{359.9, 359.9},
		{360, 0},
		{-90, 270},
		{725, 5},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, NormalizeHeading(tt.in), 1e-9, "heading %v", tt.in)
	}
	assert.Less(t, NormalizeHeading(-1e-12), 360.0)
}

func TestBounds(t *testing.T) {
	b := Bounds{North: 50, South: 40, West: -10, East: 10}

	t.Run("Validate accepts a sane box", func(t *testing.T) {
		require.NoError(t, b.Validate())
	})

	t.Run("Validate rejects inverted latitudes", func(t *testing.T) {
		assert.Error(t, Bounds{North: 10, South: 20, West: 0, East: 1}.Validate())
	})

	t.Run("Validate rejects inverted longitudes", func(t *testing.T) {
		assert.Error(t, Bounds{North: 20, South: 10, West: 5, East: 1}.Validate())
	})

	t.Run("Validate rejects NaN", func(t *testing.T) {
		assert.Error(t, Bounds{North: math.NaN(), South: 10, West: 0, East: 1}.Validate())
	})

	t.Run("Contains", func(t *testing.T) {
		assert.True(t, b.Contains(Point{45, 0}))
		assert.True(t, b.Contains(Point{50, 10}))
		assert.False(t, b.Contains(Point{55, 0}))
		assert.False(t, b.Contains(Point{45, 11}))
	})

	t.Run("String uses N,S,W,E order", func(t *testing.T) {
		assert.Equal(t, "50.000,40.000,-10.000,10.000", b.String())
	})

	t.Run("Radius covers every corner", func(t *testing.T) {
		c := b.Center()
		r := b.RadiusNM()
		assert.Equal(t, Point{45, 0}, c)
		assert.GreaterOrEqual(t, r+1e-9, DistanceNauticalMiles(c, Point{50, -10}))
		assert.GreaterOrEqual(t, r+1e-9, DistanceNauticalMiles(c, Point{40, 10}))
	})
}
