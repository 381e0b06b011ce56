package positions

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/fleetwatch/pkg/geo"
)

func TestOpenSkyFetch(t *testing.T) {
	t.Run("Sends bounds as lat/lon limits", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/states/all", r.URL.Path)
			q := r.URL.Query()
			assert.Equal(t, "40.0000", q.Get("lamin"))
			assert.Equal(t, "-10.0000", q.Get("lomin"))
			assert.Equal(t, "50.0000", q.Get("lamax"))
			assert.Equal(t, "10.0000", q.Get("lomax"))
			assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
			w.Write([]byte(`{"time":1772355600,"states":[]}`))
		})

		bounds := &geo.Bounds{North: 50, South: 40, West: -10, East: 10}
		records, err := NewOpenSkyClient(testOptions(server.URL)).Fetch(context.Background(), bounds)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("Anonymous access without bounds", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.URL.RawQuery)
			assert.Empty(t, r.Header.Get("Authorization"))
			w.Write([]byte(`{"time":1772355600,"states":null}`))
		})

		opts := testOptions(server.URL)
		opts.APIKey = ""
		records, err := NewOpenSkyClient(opts).Fetch(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("Converts state vectors to feet and knots", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"time":1772355600,"states":[
				["A1B2C3","UAL1    ","United States",1772355590,1772355599,-73.5,40.5,10000,false,250,370,0,null,10100,"1200",false,0],
				["4ca7b2","EIN123  ","Ireland",1772355590,1772355599,-6.27,53.42,null,true,5.1,90,null,null,null,null,false,0],
				["abc123","GEO1","Nowhere",null,1772355599,1.0,2.0,null,false,null,null,null,null,3000,null,false,0]
			]}`))
		})

		records, err := NewOpenSkyClient(testOptions(server.URL)).Fetch(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, records, 3)

		a := records[0]
		assert.Equal(t, "a1b2c3", a.FlightID)
		assert.Equal(t, "UAL1", a.Callsign)
		assert.Equal(t, 40.5, *a.Latitude)
		assert.Equal(t, -73.5, *a.Longitude)
		assert.InDelta(t, 32808.4, *a.Altitude, 0.01)
		assert.InDelta(t, 485.961, *a.Speed, 0.001)
		assert.InDelta(t, 10.0, *a.Heading, 1e-9)

		ground := records[1]
		require.NotNil(t, ground.Altitude)
		assert.Equal(t, 0.0, *ground.Altitude, "on the ground is 0 ft")
		assert.InDelta(t, 9.914, *ground.Speed, 0.001)

		geoOnly := records[2]
		assert.InDelta(t, 9842.52, *geoOnly.Altitude, 0.01)
		assert.Nil(t, geoOnly.Speed)
		assert.Nil(t, geoOnly.Heading)
	})

	t.Run("Malformed states are dropped", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"states":[
				["short","x"],
				["bad001","BAD",null,null,null,-73.5,95,1000,false,200,10,null,null,null,null,false,0],
				["ok0001","OK",null,null,null,1,2,1000,false,200,10,null,null,null,null,false,0]
			]}`))
		})

		var dropped []error
		opts := testOptions(server.URL)
		opts.OnDrop = func(provider string, err error) {
			assert.Equal(t, "opensky", provider)
			dropped = append(dropped, err)
		}

		records, err := NewOpenSkyClient(opts).Fetch(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "ok0001", records[0].FlightID)
		require.Len(t, dropped, 2)
		for _, d := range dropped {
			assert.ErrorIs(t, d, ErrMalformedRecord)
		}
	})

	t.Run("Server errors make the source unavailable", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		_, err := NewOpenSkyClient(testOptions(server.URL)).Fetch(context.Background(), nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSourceUnavailable))
	})
}
