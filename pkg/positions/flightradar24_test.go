package positions

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/fleetwatch/pkg/geo"
)

func testOptions(url string) Options {
	return Options{
		BaseURL: url,
		APIKey:  "token",
		Timeout: 2 * time.Second,
		Retry: RetryConfig{
			MaxRetries:   2,
			InitialDelay: 5 * time.Millisecond,
			MaxDelay:     20 * time.Millisecond,
			Multiplier:   2,
		},
		Logger: zerolog.Nop(),
	}
}

func serve(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestFlightradar24Fetch(t *testing.T) {
	t.Run("Sends auth headers and bounds", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/live/flight-positions/light", r.URL.Path)
			assert.Equal(t, "50.000,40.000,-10.000,10.000", r.URL.Query().Get("bounds"))
			assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
			assert.Equal(t, "v1", r.Header.Get("Accept-Version"))
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			w.Write([]byte(`{"data":[]}`))
		})

		client := NewFlightradar24Client(testOptions(server.URL))
		records, err := client.Fetch(context.Background(), &geo.Bounds{North: 50, South: 40, West: -10, East: 10})
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("No bounds sends no query", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.URL.RawQuery)
			w.Write([]byte(`{"data":[]}`))
		})

		_, err := NewFlightradar24Client(testOptions(server.URL)).Fetch(context.Background(), nil)
		require.NoError(t, err)
	})

	t.Run("Parses the data array with field aliases", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":[
				{"fr24_id":"FR100","callsign":"UAL1","reg":"N123AB","lat":10.5,"lon":20.25,
				 "alt":35000,"gspeed":480,"track":370,"status":"en-route","type":"B738",
				 "orig_iata":"JFK","dest_iata":"LAX"},
				{"id":"FR200","registration":"N999ZZ","latitude":"30.0","longitude":"40.0",
				 "altitude":0,"speed":"12","heading":-90,"status":"landed",
				 "aircraft":{"type":"A320"},"departure":{"code":"ORD"},"arrival":{"code":"ATL"},
				 "airline":{"name":"Delta"}}
			]}`))
		})

		records, err := NewFlightradar24Client(testOptions(server.URL)).Fetch(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, records, 2)

		a := records[0]
		assert.Equal(t, "FR100", a.FlightID)
		assert.Equal(t, "UAL1", a.Callsign)
		assert.Equal(t, "N123AB", a.TailNumber)
		assert.Equal(t, 10.5, *a.Latitude)
		assert.Equal(t, 20.25, *a.Longitude)
		assert.Equal(t, 35000.0, *a.Altitude)
		assert.Equal(t, 480.0, *a.Speed)
		assert.InDelta(t, 10.0, *a.Heading, 1e-9)
		assert.Equal(t, "en-route", a.Status)
		assert.Equal(t, "B738", a.AircraftType)
		assert.Equal(t, "JFK", a.Origin)

		b := records[1]
		assert.Equal(t, "FR200", b.FlightID)
		assert.Equal(t, "N999ZZ", b.TailNumber)
		assert.Equal(t, 30.0, *b.Latitude)
		require.NotNil(t, b.Altitude)
		assert.Equal(t, 0.0, *b.Altitude, "altitude 0 is on the ground, not unknown")
		assert.Equal(t, 12.0, *b.Speed)
		assert.InDelta(t, 270.0, *b.Heading, 1e-9)
		assert.Equal(t, "A320", b.AircraftType)
		assert.Equal(t, "ORD", b.Origin)
		assert.Equal(t, "ATL", b.Destination)
		assert.Equal(t, "Delta", b.Airline)
	})

	t.Run("Absent fields stay nil", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":[{"fr24_id":"FR1","alt":null}]}`))
		})

		records, err := NewFlightradar24Client(testOptions(server.URL)).Fetch(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Nil(t, records[0].Latitude)
		assert.Nil(t, records[0].Longitude)
		assert.Nil(t, records[0].Altitude)
		assert.Nil(t, records[0].Speed)
		assert.Nil(t, records[0].Heading)
		assert.Empty(t, records[0].TailNumber)
	})

	t.Run("Legacy keyed shape reads nested airports and model", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"flights":{"2f1a":{
				"registration":"N321CD","latitude":12,"longitude":34,
				"aircraft":{"model":{"code":"B77W","text":"Boeing 777-300ER"}},
				"airport":{"origin":{"code":{"iata":"JFK","icao":"KJFK"}},
				           "destination":{"code":{"iata":"LHR","icao":"EGLL"}}}
			}}}`))
		})

		records, err := NewFlightradar24Client(testOptions(server.URL)).Fetch(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "2f1a", records[0].FlightID)
		assert.Equal(t, "B77W", records[0].AircraftType)
		assert.Equal(t, "JFK", records[0].Origin)
		assert.Equal(t, "LHR", records[0].Destination)
	})

	t.Run("Legacy keyed shape keeps payload order", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"flights":{
				"zz9":{"registration":"N1","latitude":1,"longitude":2},
				"aa1":{"registration":"N1","latitude":3,"longitude":4},
				"mm5":{"id":"own-id","registration":"N2"}
			}}`))
		})

		records, err := NewFlightradar24Client(testOptions(server.URL)).Fetch(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "zz9", records[0].FlightID)
		assert.Equal(t, "aa1", records[1].FlightID)
		assert.Equal(t, "own-id", records[2].FlightID)
	})

	t.Run("Legacy flights array", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"flights":[{"id":"A","latitude":1,"longitude":2}]}`))
		})

		records, err := NewFlightradar24Client(testOptions(server.URL)).Fetch(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "A", records[0].FlightID)
	})

	t.Run("Malformed records are dropped individually", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":[
				{"fr24_id":"bad-lat","lat":"north","lon":1},
				{"fr24_id":"range","lat":91,"lon":1},
				{"fr24_id":"half","lat":10},
				{"fr24_id":"bool","lat":1,"lon":2,"alt":true},
				"not an object",
				{"callsign":"no identity","lat":1,"lon":2},
				{"fr24_id":"good","lat":1,"lon":2}
			]}`))
		})

		var dropped []error
		opts := testOptions(server.URL)
		opts.OnDrop = func(provider string, err error) {
			assert.Equal(t, "flightradar24", provider)
			dropped = append(dropped, err)
		}

		records, err := NewFlightradar24Client(opts).Fetch(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "good", records[0].FlightID)
		assert.Len(t, dropped, 6)
		for _, d := range dropped {
			assert.ErrorIs(t, d, ErrMalformedRecord)
		}
	})

	t.Run("Malformed payload is source unavailable", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>oops</html>`))
		})

		_, err := NewFlightradar24Client(testOptions(server.URL)).Fetch(context.Background(), nil)
		assert.ErrorIs(t, err, ErrSourceUnavailable)
	})

	t.Run("Client error is not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		})

		_, err := NewFlightradar24Client(testOptions(server.URL)).Fetch(context.Background(), nil)
		assert.ErrorIs(t, err, ErrSourceUnavailable)
		var serr *StatusError
		require.True(t, errors.As(err, &serr))
		assert.Equal(t, http.StatusUnauthorized, serr.StatusCode)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Server error is retried", func(t *testing.T) {
		var calls atomic.Int32
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"data":[{"fr24_id":"X","lat":1,"lon":1}]}`))
		})

		records, err := NewFlightradar24Client(testOptions(server.URL)).Fetch(context.Background(), nil)
		require.NoError(t, err)
		assert.Len(t, records, 1)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("Timeout is source unavailable", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := NewFlightradar24Client(testOptions(server.URL)).Fetch(ctx, nil)
		assert.ErrorIs(t, err, ErrSourceUnavailable)
		assert.Less(t, time.Since(start), 900*time.Millisecond)
	})
}
