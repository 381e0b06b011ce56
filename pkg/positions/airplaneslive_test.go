package positions

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/fleetwatch/pkg/geo"
)

var testRegion = Region{Center: geo.Point{Latitude: 35.0, Longitude: -80.0}, RadiusNM: 100}

func TestAirplanesLiveFetch(t *testing.T) {
	t.Run("Successful request", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/point/35.0000/-80.0000/100", r.URL.Path)
			w.Write([]byte(`{"ac":[{"hex":"A12345","flight":"UAL123  ","r":"N123AB","t":"B738",
				"lat":35.5,"lon":-80.5,"alt_baro":30000,"gs":450,"track":90}],"total":1}`))
		})

		client := NewAirplanesLiveClient(testOptions(server.URL), testRegion)
		records, err := client.Fetch(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, records, 1)

		rec := records[0]
		assert.Equal(t, "a12345", rec.FlightID)
		assert.Equal(t, "UAL123", rec.Callsign)
		assert.Equal(t, "N123AB", rec.TailNumber)
		assert.Equal(t, "B738", rec.AircraftType)
		assert.Equal(t, 35.5, *rec.Latitude)
		assert.Equal(t, 30000.0, *rec.Altitude)
		assert.Equal(t, 450.0, *rec.Speed)
		assert.Equal(t, 90.0, *rec.Heading)
		assert.Empty(t, rec.Status)
	})

	t.Run("Caps radius at 250 NM", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/point/35.0000/-80.0000/250", r.URL.Path)
			w.Write([]byte(`{"ac":[]}`))
		})

		region := testRegion
		region.RadiusNM = 500
		_, err := NewAirplanesLiveClient(testOptions(server.URL), region).Fetch(context.Background(), nil)
		require.NoError(t, err)
	})

	t.Run("Bounds become the enclosing circle and filter the result", func(t *testing.T) {
		bounds := &geo.Bounds{North: 36, South: 34, West: -81, East: -79}
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Contains(t, r.URL.Path, "/point/35.0000/-80.0000/")
			w.Write([]byte(`{"ac":[
				{"hex":"in","lat":35.1,"lon":-80.1},
				{"hex":"out","lat":36.5,"lon":-80.1},
				{"hex":"nopos","r":"N1"}
			]}`))
		})

		records, err := NewAirplanesLiveClient(testOptions(server.URL), testRegion).Fetch(context.Background(), bounds)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "in", records[0].FlightID)
	})

	t.Run("Ground altitude is zero and missing altitude is nil", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"ac":[
				{"hex":"gnd","lat":35,"lon":-80,"alt_baro":"ground"},
				{"hex":"none","lat":35,"lon":-80},
				{"hex":"geom","lat":35,"lon":-80,"alt_baro":1000,"alt_geom":1100}
			]}`))
		})

		records, err := NewAirplanesLiveClient(testOptions(server.URL), testRegion).Fetch(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, records, 3)
		require.NotNil(t, records[0].Altitude)
		assert.Equal(t, 0.0, *records[0].Altitude)
		assert.Nil(t, records[1].Altitude)
		assert.Equal(t, 1100.0, *records[2].Altitude)
	})

	t.Run("Unknown altitude string drops the aircraft", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"ac":[{"hex":"odd","lat":35,"lon":-80,"alt_baro":"climbing"},{"hex":"ok","lat":35,"lon":-80}]}`))
		})

		records, err := NewAirplanesLiveClient(testOptions(server.URL), testRegion).Fetch(context.Background(), nil)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "ok", records[0].FlightID)
	})

	t.Run("Handles rate limit error", func(t *testing.T) {
		server := serve(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Rate-Limit-Remaining", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		})

		opts := testOptions(server.URL)
		opts.Retry.MaxRetries = 0
		_, err := NewAirplanesLiveClient(opts, testRegion).Fetch(context.Background(), nil)
		require.ErrorIs(t, err, ErrSourceUnavailable)
		rle, ok := IsRateLimitError(err)
		require.True(t, ok)
		assert.Equal(t, 0, rle.Headers.Remaining)
	})
}
