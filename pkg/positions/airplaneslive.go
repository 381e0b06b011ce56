package positions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/unklstewy/fleetwatch/pkg/geo"
)

const (
	// DefaultAirplanesLiveURL is the airplanes.live API base address.
	DefaultAirplanesLiveURL = "https://api.airplanes.live/v2"

	// MaxAirplanesLiveRadiusNM is the largest radius the point endpoint accepts.
	MaxAirplanesLiveRadiusNM = 250.0
)

// AirplanesLiveClient implements Source for the airplanes.live API.
// API Documentation: https://airplanes.live/api-guide/
//
// The API only supports circular queries, so a bounding box is converted
// to its enclosing circle and the results are filtered back to the box.
type AirplanesLiveClient struct {
	baseURL string
	region  Region
	client  *httpClient
}

// Region is a circular search area used when no bounds are given.
type Region struct {
	Center   geo.Point
	RadiusNM float64
}

// NewAirplanesLiveClient creates a new airplanes.live API client.
func NewAirplanesLiveClient(opts Options, region Region) *AirplanesLiveClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultAirplanesLiveURL
	}
	return &AirplanesLiveClient{
		baseURL: baseURL,
		region:  region,
		client:  newHTTPClient("airplaneslive", opts),
	}
}

// Name implements Source.
func (c *AirplanesLiveClient) Name() string {
	return "airplaneslive"
}

// Fetch returns aircraft positions via the /point/[lat]/[lon]/[radius]
// endpoint. The radius is capped at 250 nautical miles.
func (c *AirplanesLiveClient) Fetch(ctx context.Context, bounds *geo.Bounds) ([]Record, error) {
	center, radius := c.region.Center, c.region.RadiusNM
	if bounds != nil {
		center, radius = bounds.Center(), math.Ceil(bounds.RadiusNM())
	}
	if radius > MaxAirplanesLiveRadiusNM {
		radius = MaxAirplanesLiveRadiusNM
	}
	if radius <= 0 {
		radius = 1
	}

	endpoint := fmt.Sprintf("%s/point/%.4f/%.4f/%.0f", c.baseURL, center.Latitude, center.Longitude, radius)

	header := http.Header{}
	header.Set("Accept", "application/json")

	body, err := c.client.get(ctx, endpoint, header)
	if err != nil {
		return nil, unavailable(c.Name(), err)
	}

	var apiResp airplanesLiveResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, unavailable(c.Name(), fmt.Errorf("failed to parse API response: %w", err))
	}

	records := make([]Record, 0, len(apiResp.Aircraft))
	for _, ac := range apiResp.Aircraft {
		rec, err := convertAirplanesLiveAircraft(ac)
		if err != nil {
			c.client.drop(err)
			continue
		}
		records = append(records, rec)
	}

	return filterBounds(records, bounds), nil
}

// airplanesLiveResponse represents the JSON response from airplanes.live API.
type airplanesLiveResponse struct {
	// Aircraft is the array of aircraft data
	Aircraft []airplanesLiveAircraft `json:"ac"`

	// Total number of aircraft
	Total int `json:"total"`

	// Current timestamp
	Now float64 `json:"now"`
}

// airplanesLiveAircraft represents a single aircraft in the airplanes.live API response.
// Numeric fields stay raw so that one bad value drops one aircraft instead
// of failing the whole payload.
// Field documentation: https://airplanes.live/adsb-field-explanations/
type airplanesLiveAircraft struct {
	// Hex is the ICAO Mode S hex code (e.g., "a12345")
	Hex string `json:"hex"`

	// Flight is the callsign/flight number, space padded
	Flight string `json:"flight"`

	// R is the registration
	R string `json:"r"`

	// T is the ICAO aircraft type designator
	T string `json:"t"`

	Lat json.RawMessage `json:"lat"`
	Lon json.RawMessage `json:"lon"`

	// AltBaro is barometric altitude in feet, or the string "ground"
	AltBaro json.RawMessage `json:"alt_baro"`

	// AltGeom is geometric (GPS) altitude in feet
	AltGeom json.RawMessage `json:"alt_geom"`

	// Gs is ground speed in knots
	Gs json.RawMessage `json:"gs"`

	// Track is ground track in degrees
	Track json.RawMessage `json:"track"`
}

// convertAirplanesLiveAircraft converts an airplanes.live aircraft to a Record.
func convertAirplanesLiveAircraft(ac airplanesLiveAircraft) (Record, error) {
	rec := Record{
		FlightID:     strings.ToLower(strings.TrimSpace(ac.Hex)),
		Callsign:     strings.TrimSpace(ac.Flight),
		TailNumber:   strings.TrimSpace(ac.R),
		AircraftType: strings.TrimSpace(ac.T),
	}

	// Prefer geometric (GPS) over barometric altitude
	alt, err := parseAltitude(ac.AltGeom)
	if err == nil && alt == nil {
		alt, err = parseAltitude(ac.AltBaro)
	}
	if err != nil {
		return Record{}, fmt.Errorf("aircraft %q: %w: altitude: %v", rec.FlightID, ErrMalformedRecord, err)
	}
	rec.Altitude = alt

	err = applyNumbers(&rec, numericFields{
		lat:     ac.Lat,
		lon:     ac.Lon,
		speed:   ac.Gs,
		heading: ac.Track,
	})
	if err != nil {
		return Record{}, fmt.Errorf("aircraft %q: %w", rec.FlightID, err)
	}
	return rec, nil
}

// parseAltitude extracts altitude from a value that is either a number or
// the string "ground", which means 0 feet.
func parseAltitude(raw json.RawMessage) (*float64, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte(`"ground"`)) {
		zero := 0.0
		return &zero, nil
	}
	return parseNumber(raw)
}
