package positions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/unklstewy/fleetwatch/pkg/geo"
)

const (
	// DefaultOpenSkyURL is the OpenSky Network API base address.
	DefaultOpenSkyURL = "https://opensky-network.org/api"

	metresToFeet = 3.28084
	msToKnots    = 1.943844
)

// Indexes into one /states/all state vector.
const (
	stateICAO24 = iota
	stateCallsign
	stateOriginCountry
	stateTimePosition
	stateLastContact
	stateLongitude
	stateLatitude
	stateBaroAltitude
	stateOnGround
	stateVelocity
	stateTrueTrack
	stateVerticalRate
	stateSensors
	stateGeoAltitude

	minStateFields = stateGeoAltitude + 1
)

// OpenSkyClient implements Source for the OpenSky Network REST API.
// API Documentation: https://openskynetwork.github.io/opensky-api/rest.html
//
// Anonymous access works without credentials. When an API key is set it is
// sent as an OAuth2 bearer token.
type OpenSkyClient struct {
	baseURL string
	token   string
	client  *httpClient
}

// NewOpenSkyClient creates a new OpenSky API client.
func NewOpenSkyClient(opts Options) *OpenSkyClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenSkyURL
	}
	return &OpenSkyClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   opts.APIKey,
		client:  newHTTPClient("opensky", opts),
	}
}

// Name implements Source.
func (c *OpenSkyClient) Name() string {
	return "opensky"
}

// Fetch returns state vectors from /states/all. Bounds become the
// lamin/lomin/lamax/lomax query parameters.
func (c *OpenSkyClient) Fetch(ctx context.Context, bounds *geo.Bounds) ([]Record, error) {
	endpoint := c.baseURL + "/states/all"
	if bounds != nil {
		q := url.Values{}
		q.Set("lamin", fmt.Sprintf("%.4f", bounds.South))
		q.Set("lomin", fmt.Sprintf("%.4f", bounds.West))
		q.Set("lamax", fmt.Sprintf("%.4f", bounds.North))
		q.Set("lomax", fmt.Sprintf("%.4f", bounds.East))
		endpoint += "?" + q.Encode()
	}

	header := http.Header{}
	header.Set("Accept", "application/json")
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	body, err := c.client.get(ctx, endpoint, header)
	if err != nil {
		return nil, unavailable(c.Name(), err)
	}

	var apiResp openSkyResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, unavailable(c.Name(), fmt.Errorf("failed to parse API response: %w", err))
	}

	records := make([]Record, 0, len(apiResp.States))
	for _, state := range apiResp.States {
		rec, err := convertOpenSkyState(state)
		if err != nil {
			c.client.drop(err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// openSkyResponse is the /states/all payload. States is null when nothing
// is in range.
type openSkyResponse struct {
	Time   int64               `json:"time"`
	States [][]json.RawMessage `json:"states"`
}

// convertOpenSkyState converts one positional state vector to a Record.
// Altitude is reported in metres and velocity in m/s.
func convertOpenSkyState(state []json.RawMessage) (Record, error) {
	if len(state) < minStateFields {
		return Record{}, fmt.Errorf("%w: state has %d fields", ErrMalformedRecord, len(state))
	}

	rec := Record{
		FlightID: strings.ToLower(parseString(state[stateICAO24])),
		Callsign: parseString(state[stateCallsign]),
	}

	var onGround bool
	if !isNull(state[stateOnGround]) {
		if err := json.Unmarshal(state[stateOnGround], &onGround); err != nil {
			return Record{}, fmt.Errorf("state %q: %w: on_ground: %v", rec.FlightID, ErrMalformedRecord, err)
		}
	}

	if onGround {
		zero := 0.0
		rec.Altitude = &zero
	} else {
		alt, err := parseNumber(state[stateBaroAltitude])
		if err == nil && alt == nil {
			alt, err = parseNumber(state[stateGeoAltitude])
		}
		if err != nil {
			return Record{}, fmt.Errorf("state %q: %w: altitude: %v", rec.FlightID, ErrMalformedRecord, err)
		}
		rec.Altitude = scaled(alt, metresToFeet)
	}

	speed, err := parseNumber(state[stateVelocity])
	if err != nil {
		return Record{}, fmt.Errorf("state %q: %w: speed: %v", rec.FlightID, ErrMalformedRecord, err)
	}

	err = applyNumbers(&rec, numericFields{
		lat:     state[stateLatitude],
		lon:     state[stateLongitude],
		heading: state[stateTrueTrack],
	})
	if err != nil {
		return Record{}, fmt.Errorf("state %q: %w", rec.FlightID, err)
	}
	rec.Speed = scaled(speed, msToKnots)
	return rec, nil
}

func scaled(v *float64, factor float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v * factor
	return &out
}
