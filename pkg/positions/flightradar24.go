package positions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/unklstewy/fleetwatch/pkg/geo"
)

// DefaultFlightradar24URL is the Flightradar24 API base address.
const DefaultFlightradar24URL = "https://fr24api.flightradar24.com/api"

// Flightradar24Client implements Source for the Flightradar24 API.
// API Documentation: https://fr24api.flightradar24.com/docs
type Flightradar24Client struct {
	baseURL string
	apiKey  string
	client  *httpClient
}

// NewFlightradar24Client creates a Flightradar24 client.
func NewFlightradar24Client(opts Options) *Flightradar24Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultFlightradar24URL
	}
	return &Flightradar24Client{
		baseURL: baseURL,
		apiKey:  opts.APIKey,
		client:  newHTTPClient("flightradar24", opts),
	}
}

// Name implements Source.
func (c *Flightradar24Client) Name() string {
	return "flightradar24"
}

// Fetch returns live flight positions from /live/flight-positions/light.
func (c *Flightradar24Client) Fetch(ctx context.Context, bounds *geo.Bounds) ([]Record, error) {
	endpoint := c.baseURL + "/live/flight-positions/light"
	if bounds != nil {
		endpoint += "?" + url.Values{"bounds": {bounds.String()}}.Encode()
	}

	header := http.Header{}
	header.Set("Accept", "application/json")
	header.Set("Accept-Version", "v1")
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}

	body, err := c.client.get(ctx, endpoint, header)
	if err != nil {
		return nil, unavailable(c.Name(), err)
	}

	records, err := c.decode(body)
	if err != nil {
		return nil, unavailable(c.Name(), err)
	}

	return records, nil
}

// fr24Response covers both payload shapes the API has served: a "data"
// array, and an older "flights" member that is either an array or an
// object keyed by flight id.
type fr24Response struct {
	Data    json.RawMessage `json:"data"`
	Flights json.RawMessage `json:"flights"`
}

// decode parses a response body. Only an undecodable envelope is an
// error; bad individual records are dropped.
func (c *Flightradar24Client) decode(body []byte) ([]Record, error) {
	var resp fr24Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse API response: %w", err)
	}

	var items []keyedValue
	switch {
	case !isNull(resp.Data):
		var arr []json.RawMessage
		if err := json.Unmarshal(resp.Data, &arr); err != nil {
			return nil, fmt.Errorf("failed to parse data array: %w", err)
		}
		for _, raw := range arr {
			items = append(items, keyedValue{Value: raw})
		}

	case !isNull(resp.Flights):
		trimmed := bytes.TrimSpace(resp.Flights)
		if trimmed[0] == '[' {
			var arr []json.RawMessage
			if err := json.Unmarshal(trimmed, &arr); err != nil {
				return nil, fmt.Errorf("failed to parse flights array: %w", err)
			}
			for _, raw := range arr {
				items = append(items, keyedValue{Value: raw})
			}
		} else {
			obj, err := orderedObject(trimmed)
			if err != nil {
				return nil, fmt.Errorf("failed to parse flights object: %w", err)
			}
			items = obj
		}
	}

	records := make([]Record, 0, len(items))
	for _, item := range items {
		rec, err := convertFR24Flight(item.Key, item.Value)
		if err != nil {
			c.client.drop(err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// convertFR24Flight normalizes one flight object. key is the object key in
// the legacy keyed shape and is used as the flight id when the object has
// none of its own.
func convertFR24Flight(key string, raw json.RawMessage) (Record, error) {
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil || f == nil {
		return Record{}, fmt.Errorf("%w: not an object", ErrMalformedRecord)
	}

	rec := Record{
		FlightID:     parseString(f.lookup("fr24_id", "id", "flight_id")),
		Callsign:     parseString(f.lookup("callsign", "flight")),
		TailNumber:   parseString(f.lookup("reg", "registration", "tail_number")),
		Status:       parseString(f.lookup("status")),
		AircraftType: parseString(f.lookup("type")),
		Origin:       parseString(f.lookup("orig_iata", "orig_icao")),
		Destination:  parseString(f.lookup("dest_iata", "dest_icao")),
	}
	if rec.FlightID == "" {
		rec.FlightID = key
	}
	if ac := f.nested("aircraft"); ac != nil && rec.AircraftType == "" {
		rec.AircraftType = parseString(ac.lookup("type"))
		if rec.AircraftType == "" {
			rec.AircraftType = parseString(ac.nested("model").lookup("code"))
		}
	}
	if dep := f.nested("departure"); dep != nil && rec.Origin == "" {
		rec.Origin = parseString(dep.lookup("code"))
	}
	if arr := f.nested("arrival"); arr != nil && rec.Destination == "" {
		rec.Destination = parseString(arr.lookup("code"))
	}
	// Keyed payloads nest airports as airport.{origin,destination}.code.iata.
	if ap := f.nested("airport"); ap != nil {
		if rec.Origin == "" {
			rec.Origin = parseString(ap.nested("origin").nested("code").lookup("iata"))
		}
		if rec.Destination == "" {
			rec.Destination = parseString(ap.nested("destination").nested("code").lookup("iata"))
		}
	}
	if al := f.nested("airline"); al != nil {
		rec.Airline = parseString(al.lookup("name"))
	}

	err := applyNumbers(&rec, numericFields{
		lat:     f.lookup("lat", "latitude"),
		lon:     f.lookup("lon", "longitude"),
		alt:     f.lookup("alt", "altitude"),
		speed:   f.lookup("gspeed", "speed"),
		heading: f.lookup("track", "heading"),
	})
	if err != nil {
		return Record{}, fmt.Errorf("flight %q: %w", rec.FlightID, err)
	}
	return rec, nil
}
