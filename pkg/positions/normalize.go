package positions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/unklstewy/fleetwatch/pkg/geo"
)

var jsonNull = []byte("null")

// fields is one decoded provider object with its raw values.
type fields map[string]json.RawMessage

// lookup returns the first present, non-null value among the aliases.
func (f fields) lookup(keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := f[k]; ok && !isNull(v) {
			return v
		}
	}
	return nil
}

// nested returns the object stored under key, or nil when absent or not
// an object.
func (f fields) nested(key string) fields {
	raw := f.lookup(key)
	if raw == nil {
		return nil
	}
	var sub fields
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil
	}
	return sub
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), jsonNull)
}

// parseNumber accepts a JSON number or a numeric string. Absent, null and
// blank-string values yield nil. Anything else is an error.
func parseNumber(raw json.RawMessage) (*float64, error) {
	if isNull(raw) {
		return nil, nil
	}

	var v float64
	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", s)
		}
		v = parsed
	} else if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, fmt.Errorf("not a number: %s", trimmed)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("not a finite number: %v", v)
	}
	return &v, nil
}

// parseString accepts a JSON string or number and returns it trimmed.
// Other JSON types yield an empty string.
func parseString(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// numericFields holds the raw numeric inputs shared by all providers.
type numericFields struct {
	lat, lon, alt, speed, heading json.RawMessage
}

// applyNumbers parses and validates the numeric fields into r. The record
// is malformed when any present field is not a finite number, when only
// one coordinate is present, or when a coordinate is out of range.
func applyNumbers(r *Record, in numericFields) error {
	var err error
	if r.Latitude, err = parseNumber(in.lat); err != nil {
		return fmt.Errorf("%w: latitude: %v", ErrMalformedRecord, err)
	}
	if r.Longitude, err = parseNumber(in.lon); err != nil {
		return fmt.Errorf("%w: longitude: %v", ErrMalformedRecord, err)
	}
	if r.Altitude == nil {
		if r.Altitude, err = parseNumber(in.alt); err != nil {
			return fmt.Errorf("%w: altitude: %v", ErrMalformedRecord, err)
		}
	}
	if r.Speed, err = parseNumber(in.speed); err != nil {
		return fmt.Errorf("%w: speed: %v", ErrMalformedRecord, err)
	}
	if r.Heading, err = parseNumber(in.heading); err != nil {
		return fmt.Errorf("%w: heading: %v", ErrMalformedRecord, err)
	}
	return validate(r)
}

func validate(r *Record) error {
	if (r.Latitude == nil) != (r.Longitude == nil) {
		return fmt.Errorf("%w: only one coordinate present", ErrMalformedRecord)
	}
	if r.Latitude != nil && !geo.ValidLatitude(*r.Latitude) {
		return fmt.Errorf("%w: latitude %v out of range", ErrMalformedRecord, *r.Latitude)
	}
	if r.Longitude != nil && !geo.ValidLongitude(*r.Longitude) {
		return fmt.Errorf("%w: longitude %v out of range", ErrMalformedRecord, *r.Longitude)
	}
	if r.Heading != nil {
		h := geo.NormalizeHeading(*r.Heading)
		r.Heading = &h
	}
	if r.FlightID == "" && r.TailNumber == "" {
		return fmt.Errorf("%w: no flight id or tail number", ErrMalformedRecord)
	}
	return nil
}

// keyedValue is one member of a JSON object in document order.
type keyedValue struct {
	Key   string
	Value json.RawMessage
}

// orderedObject decodes a JSON object keeping its members in document
// order, which encoding/json maps do not preserve.
func orderedObject(raw json.RawMessage) ([]keyedValue, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var out []keyedValue
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, keyedValue{Key: key, Value: v})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}
