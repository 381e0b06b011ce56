package tracker

import (
	"strings"

	"github.com/unklstewy/fleetwatch/pkg/flight"
)

// providerStatuses maps lowercased provider status strings to the internal
// vocabulary. Separators are normalized before lookup, so "en-route",
// "en_route" and "en route" are the same key.
var providerStatuses = map[string]flight.Status{
	"scheduled": flight.StatusScheduled,
	"departed":  flight.StatusDeparted,
	"en-route":  flight.StatusEnRoute,
	"enroute":   flight.StatusEnRoute,
	"airborne":  flight.StatusEnRoute,
	"landed":    flight.StatusArrived,
	"arrived":   flight.StatusArrived,
	"delayed":   flight.StatusDelayed,
	"cancelled": flight.StatusCancelled,
	"canceled":  flight.StatusCancelled,
	"diverted":  flight.StatusDiverted,
	"active":    flight.StatusActive,
}

// MapStatus converts a provider status string to a Status. Matching is
// case-insensitive. Unknown strings map to StatusActive with known false.
func MapStatus(s string) (status flight.Status, known bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
	if st, ok := providerStatuses[key]; ok {
		return st, true
	}
	return flight.StatusActive, false
}
