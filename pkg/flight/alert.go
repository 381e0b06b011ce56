package flight

import "time"

// AlertType classifies an operational alert.
type AlertType string

const (
	AlertDelay AlertType = "DELAY"
)

// Severity of an operational alert.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Alert is an operational alert raised against a tracked flight.
type Alert struct {
	ID         int64      `json:"id"`
	FlightID   int64      `json:"flight_id"`
	Type       AlertType  `json:"alert_type"`
	Severity   Severity   `json:"severity"`
	Message    string     `json:"message"`
	Resolved   bool       `json:"is_resolved"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at"`
}
