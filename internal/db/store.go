package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unklstewy/fleetwatch/pkg/config"
	"github.com/unklstewy/fleetwatch/pkg/flight"
)

// ErrNotFound is returned when a flight or alert does not exist.
var ErrNotFound = errors.New("not found")

// FlightStore is the durable record of tracked flights.
type FlightStore interface {
	// CreateFlight stores a new flight and returns it with its assigned ID.
	CreateFlight(ctx context.Context, f flight.TrackedFlight) (flight.TrackedFlight, error)

	GetFlight(ctx context.Context, id int64) (flight.TrackedFlight, error)

	// ListFlights returns every flight ordered by ID.
	ListFlights(ctx context.Context) ([]flight.TrackedFlight, error)

	// ListActiveFlights returns flights whose status is in
	// flight.ActiveStatuses, ordered by ID.
	ListActiveFlights(ctx context.Context) ([]flight.TrackedFlight, error)

	// UpdateFlights replaces the given flights in one atomic batch. If any
	// flight is missing or any write fails, nothing is changed.
	UpdateFlights(ctx context.Context, flights []flight.TrackedFlight) error
}

// AlertStore persists operational alerts.
type AlertStore interface {
	CreateAlert(ctx context.Context, a flight.Alert) (flight.Alert, error)

	// ListAlerts returns alerts newest first. A nil resolved lists all.
	ListAlerts(ctx context.Context, resolved *bool) ([]flight.Alert, error)

	// ResolveAlert marks an alert resolved at the given time.
	ResolveAlert(ctx context.Context, id int64, at time.Time) (flight.Alert, error)

	// HasOpenAlert reports whether the flight has an unresolved alert of
	// the given type.
	HasOpenAlert(ctx context.Context, flightID int64, t flight.AlertType) (bool, error)
}

// Store combines flight and alert persistence for one backend.
type Store interface {
	FlightStore
	AlertStore

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Open returns the Store selected by cfg.Driver. The postgres driver
// connects with retries and initializes the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		conn, err := ReconnectWithRetry(cfg, 3, time.Second)
		if err != nil {
			return nil, err
		}
		if err := conn.InitSchema(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		return NewPostgresStore(conn), nil

	case config.DriverBolt:
		store, err := NewBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.DriverMemory:
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
