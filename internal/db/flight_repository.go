package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/unklstewy/fleetwatch/pkg/flight"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *DB
}

// NewPostgresStore creates a store on an open connection.
func NewPostgresStore(db *DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const flightColumns = `id, flight_id, tail_number, status,
	current_position_lat, current_position_lon, altitude, speed, heading,
	scheduled_departure, actual_departure, scheduled_arrival, actual_arrival,
	last_updated`

// CreateFlight inserts a flight and returns it with the assigned ID.
func (s *PostgresStore) CreateFlight(ctx context.Context, f flight.TrackedFlight) (flight.TrackedFlight, error) {
	if f.LastUpdated.IsZero() {
		f.LastUpdated = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO flights (
			flight_id, tail_number, status,
			current_position_lat, current_position_lon, altitude, speed, heading,
			scheduled_departure, actual_departure, scheduled_arrival, actual_arrival,
			last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		nullString(f.FlightID), nullString(f.TailNumber), string(f.Status),
		nullFloat(f.Latitude), nullFloat(f.Longitude), nullFloat(f.Altitude),
		nullFloat(f.Speed), nullFloat(f.Heading),
		nullTime(f.ScheduledDeparture), nullTime(f.ActualDeparture),
		nullTime(f.ScheduledArrival), nullTime(f.ActualArrival),
		f.LastUpdated,
	).Scan(&f.ID)
	if err != nil {
		return flight.TrackedFlight{}, fmt.Errorf("failed to insert flight: %w", err)
	}

	return f, nil
}

// GetFlight returns one flight by ID.
func (s *PostgresStore) GetFlight(ctx context.Context, id int64) (flight.TrackedFlight, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+flightColumns+` FROM flights WHERE id = $1`, id)

	f, err := scanFlight(row)
	if errors.Is(err, sql.ErrNoRows) {
		return flight.TrackedFlight{}, fmt.Errorf("flight %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return flight.TrackedFlight{}, fmt.Errorf("failed to query flight: %w", err)
	}
	return f, nil
}

// ListFlights returns every flight ordered by ID.
func (s *PostgresStore) ListFlights(ctx context.Context) ([]flight.TrackedFlight, error) {
	return s.queryFlights(ctx, `SELECT `+flightColumns+` FROM flights ORDER BY id`)
}

// ListActiveFlights returns the flights reconciled on each tick.
// Transient connection errors are retried.
func (s *PostgresStore) ListActiveFlights(ctx context.Context) ([]flight.TrackedFlight, error) {
	var flights []flight.TrackedFlight
	err := WithRetry(func() error {
		var err error
		flights, err = s.queryFlights(ctx,
			`SELECT `+flightColumns+` FROM flights WHERE status = ANY($1) ORDER BY id`,
			activeStatusArray())
		return err
	}, 2)
	return flights, err
}

// UpdateFlights writes all flights in one transaction.
func (s *PostgresStore) UpdateFlights(ctx context.Context, flights []flight.TrackedFlight) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE flights SET
			flight_id = $2, tail_number = $3, status = $4,
			current_position_lat = $5, current_position_lon = $6,
			altitude = $7, speed = $8, heading = $9,
			scheduled_departure = $10, actual_departure = $11,
			scheduled_arrival = $12, actual_arrival = $13,
			last_updated = $14
		WHERE id = $1`)
	if err != nil {
		return fmt.Errorf("failed to prepare update: %w", err)
	}
	defer stmt.Close()

	for _, f := range flights {
		res, err := stmt.ExecContext(ctx,
			f.ID, nullString(f.FlightID), nullString(f.TailNumber), string(f.Status),
			nullFloat(f.Latitude), nullFloat(f.Longitude), nullFloat(f.Altitude),
			nullFloat(f.Speed), nullFloat(f.Heading),
			nullTime(f.ScheduledDeparture), nullTime(f.ActualDeparture),
			nullTime(f.ScheduledArrival), nullTime(f.ActualArrival),
			f.LastUpdated,
		)
		if err != nil {
			return fmt.Errorf("failed to update flight %d: %w", f.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to update flight %d: %w", f.ID, err)
		}
		if n == 0 {
			return fmt.Errorf("flight %d: %w", f.ID, ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit flight batch: %w", err)
	}
	return nil
}

// CreateAlert inserts an alert and returns it with the assigned ID.
func (s *PostgresStore) CreateAlert(ctx context.Context, a flight.Alert) (flight.Alert, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO alerts (flight_id, alert_type, severity, message, is_resolved, created_at, resolved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		a.FlightID, string(a.Type), string(a.Severity), a.Message, a.Resolved, a.CreatedAt, nullTime(a.ResolvedAt),
	).Scan(&a.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return flight.Alert{}, fmt.Errorf("flight %d: %w", a.FlightID, ErrNotFound)
		}
		return flight.Alert{}, fmt.Errorf("failed to insert alert: %w", err)
	}
	return a, nil
}

// ListAlerts returns alerts newest first, optionally filtered.
func (s *PostgresStore) ListAlerts(ctx context.Context, resolved *bool) ([]flight.Alert, error) {
	query := `SELECT id, flight_id, alert_type, severity, message, is_resolved, created_at, resolved_at
		FROM alerts`
	var args []interface{}
	if resolved != nil {
		query += ` WHERE is_resolved = $1`
		args = append(args, *resolved)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []flight.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ResolveAlert marks an alert resolved.
func (s *PostgresStore) ResolveAlert(ctx context.Context, id int64, at time.Time) (flight.Alert, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE alerts SET is_resolved = TRUE, resolved_at = $2
		 WHERE id = $1
		 RETURNING id, flight_id, alert_type, severity, message, is_resolved, created_at, resolved_at`,
		id, at)

	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return flight.Alert{}, fmt.Errorf("alert %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return flight.Alert{}, fmt.Errorf("failed to resolve alert: %w", err)
	}
	return a, nil
}

// HasOpenAlert reports whether an unresolved alert of type t exists.
func (s *PostgresStore) HasOpenAlert(ctx context.Context, flightID int64, t flight.AlertType) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM alerts
			WHERE flight_id = $1 AND alert_type = $2 AND is_resolved = FALSE
		)`,
		flightID, string(t),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query open alerts: %w", err)
	}
	return exists, nil
}

// Ping runs the connection health check.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if !HealthCheck(ctx, s.db) {
		return fmt.Errorf("database health check failed")
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) queryFlights(ctx context.Context, query string, args ...interface{}) ([]flight.TrackedFlight, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query flights: %w", err)
	}
	defer rows.Close()

	flights := []flight.TrackedFlight{}
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flight: %w", err)
		}
		flights = append(flights, f)
	}
	return flights, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFlight(row scanner) (flight.TrackedFlight, error) {
	var f flight.TrackedFlight
	var status string
	var flightID, tail sql.NullString
	var lat, lon, alt, speed, heading sql.NullFloat64
	var schedDep, actDep, schedArr, actArr sql.NullTime

	err := row.Scan(&f.ID, &flightID, &tail, &status,
		&lat, &lon, &alt, &speed, &heading,
		&schedDep, &actDep, &schedArr, &actArr,
		&f.LastUpdated)
	if err != nil {
		return flight.TrackedFlight{}, err
	}

	f.FlightID = flightID.String
	f.TailNumber = tail.String
	f.Status = flight.Status(status)
	f.Latitude = floatPtr(lat)
	f.Longitude = floatPtr(lon)
	f.Altitude = floatPtr(alt)
	f.Speed = floatPtr(speed)
	f.Heading = floatPtr(heading)
	f.ScheduledDeparture = timePtr(schedDep)
	f.ActualDeparture = timePtr(actDep)
	f.ScheduledArrival = timePtr(schedArr)
	f.ActualArrival = timePtr(actArr)
	f.LastUpdated = f.LastUpdated.UTC()
	return f, nil
}

func scanAlert(row scanner) (flight.Alert, error) {
	var (
		a          flight.Alert
		alertType  string
		severity   string
		resolvedAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.FlightID, &alertType, &severity, &a.Message, &a.Resolved, &a.CreatedAt, &resolvedAt)
	if err != nil {
		return flight.Alert{}, err
	}
	a.Type = flight.AlertType(alertType)
	a.Severity = flight.Severity(severity)
	a.ResolvedAt = timePtr(resolvedAt)
	return a, nil
}

// activeStatusArray is the active status set as a PostgreSQL text array.
func activeStatusArray() interface{} {
	statuses := make([]string, len(flight.ActiveStatuses))
	for i, s := range flight.ActiveStatuses {
		statuses[i] = string(s)
	}
	return pq.Array(statuses)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time.UTC()
	return &v
}
