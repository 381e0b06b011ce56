package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/unklstewy/fleetwatch/pkg/flight"
)

// MemoryStore is an in-process Store. Every value crossing its API is a
// deep copy.
type MemoryStore struct {
	mu          sync.RWMutex
	flights     map[int64]flight.TrackedFlight
	alerts      map[int64]flight.Alert
	nextFlight  int64
	nextAlert   int64
	failUpdates error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flights: make(map[int64]flight.TrackedFlight),
		alerts:  make(map[int64]flight.Alert),
	}
}

// FailUpdates makes every later UpdateFlights call return err. A nil err
// restores normal behavior.
func (s *MemoryStore) FailUpdates(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpdates = err
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateFlight(ctx context.Context, f flight.TrackedFlight) (flight.TrackedFlight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextFlight++
	f = f.Clone()
	f.ID = s.nextFlight
	if f.LastUpdated.IsZero() {
		f.LastUpdated = time.Now().UTC()
	}
	s.flights[f.ID] = f
	return f.Clone(), nil
}

func (s *MemoryStore) GetFlight(ctx context.Context, id int64) (flight.TrackedFlight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.flights[id]
	if !ok {
		return flight.TrackedFlight{}, fmt.Errorf("flight %d: %w", id, ErrNotFound)
	}
	return f.Clone(), nil
}

func (s *MemoryStore) ListFlights(ctx context.Context) ([]flight.TrackedFlight, error) {
	return s.list(func(flight.TrackedFlight) bool { return true }), nil
}

func (s *MemoryStore) ListActiveFlights(ctx context.Context) ([]flight.TrackedFlight, error) {
	return s.list(func(f flight.TrackedFlight) bool { return f.Status.IsActive() }), nil
}

// UpdateFlights validates the whole batch before writing any of it.
func (s *MemoryStore) UpdateFlights(ctx context.Context, flights []flight.TrackedFlight) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failUpdates != nil {
		return s.failUpdates
	}
	for _, f := range flights {
		if _, ok := s.flights[f.ID]; !ok {
			return fmt.Errorf("flight %d: %w", f.ID, ErrNotFound)
		}
	}
	for _, f := range flights {
		s.flights[f.ID] = f.Clone()
	}
	return nil
}

func (s *MemoryStore) list(keep func(flight.TrackedFlight) bool) []flight.TrackedFlight {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flights := make([]flight.TrackedFlight, 0, len(s.flights))
	for _, f := range s.flights {
		if keep(f) {
			flights = append(flights, f.Clone())
		}
	}
	sort.Slice(flights, func(i, j int) bool { return flights[i].ID < flights[j].ID })
	return flights
}

func (s *MemoryStore) CreateAlert(ctx context.Context, a flight.Alert) (flight.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.flights[a.FlightID]; !ok {
		return flight.Alert{}, fmt.Errorf("flight %d: %w", a.FlightID, ErrNotFound)
	}
	s.nextAlert++
	a.ID = s.nextAlert
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.alerts[a.ID] = a
	return a, nil
}

func (s *MemoryStore) ListAlerts(ctx context.Context, resolved *bool) ([]flight.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alerts := []flight.Alert{}
	for _, a := range s.alerts {
		if resolved == nil || a.Resolved == *resolved {
			alerts = append(alerts, a)
		}
	}
	sortAlerts(alerts)
	return alerts, nil
}

func (s *MemoryStore) ResolveAlert(ctx context.Context, id int64, at time.Time) (flight.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return flight.Alert{}, fmt.Errorf("alert %d: %w", id, ErrNotFound)
	}
	a.Resolved = true
	a.ResolvedAt = flight.Time(at.UTC())
	s.alerts[id] = a
	return a, nil
}

func (s *MemoryStore) HasOpenAlert(ctx context.Context, flightID int64, t flight.AlertType) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.alerts {
		if a.FlightID == flightID && a.Type == t && !a.Resolved {
			return true, nil
		}
	}
	return false, nil
}
