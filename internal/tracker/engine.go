// Package tracker runs the reconciliation cycle: it merges provider
// positions into the tracked flights, persists them and publishes the
// result to live subscribers.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/unklstewy/fleetwatch/internal/db"
	"github.com/unklstewy/fleetwatch/internal/metrics"
	"github.com/unklstewy/fleetwatch/pkg/flight"
	"github.com/unklstewy/fleetwatch/pkg/geo"
	"github.com/unklstewy/fleetwatch/pkg/positions"
	"github.com/unklstewy/fleetwatch/pkg/simulate"
)

// ErrPersist is returned by Tick when the batch write fails. Nothing from
// that tick was committed or published.
var ErrPersist = errors.New("failed to persist tick")

// DefaultFetchTimeout bounds one provider fetch.
const DefaultFetchTimeout = 10 * time.Second

// Publisher receives the snapshot of every committed tick.
type Publisher interface {
	Publish(s flight.Snapshot)
}

// Observer is notified with the active flights after every committed tick.
type Observer interface {
	AfterCommit(ctx context.Context, active []flight.TrackedFlight, at time.Time)
}

// MatchKind records how a flight was updated during a tick.
type MatchKind string

const (
	MatchByID   MatchKind = "id"
	MatchByTail MatchKind = "tail"
	MatchNone   MatchKind = "simulated"
)

// Result summarizes one tick.
type Result struct {
	At            time.Time
	Records       int
	MatchedByID   int
	MatchedByTail int
	Simulated     int
	SourceFailed  bool
	Active        int
}

// Touched returns the number of flights written by the tick.
func (r Result) Touched() int {
	return r.MatchedByID + r.MatchedByTail + r.Simulated
}

// EngineConfig wires an Engine.
type EngineConfig struct {
	Store     db.FlightStore
	Source    positions.Source
	Simulator *simulate.Simulator
	Publisher Publisher

	// Bounds restricts fetches; nil asks for everything
	Bounds *geo.Bounds

	// FetchTimeout defaults to DefaultFetchTimeout
	FetchTimeout time.Duration

	// Clock defaults to SystemClock
	Clock Clock

	Logger zerolog.Logger
}

// Engine reconciles tracked flights against provider positions. Ticks are
// serialized; at most one runs at a time.
type Engine struct {
	store        db.FlightStore
	source       positions.Source
	sim          *simulate.Simulator
	publisher    Publisher
	bounds       *geo.Bounds
	fetchTimeout time.Duration
	clock        Clock
	logger       zerolog.Logger

	mu        sync.Mutex
	observers []Observer
}

// NewEngine creates an engine from cfg.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Simulator == nil {
		cfg.Simulator = simulate.New(0)
	}
	return &Engine{
		store:        cfg.Store,
		source:       cfg.Source,
		sim:          cfg.Simulator,
		publisher:    cfg.Publisher,
		bounds:       cfg.Bounds,
		fetchTimeout: cfg.FetchTimeout,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}
}

// AddObserver registers o for every later committed tick.
func (e *Engine) AddObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// ActiveFlights returns the last committed state of the active flights.
func (e *Engine) ActiveFlights(ctx context.Context) ([]flight.TrackedFlight, error) {
	return e.store.ListActiveFlights(ctx)
}

// Tick runs one reconciliation cycle. A source failure is not an error;
// the tick falls back to simulation for every flight. A persistence
// failure returns an error wrapping ErrPersist and publishes nothing.
func (e *Engine) Tick(ctx context.Context) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.TickDuration)

	now := e.clock.Now().UTC()
	result := Result{At: now}

	tracked, err := e.store.ListActiveFlights(ctx)
	if err != nil {
		metrics.TicksTotal.WithLabelValues("load_failed").Inc()
		e.logger.Error().Err(err).Msg("Failed to load active flights")
		return result, fmt.Errorf("failed to load active flights: %w", err)
	}

	records, err := e.fetch(ctx)
	if err != nil {
		result.SourceFailed = true
		metrics.SourceFailures.WithLabelValues(e.source.Name()).Inc()
		e.logger.Warn().Err(err).Msg("Position source unavailable, simulating all flights")
	}
	result.Records = len(records)

	idx := newRecordIndex(records)
	updated := make([]flight.TrackedFlight, 0, len(tracked))
	for _, f := range tracked {
		rec, kind := idx.match(f)
		switch kind {
		case MatchByID, MatchByTail:
			f = e.apply(f, rec, now)
			if kind == MatchByID {
				result.MatchedByID++
			} else {
				result.MatchedByTail++
			}
		default:
			f = e.sim.Advance(f)
			result.Simulated++
		}
		f.LastUpdated = now
		updated = append(updated, f)
	}

	if len(updated) > 0 {
		if err := e.store.UpdateFlights(ctx, updated); err != nil {
			metrics.TicksTotal.WithLabelValues("persist_failed").Inc()
			e.logger.Error().Err(err).Int("flights", len(updated)).Msg("Failed to persist tick, discarding")
			return result, fmt.Errorf("%w: %w", ErrPersist, err)
		}
	}

	metrics.FlightsReconciled.WithLabelValues(string(MatchByID)).Add(float64(result.MatchedByID))
	metrics.FlightsReconciled.WithLabelValues(string(MatchByTail)).Add(float64(result.MatchedByTail))
	metrics.FlightsReconciled.WithLabelValues(string(MatchNone)).Add(float64(result.Simulated))

	active, err := e.store.ListActiveFlights(ctx)
	if err != nil {
		// The batch is committed; subscribers keep the previous snapshot
		// until the next tick reloads successfully.
		metrics.TicksTotal.WithLabelValues("reload_failed").Inc()
		e.logger.Error().Err(err).Msg("Failed to reload active flights after commit")
		return result, fmt.Errorf("failed to reload active flights: %w", err)
	}
	result.Active = len(active)

	if e.publisher != nil {
		e.publisher.Publish(flight.NewSnapshot(active, now))
	}
	for _, o := range e.observers {
		o.AfterCommit(ctx, active, now)
	}

	metrics.TicksTotal.WithLabelValues("ok").Inc()
	e.logger.Info().
		Int("records", result.Records).
		Int("matched_id", result.MatchedByID).
		Int("matched_tail", result.MatchedByTail).
		Int("simulated", result.Simulated).
		Int("active", result.Active).
		Bool("source_failed", result.SourceFailed).
		Dur("took", timer.Duration()).
		Msg("Tick complete")

	return result, nil
}

// fetch calls the source under the fetch timeout.
func (e *Engine) fetch(ctx context.Context) ([]positions.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()
	return e.source.Fetch(ctx, e.bounds)
}

// apply merges rec into f. Fields the record does not carry keep their
// stored value.
func (e *Engine) apply(f flight.TrackedFlight, rec positions.Record, now time.Time) flight.TrackedFlight {
	f = f.Clone()

	if rec.Latitude != nil && rec.Longitude != nil {
		f.Latitude = flight.Float(*rec.Latitude)
		f.Longitude = flight.Float(*rec.Longitude)
	}
	if rec.Altitude != nil {
		f.Altitude = flight.Float(*rec.Altitude)
	}
	if rec.Speed != nil {
		f.Speed = flight.Float(*rec.Speed)
	}
	if rec.Heading != nil {
		f.Heading = flight.Float(geo.NormalizeHeading(*rec.Heading))
	}

	// External IDs are sticky: a tail match only fills an empty one.
	if f.FlightID == "" && rec.FlightID != "" {
		f.FlightID = rec.FlightID
	}

	if rec.Status != "" {
		status, known := MapStatus(rec.Status)
		if !known {
			e.logger.Debug().
				Int64("flight", f.ID).
				Str("provider_status", rec.Status).
				Msg("Unrecognized provider status, using ACTIVE")
		}
		stampTransition(&f, f.Status, status, now)
		f.Status = status
	}

	return f
}

// stampTransition records the actual departure or arrival time when a
// flight moves into the matching status and the time is not yet known. A
// flight that had already departed keeps an unknown departure time rather
// than getting the tick time.
func stampTransition(f *flight.TrackedFlight, from, to flight.Status, now time.Time) {
	switch to {
	case flight.StatusDeparted, flight.StatusEnRoute:
		if f.ActualDeparture == nil && !from.HasDeparted() {
			f.ActualDeparture = flight.Time(now)
		}
	case flight.StatusArrived:
		if f.ActualArrival == nil && from != flight.StatusArrived {
			f.ActualArrival = flight.Time(now)
		}
	}
}

// recordIndex looks up this tick's records by flight ID and by tail
// number. On duplicate keys the first record in provider order wins.
type recordIndex struct {
	records []positions.Record
	byID    map[string]int
	byTail  map[string]int
}

func newRecordIndex(records []positions.Record) recordIndex {
	idx := recordIndex{
		records: records,
		byID:    make(map[string]int, len(records)),
		byTail:  make(map[string]int, len(records)),
	}
	for i, r := range records {
		if r.FlightID != "" {
			if _, seen := idx.byID[r.FlightID]; !seen {
				idx.byID[r.FlightID] = i
			}
		}
		if r.TailNumber != "" {
			if _, seen := idx.byTail[r.TailNumber]; !seen {
				idx.byTail[r.TailNumber] = i
			}
		}
	}
	return idx
}

// match returns the record for f, trying the flight ID before the tail.
func (idx recordIndex) match(f flight.TrackedFlight) (positions.Record, MatchKind) {
	if f.FlightID != "" {
		if i, ok := idx.byID[f.FlightID]; ok {
			return idx.records[i], MatchByID
		}
	}
	if f.TailNumber != "" {
		if i, ok := idx.byTail[f.TailNumber]; ok {
			return idx.records[i], MatchByTail
		}
	}
	return positions.Record{}, MatchNone
}
