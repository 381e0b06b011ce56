package db

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/unklstewy/fleetwatch/pkg/flight"
)

var (
	// Bucket names
	bucketFlights = []byte("flights")
	bucketAlerts  = []byte("alerts")
)

// BoltStore implements Store on a single BoltDB file. Values are JSON,
// keys are big-endian sequence numbers so iteration is in ID order.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates the database file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketFlights, bucketAlerts} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database file is still open.
func (s *BoltStore) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketFlights) == nil {
			return fmt.Errorf("bucket %s missing", bucketFlights)
		}
		return nil
	})
}

// Flight operations
func (s *BoltStore) CreateFlight(ctx context.Context, f flight.TrackedFlight) (flight.TrackedFlight, error) {
	if f.LastUpdated.IsZero() {
		f.LastUpdated = time.Now().UTC()
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFlights)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		f.ID = int64(seq)
		return putJSON(b, f.ID, f)
	})
	if err != nil {
		return flight.TrackedFlight{}, fmt.Errorf("failed to create flight: %w", err)
	}
	return f, nil
}

func (s *BoltStore) GetFlight(ctx context.Context, id int64) (flight.TrackedFlight, error) {
	var f flight.TrackedFlight
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketFlights).Get(itob(id))
		if data == nil {
			return fmt.Errorf("flight %d: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &f)
	})
	return f, err
}

func (s *BoltStore) ListFlights(ctx context.Context) ([]flight.TrackedFlight, error) {
	return s.listFlights(func(flight.TrackedFlight) bool { return true })
}

func (s *BoltStore) ListActiveFlights(ctx context.Context) ([]flight.TrackedFlight, error) {
	return s.listFlights(func(f flight.TrackedFlight) bool { return f.Status.IsActive() })
}

// UpdateFlights writes the batch in one bolt transaction.
func (s *BoltStore) UpdateFlights(ctx context.Context, flights []flight.TrackedFlight) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFlights)
		for _, f := range flights {
			if b.Get(itob(f.ID)) == nil {
				return fmt.Errorf("flight %d: %w", f.ID, ErrNotFound)
			}
			if err := putJSON(b, f.ID, f); err != nil {
				return fmt.Errorf("failed to update flight %d: %w", f.ID, err)
			}
		}
		return nil
	})
}

func (s *BoltStore) listFlights(keep func(flight.TrackedFlight) bool) ([]flight.TrackedFlight, error) {
	flights := []flight.TrackedFlight{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFlights).ForEach(func(k, v []byte) error {
			var f flight.TrackedFlight
			if err := json.Unmarshal(v, &f); err != nil {
				return err
			}
			if keep(f) {
				flights = append(flights, f)
			}
			return nil
		})
	})
	return flights, err
}

// Alert operations
func (s *BoltStore) CreateAlert(ctx context.Context, a flight.Alert) (flight.Alert, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketFlights).Get(itob(a.FlightID)) == nil {
			return fmt.Errorf("flight %d: %w", a.FlightID, ErrNotFound)
		}
		b := tx.Bucket(bucketAlerts)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		a.ID = int64(seq)
		return putJSON(b, a.ID, a)
	})
	if err != nil {
		return flight.Alert{}, err
	}
	return a, nil
}

func (s *BoltStore) ListAlerts(ctx context.Context, resolved *bool) ([]flight.Alert, error) {
	alerts := []flight.Alert{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAlerts).ForEach(func(k, v []byte) error {
			var a flight.Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if resolved == nil || a.Resolved == *resolved {
				alerts = append(alerts, a)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortAlerts(alerts)
	return alerts, nil
}

func (s *BoltStore) ResolveAlert(ctx context.Context, id int64, at time.Time) (flight.Alert, error) {
	var a flight.Alert
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAlerts)
		data := b.Get(itob(id))
		if data == nil {
			return fmt.Errorf("alert %d: %w", id, ErrNotFound)
		}
		if err := json.Unmarshal(data, &a); err != nil {
			return err
		}
		a.Resolved = true
		a.ResolvedAt = flight.Time(at.UTC())
		return putJSON(b, a.ID, a)
	})
	if err != nil {
		return flight.Alert{}, err
	}
	return a, nil
}

func (s *BoltStore) HasOpenAlert(ctx context.Context, flightID int64, t flight.AlertType) (bool, error) {
	open := false
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAlerts).ForEach(func(k, v []byte) error {
			var a flight.Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if a.FlightID == flightID && a.Type == t && !a.Resolved {
				open = true
			}
			return nil
		})
	})
	return open, err
}

func putJSON(b *bolt.Bucket, id int64, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(itob(id), data)
}

// itob encodes an ID as an 8-byte big-endian key.
func itob(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

// sortAlerts orders alerts newest first, breaking ties by descending ID.
func sortAlerts(alerts []flight.Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		if !alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
		}
		return alerts[i].ID > alerts[j].ID
	})
}
