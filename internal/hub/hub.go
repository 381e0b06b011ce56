// Package hub fans committed flight snapshots out to live subscribers.
package hub

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/unklstewy/fleetwatch/internal/metrics"
	"github.com/unklstewy/fleetwatch/pkg/flight"
)

var (
	// ErrHubClosed is returned by Subscribe after Close.
	ErrHubClosed = errors.New("hub closed")

	// ErrSinkClosed is returned by Deliver on a closed sink.
	ErrSinkClosed = errors.New("sink closed")
)

// Sink is the outbound side of one subscriber. Deliver must not block;
// an error means the subscriber is gone and it is removed from the hub.
// Sinks that also implement io.Closer are closed on removal.
type Sink interface {
	Deliver(s flight.Snapshot) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(s flight.Snapshot) error

func (f SinkFunc) Deliver(s flight.Snapshot) error { return f(s) }

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	ID   string
	sink Sink
	hub  *Hub
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

// Hub holds the live subscriber set and the latest snapshot. Snapshots
// reach every subscriber in publish order.
type Hub struct {
	// pubMu orders Publish against the initial delivery in Subscribe
	pubMu sync.Mutex

	mu     sync.RWMutex
	subs   map[string]*Subscription
	latest *flight.Snapshot
	closed bool

	logger zerolog.Logger
}

// New creates an empty hub.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]*Subscription),
		logger: logger,
	}
}

// Subscribe adds sink and immediately delivers the latest snapshot, if
// one has been published. If that first delivery fails the sink is not
// added and the error is returned.
func (h *Hub) Subscribe(sink Sink) (*Subscription, error) {
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	sub := &Subscription{ID: uuid.New().String(), sink: sink, hub: h}
	latest := h.latest
	h.mu.Unlock()

	if latest != nil {
		if err := sink.Deliver(*latest); err != nil {
			closeSink(sink)
			return nil, fmt.Errorf("initial delivery failed: %w", err)
		}
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	count := len(h.subs)
	h.mu.Unlock()

	metrics.Subscribers.Set(float64(count))
	h.logger.Debug().Str("subscription", sub.ID).Int("subscribers", count).Msg("Subscriber added")
	return sub, nil
}

// Unsubscribe removes sub. Unknown or already removed handles are ignored.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.remove(sub, nil)
}

// Publish records s as the latest snapshot and delivers it to every
// subscriber. Subscribers whose delivery fails are removed; the rest still
// receive s.
func (h *Hub) Publish(s flight.Snapshot) {
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.latest = &s
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		if err := sub.sink.Deliver(s); err != nil {
			h.remove(sub, err)
		}
	}

	metrics.SnapshotsPublished.Inc()
}

// Latest returns the most recent snapshot, if any.
func (h *Hub) Latest() (flight.Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return flight.Snapshot{}, false
	}
	return *h.latest, true
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close removes and closes every subscriber. Later Subscribe calls fail
// with ErrHubClosed and Publish becomes a no-op.
func (h *Hub) Close() {
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		closeSink(sub.sink)
	}
	metrics.Subscribers.Set(0)
	h.logger.Info().Int("subscribers", len(subs)).Msg("Hub closed")
}

func (h *Hub) remove(sub *Subscription, cause error) {
	h.mu.Lock()
	_, ok := h.subs[sub.ID]
	delete(h.subs, sub.ID)
	count := len(h.subs)
	h.mu.Unlock()

	if !ok {
		return
	}
	closeSink(sub.sink)
	metrics.Subscribers.Set(float64(count))

	ev := h.logger.Debug().Str("subscription", sub.ID).Int("subscribers", count)
	if cause != nil {
		ev = ev.Err(cause)
	}
	ev.Msg("Subscriber removed")
}

func closeSink(sink Sink) {
	if c, ok := sink.(io.Closer); ok {
		c.Close()
	}
}
