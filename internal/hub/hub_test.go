package hub

import (
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/fleetwatch/pkg/flight"
)

func snapshot(minute int, ids ...int64) flight.Snapshot {
	flights := make([]flight.TrackedFlight, 0, len(ids))
	for _, id := range ids {
		flights = append(flights, flight.TrackedFlight{ID: id, Status: flight.StatusEnRoute})
	}
	return flight.NewSnapshot(flights, time.Date(2026, 3, 1, 9, minute, 0, 0, time.UTC))
}

// recorder is a Sink that keeps everything delivered to it.
type recorder struct {
	mu     sync.Mutex
	got    []flight.Snapshot
	closed bool
}

func (r *recorder) Deliver(s flight.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, s)
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) snapshots() []flight.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]flight.Snapshot(nil), r.got...)
}

func TestHub(t *testing.T) {
	t.Run("Late joiner receives the latest snapshot then the next one", func(t *testing.T) {
		h := New(zerolog.Nop())
		s1, s2 := snapshot(0, 1), snapshot(1, 1, 2)

		h.Publish(s1)
		r := &recorder{}
		_, err := h.Subscribe(r)
		require.NoError(t, err)
		assert.Equal(t, []flight.Snapshot{s1}, r.snapshots())

		h.Publish(s2)
		assert.Equal(t, []flight.Snapshot{s1, s2}, r.snapshots())
	})

	t.Run("Subscriber before any publish receives nothing", func(t *testing.T) {
		h := New(zerolog.Nop())
		r := &recorder{}
		_, err := h.Subscribe(r)
		require.NoError(t, err)
		assert.Empty(t, r.snapshots())

		_, ok := h.Latest()
		assert.False(t, ok)
	})

	t.Run("Broken subscriber is removed and the healthy one still receives", func(t *testing.T) {
		h := New(zerolog.Nop())
		calls := 0
		broken := SinkFunc(func(flight.Snapshot) error {
			calls++
			return errors.New("broken pipe")
		})
		healthy := &recorder{}

		_, err := h.Subscribe(broken)
		require.NoError(t, err)
		_, err = h.Subscribe(healthy)
		require.NoError(t, err)
		assert.Equal(t, 2, h.SubscriberCount())

		s1 := snapshot(0, 1)
		h.Publish(s1)
		assert.Equal(t, []flight.Snapshot{s1}, healthy.snapshots())
		assert.Equal(t, 1, h.SubscriberCount())

		h.Publish(snapshot(1, 1))
		assert.Equal(t, 1, calls)
		assert.Len(t, healthy.snapshots(), 2)
	})

	t.Run("Failed initial delivery is not subscribed", func(t *testing.T) {
		h := New(zerolog.Nop())
		h.Publish(snapshot(0, 1))
		_, err := h.Subscribe(SinkFunc(func(flight.Snapshot) error { return errors.New("gone") }))
		assert.Error(t, err)
		assert.Zero(t, h.SubscriberCount())
	})

	t.Run("Unsubscribe stops delivery and closes the sink", func(t *testing.T) {
		h := New(zerolog.Nop())
		r := &recorder{}
		sub, err := h.Subscribe(r)
		require.NoError(t, err)
		assert.NotEmpty(t, sub.ID)

		sub.Close()
		sub.Close()
		h.Publish(snapshot(0, 1))
		assert.Empty(t, r.snapshots())
		assert.True(t, r.closed)
		assert.Zero(t, h.SubscriberCount())
	})

	t.Run("Close rejects new subscribers and closes existing ones", func(t *testing.T) {
		h := New(zerolog.Nop())
		mb := NewMailbox()
		_, err := h.Subscribe(mb)
		require.NoError(t, err)

		h.Close()
		h.Close()
		select {
		case <-mb.Done():
		default:
			t.Fatal("mailbox not closed")
		}

		_, err = h.Subscribe(&recorder{})
		assert.ErrorIs(t, err, ErrHubClosed)
		h.Publish(snapshot(0, 1))
	})

	t.Run("Subscription IDs are unique", func(t *testing.T) {
		h := New(zerolog.Nop())
		a, err := h.Subscribe(&recorder{})
		require.NoError(t, err)
		b, err := h.Subscribe(&recorder{})
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})
}

func TestMailbox(t *testing.T) {
	t.Run("Keeps only the latest snapshot", func(t *testing.T) {
		mb := NewMailbox()
		require.NoError(t, mb.Deliver(snapshot(0, 1)))
		require.NoError(t, mb.Deliver(snapshot(1, 2)))

		got := <-mb.C()
		assert.Equal(t, int64(2), got.Flights[0].ID)
		select {
		case <-mb.C():
			t.Fatal("expected no second snapshot")
		default:
		}
	})

	t.Run("Deliver after Close fails", func(t *testing.T) {
		mb := NewMailbox()
		require.NoError(t, mb.Close())
		require.NoError(t, mb.Close())
		assert.ErrorIs(t, mb.Deliver(snapshot(0)), ErrSinkClosed)
	})

	t.Run("Deliver after Fail returns the failure", func(t *testing.T) {
		mb := NewMailbox()
		cause := errors.New("connection reset")
		mb.Fail(cause)
		assert.ErrorIs(t, mb.Deliver(snapshot(0)), cause)
		_, ok := <-mb.C()
		assert.False(t, ok)
	})
}

func TestWebSocketHandler(t *testing.T) {
	h := New(zerolog.Nop())
	srv := httptest.NewServer(NewWebSocketHandler(h, nil, zerolog.Nop()))
	defer srv.Close()

	s1 := snapshot(0, 1)
	h.Publish(s1)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	var got flight.Snapshot
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, s1.Timestamp, got.Timestamp)
	require.Len(t, got.Flights, 1)
	assert.Equal(t, int64(1), got.Flights[0].ID)

	require.Eventually(t, func() bool { return h.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	// Client messages are ignored.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	s2 := snapshot(1, 1, 2)
	h.Publish(s2)
	require.NoError(t, conn.ReadJSON(&got))
	assert.Len(t, got.Flights, 2)

	conn.Close()
	require.Eventually(t, func() bool { return h.SubscriberCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocketHandlerClosedHub(t *testing.T) {
	h := New(zerolog.Nop())
	h.Close()
	srv := httptest.NewServer(NewWebSocketHandler(h, nil, zerolog.Nop()))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
}
