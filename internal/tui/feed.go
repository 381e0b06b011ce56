// Package tui is a terminal client for the live flight feed.
package tui

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/unklstewy/fleetwatch/pkg/flight"
)

// Feed yields broadcast snapshots one at a time.
type Feed interface {
	Next() (flight.Snapshot, error)
	Close() error
}

// WebSocketFeed reads snapshots from a fleetwatch /ws/flights endpoint.
type WebSocketFeed struct {
	conn *websocket.Conn
}

// Dial connects to the feed at url.
func Dial(ctx context.Context, url string) (*WebSocketFeed, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &WebSocketFeed{conn: conn}, nil
}

// Next blocks until the next snapshot arrives.
func (f *WebSocketFeed) Next() (flight.Snapshot, error) {
	var snap flight.Snapshot
	if err := f.conn.ReadJSON(&snap); err != nil {
		return flight.Snapshot{}, err
	}
	return snap, nil
}

// Close sends a close frame and closes the connection.
func (f *WebSocketFeed) Close() error {
	f.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return f.conn.Close()
}
