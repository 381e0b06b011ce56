package hub

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 4096
)

// WebSocketHandler serves the live feed. Each connection is one
// subscriber; client messages are read only to detect disconnects.
type WebSocketHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewWebSocketHandler creates a handler for h. checkOrigin may be nil to
// accept any origin.
func NewWebSocketHandler(h *Hub, checkOrigin func(r *http.Request) bool, logger zerolog.Logger) *WebSocketHandler {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &WebSocketHandler{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

func (wh *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wh.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		wh.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	mb := NewMailbox()
	sub, err := wh.hub.Subscribe(mb)
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error())
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		return
	}
	defer sub.Close()

	logger := wh.logger.With().Str("subscription", sub.ID).Str("remote", r.RemoteAddr).Logger()
	logger.Debug().Msg("Feed client connected")

	go readLoop(conn, mb)
	writeLoop(conn, mb, logger)
}

// readLoop discards client messages and fails the mailbox when the
// connection drops.
func readLoop(conn *websocket.Conn, mb *Mailbox) {
	conn.SetReadLimit(maxMessage)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			mb.Fail(err)
			return
		}
	}
}

// writeLoop sends each snapshot as JSON until the mailbox closes or a
// write fails.
func writeLoop(conn *websocket.Conn, mb *Mailbox, logger zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-mb.C():
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				logger.Debug().Msg("Feed client disconnected")
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				mb.Fail(err)
				logger.Debug().Err(err).Msg("Feed write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				mb.Fail(err)
				return
			}
		}
	}
}
