package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

// handleEventsWS is the WebSocket flavour of the event stream for clients
// that cannot use EventSource. Each text frame is one JSON game event.
// Incoming frames are ignored.
func handleEventsWS(broker *Broker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := sessionFrom(r)

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			logger.Warn("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Hour)
		defer cancel()
		ctx = conn.CloseRead(ctx)

		ch := broker.Subscribe(sessionID)
		defer broker.Unsubscribe(sessionID, ch)

		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			case msg := <-ch:
				if err := conn.Write(ctx, websocket.MessageText, msg.Data); err != nil {
					logger.Debug("websocket write failed", "session", sessionID, "error", err)
					return
				}
			}
		}
	}
}
