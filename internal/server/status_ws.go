package server

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// statusPushInterval is how often the status socket pushes a snapshot
const statusPushInterval = 5 * time.Second

// handleStatusWS streams system status snapshots over a WebSocket. The
// client gets one snapshot immediately, then one every push interval
// until it disconnects.
func (s *Server) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Same-origin policy is handled by the CORS middleware upstream
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	ctx := r.Context()
	s.log.Debug().Msg("Status WebSocket client connected")

	ticker := time.NewTicker(statusPushInterval)
	defer ticker.Stop()

	for {
		writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := wsjson.Write(writeCtx, conn, s.buildSystemStatus())
		cancel()

		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				s.log.Debug().Msg("Status WebSocket client disconnected")
			} else {
				s.log.Debug().Err(err).Msg("Status WebSocket write failed")
			}
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}
