package api

import (
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
)

// handleLogStream upgrades to a WebSocket and pushes every newly
// recorded request log as a JSON frame. Slow consumers lose frames
// rather than back-pressuring the telemetry store.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "") //nolint:errcheck

	logs, cancel := s.telemetry.Subscribe()
	defer cancel()

	ctx := r.Context()
	s.logger.Debug("log stream opened", "remote", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			return
		case log, ok := <-logs:
			if !ok {
				return
			}
			data, err := json.Marshal(log)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}
