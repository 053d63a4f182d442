package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fieldops/internal/webhooks"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// wsEnvelope is a dispatch event as written to the socket.
type wsEnvelope struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// DispatchWSHandler serves GET /v1/dispatch/ws?technicianId= — the same feed
// as the SSE stream, over a WebSocket for mobile clients that hold one
// connection open all shift.
func (s *Server) DispatchWSHandler(w http.ResponseWriter, r *http.Request) {
	techID := r.URL.Query().Get("technicianId")
	if techID == "" {
		writeProblem(w, http.StatusBadRequest, "Missing fields", "technicianId is required", r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	ch := s.Broker.Subscribe(techID)
	defer s.Broker.Unsubscribe(techID, ch)

	// reader: consumes control frames and detects close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if loc, ok := s.Locations.Get(tenant, techID); ok {
		_ = conn.WriteJSON(wsEnvelope{Type: webhooks.EventTechnicianLocated, Data: map[string]any{
			"technicianId": loc.TechnicianID, "lat": loc.Lat, "lng": loc.Lng, "ts": loc.TS,
		}})
	}

	ping := time.NewTicker(25 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(wsEnvelope{Type: evt.Type, Data: evt.Data}); err != nil {
				s.Log.Debug("dispatch ws write failed", zap.String("technician", techID), zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
