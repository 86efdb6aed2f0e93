package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/olahol/melody"

	"github.com/eshaffer321/reconcile-backend/internal/application/matching"
	"github.com/eshaffer321/reconcile-backend/internal/application/service"
)

// ProgressMessage is the frame pushed to progress subscribers.
type ProgressMessage struct {
	Type     string            `json:"type"`
	Progress matching.Progress `json:"progress"`
}

// WSHandler streams matching progress over websockets.
type WSHandler struct {
	*Base
	m           *melody.Melody
	unsubscribe func()
}

// NewWSHandler creates the hub and subscribes it to service progress.
func NewWSHandler(svc *service.ReconcileService, logger *slog.Logger) *WSHandler {
	h := &WSHandler{Base: NewBase(svc, logger), m: melody.New()}

	h.m.Config.MaxMessageSize = 4096
	h.m.Config.PingPeriod = 30 * time.Second
	h.m.Config.PongWait = 60 * time.Second

	h.m.HandleConnect(func(s *melody.Session) {
		h.logger.Debug("progress subscriber connected", "remote", s.Request.RemoteAddr)
		if msg, err := encodeProgress(h.svc.Progress()); err == nil {
			_ = s.Write(msg)
		}
	})
	h.m.HandleDisconnect(func(s *melody.Session) {
		h.logger.Debug("progress subscriber disconnected", "remote", s.Request.RemoteAddr)
	})
	h.m.HandleError(func(s *melody.Session, err error) {
		h.logger.Warn("websocket error", "error", err)
	})

	h.unsubscribe = svc.Subscribe(h.broadcast)
	return h
}

// Stream handles GET /api/match/progress/ws.
func (h *WSHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if err := h.m.HandleRequest(w, r); err != nil {
		h.logger.Warn("failed to upgrade websocket", "error", err)
	}
}

// Sessions returns the number of connected subscribers.
func (h *WSHandler) Sessions() int {
	return h.m.Len()
}

// Close detaches the hub from the service and disconnects all clients.
func (h *WSHandler) Close() error {
	h.unsubscribe()
	return h.m.Close()
}

func (h *WSHandler) broadcast(p matching.Progress) {
	if h.m.IsClosed() {
		return
	}
	msg, err := encodeProgress(p)
	if err != nil {
		h.logger.Warn("failed to encode progress", "error", err)
		return
	}
	if err := h.m.Broadcast(msg); err != nil {
		h.logger.Warn("failed to broadcast progress", "error", err)
	}
}

func encodeProgress(p matching.Progress) ([]byte, error) {
	return json.Marshal(ProgressMessage{Type: "progress", Progress: p})
}
