package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/eshaffer321/reconcile-backend/internal/api/dto"
	"github.com/eshaffer321/reconcile-backend/internal/application/service"
)

// HealthHandler handles health check requests. With a service it also
// reports the current session and job status.
type HealthHandler struct {
	svc *service.ReconcileService
}

// NewHealthHandler creates a new health handler. svc may be nil.
func NewHealthHandler(svc *service.ReconcileService) *HealthHandler {
	return &HealthHandler{svc: svc}
}

// ServeHTTP handles the health check request.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := dto.NewHealthResponse()
	if h.svc != nil {
		if sess := h.svc.Session(); sess != nil {
			response.SessionID = sess.ID
		}
		response.Job = string(h.svc.Progress().Status)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
