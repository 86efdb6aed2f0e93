package handlers

import (
	"log/slog"
	"net/http"

	"github.com/eshaffer321/reconcile-backend/internal/api/dto"
	"github.com/eshaffer321/reconcile-backend/internal/application/service"
	"github.com/eshaffer321/reconcile-backend/internal/domain/review"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/storage"
)

// MatchHandler handles the matching job and sequential review.
type MatchHandler struct {
	*Base
}

// NewMatchHandler creates a new match handler.
func NewMatchHandler(svc *service.ReconcileService, logger *slog.Logger) *MatchHandler {
	return &MatchHandler{Base: NewBase(svc, logger)}
}

// Run handles POST /api/match/run - starts or reruns the job. Fields of
// the optional body override the configured matching defaults.
func (h *MatchHandler) Run(w http.ResponseWriter, r *http.Request) {
	cfg := h.svc.MatchingConfig()
	if err := DecodeJSON(r, &cfg); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid matching configuration"))
		return
	}

	progress, err := h.svc.StartMatching(&cfg)
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusAccepted, progress)
}

// Pause handles POST /api/match/pause.
func (h *MatchHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, h.svc.PauseMatching())
}

// Resume handles POST /api/match/resume.
func (h *MatchHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, h.svc.ResumeMatching())
}

// Cancel handles POST /api/match/cancel.
func (h *MatchHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, h.svc.CancelMatching())
}

// Progress handles GET /api/match/progress.
func (h *MatchHandler) Progress(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, h.svc.Progress())
}

// Pending handles GET /api/match/pending.
func (h *MatchHandler) Pending(w http.ResponseWriter, r *http.Request) {
	proposals := h.svc.Pending()
	h.WriteJSON(w, http.StatusOK, dto.ProposalListResponse{
		Proposals: proposals,
		Count:     len(proposals),
	})
}

// Next handles GET /api/match/next.
func (h *MatchHandler) Next(w http.ResponseWriter, r *http.Request) {
	p, ok := h.svc.Next()
	resp := dto.NextResponse{Done: !ok, InProgress: h.svc.Progress().InProgress}
	if ok {
		resp.Proposal = &p
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

// Seek handles POST /api/match/seek.
func (h *MatchHandler) Seek(w http.ResponseWriter, r *http.Request) {
	var req dto.SeekRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}

	p, err := h.svc.Seek(req.Index)
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

// Action handles POST /api/match/action - applies one review decision.
func (h *MatchHandler) Action(w http.ResponseWriter, r *http.Request) {
	var req dto.ActionRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}

	decision, err := review.ParseDecision(req.Decision)
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}

	result, err := h.svc.Action(review.ActionRequest{
		Index:    req.Index,
		MatchID:  req.MatchID,
		Decision: decision,
		Notes:    req.Notes,
	})
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.ActionResponse{Result: result, Stats: h.svc.Stats()})
}

// Stats handles GET /api/match/stats.
func (h *MatchHandler) Stats(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, h.svc.Stats())
}

// Runs handles GET /api/match/runs - returns recorded runs for the
// current session.
func (h *MatchHandler) Runs(w http.ResponseWriter, r *http.Request) {
	limit := ParseIntParam(r, "limit", 20)

	runs, err := h.svc.Runs(limit)
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}
	if runs == nil {
		runs = []storage.MatchRun{}
	}
	h.WriteJSON(w, http.StatusOK, dto.RunListResponse{Runs: runs, Count: len(runs)})
}
