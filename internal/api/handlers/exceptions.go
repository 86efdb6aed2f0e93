package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/reconcile-backend/internal/api/dto"
	"github.com/eshaffer321/reconcile-backend/internal/application/service"
	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// ExceptionsHandler serves the unmatched, confirmed, rejected and excluded
// collections and the operations that move items between them.
type ExceptionsHandler struct {
	*Base
}

// NewExceptionsHandler creates a new exceptions handler.
func NewExceptionsHandler(svc *service.ReconcileService, logger *slog.Logger) *ExceptionsHandler {
	return &ExceptionsHandler{Base: NewBase(svc, logger)}
}

// UnmatchedLedger handles GET /api/exceptions/unmatched-ledger.
func (h *ExceptionsHandler) UnmatchedLedger(w http.ResponseWriter, r *http.Request) {
	h.writeTransactions(w, h.svc.UnmatchedLedger())
}

// UnmatchedBank handles GET /api/exceptions/unmatched-bank.
func (h *ExceptionsHandler) UnmatchedBank(w http.ResponseWriter, r *http.Request) {
	h.writeTransactions(w, h.svc.UnmatchedBank())
}

func (h *ExceptionsHandler) writeTransactions(w http.ResponseWriter, txns []model.Transaction) {
	if txns == nil {
		txns = []model.Transaction{}
	}
	h.WriteJSON(w, http.StatusOK, dto.TransactionListResponse{Transactions: txns, Count: len(txns)})
}

// Confirmed handles GET /api/exceptions/confirmed.
func (h *ExceptionsHandler) Confirmed(w http.ResponseWriter, r *http.Request) {
	matches := h.svc.Confirmed()
	if matches == nil {
		matches = []model.ConfirmedMatch{}
	}
	h.WriteJSON(w, http.StatusOK, dto.ConfirmedListResponse{Matches: matches, Count: len(matches)})
}

// Rejected handles GET /api/exceptions/rejected.
func (h *ExceptionsHandler) Rejected(w http.ResponseWriter, r *http.Request) {
	records := h.svc.Rejected()
	if records == nil {
		records = []model.RejectedRecord{}
	}
	h.WriteJSON(w, http.StatusOK, dto.RejectedListResponse{Records: records, Count: len(records)})
}

// Excluded handles GET /api/exceptions/excluded.
func (h *ExceptionsHandler) Excluded(w http.ResponseWriter, r *http.Request) {
	ledger, bank := h.svc.Excluded()
	if ledger == nil {
		ledger = []model.Transaction{}
	}
	if bank == nil {
		bank = []model.Transaction{}
	}
	h.WriteJSON(w, http.StatusOK, dto.ExcludedListResponse{Ledger: ledger, Bank: bank, Count: len(ledger) + len(bank)})
}

// RestoreRejected handles POST /api/exceptions/rejected/{id}/restore.
func (h *ExceptionsHandler) RestoreRejected(w http.ResponseWriter, r *http.Request) {
	notes, ok := h.notes(w, r)
	if !ok {
		return
	}
	p, err := h.svc.RestoreRejected(chi.URLParam(r, "id"), notes)
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

// ApproveRejected handles POST /api/exceptions/rejected/{id}/approve.
func (h *ExceptionsHandler) ApproveRejected(w http.ResponseWriter, r *http.Request) {
	notes, ok := h.notes(w, r)
	if !ok {
		return
	}
	cm, err := h.svc.ApproveRejected(chi.URLParam(r, "id"), notes)
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, cm)
}

// RevertConfirmed handles POST /api/exceptions/confirmed/{id}/revert.
func (h *ExceptionsHandler) RevertConfirmed(w http.ResponseWriter, r *http.Request) {
	notes, ok := h.notes(w, r)
	if !ok {
		return
	}
	cm, err := h.svc.RevertConfirmed(chi.URLParam(r, "id"), notes)
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, cm)
}

// RejectConfirmed handles POST /api/exceptions/confirmed/{id}/reject.
func (h *ExceptionsHandler) RejectConfirmed(w http.ResponseWriter, r *http.Request) {
	notes, ok := h.notes(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.RejectConfirmed(chi.URLParam(r, "id"), notes)
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, rec)
}

// Exclude handles POST /api/exceptions/exclude.
func (h *ExceptionsHandler) Exclude(w http.ResponseWriter, r *http.Request) {
	var req dto.ExcludeRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}
	txn, err := h.svc.ExcludeTransaction(model.Source(req.Source), req.ID, req.Notes)
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, txn)
}

func (h *ExceptionsHandler) notes(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req dto.NotesRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return "", false
	}
	return req.Notes, true
}
