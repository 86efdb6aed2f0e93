package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/eshaffer321/reconcile-backend/internal/adapters/export"
	"github.com/eshaffer321/reconcile-backend/internal/api/dto"
	"github.com/eshaffer321/reconcile-backend/internal/application/service"
)

// ExportHandler serves result downloads.
type ExportHandler struct {
	*Base
}

// NewExportHandler creates a new export handler.
func NewExportHandler(svc *service.ReconcileService, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{Base: NewBase(svc, logger)}
}

func attachment(w http.ResponseWriter, name, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
}

// Matches handles GET /api/export/matches.
func (h *ExportHandler) Matches(w http.ResponseWriter, r *http.Request) {
	attachment(w, export.FileConfirmed, "text/csv")
	if err := export.WriteConfirmed(w, h.svc.Confirmed()); err != nil {
		h.logger.Error("export failed", "file", export.FileConfirmed, "error", err)
	}
}

// UnmatchedLedger handles GET /api/export/unmatched-ledger.
func (h *ExportHandler) UnmatchedLedger(w http.ResponseWriter, r *http.Request) {
	attachment(w, export.FileUnmatchedLedger, "text/csv")
	if err := export.WriteTransactions(w, h.svc.UnmatchedLedger()); err != nil {
		h.logger.Error("export failed", "file", export.FileUnmatchedLedger, "error", err)
	}
}

// UnmatchedBank handles GET /api/export/unmatched-bank.
func (h *ExportHandler) UnmatchedBank(w http.ResponseWriter, r *http.Request) {
	attachment(w, export.FileUnmatchedBank, "text/csv")
	if err := export.WriteTransactions(w, h.svc.UnmatchedBank()); err != nil {
		h.logger.Error("export failed", "file", export.FileUnmatchedBank, "error", err)
	}
}

// Rejected handles GET /api/export/rejected.
func (h *ExportHandler) Rejected(w http.ResponseWriter, r *http.Request) {
	attachment(w, export.FileRejected, "text/csv")
	if err := export.WriteRejected(w, h.svc.Rejected()); err != nil {
		h.logger.Error("export failed", "file", export.FileRejected, "error", err)
	}
}

// Excluded handles GET /api/export/excluded.
func (h *ExportHandler) Excluded(w http.ResponseWriter, r *http.Request) {
	ledger, bank := h.svc.Excluded()
	attachment(w, export.FileExcluded, "text/csv")
	if err := export.WriteExcluded(w, ledger, bank); err != nil {
		h.logger.Error("export failed", "file", export.FileExcluded, "error", err)
	}
}

// Audit handles GET /api/export/audit.
func (h *ExportHandler) Audit(w http.ResponseWriter, r *http.Request) {
	decisions, err := h.svc.AuditTrail()
	if err != nil {
		h.logger.Error("failed to load audit trail", "error", err)
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	var sessionID string
	if sess := h.svc.Session(); sess != nil {
		sessionID = sess.ID
	}
	report := export.NewAuditReport(sessionID, h.svc.Stats(), decisions, time.Now().UTC())

	attachment(w, export.FileAudit, "application/json")
	if err := export.WriteAudit(w, report); err != nil {
		h.logger.Error("export failed", "file", export.FileAudit, "error", err)
	}
}
