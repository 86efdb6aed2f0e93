package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/eshaffer321/reconcile-backend/internal/adapters/importer"
	"github.com/eshaffer321/reconcile-backend/internal/api/dto"
	"github.com/eshaffer321/reconcile-backend/internal/application/service"
	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// maxUploadBytes is the in-memory limit for multipart uploads.
const maxUploadBytes = 32 << 20

// ImportHandler handles file previews and transaction submission.
type ImportHandler struct {
	*Base
	importer *importer.Importer
}

// NewImportHandler creates a new import handler.
func NewImportHandler(svc *service.ReconcileService, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{
		Base:     NewBase(svc, logger),
		importer: importer.NewImporter(logger),
	}
}

// Preview handles POST /api/import/preview - returns headers, sample
// values and a suggested column mapping for an uploaded CSV.
func (h *ImportHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("file is required"))
		return
	}
	defer func() { _ = file.Close() }()

	if importer.IsOFX(header.Filename) {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError("OFX statements need no column mapping"))
		return
	}

	preview, err := h.importer.Preview(file)
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, preview)
}

// SubmitTransactions handles POST /api/import/transactions - starts a
// session from normalized transactions.
func (h *ImportHandler) SubmitTransactions(w http.ResponseWriter, r *http.Request) {
	var req dto.SubmitTransactionsRequest
	if err := DecodeJSON(r, &req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}

	session, err := h.svc.SubmitTransactions(service.SubmitRequest{
		Ledger:       withSource(req.Ledger, model.SourceLedger),
		Bank:         withSource(req.Bank, model.SourceBank),
		LedgerSource: "api",
		BankSource:   "api",
	})
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, dto.SessionResponse{
		Session:       session,
		LedgerSkipped: []importer.SkippedRow{},
		BankSkipped:   []importer.SkippedRow{},
	})
}

// SubmitFiles handles POST /api/import/files - parses a ledger and a bank
// file and starts a session. Optional ledger_mapping and bank_mapping form
// fields hold JSON column mappings; without them columns are auto-mapped.
func (h *ImportHandler) SubmitFiles(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid multipart form"))
		return
	}

	ledger, err := h.parseUpload(r, "ledger", model.SourceLedger)
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}
	bank, err := h.parseUpload(r, "bank", model.SourceBank)
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}

	session, err := h.svc.SubmitTransactions(service.SubmitRequest{
		Ledger:       ledger.Transactions,
		Bank:         bank.Transactions,
		LedgerSource: ledger.name,
		BankSource:   bank.name,
		SkippedRows:  len(ledger.Skipped) + len(bank.Skipped),
	})
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, dto.SessionResponse{
		Session:       session,
		LedgerSkipped: ledger.Skipped,
		BankSkipped:   bank.Skipped,
	})
}

type upload struct {
	*importer.Result
	name string
}

func (h *ImportHandler) parseUpload(r *http.Request, prefix string, source model.Source) (*upload, error) {
	file, header, err := r.FormFile(prefix + "_file")
	if err != nil {
		return nil, model.NewValidationError(prefix+"_file", "file is required")
	}
	defer func() { _ = file.Close() }()

	var mapping *importer.ColumnMapping
	if raw := r.FormValue(prefix + "_mapping"); raw != "" {
		mapping = &importer.ColumnMapping{}
		if err := json.Unmarshal([]byte(raw), mapping); err != nil {
			return nil, model.NewValidationError(prefix+"_mapping", "invalid JSON")
		}
	}

	result, err := h.importer.ParseFile(header.Filename, file, mapping, source)
	if err != nil {
		return nil, err
	}
	return &upload{Result: result, name: header.Filename}, nil
}

func withSource(txns []model.Transaction, source model.Source) []model.Transaction {
	out := make([]model.Transaction, len(txns))
	for i, t := range txns {
		if t.Source == "" {
			t.Source = source
		}
		if t.OriginRow == 0 {
			t.OriginRow = i
		}
		out[i] = t
	}
	return out
}
