package dto

import (
	"time"

	"github.com/eshaffer321/reconcile-backend/internal/adapters/importer"
	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
	"github.com/eshaffer321/reconcile-backend/internal/domain/pool"
	"github.com/eshaffer321/reconcile-backend/internal/domain/review"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/storage"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id,omitempty"`
	Job       string `json:"job,omitempty"`
}

// NewHealthResponse creates a health response with current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// SessionResponse is returned when transactions are submitted.
type SessionResponse struct {
	Session       *storage.Session      `json:"session"`
	LedgerSkipped []importer.SkippedRow `json:"ledger_skipped"`
	BankSkipped   []importer.SkippedRow `json:"bank_skipped"`
}

// ProposalListResponse lists pending proposals.
type ProposalListResponse struct {
	Proposals []model.Proposal `json:"proposals"`
	Count     int              `json:"count"`
}

// NextResponse is returned by sequential review. Done with InProgress set
// means the caller should poll again.
type NextResponse struct {
	Done       bool            `json:"done"`
	InProgress bool            `json:"in_progress"`
	Proposal   *model.Proposal `json:"proposal,omitempty"`
}

// ActionResponse reports a decision together with the updated stats.
type ActionResponse struct {
	Result review.ActionResult `json:"result"`
	Stats  pool.Stats          `json:"stats"`
}

// TransactionListResponse lists unmatched transactions.
type TransactionListResponse struct {
	Transactions []model.Transaction `json:"transactions"`
	Count        int                 `json:"count"`
}

// ConfirmedListResponse lists confirmed matches.
type ConfirmedListResponse struct {
	Matches []model.ConfirmedMatch `json:"matches"`
	Count   int                    `json:"count"`
}

// RejectedListResponse lists rejected records.
type RejectedListResponse struct {
	Records []model.RejectedRecord `json:"records"`
	Count   int                    `json:"count"`
}

// ExcludedListResponse lists excluded transactions per source.
type ExcludedListResponse struct {
	Ledger []model.Transaction `json:"ledger"`
	Bank   []model.Transaction `json:"bank"`
	Count  int                 `json:"count"`
}

// RunListResponse lists recorded matching runs.
type RunListResponse struct {
	Runs  []storage.MatchRun `json:"runs"`
	Count int                `json:"count"`
}
