package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Session is one import of a ledger and a bank statement
type Session struct {
	ID           string    `json:"id"`
	LedgerSource string    `json:"ledger_source,omitempty"` // file name or "api"
	BankSource   string    `json:"bank_source,omitempty"`
	LedgerCount  int       `json:"ledger_count"`
	BankCount    int       `json:"bank_count"`
	SkippedRows  int       `json:"skipped_rows"`
	CreatedAt    time.Time `json:"created_at"`
}

// Run statuses mirror the orchestrator's terminal states
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// MatchRun is the history record of one matching run
type MatchRun struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"session_id"`
	Status       string          `json:"status"`
	Total        int             `json:"total"`
	Processed    int             `json:"processed"`
	MatchesFound int             `json:"matches_found"`
	Error        string          `json:"error,omitempty"`
	Config       json.RawMessage `json:"config,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// RunResult is what CompleteRun writes back
type RunResult struct {
	Status       string
	Total        int
	Processed    int
	MatchesFound int
	Error        string
}

// AuditEntry is one reviewer decision
type AuditEntry struct {
	ID             int64               `json:"id"`
	SessionID      string              `json:"session_id"`
	Timestamp      time.Time           `json:"timestamp"`
	Action         string              `json:"action"`
	ProposalIndex  *int                `json:"proposal_index,omitempty"`
	MatchID        string              `json:"match_id,omitempty"`
	LedgerID       string              `json:"ledger_id,omitempty"`
	BankID         string              `json:"bank_id,omitempty"`
	LedgerVendor   string              `json:"ledger_vendor,omitempty"`
	BankVendor     string              `json:"bank_vendor,omitempty"`
	LedgerAmount   decimal.NullDecimal `json:"ledger_amount"`
	BankAmount     decimal.NullDecimal `json:"bank_amount"`
	Confidence     float64             `json:"confidence"`
	Explanation    string              `json:"explanation,omitempty"`
	Notes          string              `json:"notes"`
	MatchingConfig json.RawMessage     `json:"matching_config,omitempty"`
}
