package dto

import "github.com/eshaffer321/reconcile-backend/internal/domain/model"

// SubmitTransactionsRequest carries already-normalized transactions.
type SubmitTransactionsRequest struct {
	Ledger []model.Transaction `json:"ledger"`
	Bank   []model.Transaction `json:"bank"`
}

// SeekRequest selects a proposal out of order.
type SeekRequest struct {
	Index int `json:"index"`
}

// ActionRequest is one review decision. Decision is one of approve (or
// match), reject, exclude_ledger, exclude_bank, exclude_both, skip, revert.
type ActionRequest struct {
	Index    int    `json:"index"`
	MatchID  string `json:"match_id,omitempty"`
	Decision string `json:"decision"`
	Notes    string `json:"notes,omitempty"`
}

// ExcludeRequest excludes one unmatched transaction from a list view.
type ExcludeRequest struct {
	Source model.Source `json:"source"`
	ID     string       `json:"id"`
	Notes  string       `json:"notes,omitempty"`
}

// NotesRequest is the optional body of exception quick actions.
type NotesRequest struct {
	Notes string `json:"notes,omitempty"`
}
