package model

import "time"

// Band is the discrete confidence classification.
type Band string

const (
	BandHigh   Band = "High"
	BandMedium Band = "Medium"
	BandLow    Band = "Low"
)

// Rank orders bands so callers can compare them (High > Medium > Low).
func (b Band) Rank() int {
	switch b {
	case BandHigh:
		return 2
	case BandMedium:
		return 1
	default:
		return 0
	}
}

// ComponentScores holds the per-field sub-scores of a scored pair.
type ComponentScores struct {
	Amount    float64 `json:"amount"`
	Date      float64 `json:"date"`
	Vendor    float64 `json:"vendor"`
	Reference float64 `json:"reference"`
	Type      float64 `json:"type"`
}

// Candidate is one scored bank transaction for a ledger entry.
type Candidate struct {
	Bank        Transaction     `json:"bank"`
	Confidence  float64         `json:"confidence"`
	Band        Band            `json:"band"`
	Scores      ComponentScores `json:"scores"`
	Explanation string          `json:"explanation"`
}

// Proposal is a suggested ledger/bank pairing awaiting a decision.
// Bank is nil when no viable candidate exists.
type Proposal struct {
	Index       int             `json:"index"`
	RunID       string          `json:"run_id,omitempty"`
	Ledger      Transaction     `json:"ledger"`
	Bank        *Transaction    `json:"bank"`
	Confidence  float64         `json:"confidence"`
	Band        Band            `json:"band"`
	Scores      ComponentScores `json:"scores"`
	Explanation string          `json:"explanation"`
	Alternates  []Candidate     `json:"alternates"`
	CreatedAt   time.Time       `json:"created_at"`

	// Stale is derived at read time: one of the referenced transactions is
	// no longer unmatched.
	Stale bool `json:"stale"`
}

// HasBank reports whether the proposal names a bank transaction.
func (p Proposal) HasBank() bool {
	return p.Bank != nil
}

// BankID returns the bank transaction id or "" when there is none.
func (p Proposal) BankID() string {
	if p.Bank == nil {
		return ""
	}
	return p.Bank.ID
}

// ConfirmedMatch is the committed result of approving a proposal.
type ConfirmedMatch struct {
	ID          string          `json:"id"`
	Ledger      Transaction     `json:"ledger"`
	Bank        Transaction     `json:"bank"`
	Confidence  float64         `json:"confidence"`
	Band        Band            `json:"band"`
	Scores      ComponentScores `json:"scores"`
	Explanation string          `json:"explanation"`
	ConfirmedAt time.Time       `json:"confirmed_at"`
}

// MatchID derives the confirmed match id for a pair. A transaction can be
// part of at most one confirmation at a time, so the pair is unique.
func MatchID(ledgerID, bankID string) string {
	return ledgerID + "|" + bankID
}

// RejectedRecord is a restorable snapshot of a rejected pairing.
type RejectedRecord struct {
	ID          string          `json:"id"`
	Ledger      Transaction     `json:"ledger"`
	Bank        Transaction     `json:"bank"`
	Confidence  float64         `json:"confidence"`
	Band        Band            `json:"band"`
	Scores      ComponentScores `json:"scores"`
	Explanation string          `json:"explanation"`
	Alternates  []Candidate     `json:"alternates,omitempty"`
	RejectedAt  time.Time       `json:"rejected_at"`

	// Derived against the pool when the record is read.
	LedgerAvailable bool `json:"ledger_available"`
	BankAvailable   bool `json:"bank_available"`
}

// Restorable reports whether both sides are still unmatched.
func (r RejectedRecord) Restorable() bool {
	return r.LedgerAvailable && r.BankAvailable
}
