// Package model holds the shared data types of a reconciliation session:
// normalized transactions, match proposals, confirmed matches and rejected
// records, together with the error taxonomy every layer reports through.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the money flow of a transaction.
type Direction string

const (
	MoneyIn  Direction = "money_in"
	MoneyOut Direction = "money_out"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == MoneyIn || d == MoneyOut
}

// Label returns the display label used in explanations and exports.
func (d Direction) Label() string {
	if d == MoneyIn {
		return "Money In (Credit)"
	}
	return "Money Out (Debit)"
}

// ShortLabel returns "Money In" or "Money Out".
func (d Direction) ShortLabel() string {
	if d == MoneyIn {
		return "Money In"
	}
	return "Money Out"
}

// Source identifies which stream a transaction came from.
type Source string

const (
	SourceLedger Source = "ledger"
	SourceBank   Source = "bank"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceLedger || s == SourceBank
}

// Transaction is a normalized ledger or bank entry. It is never mutated
// after import.
type Transaction struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Vendor      string          `json:"vendor"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Direction   Direction       `json:"direction"`
	Reference   string          `json:"reference,omitempty"`
	Category    string          `json:"category,omitempty"`
	Source      Source          `json:"source"`
	OriginRow   int             `json:"origin_row"`
}

// HasReference reports whether the transaction carries a usable reference.
func (t Transaction) HasReference() bool {
	return strings.TrimSpace(t.Reference) != ""
}

// Validate checks the fields the matching core relies on.
func (t Transaction) Validate() error {
	switch {
	case strings.TrimSpace(t.ID) == "":
		return NewValidationError("id", fmt.Sprintf("%s row %d: id is required", t.Source, t.OriginRow))
	case t.Date.IsZero():
		return NewValidationError("date", fmt.Sprintf("%s %s: date is required", t.Source, t.ID))
	case t.Amount.IsNegative():
		return NewValidationError("amount", fmt.Sprintf("%s %s: amount must be non-negative", t.Source, t.ID))
	case !t.Direction.Valid():
		return NewValidationError("direction", fmt.Sprintf("%s %s: unknown direction %q", t.Source, t.ID, t.Direction))
	}
	return nil
}

// Day truncates the transaction date to a calendar day in UTC.
func (t Transaction) Day() time.Time {
	y, m, d := t.Date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
