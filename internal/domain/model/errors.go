package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks.
var (
	ErrValidation    = errors.New("validation error")
	ErrStaleProposal = errors.New("stale proposal")
	ErrConflict      = errors.New("conflict")
	ErrNotFound      = errors.New("not found")
)

// Sides names which side(s) of a pairing caused a rejected operation.
type Sides struct {
	Ledger bool `json:"ledger"`
	Bank   bool `json:"bank"`
}

var (
	LedgerSide = Sides{Ledger: true}
	BankSide   = Sides{Bank: true}
	BothSides  = Sides{Ledger: true, Bank: true}
)

// Any reports whether at least one side is set.
func (s Sides) Any() bool {
	return s.Ledger || s.Bank
}

// Union combines two side sets.
func (s Sides) Union(o Sides) Sides {
	return Sides{Ledger: s.Ledger || o.Ledger, Bank: s.Bank || o.Bank}
}

func (s Sides) String() string {
	switch {
	case s.Ledger && s.Bank:
		return "ledger+bank"
	case s.Ledger:
		return "ledger"
	case s.Bank:
		return "bank"
	default:
		return "none"
	}
}

// ValidationError reports malformed input or configuration.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StaleProposalError reports a decision against transactions that are no
// longer available.
type StaleProposalError struct {
	Index  int
	Sides  Sides
	Reason string
}

func (e *StaleProposalError) Error() string {
	return fmt.Sprintf("proposal %d is stale (%s): %s", e.Index, e.Sides, e.Reason)
}

func (e *StaleProposalError) Is(target error) bool {
	return target == ErrStaleProposal
}

// ConflictError reports a confirmation against a transaction already
// consumed by another confirmation. It also matches ErrStaleProposal.
type ConflictError struct {
	Index   int
	Sides   Sides
	MatchID string
}

func (e *ConflictError) Error() string {
	if e.MatchID != "" {
		return fmt.Sprintf("proposal %d conflicts with confirmed match %s (%s)", e.Index, e.MatchID, e.Sides)
	}
	return fmt.Sprintf("proposal %d conflicts with an existing confirmation (%s)", e.Index, e.Sides)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict || target == ErrStaleProposal
}

// NotFoundError reports a missing proposal, match or record.
type NotFoundError struct {
	Kind string
	ID   string
}

// NewNotFoundError builds a NotFoundError.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// SidesOf extracts the side information carried by a domain error.
func SidesOf(err error) (Sides, bool) {
	var stale *StaleProposalError
	if errors.As(err, &stale) {
		return stale.Sides, true
	}
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict.Sides, true
	}
	return Sides{}, false
}
