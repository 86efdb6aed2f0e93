package cli

import (
	"fmt"
	"strings"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// ServeOptions are the flags of the serve command.
type ServeOptions struct {
	Port    int
	Verbose bool
}

// RunOptions are the flags of the headless run command.
type RunOptions struct {
	Ledger        string
	Bank          string
	LedgerMapping string
	BankMapping   string
	Out           string
	AutoApprove   string // "high", "medium" or "none"
	Verbose       bool
	NoProgress    bool
}

// AutoApproveBand parses the --auto-approve value. ok is false for "none".
func AutoApproveBand(value string) (band model.Band, ok bool, err error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none":
		return "", false, nil
	case "high":
		return model.BandHigh, true, nil
	case "medium":
		return model.BandMedium, true, nil
	}
	return "", false, fmt.Errorf("invalid --auto-approve %q: expected high, medium or none", value)
}
