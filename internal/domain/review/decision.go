package review

import (
	"fmt"
	"strings"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// Decision is a human verdict on a proposal.
type Decision int

const (
	Approve Decision = iota + 1
	Reject
	ExcludeLedger
	ExcludeBank
	ExcludeBoth
	Skip
	Revert
)

var decisionNames = map[Decision]string{
	Approve:       "approve",
	Reject:        "reject",
	ExcludeLedger: "exclude_ledger",
	ExcludeBank:   "exclude_bank",
	ExcludeBoth:   "exclude_both",
	Skip:          "skip",
	Revert:        "revert",
}

// ParseDecision parses the wire name of a decision. "match" is accepted as
// an alias for approve.
func ParseDecision(s string) (Decision, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "match" {
		return Approve, nil
	}
	for d, n := range decisionNames {
		if n == name {
			return d, nil
		}
	}
	return 0, model.NewValidationError("decision", fmt.Sprintf("unknown decision %q", s))
}

func (d Decision) String() string {
	if n, ok := decisionNames[d]; ok {
		return n
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// MarshalText implements encoding.TextMarshaler.
func (d Decision) MarshalText() ([]byte, error) {
	if _, ok := decisionNames[d]; !ok {
		return nil, model.NewValidationError("decision", d.String())
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Decision) UnmarshalText(text []byte) error {
	parsed, err := ParseDecision(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// sides maps exclusion decisions to the sides they exclude.
func (d Decision) sides() model.Sides {
	switch d {
	case ExcludeLedger:
		return model.LedgerSide
	case ExcludeBank:
		return model.BankSide
	case ExcludeBoth:
		return model.BothSides
	}
	return model.Sides{}
}

// Mutates reports whether the decision changes pool state.
func (d Decision) Mutates() bool {
	return d != Skip
}
