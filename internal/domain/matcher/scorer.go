package matcher

import (
	"fmt"
	"math"
	"strings"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// vendorExactThreshold is the similarity above which the vendor is reported
// as a match rather than a percentage.
const vendorExactThreshold = 0.95

// eligible applies the hard filters. Pairs outside the date window, or
// without any reference when one is required, are never scored.
func (m *Matcher) eligible(ledger, bank model.Transaction) bool {
	if dayGap(ledger, bank) > m.config.DateWindowDays {
		return false
	}
	if m.config.RequireReference && !ledger.HasReference() && !bank.HasReference() {
		return false
	}
	return true
}

// Score computes the component sub-scores for a pair and the explanation
// parts that go with them. It does not apply the hard filters.
func (m *Matcher) Score(ledger, bank model.Transaction) (model.ComponentScores, []string) {
	var scores model.ComponentScores
	reasons := make([]string, 0, 6)

	var why string
	scores.Type, why = typeScore(ledger, bank)
	reasons = append(reasons, why)

	scores.Amount, why = m.amountScore(ledger, bank)
	reasons = append(reasons, why)

	scores.Date, why = m.dateScore(ledger, bank)
	reasons = append(reasons, why)

	scores.Vendor, why = vendorScore(ledger, bank)
	reasons = append(reasons, why)
	if scores.Vendor < m.config.VendorThreshold {
		reasons = append(reasons, fmt.Sprintf("Vendor similarity below threshold (%.0f%%)", m.config.VendorThreshold*100))
	}

	scores.Reference, why = referenceScore(ledger, bank)
	if why != "" {
		reasons = append(reasons, why)
	}

	return scores, reasons
}

func (m *Matcher) amountScore(ledger, bank model.Transaction) (float64, string) {
	diff := ledger.Amount.Sub(bank.Amount).Abs()
	if diff.IsZero() {
		return 1, fmt.Sprintf("Exact amount match ($%s)", ledger.Amount.StringFixed(2))
	}

	tol := m.config.AmountTolerance
	if diff.LessThanOrEqual(tol) {
		score := 1 - diff.Div(tol).InexactFloat64()
		return clamp(score), fmt.Sprintf("Amount difference $%s within tolerance", diff.StringFixed(2))
	}

	return 0, fmt.Sprintf("Amount mismatch: $%s vs $%s (diff: $%s)",
		ledger.Amount.StringFixed(2), bank.Amount.StringFixed(2), diff.StringFixed(2))
}

func (m *Matcher) dateScore(ledger, bank model.Transaction) (float64, string) {
	gap := dayGap(ledger, bank)
	if gap == 0 {
		return 1, "Same date"
	}

	why := fmt.Sprintf("Date difference: %d days", gap)
	if gap == 1 {
		why = "Date difference: 1 day"
	}
	if m.config.DateWindowDays == 0 || gap > m.config.DateWindowDays {
		return 0, why
	}
	return clamp(1 - float64(gap)/float64(m.config.DateWindowDays)), why
}

func vendorScore(ledger, bank model.Transaction) (float64, string) {
	a, b := ledger.Vendor, bank.Vendor
	if strings.TrimSpace(a) == "" && strings.TrimSpace(b) == "" {
		a, b = ledger.Description, bank.Description
	}

	similarity := TokenSetRatio(a, b)
	if similarity >= vendorExactThreshold {
		return similarity, fmt.Sprintf("Vendor match: '%s'", a)
	}
	return similarity, fmt.Sprintf("Vendor similarity: %.0f%% ('%s' vs '%s')", similarity*100, a, b)
}

func referenceScore(ledger, bank model.Transaction) (float64, string) {
	if !ledger.HasReference() || !bank.HasReference() {
		if ledger.HasReference() || bank.HasReference() {
			return 0, "Reference missing on one side"
		}
		return 0, ""
	}

	l := strings.TrimSpace(ledger.Reference)
	b := strings.TrimSpace(bank.Reference)
	if strings.EqualFold(l, b) {
		return 1, fmt.Sprintf("Reference match: %s", l)
	}
	return 0, fmt.Sprintf("Reference mismatch: '%s' vs '%s'", l, b)
}

// typeScore is 1 when both sides move money the same way: a ledger outflow
// pairs with a bank debit and a ledger inflow with a bank credit.
func typeScore(ledger, bank model.Transaction) (float64, string) {
	if ledger.Direction == bank.Direction {
		return 1, fmt.Sprintf("Transaction type match: %s", ledger.Direction.Label())
	}
	return 0, fmt.Sprintf("Transaction type mismatch: %s vs %s", ledger.Direction.Label(), bank.Direction.Label())
}

// dayGap is the absolute number of calendar days between the two dates.
func dayGap(ledger, bank model.Transaction) int {
	hours := math.Abs(ledger.Day().Sub(bank.Day()).Hours())
	return int(math.Round(hours / 24))
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
