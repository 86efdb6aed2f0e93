// Package matcher scores ledger/bank transaction pairs and picks the best
// bank candidate for a ledger entry.
//
// Scoring runs in three steps:
//   - Hard filters drop pairs outside the date window, or without any
//     reference when one is required
//   - Each survivor gets amount, date, vendor, reference and direction
//     sub-scores, combined into a weighted confidence and a band
//   - The highest confidence wins; ties go to the earlier bank transaction
//
// Example usage:
//
//	m, err := matcher.NewMatcher(matcher.DefaultConfig())
//	proposal, err := m.Generate(ledgerTxn, unmatchedBank)
//	if proposal.HasBank() {
//		// Found a candidate
//	}
package matcher

import (
	"fmt"
	"sort"
	"strings"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// Matcher ranks bank candidates for ledger transactions
type Matcher struct {
	config Config
}

// NewMatcher creates a new matcher with the given config
func NewMatcher(config Config) (*Matcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Matcher{
		config: config,
	}, nil
}

// Config returns the configuration the matcher was built with.
func (m *Matcher) Config() Config {
	return m.config
}

// Aggregate combines component scores into a confidence in [0, 1].
func Aggregate(s model.ComponentScores, w Weights) float64 {
	return clamp(w.Amount*s.Amount +
		w.Date*s.Date +
		w.Vendor*s.Vendor +
		w.Reference*s.Reference +
		w.Type*s.Type)
}

// Classify maps a confidence onto a band.
func Classify(confidence float64, b Bands) model.Band {
	switch {
	case confidence >= b.High:
		return model.BandHigh
	case confidence >= b.Medium:
		return model.BandMedium
	default:
		return model.BandLow
	}
}

// Candidate scores a single pair without applying the hard filters.
func (m *Matcher) Candidate(ledger, bank model.Transaction) model.Candidate {
	scores, reasons := m.Score(ledger, bank)
	confidence := Aggregate(scores, m.config.Weights)
	return model.Candidate{
		Bank:        bank,
		Confidence:  confidence,
		Band:        Classify(confidence, m.config.Bands),
		Scores:      scores,
		Explanation: strings.Join(reasons, "; "),
	}
}

// Rank filters the bank pool for one ledger transaction and returns the
// survivors ordered by confidence, highest first. The pool order is kept for
// equal confidences.
func (m *Matcher) Rank(ledger model.Transaction, bank []model.Transaction) []model.Candidate {
	candidates := make([]model.Candidate, 0, len(bank))
	for _, b := range bank {
		if !m.eligible(ledger, b) {
			continue
		}
		candidates = append(candidates, m.Candidate(ledger, b))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	return candidates
}

// Generate builds the proposal for one ledger transaction. The returned
// proposal has no index; the pool assigns one when it is appended.
func (m *Matcher) Generate(ledger model.Transaction, bank []model.Transaction) (model.Proposal, error) {
	if err := ledger.Validate(); err != nil {
		return model.Proposal{}, fmt.Errorf("ledger %s: %w", ledger.ID, err)
	}

	proposal := model.Proposal{
		Ledger: ledger,
		Band:   model.BandLow,
	}

	candidates := m.Rank(ledger, bank)
	if len(candidates) == 0 {
		proposal.Explanation = "No bank transaction within the date window"
		if m.config.RequireReference {
			proposal.Explanation += " with a reference"
		}
		return proposal, nil
	}

	best := candidates[0]
	if best.Confidence < m.config.MinConfidence {
		proposal.Explanation = fmt.Sprintf("Best candidate %s scored %.2f, below minimum confidence %.2f",
			best.Bank.ID, best.Confidence, m.config.MinConfidence)
		proposal.Alternates = top(candidates, m.config.TopK)
		return proposal, nil
	}

	chosen := best.Bank
	proposal.Bank = &chosen
	proposal.Confidence = best.Confidence
	proposal.Band = best.Band
	proposal.Scores = best.Scores
	proposal.Explanation = best.Explanation
	proposal.Alternates = top(candidates[1:], m.config.TopK)

	return proposal, nil
}

func top(candidates []model.Candidate, k int) []model.Candidate {
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]model.Candidate, len(candidates))
	copy(out, candidates)
	return out
}
