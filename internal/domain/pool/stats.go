package pool

import "github.com/eshaffer321/reconcile-backend/internal/domain/model"

// Stats are the counts shown on the review dashboard.
type Stats struct {
	Confirmed       int `json:"confirmed"`
	Rejected        int `json:"rejected"`
	ExcludedLedger  int `json:"excluded_ledger"`
	ExcludedBank    int `json:"excluded_bank"`
	Excluded        int `json:"excluded"`
	Skipped         int `json:"skipped"`
	Pending         int `json:"pending"`
	Stale           int `json:"stale"`
	TotalLedger     int `json:"total_ledger"`
	TotalBank       int `json:"total_bank"`
	UnmatchedLedger int `json:"unmatched_ledger"`
	UnmatchedBank   int `json:"unmatched_bank"`
}

// Stats derives counts from the current state. Skipped is filled in by the
// review controller, which owns the skip set.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		Confirmed:   len(m.confirmed),
		Rejected:    len(m.rejected),
		TotalLedger: len(m.ledger),
		TotalBank:   len(m.bank),
	}
	for _, st := range m.ledgerState {
		switch st {
		case unmatched:
			s.UnmatchedLedger++
		case excluded:
			s.ExcludedLedger++
		}
	}
	for _, st := range m.bankState {
		switch st {
		case unmatched:
			s.UnmatchedBank++
		case excluded:
			s.ExcludedBank++
		}
	}
	s.Excluded = s.ExcludedLedger + s.ExcludedBank

	for _, idx := range m.order {
		e := m.proposals[idx]
		if e.decided {
			continue
		}
		if m.staleSides(e.proposal).Any() {
			s.Stale++
		} else {
			s.Pending++
		}
	}
	return s
}

// Snapshot is a consistent copy of every collection, taken under one lock.
type Snapshot struct {
	Ledger          []model.Transaction    `json:"ledger"`
	Bank            []model.Transaction    `json:"bank"`
	UnmatchedLedger []model.Transaction    `json:"unmatched_ledger"`
	UnmatchedBank   []model.Transaction    `json:"unmatched_bank"`
	ExcludedLedger  []model.Transaction    `json:"excluded_ledger"`
	ExcludedBank    []model.Transaction    `json:"excluded_bank"`
	Confirmed       []model.ConfirmedMatch `json:"confirmed"`
	Rejected        []model.RejectedRecord `json:"rejected"`
	Pending         []model.Proposal       `json:"pending"`
	Stats           Stats                  `json:"stats"`
}

// Snapshot copies the whole pool.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Ledger:          append([]model.Transaction(nil), m.ledger...),
		Bank:            append([]model.Transaction(nil), m.bank...),
		UnmatchedLedger: filterState(m.ledger, m.ledgerState, unmatched),
		UnmatchedBank:   filterState(m.bank, m.bankState, unmatched),
		ExcludedLedger:  filterState(m.ledger, m.ledgerState, excluded),
		ExcludedBank:    filterState(m.bank, m.bankState, excluded),
		Confirmed:       make([]model.ConfirmedMatch, 0, len(m.confirmedOrder)),
		Rejected:        make([]model.RejectedRecord, 0, len(m.rejectedOrder)),
		Pending:         make([]model.Proposal, 0, len(m.order)),
	}
	for _, id := range m.confirmedOrder {
		snap.Confirmed = append(snap.Confirmed, m.confirmed[id])
	}
	for _, id := range m.rejectedOrder {
		snap.Rejected = append(snap.Rejected, m.withAvailability(m.rejected[id]))
	}
	for _, idx := range m.order {
		e := m.proposals[idx]
		if e.decided {
			continue
		}
		p := e.proposal
		p.Stale = m.staleSides(p).Any()
		if p.Stale {
			snap.Stats.Stale++
		} else {
			snap.Stats.Pending++
		}
		snap.Pending = append(snap.Pending, p)
	}

	snap.Stats.Confirmed = len(snap.Confirmed)
	snap.Stats.Rejected = len(snap.Rejected)
	snap.Stats.TotalLedger = len(snap.Ledger)
	snap.Stats.TotalBank = len(snap.Bank)
	snap.Stats.UnmatchedLedger = len(snap.UnmatchedLedger)
	snap.Stats.UnmatchedBank = len(snap.UnmatchedBank)
	snap.Stats.ExcludedLedger = len(snap.ExcludedLedger)
	snap.Stats.ExcludedBank = len(snap.ExcludedBank)
	snap.Stats.Excluded = snap.Stats.ExcludedLedger + snap.Stats.ExcludedBank
	return snap
}
