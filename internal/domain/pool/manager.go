// Package pool owns the mutable state of a reconciliation session: the
// unmatched ledger and bank pools, pending proposals, confirmed matches,
// rejected records and excluded transactions.
//
// Every exported method is atomic with respect to every other one. A
// transaction id is always in exactly one of unmatched, confirmed or
// excluded. Proposals are advisory: they never move a transaction, and a
// proposal whose transactions have moved is reported as stale.
package pool

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// Generator builds a proposal for one ledger transaction from a bank pool.
// *matcher.Matcher satisfies it.
type Generator interface {
	Generate(ledger model.Transaction, bank []model.Transaction) (model.Proposal, error)
}

type membership int

const (
	unmatched membership = iota
	confirmed
	excluded
)

type entry struct {
	proposal model.Proposal
	decided  bool
}

type pairKey struct {
	ledger string
	bank   string
}

// Manager is the single owner of pool state.
type Manager struct {
	mu sync.RWMutex

	ledger      []model.Transaction
	bank        []model.Transaction
	ledgerIndex map[string]int
	bankIndex   map[string]int
	ledgerState map[string]membership
	bankState   map[string]membership

	// Which confirmed match consumed a transaction.
	ledgerMatch map[string]string
	bankMatch   map[string]string

	proposals map[int]*entry
	order     []int
	nextIndex int

	confirmed      map[string]model.ConfirmedMatch
	confirmedOrder []string

	rejected      map[string]model.RejectedRecord
	rejectedOrder []string
	rejectedPairs map[pairKey]int

	now func() time.Time
}

// NewManager creates an empty pool.
func NewManager() *Manager {
	m := &Manager{now: time.Now}
	m.reset()
	return m
}

func (m *Manager) reset() {
	m.ledger = nil
	m.bank = nil
	m.ledgerIndex = make(map[string]int)
	m.bankIndex = make(map[string]int)
	m.ledgerState = make(map[string]membership)
	m.bankState = make(map[string]membership)
	m.ledgerMatch = make(map[string]string)
	m.bankMatch = make(map[string]string)
	m.proposals = make(map[int]*entry)
	m.order = nil
	m.nextIndex = 0
	m.confirmed = make(map[string]model.ConfirmedMatch)
	m.confirmedOrder = nil
	m.rejected = make(map[string]model.RejectedRecord)
	m.rejectedOrder = nil
	m.rejectedPairs = make(map[pairKey]int)
}

// Load replaces the whole session with freshly submitted transactions.
// Every transaction must validate and ids must be unique within a source.
func (m *Manager) Load(ledger, bank []model.Transaction) error {
	ledgerIndex, err := indexTransactions(ledger, model.SourceLedger)
	if err != nil {
		return err
	}
	bankIndex, err := indexTransactions(bank, model.SourceBank)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.reset()
	m.ledger = append([]model.Transaction(nil), ledger...)
	m.bank = append([]model.Transaction(nil), bank...)
	m.ledgerIndex = ledgerIndex
	m.bankIndex = bankIndex
	for _, t := range m.ledger {
		m.ledgerState[t.ID] = unmatched
	}
	for _, t := range m.bank {
		m.bankState[t.ID] = unmatched
	}
	return nil
}

func indexTransactions(txns []model.Transaction, source model.Source) (map[string]int, error) {
	index := make(map[string]int, len(txns))
	for i, t := range txns {
		if t.Source != source {
			return nil, model.NewValidationError("source", fmt.Sprintf("%s %s submitted as %s", t.Source, t.ID, source))
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := index[t.ID]; dup {
			return nil, model.NewValidationError("id", fmt.Sprintf("duplicate %s id %q", source, t.ID))
		}
		index[t.ID] = i
	}
	return index, nil
}

// Transaction looks up a transaction by source and id.
func (m *Manager) Transaction(source model.Source, id string) (model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookupTxn(source, id)
}

func (m *Manager) lookupTxn(source model.Source, id string) (model.Transaction, error) {
	switch source {
	case model.SourceLedger:
		if i, ok := m.ledgerIndex[id]; ok {
			return m.ledger[i], nil
		}
	case model.SourceBank:
		if i, ok := m.bankIndex[id]; ok {
			return m.bank[i], nil
		}
	default:
		return model.Transaction{}, model.NewValidationError("source", fmt.Sprintf("unknown source %q", source))
	}
	return model.Transaction{}, model.NewNotFoundError(string(source)+" transaction", id)
}

// UnmatchedLedgerIDs returns the ids of unmatched ledger transactions in
// import order.
func (m *Manager) UnmatchedLedgerIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.ledger))
	for _, t := range m.ledger {
		if m.ledgerState[t.ID] == unmatched {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// UnmatchedLedger returns unmatched ledger transactions in import order.
func (m *Manager) UnmatchedLedger() []model.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterState(m.ledger, m.ledgerState, unmatched)
}

// UnmatchedBank returns unmatched bank transactions in import order.
func (m *Manager) UnmatchedBank() []model.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterState(m.bank, m.bankState, unmatched)
}

// Excluded returns the excluded ledger and bank transactions.
func (m *Manager) Excluded() (ledger, bank []model.Transaction) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterState(m.ledger, m.ledgerState, excluded), filterState(m.bank, m.bankState, excluded)
}

func filterState(txns []model.Transaction, state map[string]membership, want membership) []model.Transaction {
	out := make([]model.Transaction, 0)
	for _, t := range txns {
		if state[t.ID] == want {
			out = append(out, t)
		}
	}
	return out
}

// Confirmed returns confirmed matches in confirmation order.
func (m *Manager) Confirmed() []model.ConfirmedMatch {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.ConfirmedMatch, 0, len(m.confirmedOrder))
	for _, id := range m.confirmedOrder {
		out = append(out, m.confirmed[id])
	}
	return out
}

// ConfirmedMatch looks up one confirmed match.
func (m *Manager) ConfirmedMatch(matchID string) (model.ConfirmedMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cm, ok := m.confirmed[matchID]
	if !ok {
		return model.ConfirmedMatch{}, model.NewNotFoundError("confirmed match", matchID)
	}
	return cm, nil
}

// Rejected returns rejected records in rejection order, with availability
// flags computed against the current pools.
func (m *Manager) Rejected() []model.RejectedRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.RejectedRecord, 0, len(m.rejectedOrder))
	for _, id := range m.rejectedOrder {
		out = append(out, m.withAvailability(m.rejected[id]))
	}
	return out
}

func (m *Manager) withAvailability(r model.RejectedRecord) model.RejectedRecord {
	r.LedgerAvailable = m.ledgerState[r.Ledger.ID] == unmatched
	r.BankAvailable = m.bankState[r.Bank.ID] == unmatched
	return r
}

// Propose runs gen for one unmatched ledger transaction and appends the
// result to the pending sequence. It returns false without calling gen when
// the transaction is no longer unmatched or already has an open proposal.
//
// Bank transactions previously rejected against this ledger entry are never
// offered. With reserve set, bank transactions named by open proposals are
// not offered either, so one run does not propose the same bank entry twice.
func (m *Manager) Propose(ledgerID, runID string, reserve bool, gen Generator) (model.Proposal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ledgerTxn, err := m.lookupTxn(model.SourceLedger, ledgerID)
	if err != nil {
		return model.Proposal{}, false, err
	}
	if m.ledgerState[ledgerID] != unmatched {
		return model.Proposal{}, false, nil
	}

	reserved := make(map[string]bool)
	for _, idx := range m.order {
		e := m.proposals[idx]
		if e.decided || m.staleSides(e.proposal).Any() {
			continue
		}
		if e.proposal.Ledger.ID == ledgerID {
			return model.Proposal{}, false, nil
		}
		if reserve && e.proposal.HasBank() {
			reserved[e.proposal.Bank.ID] = true
		}
	}

	candidates := make([]model.Transaction, 0, len(m.bank))
	for _, b := range m.bank {
		if m.bankState[b.ID] != unmatched || reserved[b.ID] {
			continue
		}
		if m.rejectedPairs[pairKey{ledger: ledgerID, bank: b.ID}] > 0 {
			continue
		}
		candidates = append(candidates, b)
	}

	p, err := gen.Generate(ledgerTxn, candidates)
	if err != nil {
		return model.Proposal{}, false, err
	}
	p.RunID = runID
	return m.appendProposal(p), true, nil
}

func (m *Manager) appendProposal(p model.Proposal) model.Proposal {
	p.Index = m.nextIndex
	p.CreatedAt = m.now()
	p.Stale = false
	m.nextIndex++
	m.proposals[p.Index] = &entry{proposal: p}
	m.order = append(m.order, p.Index)
	return p
}

// Pending returns undecided proposals in index order. Stale ones are
// included and flagged.
func (m *Manager) Pending() []model.Proposal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Proposal, 0, len(m.order))
	for _, idx := range m.order {
		e := m.proposals[idx]
		if e.decided {
			continue
		}
		p := e.proposal
		p.Stale = m.staleSides(p).Any()
		out = append(out, p)
	}
	return out
}

// Lookup returns a proposal by index regardless of its state.
func (m *Manager) Lookup(index int) (model.Proposal, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.proposals[index]
	if !ok {
		return model.Proposal{}, false, model.NewNotFoundError("proposal", fmt.Sprint(index))
	}
	p := e.proposal
	p.Stale = m.staleSides(p).Any()
	return p, e.decided, nil
}

// Actionable returns the proposal at index when a decision can still be
// applied to it.
func (m *Manager) Actionable(index int) (model.Proposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, err := m.open(index)
	if err != nil {
		return model.Proposal{}, err
	}
	if err := m.checkAvailable(index, e.proposal, model.BothSides); err != nil {
		return model.Proposal{}, err
	}
	return e.proposal, nil
}

// NextActionable returns the lowest-indexed actionable proposal with an
// index of at least from.
func (m *Manager) NextActionable(from int) (model.Proposal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := sort.SearchInts(m.order, from)
	for ; i < len(m.order); i++ {
		e := m.proposals[m.order[i]]
		if e.decided || m.staleSides(e.proposal).Any() {
			continue
		}
		return e.proposal, true
	}
	return model.Proposal{}, false
}

// open returns the entry at index if it exists and is undecided.
func (m *Manager) open(index int) (*entry, error) {
	e, ok := m.proposals[index]
	if !ok {
		return nil, model.NewNotFoundError("proposal", fmt.Sprint(index))
	}
	if e.decided {
		return nil, &model.StaleProposalError{Index: index, Reason: "already decided"}
	}
	return e, nil
}

// staleSides reports which referenced transactions are no longer unmatched.
func (m *Manager) staleSides(p model.Proposal) model.Sides {
	var s model.Sides
	s.Ledger = m.ledgerState[p.Ledger.ID] != unmatched
	if p.HasBank() {
		s.Bank = m.bankState[p.Bank.ID] != unmatched
	}
	return s
}

// checkAvailable verifies the requested sides of p are still unmatched.
// A side consumed by a confirmation yields a ConflictError, an excluded side
// a StaleProposalError. Either way the error names every unavailable side.
func (m *Manager) checkAvailable(index int, p model.Proposal, want model.Sides) error {
	gone := m.staleSides(p)
	gone.Ledger = gone.Ledger && want.Ledger
	gone.Bank = gone.Bank && want.Bank
	if !gone.Any() {
		return nil
	}

	matchID := ""
	if gone.Ledger && m.ledgerState[p.Ledger.ID] == confirmed {
		matchID = m.ledgerMatch[p.Ledger.ID]
	} else if gone.Bank && m.bankState[p.Bank.ID] == confirmed {
		matchID = m.bankMatch[p.Bank.ID]
	}
	if matchID != "" {
		return &model.ConflictError{Index: index, Sides: gone, MatchID: matchID}
	}
	return &model.StaleProposalError{Index: index, Sides: gone, Reason: "transaction excluded"}
}

// Confirm approves the proposal at index. Both transactions must still be
// unmatched; on failure nothing changes.
func (m *Manager) Confirm(index int) (model.ConfirmedMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.confirm(index)
}

func (m *Manager) confirm(index int) (model.ConfirmedMatch, error) {
	e, err := m.open(index)
	if err != nil {
		return model.ConfirmedMatch{}, err
	}
	p := e.proposal
	if !p.HasBank() {
		return model.ConfirmedMatch{}, model.NewValidationError("bank", fmt.Sprintf("proposal %d has no bank transaction to approve", index))
	}
	if err := m.checkAvailable(index, p, model.BothSides); err != nil {
		return model.ConfirmedMatch{}, err
	}

	cm := model.ConfirmedMatch{
		ID:          model.MatchID(p.Ledger.ID, p.Bank.ID),
		Ledger:      p.Ledger,
		Bank:        *p.Bank,
		Confidence:  p.Confidence,
		Band:        p.Band,
		Scores:      p.Scores,
		Explanation: p.Explanation,
		ConfirmedAt: m.now(),
	}
	m.ledgerState[p.Ledger.ID] = confirmed
	m.bankState[p.Bank.ID] = confirmed
	m.ledgerMatch[p.Ledger.ID] = cm.ID
	m.bankMatch[p.Bank.ID] = cm.ID
	m.confirmed[cm.ID] = cm
	m.confirmedOrder = append(m.confirmedOrder, cm.ID)
	e.decided = true
	return cm, nil
}

// Reject records the proposal at index as a rejected pairing. Both
// transactions stay unmatched, but the pair is not proposed again until the
// record is restored.
func (m *Manager) Reject(index int) (model.RejectedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.open(index)
	if err != nil {
		return model.RejectedRecord{}, err
	}
	p := e.proposal
	if !p.HasBank() {
		return model.RejectedRecord{}, model.NewValidationError("bank", fmt.Sprintf("proposal %d has no bank transaction to reject", index))
	}
	if err := m.checkAvailable(index, p, model.BothSides); err != nil {
		return model.RejectedRecord{}, err
	}

	rec := model.RejectedRecord{
		ID:          uuid.NewString(),
		Ledger:      p.Ledger,
		Bank:        *p.Bank,
		Confidence:  p.Confidence,
		Band:        p.Band,
		Scores:      p.Scores,
		Explanation: p.Explanation,
		Alternates:  p.Alternates,
		RejectedAt:  m.now(),
	}
	m.addRejected(rec)
	e.decided = true
	return m.withAvailability(rec), nil
}

func (m *Manager) addRejected(rec model.RejectedRecord) {
	m.rejected[rec.ID] = rec
	m.rejectedOrder = append(m.rejectedOrder, rec.ID)
	m.rejectedPairs[pairKey{ledger: rec.Ledger.ID, bank: rec.Bank.ID}]++
}

func (m *Manager) removeRejected(id string) {
	rec := m.rejected[id]
	delete(m.rejected, id)
	m.rejectedOrder = removeString(m.rejectedOrder, id)
	key := pairKey{ledger: rec.Ledger.ID, bank: rec.Bank.ID}
	if m.rejectedPairs[key] <= 1 {
		delete(m.rejectedPairs, key)
	} else {
		m.rejectedPairs[key]--
	}
}

// Exclude moves the chosen sides of the proposal at index to the excluded
// set and closes the proposal. Only the chosen sides must be available.
func (m *Manager) Exclude(index int, sides model.Sides) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !sides.Any() {
		return nil, model.NewValidationError("sides", "at least one side must be excluded")
	}
	e, err := m.open(index)
	if err != nil {
		return nil, err
	}
	p := e.proposal
	if sides.Bank && !p.HasBank() {
		return nil, model.NewValidationError("bank", fmt.Sprintf("proposal %d has no bank transaction to exclude", index))
	}
	if err := m.checkAvailable(index, p, sides); err != nil {
		return nil, err
	}

	var out []model.Transaction
	if sides.Ledger {
		m.ledgerState[p.Ledger.ID] = excluded
		out = append(out, p.Ledger)
	}
	if sides.Bank {
		m.bankState[p.Bank.ID] = excluded
		out = append(out, *p.Bank)
	}
	e.decided = true
	return out, nil
}

// ExcludeTransaction excludes a single transaction outside of any proposal.
// Excluding an already excluded transaction is a no-op; a confirmed one must
// be reverted first.
func (m *Manager) ExcludeTransaction(source model.Source, id string) (model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.lookupTxn(source, id)
	if err != nil {
		return model.Transaction{}, err
	}

	state, matches, side := m.ledgerState, m.ledgerMatch, model.LedgerSide
	if source == model.SourceBank {
		state, matches, side = m.bankState, m.bankMatch, model.BankSide
	}
	if state[id] == confirmed {
		return model.Transaction{}, &model.ConflictError{Index: -1, Sides: side, MatchID: matches[id]}
	}
	state[id] = excluded
	return t, nil
}

// RevertConfirmed deletes a confirmed match and returns both transactions to
// the unmatched pools. No rejected record is created.
func (m *Manager) RevertConfirmed(matchID string) (model.ConfirmedMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unconfirm(matchID)
}

func (m *Manager) unconfirm(matchID string) (model.ConfirmedMatch, error) {
	cm, ok := m.confirmed[matchID]
	if !ok {
		return model.ConfirmedMatch{}, model.NewNotFoundError("confirmed match", matchID)
	}
	delete(m.confirmed, matchID)
	m.confirmedOrder = removeString(m.confirmedOrder, matchID)
	m.ledgerState[cm.Ledger.ID] = unmatched
	m.bankState[cm.Bank.ID] = unmatched
	delete(m.ledgerMatch, cm.Ledger.ID)
	delete(m.bankMatch, cm.Bank.ID)
	return cm, nil
}

// RejectConfirmed unwinds a confirmed match into a restorable rejected
// record.
func (m *Manager) RejectConfirmed(matchID string) (model.RejectedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cm, err := m.unconfirm(matchID)
	if err != nil {
		return model.RejectedRecord{}, err
	}
	rec := model.RejectedRecord{
		ID:          uuid.NewString(),
		Ledger:      cm.Ledger,
		Bank:        cm.Bank,
		Confidence:  cm.Confidence,
		Band:        cm.Band,
		Scores:      cm.Scores,
		Explanation: cm.Explanation,
		RejectedAt:  m.now(),
	}
	m.addRejected(rec)
	return m.withAvailability(rec), nil
}

// Restore turns a rejected record back into a pending proposal with a fresh
// index. Both sides must still be unmatched.
func (m *Manager) Restore(recordID string) (model.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restore(recordID)
}

func (m *Manager) restore(recordID string) (model.Proposal, error) {
	rec, ok := m.rejected[recordID]
	if !ok {
		return model.Proposal{}, model.NewNotFoundError("rejected record", recordID)
	}

	bank := rec.Bank
	p := model.Proposal{
		Ledger:      rec.Ledger,
		Bank:        &bank,
		Confidence:  rec.Confidence,
		Band:        rec.Band,
		Scores:      rec.Scores,
		Explanation: rec.Explanation,
		Alternates:  rec.Alternates,
	}
	if err := m.checkAvailable(-1, p, model.BothSides); err != nil {
		return model.Proposal{}, err
	}

	m.removeRejected(recordID)
	return m.appendProposal(p), nil
}

// ApproveRejected restores a rejected record and confirms it in one step.
func (m *Manager) ApproveRejected(recordID string) (model.ConfirmedMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.restore(recordID)
	if err != nil {
		return model.ConfirmedMatch{}, err
	}
	return m.confirm(p.Index)
}

// DiscardPending drops every undecided proposal and returns how many were
// dropped. Decided proposals and all transaction collections are untouched.
func (m *Manager) DiscardPending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.order[:0]
	dropped := 0
	for _, idx := range m.order {
		if m.proposals[idx].decided {
			kept = append(kept, idx)
			continue
		}
		delete(m.proposals, idx)
		dropped++
	}
	m.order = kept
	return dropped
}

func removeString(list []string, s string) []string {
	for i, v := range list {
		if v == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
