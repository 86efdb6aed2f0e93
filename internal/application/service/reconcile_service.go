package service

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/reconcile-backend/internal/application/matching"
	"github.com/eshaffer321/reconcile-backend/internal/domain/matcher"
	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
	"github.com/eshaffer321/reconcile-backend/internal/domain/pool"
	"github.com/eshaffer321/reconcile-backend/internal/domain/review"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/storage"
)

// Audit actions beyond the review decisions.
const (
	ActionRestore            = "restore"
	ActionApproveAndRestore  = "approve_and_restore"
	ActionRejectConfirmed    = "reject_confirmed"
	ActionExcludeTransaction = "exclude_transaction"
)

// ErrNoSession is returned when an operation needs submitted transactions.
var ErrNoSession = model.NewValidationError("session", "no transactions submitted")

// Options configures a ReconcileService.
type Options struct {
	Matching        matcher.Config
	ReserveProposed bool
	RecentSize      int

	// NewGenerator overrides the matcher, mostly for tests.
	NewGenerator matching.GeneratorFactory
}

// DefaultServiceOptions returns the default matching configuration with
// proposal reservation on.
func DefaultServiceOptions() Options {
	return Options{
		Matching:        matcher.DefaultConfig(),
		ReserveProposed: true,
		RecentSize:      matching.DefaultRecentSize,
	}
}

// SubmitRequest carries normalized transactions and where they came from.
type SubmitRequest struct {
	Ledger       []model.Transaction
	Bank         []model.Transaction
	LedgerSource string
	BankSource   string
	SkippedRows  int
}

// ReconcileService is the single owner of a working session. It wires the
// pool, the matching orchestrator and the review controller together and
// records sessions, runs and decisions in storage.
type ReconcileService struct {
	opts    Options
	storage storage.Repository
	logger  *slog.Logger

	pool         *pool.Manager
	review       *review.Controller
	orchestrator *matching.Orchestrator

	mu        sync.RWMutex
	session   *storage.Session
	runConfig matcher.Config

	subsMu      sync.Mutex
	subscribers map[int]func(matching.Progress)
	nextSubID   int
}

// NewReconcileService creates a service with an empty pool. store may be nil,
// in which case nothing is persisted.
func NewReconcileService(opts Options, store storage.Repository, logger *slog.Logger) *ReconcileService {
	if logger == nil {
		logger = slog.Default()
	}
	opts.Matching = opts.Matching.WithDefaults()

	s := &ReconcileService{
		opts:        opts,
		storage:     store,
		logger:      logger,
		pool:        pool.NewManager(),
		runConfig:   opts.Matching,
		subscribers: make(map[int]func(matching.Progress)),
	}
	s.review = review.NewController(s.pool)
	s.orchestrator = matching.NewOrchestrator(s.pool, matching.Options{
		ReserveProposed: opts.ReserveProposed,
		RecentSize:      opts.RecentSize,
		NewGenerator:    opts.NewGenerator,
		OnStart:         s.onRunStart,
		OnProgress:      s.publish,
		OnFinish:        s.onRunFinish,
	}, logger)
	return s
}

// MatchingConfig returns the configuration a run uses when the caller
// supplies none.
func (s *ReconcileService) MatchingConfig() matcher.Config {
	return s.opts.Matching
}

// Session returns the current session, or nil before the first submission.
func (s *ReconcileService) Session() *storage.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	copied := *s.session
	return &copied
}

func (s *ReconcileService) sessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.ID
}

// SubmitTransactions starts a new session. Any active run is cancelled and
// every collection is replaced. Invalid input leaves the previous session
// untouched.
func (s *ReconcileService) SubmitTransactions(req SubmitRequest) (*storage.Session, error) {
	s.orchestrator.Cancel()

	if err := s.pool.Load(req.Ledger, req.Bank); err != nil {
		return nil, err
	}
	s.review.Reset()

	session := &storage.Session{
		ID:           uuid.NewString(),
		LedgerSource: req.LedgerSource,
		BankSource:   req.BankSource,
		LedgerCount:  len(req.Ledger),
		BankCount:    len(req.Bank),
		SkippedRows:  req.SkippedRows,
		CreatedAt:    time.Now(),
	}

	s.mu.Lock()
	s.session = session
	s.runConfig = s.opts.Matching
	s.mu.Unlock()

	if s.storage != nil {
		if err := s.storage.SaveSession(session); err != nil {
			s.logger.Warn("failed to save session", "session_id", session.ID, "error", err)
		}
	}

	s.logger.Info("transactions submitted",
		"session_id", session.ID,
		"ledger", session.LedgerCount,
		"bank", session.BankCount,
		"skipped_rows", session.SkippedRows,
	)

	copied := *session
	return &copied, nil
}

// StartMatching starts or reruns the matching job. A nil cfg uses the
// service default.
func (s *ReconcileService) StartMatching(cfg *matcher.Config) (matching.Progress, error) {
	if s.sessionID() == "" {
		return s.orchestrator.Progress(), ErrNoSession
	}

	runCfg := s.opts.Matching
	if cfg != nil {
		runCfg = cfg.WithDefaults()
	}
	return s.orchestrator.Start(runCfg)
}

// PauseMatching pauses the active run.
func (s *ReconcileService) PauseMatching() matching.Progress {
	p := s.orchestrator.Pause()
	s.publish(p)
	return p
}

// ResumeMatching resumes a paused run.
func (s *ReconcileService) ResumeMatching() matching.Progress {
	p := s.orchestrator.Resume()
	s.publish(p)
	return p
}

// CancelMatching stops the active run.
func (s *ReconcileService) CancelMatching() matching.Progress {
	return s.orchestrator.Cancel()
}

// Progress returns the current job snapshot.
func (s *ReconcileService) Progress() matching.Progress {
	return s.orchestrator.Progress()
}

// Orchestrator exposes the job for callers that need to wait on it.
func (s *ReconcileService) Orchestrator() *matching.Orchestrator {
	return s.orchestrator
}

// Subscribe registers fn for every progress change. The returned function
// removes it. fn is called from the run goroutine and must not block.
func (s *ReconcileService) Subscribe(fn func(matching.Progress)) func() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *ReconcileService) publish(p matching.Progress) {
	s.subsMu.Lock()
	fns := make([]func(matching.Progress), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}

func (s *ReconcileService) onRunStart(p matching.Progress) {
	if p.Config != nil {
		s.mu.Lock()
		s.runConfig = *p.Config
		s.mu.Unlock()
	}

	if s.storage != nil {
		run := &storage.MatchRun{
			ID:        p.RunID,
			SessionID: s.sessionID(),
			Status:    storage.RunStatusRunning,
			Total:     p.Total,
			Config:    s.configJSON(),
		}
		if p.StartedAt != nil {
			run.StartedAt = *p.StartedAt
		}
		if err := s.storage.StartRun(run); err != nil {
			s.logger.Warn("failed to record run start", "run_id", p.RunID, "error", err)
		}
	}
	s.publish(p)
}

func (s *ReconcileService) onRunFinish(p matching.Progress) {
	if s.storage != nil {
		err := s.storage.CompleteRun(p.RunID, storage.RunResult{
			Status:       string(p.Status),
			Total:        p.Total,
			Processed:    p.Processed,
			MatchesFound: p.MatchesFound,
			Error:        p.Error,
		})
		if err != nil {
			s.logger.Warn("failed to record run completion", "run_id", p.RunID, "error", err)
		}
	}
	s.publish(p)
}

// Runs lists recorded runs for the current session.
func (s *ReconcileService) Runs(limit int) ([]storage.MatchRun, error) {
	if s.storage == nil {
		return nil, nil
	}
	return s.storage.ListRuns(s.sessionID(), limit)
}

// Pending returns the pending proposals in index order.
func (s *ReconcileService) Pending() []model.Proposal {
	return s.pool.Pending()
}

// Next returns the next actionable proposal for sequential review.
func (s *ReconcileService) Next() (model.Proposal, bool) {
	return s.review.Next()
}

// Seek jumps the review cursor to index.
func (s *ReconcileService) Seek(index int) (model.Proposal, error) {
	return s.review.Seek(index)
}

// Action applies a review decision and records it in the audit trail.
func (s *ReconcileService) Action(req review.ActionRequest) (review.ActionResult, error) {
	// Read before the decision; a confirmed proposal is no longer actionable.
	before, _, lookupErr := s.pool.Lookup(req.Index)

	result, err := s.review.Action(req)
	if err != nil {
		return result, err
	}

	var entry *storage.AuditEntry
	switch {
	case result.Reverted != nil:
		entry = confirmedEntry(req.Decision.String(), *result.Reverted)
	case lookupErr == nil:
		entry = proposalEntry(req.Decision.String(), before)
	default:
		entry = &storage.AuditEntry{Action: req.Decision.String()}
	}
	entry.Notes = req.Notes
	s.audit(entry)

	s.logger.Info("review decision applied",
		"decision", req.Decision.String(),
		"index", req.Index,
		"match_id", entry.MatchID,
	)
	return result, nil
}

// Stats returns the stats view including skipped proposals.
func (s *ReconcileService) Stats() pool.Stats {
	return s.review.Stats()
}

// UnmatchedLedger lists ledger transactions still unmatched.
func (s *ReconcileService) UnmatchedLedger() []model.Transaction {
	return s.pool.UnmatchedLedger()
}

// UnmatchedBank lists bank transactions still unmatched.
func (s *ReconcileService) UnmatchedBank() []model.Transaction {
	return s.pool.UnmatchedBank()
}

// Confirmed lists confirmed matches in confirmation order.
func (s *ReconcileService) Confirmed() []model.ConfirmedMatch {
	return s.pool.Confirmed()
}

// Rejected lists rejected records with current availability.
func (s *ReconcileService) Rejected() []model.RejectedRecord {
	return s.pool.Rejected()
}

// Excluded lists excluded transactions of both sources.
func (s *ReconcileService) Excluded() (ledger, bank []model.Transaction) {
	return s.pool.Excluded()
}

// RestoreRejected turns a rejected record back into a pending proposal.
func (s *ReconcileService) RestoreRejected(recordID, notes string) (model.Proposal, error) {
	p, err := s.pool.Restore(recordID)
	if err != nil {
		return p, err
	}
	entry := proposalEntry(ActionRestore, p)
	entry.Notes = notes
	s.audit(entry)
	return p, nil
}

// ApproveRejected restores and confirms a rejected record in one step.
func (s *ReconcileService) ApproveRejected(recordID, notes string) (model.ConfirmedMatch, error) {
	cm, err := s.pool.ApproveRejected(recordID)
	if err != nil {
		return cm, err
	}
	entry := confirmedEntry(ActionApproveAndRestore, cm)
	entry.Notes = notes
	s.audit(entry)
	return cm, nil
}

// RevertConfirmed unwinds a confirmation back into the unmatched pools.
func (s *ReconcileService) RevertConfirmed(matchID, notes string) (model.ConfirmedMatch, error) {
	result, err := s.Action(review.ActionRequest{Index: -1, MatchID: matchID, Decision: review.Revert, Notes: notes})
	if err != nil {
		return model.ConfirmedMatch{}, err
	}
	return *result.Reverted, nil
}

// RejectConfirmed moves a confirmation into the rejected store.
func (s *ReconcileService) RejectConfirmed(matchID, notes string) (model.RejectedRecord, error) {
	rec, err := s.pool.RejectConfirmed(matchID)
	if err != nil {
		return rec, err
	}
	entry := &storage.AuditEntry{
		Action:       ActionRejectConfirmed,
		MatchID:      matchID,
		LedgerID:     rec.Ledger.ID,
		BankID:       rec.Bank.ID,
		LedgerVendor: rec.Ledger.Vendor,
		BankVendor:   rec.Bank.Vendor,
		LedgerAmount: decimal.NewNullDecimal(rec.Ledger.Amount),
		BankAmount:   decimal.NewNullDecimal(rec.Bank.Amount),
		Confidence:   rec.Confidence,
		Explanation:  rec.Explanation,
		Notes:        notes,
	}
	s.audit(entry)
	return rec, nil
}

// ExcludeTransaction excludes one unmatched transaction from a list view.
func (s *ReconcileService) ExcludeTransaction(source model.Source, id, notes string) (model.Transaction, error) {
	if !source.Valid() {
		return model.Transaction{}, model.NewValidationError("source", "must be ledger or bank")
	}
	txn, err := s.pool.ExcludeTransaction(source, id)
	if err != nil {
		return txn, err
	}

	entry := &storage.AuditEntry{Action: ActionExcludeTransaction, Notes: notes}
	if source == model.SourceLedger {
		entry.LedgerID = txn.ID
		entry.LedgerVendor = txn.Vendor
		entry.LedgerAmount = decimal.NewNullDecimal(txn.Amount)
	} else {
		entry.BankID = txn.ID
		entry.BankVendor = txn.Vendor
		entry.BankAmount = decimal.NewNullDecimal(txn.Amount)
	}
	s.audit(entry)
	return txn, nil
}

// Snapshot returns every collection at once, for export.
func (s *ReconcileService) Snapshot() pool.Snapshot {
	snap := s.pool.Snapshot()
	snap.Stats = s.review.Stats()
	return snap
}

// AuditTrail returns the current session's decisions in order.
func (s *ReconcileService) AuditTrail() ([]storage.AuditEntry, error) {
	id := s.sessionID()
	if s.storage == nil || id == "" {
		return []storage.AuditEntry{}, nil
	}
	entries, err := s.storage.ListAudit(id)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []storage.AuditEntry{}
	}
	return entries, nil
}

// Shutdown cancels any active run.
func (s *ReconcileService) Shutdown() {
	p := s.orchestrator.Cancel()
	s.logger.Info("reconcile service stopped", "last_status", p.Status)
}

func (s *ReconcileService) configJSON() json.RawMessage {
	s.mu.RLock()
	cfg := s.runConfig
	s.mu.RUnlock()

	data, err := json.Marshal(cfg)
	if err != nil {
		return nil
	}
	return data
}

// audit appends entry for the current session. Failures are logged and do
// not undo the decision.
func (s *ReconcileService) audit(entry *storage.AuditEntry) {
	if s.storage == nil {
		return
	}
	entry.SessionID = s.sessionID()
	entry.MatchingConfig = s.configJSON()

	if err := s.storage.AppendAudit(entry); err != nil {
		s.logger.Warn("failed to record audit entry",
			"session_id", entry.SessionID,
			"action", entry.Action,
			"error", err,
		)
	}
}

func proposalEntry(action string, p model.Proposal) *storage.AuditEntry {
	index := p.Index
	entry := &storage.AuditEntry{
		Action:        action,
		ProposalIndex: &index,
		LedgerID:      p.Ledger.ID,
		LedgerVendor:  p.Ledger.Vendor,
		LedgerAmount:  decimal.NewNullDecimal(p.Ledger.Amount),
		Confidence:    p.Confidence,
		Explanation:   p.Explanation,
	}
	if p.Bank != nil {
		entry.MatchID = model.MatchID(p.Ledger.ID, p.Bank.ID)
		entry.BankID = p.Bank.ID
		entry.BankVendor = p.Bank.Vendor
		entry.BankAmount = decimal.NewNullDecimal(p.Bank.Amount)
	}
	return entry
}

func confirmedEntry(action string, cm model.ConfirmedMatch) *storage.AuditEntry {
	return &storage.AuditEntry{
		Action:       action,
		MatchID:      cm.ID,
		LedgerID:     cm.Ledger.ID,
		BankID:       cm.Bank.ID,
		LedgerVendor: cm.Ledger.Vendor,
		BankVendor:   cm.Bank.Vendor,
		LedgerAmount: decimal.NewNullDecimal(cm.Ledger.Amount),
		BankAmount:   decimal.NewNullDecimal(cm.Bank.Amount),
		Confidence:   cm.Confidence,
		Explanation:  cm.Explanation,
	}
}
