// Package matching runs the candidate generator across the unmatched ledger
// as a pausable, cancellable background job.
package matching

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/reconcile-backend/internal/domain/matcher"
	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
	"github.com/eshaffer321/reconcile-backend/internal/domain/pool"
)

// Status represents the current state of a matching run.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status ends a run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Progress is a point-in-time view of the current run.
type Progress struct {
	RunID        string           `json:"run_id,omitempty"`
	Status       Status           `json:"status"`
	Processed    int              `json:"processed"`
	Total        int              `json:"total"`
	MatchesFound int              `json:"matches_found"`
	InProgress   bool             `json:"in_progress"`
	Paused       bool             `json:"paused"`
	Error        string           `json:"error,omitempty"`
	Recent       []model.Proposal `json:"recent"`
	Config       *matcher.Config  `json:"config,omitempty"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	LastUpdate   time.Time        `json:"last_update"`
}

// GeneratorFactory builds the proposal generator for a run configuration.
type GeneratorFactory func(cfg matcher.Config) (pool.Generator, error)

// NewMatcherGenerator is the default factory.
func NewMatcherGenerator(cfg matcher.Config) (pool.Generator, error) {
	m, err := matcher.NewMatcher(cfg)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Options configures an Orchestrator.
type Options struct {
	// ReserveProposed keeps a run from proposing a bank transaction that an
	// open proposal already names.
	ReserveProposed bool
	RecentSize      int
	NewGenerator    GeneratorFactory

	// OnStart is called from Start before the run goroutine launches.
	OnStart func(Progress)
	// OnProgress is called after every processed ledger transaction, from
	// the run goroutine and without any lock held.
	OnProgress func(Progress)
	// OnFinish is called once when a run completes, fails or is cancelled.
	OnFinish func(Progress)
}

// DefaultOptions returns options with reservation on and the default
// generator.
func DefaultOptions() Options {
	return Options{
		ReserveProposed: true,
		RecentSize:      DefaultRecentSize,
		NewGenerator:    NewMatcherGenerator,
	}
}

type run struct {
	id       string
	cancel   context.CancelFunc
	done     chan struct{}
	paused   bool
	resume   chan struct{}
	finished bool
}

// Orchestrator drives one matching run at a time against a pool.
type Orchestrator struct {
	pool   *pool.Manager
	opts   Options
	logger *slog.Logger

	// startMu serializes Start so a rerun fully replaces the previous run.
	startMu sync.Mutex

	mu       sync.Mutex
	current  *run
	progress Progress
	recent   *ring
}

// NewOrchestrator creates an idle orchestrator.
func NewOrchestrator(p *pool.Manager, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.NewGenerator == nil {
		opts.NewGenerator = NewMatcherGenerator
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		pool:     p,
		opts:     opts,
		logger:   logger,
		progress: Progress{Status: StatusIdle, Recent: []model.Proposal{}},
		recent:   newRing(opts.RecentSize),
	}
}

// Start launches a run over the currently unmatched ledger. An active run is
// cancelled first, and all undecided proposals are discarded so the new run
// recomputes them against the live pools. Confirmed, rejected and excluded
// state is untouched. An invalid configuration leaves everything as it was.
func (o *Orchestrator) Start(cfg matcher.Config) (Progress, error) {
	gen, err := o.opts.NewGenerator(cfg)
	if err != nil {
		return o.Progress(), err
	}

	o.startMu.Lock()
	defer o.startMu.Unlock()

	if prev := o.active(); prev != nil {
		o.logger.Info("restarting matching run", "previous_run_id", prev.id)
		prev.cancel()
		<-prev.done
	}

	discarded := o.pool.DiscardPending()
	ids := o.pool.UnmatchedLedgerIDs()

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	now := time.Now()
	cfgCopy := cfg
	o.mu.Lock()
	o.current = r
	o.recent.reset()
	o.progress = Progress{
		RunID:      r.id,
		Status:     StatusRunning,
		Total:      len(ids),
		InProgress: true,
		Recent:     []model.Proposal{},
		Config:     &cfgCopy,
		StartedAt:  &now,
		LastUpdate: now,
	}
	snapshot := o.snapshotLocked()
	o.mu.Unlock()

	o.logger.Info("matching run started",
		"run_id", r.id,
		"total", len(ids),
		"discarded_pending", discarded,
	)

	if o.opts.OnStart != nil {
		o.opts.OnStart(snapshot)
	}
	go o.loop(ctx, r, ids, gen)
	return snapshot, nil
}

// Pause asks the run to stop at the next iteration boundary. Pausing an
// already paused run, or when nothing is running, changes nothing.
func (o *Orchestrator) Pause() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()

	r := o.current
	if r == nil || r.finished || r.paused {
		return o.snapshotLocked()
	}
	r.paused = true
	r.resume = make(chan struct{})
	o.progress.Status = StatusPaused
	o.progress.Paused = true
	o.progress.LastUpdate = time.Now()
	o.logger.Info("matching run paused", "run_id", r.id, "processed", o.progress.Processed)
	return o.snapshotLocked()
}

// Resume continues a paused run with the next unprocessed transaction.
// Resuming a run that is not paused changes nothing.
func (o *Orchestrator) Resume() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()

	r := o.current
	if r == nil || r.finished || !r.paused {
		return o.snapshotLocked()
	}
	r.paused = false
	close(r.resume)
	o.progress.Status = StatusRunning
	o.progress.Paused = false
	o.progress.LastUpdate = time.Now()
	o.logger.Info("matching run resumed", "run_id", r.id, "processed", o.progress.Processed)
	return o.snapshotLocked()
}

// Cancel stops the active run and waits for it to exit. Proposals already
// yielded stay pending.
func (o *Orchestrator) Cancel() Progress {
	if r := o.active(); r != nil {
		r.cancel()
		<-r.done
	}
	return o.Progress()
}

// Progress returns a snapshot of the current run.
func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Done returns a channel closed when the current run exits. It is already
// closed when no run is active.
func (o *Orchestrator) Done() <-chan struct{} {
	if r := o.active(); r != nil {
		return r.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Wait blocks until the current run exits or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	select {
	case <-o.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) active() *run {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil || o.current.finished {
		return nil
	}
	return o.current
}

func (o *Orchestrator) snapshotLocked() Progress {
	p := o.progress
	p.Recent = o.recent.list()
	return p
}

func (o *Orchestrator) loop(ctx context.Context, r *run, ids []string, gen pool.Generator) {
	defer close(r.done)
	defer func() {
		if rec := recover(); rec != nil {
			o.finish(r, StatusFailed, fmt.Errorf("matching run panicked: %v", rec))
		}
	}()

	for _, id := range ids {
		if err := o.waitIfPaused(ctx, r); err != nil {
			o.finish(r, StatusCancelled, nil)
			return
		}

		p, ok, err := o.pool.Propose(id, r.id, o.opts.ReserveProposed, gen)
		if err != nil {
			o.finish(r, StatusFailed, fmt.Errorf("ledger %s: %w", id, err))
			return
		}
		o.step(r, p, ok)
	}

	o.finish(r, StatusCompleted, nil)
}

// waitIfPaused parks the run while it is paused. It returns ctx's error if
// the run is cancelled before or during the wait.
func (o *Orchestrator) waitIfPaused(ctx context.Context, r *run) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		o.mu.Lock()
		if !r.paused {
			o.mu.Unlock()
			return nil
		}
		resume := r.resume
		o.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resume:
		}
	}
}

func (o *Orchestrator) step(r *run, p model.Proposal, proposed bool) {
	o.mu.Lock()
	o.progress.Processed++
	if proposed {
		if p.HasBank() {
			o.progress.MatchesFound++
		}
		o.recent.push(p)
	}
	o.progress.LastUpdate = time.Now()
	snapshot := o.snapshotLocked()
	o.mu.Unlock()

	o.logger.Debug("ledger transaction processed",
		"run_id", r.id,
		"processed", snapshot.Processed,
		"total", snapshot.Total,
		"proposed", proposed,
		"bank_id", p.BankID(),
	)

	if o.opts.OnProgress != nil {
		o.opts.OnProgress(snapshot)
	}
}

func (o *Orchestrator) finish(r *run, status Status, err error) {
	now := time.Now()

	o.mu.Lock()
	r.finished = true
	r.paused = false
	o.progress.Status = status
	o.progress.InProgress = false
	o.progress.Paused = false
	o.progress.CompletedAt = &now
	o.progress.LastUpdate = now
	if err != nil {
		o.progress.Error = err.Error()
	}
	snapshot := o.snapshotLocked()
	o.mu.Unlock()

	if err != nil {
		o.logger.Error("matching run failed", "run_id", r.id, "processed", snapshot.Processed, "error", err)
	} else {
		o.logger.Info("matching run finished",
			"run_id", r.id,
			"status", status,
			"processed", snapshot.Processed,
			"total", snapshot.Total,
			"matches_found", snapshot.MatchesFound,
		)
	}

	if o.opts.OnFinish != nil {
		o.opts.OnFinish(snapshot)
	}
}
