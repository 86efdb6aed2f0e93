package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/eshaffer321/reconcile-backend/internal/adapters/export"
	"github.com/eshaffer321/reconcile-backend/internal/adapters/importer"
	"github.com/eshaffer321/reconcile-backend/internal/application/matching"
	"github.com/eshaffer321/reconcile-backend/internal/application/service"
	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
	"github.com/eshaffer321/reconcile-backend/internal/domain/review"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/config"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/logging"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/storage"
)

// RunHeadless imports both files, runs matching to completion, applies
// auto-approval and writes every export into opts.Out.
func RunHeadless(ctx context.Context, cfg *config.Config, opts RunOptions, w io.Writer) (*RunSummary, error) {
	band, autoApprove, err := AutoApproveBand(opts.AutoApprove)
	if err != nil {
		return nil, err
	}

	loggingCfg := cfg.Observability.Logging
	if opts.Verbose {
		loggingCfg.Level = "debug"
	}
	logger := logging.NewLoggerWithSystem(loggingCfg, "run")

	svcOpts, err := cfg.ServiceOptions()
	if err != nil {
		return nil, err
	}

	imp := importer.NewImporter(logging.NewLoggerWithSystem(loggingCfg, "import"))
	ledger, err := importFile(imp, opts.Ledger, opts.LedgerMapping, model.SourceLedger)
	if err != nil {
		return nil, err
	}
	bank, err := importFile(imp, opts.Bank, opts.BankMapping, model.SourceBank)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	svc := service.NewReconcileService(svcOpts, store, logging.NewLoggerWithSystem(loggingCfg, "matching"))
	defer svc.Shutdown()

	session, err := svc.SubmitTransactions(service.SubmitRequest{
		Ledger:       ledger.Transactions,
		Bank:         bank.Transactions,
		LedgerSource: filepath.Base(opts.Ledger),
		BankSource:   filepath.Base(opts.Bank),
		SkippedRows:  len(ledger.Skipped) + len(bank.Skipped),
	})
	if err != nil {
		return nil, err
	}

	progress, err := runToCompletion(ctx, svc, len(ledger.Transactions), opts.NoProgress, w)
	if err != nil {
		return nil, err
	}
	if progress.Status != matching.StatusCompleted {
		return nil, fmt.Errorf("matching %s: %s", progress.Status, progress.Error)
	}

	summary := &RunSummary{
		MatchesFound:  progress.MatchesFound,
		LedgerSkipped: len(ledger.Skipped),
		BankSkipped:   len(bank.Skipped),
	}
	if autoApprove {
		summary.AutoApproved, err = approveAtOrAbove(svc, band, logger)
		if err != nil {
			return nil, err
		}
	}

	snap := svc.Snapshot()
	summary.Stats = snap.Stats

	if opts.Out != "" {
		decisions, err := svc.AuditTrail()
		if err != nil {
			return nil, err
		}
		report := export.NewAuditReport(session.ID, snap.Stats, decisions, time.Now().UTC())
		summary.Files, err = export.WriteAll(opts.Out, snap, report)
		if err != nil {
			return nil, err
		}
	}

	logger.Info("run finished",
		"session_id", session.ID,
		"confirmed", summary.Stats.Confirmed,
		"pending", summary.Stats.Pending,
	)
	return summary, nil
}

func importFile(imp *importer.Importer, path, mappingPath string, source model.Source) (*importer.Result, error) {
	var mapping *importer.ColumnMapping
	if mappingPath != "" {
		m, err := importer.LoadMapping(mappingPath)
		if err != nil {
			return nil, err
		}
		mapping = &m
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s file: %w", source, err)
	}
	defer func() { _ = f.Close() }()

	return imp.ParseFile(filepath.Base(path), f, mapping, source)
}

// runToCompletion starts the job and blocks until it finishes, drawing a
// progress bar unless quiet.
func runToCompletion(ctx context.Context, svc *service.ReconcileService, total int, quiet bool, w io.Writer) (matching.Progress, error) {
	if !quiet {
		bar := progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("[cyan]Matching transactions...[reset]"),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
		)
		unsubscribe := svc.Subscribe(func(p matching.Progress) {
			_ = bar.Set(p.Processed)
		})
		defer unsubscribe()
	}

	if _, err := svc.StartMatching(nil); err != nil {
		return matching.Progress{}, err
	}

	if err := svc.Orchestrator().Wait(ctx); err != nil {
		svc.CancelMatching()
		return svc.Progress(), err
	}
	return svc.Progress(), nil
}

// approveAtOrAbove confirms every pending proposal whose band is at least
// band. Proposals that went stale along the way are left for review.
func approveAtOrAbove(svc *service.ReconcileService, band model.Band, logger *slog.Logger) (int, error) {
	approved := 0
	for _, p := range svc.Pending() {
		if p.Stale || !p.HasBank() || p.Band.Rank() < band.Rank() {
			continue
		}
		_, err := svc.Action(review.ActionRequest{
			Index:    p.Index,
			Decision: review.Approve,
			Notes:    fmt.Sprintf("auto-approved at %s band", band),
		})
		if errors.Is(err, model.ErrStaleProposal) {
			logger.Debug("skipping stale proposal", "index", p.Index, "error", err)
			continue
		}
		if err != nil {
			return approved, err
		}
		approved++
	}
	return approved, nil
}
