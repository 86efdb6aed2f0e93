package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/eshaffer321/reconcile-backend/internal/domain/pool"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/storage"
)

const auditNote = "All IDs (ledger_id, bank_id) in this export are internal identifiers generated during import. " +
	"They do not correspond to IDs from the original source files."

// Summary is the count block of the audit report.
type Summary struct {
	TotalLedgerTransactions int `json:"total_ledger_transactions"`
	TotalBankTransactions   int `json:"total_bank_transactions"`
	ConfirmedMatches        int `json:"confirmed_matches"`
	RejectedMatches         int `json:"rejected_matches"`
	ExcludedTransactions    int `json:"excluded_transactions"`
	SkippedMatches          int `json:"skipped_matches"`
	UnmatchedLedger         int `json:"unmatched_ledger"`
	UnmatchedBank           int `json:"unmatched_bank"`
}

// AuditReport is the audit_trail.json document.
type AuditReport struct {
	ExportTimestamp time.Time            `json:"export_timestamp"`
	Note            string               `json:"note"`
	SessionID       string               `json:"session_id,omitempty"`
	Summary         Summary              `json:"summary"`
	Decisions       []storage.AuditEntry `json:"decisions"`
}

// NewAuditReport builds a report from the stats view and the trail.
func NewAuditReport(sessionID string, stats pool.Stats, decisions []storage.AuditEntry, now time.Time) AuditReport {
	if decisions == nil {
		decisions = []storage.AuditEntry{}
	}
	return AuditReport{
		ExportTimestamp: now,
		Note:            auditNote,
		SessionID:       sessionID,
		Summary: Summary{
			TotalLedgerTransactions: stats.TotalLedger,
			TotalBankTransactions:   stats.TotalBank,
			ConfirmedMatches:        stats.Confirmed,
			RejectedMatches:         stats.Rejected,
			ExcludedTransactions:    stats.Excluded,
			SkippedMatches:          stats.Skipped,
			UnmatchedLedger:         stats.UnmatchedLedger,
			UnmatchedBank:           stats.UnmatchedBank,
		},
		Decisions: decisions,
	}
}

// WriteAudit writes the report as indented JSON.
func WriteAudit(w io.Writer, report AuditReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// WriteAll writes every export file into dir and returns their paths.
func WriteAll(dir string, snap pool.Snapshot, report AuditReport) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{FileConfirmed, func(w io.Writer) error { return WriteConfirmed(w, snap.Confirmed) }},
		{FileUnmatchedLedger, func(w io.Writer) error { return WriteTransactions(w, snap.UnmatchedLedger) }},
		{FileUnmatchedBank, func(w io.Writer) error { return WriteTransactions(w, snap.UnmatchedBank) }},
		{FileRejected, func(w io.Writer) error { return WriteRejected(w, snap.Rejected) }},
		{FileExcluded, func(w io.Writer) error { return WriteExcluded(w, snap.ExcludedLedger, snap.ExcludedBank) }},
		{FileAudit, func(w io.Writer) error { return WriteAudit(w, report) }},
	}

	paths := make([]string, 0, len(writers))
	for _, wr := range writers {
		path := filepath.Join(dir, wr.name)
		if err := writeFile(path, wr.write); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %q: %w", path, err)
	}
	return f.Close()
}
