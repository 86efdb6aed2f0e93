package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// defaultListLimit caps list queries when the caller passes 0
const defaultListLimit = 50

// Storage provides SQLite database access for sessions, runs and the audit
// trail. It implements the Repository interface.
type Storage struct {
	db *sql.DB
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	// Foreign keys and the busy timeout are per-connection settings.
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Storage{db: db}

	// Run all pending migrations
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_foreign_keys=on&_busy_timeout=5000"
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveSession inserts or replaces a session
func (s *Storage) SaveSession(session *Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	query := `
	INSERT OR REPLACE INTO sessions
	(id, ledger_source, bank_source, ledger_count, bank_count, skipped_rows, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		session.ID,
		session.LedgerSource,
		session.BankSource,
		session.LedgerCount,
		session.BankCount,
		session.SkippedRows,
		session.CreatedAt.UTC(),
	)
	return err
}

// GetSession retrieves a session by ID
func (s *Storage) GetSession(id string) (*Session, error) {
	query := `
	SELECT id, ledger_source, bank_source, ledger_count, bank_count, skipped_rows, created_at
	FROM sessions WHERE id = ?
	`

	session := &Session{}
	err := s.db.QueryRow(query, id).Scan(
		&session.ID,
		&session.LedgerSource,
		&session.BankSource,
		&session.LedgerCount,
		&session.BankCount,
		&session.SkippedRows,
		&session.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError("session", id)
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ListSessions returns the most recent sessions first
func (s *Storage) ListSessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
	SELECT id, ledger_source, bank_source, ledger_count, bank_count, skipped_rows, created_at
	FROM sessions
	ORDER BY created_at DESC, rowid DESC
	LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sessions []Session
	for rows.Next() {
		var session Session
		if err := rows.Scan(
			&session.ID,
			&session.LedgerSource,
			&session.BankSource,
			&session.LedgerCount,
			&session.BankCount,
			&session.SkippedRows,
			&session.CreatedAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// StartRun records the start of a matching run
func (s *Storage) StartRun(run *MatchRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}

	query := `
	INSERT INTO match_runs (id, session_id, status, total, config_json, started_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		run.ID,
		run.SessionID,
		run.Status,
		run.Total,
		string(run.Config),
		run.StartedAt.UTC(),
	)
	return err
}

// CompleteRun records how a matching run ended
func (s *Storage) CompleteRun(runID string, result RunResult) error {
	query := `
	UPDATE match_runs
	SET completed_at = ?,
	    status = ?,
	    total = ?,
	    processed = ?,
	    matches_found = ?,
	    error = ?
	WHERE id = ?
	`

	res, err := s.db.Exec(query,
		time.Now().UTC(),
		result.Status,
		result.Total,
		result.Processed,
		result.MatchesFound,
		result.Error,
		runID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.NewNotFoundError("run", runID)
	}
	return nil
}

const runColumns = `id, session_id, status, total, processed, matches_found, error, config_json, started_at, completed_at`

// GetRun retrieves a run by ID
func (s *Storage) GetRun(runID string) (*MatchRun, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM match_runs WHERE id = ?`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError("run", runID)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns recent runs, newest first
func (s *Storage) ListRuns(sessionID string, limit int) ([]MatchRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT ` + runColumns + ` FROM match_runs`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []MatchRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*MatchRun, error) {
	run := &MatchRun{}
	var configJSON string
	var completedAt sql.NullTime

	err := row.Scan(
		&run.ID,
		&run.SessionID,
		&run.Status,
		&run.Total,
		&run.Processed,
		&run.MatchesFound,
		&run.Error,
		&configJSON,
		&run.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if configJSON != "" {
		run.Config = []byte(configJSON)
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return run, nil
}

// AppendAudit adds one decision to the trail
func (s *Storage) AppendAudit(entry *AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	var proposalIndex sql.NullInt64
	if entry.ProposalIndex != nil {
		proposalIndex = sql.NullInt64{Int64: int64(*entry.ProposalIndex), Valid: true}
	}

	query := `
	INSERT INTO audit_entries
	(session_id, timestamp, action, proposal_index, match_id, ledger_id, bank_id,
	 ledger_vendor, bank_vendor, ledger_amount, bank_amount, confidence,
	 explanation, notes, matching_config)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		entry.SessionID,
		entry.Timestamp.UTC(),
		entry.Action,
		proposalIndex,
		entry.MatchID,
		entry.LedgerID,
		entry.BankID,
		entry.LedgerVendor,
		entry.BankVendor,
		entry.LedgerAmount,
		entry.BankAmount,
		entry.Confidence,
		entry.Explanation,
		entry.Notes,
		string(entry.MatchingConfig),
	)
	if err != nil {
		return err
	}

	entry.ID, err = result.LastInsertId()
	return err
}

// ListAudit returns a session's decisions in the order they were made
func (s *Storage) ListAudit(sessionID string) ([]AuditEntry, error) {
	query := `
	SELECT id, session_id, timestamp, action, proposal_index, match_id, ledger_id, bank_id,
	       ledger_vendor, bank_vendor, ledger_amount, bank_amount, confidence,
	       explanation, notes, matching_config
	FROM audit_entries
	WHERE session_id = ?
	ORDER BY id ASC
	`

	rows, err := s.db.Query(query, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		var proposalIndex sql.NullInt64
		var matchingConfig string

		if err := rows.Scan(
			&entry.ID,
			&entry.SessionID,
			&entry.Timestamp,
			&entry.Action,
			&proposalIndex,
			&entry.MatchID,
			&entry.LedgerID,
			&entry.BankID,
			&entry.LedgerVendor,
			&entry.BankVendor,
			&entry.LedgerAmount,
			&entry.BankAmount,
			&entry.Confidence,
			&entry.Explanation,
			&entry.Notes,
			&matchingConfig,
		); err != nil {
			return nil, err
		}

		if proposalIndex.Valid {
			idx := int(proposalIndex.Int64)
			entry.ProposalIndex = &idx
		}
		if matchingConfig != "" {
			entry.MatchingConfig = []byte(matchingConfig)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
