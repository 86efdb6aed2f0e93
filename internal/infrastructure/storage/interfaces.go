package storage

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, PostgreSQL, etc.)
// and makes testing with mocks straightforward.
type Repository interface {
	SessionRepository
	RunRepository
	AuditRepository
	Close() error
}

// SessionRepository handles reconciliation session records
type SessionRepository interface {
	// SaveSession inserts or replaces a session
	SaveSession(session *Session) error

	// GetSession retrieves a session by ID
	GetSession(id string) (*Session, error)

	// ListSessions returns the most recent sessions first
	ListSessions(limit int) ([]Session, error)
}

// RunRepository handles matching run history
type RunRepository interface {
	// StartRun records the start of a matching run
	StartRun(run *MatchRun) error

	// CompleteRun records how a matching run ended
	CompleteRun(runID string, result RunResult) error

	// GetRun retrieves a run by ID
	GetRun(runID string) (*MatchRun, error)

	// ListRuns returns recent runs for a session, newest first.
	// An empty session ID lists runs across all sessions.
	ListRuns(sessionID string, limit int) ([]MatchRun, error)
}

// AuditRepository handles the decision audit trail
type AuditRepository interface {
	// AppendAudit adds one decision to the trail and sets its ID
	AppendAudit(entry *AuditEntry) error

	// ListAudit returns a session's decisions in the order they were made
	ListAudit(sessionID string) ([]AuditEntry, error)
}
