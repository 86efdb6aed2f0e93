package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps and slices, making tests fast and isolated.
type MockRepository struct {
	mu       sync.Mutex
	sessions map[string]*Session
	runs     map[string]*MatchRun
	runOrder []string
	audit    []AuditEntry
	nextID   int64

	// Hooks for test assertions
	SaveSessionCalled bool
	StartRunCalled    bool
	CompleteRunCalled bool
	LastRunResult     *RunResult
	AppendAuditCalled bool

	// Error injection for testing error paths
	SaveSessionErr error
	StartRunErr    error
	CompleteRunErr error
	AppendAuditErr error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		sessions: make(map[string]*Session),
		runs:     make(map[string]*MatchRun),
		nextID:   1,
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// SaveSession stores a copy of the session
func (m *MockRepository) SaveSession(session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveSessionCalled = true
	if m.SaveSessionErr != nil {
		return m.SaveSessionErr
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

// GetSession returns a stored session
func (m *MockRepository) GetSession(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, model.NewNotFoundError("session", id)
	}
	copied := *session
	return &copied, nil
}

// ListSessions returns sessions newest first
func (m *MockRepository) ListSessions(limit int) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, *s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// StartRun stores a copy of the run
func (m *MockRepository) StartRun(run *MatchRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StartRunCalled = true
	if m.StartRunErr != nil {
		return m.StartRunErr
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	copied := *run
	m.runs[run.ID] = &copied
	m.runOrder = append(m.runOrder, run.ID)
	return nil
}

// CompleteRun updates a stored run
func (m *MockRepository) CompleteRun(runID string, result RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CompleteRunCalled = true
	m.LastRunResult = &result
	if m.CompleteRunErr != nil {
		return m.CompleteRunErr
	}
	run, ok := m.runs[runID]
	if !ok {
		return model.NewNotFoundError("run", runID)
	}
	now := time.Now()
	run.Status = result.Status
	run.Total = result.Total
	run.Processed = result.Processed
	run.MatchesFound = result.MatchesFound
	run.Error = result.Error
	run.CompletedAt = &now
	return nil
}

// GetRun returns a stored run
func (m *MockRepository) GetRun(runID string) (*MatchRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return nil, model.NewNotFoundError("run", runID)
	}
	copied := *run
	return &copied, nil
}

// ListRuns returns runs newest first
func (m *MockRepository) ListRuns(sessionID string, limit int) ([]MatchRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var runs []MatchRun
	for i := len(m.runOrder) - 1; i >= 0; i-- {
		run := m.runs[m.runOrder[i]]
		if sessionID != "" && run.SessionID != sessionID {
			continue
		}
		runs = append(runs, *run)
		if limit > 0 && len(runs) == limit {
			break
		}
	}
	return runs, nil
}

// AppendAudit stores a copy of the entry
func (m *MockRepository) AppendAudit(entry *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendAuditCalled = true
	if m.AppendAuditErr != nil {
		return m.AppendAuditErr
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.ID = m.nextID
	m.nextID++
	m.audit = append(m.audit, *entry)
	return nil
}

// ListAudit returns a session's entries in insertion order
func (m *MockRepository) ListAudit(sessionID string) ([]AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []AuditEntry
	for _, e := range m.audit {
		if e.SessionID == sessionID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}
