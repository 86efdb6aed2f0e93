package matching

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/reconcile-backend/internal/domain/matcher"
	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
	"github.com/eshaffer321/reconcile-backend/internal/domain/pool"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ledgerTxns(n int) []model.Transaction {
	out := make([]model.Transaction, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, model.Transaction{
			ID:        fmt.Sprintf("L%03d", i),
			Date:      time.Date(2024, 1, 1+i%28, 0, 0, 0, 0, time.UTC),
			Vendor:    fmt.Sprintf("Vendor %d", i),
			Amount:    decimal.NewFromInt(int64(10 + i)),
			Direction: model.MoneyOut,
			Source:    model.SourceLedger,
		})
	}
	return out
}

func bankFor(ledger []model.Transaction) []model.Transaction {
	out := make([]model.Transaction, 0, len(ledger))
	for _, l := range ledger {
		b := l
		b.ID = "B" + l.ID[1:]
		b.Source = model.SourceBank
		out = append(out, b)
	}
	return out
}

func loadedPool(t *testing.T, ledger, bank []model.Transaction) *pool.Manager {
	t.Helper()
	p := pool.NewManager()
	require.NoError(t, p.Load(ledger, bank))
	return p
}

// MockGenerator is a testify mock for pool.Generator
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ledger model.Transaction, bank []model.Transaction) (model.Proposal, error) {
	args := m.Called(ledger, bank)
	return args.Get(0).(model.Proposal), args.Error(1)
}

// slowGenerator delays every call so tests can act while a run is active.
type slowGenerator struct {
	delay time.Duration
}

func (g slowGenerator) Generate(ledger model.Transaction, _ []model.Transaction) (model.Proposal, error) {
	time.Sleep(g.delay)
	return model.Proposal{Ledger: ledger, Band: model.BandLow}, nil
}

type panicGenerator struct{}

func (panicGenerator) Generate(model.Transaction, []model.Transaction) (model.Proposal, error) {
	panic("scorer exploded")
}

func factoryFor(gen pool.Generator) GeneratorFactory {
	return func(matcher.Config) (pool.Generator, error) { return gen, nil }
}

func waitFinished(t *testing.T, o *Orchestrator) Progress {
	t.Helper()
	select {
	case <-o.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
	return o.Progress()
}

func TestOrchestrator_CompletesRun(t *testing.T) {
	// Arrange
	ledger := ledgerTxns(20)
	p := loadedPool(t, ledger, bankFor(ledger[:15]))
	var finished []Progress
	opts := DefaultOptions()
	opts.OnFinish = func(pr Progress) { finished = append(finished, pr) }
	o := NewOrchestrator(p, opts, quietLogger())

	// Act
	started, err := o.Start(matcher.DefaultConfig())
	require.NoError(t, err)
	progress := waitFinished(t, o)

	// Assert
	assert.Equal(t, StatusRunning, started.Status)
	assert.Equal(t, 20, started.Total)
	assert.Equal(t, StatusCompleted, progress.Status)
	assert.Equal(t, 20, progress.Processed)
	assert.Equal(t, 15, progress.MatchesFound)
	assert.False(t, progress.InProgress)
	assert.Len(t, progress.Recent, DefaultRecentSize)
	assert.Equal(t, "L020", progress.Recent[DefaultRecentSize-1].Ledger.ID)
	assert.Len(t, p.Pending(), 20)
	require.Len(t, finished, 1)
	assert.Equal(t, progress.RunID, finished[0].RunID)
}

func TestOrchestrator_ScenarioD_PauseAndResume(t *testing.T) {
	// Arrange
	ledger := ledgerTxns(100)
	p := loadedPool(t, ledger, nil)

	var mu sync.Mutex
	var counts []int
	var o *Orchestrator
	opts := DefaultOptions()
	opts.OnProgress = func(pr Progress) {
		mu.Lock()
		counts = append(counts, pr.Processed)
		mu.Unlock()
		if pr.Processed == 40 {
			o.Pause()
		}
	}
	o = NewOrchestrator(p, opts, quietLogger())

	// Act
	_, err := o.Start(matcher.DefaultConfig())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return o.Progress().Status == StatusPaused
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	frozen := o.Progress()
	frozenPending := len(p.Pending())

	resumed := o.Resume()
	final := waitFinished(t, o)

	// Assert
	assert.Equal(t, 40, frozen.Processed)
	assert.True(t, frozen.Paused)
	assert.Equal(t, 40, frozenPending)
	assert.Equal(t, StatusRunning, resumed.Status)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 100, final.Processed)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, counts, 100)
	for i, c := range counts {
		assert.Equal(t, i+1, c)
	}
}

func TestOrchestrator_PauseResumeIdempotent(t *testing.T) {
	ledger := ledgerTxns(50)
	p := loadedPool(t, ledger, nil)
	o := NewOrchestrator(p, Options{NewGenerator: factoryFor(slowGenerator{delay: 2 * time.Millisecond})}, quietLogger())

	t.Run("resume while idle", func(t *testing.T) {
		assert.Equal(t, StatusIdle, o.Resume().Status)
		assert.Equal(t, StatusIdle, o.Pause().Status)
	})

	_, err := o.Start(matcher.DefaultConfig())
	require.NoError(t, err)

	t.Run("resume while running", func(t *testing.T) {
		got := o.Resume()
		assert.Equal(t, StatusRunning, got.Status)
		assert.False(t, got.Paused)
	})

	t.Run("pause twice", func(t *testing.T) {
		first := o.Pause()
		time.Sleep(20 * time.Millisecond)
		settled := o.Progress()
		second := o.Pause()

		assert.Equal(t, StatusPaused, first.Status)
		assert.Equal(t, StatusPaused, second.Status)
		assert.Equal(t, settled.Processed, second.Processed)
	})

	o.Resume()
	final := waitFinished(t, o)
	assert.Equal(t, 50, final.Processed)
}

func TestOrchestrator_GeneratorFailure(t *testing.T) {
	// Arrange
	ledger := ledgerTxns(5)
	p := loadedPool(t, ledger, nil)
	gen := &MockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).Return(model.Proposal{Ledger: ledger[0]}, nil).Once()
	gen.On("Generate", mock.Anything, mock.Anything).Return(model.Proposal{Ledger: ledger[1]}, nil).Once()
	gen.On("Generate", mock.Anything, mock.Anything).Return(model.Proposal{}, errors.New("boom")).Once()
	o := NewOrchestrator(p, Options{NewGenerator: factoryFor(gen)}, quietLogger())

	// Act
	_, err := o.Start(matcher.DefaultConfig())
	require.NoError(t, err)
	final := waitFinished(t, o)

	// Assert
	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, 2, final.Processed)
	assert.Contains(t, final.Error, "boom")
	assert.Contains(t, final.Error, "L003")
	assert.Len(t, p.Pending(), 2, "proposals yielded before the failure stay pending")
	gen.AssertNumberOfCalls(t, "Generate", 3)
}

func TestOrchestrator_PanicIsRecorded(t *testing.T) {
	p := loadedPool(t, ledgerTxns(3), nil)
	o := NewOrchestrator(p, Options{NewGenerator: factoryFor(panicGenerator{})}, quietLogger())

	_, err := o.Start(matcher.DefaultConfig())
	require.NoError(t, err)
	final := waitFinished(t, o)

	assert.Equal(t, StatusFailed, final.Status)
	assert.Contains(t, final.Error, "scorer exploded")

	// The pool is still usable after the panic.
	assert.Len(t, p.UnmatchedLedgerIDs(), 3)
}

func TestOrchestrator_InvalidConfig(t *testing.T) {
	p := loadedPool(t, ledgerTxns(3), nil)
	o := NewOrchestrator(p, DefaultOptions(), quietLogger())
	cfg := matcher.DefaultConfig()
	cfg.DateWindowDays = -1

	got, err := o.Start(cfg)

	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, StatusIdle, got.Status)
}

func TestOrchestrator_Cancel(t *testing.T) {
	p := loadedPool(t, ledgerTxns(200), nil)
	o := NewOrchestrator(p, Options{NewGenerator: factoryFor(slowGenerator{delay: 2 * time.Millisecond})}, quietLogger())

	_, err := o.Start(matcher.DefaultConfig())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return o.Progress().Processed >= 5 }, 2*time.Second, time.Millisecond)

	final := o.Cancel()

	assert.Equal(t, StatusCancelled, final.Status)
	assert.Less(t, final.Processed, 200)
	assert.Len(t, p.Pending(), final.Processed)
}

func TestOrchestrator_CancelWhilePaused(t *testing.T) {
	p := loadedPool(t, ledgerTxns(200), nil)
	o := NewOrchestrator(p, Options{NewGenerator: factoryFor(slowGenerator{delay: time.Millisecond})}, quietLogger())

	_, err := o.Start(matcher.DefaultConfig())
	require.NoError(t, err)
	o.Pause()

	final := o.Cancel()

	assert.Equal(t, StatusCancelled, final.Status)
}

func TestOrchestrator_RerunRecomputesAgainstLivePool(t *testing.T) {
	// Arrange
	ledger := ledgerTxns(10)
	p := loadedPool(t, ledger, bankFor(ledger))
	o := NewOrchestrator(p, DefaultOptions(), quietLogger())

	_, err := o.Start(matcher.DefaultConfig())
	require.NoError(t, err)
	waitFinished(t, o)

	pending := p.Pending()
	require.Len(t, pending, 10)
	_, err = p.Confirm(pending[0].Index)
	require.NoError(t, err)
	_, err = p.Exclude(pending[1].Index, model.BothSides)
	require.NoError(t, err)

	// Act
	second, err := o.Start(matcher.DefaultConfig())
	require.NoError(t, err)
	final := waitFinished(t, o)

	// Assert
	assert.NotEqual(t, pending[0].RunID, second.RunID)
	assert.Equal(t, 8, second.Total)
	assert.Equal(t, 8, final.Processed)
	after := p.Pending()
	require.Len(t, after, 8)
	for _, pr := range after {
		assert.Equal(t, second.RunID, pr.RunID)
		assert.Greater(t, pr.Index, pending[len(pending)-1].Index)
		assert.NotEqual(t, "L001", pr.Ledger.ID)
		assert.NotEqual(t, "L002", pr.Ledger.ID)
	}
	assert.Len(t, p.Confirmed(), 1)
}

func TestOrchestrator_StartWhileRunningRestarts(t *testing.T) {
	p := loadedPool(t, ledgerTxns(100), nil)
	o := NewOrchestrator(p, Options{NewGenerator: factoryFor(slowGenerator{delay: time.Millisecond})}, quietLogger())

	first, err := o.Start(matcher.DefaultConfig())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return o.Progress().Processed >= 3 }, 2*time.Second, time.Millisecond)

	second, err := o.Start(matcher.DefaultConfig())
	require.NoError(t, err)
	final := waitFinished(t, o)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, 100, second.Total)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 100, final.Processed)
	for _, pr := range p.Pending() {
		assert.Equal(t, second.RunID, pr.RunID)
	}
}

func TestRing(t *testing.T) {
	r := newRing(3)
	for i := 0; i < 5; i++ {
		r.push(model.Proposal{Index: i})
	}

	got := r.list()

	require.Len(t, got, 3)
	assert.Equal(t, []int{2, 3, 4}, []int{got[0].Index, got[1].Index, got[2].Index})
}
