package review

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/reconcile-backend/internal/domain/matcher"
	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
	"github.com/eshaffer321/reconcile-backend/internal/domain/pool"
)

func txn(source model.Source, id, vendor, amount string, d int) model.Transaction {
	return model.Transaction{
		ID:        id,
		Date:      time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC),
		Vendor:    vendor,
		Amount:    decimal.RequireFromString(amount),
		Direction: model.MoneyOut,
		Source:    source,
	}
}

// setupReview builds three proposals: 0 (L1/B1), 1 (L2/B1) and 2 (L3/B3).
func setupReview(t *testing.T) (*Controller, *pool.Manager) {
	t.Helper()

	p := pool.NewManager()
	require.NoError(t, p.Load(
		[]model.Transaction{
			txn(model.SourceLedger, "L1", "Staples", "150.00", 5),
			txn(model.SourceLedger, "L2", "Staples", "150.00", 5),
			txn(model.SourceLedger, "L3", "Shell", "40.00", 12),
		},
		[]model.Transaction{
			txn(model.SourceBank, "B1", "Staples", "150.00", 5),
			txn(model.SourceBank, "B3", "Shell", "40.00", 12),
		},
	))

	gen, err := matcher.NewMatcher(matcher.DefaultConfig())
	require.NoError(t, err)
	for _, id := range []string{"L1", "L2", "L3"} {
		_, ok, err := p.Propose(id, "run-1", false, gen)
		require.NoError(t, err)
		require.True(t, ok)
	}
	return NewController(p), p
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		input string
		want  Decision
	}{
		{"approve", Approve},
		{"match", Approve},
		{" Reject ", Reject},
		{"exclude_ledger", ExcludeLedger},
		{"exclude_bank", ExcludeBank},
		{"exclude_both", ExcludeBoth},
		{"skip", Skip},
		{"revert", Revert},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDecision(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseDecision("maybe")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestActionRequest_DecodesDecisionName(t *testing.T) {
	var req ActionRequest
	err := json.Unmarshal([]byte(`{"index":2,"decision":"exclude_both","notes":"dup"}`), &req)

	require.NoError(t, err)
	assert.Equal(t, ExcludeBoth, req.Decision)
	assert.Equal(t, 2, req.Index)

	err = json.Unmarshal([]byte(`{"index":2,"decision":"later"}`), &req)
	assert.Error(t, err)
}

func TestController_NextSkipsStaleAndWraps(t *testing.T) {
	// Arrange
	c, _ := setupReview(t)

	// Act + Assert
	first, ok := c.Next()
	require.True(t, ok)
	assert.Equal(t, 0, first.Index)

	_, err := c.Action(ActionRequest{Index: 1, Decision: Approve})
	require.NoError(t, err)

	next, ok := c.Next()
	require.True(t, ok)
	assert.Equal(t, 2, next.Index)

	_, err = c.Action(ActionRequest{Index: 2, Decision: Skip})
	require.NoError(t, err)

	// Proposal 0 lost B1 to proposal 1, so the wrap lands on the skipped one.
	again, ok := c.Next()
	require.True(t, ok)
	assert.Equal(t, 2, again.Index)
}

func TestController_NextDone(t *testing.T) {
	c, _ := setupReview(t)

	_, err := c.Action(ActionRequest{Index: 0, Decision: Approve})
	require.NoError(t, err)
	_, err = c.Action(ActionRequest{Index: 2, Decision: Reject})
	require.NoError(t, err)

	_, ok := c.Next()
	assert.False(t, ok)
}

func TestController_SkipIsIdempotent(t *testing.T) {
	// Arrange
	c, p := setupReview(t)
	before := p.Snapshot()

	// Act
	for i := 0; i < 3; i++ {
		res, err := c.Action(ActionRequest{Index: 1, Decision: Skip})
		require.NoError(t, err)
		require.NotNil(t, res.Proposal)
	}

	// Assert
	assert.Equal(t, before, p.Snapshot())
	assert.Equal(t, 2, c.Cursor())
	assert.Equal(t, 1, c.Stats().Skipped)

	_, err := c.Action(ActionRequest{Index: 42, Decision: Skip})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestController_Seek(t *testing.T) {
	c, _ := setupReview(t)

	got, err := c.Seek(2)
	require.NoError(t, err)
	assert.Equal(t, "L3", got.Ledger.ID)
	assert.Equal(t, 2, c.Cursor())

	_, err = c.Action(ActionRequest{Index: 0, Decision: Approve})
	require.NoError(t, err)

	_, err = c.Seek(1)
	assert.ErrorIs(t, err, model.ErrConflict)
	sides, _ := model.SidesOf(err)
	assert.Equal(t, model.BankSide, sides)

	_, err = c.Seek(7)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestController_ExcludeAndReject(t *testing.T) {
	c, p := setupReview(t)

	res, err := c.Action(ActionRequest{Index: 2, Decision: ExcludeBoth})
	require.NoError(t, err)
	assert.Len(t, res.Excluded, 2)

	res, err = c.Action(ActionRequest{Index: 0, Decision: Reject})
	require.NoError(t, err)
	require.NotNil(t, res.Rejected)
	assert.Equal(t, "B1", res.Rejected.Bank.ID)

	s := p.Stats()
	assert.Equal(t, 2, s.Excluded)
	assert.Equal(t, 1, s.Rejected)
	assert.Equal(t, 1, s.Pending)
}

func TestController_Revert(t *testing.T) {
	c, p := setupReview(t)
	res, err := c.Action(ActionRequest{Index: 0, Decision: Approve})
	require.NoError(t, err)

	_, err = c.Action(ActionRequest{Decision: Revert})
	assert.ErrorIs(t, err, model.ErrValidation)

	res, err = c.Action(ActionRequest{Decision: Revert, MatchID: res.Confirmed.ID})
	require.NoError(t, err)
	require.NotNil(t, res.Reverted)
	assert.Empty(t, p.Confirmed())
	assert.Len(t, p.UnmatchedBank(), 2)
}

func TestController_DecisionClearsSkip(t *testing.T) {
	c, _ := setupReview(t)
	_, err := c.Action(ActionRequest{Index: 2, Decision: Skip})
	require.NoError(t, err)

	_, err = c.Action(ActionRequest{Index: 2, Decision: Approve})
	require.NoError(t, err)

	assert.Equal(t, 0, c.Stats().Skipped)
}
