package matcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// Helper to create test transaction
func makeTransaction(source model.Source, id, vendor, amount string, date time.Time) model.Transaction {
	return model.Transaction{
		ID:        id,
		Date:      date,
		Vendor:    vendor,
		Amount:    decimal.RequireFromString(amount),
		Direction: model.MoneyOut,
		Source:    source,
	}
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func newMatcher(t *testing.T, cfg Config) *Matcher {
	t.Helper()
	m, err := NewMatcher(cfg)
	require.NoError(t, err)
	return m
}

func TestMatcher_ScenarioA_HighConfidence(t *testing.T) {
	// Arrange
	m := newMatcher(t, DefaultConfig())
	ledger := makeTransaction(model.SourceLedger, "L1", "Staples Inc", "150.00", day(5))
	bank := []model.Transaction{
		makeTransaction(model.SourceBank, "B1", "Staples", "150.00", day(6)),
	}

	// Act
	proposal, err := m.Generate(ledger, bank)

	// Assert
	require.NoError(t, err)
	require.True(t, proposal.HasBank())
	assert.Equal(t, "B1", proposal.BankID())
	assert.GreaterOrEqual(t, proposal.Confidence, 0.80)
	assert.Equal(t, model.BandHigh, proposal.Band)
	assert.Equal(t, 1.0, proposal.Scores.Amount)
	assert.InDelta(t, 2.0/3.0, proposal.Scores.Date, 0.0001)
	assert.Equal(t, 1.0, proposal.Scores.Vendor)
	assert.Contains(t, proposal.Explanation, "Exact amount match ($150.00)")
	assert.Contains(t, proposal.Explanation, "Date difference: 1 day")
}

func TestMatcher_ScenarioB_AmountMismatchDropsBand(t *testing.T) {
	// Arrange
	m := newMatcher(t, DefaultConfig())
	ledger := makeTransaction(model.SourceLedger, "L1", "Staples Inc", "150.00", day(5))
	exact := makeTransaction(model.SourceBank, "B1", "Staples", "150.00", day(6))
	off := makeTransaction(model.SourceBank, "B1", "Staples", "160.00", day(6))

	// Act
	a := m.Candidate(ledger, exact)
	b := m.Candidate(ledger, off)

	// Assert
	assert.Equal(t, 0.0, b.Scores.Amount)
	assert.GreaterOrEqual(t, a.Confidence-b.Confidence, 0.35-0.000001)
	assert.NotEqual(t, model.BandHigh, b.Band)
	assert.Contains(t, b.Explanation, "Amount mismatch: $150.00 vs $160.00 (diff: $10.00)")
}

func TestMatcher_AmountDecaysWithinTolerance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AmountTolerance = decimal.NewFromInt(10)
	m := newMatcher(t, cfg)
	ledger := makeTransaction(model.SourceLedger, "L1", "Acme", "100.00", day(5))

	tests := []struct {
		amount string
		want   float64
	}{
		{"100.00", 1.0},
		{"102.50", 0.75},
		{"95.00", 0.5},
		{"110.00", 0.0},
		{"110.01", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			c := m.Candidate(ledger, makeTransaction(model.SourceBank, "B", "Acme", tt.amount, day(5)))
			assert.InDelta(t, tt.want, c.Scores.Amount, 0.000001)
		})
	}
}

func TestMatcher_DateWindowIsHardFilter(t *testing.T) {
	// Arrange
	m := newMatcher(t, DefaultConfig())
	ledger := makeTransaction(model.SourceLedger, "L1", "Acme", "20.00", day(5))
	bank := []model.Transaction{
		makeTransaction(model.SourceBank, "B1", "Acme", "20.00", day(9)),
	}

	// Act
	proposal, err := m.Generate(ledger, bank)

	// Assert
	require.NoError(t, err)
	assert.False(t, proposal.HasBank())
	assert.Empty(t, proposal.Alternates)
	assert.Equal(t, model.BandLow, proposal.Band)
}

func TestMatcher_DateScoreAtWindowEdge(t *testing.T) {
	m := newMatcher(t, DefaultConfig())
	ledger := makeTransaction(model.SourceLedger, "L1", "Acme", "20.00", day(5))

	c := m.Candidate(ledger, makeTransaction(model.SourceBank, "B1", "Acme", "20.00", day(8)))

	assert.Equal(t, 0.0, c.Scores.Date)
	assert.Contains(t, c.Explanation, "Date difference: 3 days")
}

func TestMatcher_RequireReference(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireReference = true
	m := newMatcher(t, cfg)

	t.Run("neither side has a reference", func(t *testing.T) {
		ledger := makeTransaction(model.SourceLedger, "L1", "Acme", "20.00", day(5))
		bank := []model.Transaction{makeTransaction(model.SourceBank, "B1", "Acme", "20.00", day(5))}

		proposal, err := m.Generate(ledger, bank)

		require.NoError(t, err)
		assert.False(t, proposal.HasBank())
		assert.Contains(t, proposal.Explanation, "with a reference")
	})

	t.Run("matching references score 1", func(t *testing.T) {
		ledger := makeTransaction(model.SourceLedger, "L1", "Acme", "20.00", day(5))
		ledger.Reference = "INV-42"
		b := makeTransaction(model.SourceBank, "B1", "Acme", "20.00", day(5))
		b.Reference = "inv-42"

		proposal, err := m.Generate(ledger, []model.Transaction{b})

		require.NoError(t, err)
		require.True(t, proposal.HasBank())
		assert.Equal(t, 1.0, proposal.Scores.Reference)
		assert.Contains(t, proposal.Explanation, "Reference match: INV-42")
	})
}

func TestMatcher_DirectionMismatch(t *testing.T) {
	m := newMatcher(t, DefaultConfig())
	ledger := makeTransaction(model.SourceLedger, "L1", "Acme", "20.00", day(5))
	b := makeTransaction(model.SourceBank, "B1", "Acme", "20.00", day(5))
	b.Direction = model.MoneyIn

	c := m.Candidate(ledger, b)

	assert.Equal(t, 0.0, c.Scores.Type)
	assert.Contains(t, c.Explanation, "Transaction type mismatch: Money Out (Debit) vs Money In (Credit)")
}

func TestMatcher_TieBreakByPoolOrder(t *testing.T) {
	// Arrange
	m := newMatcher(t, DefaultConfig())
	ledger := makeTransaction(model.SourceLedger, "L1", "Acme", "20.00", day(5))
	bank := []model.Transaction{
		makeTransaction(model.SourceBank, "B7", "Acme", "20.00", day(5)),
		makeTransaction(model.SourceBank, "B2", "Acme", "20.00", day(5)),
	}

	// Act
	first, err := m.Generate(ledger, bank)
	require.NoError(t, err)
	second, err := m.Generate(ledger, bank)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, "B7", first.BankID())
	assert.Equal(t, "B7", second.BankID())
	require.Len(t, first.Alternates, 1)
	assert.Equal(t, "B2", first.Alternates[0].Bank.ID)
}

func TestMatcher_MinConfidence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinConfidence = 0.9
	m := newMatcher(t, cfg)
	ledger := makeTransaction(model.SourceLedger, "L1", "Acme", "20.00", day(5))
	bank := []model.Transaction{makeTransaction(model.SourceBank, "B1", "Other Shop", "25.00", day(6))}

	proposal, err := m.Generate(ledger, bank)

	require.NoError(t, err)
	assert.False(t, proposal.HasBank())
	assert.Equal(t, 0.0, proposal.Confidence)
	require.Len(t, proposal.Alternates, 1)
	assert.Contains(t, proposal.Explanation, "below minimum confidence")
}

func TestMatcher_TopKBoundsAlternates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TopK = 2
	m := newMatcher(t, cfg)
	ledger := makeTransaction(model.SourceLedger, "L1", "Acme", "20.00", day(5))

	var bank []model.Transaction
	for _, id := range []string{"B1", "B2", "B3", "B4", "B5"} {
		bank = append(bank, makeTransaction(model.SourceBank, id, "Acme", "20.00", day(5)))
	}

	proposal, err := m.Generate(ledger, bank)

	require.NoError(t, err)
	assert.Equal(t, "B1", proposal.BankID())
	assert.Len(t, proposal.Alternates, 2)
}

func TestAggregate_VendorMonotonicity(t *testing.T) {
	base := model.ComponentScores{Amount: 1, Date: 0.5, Reference: 0, Type: 1}

	for _, weights := range []Weights{DefaultWeights(), NoTypeWeights()} {
		prev := 2.0
		for v := 1.0; v >= 0; v -= 0.05 {
			s := base
			s.Vendor = v
			got := Aggregate(s, weights)
			assert.LessOrEqual(t, got, prev)
			prev = got
		}
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, model.BandHigh, Classify(0.80, DefaultBands()))
	assert.Equal(t, model.BandMedium, Classify(0.79, DefaultBands()))
	assert.Equal(t, model.BandLow, Classify(0.49, DefaultBands()))
	assert.Equal(t, model.BandMedium, Classify(0.80, StrictBands()))
	assert.Equal(t, model.BandLow, Classify(0.60, StrictBands()))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative tolerance", func(c *Config) { c.AmountTolerance = decimal.NewFromInt(-1) }, "amount_tolerance"},
		{"negative window", func(c *Config) { c.DateWindowDays = -1 }, "date_window_days"},
		{"threshold above one", func(c *Config) { c.VendorThreshold = 1.2 }, "vendor_threshold"},
		{"zero top k", func(c *Config) { c.TopK = 0 }, "top_k"},
		{"weights do not sum to one", func(c *Config) { c.Weights.Amount = 0.5 }, "weights"},
		{"negative weight", func(c *Config) { c.Weights = Weights{Amount: 1.1, Date: -0.1} }, "weights.date"},
		{"inverted bands", func(c *Config) { c.Bands = Bands{High: 0.4, Medium: 0.6} }, "bands"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()

			var verr *model.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate())
	})

	t.Run("no type preset is valid", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Weights = NoTypeWeights()
		assert.NoError(t, cfg.Validate())
	})
}

func TestPresets(t *testing.T) {
	w, err := WeightsPreset("no_type")
	require.NoError(t, err)
	assert.Equal(t, 0.0, w.Type)

	b, err := BandsPreset("strict")
	require.NoError(t, err)
	assert.Equal(t, 0.85, b.High)

	_, err = BandsPreset("lenient")
	assert.ErrorIs(t, err, model.ErrValidation)
}
