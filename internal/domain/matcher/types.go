package matcher

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// weightSumEpsilon absorbs float rounding when checking that weights sum to 1.
const weightSumEpsilon = 0.000001

// Config holds matcher configuration
type Config struct {
	VendorThreshold  float64         `json:"vendor_threshold"`  // Default: 0.80, highlights weak vendor similarity
	AmountTolerance  decimal.Decimal `json:"amount_tolerance"`  // Default: 0.01 (1 cent)
	DateWindowDays   int             `json:"date_window_days"`  // Hard filter, default: 3
	RequireReference bool            `json:"require_reference"` // Hard filter when neither side has a reference
	MinConfidence    float64         `json:"min_confidence"`    // Best candidate below this yields no bank side
	TopK             int             `json:"top_k"`             // Alternates kept per proposal
	Weights          Weights         `json:"weights"`
	Bands            Bands           `json:"bands"`
}

// Weights are the aggregator weights for each component. They must be
// non-negative and sum to 1.
type Weights struct {
	Amount    float64 `json:"amount"`
	Date      float64 `json:"date"`
	Vendor    float64 `json:"vendor"`
	Reference float64 `json:"reference"`
	Type      float64 `json:"type"`
}

// Bands are the lower bounds of the High and Medium confidence bands.
type Bands struct {
	High   float64 `json:"high"`
	Medium float64 `json:"medium"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		VendorThreshold:  0.80,
		AmountTolerance:  decimal.NewFromFloat(0.01),
		DateWindowDays:   3,
		RequireReference: false,
		MinConfidence:    0.30,
		TopK:             5,
		Weights:          DefaultWeights(),
		Bands:            DefaultBands(),
	}
}

// DefaultWeights is the canonical weighting scheme.
func DefaultWeights() Weights {
	return Weights{Amount: 0.35, Date: 0.25, Vendor: 0.30, Reference: 0.05, Type: 0.05}
}

// NoTypeWeights drops the direction component and moves its weight onto amount.
func NoTypeWeights() Weights {
	return Weights{Amount: 0.40, Date: 0.25, Vendor: 0.30, Reference: 0.05}
}

// DefaultBands is the canonical 0.8 / 0.5 split.
func DefaultBands() Bands {
	return Bands{High: 0.80, Medium: 0.50}
}

// StrictBands is the 0.85 / 0.65 split.
func StrictBands() Bands {
	return Bands{High: 0.85, Medium: 0.65}
}

// WeightsPreset resolves a named weighting scheme.
func WeightsPreset(name string) (Weights, error) {
	switch name {
	case "", "canonical":
		return DefaultWeights(), nil
	case "no_type":
		return NoTypeWeights(), nil
	}
	return Weights{}, model.NewValidationError("weights_preset", fmt.Sprintf("unknown preset %q", name))
}

// BandsPreset resolves a named band split.
func BandsPreset(name string) (Bands, error) {
	switch name {
	case "", "canonical":
		return DefaultBands(), nil
	case "strict":
		return StrictBands(), nil
	}
	return Bands{}, model.NewValidationError("bands_preset", fmt.Sprintf("unknown preset %q", name))
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Amount + w.Date + w.Vendor + w.Reference + w.Type
}

// IsZero reports whether no weight was set.
func (w Weights) IsZero() bool {
	return w == Weights{}
}

// Validate checks every field and returns a *model.ValidationError naming
// the first offending one.
func (c Config) Validate() error {
	if c.AmountTolerance.IsNegative() {
		return model.NewValidationError("amount_tolerance", "must be >= 0")
	}
	if c.DateWindowDays < 0 {
		return model.NewValidationError("date_window_days", "must be >= 0")
	}
	if c.VendorThreshold < 0 || c.VendorThreshold > 1 {
		return model.NewValidationError("vendor_threshold", "must be within [0, 1]")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return model.NewValidationError("min_confidence", "must be within [0, 1]")
	}
	if c.TopK < 1 {
		return model.NewValidationError("top_k", "must be >= 1")
	}

	w := c.Weights
	for name, v := range map[string]float64{
		"amount": w.Amount, "date": w.Date, "vendor": w.Vendor, "reference": w.Reference, "type": w.Type,
	} {
		if v < 0 {
			return model.NewValidationError("weights."+name, "must be >= 0")
		}
	}
	if math.Abs(w.Sum()-1) > weightSumEpsilon {
		return model.NewValidationError("weights", fmt.Sprintf("must sum to 1, got %.4f", w.Sum()))
	}

	b := c.Bands
	if b.Medium < 0 || b.High > 1 || b.Medium > b.High {
		return model.NewValidationError("bands", "require 0 <= medium <= high <= 1")
	}
	return nil
}

// WithDefaults fills zero-valued weights, bands and top-k from the defaults.
// Other zero values are meaningful (a zero window means same-day only).
func (c Config) WithDefaults() Config {
	if c.Weights.IsZero() {
		c.Weights = DefaultWeights()
	}
	if c.Bands == (Bands{}) {
		c.Bands = DefaultBands()
	}
	if c.TopK == 0 {
		c.TopK = DefaultConfig().TopK
	}
	return c
}
