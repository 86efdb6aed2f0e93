// Package importer turns uploaded ledger and bank files into normalized
// transactions.
package importer

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// ColumnMapping names the source column for each transaction field.
// Either Amount or at least one of MoneyIn/MoneyOut must be set.
type ColumnMapping struct {
	Date        string `json:"date" yaml:"date"`
	Vendor      string `json:"vendor" yaml:"vendor"`
	Description string `json:"description" yaml:"description"`
	Amount      string `json:"amount,omitempty" yaml:"amount,omitempty"`
	MoneyIn     string `json:"money_in,omitempty" yaml:"money_in,omitempty"`
	MoneyOut    string `json:"money_out,omitempty" yaml:"money_out,omitempty"`
	Reference   string `json:"reference,omitempty" yaml:"reference,omitempty"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty"`
}

// IsZero reports whether no column is mapped.
func (m ColumnMapping) IsZero() bool {
	return m == ColumnMapping{}
}

// Validate checks the required fields are mapped.
func (m ColumnMapping) Validate() error {
	required := []struct{ field, column string }{
		{"date", m.Date},
		{"vendor", m.Vendor},
		{"description", m.Description},
	}
	for _, r := range required {
		if strings.TrimSpace(r.column) == "" {
			return model.NewValidationError(r.field, fmt.Sprintf("required field '%s' is not mapped", r.field))
		}
	}
	if m.Amount == "" && m.MoneyIn == "" && m.MoneyOut == "" {
		return model.NewValidationError("amount", "map either amount or money_in/money_out")
	}
	return nil
}

// LoadMapping reads a mapping from a YAML file.
func LoadMapping(path string) (ColumnMapping, error) {
	var m ColumnMapping
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("failed to read mapping file: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to parse mapping file: %w", err)
	}
	return m, m.Validate()
}

// keywords per field, checked in order against lower-cased headers
var autoMapKeywords = []struct {
	field    string
	keywords []string
}{
	{"money_in", []string{"money in", "credit", "deposit"}},
	{"money_out", []string{"money out", "debit", "withdrawal"}},
	{"date", []string{"date", "posted"}},
	{"vendor", []string{"vendor", "payee", "merchant"}},
	{"description", []string{"description", "memo", "details", "narrative"}},
	{"amount", []string{"amount", "value"}},
	{"reference", []string{"reference", "ref", "check", "invoice"}},
	{"category", []string{"category", "type"}},
}

// AutoMap suggests a mapping from header names. Each header is used at
// most once. When no vendor column exists the description column doubles
// as vendor, and the other way round.
func AutoMap(headers []string) ColumnMapping {
	used := make(map[int]bool)
	found := make(map[string]string)

	for _, rule := range autoMapKeywords {
		for i, h := range headers {
			if used[i] {
				continue
			}
			if matchesAny(strings.ToLower(strings.TrimSpace(h)), rule.keywords) {
				found[rule.field] = h
				used[i] = true
				break
			}
		}
	}

	m := ColumnMapping{
		Date:        found["date"],
		Vendor:      found["vendor"],
		Description: found["description"],
		Amount:      found["amount"],
		MoneyIn:     found["money_in"],
		MoneyOut:    found["money_out"],
		Reference:   found["reference"],
		Category:    found["category"],
	}
	if m.Vendor == "" {
		m.Vendor = m.Description
	}
	if m.Description == "" {
		m.Description = m.Vendor
	}
	if m.MoneyIn != "" || m.MoneyOut != "" {
		m.Amount = ""
	}
	return m
}

func matchesAny(header string, keywords []string) bool {
	for _, k := range keywords {
		if header == k || strings.Contains(header, k) {
			return true
		}
	}
	return false
}
