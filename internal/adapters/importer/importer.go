package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// sampleRows is how many values per column a preview shows.
const sampleRows = 3

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// SkippedRow reports a data row that could not be normalized.
type SkippedRow struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// Result is the outcome of importing one file.
type Result struct {
	Transactions []model.Transaction `json:"transactions"`
	Skipped      []SkippedRow        `json:"skipped"`
	Mapping      *ColumnMapping      `json:"mapping,omitempty"`
}

// Preview describes an uploaded CSV before it is mapped.
type Preview struct {
	Headers   []string            `json:"headers"`
	Samples   map[string][]string `json:"samples"`
	RowCount  int                 `json:"row_count"`
	Suggested ColumnMapping       `json:"suggested_mapping"`
}

// Importer parses CSV and OFX files.
type Importer struct {
	logger *slog.Logger
}

// NewImporter creates an importer that logs skipped rows to logger.
func NewImporter(logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{logger: logger}
}

// IsOFX reports whether a file name looks like an OFX or QFX statement.
func IsOFX(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".ofx" || ext == ".qfx"
}

// ParseFile dispatches on the file extension. mapping may be nil for CSV
// files, in which case AutoMap picks the columns.
func (im *Importer) ParseFile(name string, r io.Reader, mapping *ColumnMapping, source model.Source) (*Result, error) {
	if IsOFX(name) {
		return im.ParseOFX(r, source)
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".csv" && ext != ".txt" {
		return nil, model.NewValidationError("file", fmt.Sprintf("unsupported file format: %s", name))
	}
	return im.ParseCSV(r, mapping, source)
}

// Preview reads the header row and the first few values of every column.
func (im *Importer) Preview(r io.Reader) (*Preview, error) {
	headers, rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}

	samples := make(map[string][]string, len(headers))
	for col, h := range headers {
		values := []string{}
		for i := 0; i < len(rows) && i < sampleRows; i++ {
			values = append(values, cell(rows[i], col))
		}
		samples[h] = values
	}

	return &Preview{
		Headers:   headers,
		Samples:   samples,
		RowCount:  len(rows),
		Suggested: AutoMap(headers),
	}, nil
}

// ParseCSV normalizes every data row. Rows that fail are reported in
// Result.Skipped and the rest are still returned. A mapping that names a
// missing column is an error for the whole file.
func (im *Importer) ParseCSV(r io.Reader, mapping *ColumnMapping, source model.Source) (*Result, error) {
	if !source.Valid() {
		return nil, model.NewValidationError("source", "must be ledger or bank")
	}

	headers, rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}

	m := AutoMap(headers)
	if mapping != nil && !mapping.IsZero() {
		m = *mapping
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	cols, err := resolveColumns(headers, m)
	if err != nil {
		return nil, err
	}

	result := &Result{Transactions: []model.Transaction{}, Skipped: []SkippedRow{}, Mapping: &m}
	ids := newIDSource()

	for i, row := range rows {
		txn, err := cols.normalize(row)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedRow{Row: i, Error: err.Error()})
			im.logger.Debug("skipped row", "source", source, "row", i, "error", err)
			continue
		}
		txn.ID = ids.next()
		txn.Source = source
		txn.OriginRow = i
		result.Transactions = append(result.Transactions, txn)
	}

	if len(result.Skipped) > 0 {
		im.logger.Warn("rows skipped during import",
			"source", source,
			"skipped", len(result.Skipped),
			"total", len(rows),
		)
	}
	return result, nil
}

func readCSV(r io.Reader) ([]string, [][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, model.NewValidationError("file", "file is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("error reading CSV header: %w", err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(headers[i], "\ufeff"))
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("error reading CSV at row %d: %w", len(rows), err)
		}
		rows = append(rows, record)
	}
	return headers, rows, nil
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// columns holds resolved header positions; -1 means unmapped.
type columns struct {
	date, vendor, description int
	amount, moneyIn, moneyOut int
	reference, category       int
}

func resolveColumns(headers []string, m ColumnMapping) (columns, error) {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[h] = i
	}

	var missing []string
	lookup := func(name string) int {
		if name == "" {
			return -1
		}
		i, ok := index[name]
		if !ok {
			missing = append(missing, name)
			return -1
		}
		return i
	}

	cols := columns{
		date:        lookup(m.Date),
		vendor:      lookup(m.Vendor),
		description: lookup(m.Description),
		amount:      lookup(m.Amount),
		moneyIn:     lookup(m.MoneyIn),
		moneyOut:    lookup(m.MoneyOut),
		reference:   lookup(m.Reference),
		category:    lookup(m.Category),
	}
	if len(missing) > 0 {
		return cols, model.NewValidationError("mapping", fmt.Sprintf("columns not found: %s", strings.Join(missing, ", ")))
	}
	return cols, nil
}

func (c columns) normalize(row []string) (model.Transaction, error) {
	date, err := parseDate(cell(row, c.date))
	if err != nil {
		return model.Transaction{}, err
	}

	amount, direction, err := c.signedAmount(row)
	if err != nil {
		return model.Transaction{}, err
	}

	return model.Transaction{
		Date:        date,
		Vendor:      cell(row, c.vendor),
		Description: cell(row, c.description),
		Amount:      amount,
		Direction:   direction,
		Reference:   cell(row, c.reference),
		Category:    cell(row, c.category),
	}, nil
}

func (c columns) signedAmount(row []string) (decimal.Decimal, model.Direction, error) {
	var net decimal.Decimal

	if c.moneyIn >= 0 || c.moneyOut >= 0 {
		in, err := parseAmount(cell(row, c.moneyIn))
		if err != nil {
			return decimal.Zero, "", fmt.Errorf("money in: %w", err)
		}
		out, err := parseAmount(cell(row, c.moneyOut))
		if err != nil {
			return decimal.Zero, "", fmt.Errorf("money out: %w", err)
		}
		net = in.Abs().Sub(out.Abs())
	} else {
		raw := cell(row, c.amount)
		if raw == "" {
			return decimal.Zero, "", errors.New("amount is empty")
		}
		v, err := parseAmount(raw)
		if err != nil {
			return decimal.Zero, "", fmt.Errorf("amount: %w", err)
		}
		net = v
	}

	if net.IsPositive() {
		return net, model.MoneyIn, nil
	}
	return net.Abs(), model.MoneyOut, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	s := strings.NewReplacer(",", "", "$", "").Replace(strings.TrimSpace(raw))
	if s == "" {
		return decimal.Zero, nil
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + strings.Trim(s, "()")
	}
	return decimal.NewFromString(s)
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("date is empty")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// idSource hands out short ids unique within one file.
type idSource struct {
	seen map[string]bool
}

func newIDSource() *idSource {
	return &idSource{seen: make(map[string]bool)}
}

func (s *idSource) next() string {
	for {
		id := uuid.NewString()[:8]
		if !s.seen[id] {
			s.seen[id] = true
			return id
		}
	}
}

func (s *idSource) claim(id string) bool {
	if s.seen[id] {
		return false
	}
	s.seen[id] = true
	return true
}
