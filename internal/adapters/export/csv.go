// Package export writes reconciliation results as CSV files and a JSON
// audit report.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

const dateLayout = "2006-01-02"

// File names used by WriteAll and the download endpoints.
const (
	FileConfirmed       = "confirmed_matches.csv"
	FileUnmatchedLedger = "unmatched_ledger.csv"
	FileUnmatchedBank   = "unmatched_bank.csv"
	FileRejected        = "rejected.csv"
	FileExcluded        = "excluded.csv"
	FileAudit           = "audit_trail.json"
)

var transactionHeader = []string{"ID", "Date", "Type", "Vendor", "Description", "Amount", "Reference", "Category"}

var confirmedHeader = []string{
	"Ledger_ID", "Ledger_Date", "Ledger_Type", "Ledger_Vendor", "Ledger_Description", "Ledger_Amount",
	"Bank_ID", "Bank_Date", "Bank_Type", "Bank_Vendor", "Bank_Description", "Bank_Amount",
	"Confidence", "Band", "Matched_At",
}

var rejectedHeader = []string{
	"Record_ID",
	"Ledger_ID", "Ledger_Date", "Ledger_Type", "Ledger_Vendor", "Ledger_Amount",
	"Bank_ID", "Bank_Date", "Bank_Type", "Bank_Vendor", "Bank_Amount",
	"Confidence", "Rejected_At", "Ledger_Available", "Bank_Available",
}

func transactionRow(t model.Transaction) []string {
	return []string{
		t.ID,
		t.Date.Format(dateLayout),
		t.Direction.ShortLabel(),
		t.Vendor,
		t.Description,
		t.Amount.StringFixed(2),
		t.Reference,
		t.Category,
	}
}

func confidence(c float64) string {
	return strconv.FormatFloat(c, 'f', 4, 64)
}

// writeRows writes a header and rows, flushing before it returns.
func writeRows(w io.Writer, header []string, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTransactions writes an unmatched ledger or bank list.
func WriteTransactions(w io.Writer, txns []model.Transaction) error {
	rows := make([][]string, 0, len(txns))
	for _, t := range txns {
		rows = append(rows, transactionRow(t))
	}
	return writeRows(w, transactionHeader, rows)
}

// WriteExcluded writes excluded transactions of both sources, ledger first,
// with a leading Source column.
func WriteExcluded(w io.Writer, ledger, bank []model.Transaction) error {
	header := append([]string{"Source"}, transactionHeader...)
	rows := make([][]string, 0, len(ledger)+len(bank))
	for _, t := range append(append([]model.Transaction{}, ledger...), bank...) {
		rows = append(rows, append([]string{string(t.Source)}, transactionRow(t)...))
	}
	return writeRows(w, header, rows)
}

// WriteConfirmed writes confirmed matches side by side.
func WriteConfirmed(w io.Writer, matches []model.ConfirmedMatch) error {
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		l, b := m.Ledger, m.Bank
		rows = append(rows, []string{
			l.ID, l.Date.Format(dateLayout), l.Direction.ShortLabel(), l.Vendor, l.Description, l.Amount.StringFixed(2),
			b.ID, b.Date.Format(dateLayout), b.Direction.ShortLabel(), b.Vendor, b.Description, b.Amount.StringFixed(2),
			confidence(m.Confidence), string(m.Band), m.ConfirmedAt.UTC().Format(time.RFC3339),
		})
	}
	return writeRows(w, confirmedHeader, rows)
}

// WriteRejected writes rejected records with their current availability.
func WriteRejected(w io.Writer, records []model.RejectedRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		l, b := r.Ledger, r.Bank
		rows = append(rows, []string{
			r.ID,
			l.ID, l.Date.Format(dateLayout), l.Direction.ShortLabel(), l.Vendor, l.Amount.StringFixed(2),
			b.ID, b.Date.Format(dateLayout), b.Direction.ShortLabel(), b.Vendor, b.Amount.StringFixed(2),
			confidence(r.Confidence), r.RejectedAt.UTC().Format(time.RFC3339),
			strconv.FormatBool(r.LedgerAvailable), strconv.FormatBool(r.BankAvailable),
		})
	}
	return writeRows(w, rejectedHeader, rows)
}
