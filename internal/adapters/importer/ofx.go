package importer

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

var (
	severityPattern = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	openTagPattern  = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocessOFX fixes formatting quirks some banks emit.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityPattern.ReplaceAllStringFunc(content, strings.ToUpper)
	return openTagPattern.ReplaceAllString(content, "$1>")
}

// ParseOFX reads bank and credit card statements from an OFX/QFX file.
// FITID becomes the transaction id; the sign of TRNAMT gives the direction.
func (im *Importer) ParseOFX(r io.Reader, source model.Source) (*Result, error) {
	if !source.Valid() {
		return nil, model.NewValidationError("source", "must be ledger or bank")
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, model.NewValidationError("file", fmt.Sprintf("failed to parse OFX file: %v", err))
	}

	var statements []ofxgo.Transaction
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			statements = append(statements, stmt.BankTranList.Transactions...)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			statements = append(statements, stmt.BankTranList.Transactions...)
		}
	}

	result := &Result{Transactions: []model.Transaction{}, Skipped: []SkippedRow{}}
	ids := newIDSource()

	for i, tx := range statements {
		txn, err := convertOFX(tx)
		if err == nil && txn.ID != "" && !ids.claim(txn.ID) {
			err = fmt.Errorf("duplicate FITID %s", txn.ID)
		}
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedRow{Row: i, Error: err.Error()})
			continue
		}
		if txn.ID == "" {
			txn.ID = ids.next()
		}
		txn.Source = source
		txn.OriginRow = i
		result.Transactions = append(result.Transactions, txn)
	}

	im.logger.Info("parsed OFX file",
		"source", source,
		"transactions", len(result.Transactions),
		"skipped", len(result.Skipped),
	)
	return result, nil
}

func convertOFX(tx ofxgo.Transaction) (model.Transaction, error) {
	if tx.DtPosted.IsZero() {
		return model.Transaction{}, fmt.Errorf("transaction %s has no posted date", tx.FiTID)
	}

	amount, err := decimal.NewFromString(tx.TrnAmt.FloatString(4))
	if err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %s: %w", tx.FiTID, err)
	}

	name := strings.TrimSpace(string(tx.Name))
	vendor := name
	if tx.Payee != nil && tx.Payee.Name != "" {
		vendor = strings.TrimSpace(string(tx.Payee.Name))
	}
	description := strings.TrimSpace(string(tx.Memo))
	if description == "" {
		description = name
	}
	if vendor == "" {
		vendor = description
	}

	reference := string(tx.CheckNum)
	if reference == "" {
		reference = string(tx.RefNum)
	}

	direction := model.MoneyIn
	if !amount.IsPositive() {
		direction = model.MoneyOut
	}

	return model.Transaction{
		ID:          strings.TrimSpace(string(tx.FiTID)),
		Date:        tx.DtPosted.Time,
		Vendor:      vendor,
		Description: description,
		Amount:      amount.Abs(),
		Direction:   direction,
		Reference:   strings.TrimSpace(reference),
		Category:    tx.TrnType.String(),
	}, nil
}
