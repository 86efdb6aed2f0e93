package importer

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

func newTestImporter() *Importer {
	return NewImporter(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

const inOutCSV = `Date,Vendor,Description,Money In,Money Out,Ref
2024-01-05,Staples Inc,Office supplies,,150.00,INV-1
01/06/2024,ACME Corp,Invoice payment,"$1,200.50",,
2024-01-07,Refund Co,Net zero,10.00,10.00,
not-a-date,Bad Row,Broken,,5.00,
2024-01-08,Shell,Fuel,,abc,
`

func TestAutoMap(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		want    ColumnMapping
	}{
		{
			name:    "in and out columns",
			headers: []string{"Date", "Vendor", "Description", "Money In", "Money Out", "Ref"},
			want: ColumnMapping{Date: "Date", Vendor: "Vendor", Description: "Description",
				MoneyIn: "Money In", MoneyOut: "Money Out", Reference: "Ref"},
		},
		{
			name:    "bank style headers",
			headers: []string{"Posted Date", "Payee", "Memo", "Amount", "Category"},
			want: ColumnMapping{Date: "Posted Date", Vendor: "Payee", Description: "Memo",
				Amount: "Amount", Category: "Category"},
		},
		{
			name:    "description doubles as vendor",
			headers: []string{"date", "details", "debit", "credit"},
			want: ColumnMapping{Date: "date", Vendor: "details", Description: "details",
				MoneyIn: "credit", MoneyOut: "debit"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AutoMap(tt.headers))
		})
	}
}

func TestColumnMapping_Validate(t *testing.T) {
	valid := ColumnMapping{Date: "d", Vendor: "v", Description: "desc", Amount: "a"}
	require.NoError(t, valid.Validate())

	noDate := valid
	noDate.Date = ""
	assert.ErrorIs(t, noDate.Validate(), model.ErrValidation)
	assert.Contains(t, noDate.Validate().Error(), "date")

	noAmount := valid
	noAmount.Amount = ""
	assert.ErrorIs(t, noAmount.Validate(), model.ErrValidation)

	outOnly := noAmount
	outOnly.MoneyOut = "out"
	assert.NoError(t, outOnly.Validate())
}

func TestParseCSV_InOutColumns(t *testing.T) {
	// Arrange
	im := newTestImporter()

	// Act
	result, err := im.ParseCSV(strings.NewReader(inOutCSV), nil, model.SourceLedger)

	// Assert
	require.NoError(t, err)
	require.Len(t, result.Transactions, 3)
	require.Len(t, result.Skipped, 2)
	assert.Equal(t, 3, result.Skipped[0].Row)
	assert.Contains(t, result.Skipped[0].Error, "not-a-date")
	assert.Equal(t, 4, result.Skipped[1].Row)
	assert.Contains(t, result.Skipped[1].Error, "money out")

	staples := result.Transactions[0]
	assert.Equal(t, model.MoneyOut, staples.Direction)
	assert.True(t, staples.Amount.Equal(decimal.RequireFromString("150")))
	assert.Equal(t, "INV-1", staples.Reference)
	assert.Equal(t, model.SourceLedger, staples.Source)
	assert.Equal(t, 0, staples.OriginRow)
	assert.Len(t, staples.ID, 8)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), staples.Date)

	acme := result.Transactions[1]
	assert.Equal(t, model.MoneyIn, acme.Direction)
	assert.True(t, acme.Amount.Equal(decimal.RequireFromString("1200.50")))
	assert.Equal(t, time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC), acme.Date)

	zero := result.Transactions[2]
	assert.Equal(t, model.MoneyOut, zero.Direction)
	assert.True(t, zero.Amount.IsZero())
	assert.Equal(t, 2, zero.OriginRow)

	ids := map[string]bool{}
	for _, txn := range result.Transactions {
		assert.NoError(t, txn.Validate())
		ids[txn.ID] = true
	}
	assert.Len(t, ids, 3)
}

func TestParseCSV_SignedAmount(t *testing.T) {
	csv := "When,Payee,Memo,Value\n2024-02-01,Landlord,Rent,-1500.00\n2024-02-02,Employer,Salary,3000\n2024-02-03,Bank,Fee,(2.50)\n2024-02-04,Empty,Nothing,\n"
	mapping := &ColumnMapping{Date: "When", Vendor: "Payee", Description: "Memo", Amount: "Value"}

	result, err := newTestImporter().ParseCSV(strings.NewReader(csv), mapping, model.SourceBank)

	require.NoError(t, err)
	require.Len(t, result.Transactions, 3)
	require.Len(t, result.Skipped, 1)

	assert.Equal(t, model.MoneyOut, result.Transactions[0].Direction)
	assert.True(t, result.Transactions[0].Amount.Equal(decimal.RequireFromString("1500")))
	assert.Equal(t, model.MoneyIn, result.Transactions[1].Direction)
	assert.Equal(t, model.MoneyOut, result.Transactions[2].Direction)
	assert.True(t, result.Transactions[2].Amount.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, mapping, result.Mapping)
}

func TestParseCSV_MappingErrors(t *testing.T) {
	im := newTestImporter()

	t.Run("unknown column", func(t *testing.T) {
		mapping := &ColumnMapping{Date: "Date", Vendor: "Merchant", Description: "Description", Amount: "Total"}
		_, err := im.ParseCSV(strings.NewReader(inOutCSV), mapping, model.SourceLedger)
		assert.ErrorIs(t, err, model.ErrValidation)
		assert.Contains(t, err.Error(), "Merchant")
		assert.Contains(t, err.Error(), "Total")
	})

	t.Run("nothing auto-mappable", func(t *testing.T) {
		_, err := im.ParseCSV(strings.NewReader("a,b\n1,2\n"), nil, model.SourceLedger)
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := im.ParseCSV(strings.NewReader(""), nil, model.SourceLedger)
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := im.ParseFile("ledger.xlsx", strings.NewReader(inOutCSV), nil, model.SourceLedger)
		assert.ErrorIs(t, err, model.ErrValidation)
	})
}

func TestPreview(t *testing.T) {
	preview, err := newTestImporter().Preview(strings.NewReader(inOutCSV))

	require.NoError(t, err)
	assert.Equal(t, []string{"Date", "Vendor", "Description", "Money In", "Money Out", "Ref"}, preview.Headers)
	assert.Equal(t, 5, preview.RowCount)
	assert.Equal(t, []string{"Staples Inc", "ACME Corp", "Refund Co"}, preview.Samples["Vendor"])
	assert.Equal(t, []string{"INV-1", "", ""}, preview.Samples["Ref"])
	assert.Equal(t, "Money Out", preview.Suggested.MoneyOut)
}

func TestLoadMapping(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte("date: Posted\nvendor: Payee\ndescription: Memo\namount: Amount\nreference: Check\n"), 0o600))

	m, err := LoadMapping(path)

	require.NoError(t, err)
	assert.Equal(t, ColumnMapping{Date: "Posted", Vendor: "Payee", Description: "Memo", Amount: "Amount", Reference: "Check"}, m)

	require.NoError(t, os.WriteFile(path, []byte("date: Posted\n"), 0o600))
	_, err = LoadMapping(path)
	assert.ErrorIs(t, err, model.ErrValidation)
}

const sampleOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240106120000[0:GMT]
<TRNAMT>-150.00
<FITID>2024010601
<NAME>STAPLES
<MEMO>Office supplies
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240110120000[0:GMT]
<TRNAMT>1200.50
<FITID>2024011001
<NAME>ACME CORP
</STMTTRN>
<STMTTRN>
<TRNTYPE>CHECK
<DTPOSTED>20240125120000[0:GMT]
<TRNAMT>-500.00
<FITID>2024012501
<CHECKNUM>1234
<NAME>CHECK #1234
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>
`

func TestParseOFX(t *testing.T) {
	// Act
	result, err := newTestImporter().ParseFile("statement.QFX", strings.NewReader(sampleOFX), nil, model.SourceBank)

	// Assert
	require.NoError(t, err)
	require.Len(t, result.Transactions, 3)
	assert.Empty(t, result.Skipped)

	staples := result.Transactions[0]
	assert.Equal(t, "2024010601", staples.ID)
	assert.Equal(t, "STAPLES", staples.Vendor)
	assert.Equal(t, "Office supplies", staples.Description)
	assert.Equal(t, model.MoneyOut, staples.Direction)
	assert.True(t, staples.Amount.Equal(decimal.RequireFromString("150")))
	assert.Equal(t, "DEBIT", staples.Category)
	assert.Equal(t, model.SourceBank, staples.Source)

	acme := result.Transactions[1]
	assert.Equal(t, model.MoneyIn, acme.Direction)
	assert.Equal(t, "ACME CORP", acme.Description)
	assert.True(t, acme.Amount.Equal(decimal.RequireFromString("1200.5")))

	check := result.Transactions[2]
	assert.Equal(t, "1234", check.Reference)
	assert.Equal(t, 2, check.OriginRow)
	assert.Equal(t, 2024, check.Date.Year())
}

func TestParseOFX_Invalid(t *testing.T) {
	_, err := newTestImporter().ParseOFX(strings.NewReader("not an ofx file"), model.SourceBank)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestPreprocessOFX(t *testing.T) {
	in := "\n\n  <SEVERITY>Info</SEVERITY>\n<CODE\n"
	out := preprocessOFX(in)
	assert.True(t, strings.HasPrefix(out, "<SEVERITY>INFO</SEVERITY>"))
	assert.Contains(t, out, "<CODE>")
}
