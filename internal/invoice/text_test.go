package invoice

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const teliaInvoice = `Telia Sverige AB
Box 123, 169 94 Solna
Fakturanummer: 2025-00123
Fakturadatum: 2025-03-01
Förfallodag: 2025-03-31
Att betala: 1 234,50 kr
Bankgiro: 5050-1055
OCR: 1234567890`

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestParseText_SwedishInvoice(t *testing.T) {
	p := ParseText(teliaInvoice)

	assert.Equal(t, "Telia Sverige AB", p.CompanyName)
	assert.Equal(t, "2025-00123", p.InvoiceNumber)
	require.NotNil(t, p.Amount)
	assert.True(t, decimal.RequireFromString("1234.50").Equal(*p.Amount), "amount %s", p.Amount)
	assert.Equal(t, "2025-03-31", p.DueDate)
	assert.Equal(t, "5050-1055", p.Bankgiro)
	assert.Equal(t, "1234567890", p.OCR)
	assert.Equal(t, "SEK", p.Currency)
	assert.Equal(t, 100, p.Confidence())
}

func TestParseText_EnglishInvoice(t *testing.T) {
	p := ParseText("Spotify AB\nInvoice no: INV-778\nDue date: 2025-04-15\nTotal: 119.00 EUR")

	assert.Equal(t, "Spotify AB", p.CompanyName)
	assert.Equal(t, "INV-778", p.InvoiceNumber)
	require.NotNil(t, p.Amount)
	assert.Equal(t, "119", p.Amount.String())
	assert.Equal(t, "2025-04-15", p.DueDate)
	assert.Equal(t, "EUR", p.Currency)
	assert.Equal(t, 80, p.Confidence())
}

func TestParseText_DayFirstDueDate(t *testing.T) {
	p := ParseText("Betalas senast 31-03-2025")
	assert.Equal(t, "2025-03-31", p.DueDate)
}

func TestParseText_CompanyFallbackToShortLine(t *testing.T) {
	p := ParseText("Vattenfall\nStorgatan 12\nSumma 300,00")
	assert.Equal(t, "Vattenfall", p.CompanyName)
	require.NotNil(t, p.Amount)
	assert.Equal(t, "300", p.Amount.String())
}

func TestParseText_OCRLengthBounds(t *testing.T) {
	assert.Empty(t, ParseText("OCR: 123").OCR)
	assert.Equal(t, "12345678", ParseText("OCR: 1234 5678").OCR)
}

func TestParseText_Empty(t *testing.T) {
	p := ParseText("")
	assert.Equal(t, 0, p.Confidence())
	assert.Equal(t, "SEK", p.Currency)

	_, err := p.Draft(now)
	assert.ErrorIs(t, err, ErrNoFields)
}

func TestParsed_Draft(t *testing.T) {
	input, err := ParseText(teliaInvoice).Draft(now)
	require.NoError(t, err)

	assert.Equal(t, "Telia Sverige AB", input.ServiceName)
	assert.True(t, decimal.RequireFromString("1234.5").Equal(input.Amount))
	assert.Equal(t, "SEK", input.Currency)
	assert.True(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC).Equal(input.DueDate))
	assert.Equal(t, "1234567890", input.ReferenceNumber)
	assert.Equal(t, "Invoice 2025-00123, Bankgiro 5050-1055", input.Notes)
	assert.Equal(t, "once", string(input.Frequency))
	assert.Equal(t, "other", string(input.Category))
}

func TestParsed_DraftDefaultsDueDate(t *testing.T) {
	input, err := ParseText("Acme AB\nAtt betala 100,00 kr").Draft(now)
	require.NoError(t, err)
	assert.True(t, now.Add(DefaultDueIn).Equal(input.DueDate))
	assert.Empty(t, input.ReferenceNumber)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1 234,50", "1234.5", true},
		{"1234.50", "1234.5", true},
		{"12 000,00", "12000", true},
		{"abc", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseAmount(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if ok {
			assert.Equal(t, tt.want, got.String(), tt.in)
		}
	}
}
