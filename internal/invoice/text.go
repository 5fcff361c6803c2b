// Package invoice turns scanned or pasted invoice data into bill drafts.
// Parsing is best-effort: every field is optional.
package invoice

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/hray3182/fakturavakt/internal/models"
	"github.com/shopspring/decimal"
)

// ErrNoFields is returned when nothing usable could be extracted.
var ErrNoFields = errors.New("no invoice fields found")

// DefaultDueIn is used when a source carries no due date.
const DefaultDueIn = 14 * 24 * time.Hour

// Parsed holds the fields found in invoice text. DueDate is YYYY-MM-DD.
type Parsed struct {
	CompanyName   string           `json:"company_name,omitempty"`
	InvoiceNumber string           `json:"invoice_number,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	DueDate       string           `json:"due_date,omitempty"`
	Bankgiro      string           `json:"bankgiro,omitempty"`
	OCR           string           `json:"ocr,omitempty"`
	Currency      string           `json:"currency,omitempty"`
}

var (
	whitespaceRe     = regexp.MustCompile(`\s+`)
	companySuffixRe  = regexp.MustCompile(`\b(?:AB|HB|KB)\b|Ek\. för|ekonomisk förening`)
	companyFallback  = regexp.MustCompile(`^[A-ZÅÄÖa-zåäö\s&\-.]+$`)
	invoiceNumberRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:fakturanummer|fakturanr|faktura\s*nr|invoice\s*(?:number|no|nr|#))[\s.:#]*([A-Z0-9][A-Z0-9\-]*)`),
		regexp.MustCompile(`(?i)(?:faktura|invoice)[\s\-]*(?:nr|nummer|no|#)?[\s:]*([A-Z0-9\-]*[0-9][A-Z0-9\-]*)`),
	}
	amountRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:totalt?|att betala|amount|belopp)[\s:]*([0-9][0-9 ]*[,.][0-9]{2})`),
		regexp.MustCompile(`(?i)(?:summa|sum)[\s:]*([0-9][0-9 ]*[,.][0-9]{2})`),
		regexp.MustCompile(`(?i)([0-9]{1,3}(?: ?[0-9]{3})*[,.][0-9]{2}) *(?:kr|sek|:-)`),
	}
	dueDateRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:förfallo?dag(?:en)?|förfallodatum|due date|betalas senast)[\s:]*([0-9]{4}[-/][0-9]{2}[-/][0-9]{2})`),
		regexp.MustCompile(`(?i)(?:förfallo?dag(?:en)?|förfallodatum|due date|betalas senast)[\s:]*([0-9]{2}[-/][0-9]{2}[-/][0-9]{4})`),
		regexp.MustCompile(`(?i)(?:senast|latest)[\s:]*([0-9]{4}[-/][0-9]{2}[-/][0-9]{2})`),
	}
	bankgiroRe = regexp.MustCompile(`(?i)\b(?:bankgiro|bg)\b[\s:.]*([0-9]{3,4}[-\s]?[0-9]{4})`)
	ocrRe      = regexp.MustCompile(`(?i)\b(?:ocr(?:-nummer)?|referens|ref)\b[\s:.]*([0-9][0-9 ]*)`)
	sekRe      = regexp.MustCompile(`(?i)\b(?:sek|kr|kronor)\b`)
	eurRe      = regexp.MustCompile(`(?i)\b(?:eur|euro)\b|€`)
	usdRe      = regexp.MustCompile(`(?i)\b(?:usd|dollar)\b|\$`)
)

// ParseText extracts invoice fields from OCR or pasted text. Swedish
// invoice conventions are assumed.
func ParseText(text string) Parsed {
	normalized := strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}

	return Parsed{
		CompanyName:   companyName(lines),
		InvoiceNumber: invoiceNumber(normalized),
		Amount:        amount(normalized),
		DueDate:       dueDate(normalized),
		Bankgiro:      bankgiro(normalized),
		OCR:           ocr(normalized),
		Currency:      currency(normalized),
	}
}

// Confidence scores the parse from 0 to 100 by which fields were found.
func (p Parsed) Confidence() int {
	score := 0
	if p.CompanyName != "" {
		score += 15
	}
	if p.InvoiceNumber != "" {
		score += 20
	}
	if p.Amount != nil && p.Amount.IsPositive() {
		score += 25
	}
	if p.DueDate != "" {
		score += 20
	}
	if p.Bankgiro != "" || p.OCR != "" {
		score += 20
	}
	return min(score, 100)
}

// Draft converts the parse into bill input. A missing due date defaults to
// now plus DefaultDueIn.
func (p Parsed) Draft(now time.Time) (models.BillInput, error) {
	if p.CompanyName == "" && p.Amount == nil && p.DueDate == "" {
		return models.BillInput{}, ErrNoFields
	}

	input := models.BillInput{
		ServiceName: p.CompanyName,
		Currency:    p.Currency,
		Frequency:   models.FrequencyOnce,
		Category:    models.CategoryOther,
		DueDate:     now.Add(DefaultDueIn),
	}
	if p.Amount != nil {
		input.Amount = *p.Amount
	}
	if input.Currency == "" {
		input.Currency = models.DefaultCurrency
	}
	if due, err := time.ParseInLocation("2006-01-02", p.DueDate, now.Location()); err == nil {
		input.DueDate = due
	}

	switch {
	case p.OCR != "":
		input.ReferenceNumber = p.OCR
	case p.InvoiceNumber != "":
		input.ReferenceNumber = p.InvoiceNumber
	}

	var notes []string
	if p.InvoiceNumber != "" {
		notes = append(notes, "Invoice "+p.InvoiceNumber)
	}
	if p.Bankgiro != "" {
		notes = append(notes, "Bankgiro "+p.Bankgiro)
	}
	input.Notes = strings.Join(notes, ", ")

	return input, nil
}

func companyName(lines []string) string {
	for i, line := range lines {
		if i >= 10 {
			break
		}
		if companySuffixRe.MatchString(line) {
			return line
		}
	}
	for i, line := range lines {
		if i >= 5 {
			break
		}
		if len(line) > 3 && len(line) < 50 && companyFallback.MatchString(line) {
			return line
		}
	}
	return ""
}

func invoiceNumber(text string) string {
	for _, re := range invoiceNumberRes {
		if m := re.FindStringSubmatch(text); m != nil && strings.ContainsAny(m[1], "0123456789") {
			return strings.Trim(m[1], "-")
		}
	}
	return ""
}

func amount(text string) *decimal.Decimal {
	for _, re := range amountRes {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if d, ok := ParseAmount(m[1]); ok {
			return &d
		}
	}
	return nil
}

// ParseAmount reads "1 234,50" or "1234.50" style amounts.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.NewReplacer(" ", "", "\u00a0", "", ",", ".").Replace(strings.TrimSpace(s))
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func dueDate(text string) string {
	for _, re := range dueDateRes {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		parts := strings.FieldsFunc(m[1], func(r rune) bool { return r == '-' || r == '/' })
		if len(parts) != 3 {
			continue
		}
		if len(parts[0]) == 4 {
			return parts[0] + "-" + parts[1] + "-" + parts[2]
		}
		if len(parts[2]) == 4 {
			return parts[2] + "-" + parts[1] + "-" + parts[0]
		}
	}
	return ""
}

func bankgiro(text string) string {
	m := bankgiroRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.ReplaceAll(m[1], " ", "-")
}

func ocr(text string) string {
	m := ocrRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	digits := strings.ReplaceAll(m[1], " ", "")
	if len(digits) < 4 || len(digits) > 25 {
		return ""
	}
	return digits
}

func currency(text string) string {
	switch {
	case sekRe.MatchString(text):
		return "SEK"
	case eurRe.MatchString(text):
		return "EUR"
	case usdRe.MatchString(text):
		return "USD"
	default:
		return models.DefaultCurrency
	}
}
