package invoice

import (
	"strings"
	"time"

	"github.com/hray3182/fakturavakt/internal/models"
)

// QRResult is a bill draft decoded from a payment QR code together with the
// raw key/value pairs it was built from.
type QRResult struct {
	Draft  models.BillInput
	Fields map[string]string
}

// ParseQR decodes a KEY:VALUE per line payment payload as printed on
// Scandinavian invoices. Unknown keys are kept in Fields.
func ParseQR(payload string, now time.Time) (QRResult, error) {
	fields := make(map[string]string)
	for _, line := range strings.Split(payload, "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), ":")
		if !found {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		fields[key] = value
	}
	if len(fields) == 0 {
		return QRResult{}, ErrNoFields
	}

	draft := models.BillInput{
		ServiceName: first(fields, "RN", "NAME", "KUND", "CNAM"),
		Currency:    strings.ToUpper(first(fields, "CC")),
		DueDate:     now.Add(DefaultDueIn),
		Frequency:   models.FrequencyOnce,
		Category:    models.CategoryOther,
	}
	if draft.Currency == "" {
		draft.Currency = models.DefaultCurrency
	}
	if raw := first(fields, "AM", "AMOUNT", "BETBEL"); raw != "" {
		if amount, ok := ParseAmount(raw); ok {
			draft.Amount = amount
		}
	}
	if raw := first(fields, "DT", "DUE", "FORDFDAT"); raw != "" {
		if due, ok := parseQRDate(raw, now.Location()); ok {
			draft.DueDate = due
		}
	}
	draft.ReferenceNumber = first(fields, "RF", "RR", "OCR", "KID")

	contact := models.ContactInformation{
		Email:   first(fields, "EMAIL", "MAIL"),
		Phone:   first(fields, "TEL", "PHON"),
		Website: first(fields, "URL", "WEB"),
	}
	if contact != (models.ContactInformation{}) {
		draft.ProviderContact = &contact
	}

	return QRResult{Draft: draft, Fields: fields}, nil
}

func first(fields map[string]string, keys ...string) string {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			return v
		}
	}
	return ""
}

func parseQRDate(raw string, loc *time.Location) (time.Time, bool) {
	layouts := []string{"2006-01-02", "20060102"}
	if strings.Contains(raw, "T") {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.In(loc), true
		}
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
