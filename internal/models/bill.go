package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "SEK"

// DefaultReminderOffsets are used when a bill is added without reminders
// and the settings carry no override.
var DefaultReminderOffsets = []int{1, 3, 7}

type Frequency string

const (
	FrequencyOnce         Frequency = "once"
	FrequencyWeekly       Frequency = "weekly"
	FrequencyBiweekly     Frequency = "biweekly"
	FrequencyMonthly      Frequency = "monthly"
	FrequencyBimonthly    Frequency = "bimonthly"
	FrequencyQuarterly    Frequency = "quarterly"
	FrequencySemiannually Frequency = "semiannually"
	FrequencyAnnually     Frequency = "annually"
	FrequencyCustom       Frequency = "custom"
)

var Frequencies = []Frequency{
	FrequencyOnce, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyBimonthly,
	FrequencyQuarterly, FrequencySemiannually, FrequencyAnnually, FrequencyCustom,
}

type Category string

const (
	CategoryHousing   Category = "housing"
	CategoryUtilities Category = "utilities"
	CategoryInternet  Category = "internet"
	CategoryInsurance Category = "insurance"
	CategoryTransport Category = "transport"
	CategoryStreaming Category = "streaming"
	CategoryHealth    Category = "health"
	CategoryOther     Category = "other"
)

var Categories = []Category{
	CategoryHousing, CategoryUtilities, CategoryInternet, CategoryInsurance,
	CategoryTransport, CategoryStreaming, CategoryHealth, CategoryOther,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type BillStatus string

const (
	StatusScheduled BillStatus = "scheduled"
	StatusPaid      BillStatus = "paid"
	StatusOverdue   BillStatus = "overdue"
	StatusPaused    BillStatus = "paused"
)

type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentPDF   AttachmentKind = "pdf"
	AttachmentFile  AttachmentKind = "file"
)

type ContactInformation struct {
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Website string `json:"website,omitempty"`
	Address string `json:"address,omitempty"`
}

// ReminderSetting is one lead time before the due date. Uniqueness is by
// OffsetDays, not by ID.
type ReminderSetting struct {
	ID         string `json:"id"`
	OffsetDays int    `json:"offset_days"`
}

type Attachment struct {
	ID       string         `json:"id"`
	BillID   string         `json:"bill_id"`
	Name     string         `json:"name"`
	Kind     AttachmentKind `json:"kind"`
	URI      string         `json:"uri"`
	Size     int64          `json:"size,omitempty"`
	MimeType string         `json:"mime_type,omitempty"`
	AddedAt  time.Time      `json:"added_at"`
}

type Bill struct {
	ID              string              `json:"id"`
	ServiceName     string              `json:"service_name"`
	Amount          decimal.Decimal     `json:"amount"`
	Currency        string              `json:"currency"`
	DueDate         time.Time           `json:"due_date"`
	Frequency       Frequency           `json:"frequency"`
	Category        Category            `json:"category"`
	Notes           string              `json:"notes,omitempty"`
	RemindSettings  []ReminderSetting   `json:"remind_settings"`
	Attachments     []Attachment        `json:"attachments"`
	ReferenceNumber string              `json:"reference_number,omitempty"`
	ProviderContact *ContactInformation `json:"provider_contact,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	PaidAt          *time.Time          `json:"paid_at,omitempty"`
	Status          BillStatus          `json:"status"`
	IsAutoPay       bool                `json:"is_auto_pay"`
	NextOccurrence  *time.Time          `json:"next_occurrence,omitempty"`
}

// IsRecurring returns true unless the bill is a one-off.
func (b *Bill) IsRecurring() bool {
	return b.Frequency != FrequencyOnce
}

// Offsets returns the reminder lead times in days, ascending.
func (b *Bill) Offsets() []int {
	offsets := make([]int, 0, len(b.RemindSettings))
	for _, r := range b.RemindSettings {
		offsets = append(offsets, r.OffsetDays)
	}
	sort.Ints(offsets)
	return offsets
}

// Clone returns a deep copy so callers never share slices or pointers with
// the ledger's own state.
func (b Bill) Clone() Bill {
	out := b
	out.RemindSettings = append([]ReminderSetting(nil), b.RemindSettings...)
	out.Attachments = append([]Attachment(nil), b.Attachments...)
	if b.ProviderContact != nil {
		contact := *b.ProviderContact
		out.ProviderContact = &contact
	}
	if b.PaidAt != nil {
		paidAt := *b.PaidAt
		out.PaidAt = &paidAt
	}
	if b.NextOccurrence != nil {
		next := *b.NextOccurrence
		out.NextOccurrence = &next
	}
	return out
}

// BillInput is the shape produced by forms and invoice parsers.
type BillInput struct {
	ServiceName     string              `json:"service_name"`
	Amount          decimal.Decimal     `json:"amount"`
	Currency        string              `json:"currency"`
	DueDate         time.Time           `json:"due_date"`
	Frequency       Frequency           `json:"frequency"`
	Category        Category            `json:"category"`
	Notes           string              `json:"notes,omitempty"`
	RemindSettings  []ReminderSetting   `json:"remind_settings,omitempty"`
	ReferenceNumber string              `json:"reference_number,omitempty"`
	ProviderContact *ContactInformation `json:"provider_contact,omitempty"`
	Attachments     []Attachment        `json:"attachments,omitempty"`
	IsAutoPay       bool                `json:"is_auto_pay"`
}

// BillUpdate is a partial update. Nil fields keep the current value; slices
// replace the current value wholesale only when non-nil.
type BillUpdate struct {
	ServiceName     *string
	Amount          *decimal.Decimal
	Currency        *string
	DueDate         *time.Time
	Frequency       *Frequency
	Category        *Category
	Notes           *string
	RemindSettings  []ReminderSetting
	Attachments     []Attachment
	ReferenceNumber *string
	ProviderContact *ContactInformation
	IsAutoPay       *bool
	Status          *BillStatus
}
