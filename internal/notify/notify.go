// Package notify defines the notification gateway the reminder scheduler
// talks to and the outbox the delivery loop drains.
package notify

import (
	"context"
	"time"
)

// Payload keys carried in Notification.Data.
const (
	DataBillID         = "billId"
	DataReminderOffset = "reminderOffset"
	DataVabEntryID     = "vabEntryId"
	DataAppointmentID  = "appointmentId"
	DataKind           = "kind"
)

// Notification is one timestamp-triggered message.
type Notification struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	TriggerAt   time.Time         `json:"trigger_at"`
	Data        map[string]string `json:"data,omitempty"`
	DeliveredAt *time.Time        `json:"delivered_at,omitempty"`
}

// Gateway schedules and cancels notifications by id. Creating an id that is
// already pending replaces it.
type Gateway interface {
	Create(ctx context.Context, n Notification) error
	CancelByIDs(ctx context.Context, ids []string) error
	ListPending(ctx context.Context) ([]Notification, error)
}

// Outbox is the delivery side of a gateway.
type Outbox interface {
	Due(ctx context.Context, now time.Time) ([]Notification, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
}
