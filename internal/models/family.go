package models

import "time"

var (
	DefaultVabReminderOffsets         = []int{1, 3, 7}
	DefaultAppointmentReminderOffsets = []int{7, 1}
)

// VabEntry records days at home with a sick child. Reminders fire after
// EndDate so the leave gets reported.
type VabEntry struct {
	ID              string    `json:"id"`
	ChildName       string    `json:"child_name"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	Notes           string    `json:"notes,omitempty"`
	ReminderOffsets []int     `json:"reminder_offsets"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Days returns the number of calendar days covered, inclusive.
func (e *VabEntry) Days() int {
	start := time.Date(e.StartDate.Year(), e.StartDate.Month(), e.StartDate.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(e.EndDate.Year(), e.EndDate.Month(), e.EndDate.Day(), 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours()/24) + 1
}

func (e VabEntry) Clone() VabEntry {
	out := e
	out.ReminderOffsets = append([]int(nil), e.ReminderOffsets...)
	return out
}

type MedicalAppointment struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	PersonName      string    `json:"person_name,omitempty"`
	Date            time.Time `json:"date"`
	Location        string    `json:"location,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	ReminderOffsets []int     `json:"reminder_offsets"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (a MedicalAppointment) Clone() MedicalAppointment {
	out := a
	out.ReminderOffsets = append([]int(nil), a.ReminderOffsets...)
	return out
}

type VabEntryInput struct {
	ChildName       string
	StartDate       time.Time
	EndDate         time.Time
	Notes           string
	ReminderOffsets []int
}

type VabEntryUpdate struct {
	ChildName       *string
	StartDate       *time.Time
	EndDate         *time.Time
	Notes           *string
	ReminderOffsets []int
}

type MedicalAppointmentInput struct {
	Title           string
	PersonName      string
	Date            time.Time
	Location        string
	Notes           string
	ReminderOffsets []int
}

type MedicalAppointmentUpdate struct {
	Title           *string
	PersonName      *string
	Date            *time.Time
	Location        *string
	Notes           *string
	ReminderOffsets []int
}
