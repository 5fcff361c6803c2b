package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/hray3182/fakturavakt/internal/ledger"
	"github.com/hray3182/fakturavakt/internal/lifecycle"
	"github.com/hray3182/fakturavakt/internal/models"
	"github.com/hray3182/fakturavakt/internal/notify"
	"github.com/hray3182/fakturavakt/internal/rrule"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Plain strips the characters ParseMarkdown treats as markers so user text
// cannot open an entity.
func Plain(s string) string {
	return strings.NewReplacer("*", "", "`", "'", "__", "_").Replace(s)
}

// Amount renders a money amount with two decimals and grouped thousands,
// e.g. "12 500.00 SEK".
func Amount(d decimal.Decimal, currency string) string {
	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	if currency != "" {
		b.WriteByte(' ')
		b.WriteString(currency)
	}
	return b.String()
}

// DueLabel describes where a bill stands relative to now.
func DueLabel(bill models.Bill, now time.Time) string {
	switch lifecycle.DeriveStatus(bill, now) {
	case models.StatusPaid:
		if bill.PaidAt != nil {
			return "paid " + bill.PaidAt.In(now.Location()).Format(dateLayout)
		}
		return "paid"
	case models.StatusPaused:
		return "paused"
	}

	days := lifecycle.DaysUntil(bill.DueDate, now)
	switch {
	case days < -1:
		return fmt.Sprintf("%d days overdue", -days)
	case days == -1:
		return "1 day overdue"
	case days == 0:
		return "due today"
	case days == 1:
		return "due tomorrow"
	default:
		return fmt.Sprintf("due in %d days", days)
	}
}

// ShortIDLength is how much of an id lists show. Commands accept any unique
// prefix.
const ShortIDLength = 8

func ShortID(id string) string {
	if len(id) > ShortIDLength {
		return id[:ShortIDLength]
	}
	return id
}

// BillLine renders one numbered list entry.
func BillLine(n int, bill models.Bill, now time.Time) string {
	return fmt.Sprintf("%d. %s", n, billSummary(bill, now))
}

// BillRefLine renders a list entry carrying the bill's short id.
func BillRefLine(bill models.Bill, now time.Time) string {
	return "• " + billSummary(bill, now) + " · `" + ShortID(bill.ID) + "`"
}

func billSummary(bill models.Bill, now time.Time) string {
	line := fmt.Sprintf("**%s** · %s · %s", Plain(bill.ServiceName),
		Amount(bill.Amount, bill.Currency), DueLabel(bill, now))
	if bill.IsRecurring() {
		line += " · 🔄 " + rrule.HumanReadable(bill.Frequency)
	}
	if bill.IsAutoPay {
		line += " · autopay"
	}
	return line
}

// BillList renders a titled list addressed by short id, or a placeholder
// when empty.
func BillList(title string, bills []models.Bill, now time.Time) string {
	var b strings.Builder
	b.WriteString("**" + title + "**\n\n")
	if len(bills) == 0 {
		b.WriteString("• nothing here\n")
		return b.String()
	}
	for _, bill := range bills {
		b.WriteString(BillRefLine(bill, now))
		b.WriteByte('\n')
	}
	return b.String()
}

// BillDetail renders every user-facing field of a bill.
func BillDetail(bill models.Bill, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n", Plain(bill.ServiceName))
	fmt.Fprintf(&b, "Amount: %s\n", Amount(bill.Amount, bill.Currency))
	fmt.Fprintf(&b, "Due: %s (%s)\n", bill.DueDate.In(now.Location()).Format(dateLayout), DueLabel(bill, now))
	fmt.Fprintf(&b, "Category: %s\n", bill.Category)
	fmt.Fprintf(&b, "Repeats: %s\n", rrule.HumanReadable(bill.Frequency))
	if bill.NextOccurrence != nil {
		fmt.Fprintf(&b, "Next: %s\n", bill.NextOccurrence.In(now.Location()).Format(dateLayout))
	}
	if rrule.IsRecurring(bill.Frequency) {
		fmt.Fprintf(&b, "Rule: `%s`\n", rrule.NewBuilder(bill.Frequency, bill.DueDate).String())
		if upcoming, err := rrule.Occurrences(bill.DueDate, bill.Frequency, 3); err == nil && len(upcoming) > 0 {
			dates := make([]string, len(upcoming))
			for i, t := range upcoming {
				dates[i] = t.In(now.Location()).Format(dateLayout)
			}
			fmt.Fprintf(&b, "Upcoming: %s\n", strings.Join(dates, ", "))
		}
	}
	if offsets := bill.Offsets(); len(offsets) > 0 {
		parts := make([]string, len(offsets))
		for i, o := range offsets {
			parts[i] = fmt.Sprintf("%dd", o)
		}
		fmt.Fprintf(&b, "Reminders: %s before\n", strings.Join(parts, ", "))
	}
	if bill.ReferenceNumber != "" {
		fmt.Fprintf(&b, "Reference: `%s`\n", bill.ReferenceNumber)
	}
	if len(bill.Attachments) > 0 {
		fmt.Fprintf(&b, "Attachments: %d\n", len(bill.Attachments))
	}
	if bill.Notes != "" {
		b.WriteString("\n" + Plain(bill.Notes) + "\n")
	}
	return b.String()
}

// Notification renders a delivered reminder.
func Notification(n notify.Notification) string {
	icon := "⏰"
	switch n.Data[notify.DataKind] {
	case "vab":
		icon = "🧒"
	case "appointment":
		icon = "🩺"
	}
	text := icon + " **" + Plain(n.Title) + "**"
	if n.Body != "" {
		text += "\n\n" + Plain(n.Body)
	}
	return text
}

// Metrics renders the dashboard numbers.
func Metrics(m ledger.Metrics, currency string) string {
	var b strings.Builder
	b.WriteString("**Overview**\n\n")
	fmt.Fprintf(&b, "This month: %s\n", Amount(m.CurrentMonthTotal, currency))
	fmt.Fprintf(&b, "Last month: %s\n", Amount(m.PreviousMonthTotal, currency))
	fmt.Fprintf(&b, "Overdue: %d\n", m.OverdueCount)
	fmt.Fprintf(&b, "Due this week: %d\n", m.UpcomingWeekCount)
	if len(m.TopCategories) > 0 {
		b.WriteString("\n**Top categories**\n")
		for _, c := range m.TopCategories {
			fmt.Fprintf(&b, "• %s: %s\n", c.Category, Amount(c.Amount, currency))
		}
	}
	return b.String()
}

// DailySummary renders the morning digest. week holds scheduled bills due
// within seven days.
func DailySummary(now time.Time, overdue, week []models.Bill) string {
	var b strings.Builder
	fmt.Fprintf(&b, "☀️ **%s**\n\n📅 %s\n", greeting(now.Hour()), now.Format("2006-01-02 (Mon)"))

	b.WriteString("\n**Overdue**\n")
	if len(overdue) == 0 {
		b.WriteString("• nothing overdue\n")
	}
	for i, bill := range overdue {
		b.WriteString(BillLine(i+1, bill, now) + "\n")
	}

	b.WriteString("\n**Due this week**\n")
	if len(week) == 0 {
		b.WriteString("• no bills due\n")
	}
	for i, bill := range week {
		b.WriteString(BillLine(i+1, bill, now) + "\n")
	}
	return b.String()
}

// Family renders VAB entries and upcoming appointments.
func Family(entries []models.VabEntry, appointments []models.MedicalAppointment, vabDays int, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**VAB** (%d days in %d)\n", vabDays, now.Year())
	if len(entries) == 0 {
		b.WriteString("• no entries\n")
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "• %s: %s to %s (%d days)\n", Plain(e.ChildName),
			e.StartDate.In(now.Location()).Format(dateLayout), e.EndDate.In(now.Location()).Format(dateLayout), e.Days())
	}

	b.WriteString("\n**Appointments**\n")
	if len(appointments) == 0 {
		b.WriteString("• nothing booked\n")
	}
	for _, a := range appointments {
		line := fmt.Sprintf("• %s %s", a.Date.In(now.Location()).Format("2006-01-02 15:04"), Plain(a.Title))
		if a.PersonName != "" {
			line += " (" + Plain(a.PersonName) + ")"
		}
		if a.Location != "" {
			line += " @ " + Plain(a.Location)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func greeting(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "Good morning"
	case hour >= 12 && hour < 18:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}
