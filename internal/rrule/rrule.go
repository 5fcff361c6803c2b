package rrule

import (
	"fmt"
	"strings"
	"time"

	"github.com/hray3182/fakturavakt/internal/models"
	"github.com/teambition/rrule-go"
)

// Unit is the calendar unit a frequency advances by.
type Unit int

const (
	UnitWeek Unit = iota
	UnitMonth
	UnitYear
)

type step struct {
	unit   Unit
	amount int
}

// custom has no rule of its own yet and advances like monthly.
var steps = map[models.Frequency]step{
	models.FrequencyWeekly:       {UnitWeek, 1},
	models.FrequencyBiweekly:     {UnitWeek, 2},
	models.FrequencyMonthly:      {UnitMonth, 1},
	models.FrequencyBimonthly:    {UnitMonth, 2},
	models.FrequencyQuarterly:    {UnitMonth, 3},
	models.FrequencySemiannually: {UnitMonth, 6},
	models.FrequencyAnnually:     {UnitYear, 1},
	models.FrequencyCustom:       {UnitMonth, 1},
}

// Step returns the unit and amount a frequency advances by. ok is false for
// once and for any unknown frequency.
func Step(freq models.Frequency) (unit Unit, amount int, ok bool) {
	s, ok := steps[freq]
	return s.unit, s.amount, ok
}

// NextOccurrence returns the occurrence following due under freq, or nil for
// one-off bills. Unknown frequencies are treated like once.
//
// Month and year steps clamp to the last day of the target month, so Jan 31
// plus one month is Feb 28 (or 29) and Feb 29 plus one year is Feb 28. The
// wall-clock time of day is preserved.
func NextOccurrence(due time.Time, freq models.Frequency) *time.Time {
	unit, amount, ok := Step(freq)
	if !ok {
		return nil
	}

	var next time.Time
	switch unit {
	case UnitWeek:
		next = due.AddDate(0, 0, 7*amount)
	case UnitMonth:
		next = AddMonthsClamped(due, amount)
	case UnitYear:
		next = AddMonthsClamped(due, 12*amount)
	}
	return &next
}

// AddMonthsClamped adds n calendar months to t, clamping the day to the
// length of the target month.
func AddMonthsClamped(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	firstOfTarget := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := DaysIn(firstOfTarget.Year(), firstOfTarget.Month())
	if day > last {
		day = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// RRuleBuilder creates an RFC 5545 rule for a bill cadence
type RRuleBuilder struct {
	Freq       rrule.Frequency
	Interval   int
	ByMonth    []int
	ByMonthDay []int
	BySetPos   []int
	Count      int
}

// NewBuilder returns the rule describing freq anchored at dtstart. Days past
// the 28th are expressed as "last of 28..day" so short months clamp the same
// way NextOccurrence does.
func NewBuilder(freq models.Frequency, dtstart time.Time) *RRuleBuilder {
	unit, amount, ok := Step(freq)
	if !ok {
		return &RRuleBuilder{Freq: rrule.DAILY, Interval: 1, Count: 1}
	}

	switch unit {
	case UnitWeek:
		return &RRuleBuilder{Freq: rrule.WEEKLY, Interval: amount}
	case UnitYear:
		b := &RRuleBuilder{Freq: rrule.YEARLY, Interval: amount, ByMonth: []int{int(dtstart.Month())}}
		if dtstart.Month() == time.February && dtstart.Day() == 29 {
			b.ByMonthDay = []int{28, 29}
			b.BySetPos = []int{-1}
		}
		return b
	default:
		b := &RRuleBuilder{Freq: rrule.MONTHLY, Interval: amount}
		if day := dtstart.Day(); day > 28 {
			for d := 28; d <= day; d++ {
				b.ByMonthDay = append(b.ByMonthDay, d)
			}
			b.BySetPos = []int{-1}
		}
		return b
	}
}

func (b *RRuleBuilder) Build(dtstart time.Time) (*rrule.RRule, error) {
	opt := rrule.ROption{
		Freq:     b.Freq,
		Interval: b.Interval,
		Dtstart:  dtstart,
	}

	if len(b.ByMonth) > 0 {
		opt.Bymonth = b.ByMonth
	}
	if len(b.ByMonthDay) > 0 {
		opt.Bymonthday = b.ByMonthDay
	}
	if len(b.BySetPos) > 0 {
		opt.Bysetpos = b.BySetPos
	}
	if b.Count > 0 {
		opt.Count = b.Count
	}

	return rrule.NewRRule(opt)
}

func (b *RRuleBuilder) String() string {
	var parts []string

	freqMap := map[rrule.Frequency]string{
		rrule.DAILY:   "DAILY",
		rrule.WEEKLY:  "WEEKLY",
		rrule.MONTHLY: "MONTHLY",
		rrule.YEARLY:  "YEARLY",
	}
	parts = append(parts, fmt.Sprintf("FREQ=%s", freqMap[b.Freq]))

	if b.Interval > 1 {
		parts = append(parts, fmt.Sprintf("INTERVAL=%d", b.Interval))
	}
	if len(b.ByMonth) > 0 {
		parts = append(parts, "BYMONTH="+joinInts(b.ByMonth))
	}
	if len(b.ByMonthDay) > 0 {
		parts = append(parts, "BYMONTHDAY="+joinInts(b.ByMonthDay))
	}
	if len(b.BySetPos) > 0 {
		parts = append(parts, "BYSETPOS="+joinInts(b.BySetPos))
	}
	if b.Count > 0 {
		parts = append(parts, fmt.Sprintf("COUNT=%d", b.Count))
	}

	return strings.Join(parts, ";")
}

func joinInts(values []int) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(out, ",")
}

// Occurrences returns up to count occurrences strictly after due. One-off
// bills have none.
func Occurrences(due time.Time, freq models.Frequency, count int) ([]time.Time, error) {
	if _, _, ok := Step(freq); !ok || count <= 0 {
		return nil, nil
	}

	dtstart := due.Truncate(time.Second)
	rule, err := NewBuilder(freq, dtstart).Build(dtstart)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule for %s: %w", freq, err)
	}

	iterator := rule.Iterator()
	var results []time.Time
	for i := 0; i < count*4+4; i++ { // Safety limit
		next, ok := iterator()
		if !ok {
			break
		}
		if next.After(dtstart) {
			results = append(results, next)
			if len(results) >= count {
				break
			}
		}
	}

	return results, nil
}

// HumanReadable returns an English label for the cadence
func HumanReadable(freq models.Frequency) string {
	switch freq {
	case models.FrequencyOnce:
		return "one-off"
	case models.FrequencyWeekly:
		return "every week"
	case models.FrequencyBiweekly:
		return "every 2 weeks"
	case models.FrequencyMonthly:
		return "every month"
	case models.FrequencyBimonthly:
		return "every 2 months"
	case models.FrequencyQuarterly:
		return "every quarter"
	case models.FrequencySemiannually:
		return "every 6 months"
	case models.FrequencyAnnually:
		return "every year"
	case models.FrequencyCustom:
		return "custom (monthly)"
	default:
		return "one-off"
	}
}

// IsRecurring checks if the frequency produces further occurrences
func IsRecurring(freq models.Frequency) bool {
	_, _, ok := Step(freq)
	return ok
}
