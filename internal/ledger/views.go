package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hray3182/fakturavakt/internal/lifecycle"
	"github.com/hray3182/fakturavakt/internal/models"
	"github.com/shopspring/decimal"
)

const topCategoryCount = 3

var (
	ErrBillNotFound  = errors.New("bill not found")
	ErrAmbiguousBill = errors.New("bill reference is ambiguous")
)

type CategoryTotal struct {
	Category models.Category `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// Metrics summarises the ledger. Amounts are summed regardless of currency.
type Metrics struct {
	CurrentMonthTotal  decimal.Decimal `json:"current_month_total"`
	PreviousMonthTotal decimal.Decimal `json:"previous_month_total"`
	OverdueCount       int             `json:"overdue_count"`
	UpcomingWeekCount  int             `json:"upcoming_week_count"`
	TopCategories      []CategoryTotal `json:"top_categories"`
}

// Bill returns a copy of the bill with the given id.
func (l *BillLedger) Bill(id string) (models.Bill, bool) {
	bills := l.snapshot()
	for _, b := range bills {
		if b.ID == id {
			return b, true
		}
	}
	return models.Bill{}, false
}

// FindBill resolves a bill by its id or by a prefix matching exactly one id.
func (l *BillLedger) FindBill(ref string) (models.Bill, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return models.Bill{}, fmt.Errorf("%w: empty id", ErrBillNotFound)
	}

	var matches []models.Bill
	for _, b := range l.snapshot() {
		if b.ID == ref {
			return b, nil
		}
		if strings.HasPrefix(b.ID, ref) {
			matches = append(matches, b)
		}
	}
	switch len(matches) {
	case 0:
		return models.Bill{}, fmt.Errorf("%w: no bill with id %q", ErrBillNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return models.Bill{}, fmt.Errorf("%w: id prefix %q matches %d bills", ErrAmbiguousBill, ref, len(matches))
	}
}

// Bills returns every bill, earliest due first.
func (l *BillLedger) Bills() []models.Bill {
	bills := l.snapshot()
	sortByDue(bills)
	return bills
}

// UpcomingBills returns scheduled bills, earliest due first.
func (l *BillLedger) UpcomingBills() []models.Bill {
	bills := filterStatus(l.snapshot(), models.StatusScheduled)
	sortByDue(bills)
	return bills
}

// OverdueBills returns overdue bills, earliest due first.
func (l *BillLedger) OverdueBills() []models.Bill {
	bills := filterStatus(l.snapshot(), models.StatusOverdue)
	sortByDue(bills)
	return bills
}

// PaidBills returns paid bills, most recently paid first. Bills without a
// payment timestamp sort last.
func (l *BillLedger) PaidBills() []models.Bill {
	bills := filterStatus(l.snapshot(), models.StatusPaid)
	sort.SliceStable(bills, func(i, j int) bool {
		a, b := bills[i].PaidAt, bills[j].PaidAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return bills
}

// PausedBills returns paused bills, earliest due first.
func (l *BillLedger) PausedBills() []models.Bill {
	bills := filterStatus(l.snapshot(), models.StatusPaused)
	sortByDue(bills)
	return bills
}

func (l *BillLedger) Metrics() Metrics {
	now := l.now()
	bills := l.snapshot()

	currentStart := lifecycle.StartOfMonth(now)
	nextStart := currentStart.AddDate(0, 1, 0)
	previousStart := currentStart.AddDate(0, -1, 0)
	today := lifecycle.StartOfDay(now)
	weekEnd := now.AddDate(0, 0, 7)

	m := Metrics{
		CurrentMonthTotal:  decimal.Zero,
		PreviousMonthTotal: decimal.Zero,
	}
	totals := make(map[models.Category]decimal.Decimal)

	for _, b := range bills {
		due := b.DueDate.In(now.Location())
		switch {
		case !due.Before(currentStart) && due.Before(nextStart):
			m.CurrentMonthTotal = m.CurrentMonthTotal.Add(b.Amount)
		case !due.Before(previousStart) && due.Before(currentStart):
			m.PreviousMonthTotal = m.PreviousMonthTotal.Add(b.Amount)
		}

		if b.Status == models.StatusOverdue {
			m.OverdueCount++
		}
		if !due.Before(today) && due.Before(weekEnd) {
			m.UpcomingWeekCount++
		}

		totals[b.Category] = totals[b.Category].Add(b.Amount)
	}

	for category, amount := range totals {
		m.TopCategories = append(m.TopCategories, CategoryTotal{Category: category, Amount: amount})
	}
	sort.Slice(m.TopCategories, func(i, j int) bool {
		a, b := m.TopCategories[i], m.TopCategories[j]
		if cmp := a.Amount.Cmp(b.Amount); cmp != 0 {
			return cmp > 0
		}
		return a.Category < b.Category
	})
	if len(m.TopCategories) > topCategoryCount {
		m.TopCategories = m.TopCategories[:topCategoryCount]
	}

	return m
}

// snapshot copies the collection with each status derived at the current
// instant, so reads never show a status the clock has moved past.
func (l *BillLedger) snapshot() []models.Bill {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.Bill, len(l.bills))
	for i, b := range l.bills {
		out[i] = b.Clone()
		out[i].Status = lifecycle.DeriveStatus(out[i], now)
	}
	return out
}

func filterStatus(bills []models.Bill, status models.BillStatus) []models.Bill {
	out := bills[:0]
	for _, b := range bills {
		if b.Status == status {
			out = append(out, b)
		}
	}
	return out
}

func sortByDue(bills []models.Bill) {
	sort.SliceStable(bills, func(i, j int) bool {
		return bills[i].DueDate.Before(bills[j].DueDate)
	})
}
