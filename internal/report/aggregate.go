// Package report turns ranges of expenses into daily, category and monthly
// summaries.
//
// The reducers in this file are pure: they take rows already read from a
// store and never touch I/O, so every storage adapter shares one definition
// of the windows and groupings.
package report

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

const (
	DefaultDailyDays    = 7
	DefaultCategoryDays = 30
	// MaxDays bounds a rolling window to ten years.
	MaxDays = 3660
)

// NormalizeDays reads a days query value. Missing or unparsable input
// yields def; values below one clamp to one.
func NormalizeDays(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	if n < 1 {
		return 1
	}
	if n > MaxDays {
		return MaxDays
	}
	return n
}

// ResolveMonth reads a YYYY-MM query value, falling back to the month
// containing now in loc.
func ResolveMonth(raw string, now time.Time, loc *time.Location) core.Month {
	if m, err := core.ParseMonth(raw); err == nil {
		return m
	}
	return core.MonthOf(now, loc)
}

// Window returns the inclusive rolling window [start of day (now - days), now].
func Window(now time.Time, days int, loc *time.Location) (time.Time, time.Time) {
	from := core.StartOfDay(now.In(loc).AddDate(0, 0, -days), loc)
	return from, now
}

// DailyTotals sums rows per calendar day in loc, ascending. Days without
// expenses are omitted.
func DailyTotals(rows []core.Expense, loc *time.Location) []core.DayTotal {
	sums := make(map[string]decimal.Decimal)
	for _, r := range rows {
		day := core.DayKey(r.OccurredAt, loc)
		sums[day] = sums[day].Add(r.Amount)
	}

	out := make([]core.DayTotal, 0, len(sums))
	for day, total := range sums {
		out = append(out, core.DayTotal{Day: day, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

// CategoryTotals sums rows per category, largest total first. Ties go to
// the lower category id; the uncategorized bucket sorts after its peers.
func CategoryTotals(rows []core.Expense) []core.CategoryTotal {
	type bucketKey struct {
		id    int64
		valid bool
	}
	buckets := make(map[bucketKey]*core.CategoryTotal)
	order := make([]bucketKey, 0)

	for _, r := range rows {
		k := bucketKey{}
		if r.CategoryID != nil {
			k = bucketKey{id: *r.CategoryID, valid: true}
		}
		b, ok := buckets[k]
		if !ok {
			b = &core.CategoryTotal{Total: decimal.Zero}
			if k.valid {
				id := k.id
				b.ID = &id
				b.Name = r.CategoryName
				b.Color = r.CategoryColor
			}
			buckets[k] = b
			order = append(order, k)
		}
		b.Total = b.Total.Add(r.Amount)
	}

	out := make([]core.CategoryTotal, 0, len(order))
	for _, k := range order {
		out = append(out, *buckets[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		if out[i].ID == nil || out[j].ID == nil {
			return out[j].ID == nil && out[i].ID != nil
		}
		return *out[i].ID < *out[j].ID
	})
	return out
}

// SplitByType separates income rows from expense rows. Untyped rows are
// expenses.
func SplitByType(rows []core.Expense) (expenses, income []core.Expense) {
	expenses = make([]core.Expense, 0, len(rows))
	for _, r := range rows {
		if r.Type == core.EntryIncome {
			income = append(income, r)
			continue
		}
		expenses = append(expenses, r)
	}
	return expenses, income
}

// Monthly builds the summary of month from rows that fall inside it.
func Monthly(month core.Month, rows []core.Expense, loc *time.Location) core.MonthlySummary {
	expenses, income := SplitByType(rows)
	daily := DailyTotals(expenses, loc)

	total := decimal.Zero
	for _, r := range expenses {
		total = total.Add(r.Amount)
	}
	earned := decimal.Zero
	for _, r := range income {
		earned = earned.Add(r.Amount)
	}

	avg := decimal.Zero
	if days := month.Days(); days > 0 {
		avg = total.DivRound(decimal.NewFromInt(int64(days)), 2)
	}

	return core.MonthlySummary{
		Month:         month.String(),
		Daily:         daily,
		DailyIncome:   DailyTotals(income, loc),
		Categories:    CategoryTotals(expenses),
		Total:         total,
		AveragePerDay: avg,
		DaysWithData:  len(daily),
		Income:        earned,
		Balance:       earned.Sub(total),
	}
}
