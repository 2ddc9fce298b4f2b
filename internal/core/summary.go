package core

import "github.com/shopspring/decimal"

// DayTotal is the sum of expenses on one calendar day.
type DayTotal struct {
	Day   string
	Total decimal.Decimal
}

// CategoryTotal is the sum of expenses for one category. A nil ID is the
// bucket of expenses without a category.
type CategoryTotal struct {
	ID    *int64
	Name  *string
	Color *string
	Total decimal.Decimal
}

// MonthlySummary is a compact summary for one calendar month. Daily,
// Categories, Total and AveragePerDay cover expenses. DailyIncome and Income
// cover income entries; Balance is Income minus Total.
type MonthlySummary struct {
	Month         string
	Daily         []DayTotal
	DailyIncome   []DayTotal
	Categories    []CategoryTotal
	Total         decimal.Decimal
	AveragePerDay decimal.Decimal
	DaysWithData  int
	Income        decimal.Decimal
	Balance       decimal.Decimal
}
