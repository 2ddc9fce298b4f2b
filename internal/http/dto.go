package http

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

// Wire shapes. Money goes out as a JSON number carrying the exact decimal
// text, never through float64.

type categoryJSON struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Color     *string `json:"color"`
	CreatedAt string  `json:"created_at,omitempty"`
}

type expenseJSON struct {
	ID            int64       `json:"id"`
	Type          string      `json:"type"`
	CategoryID    *int64      `json:"category_id"`
	CategoryName  *string     `json:"category_name"`
	CategoryColor *string     `json:"category_color"`
	Amount        json.Number `json:"amount"`
	Note          *string     `json:"note"`
	OccurredAt    string      `json:"occurred_at"`
	CreatedAt     string      `json:"created_at"`
}

type dayTotalJSON struct {
	Day   string      `json:"day"`
	Total json.Number `json:"total"`
}

type categoryTotalJSON struct {
	ID    *int64      `json:"id"`
	Name  *string     `json:"name"`
	Color *string     `json:"color"`
	Total json.Number `json:"total"`
}

type monthlyJSON struct {
	Month         string              `json:"month"`
	Daily         []dayTotalJSON      `json:"daily"`
	DailyIncome   []dayTotalJSON      `json:"daily_income"`
	Categories    []categoryTotalJSON `json:"categories"`
	Total         json.Number         `json:"total"`
	AveragePerDay json.Number         `json:"average_per_day"`
	DaysWithData  int                 `json:"days_with_data"`
	Income        json.Number         `json:"income"`
	Balance       json.Number         `json:"balance"`
}

type idJSON struct {
	ID int64 `json:"id"`
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func timestamp(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(time.RFC3339)
}

func toCategoryJSON(c core.Category, loc *time.Location) categoryJSON {
	return categoryJSON{
		ID:        c.ID,
		Name:      c.Name,
		Color:     c.Color,
		CreatedAt: timestamp(c.CreatedAt, loc),
	}
}

func toCategoriesJSON(cats []core.Category, loc *time.Location) []categoryJSON {
	out := make([]categoryJSON, len(cats))
	for i, c := range cats {
		out[i] = toCategoryJSON(c, loc)
	}
	return out
}

func toExpenseJSON(e core.Expense, loc *time.Location) expenseJSON {
	return expenseJSON{
		ID:            e.ID,
		Type:          string(e.Type.OrExpense()),
		CategoryID:    e.CategoryID,
		CategoryName:  e.CategoryName,
		CategoryColor: e.CategoryColor,
		Amount:        number(e.Amount),
		Note:          e.Note,
		OccurredAt:    timestamp(e.OccurredAt, loc),
		CreatedAt:     timestamp(e.CreatedAt, loc),
	}
}

func toExpensesJSON(rows []core.Expense, loc *time.Location) []expenseJSON {
	out := make([]expenseJSON, len(rows))
	for i, e := range rows {
		out[i] = toExpenseJSON(e, loc)
	}
	return out
}

func toDailyJSON(days []core.DayTotal) []dayTotalJSON {
	out := make([]dayTotalJSON, len(days))
	for i, d := range days {
		out[i] = dayTotalJSON{Day: d.Day, Total: number(d.Total)}
	}
	return out
}

func toCategoryTotalsJSON(cats []core.CategoryTotal) []categoryTotalJSON {
	out := make([]categoryTotalJSON, len(cats))
	for i, c := range cats {
		out[i] = categoryTotalJSON{ID: c.ID, Name: c.Name, Color: c.Color, Total: number(c.Total)}
	}
	return out
}

func toMonthlyJSON(s core.MonthlySummary) monthlyJSON {
	return monthlyJSON{
		Month:         s.Month,
		Daily:         toDailyJSON(s.Daily),
		DailyIncome:   toDailyJSON(s.DailyIncome),
		Categories:    toCategoryTotalsJSON(s.Categories),
		Total:         number(s.Total),
		AveragePerDay: number(s.AveragePerDay),
		DaysWithData:  s.DaysWithData,
		Income:        number(s.Income),
		Balance:       number(s.Balance),
	}
}
