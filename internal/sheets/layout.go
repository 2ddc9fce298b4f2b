package sheets

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

// UncategorizedLabel names the bucket of expenses without a category.
const UncategorizedLabel = "Uncategorized"

// SheetTitle names the tab holding one month of one owner.
func SheetTitle(owner core.OwnerID, month string) string {
	if owner == core.DefaultOwner {
		return "Summary " + month
	}
	return fmt.Sprintf("Summary %s (owner %s)", month, owner)
}

// MonthlyRows lays a summary out as two-column rows: a header block, the
// daily expense totals and the category totals, separated by blank rows. Amounts
// are rendered with two decimals so the sheet parses them as numbers.
func MonthlyRows(s core.MonthlySummary) [][]any {
	rows := [][]any{
		{"Month", s.Month},
		{"Total", amount(s.Total)},
		{"Average per day", amount(s.AveragePerDay)},
		{"Days with data", s.DaysWithData},
		{"Income", amount(s.Income)},
		{"Balance", amount(s.Balance)},
		{},
		{"Day", "Total"},
	}
	for _, d := range s.Daily {
		rows = append(rows, []any{d.Day, amount(d.Total)})
	}

	rows = append(rows, []any{}, []any{"Category", "Total"})
	for _, c := range s.Categories {
		name := UncategorizedLabel
		if c.Name != nil {
			name = *c.Name
		}
		rows = append(rows, []any{name, amount(c.Total)})
	}
	return rows
}

func amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
