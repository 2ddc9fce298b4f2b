package report

import (
	"context"
	"fmt"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// Summarizer is what the API layer needs from an engine.
type Summarizer interface {
	Daily(ctx context.Context, owner core.OwnerID, days int) ([]core.DayTotal, error)
	Categories(ctx context.Context, owner core.OwnerID, days int) ([]core.CategoryTotal, error)
	Monthly(ctx context.Context, owner core.OwnerID, month core.Month) (core.MonthlySummary, error)
}

// Engine reads a window from the store and reduces it in memory. Rolling
// windows cover expense entries only.
type Engine struct {
	store ledger.ExpenseReader
	loc   *time.Location
	now   func() time.Time
}

var _ Summarizer = (*Engine)(nil)

// NewEngine buckets days in loc; a nil loc means UTC.
func NewEngine(store ledger.ExpenseReader, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{store: store, loc: loc, now: time.Now}
}

// Location is the reporting location every window is computed in.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Now returns the engine clock reading.
func (e *Engine) Now() time.Time {
	return e.now()
}

func (e *Engine) Daily(ctx context.Context, owner core.OwnerID, days int) ([]core.DayTotal, error) {
	rows, err := e.window(ctx, owner, days)
	if err != nil {
		return nil, fmt.Errorf("daily summary: %w", err)
	}
	return DailyTotals(rows, e.loc), nil
}

func (e *Engine) Categories(ctx context.Context, owner core.OwnerID, days int) ([]core.CategoryTotal, error) {
	rows, err := e.window(ctx, owner, days)
	if err != nil {
		return nil, fmt.Errorf("category summary: %w", err)
	}
	return CategoryTotals(rows), nil
}

func (e *Engine) Monthly(ctx context.Context, owner core.OwnerID, month core.Month) (core.MonthlySummary, error) {
	from, to := month.Start(e.loc), month.End(e.loc)
	rows, err := e.store.ListExpenses(ctx, owner, core.ExpenseFilter{From: &from, To: &to})
	if err != nil {
		return core.MonthlySummary{}, fmt.Errorf("monthly summary %s: %w", month, err)
	}
	return Monthly(month, rows, e.loc), nil
}

func (e *Engine) window(ctx context.Context, owner core.OwnerID, days int) ([]core.Expense, error) {
	from, to := Window(e.now(), days, e.loc)
	expense := core.EntryExpense
	return e.store.ListExpenses(ctx, owner, core.ExpenseFilter{From: &from, To: &to, Type: &expense})
}
