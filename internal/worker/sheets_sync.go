// Package worker keeps the spreadsheet export in step with the ledger.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/sheets"
)

// Summaries is the slice of the ledger service the worker reads from. The
// owner travels in the context.
type Summaries interface {
	Location() *time.Location
	MonthlySummary(ctx context.Context, rawMonth string) (core.MonthlySummary, error)
}

// SheetsSync rewrites the summary tab of every month a ledger event touches.
type SheetsSync struct {
	summaries Summaries
	writer    sheets.SummaryWriter
	now       func() time.Time
}

func NewSheetsSync(summaries Summaries, writer sheets.SummaryWriter) *SheetsSync {
	return &SheetsSync{
		summaries: summaries,
		writer:    writer,
		now:       time.Now,
	}
}

// HandleLedgerEvent re-exports the months listed in event. Category events
// carry no months; they refresh the current month only.
func (w *SheetsSync) HandleLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error {
	owner := core.OwnerID(event.OwnerID)

	months := make([]string, 0, len(event.Months))
	for _, raw := range event.Months {
		if _, err := core.ParseMonth(raw); err != nil {
			slog.WarnContext(ctx, "Skipping unparsable month in ledger event",
				log.FieldComponent, log.ComponentSheets,
				log.FieldMonth, raw,
				"type", event.Type)
			continue
		}
		months = append(months, raw)
	}
	if len(months) == 0 {
		months = append(months, w.currentMonth())
	}

	slog.InfoContext(ctx, "Processing ledger event",
		"type", event.Type,
		"origin", event.Origin,
		log.FieldOwnerID, event.OwnerID,
		"months", months)

	for _, m := range months {
		if _, err := w.Export(ctx, owner, m); err != nil {
			return err
		}
	}
	return nil
}

// Export summarizes month for owner and writes it. An empty month is the
// current month in the reporting location.
func (w *SheetsSync) Export(ctx context.Context, owner core.OwnerID, month string) (string, error) {
	if month == "" {
		month = w.currentMonth()
	}

	summary, err := w.summaries.MonthlySummary(core.WithOwner(ctx, owner), month)
	if err != nil {
		return "", fmt.Errorf("summarize %s: %w", month, err)
	}
	ref, err := w.writer.WriteMonthlySummary(ctx, owner, summary)
	if err != nil {
		return "", fmt.Errorf("export %s: %w", month, err)
	}

	slog.InfoContext(ctx, "Exported monthly summary",
		log.FieldOperation, log.OpExport,
		log.FieldOwnerID, int64(owner),
		log.FieldMonth, summary.Month,
		"sheets_ref", ref)
	return ref, nil
}

// StartupSync exports the current month of each owner, covering events
// missed while the worker was down.
func (w *SheetsSync) StartupSync(ctx context.Context, owners ...core.OwnerID) error {
	synced, failed := 0, 0
	for _, owner := range owners {
		if _, err := w.Export(ctx, owner, ""); err != nil {
			slog.ErrorContext(ctx, "Startup export failed",
				log.FieldOwnerID, int64(owner),
				log.FieldError, err)
			failed++
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(owners),
		"synced", synced,
		"errors", failed)
	if failed > 0 && synced == 0 {
		return fmt.Errorf("startup sync: all %d exports failed", failed)
	}
	return nil
}

func (w *SheetsSync) currentMonth() string {
	return core.MonthOf(w.now(), w.summaries.Location()).String()
}
