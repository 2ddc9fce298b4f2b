package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/report"
	"ledger/internal/services"
	"ledger/internal/storage/memory"
)

type write struct {
	owner   core.OwnerID
	summary core.MonthlySummary
}

type recordingWriter struct {
	writes []write
	err    error
}

func (w *recordingWriter) WriteMonthlySummary(_ context.Context, owner core.OwnerID, s core.MonthlySummary) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	w.writes = append(w.writes, write{owner: owner, summary: s})
	return "'Summary " + s.Month + "'!A1:B9", nil
}

func newSync(t *testing.T) (*SheetsSync, *memory.Store, *recordingWriter) {
	t.Helper()
	store := memory.New(memory.DefaultSeeds)
	svc := services.NewLedgerService(store, report.NewEngine(store, time.UTC), time.UTC)
	w := &recordingWriter{}
	s := NewSheetsSync(svc, w)
	s.now = func() time.Time { return time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC) }
	return s, store, w
}

func TestSheetsSync_Export(t *testing.T) {
	s, store, w := newSync(t)
	_, err := store.CreateExpense(context.Background(), core.DefaultOwner, core.ExpenseInput{
		CategoryID: 1,
		Amount:     decimal.RequireFromString("9.99"),
		OccurredAt: time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	ref, err := s.Export(context.Background(), core.DefaultOwner, "2024-02")
	require.NoError(t, err)
	assert.Equal(t, "'Summary 2024-02'!A1:B9", ref)
	require.Len(t, w.writes, 1)
	assert.Equal(t, "9.99", w.writes[0].summary.Total.String())

	_, err = s.Export(context.Background(), 4, "")
	require.NoError(t, err)
	require.Len(t, w.writes, 2)
	assert.Equal(t, core.OwnerID(4), w.writes[1].owner)
	assert.Equal(t, "2024-04", w.writes[1].summary.Month)
	assert.True(t, w.writes[1].summary.Total.IsZero(), "other owners see nothing")
}

func TestSheetsSync_HandleLedgerEvent(t *testing.T) {
	s, _, w := newSync(t)
	ctx := context.Background()

	event := amqp.NewLedgerEvent(amqp.EventExpenseUpdated, 3)
	event.Months = []string{"2024-01", "bogus", "2024-03"}
	require.NoError(t, s.HandleLedgerEvent(ctx, event))
	require.Len(t, w.writes, 2)
	assert.Equal(t, "2024-01", w.writes[0].summary.Month)
	assert.Equal(t, "2024-03", w.writes[1].summary.Month)
	assert.Equal(t, core.OwnerID(3), w.writes[1].owner)

	w.writes = nil
	require.NoError(t, s.HandleLedgerEvent(ctx, amqp.NewLedgerEvent(amqp.EventCategoryDeleted, 0)))
	require.Len(t, w.writes, 1)
	assert.Equal(t, "2024-04", w.writes[0].summary.Month, "category events refresh the current month")
}

func TestSheetsSync_WriteFailure(t *testing.T) {
	s, _, w := newSync(t)
	w.err = errors.New("quota exceeded")

	event := amqp.NewLedgerEvent(amqp.EventExpenseCreated, 0)
	event.Months = []string{"2024-02"}
	err := s.HandleLedgerEvent(context.Background(), event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export 2024-02")

	assert.Error(t, s.StartupSync(context.Background(), 0, 1))
	w.err = nil
	assert.NoError(t, s.StartupSync(context.Background(), 0, 1))
	assert.Len(t, w.writes, 2)
}
