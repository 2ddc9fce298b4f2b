package memory

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
)

func TestNewSeedsDefaultOwner(t *testing.T) {
	s := New(DefaultSeeds)
	cats, err := s.ListCategories(context.Background(), core.DefaultOwner)
	require.NoError(t, err)
	require.Len(t, cats, len(DefaultSeeds))
	assert.Equal(t, "Bills & Utilities", cats[0].Name)
	assert.Equal(t, "#f59e0b", *cats[0].Color)
}

func TestNewFromFiles(t *testing.T) {
	dir := t.TempDir()

	s := NewFromFiles(dir)
	cats, _ := s.ListCategories(context.Background(), core.DefaultOwner)
	assert.Len(t, cats, len(DefaultSeeds), "defaults when file missing")

	content := "# comment\nRent #ff0000\n\nCoffee\nRent #00ff00\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed_categories.txt"), []byte(content), 0o644))

	s = NewFromFiles(dir)
	cats, _ = s.ListCategories(context.Background(), core.DefaultOwner)
	require.Len(t, cats, 2, "duplicate names are skipped")
	assert.Equal(t, "Coffee", cats[0].Name)
	assert.Nil(t, cats[0].Color)
	assert.Equal(t, "Rent", cats[1].Name)
	assert.Equal(t, "#ff0000", *cats[1].Color)
}

func TestConcurrentCreateCategoryHasOneWinner(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		conflicts int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateCategory(ctx, core.DefaultOwner, core.CategoryInput{Name: "Same"})
			if err != nil {
				assert.ErrorIs(t, err, core.ErrConflict)
				mu.Lock()
				conflicts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 19, conflicts)
}

func TestExpenseLifecycle(t *testing.T) {
	s := New(DefaultSeeds)
	ctx := context.Background()
	at := time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC)

	_, err := s.CreateExpense(ctx, core.DefaultOwner, core.ExpenseInput{CategoryID: 99, Amount: decimal.NewFromInt(1), OccurredAt: at})
	require.ErrorIs(t, err, core.ErrInvalidInput)

	a, err := s.CreateExpense(ctx, core.DefaultOwner, core.ExpenseInput{CategoryID: 1, Amount: decimal.NewFromInt(3), OccurredAt: at})
	require.NoError(t, err)
	b, err := s.CreateExpense(ctx, core.DefaultOwner, core.ExpenseInput{CategoryID: 2, Amount: decimal.NewFromInt(4), OccurredAt: at})
	require.NoError(t, err)

	got, err := s.ListExpenses(ctx, core.DefaultOwner, core.ExpenseFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b, got[0].ID)
	assert.Equal(t, "Food & Drink", *got[1].CategoryName)

	require.NoError(t, s.DeleteCategory(ctx, core.DefaultOwner, 1))
	e, err := s.GetExpense(ctx, core.DefaultOwner, a)
	require.NoError(t, err)
	assert.Nil(t, e.CategoryID)
	assert.Nil(t, e.CategoryName)

	require.ErrorIs(t, s.UpdateExpense(ctx, core.DefaultOwner, a, core.ExpenseInput{CategoryID: 1, Amount: decimal.NewFromInt(1), OccurredAt: at}), core.ErrInvalidInput)
	require.NoError(t, s.UpdateExpense(ctx, core.DefaultOwner, a, core.ExpenseInput{CategoryID: 2, Amount: decimal.NewFromInt(1), OccurredAt: at}))

	_, err = s.GetExpense(ctx, 9, a)
	require.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, s.DeleteExpense(ctx, core.DefaultOwner, a))
	require.ErrorIs(t, s.DeleteExpense(ctx, core.DefaultOwner, a), core.ErrNotFound)
}

func TestListExpensesByType(t *testing.T) {
	s := New(DefaultSeeds)
	ctx := context.Background()
	at := time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC)

	_, err := s.CreateExpense(ctx, core.DefaultOwner, core.ExpenseInput{CategoryID: 1, Amount: decimal.NewFromInt(3), OccurredAt: at})
	require.NoError(t, err)
	salary, err := s.CreateExpense(ctx, core.DefaultOwner, core.ExpenseInput{
		Type:       core.EntryIncome,
		CategoryID: 2,
		Amount:     decimal.NewFromInt(1500),
		OccurredAt: at,
	})
	require.NoError(t, err)

	income := core.EntryIncome
	got, err := s.ListExpenses(ctx, core.DefaultOwner, core.ExpenseFilter{Type: &income})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, salary, got[0].ID)

	expense := core.EntryExpense
	got, err = s.ListExpenses(ctx, core.DefaultOwner, core.ExpenseFilter{Type: &expense})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, core.EntryExpense, got[0].Type)
}
