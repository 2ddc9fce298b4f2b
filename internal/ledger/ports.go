// Package ledger declares the storage ports every ledger backend implements.
package ledger

import (
	"context"

	"ledger/internal/core"
)

// Ports for outbound adapters. Every call is scoped to an owner.
type (
	CategoryStore interface {
		// CreateCategory inserts a category, returning core.ErrConflict
		// when the owner already has one with the same name.
		CreateCategory(ctx context.Context, owner core.OwnerID, in core.CategoryInput) (core.Category, error)
		// ListCategories returns categories ordered by name.
		ListCategories(ctx context.Context, owner core.OwnerID) ([]core.Category, error)
		GetCategory(ctx context.Context, owner core.OwnerID, id int64) (core.Category, error)
		// DeleteCategory removes a category and detaches its expenses.
		DeleteCategory(ctx context.Context, owner core.OwnerID, id int64) error
	}

	ExpenseStore interface {
		// CreateExpense returns core.ErrInvalidInput when the category
		// does not exist for the owner.
		CreateExpense(ctx context.Context, owner core.OwnerID, in core.ExpenseInput) (int64, error)
		GetExpense(ctx context.Context, owner core.OwnerID, id int64) (core.Expense, error)
		UpdateExpense(ctx context.Context, owner core.OwnerID, id int64, in core.ExpenseInput) error
		DeleteExpense(ctx context.Context, owner core.OwnerID, id int64) error
	}

	// ExpenseReader is the range query the aggregation engine runs on.
	ExpenseReader interface {
		// ListExpenses returns expenses joined with their category,
		// newest first (occurred_at DESC, id DESC).
		ListExpenses(ctx context.Context, owner core.OwnerID, f core.ExpenseFilter) ([]core.Expense, error)
	}

	Store interface {
		CategoryStore
		ExpenseStore
		ExpenseReader
		Ping(ctx context.Context) error
		Close() error
	}
)
