// Package sqlite stores the ledger in a SQLite database file.
//
// Timestamps are stored as fixed-width UTC text so that range filters can
// compare them lexically. Amounts are stored as decimal text.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

const timeLayout = "2006-01-02T15:04:05Z"

var _ ledger.Store = (*Repository)(nil)

type Repository struct {
	db *sql.DB
}

func dsn(dbPath string) string {
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// NewRepository opens the database at dbPath, creating its directory, and
// applies pending migrations.
func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) CreateCategory(ctx context.Context, owner core.OwnerID, in core.CategoryInput) (core.Category, error) {
	c := core.Category{OwnerID: owner, Name: in.Name, Color: in.Color}

	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO categories (owner_id, name, color) VALUES (?, ?, ?)
		 ON CONFLICT (owner_id, name) DO NOTHING
		 RETURNING id, created_at`,
		int64(owner), in.Name, nullString(in.Color),
	).Scan(&c.ID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.Conflict("Category already exists.")
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}

	slog.InfoContext(ctx, "Category saved to SQLite", "id", c.ID, "owner_id", int64(owner), "name", c.Name)
	return c, nil
}

func (r *Repository) ListCategories(ctx context.Context, owner core.OwnerID) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, name, color, created_at FROM categories
		 WHERE owner_id = ? ORDER BY name ASC, id ASC`, int64(owner))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := make([]core.Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("list categories: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

func (r *Repository) GetCategory(ctx context.Context, owner core.OwnerID, id int64) (core.Category, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, color, created_at FROM categories
		 WHERE id = ? AND owner_id = ?`, id, int64(owner))
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.NotFound("Not found")
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %d: %w", id, err)
	}
	return c, nil
}

func (r *Repository) DeleteCategory(ctx context.Context, owner core.OwnerID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ? AND owner_id = ?`, id, int64(owner))
	if err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	} else if n == 0 {
		return core.NotFound("Not found")
	}

	slog.InfoContext(ctx, "Category deleted from SQLite", "id", id, "owner_id", int64(owner))
	return nil
}

func (r *Repository) CreateExpense(ctx context.Context, owner core.OwnerID, in core.ExpenseInput) (int64, error) {
	// The category must belong to the owner; selecting it makes the insert
	// a no-op otherwise.
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO expenses (owner_id, category_id, type, amount, note, occurred_at)
		 SELECT ?, c.id, ?, ?, ?, ? FROM categories c WHERE c.id = ? AND c.owner_id = ?
		 RETURNING id`,
		int64(owner), string(in.Type.OrExpense()), in.Amount.String(), nullString(in.Note), formatTime(in.OccurredAt),
		in.CategoryID, int64(owner),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || isForeignKeyViolation(err) {
		return 0, core.Invalid("Category does not exist.")
	}
	if err != nil {
		return 0, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", id,
		"owner_id", int64(owner),
		"category_id", in.CategoryID,
		"type", string(in.Type.OrExpense()),
		"amount", in.Amount.String(),
		"occurred_at", formatTime(in.OccurredAt))
	return id, nil
}

func (r *Repository) GetExpense(ctx context.Context, owner core.OwnerID, id int64) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, selectExpense+` WHERE e.id = ? AND e.owner_id = ?`, id, int64(owner))
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.NotFound("Not found")
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return e, nil
}

func (r *Repository) UpdateExpense(ctx context.Context, owner core.OwnerID, id int64, in core.ExpenseInput) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET category_id = ?, type = ?, amount = ?, note = ?, occurred_at = ?
		 WHERE id = ? AND owner_id = ?
		   AND EXISTS (SELECT 1 FROM categories c WHERE c.id = ? AND c.owner_id = ?)`,
		in.CategoryID, string(in.Type.OrExpense()), in.Amount.String(), nullString(in.Note), formatTime(in.OccurredAt),
		id, int64(owner), in.CategoryID, int64(owner))
	if isForeignKeyViolation(err) {
		return core.Invalid("Category does not exist.")
	}
	if err != nil {
		return fmt.Errorf("update expense %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update expense %d: %w", id, err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM expenses WHERE id = ? AND owner_id = ?)`, id, int64(owner),
	).Scan(&exists); err != nil {
		return fmt.Errorf("update expense %d: %w", id, err)
	}
	if !exists {
		return core.NotFound("Not found")
	}
	return core.Invalid("Category does not exist.")
}

func (r *Repository) DeleteExpense(ctx context.Context, owner core.OwnerID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ? AND owner_id = ?`, id, int64(owner))
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	} else if n == 0 {
		return core.NotFound("Not found")
	}
	return nil
}

const selectExpense = `SELECT e.id, e.owner_id, e.category_id, c.name, c.color, e.type, e.amount, e.note, e.occurred_at, e.created_at
	FROM expenses e LEFT JOIN categories c ON c.id = e.category_id`

func (r *Repository) ListExpenses(ctx context.Context, owner core.OwnerID, f core.ExpenseFilter) ([]core.Expense, error) {
	var (
		q    strings.Builder
		args = []any{int64(owner)}
	)
	q.WriteString(selectExpense)
	q.WriteString(` WHERE e.owner_id = ?`)
	if f.From != nil {
		q.WriteString(` AND e.occurred_at >= ?`)
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		q.WriteString(` AND e.occurred_at <= ?`)
		args = append(args, formatTime(*f.To))
	}
	if f.CategoryID != nil {
		q.WriteString(` AND e.category_id = ?`)
		args = append(args, *f.CategoryID)
	}
	if f.Type != nil {
		q.WriteString(` AND e.type = ?`)
		args = append(args, string(*f.Type))
	}
	q.WriteString(` ORDER BY e.occurred_at DESC, e.id DESC`)
	if f.Limit > 0 {
		q.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("list expenses: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCategory(s scanner) (core.Category, error) {
	var (
		c         core.Category
		owner     int64
		color     sql.NullString
		createdAt string
	)
	if err := s.Scan(&c.ID, &owner, &c.Name, &color, &createdAt); err != nil {
		return core.Category{}, err
	}
	c.OwnerID = core.OwnerID(owner)
	c.Color = stringPtr(color)

	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Category{}, err
	}
	return c, nil
}

func scanExpense(s scanner) (core.Expense, error) {
	var (
		e                     core.Expense
		owner                 int64
		categoryID            sql.NullInt64
		categoryName, color   sql.NullString
		entryType, amount     string
		note                  sql.NullString
		occurredAt, createdAt string
	)
	if err := s.Scan(&e.ID, &owner, &categoryID, &categoryName, &color, &entryType, &amount, &note, &occurredAt, &createdAt); err != nil {
		return core.Expense{}, err
	}
	e.OwnerID = core.OwnerID(owner)
	e.Type = core.EntryType(entryType)
	if categoryID.Valid {
		id := categoryID.Int64
		e.CategoryID = &id
	}
	e.CategoryName = stringPtr(categoryName)
	e.CategoryColor = stringPtr(color)
	e.Note = stringPtr(note)

	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Expense{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if e.OccurredAt, err = parseTime(occurredAt); err != nil {
		return core.Expense{}, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
