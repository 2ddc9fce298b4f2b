// Package postgres stores the ledger in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

const foreignKeyViolation = "23503"

var _ ledger.Store = (*Repository)(nil)

type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository migrates the database and opens a connection pool.
func NewRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{pool: pool}, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

func (r *Repository) CreateCategory(ctx context.Context, owner core.OwnerID, in core.CategoryInput) (core.Category, error) {
	c := core.Category{OwnerID: owner, Name: in.Name, Color: in.Color}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO categories (owner_id, name, color) VALUES ($1, $2, $3)
		 ON CONFLICT (owner_id, name) DO NOTHING
		 RETURNING id, created_at`,
		int64(owner), in.Name, in.Color,
	).Scan(&c.ID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Category{}, core.Conflict("Category already exists.")
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}

	slog.InfoContext(ctx, "Category saved to Postgres", "id", c.ID, "owner_id", int64(owner), "name", c.Name)
	return c, nil
}

func (r *Repository) ListCategories(ctx context.Context, owner core.OwnerID) ([]core.Category, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, owner_id, name, color, created_at FROM categories
		 WHERE owner_id = $1 ORDER BY name ASC, id ASC`, int64(owner))
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
	c, err := scanCategory(r.pool.QueryRow(ctx,
		`SELECT id, owner_id, name, color, created_at FROM categories
		 WHERE id = $1 AND owner_id = $2`, id, int64(owner)))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Category{}, core.NotFound("Not found")
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %d: %w", id, err)
	}
	return c, nil
}

func (r *Repository) DeleteCategory(ctx context.Context, owner core.OwnerID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1 AND owner_id = $2`, id, int64(owner))
	if err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound("Not found")
	}

	slog.InfoContext(ctx, "Category deleted from Postgres", "id", id, "owner_id", int64(owner))
	return nil
}

func (r *Repository) CreateExpense(ctx context.Context, owner core.OwnerID, in core.ExpenseInput) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO expenses (owner_id, category_id, type, amount, note, occurred_at)
		 SELECT $1::bigint, c.id, $6::text, $2::numeric, $3::text, $4::timestamptz
		 FROM categories c WHERE c.id = $5 AND c.owner_id = $1
		 RETURNING id`,
		int64(owner), in.Amount.String(), in.Note, in.OccurredAt.UTC(), in.CategoryID, string(in.Type.OrExpense()),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) || isForeignKeyViolation(err) {
		return 0, core.Invalid("Category does not exist.")
	}
	if err != nil {
		return 0, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to Postgres",
		"id", id,
		"owner_id", int64(owner),
		"category_id", in.CategoryID,
		"type", string(in.Type.OrExpense()),
		"amount", in.Amount.String())
	return id, nil
}

func (r *Repository) GetExpense(ctx context.Context, owner core.OwnerID, id int64) (core.Expense, error) {
	e, err := scanExpense(r.pool.QueryRow(ctx, selectExpense+` WHERE e.id = $1 AND e.owner_id = $2`, id, int64(owner)))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, core.NotFound("Not found")
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return e, nil
}

func (r *Repository) UpdateExpense(ctx context.Context, owner core.OwnerID, id int64, in core.ExpenseInput) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE expenses SET category_id = $1, amount = $2::numeric, note = $3, occurred_at = $4, type = $7
		 WHERE id = $5 AND owner_id = $6
		   AND EXISTS (SELECT 1 FROM categories c WHERE c.id = $1 AND c.owner_id = $6)`,
		in.CategoryID, in.Amount.String(), in.Note, in.OccurredAt.UTC(), id, int64(owner), string(in.Type.OrExpense()))
	if isForeignKeyViolation(err) {
		return core.Invalid("Category does not exist.")
	}
	if err != nil {
		return fmt.Errorf("update expense %d: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM expenses WHERE id = $1 AND owner_id = $2)`, id, int64(owner),
	).Scan(&exists); err != nil {
		return fmt.Errorf("update expense %d: %w", id, err)
	}
	if !exists {
		return core.NotFound("Not found")
	}
	return core.Invalid("Category does not exist.")
}

func (r *Repository) DeleteExpense(ctx context.Context, owner core.OwnerID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1 AND owner_id = $2`, id, int64(owner))
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound("Not found")
	}
	return nil
}

const selectExpense = `SELECT e.id, e.owner_id, e.category_id, c.name, c.color, e.type, e.amount::text, e.note, e.occurred_at, e.created_at
	FROM expenses e LEFT JOIN categories c ON c.id = e.category_id`

func (r *Repository) ListExpenses(ctx context.Context, owner core.OwnerID, f core.ExpenseFilter) ([]core.Expense, error) {
	var (
		q    strings.Builder
		args = []any{int64(owner)}
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	q.WriteString(selectExpense)
	q.WriteString(` WHERE e.owner_id = $1`)
	if f.From != nil {
		q.WriteString(` AND e.occurred_at >= ` + arg(f.From.UTC()))
	}
	if f.To != nil {
		q.WriteString(` AND e.occurred_at <= ` + arg(f.To.UTC()))
	}
	if f.CategoryID != nil {
		q.WriteString(` AND e.category_id = ` + arg(*f.CategoryID))
	}
	if f.Type != nil {
		q.WriteString(` AND e.type = ` + arg(string(*f.Type)))
	}
	q.WriteString(` ORDER BY e.occurred_at DESC, e.id DESC`)
	if f.Limit > 0 {
		q.WriteString(` LIMIT ` + arg(f.Limit))
	}

	rows, err := r.pool.Query(ctx, q.String(), args...)
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

func scanCategory(row pgx.Row) (core.Category, error) {
	var (
		c     core.Category
		owner int64
	)
	if err := row.Scan(&c.ID, &owner, &c.Name, &c.Color, &c.CreatedAt); err != nil {
		return core.Category{}, err
	}
	c.OwnerID = core.OwnerID(owner)
	return c, nil
}

func scanExpense(row pgx.Row) (core.Expense, error) {
	var (
		e                     core.Expense
		owner                 int64
		entryType, amount     string
		occurredAt, createdAt time.Time
	)
	if err := row.Scan(&e.ID, &owner, &e.CategoryID, &e.CategoryName, &e.CategoryColor,
		&entryType, &amount, &e.Note, &occurredAt, &createdAt); err != nil {
		return core.Expense{}, err
	}
	e.OwnerID = core.OwnerID(owner)
	e.Type = core.EntryType(entryType)
	e.OccurredAt = occurredAt.UTC()
	e.CreatedAt = createdAt.UTC()

	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Expense{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return e, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}
