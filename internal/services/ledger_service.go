package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/report"
)

// DefaultStoreTimeout bounds every store call.
const DefaultStoreTimeout = 5 * time.Second

// Publisher announces committed ledger changes. *amqp.Client satisfies it.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error
	Close() error
}

// Invalidator drops cached summaries. *report.CachedEngine satisfies it.
type Invalidator interface {
	Invalidate(owner core.OwnerID, months ...core.Month)
	InvalidateOwner(owner core.OwnerID)
}

// LedgerService validates requests, runs them against the store under a
// timeout, and keeps cached summaries and other replicas in step with
// every write. The owner of each call comes from the context.
type LedgerService struct {
	store       ledger.Store
	summaries   report.Summarizer
	publisher   Publisher
	invalidator Invalidator
	loc         *time.Location
	timeout     time.Duration
	now         func() time.Time
}

type Option func(*LedgerService)

// WithPublisher enables ledger change events.
func WithPublisher(p Publisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

// WithInvalidator wires a summary cache that writes must invalidate.
func WithInvalidator(i Invalidator) Option {
	return func(s *LedgerService) { s.invalidator = i }
}

func WithStoreTimeout(d time.Duration) Option {
	return func(s *LedgerService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewLedgerService parses offset-less timestamps and resolves months in
// loc; a nil loc means UTC.
func NewLedgerService(store ledger.Store, summaries report.Summarizer, loc *time.Location, opts ...Option) *LedgerService {
	if loc == nil {
		loc = time.UTC
	}
	s := &LedgerService{
		store:     store,
		summaries: summaries,
		loc:       loc,
		timeout:   DefaultStoreTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location is the reporting location.
func (s *LedgerService) Location() *time.Location {
	return s.loc
}

func (s *LedgerService) ListCategories(ctx context.Context) ([]core.Category, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cats, err := s.store.ListCategories(ctx, core.OwnerFromContext(ctx))
	if err != nil {
		return nil, wrapStoreErr("list categories", err)
	}
	return cats, nil
}

// CreateCategory validates name and color before touching the store.
func (s *LedgerService) CreateCategory(ctx context.Context, name, color string) (core.Category, error) {
	in, err := core.NewCategoryInput(name, color)
	if err != nil {
		return core.Category{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	owner := core.OwnerFromContext(ctx)
	cat, err := s.store.CreateCategory(ctx, owner, in)
	if err != nil {
		return core.Category{}, wrapStoreErr("create category", err)
	}

	event := amqp.NewLedgerEvent(amqp.EventCategoryCreated, int64(owner))
	event.CategoryID = cat.ID
	s.publish(ctx, event)
	return cat, nil
}

// DeleteCategory detaches the category's expenses, which regroups every
// summary of the owner.
func (s *LedgerService) DeleteCategory(ctx context.Context, id int64) error {
	if id <= 0 {
		return core.NotFound("Not found")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	owner := core.OwnerFromContext(ctx)
	if err := s.store.DeleteCategory(ctx, owner, id); err != nil {
		return wrapStoreErr("delete category", err)
	}

	if s.invalidator != nil {
		s.invalidator.InvalidateOwner(owner)
	}
	event := amqp.NewLedgerEvent(amqp.EventCategoryDeleted, int64(owner))
	event.CategoryID = id
	s.publish(ctx, event)
	return nil
}

func (s *LedgerService) ListExpenses(ctx context.Context, f core.ExpenseFilter) ([]core.Expense, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.store.ListExpenses(ctx, core.OwnerFromContext(ctx), f)
	if err != nil {
		return nil, wrapStoreErr("list expenses", err)
	}
	return rows, nil
}

func (s *LedgerService) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	if id <= 0 {
		return core.Expense{}, core.NotFound("Not found")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	e, err := s.store.GetExpense(ctx, core.OwnerFromContext(ctx), id)
	if err != nil {
		return core.Expense{}, wrapStoreErr("get expense", err)
	}
	return e, nil
}

// CreateExpense validates the draft and stores it, returning the new id.
func (s *LedgerService) CreateExpense(ctx context.Context, draft core.ExpenseDraft) (int64, error) {
	in, err := draft.Parse(s.loc)
	if err != nil {
		return 0, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	owner := core.OwnerFromContext(ctx)
	id, err := s.store.CreateExpense(ctx, owner, in)
	if err != nil {
		return 0, wrapStoreErr("create expense", err)
	}

	month := core.MonthOf(in.OccurredAt, s.loc)
	s.invalidate(owner, month)

	event := amqp.NewLedgerEvent(amqp.EventExpenseCreated, int64(owner))
	event.ExpenseID = id
	event.CategoryID = in.CategoryID
	event.Months = []string{month.String()}
	s.publish(ctx, event)

	log.NewStructuredLogger(log.FromContext(ctx)).
		LogExpenseCreated(ctx, int64(owner), id, in.Amount.String(), in.CategoryID)
	return id, nil
}

// UpdateExpense replaces every field of an existing expense. Both the old
// and the new month lose their cached summaries.
func (s *LedgerService) UpdateExpense(ctx context.Context, id int64, draft core.ExpenseDraft) error {
	in, err := draft.Parse(s.loc)
	if err != nil {
		return err
	}
	if id <= 0 {
		return core.NotFound("Not found")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	owner := core.OwnerFromContext(ctx)
	before, err := s.store.GetExpense(ctx, owner, id)
	if err != nil {
		return wrapStoreErr("update expense", err)
	}
	if err := s.store.UpdateExpense(ctx, owner, id, in); err != nil {
		return wrapStoreErr("update expense", err)
	}

	months := distinctMonths(core.MonthOf(before.OccurredAt, s.loc), core.MonthOf(in.OccurredAt, s.loc))
	s.invalidate(owner, months...)

	event := amqp.NewLedgerEvent(amqp.EventExpenseUpdated, int64(owner))
	event.ExpenseID = id
	event.CategoryID = in.CategoryID
	event.Months = monthStrings(months)
	s.publish(ctx, event)
	return nil
}

func (s *LedgerService) DeleteExpense(ctx context.Context, id int64) error {
	if id <= 0 {
		return core.NotFound("Not found")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	owner := core.OwnerFromContext(ctx)
	before, err := s.store.GetExpense(ctx, owner, id)
	if err != nil {
		return wrapStoreErr("delete expense", err)
	}
	if err := s.store.DeleteExpense(ctx, owner, id); err != nil {
		return wrapStoreErr("delete expense", err)
	}

	month := core.MonthOf(before.OccurredAt, s.loc)
	s.invalidate(owner, month)

	event := amqp.NewLedgerEvent(amqp.EventExpenseDeleted, int64(owner))
	event.ExpenseID = id
	event.Months = []string{month.String()}
	s.publish(ctx, event)
	return nil
}

// DailySummary totals the last days (raw query value, normalised) by day.
func (s *LedgerService) DailySummary(ctx context.Context, rawDays string) ([]core.DayTotal, error) {
	days := report.NormalizeDays(rawDays, report.DefaultDailyDays)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.summaries.Daily(ctx, core.OwnerFromContext(ctx), days)
	if err != nil {
		return nil, wrapStoreErr("daily summary", err)
	}
	return out, nil
}

// CategorySummary totals the last days (raw query value, normalised) by
// category.
func (s *LedgerService) CategorySummary(ctx context.Context, rawDays string) ([]core.CategoryTotal, error) {
	days := report.NormalizeDays(rawDays, report.DefaultCategoryDays)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.summaries.Categories(ctx, core.OwnerFromContext(ctx), days)
	if err != nil {
		return nil, wrapStoreErr("category summary", err)
	}
	return out, nil
}

// MonthlySummary summarizes rawMonth (YYYY-MM); anything else means the
// current month.
func (s *LedgerService) MonthlySummary(ctx context.Context, rawMonth string) (core.MonthlySummary, error) {
	month := report.ResolveMonth(rawMonth, s.now(), s.loc)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.summaries.Monthly(ctx, core.OwnerFromContext(ctx), month)
	if err != nil {
		return core.MonthlySummary{}, wrapStoreErr("monthly summary", err)
	}
	return out, nil
}

// HandleLedgerEvent applies a change announced by another replica to the
// local summary cache.
func (s *LedgerService) HandleLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error {
	if s.invalidator == nil {
		return nil
	}
	owner := core.OwnerID(event.OwnerID)

	var months []core.Month
	for _, raw := range event.Months {
		m, err := core.ParseMonth(raw)
		if err != nil {
			slog.WarnContext(ctx, "Ledger event with unparsable month, dropping owner cache",
				log.FieldComponent, log.ComponentAMQP,
				log.FieldMonth, raw,
				"type", event.Type)
			months = nil
			break
		}
		months = append(months, m)
	}

	if len(months) == 0 {
		s.invalidator.InvalidateOwner(owner)
	} else {
		s.invalidator.Invalidate(owner, months...)
	}
	slog.DebugContext(ctx, "Applied remote ledger event",
		"type", event.Type,
		"origin", event.Origin,
		log.FieldOwnerID, event.OwnerID)
	return nil
}

// Ping checks that the store answers within the store timeout.
func (s *LedgerService) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		return wrapStoreErr("ping", err)
	}
	return nil
}

// Close closes both storage and AMQP connections
func (s *LedgerService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close ledger service: %w", err)
	}
	return nil
}

func (s *LedgerService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *LedgerService) invalidate(owner core.OwnerID, months ...core.Month) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(owner, months...)
	}
}

// publish never fails the write it announces; errors are only logged.
func (s *LedgerService) publish(ctx context.Context, event *amqp.LedgerEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerEvent(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldComponent, log.ComponentAMQP,
			log.FieldError, err,
			"type", event.Type,
			log.FieldOwnerID, event.OwnerID)
	}
}

// wrapStoreErr keeps taxonomy errors as they are and classifies anything
// else as core.ErrStoreUnavailable.
func wrapStoreErr(op string, err error) error {
	if errors.Is(err, core.ErrInvalidInput) || errors.Is(err, core.ErrConflict) || errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, core.ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrStoreUnavailable, err)
}

func distinctMonths(a, b core.Month) []core.Month {
	if a == b {
		return []core.Month{a}
	}
	return []core.Month{a, b}
}

func monthStrings(months []core.Month) []string {
	out := make([]string, len(months))
	for i, m := range months {
		out[i] = m.String()
	}
	return out
}
