// Package memory is a process-local ledger store for tests and demos.
package memory

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

// Seed is a category created for the default owner at startup.
type Seed struct {
	Name  string
	Color string
}

// DefaultSeeds match the categories the SQL migrations insert.
var DefaultSeeds = []Seed{
	{"Food & Drink", "#4f46e5"},
	{"Transport", "#0ea5e9"},
	{"Groceries", "#10b981"},
	{"Bills & Utilities", "#f59e0b"},
	{"Shopping", "#e11d48"},
	{"Health", "#22c55e"},
	{"Leisure", "#8b5cf6"},
	{"Other", "#94a3b8"},
}

type Store struct {
	mu         sync.Mutex
	now        func() time.Time
	nextCat    int64
	nextExp    int64
	categories map[int64]core.Category
	expenses   map[int64]core.Expense
}

func New(seeds []Seed) *Store {
	s := &Store{
		now:        func() time.Time { return time.Now().UTC() },
		categories: make(map[int64]core.Category),
		expenses:   make(map[int64]core.Expense),
	}
	for _, seed := range seeds {
		in, err := core.NewCategoryInput(seed.Name, seed.Color)
		if err != nil {
			continue
		}
		_, _ = s.CreateCategory(context.Background(), core.DefaultOwner, in)
	}
	return s
}

// NewFromFiles seeds from base/seed_categories.txt, one "Name #color" per
// line, falling back to DefaultSeeds when the file is missing or empty.
func NewFromFiles(base string) *Store {
	var seeds []Seed
	for _, line := range readLines(filepath.Join(base, "seed_categories.txt")) {
		name, color := line, ""
		if i := strings.LastIndex(line, " #"); i > 0 {
			name, color = strings.TrimSpace(line[:i]), line[i+1:]
		}
		seeds = append(seeds, Seed{Name: name, Color: color})
	}
	if len(seeds) == 0 {
		seeds = DefaultSeeds
	}
	return New(seeds)
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) CreateCategory(_ context.Context, owner core.OwnerID, in core.CategoryInput) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.categories {
		if c.OwnerID == owner && c.Name == in.Name {
			return core.Category{}, core.Conflict("Category already exists.")
		}
	}

	s.nextCat++
	c := core.Category{
		ID:        s.nextCat,
		OwnerID:   owner,
		Name:      in.Name,
		Color:     cloneString(in.Color),
		CreatedAt: s.now(),
	}
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) ListCategories(_ context.Context, owner core.OwnerID) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Category, 0)
	for _, c := range s.categories {
		if c.OwnerID == owner {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, owner core.OwnerID, id int64) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.categories[id]
	if !ok || c.OwnerID != owner {
		return core.Category{}, core.NotFound("Not found")
	}
	return c, nil
}

func (s *Store) DeleteCategory(_ context.Context, owner core.OwnerID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.categories[id]
	if !ok || c.OwnerID != owner {
		return core.NotFound("Not found")
	}
	delete(s.categories, id)
	for eid, e := range s.expenses {
		if e.CategoryID != nil && *e.CategoryID == id {
			e.CategoryID = nil
			s.expenses[eid] = e
		}
	}
	return nil
}

func (s *Store) CreateExpense(_ context.Context, owner core.OwnerID, in core.ExpenseInput) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ownsCategory(owner, in.CategoryID) {
		return 0, core.Invalid("Category does not exist.")
	}

	s.nextExp++
	categoryID := in.CategoryID
	s.expenses[s.nextExp] = core.Expense{
		ID:         s.nextExp,
		OwnerID:    owner,
		CategoryID: &categoryID,
		Type:       in.Type.OrExpense(),
		Amount:     in.Amount,
		Note:       cloneString(in.Note),
		OccurredAt: in.OccurredAt.UTC(),
		CreatedAt:  s.now(),
	}
	return s.nextExp, nil
}

func (s *Store) GetExpense(_ context.Context, owner core.OwnerID, id int64) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[id]
	if !ok || e.OwnerID != owner {
		return core.Expense{}, core.NotFound("Not found")
	}
	return s.joined(e), nil
}

func (s *Store) UpdateExpense(_ context.Context, owner core.OwnerID, id int64, in core.ExpenseInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[id]
	if !ok || e.OwnerID != owner {
		return core.NotFound("Not found")
	}
	if !s.ownsCategory(owner, in.CategoryID) {
		return core.Invalid("Category does not exist.")
	}

	categoryID := in.CategoryID
	e.CategoryID = &categoryID
	e.Type = in.Type.OrExpense()
	e.Amount = in.Amount
	e.Note = cloneString(in.Note)
	e.OccurredAt = in.OccurredAt.UTC()
	s.expenses[id] = e
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, owner core.OwnerID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[id]
	if !ok || e.OwnerID != owner {
		return core.NotFound("Not found")
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) ListExpenses(_ context.Context, owner core.OwnerID, f core.ExpenseFilter) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Expense, 0)
	for _, e := range s.expenses {
		if e.OwnerID != owner {
			continue
		}
		if f.From != nil && e.OccurredAt.Before(*f.From) {
			continue
		}
		if f.To != nil && e.OccurredAt.After(*f.To) {
			continue
		}
		if f.CategoryID != nil && (e.CategoryID == nil || *e.CategoryID != *f.CategoryID) {
			continue
		}
		if f.Type != nil && e.Type != *f.Type {
			continue
		}
		out = append(out, s.joined(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) ownsCategory(owner core.OwnerID, id int64) bool {
	c, ok := s.categories[id]
	return ok && c.OwnerID == owner
}

// joined fills the category columns the SQL stores get from a LEFT JOIN.
func (s *Store) joined(e core.Expense) core.Expense {
	e.Note = cloneString(e.Note)
	if e.CategoryID == nil {
		return e
	}
	id := *e.CategoryID
	e.CategoryID = &id
	if c, ok := s.categories[id]; ok {
		e.CategoryName = cloneString(&c.Name)
		e.CategoryColor = cloneString(c.Color)
	}
	return e
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
