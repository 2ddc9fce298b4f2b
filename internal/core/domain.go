package core

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	MaxCategoryNameLength = 100
	MaxNoteLength         = 500
)

// EntryType tells money spent from money received. Summaries of spending
// only count expense entries.
type EntryType string

const (
	EntryExpense EntryType = "expense"
	EntryIncome  EntryType = "income"
)

// OrExpense maps the zero type to EntryExpense.
func (t EntryType) OrExpense() EntryType {
	if t == "" {
		return EntryExpense
	}
	return t
}

// ParseEntryType reads a type field; empty means expense.
func ParseEntryType(s string) (EntryType, error) {
	switch t := EntryType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return EntryExpense, nil
	case EntryExpense, EntryIncome:
		return t, nil
	default:
		return "", Invalid("Type must be income or expense.")
	}
}

type (
	Category struct {
		ID        int64
		OwnerID   OwnerID
		Name      string
		Color     *string
		CreatedAt time.Time
	}

	// Expense is a stored expense. CategoryName and CategoryColor are
	// filled by joined reads and stay nil when the category is absent.
	Expense struct {
		ID            int64
		OwnerID       OwnerID
		CategoryID    *int64
		CategoryName  *string
		CategoryColor *string
		Type          EntryType
		Amount        decimal.Decimal
		Note          *string
		OccurredAt    time.Time
		CreatedAt     time.Time
	}

	// CategoryInput is a validated request to create a category.
	CategoryInput struct {
		Name  string
		Color *string
	}

	// ExpenseInput is a validated expense payload for create and update.
	ExpenseInput struct {
		CategoryID int64
		Type       EntryType
		Amount     decimal.Decimal
		Note       *string
		OccurredAt time.Time
	}

	// ExpenseDraft carries raw, unvalidated expense fields as received
	// from a client.
	ExpenseDraft struct {
		Type       string
		Amount     string
		CategoryID string
		Note       string
		OccurredAt string
	}

	// ExpenseFilter narrows a ranged expense read. Bounds are inclusive.
	ExpenseFilter struct {
		From       *time.Time
		To         *time.Time
		CategoryID *int64
		Type       *EntryType
		Limit      int
	}
)

var colorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// NewCategoryInput trims and validates a category request.
func NewCategoryInput(name, color string) (CategoryInput, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return CategoryInput{}, Invalid("Category name is required.")
	}
	if utf8.RuneCountInString(name) > MaxCategoryNameLength {
		return CategoryInput{}, Invalid("Category name is too long.")
	}

	in := CategoryInput{Name: name}
	if color = strings.TrimSpace(color); color != "" {
		if !colorPattern.MatchString(color) {
			return CategoryInput{}, Invalid("Color must be a hex value like #4f46e5.")
		}
		in.Color = &color
	}
	return in, nil
}

// Parse validates the draft. Timestamps without an offset are read in loc.
func (d ExpenseDraft) Parse(loc *time.Location) (ExpenseInput, error) {
	entryType, err := ParseEntryType(d.Type)
	if err != nil {
		return ExpenseInput{}, err
	}

	amount, err := ParseAmount(d.Amount)
	if err != nil {
		return ExpenseInput{}, err
	}

	categoryID, err := strconv.ParseInt(strings.TrimSpace(d.CategoryID), 10, 64)
	if err != nil || categoryID <= 0 {
		return ExpenseInput{}, Invalid("Category is required.")
	}

	occurredAt, err := ParseOccurredAt(d.OccurredAt, loc)
	if err != nil {
		return ExpenseInput{}, err
	}

	in := ExpenseInput{
		CategoryID: categoryID,
		Type:       entryType,
		Amount:     amount,
		OccurredAt: occurredAt,
	}
	if note := strings.TrimSpace(d.Note); note != "" {
		if utf8.RuneCountInString(note) > MaxNoteLength {
			return ExpenseInput{}, Invalid("Note is too long.")
		}
		in.Note = &note
	}
	return in, nil
}
