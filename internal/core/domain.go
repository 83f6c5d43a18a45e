package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	Food          Category = "food"
	Entertainment Category = "entertainment"
	Travel        Category = "travel"
	Shopping      Category = "shopping"
	Bills         Category = "bills"
	Health        Category = "health"
	Other         Category = "other"

	// Salary is the fixed category carried by every income record.
	Salary Category = "salary"
)

// DefaultIncomeTitle is used when an income is recorded without a title.
const DefaultIncomeTitle = "Income"

const maxTitleLen = 200

type (
	TransactionType string

	Category string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Transaction is immutable once created by the ledger.
	Transaction struct {
		ID       int64
		Title    string
		Amount   Money
		Type     TransactionType
		Category Category
		Date     Date
	}

	// TransactionInput is an add intent as issued by a caller. Amount is
	// the raw user-entered decimal and Date is optional (YYYY-MM-DD).
	TransactionInput struct {
		Title    string
		Amount   string
		Type     TransactionType
		Category Category
		Date     string
	}
)

var (
	ErrInvalidDay      = errors.New("invalid day")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyTitle      = errors.New("empty title")
	ErrTitleTooLong    = errors.New("title too long (max 200 characters)")
	ErrInvalidTitle    = errors.New("title is not valid UTF-8")
	ErrTotalOverflow   = errors.New("ledger total would exceed the maximum amount")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidCategory = errors.New("invalid category")
)

var expenseCategories = []Category{Food, Entertainment, Travel, Shopping, Bills, Health, Other}

// ExpenseCategories returns the closed set of expense categories.
func ExpenseCategories() []Category {
	return append([]Category(nil), expenseCategories...)
}

// ParseCategory normalizes s and reports whether it names an expense category.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	return c, c.IsExpense()
}

// IsExpense reports whether c is exactly one of the expense categories.
func (c Category) IsExpense() bool {
	for _, known := range expenseCategories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// ParseTransactionType normalizes s; it returns ErrInvalidType for anything
// other than income or expense.
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(strings.ToLower(strings.TrimSpace(s))); t {
	case Income, Expense:
		return t, nil
	default:
		return "", ErrInvalidType
	}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses an ISO 8601 calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(time.DateOnly)
}

func (m Money) Validate() error {
	if m.Cents <= 0 || m.Cents > MaxCents {
		return ErrInvalidAmount
	}
	return nil
}

// Validate checks the invariants a stored record must hold.
func (t Transaction) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	switch t.Type {
	case Expense:
		if strings.TrimSpace(t.Title) == "" {
			return ErrEmptyTitle
		}
		if !t.Category.IsExpense() {
			return ErrInvalidCategory
		}
	case Income:
		if t.Category != Salary {
			return ErrInvalidCategory
		}
	default:
		return ErrInvalidType
	}
	if !utf8.ValidString(t.Title) {
		return ErrInvalidTitle
	}
	if utf8.RuneCountInString(t.Title) > maxTitleLen {
		return ErrTitleTooLong
	}
	return t.Date.Validate()
}

// IsIncome reports whether t adds to the balance.
func (t Transaction) IsIncome() bool {
	return t.Type == Income
}
