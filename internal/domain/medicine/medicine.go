package medicine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("medicine: not found")
	ErrDuplicateName     = errors.New("medicine: name or short name already exists")
	ErrInvalidName       = errors.New("medicine: name is required")
	ErrInvalidShortName  = errors.New("medicine: short name must be at most 20 characters")
	ErrInvalidCategory   = errors.New("medicine: unknown category")
	ErrInvalidPrice      = errors.New("medicine: price must be greater than zero")
	ErrInvalidStock      = errors.New("medicine: stock must be zero or greater")
	ErrInsufficientStock = errors.New("medicine: insufficient stock")
)

const (
	maxNameLength      = 255
	maxShortNameLength = 20
	priceScale         = 2
)

// InsufficientStockError reports how much stock was asked for and how much is left.
type InsufficientStockError struct {
	MedicineID int64
	Requested  int64
	Available  int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("medicine: insufficient stock for %d: requested %d, available %d",
		e.MedicineID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type Category string

const (
	CategoryTablet    Category = "Tablet"
	CategorySyrup     Category = "Syrup"
	CategoryInjection Category = "Injection"
	CategoryOintment  Category = "Ointment"
	CategoryOther     Category = "Other"
)

var categories = []Category{CategoryTablet, CategorySyrup, CategoryInjection, CategoryOintment, CategoryOther}

// ParseCategory accepts a category by value, case-insensitively.
func ParseCategory(s string) (Category, error) {
	for _, c := range categories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

type Medicine struct {
	ID          int64
	Name        string
	ShortName   *string
	Category    Category
	Description string
	Price       decimal.Decimal
	Stock       int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// New validates the attributes of a medicine that has not been persisted yet.
func New(name string, shortName *string, category Category, description string, price decimal.Decimal, stock int64) (*Medicine, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return nil, ErrInvalidName
	}
	if shortName != nil {
		trimmed := strings.TrimSpace(*shortName)
		if trimmed == "" {
			shortName = nil
		} else if len(trimmed) > maxShortNameLength {
			return nil, ErrInvalidShortName
		} else {
			shortName = &trimmed
		}
	}
	if !category.Valid() {
		return nil, ErrInvalidCategory
	}
	if !price.IsPositive() {
		return nil, ErrInvalidPrice
	}
	if stock < 0 {
		return nil, ErrInvalidStock
	}

	now := time.Now().UTC()
	return &Medicine{
		Name:        name,
		ShortName:   shortName,
		Category:    category,
		Description: description,
		Price:       price.Round(priceScale),
		Stock:       stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// SetStock replaces the stock level and returns the signed change.
func (m *Medicine) SetStock(stock int64) (int64, error) {
	if stock < 0 {
		return 0, ErrInvalidStock
	}
	delta := stock - m.Stock
	if delta != 0 {
		m.Stock = stock
		m.touch()
	}
	return delta, nil
}

// AdjustStock adds delta to the stock; a result below zero is rejected untouched.
func (m *Medicine) AdjustStock(delta int64) error {
	if m.Stock+delta < 0 {
		return &InsufficientStockError{MedicineID: m.ID, Requested: -delta, Available: m.Stock}
	}
	if delta == 0 {
		return nil
	}
	m.Stock += delta
	m.touch()
	return nil
}

func (m *Medicine) SetPrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return ErrInvalidPrice
	}
	m.Price = price.Round(priceScale)
	m.touch()
	return nil
}

// PriceFor is the total charged for quantity units at the current price.
func (m *Medicine) PriceFor(quantity int64) decimal.Decimal {
	return m.Price.Mul(decimal.NewFromInt(quantity))
}

func (m *Medicine) Clone() *Medicine {
	if m == nil {
		return nil
	}
	clone := *m
	if m.ShortName != nil {
		s := *m.ShortName
		clone.ShortName = &s
	}
	return &clone
}

func (m *Medicine) touch() {
	m.UpdatedAt = time.Now().UTC()
}
