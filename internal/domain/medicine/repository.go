package medicine

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Repository is the transactional view of the catalog. Rows read through it
// stay locked until the surrounding transaction ends.
type Repository interface {
	GetForUpdate(ctx context.Context, id int64) (*Medicine, error)
	Insert(ctx context.Context, m *Medicine) error
	Update(ctx context.Context, m *Medicine) error
}

// Finder serves read-only catalog queries outside of a transaction.
type Finder interface {
	Get(ctx context.Context, id int64) (*Medicine, error)
	List(ctx context.Context, f Filter, after int64, limit int) ([]*Medicine, error)
}

type Filter struct {
	NameContains string
	Category     Category
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	InStockOnly  bool
}

// Match reports whether m passes every criterion set on the filter.
func (f Filter) Match(m *Medicine) bool {
	if f.NameContains != "" {
		needle := strings.ToLower(f.NameContains)
		short := ""
		if m.ShortName != nil {
			short = strings.ToLower(*m.ShortName)
		}
		if !strings.Contains(strings.ToLower(m.Name), needle) && !strings.Contains(short, needle) {
			return false
		}
	}
	if f.Category != "" && m.Category != f.Category {
		return false
	}
	if f.MinPrice != nil && m.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && m.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.InStockOnly && m.Stock <= 0 {
		return false
	}
	return true
}
