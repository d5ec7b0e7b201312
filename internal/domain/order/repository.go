package order

import "context"

// Repository is the transactional view of orders.
type Repository interface {
	GetForUpdate(ctx context.Context, id int64) (*Order, error)
	Insert(ctx context.Context, o *Order) error
	Update(ctx context.Context, o *Order) error
	Delete(ctx context.Context, id int64) error
}

type Finder interface {
	Get(ctx context.Context, id int64) (*Order, error)
	// ListByCustomer returns orders with ID greater than after, ascending.
	ListByCustomer(ctx context.Context, customerID, after int64, limit int) ([]*Order, error)
	CountByCustomer(ctx context.Context, customerID int64) (int, error)
}
