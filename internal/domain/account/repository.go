package account

import "context"

// Repository is the transactional view of customer accounts.
type Repository interface {
	GetForUpdate(ctx context.Context, customerID int64) (*Account, error)
	Insert(ctx context.Context, a *Account) error
	Update(ctx context.Context, a *Account) error
}

type Finder interface {
	Get(ctx context.Context, customerID int64) (*Account, error)
}
