// Package txn defines the unit of work every stock or balance mutation runs in.
package txn

import (
	"context"
	"errors"

	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/ledger"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/medicine"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/order"
)

var (
	ErrLockTimeout = errors.New("txn: timed out waiting for row lock")
	ErrClosed      = errors.New("txn: transaction already finished")
)

// Tx exposes the repositories bound to one transaction. Rows returned by a
// GetForUpdate call stay locked until the transaction commits or rolls back.
// Callers lock rows in the order: order, medicine, account.
type Tx interface {
	Medicines() medicine.Repository
	Accounts() account.Repository
	Orders() order.Repository
	Ledger() ledger.Repository
}

// Manager runs fn inside a transaction. It commits when fn returns nil and
// rolls back otherwise, returning fn's error unchanged.
type Manager interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
