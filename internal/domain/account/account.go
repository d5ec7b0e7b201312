package account

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound            = errors.New("account: not found")
	ErrAlreadyExists       = errors.New("account: already exists for customer")
	ErrInvalidCustomer     = errors.New("account: customer id is required")
	ErrInvalidAmount       = errors.New("account: amount must be greater than zero")
	ErrNegativeBalance     = errors.New("account: opening balance must be zero or greater")
	ErrInsufficientBalance = errors.New("account: insufficient balance")
)

// InsufficientBalanceError carries the shortfall so callers can tell the
// customer how much is missing.
type InsufficientBalanceError struct {
	CustomerID int64
	Required   decimal.Decimal
	Available  decimal.Decimal
	Shortfall  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("account: insufficient balance for customer %d: short by %s",
		e.CustomerID, e.Shortfall.StringFixed(2))
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// balanceScale matches the NUMERIC(14,2) balance column.
const balanceScale = 2

type Account struct {
	CustomerID int64
	Balance    decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func New(customerID int64, balance decimal.Decimal) (*Account, error) {
	if customerID <= 0 {
		return nil, ErrInvalidCustomer
	}
	if balance.IsNegative() {
		return nil, ErrNegativeBalance
	}
	now := time.Now().UTC()
	return &Account{
		CustomerID: customerID,
		Balance:    balance.Round(balanceScale),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// ApplyDelta adds delta, rounded to cents, to the balance. A debit that would
// leave the balance negative is rejected and the account is left untouched.
func (a *Account) ApplyDelta(delta decimal.Decimal) error {
	delta = delta.Round(balanceScale)
	next := a.Balance.Add(delta)
	if next.IsNegative() {
		required := delta.Neg()
		return &InsufficientBalanceError{
			CustomerID: a.CustomerID,
			Required:   required,
			Available:  a.Balance,
			Shortfall:  required.Sub(a.Balance),
		}
	}
	if delta.IsZero() {
		return nil
	}
	a.Balance = next
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}
