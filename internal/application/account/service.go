package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-pharmacy/internal/application"
	domain "github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/txn"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	accountService    = "account"
	useCaseOpen       = "account.open"
	useCaseApplyDelta = "account.apply_delta"
)

var ErrRepository = errors.New("account: repository failure")

type Service struct {
	tx     txn.Manager
	finder domain.Finder
	inst   *application.Instrumentation
}

func NewService(tx txn.Manager, finder domain.Finder, tel observability.Observability) *Service {
	return &Service{
		tx:     tx,
		finder: finder,
		inst:   application.NewInstrumentation(accountService, tel),
	}
}

// Open provisions the account of a customer with an opening balance.
func (s *Service) Open(ctx context.Context, customerID int64, initialBalance decimal.Decimal) (_ *domain.Account, err error) {
	ctx, run := s.inst.Start(ctx, useCaseOpen, "OpenAccount",
		attribute.Int64("account.customer_id", customerID),
	)
	defer func() { run.End(err) }()

	acct, err := domain.New(customerID, initialBalance)
	if err != nil {
		return nil, application.Validation(err)
	}
	err = s.tx.Do(ctx, func(ctx context.Context, tx txn.Tx) error {
		return wrapRepositoryError(tx.Accounts().Insert(ctx, acct))
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func (s *Service) Balance(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	acct, err := s.finder.Get(ctx, customerID)
	if err != nil {
		return decimal.Zero, wrapRepositoryError(err)
	}
	return acct.Balance, nil
}

// ApplyDelta adds delta to the balance under a row lock and returns the new
// balance. A debit beyond the balance fails with *account.InsufficientBalanceError.
func (s *Service) ApplyDelta(ctx context.Context, customerID int64, delta decimal.Decimal) (_ decimal.Decimal, err error) {
	ctx, run := s.inst.Start(ctx, useCaseApplyDelta, "ApplyDelta",
		attribute.Int64("account.customer_id", customerID),
		attribute.String("account.delta", delta.StringFixed(2)),
	)
	defer func() { run.End(err) }()

	var balance decimal.Decimal
	err = s.tx.Do(ctx, func(ctx context.Context, tx txn.Tx) error {
		acct, err := tx.Accounts().GetForUpdate(ctx, customerID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		if err := acct.ApplyDelta(delta); err != nil {
			return err
		}
		if err := tx.Accounts().Update(ctx, acct); err != nil {
			return wrapRepositoryError(err)
		}
		balance = acct.Balance
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// Deposit tops the balance up by an amount that is positive once rounded to cents.
func (s *Service) Deposit(ctx context.Context, customerID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.Round(2).IsPositive() {
		return decimal.Zero, application.Validation(domain.ErrInvalidAmount)
	}
	return s.ApplyDelta(ctx, customerID, amount)
}

func wrapRepositoryError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, txn.ErrLockTimeout),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}
