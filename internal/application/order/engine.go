package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-pharmacy/internal/application"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/ledger"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/medicine"
	domain "github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/txn"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	engineService       = "order-engine"
	useCaseOrderCreate  = "order.create"
	useCaseOrderEdit    = "order.edit"
	useCaseOrderDelete  = "order.delete"
	useCaseOrderAdvance = "order.advance_status"
)

var ErrRepository = errors.New("order: repository failure")

// Engine runs the order operations that move stock and money together. Each
// call is one transaction over the order row, its medicine row, the
// customer's account row and the ledger entries it appends.
type Engine struct {
	tx        txn.Manager
	publisher domoutbox.Publisher
	inst      *application.Instrumentation
}

func NewEngine(tx txn.Manager, publisher domoutbox.Publisher, tel observability.Observability) *Engine {
	return &Engine{
		tx:        tx,
		publisher: publisher,
		inst:      application.NewInstrumentation(engineService, tel),
	}
}

type CreateOrderInput struct {
	CustomerID   int64
	MedicineID   int64
	Quantity     int64
	Prescription string
}

// CreateOrder places an order, taking quantity from stock and the total from
// the customer's balance.
func (e *Engine) CreateOrder(ctx context.Context, in CreateOrderInput) (_ *domain.Order, err error) {
	ctx, run := e.inst.Start(ctx, useCaseOrderCreate, "CreateOrder",
		attribute.Int64("order.customer_id", in.CustomerID),
		attribute.Int64("order.medicine_id", in.MedicineID),
		attribute.Int64("order.quantity", in.Quantity),
	)
	defer func() { run.End(err) }()

	switch {
	case in.CustomerID <= 0:
		return nil, application.Validation(domain.ErrInvalidCustomer)
	case in.MedicineID <= 0:
		return nil, application.Validation(domain.ErrInvalidMedicine)
	case in.Quantity <= 0:
		return nil, application.Validation(domain.ErrInvalidQuantity)
	}

	var (
		placed    *domain.Order
		remaining int64
	)
	err = e.tx.Do(ctx, func(ctx context.Context, tx txn.Tx) error {
		med, err := tx.Medicines().GetForUpdate(ctx, in.MedicineID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		if in.Quantity > med.Stock {
			return &medicine.InsufficientStockError{MedicineID: med.ID, Requested: in.Quantity, Available: med.Stock}
		}
		total := med.PriceFor(in.Quantity)

		acct, err := tx.Accounts().GetForUpdate(ctx, in.CustomerID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		if err := acct.ApplyDelta(total.Neg()); err != nil {
			return err
		}
		if err := med.AdjustStock(-in.Quantity); err != nil {
			return invariant("create.adjust_stock", err)
		}

		o, err := domain.New(in.CustomerID, in.MedicineID, in.Quantity, in.Prescription, total)
		if err != nil {
			return application.Validation(err)
		}
		if err := tx.Orders().Insert(ctx, o); err != nil {
			return wrapRepositoryError(err)
		}
		if err := appendEntry(ctx, tx, med.ID, -in.Quantity, ledger.ReasonInitialSale, o.ID); err != nil {
			return err
		}
		if err := persist(ctx, tx, "create", med, acct); err != nil {
			return err
		}
		placed, remaining = o, med.Stock
		return nil
	})
	if err != nil {
		e.logInvariant(run, err)
		return nil, err
	}

	run.Span().SetAttributes(
		attribute.Int64("order.id", placed.ID),
		attribute.String("order.total_price", placed.TotalPrice.StringFixed(2)),
	)
	run.With(observability.F("order_id", placed.ID))
	run.Publish(ctx, e.publisher, domain.NewPlacedEvent(placed, remaining))
	return placed, nil
}

type EditOrderInput struct {
	OrderID     int64
	NewQuantity int64
	RequesterID int64
}

// EditOrder changes the quantity of an existing order. The stock and balance
// differences are settled in the same transaction and the order is repriced
// at the current medicine price. Editing to the current quantity changes
// nothing.
func (e *Engine) EditOrder(ctx context.Context, in EditOrderInput) (_ *domain.Order, err error) {
	ctx, run := e.inst.Start(ctx, useCaseOrderEdit, "EditOrder",
		attribute.Int64("order.id", in.OrderID),
		attribute.Int64("order.new_quantity", in.NewQuantity),
	)
	defer func() { run.End(err) }()

	if in.NewQuantity <= 0 {
		return nil, application.Validation(domain.ErrInvalidQuantity)
	}

	var (
		edited      *domain.Order
		oldQuantity int64
		priceDelta  decimal.Decimal
		remaining   int64
		changed     bool
	)
	err = e.tx.Do(ctx, func(ctx context.Context, tx txn.Tx) error {
		o, err := tx.Orders().GetForUpdate(ctx, in.OrderID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		if !o.OwnedBy(in.RequesterID) {
			return domain.ErrForbidden
		}
		oldQuantity = o.Quantity
		if in.NewQuantity == oldQuantity {
			edited = o
			return nil
		}

		med, err := tx.Medicines().GetForUpdate(ctx, o.MedicineID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		stockDelta := oldQuantity - in.NewQuantity
		if in.NewQuantity > med.Stock+oldQuantity {
			return &medicine.InsufficientStockError{
				MedicineID: med.ID,
				Requested:  in.NewQuantity - oldQuantity,
				Available:  med.Stock,
			}
		}
		newTotal := med.PriceFor(in.NewQuantity)
		priceDelta = newTotal.Sub(o.TotalPrice)

		acct, err := tx.Accounts().GetForUpdate(ctx, o.CustomerID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		if err := acct.ApplyDelta(priceDelta.Neg()); err != nil {
			return err
		}
		if err := med.AdjustStock(stockDelta); err != nil {
			return invariant("edit.adjust_stock", err)
		}
		if err := o.Reprice(in.NewQuantity, newTotal); err != nil {
			return application.Validation(err)
		}
		if err := tx.Orders().Update(ctx, o); err != nil {
			return wrapRepositoryError(err)
		}
		if err := appendEntry(ctx, tx, med.ID, stockDelta, ledger.ReasonOrderQuantityUpdate, o.ID); err != nil {
			return err
		}
		if err := persist(ctx, tx, "edit", med, acct); err != nil {
			return err
		}
		edited, remaining, changed = o, med.Stock, true
		return nil
	})
	if err != nil {
		e.logInvariant(run, err)
		return nil, err
	}

	run.With(observability.F("order_id", edited.ID))
	if !changed {
		run.SetStatus("NO_CHANGE")
		return edited, nil
	}
	run.Span().SetAttributes(attribute.String("order.price_delta", priceDelta.StringFixed(2)))
	run.Publish(ctx, e.publisher, domain.NewQuantityChangedEvent(edited, oldQuantity, priceDelta, remaining))
	return edited, nil
}

// DeleteOrder removes an order. Unless it was delivered, its stock goes back
// to the medicine and its total back to the customer.
func (e *Engine) DeleteOrder(ctx context.Context, orderID, requesterID int64) (err error) {
	ctx, run := e.inst.Start(ctx, useCaseOrderDelete, "DeleteOrder",
		attribute.Int64("order.id", orderID),
	)
	defer func() { run.End(err) }()

	var (
		removed  *domain.Order
		refunded bool
	)
	err = e.tx.Do(ctx, func(ctx context.Context, tx txn.Tx) error {
		o, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		if !o.OwnedBy(requesterID) {
			return domain.ErrForbidden
		}

		if o.RefundsOnDelete() {
			med, err := tx.Medicines().GetForUpdate(ctx, o.MedicineID)
			if err != nil {
				return wrapRepositoryError(err)
			}
			acct, err := tx.Accounts().GetForUpdate(ctx, o.CustomerID)
			if err != nil {
				return wrapRepositoryError(err)
			}
			if err := med.AdjustStock(o.Quantity); err != nil {
				return invariant("delete.adjust_stock", err)
			}
			if err := acct.ApplyDelta(o.TotalPrice); err != nil {
				return invariant("delete.refund", err)
			}
			if err := appendEntry(ctx, tx, med.ID, o.Quantity, ledger.ReasonOrderQuantityUpdate, o.ID); err != nil {
				return err
			}
			if err := persist(ctx, tx, "delete", med, acct); err != nil {
				return err
			}
			refunded = true
		}

		if err := tx.Orders().Delete(ctx, o.ID); err != nil {
			return wrapRepositoryError(err)
		}
		removed = o
		return nil
	})
	if err != nil {
		e.logInvariant(run, err)
		return err
	}

	run.With(observability.F("refunded", refunded))
	run.Publish(ctx, e.publisher, domain.NewRemovedEvent(removed, refunded))
	return nil
}

// AdvanceStatus moves an order forward in its fulfilment lifecycle. It has no
// stock or balance effect.
func (e *Engine) AdvanceStatus(ctx context.Context, orderID int64, next domain.Status) (_ *domain.Order, err error) {
	ctx, run := e.inst.Start(ctx, useCaseOrderAdvance, "AdvanceStatus",
		attribute.Int64("order.id", orderID),
		attribute.String("order.next_status", string(next)),
	)
	defer func() { run.End(err) }()

	if _, perr := domain.ParseStatus(string(next)); perr != nil {
		return nil, application.Validation(perr)
	}

	var (
		advanced *domain.Order
		from     domain.Status
	)
	err = e.tx.Do(ctx, func(ctx context.Context, tx txn.Tx) error {
		o, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		from = o.Status
		if err := o.Advance(next); err != nil {
			return err
		}
		if err := tx.Orders().Update(ctx, o); err != nil {
			return wrapRepositoryError(err)
		}
		advanced = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	run.Publish(ctx, e.publisher, domain.NewStatusChangedEvent(advanced, from))
	return advanced, nil
}

func (e *Engine) logInvariant(run *application.Run, err error) {
	var iv *domain.InvariantViolationError
	if errors.As(err, &iv) {
		run.Logger().Error("invariant_violation",
			observability.F("op", iv.Op),
			observability.Err(iv.Err),
		)
	}
}

func appendEntry(ctx context.Context, tx txn.Tx, medicineID, change int64, reason ledger.Reason, orderID int64) error {
	entry, err := ledger.NewEntry(medicineID, change, reason)
	if err != nil {
		return invariant("ledger.entry", err)
	}
	if _, err := tx.Ledger().Append(ctx, entry.ForOrder(orderID)); err != nil {
		return wrapRepositoryError(err)
	}
	return nil
}

// persist writes the locked medicine and account rows back. A store that
// refuses the new values means the checks above were bypassed.
func persist(ctx context.Context, tx txn.Tx, op string, med *medicine.Medicine, acct *account.Account) error {
	if err := tx.Medicines().Update(ctx, med); err != nil {
		if errors.Is(err, medicine.ErrInvalidStock) {
			return invariant(op+".medicine", err)
		}
		return wrapRepositoryError(err)
	}
	if err := tx.Accounts().Update(ctx, acct); err != nil {
		if errors.Is(err, account.ErrNegativeBalance) {
			return invariant(op+".account", err)
		}
		return wrapRepositoryError(err)
	}
	return nil
}

func invariant(op string, err error) error {
	return &domain.InvariantViolationError{Op: op, Err: err}
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, medicine.ErrNotFound),
		errors.Is(err, account.ErrNotFound),
		errors.Is(err, txn.ErrLockTimeout),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}
