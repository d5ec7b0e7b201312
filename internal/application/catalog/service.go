package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-pharmacy/internal/application"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/ledger"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/medicine"
	domoutbox "github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/txn"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	catalogService        = "catalog"
	useCaseCreateMedicine = "catalog.create_medicine"
	useCaseUpdateStock    = "catalog.update_stock"
	useCaseAdjustStock    = "catalog.adjust_stock"
	useCaseUpdatePrice    = "catalog.update_price"
)

var ErrRepository = errors.New("catalog: repository failure")

type Service struct {
	tx        txn.Manager
	publisher domoutbox.Publisher
	inst      *application.Instrumentation
}

func NewService(tx txn.Manager, publisher domoutbox.Publisher, tel observability.Observability) *Service {
	return &Service{
		tx:        tx,
		publisher: publisher,
		inst:      application.NewInstrumentation(catalogService, tel),
	}
}

type CreateMedicineInput struct {
	Name         string
	ShortName    *string
	Category     medicine.Category
	Description  string
	Price        decimal.Decimal
	InitialStock int64
}

// CreateMedicine adds a medicine and records its opening stock in the ledger.
func (s *Service) CreateMedicine(ctx context.Context, in CreateMedicineInput) (_ *medicine.Medicine, err error) {
	ctx, run := s.inst.Start(ctx, useCaseCreateMedicine, "CreateMedicine",
		attribute.String("medicine.name", in.Name),
		attribute.String("medicine.category", string(in.Category)),
	)
	defer func() { run.End(err) }()

	m, err := medicine.New(in.Name, in.ShortName, in.Category, in.Description, in.Price, in.InitialStock)
	if err != nil {
		return nil, application.Validation(err)
	}

	err = s.tx.Do(ctx, func(ctx context.Context, tx txn.Tx) error {
		if err := tx.Medicines().Insert(ctx, m); err != nil {
			return wrapRepositoryError(err)
		}
		if m.Stock == 0 {
			return nil
		}
		return appendEntry(ctx, tx, m.ID, m.Stock, ledger.ReasonInitialStock)
	})
	if err != nil {
		return nil, err
	}

	run.With(observability.F("medicine_id", m.ID))
	if m.Stock != 0 {
		run.Publish(ctx, s.publisher, medicine.NewStockChangedEvent(m, m.Stock))
	}
	return m, nil
}

// UpdateStock sets the stock to an absolute level and records the difference.
func (s *Service) UpdateStock(ctx context.Context, medicineID, newStock int64) (_ *medicine.Medicine, err error) {
	ctx, run := s.inst.Start(ctx, useCaseUpdateStock, "UpdateStock",
		attribute.Int64("medicine.id", medicineID),
		attribute.Int64("medicine.new_stock", newStock),
	)
	defer func() { run.End(err) }()

	if newStock < 0 {
		return nil, application.Validation(medicine.ErrInvalidStock)
	}

	var (
		updated *medicine.Medicine
		delta   int64
	)
	err = s.tx.Do(ctx, func(ctx context.Context, tx txn.Tx) error {
		m, err := tx.Medicines().GetForUpdate(ctx, medicineID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		delta, err = m.SetStock(newStock)
		if err != nil {
			return application.Validation(err)
		}
		updated = m
		if delta == 0 {
			return nil
		}
		if err := tx.Medicines().Update(ctx, m); err != nil {
			return wrapRepositoryError(err)
		}
		return appendEntry(ctx, tx, m.ID, delta, ledger.ReasonStockUpdate)
	})
	if err != nil {
		return nil, err
	}

	run.With(observability.F("delta", delta))
	if delta != 0 {
		run.Publish(ctx, s.publisher, medicine.NewStockChangedEvent(updated, delta))
	}
	return updated, nil
}

// AdjustStock adds delta to the stock. A result below zero is rejected with
// *medicine.InsufficientStockError.
func (s *Service) AdjustStock(ctx context.Context, medicineID, delta int64) (_ *medicine.Medicine, err error) {
	ctx, run := s.inst.Start(ctx, useCaseAdjustStock, "AdjustStock",
		attribute.Int64("medicine.id", medicineID),
		attribute.Int64("medicine.delta", delta),
	)
	defer func() { run.End(err) }()

	var updated *medicine.Medicine
	err = s.tx.Do(ctx, func(ctx context.Context, tx txn.Tx) error {
		m, err := tx.Medicines().GetForUpdate(ctx, medicineID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		if err := m.AdjustStock(delta); err != nil {
			return err
		}
		updated = m
		if delta == 0 {
			return nil
		}
		if err := tx.Medicines().Update(ctx, m); err != nil {
			return wrapRepositoryError(err)
		}
		return appendEntry(ctx, tx, m.ID, delta, ledger.ReasonStockUpdate)
	})
	if err != nil {
		return nil, err
	}

	if delta != 0 {
		run.Publish(ctx, s.publisher, medicine.NewStockChangedEvent(updated, delta))
	}
	return updated, nil
}

// UpdatePrice changes the unit price. Existing orders keep their stored total
// until they are next edited.
func (s *Service) UpdatePrice(ctx context.Context, medicineID int64, price decimal.Decimal) (_ *medicine.Medicine, err error) {
	ctx, run := s.inst.Start(ctx, useCaseUpdatePrice, "UpdatePrice",
		attribute.Int64("medicine.id", medicineID),
		attribute.String("medicine.price", price.StringFixed(2)),
	)
	defer func() { run.End(err) }()

	if !price.IsPositive() {
		return nil, application.Validation(medicine.ErrInvalidPrice)
	}

	var updated *medicine.Medicine
	err = s.tx.Do(ctx, func(ctx context.Context, tx txn.Tx) error {
		m, err := tx.Medicines().GetForUpdate(ctx, medicineID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		if err := m.SetPrice(price); err != nil {
			return application.Validation(err)
		}
		if err := tx.Medicines().Update(ctx, m); err != nil {
			return wrapRepositoryError(err)
		}
		updated = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func appendEntry(ctx context.Context, tx txn.Tx, medicineID, change int64, reason ledger.Reason) error {
	entry, err := ledger.NewEntry(medicineID, change, reason)
	if err != nil {
		return err
	}
	if _, err := tx.Ledger().Append(ctx, entry); err != nil {
		return wrapRepositoryError(err)
	}
	return nil
}

func wrapRepositoryError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, medicine.ErrNotFound),
		errors.Is(err, medicine.ErrDuplicateName),
		errors.Is(err, txn.ErrLockTimeout),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}
