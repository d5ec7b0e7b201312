package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/ledger"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/medicine"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/order"

	"github.com/jackc/pgx/v5"
)

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) Medicines() medicine.Repository { return medicineRepo{t.tx} }
func (t *pgTx) Accounts() account.Repository   { return accountRepo{t.tx} }
func (t *pgTx) Orders() order.Repository       { return orderRepo{t.tx} }
func (t *pgTx) Ledger() ledger.Repository      { return ledgerRepo{t.tx} }

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const medicineColumns = `id, name, short_name, category, description, price, stock, created_at, updated_at`

func scanMedicine(row rowScanner) (*medicine.Medicine, error) {
	var m medicine.Medicine
	var category string
	if err := row.Scan(&m.ID, &m.Name, &m.ShortName, &category, &m.Description, &m.Price, &m.Stock, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, medicine.ErrNotFound
		}
		return nil, err
	}
	m.Category = medicine.Category(category)
	return &m, nil
}

type medicineRepo struct{ tx pgx.Tx }

func (r medicineRepo) GetForUpdate(ctx context.Context, id int64) (*medicine.Medicine, error) {
	m, err := scanMedicine(r.tx.QueryRow(ctx,
		`SELECT `+medicineColumns+` FROM medicines WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return m, nil
}

func (r medicineRepo) Insert(ctx context.Context, m *medicine.Medicine) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO medicines (name, short_name, category, description, price, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		m.Name, m.ShortName, string(m.Category), m.Description, m.Price, m.Stock, m.CreatedAt, m.UpdatedAt,
	).Scan(&m.ID)
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (r medicineRepo) Update(ctx context.Context, m *medicine.Medicine) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE medicines
		SET name = $2, short_name = $3, category = $4, description = $5, price = $6, stock = $7, updated_at = $8
		WHERE id = $1`,
		m.ID, m.Name, m.ShortName, string(m.Category), m.Description, m.Price, m.Stock, m.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return medicine.ErrNotFound
	}
	return nil
}

const accountColumns = `customer_id, balance, created_at, updated_at`

func scanAccount(row rowScanner) (*account.Account, error) {
	var a account.Account
	if err := row.Scan(&a.CustomerID, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

type accountRepo struct{ tx pgx.Tx }

func (r accountRepo) GetForUpdate(ctx context.Context, customerID int64) (*account.Account, error) {
	a, err := scanAccount(r.tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE customer_id = $1 FOR UPDATE`, customerID))
	if err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

func (r accountRepo) Insert(ctx context.Context, a *account.Account) error {
	_, err := r.tx.Exec(ctx,
		`INSERT INTO accounts (customer_id, balance, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		a.CustomerID, a.Balance, a.CreatedAt, a.UpdatedAt,
	)
	return mapError(err)
}

func (r accountRepo) Update(ctx context.Context, a *account.Account) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE accounts SET balance = $2, updated_at = $3 WHERE customer_id = $1`,
		a.CustomerID, a.Balance, a.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}

const orderColumns = `id, customer_id, medicine_id, quantity, total_price, status, prescription, created_at, updated_at`

func scanOrder(row rowScanner) (*order.Order, error) {
	var o order.Order
	var status string
	if err := row.Scan(&o.ID, &o.CustomerID, &o.MedicineID, &o.Quantity, &o.TotalPrice, &status, &o.Prescription, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, err
	}
	st, err := order.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("postgres: order %d: %w", o.ID, err)
	}
	o.Status = st
	return &o, nil
}

type orderRepo struct{ tx pgx.Tx }

func (r orderRepo) GetForUpdate(ctx context.Context, id int64) (*order.Order, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return o, nil
}

func (r orderRepo) Insert(ctx context.Context, o *order.Order) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO orders (customer_id, medicine_id, quantity, total_price, status, prescription, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		o.CustomerID, o.MedicineID, o.Quantity, o.TotalPrice, string(o.Status), o.Prescription, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	return mapError(err)
}

func (r orderRepo) Update(ctx context.Context, o *order.Order) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE orders
		SET quantity = $2, total_price = $3, status = $4, prescription = $5, updated_at = $6
		WHERE id = $1`,
		o.ID, o.Quantity, o.TotalPrice, string(o.Status), o.Prescription, o.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r orderRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

type ledgerRepo struct{ tx pgx.Tx }

func (r ledgerRepo) Append(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (medicine_id, change, reason, order_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		e.MedicineID, e.Change, string(e.Reason), e.OrderID, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return ledger.Entry{}, mapError(err)
	}
	return e, nil
}
