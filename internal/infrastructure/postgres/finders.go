package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/ledger"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/medicine"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/order"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type medicineFinder struct{ pool *pgxpool.Pool }

func (f medicineFinder) Get(ctx context.Context, id int64) (*medicine.Medicine, error) {
	return scanMedicine(f.pool.QueryRow(ctx, `SELECT `+medicineColumns+` FROM medicines WHERE id = $1`, id))
}

func (f medicineFinder) List(ctx context.Context, filter medicine.Filter, after int64, limit int) ([]*medicine.Medicine, error) {
	where, args := medicineWhere(filter, after)
	args = append(args, limit)
	q := fmt.Sprintf(`SELECT %s FROM medicines WHERE %s ORDER BY id LIMIT $%d`, medicineColumns, where, len(args))

	rows, err := f.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*medicine.Medicine, 0, limit)
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// medicineWhere renders filter as a parameterised WHERE clause.
func medicineWhere(f medicine.Filter, after int64) (string, []any) {
	args := []any{after}
	conds := []string{"id > $1"}
	if f.NameContains != "" {
		args = append(args, "%"+escapeLike(f.NameContains)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR short_name ILIKE $%d)", n, n))
	}
	if f.Category != "" {
		args = append(args, string(f.Category))
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.MinPrice != nil {
		args = append(args, *f.MinPrice)
		conds = append(conds, fmt.Sprintf("price >= $%d", len(args)))
	}
	if f.MaxPrice != nil {
		args = append(args, *f.MaxPrice)
		conds = append(conds, fmt.Sprintf("price <= $%d", len(args)))
	}
	if f.InStockOnly {
		conds = append(conds, "stock > 0")
	}
	return strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

type accountFinder struct{ pool *pgxpool.Pool }

func (f accountFinder) Get(ctx context.Context, customerID int64) (*account.Account, error) {
	return scanAccount(f.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE customer_id = $1`, customerID))
}

type orderFinder struct{ pool *pgxpool.Pool }

func (f orderFinder) Get(ctx context.Context, id int64) (*order.Order, error) {
	return scanOrder(f.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (f orderFinder) ListByCustomer(ctx context.Context, customerID, after int64, limit int) ([]*order.Order, error) {
	rows, err := f.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 AND id > $2 ORDER BY id LIMIT $3`,
		customerID, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*order.Order, 0, limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (f orderFinder) CountByCustomer(ctx context.Context, customerID int64) (int, error) {
	var n int
	err := f.pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE customer_id = $1`, customerID).Scan(&n)
	return n, err
}

type ledgerFinder struct{ pool *pgxpool.Pool }

func (f ledgerFinder) ListByMedicine(ctx context.Context, medicineID, before int64, limit int) ([]ledger.Entry, error) {
	var (
		rows pgx.Rows
		err  error
	)
	const cols = `id, medicine_id, change, reason, order_id, created_at`
	if before > 0 {
		rows, err = f.pool.Query(ctx,
			`SELECT `+cols+` FROM ledger_entries WHERE medicine_id = $1 AND id < $2 ORDER BY id DESC LIMIT $3`,
			medicineID, before, limit)
	} else {
		rows, err = f.pool.Query(ctx,
			`SELECT `+cols+` FROM ledger_entries WHERE medicine_id = $1 ORDER BY id DESC LIMIT $2`,
			medicineID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ledger.Entry, 0, limit)
	for rows.Next() {
		var (
			e      ledger.Entry
			reason string
		)
		if err := rows.Scan(&e.ID, &e.MedicineID, &e.Change, &reason, &e.OrderID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Reason, err = ledger.ParseReason(reason); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (f ledgerFinder) SumByMedicine(ctx context.Context, medicineID int64) (int64, error) {
	var sum int64
	err := f.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(change), 0)::BIGINT FROM ledger_entries WHERE medicine_id = $1`, medicineID,
	).Scan(&sum)
	return sum, err
}

// BalanceOf runs as one statement, so stock and sum come from the same snapshot.
func (f ledgerFinder) BalanceOf(ctx context.Context, medicineID int64) (ledger.Balance, error) {
	b := ledger.Balance{MedicineID: medicineID}
	err := f.pool.QueryRow(ctx, `
		SELECT m.stock, COALESCE(SUM(l.change), 0)::BIGINT
		FROM medicines m
		LEFT JOIN ledger_entries l ON l.medicine_id = m.id
		WHERE m.id = $1
		GROUP BY m.id, m.stock`, medicineID,
	).Scan(&b.Stock, &b.Sum)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Balance{}, medicine.ErrNotFound
	}
	return b, err
}
