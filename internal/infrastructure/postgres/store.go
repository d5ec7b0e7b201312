// Package postgres stores the pharmacy tables in PostgreSQL. Transactions run
// at READ COMMITTED and lock rows with SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/ledger"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/medicine"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/txn"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func New(ctx context.Context, databaseURL string, lockTimeout time.Duration) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{pool: pool, lockTimeout: lockTimeout}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Migrate creates the tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

var _ txn.Manager = (*Store)(nil)

func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx txn.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: set lock timeout: %w", err)
		}
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	// Once every lock is held the commit must not be abandoned half way.
	if err := tx.Commit(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("postgres: commit: %w", mapError(err))
	}
	committed = true
	return nil
}

func (s *Store) Medicines() medicine.Finder { return medicineFinder{s.pool} }
func (s *Store) Accounts() account.Finder   { return accountFinder{s.pool} }
func (s *Store) Orders() order.Finder       { return orderFinder{s.pool} }
func (s *Store) Ledger() ledger.Finder      { return ledgerFinder{s.pool} }

const (
	codeUniqueViolation  = "23505"
	codeCheckViolation   = "23514"
	codeLockNotAvailable = "55P03"
	codeDeadlockDetected = "40P01"
)

// mapError turns constraint and lock failures into the domain's errors.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		switch pgErr.ConstraintName {
		case "medicines_name_key", "medicines_short_name_key":
			return fmt.Errorf("%w: %s", medicine.ErrDuplicateName, pgErr.ConstraintName)
		case "accounts_pkey":
			return account.ErrAlreadyExists
		}
	case codeCheckViolation:
		switch pgErr.ConstraintName {
		case "medicines_stock_check":
			return medicine.ErrInvalidStock
		case "accounts_balance_check":
			return account.ErrNegativeBalance
		}
	case codeLockNotAvailable, codeDeadlockDetected:
		return fmt.Errorf("%w: %s", txn.ErrLockTimeout, pgErr.Message)
	}
	return err
}
