package ledger

import "context"

// Repository appends entries inside a transaction. There is no update or delete.
type Repository interface {
	Append(ctx context.Context, e Entry) (Entry, error)
}

// Finder reads the ledger outside of a transaction.
type Finder interface {
	// ListByMedicine returns up to limit entries newest first, restricted to
	// IDs strictly below before when before is positive.
	ListByMedicine(ctx context.Context, medicineID, before int64, limit int) ([]Entry, error)
	SumByMedicine(ctx context.Context, medicineID int64) (int64, error)
	// BalanceOf reads the medicine's stock and its ledger sum from one
	// snapshot, so no commit can land between the two. An unknown medicine
	// yields medicine.ErrNotFound.
	BalanceOf(ctx context.Context, medicineID int64) (Balance, error)
}

// Balance pairs a medicine's stock with the sum of its ledger changes.
type Balance struct {
	MedicineID int64
	Stock      int64
	Sum        int64
}
