package ledger

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidReason   = errors.New("ledger: unknown change reason")
	ErrInvalidMedicine = errors.New("ledger: medicine id is required")
)

type Reason string

const (
	ReasonInitialStock        Reason = "Initial stock"
	ReasonStockUpdate         Reason = "Stock update"
	ReasonInitialSale         Reason = "Initial sale"
	ReasonOrderQuantityUpdate Reason = "Order quantity update"
)

func ParseReason(s string) (Reason, error) {
	switch r := Reason(s); r {
	case ReasonInitialStock, ReasonStockUpdate, ReasonInitialSale, ReasonOrderQuantityUpdate:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidReason, s)
}

// Entry is an immutable record of one stock change.
type Entry struct {
	ID         int64
	MedicineID int64
	Change     int64
	Reason     Reason
	OrderID    *int64
	CreatedAt  time.Time
}

func NewEntry(medicineID, change int64, reason Reason) (Entry, error) {
	if medicineID <= 0 {
		return Entry{}, ErrInvalidMedicine
	}
	if _, err := ParseReason(string(reason)); err != nil {
		return Entry{}, err
	}
	return Entry{
		MedicineID: medicineID,
		Change:     change,
		Reason:     reason,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// ForOrder links the entry to the order whose mutation produced it.
func (e Entry) ForOrder(orderID int64) Entry {
	e.OrderID = &orderID
	return e
}
