package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound                = errors.New("order: not found")
	ErrForbidden               = errors.New("order: requester does not own this order")
	ErrInvalidQuantity         = errors.New("order: quantity must be greater than zero")
	ErrInvalidAmount           = errors.New("order: total price must be zero or greater")
	ErrInvalidCustomer         = errors.New("order: customer id is required")
	ErrInvalidMedicine         = errors.New("order: medicine id is required")
	ErrInvalidStatus           = errors.New("order: unknown status")
	ErrInvalidStatusTransition = errors.New("order: invalid status transition")
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusProcessed Status = "Processed"
	StatusDelivered Status = "Delivered"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusProcessed, StatusDelivered:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

type Order struct {
	ID           int64
	CustomerID   int64
	MedicineID   int64
	Quantity     int64
	TotalPrice   decimal.Decimal
	Status       Status
	Prescription string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func New(customerID, medicineID, quantity int64, prescription string, total decimal.Decimal) (*Order, error) {
	if customerID <= 0 {
		return nil, ErrInvalidCustomer
	}
	if medicineID <= 0 {
		return nil, ErrInvalidMedicine
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if total.IsNegative() {
		return nil, ErrInvalidAmount
	}

	now := time.Now().UTC()
	return &Order{
		CustomerID:   customerID,
		MedicineID:   medicineID,
		Quantity:     quantity,
		TotalPrice:   total,
		Status:       StatusPending,
		Prescription: prescription,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (o *Order) OwnedBy(customerID int64) bool {
	return o.CustomerID == customerID
}

// Reprice records a new quantity together with the total computed for it.
func (o *Order) Reprice(quantity int64, total decimal.Decimal) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if total.IsNegative() {
		return ErrInvalidAmount
	}
	o.Quantity = quantity
	o.TotalPrice = total
	o.touch()
	return nil
}

// Advance moves the order forward to next.
func (o *Order) Advance(next Status) error {
	state, err := stateFor(o.Status)
	if err != nil {
		return err
	}
	if _, err := state.Advance(o, next); err != nil {
		return err
	}
	return nil
}

// RefundsOnDelete reports whether removing the order gives stock and money back.
// Delivered sales are final.
func (o *Order) RefundsOnDelete() bool {
	state, err := stateFor(o.Status)
	if err != nil {
		return false
	}
	return state.RefundsOnDelete()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	return &clone
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
