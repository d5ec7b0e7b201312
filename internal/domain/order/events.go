package order

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventPlaced          = "order.placed"
	EventQuantityChanged = "order.quantity_changed"
	EventRemoved         = "order.removed"
	EventStatusChanged   = "order.status_changed"
)

// PlacedEvent is published after an order has been committed.
type PlacedEvent struct {
	OrderID        int64           `json:"order_id"`
	CustomerID     int64           `json:"customer_id"`
	MedicineID     int64           `json:"medicine_id"`
	Quantity       int64           `json:"quantity"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	RemainingStock int64           `json:"remaining_stock"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

func (PlacedEvent) EventName() string { return EventPlaced }

func NewPlacedEvent(o *Order, remainingStock int64) PlacedEvent {
	return PlacedEvent{
		OrderID:        o.ID,
		CustomerID:     o.CustomerID,
		MedicineID:     o.MedicineID,
		Quantity:       o.Quantity,
		TotalPrice:     o.TotalPrice,
		RemainingStock: remainingStock,
		OccurredAt:     time.Now().UTC(),
	}
}

type QuantityChangedEvent struct {
	OrderID        int64           `json:"order_id"`
	CustomerID     int64           `json:"customer_id"`
	MedicineID     int64           `json:"medicine_id"`
	OldQuantity    int64           `json:"old_quantity"`
	NewQuantity    int64           `json:"new_quantity"`
	PriceDelta     decimal.Decimal `json:"price_delta"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	RemainingStock int64           `json:"remaining_stock"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

func (QuantityChangedEvent) EventName() string { return EventQuantityChanged }

func NewQuantityChangedEvent(o *Order, oldQuantity int64, priceDelta decimal.Decimal, remainingStock int64) QuantityChangedEvent {
	return QuantityChangedEvent{
		OrderID:        o.ID,
		CustomerID:     o.CustomerID,
		MedicineID:     o.MedicineID,
		OldQuantity:    oldQuantity,
		NewQuantity:    o.Quantity,
		PriceDelta:     priceDelta,
		TotalPrice:     o.TotalPrice,
		RemainingStock: remainingStock,
		OccurredAt:     time.Now().UTC(),
	}
}

// RemovedEvent reports a deleted order. Refunded is false for delivered
// orders, whose stock and money are not returned.
type RemovedEvent struct {
	OrderID    int64           `json:"order_id"`
	CustomerID int64           `json:"customer_id"`
	MedicineID int64           `json:"medicine_id"`
	Quantity   int64           `json:"quantity"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Refunded   bool            `json:"refunded"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func (RemovedEvent) EventName() string { return EventRemoved }

func NewRemovedEvent(o *Order, refunded bool) RemovedEvent {
	return RemovedEvent{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		MedicineID: o.MedicineID,
		Quantity:   o.Quantity,
		TotalPrice: o.TotalPrice,
		Refunded:   refunded,
		OccurredAt: time.Now().UTC(),
	}
}

type StatusChangedEvent struct {
	OrderID    int64     `json:"order_id"`
	CustomerID int64     `json:"customer_id"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (StatusChangedEvent) EventName() string { return EventStatusChanged }

func NewStatusChangedEvent(o *Order, from Status) StatusChangedEvent {
	return StatusChangedEvent{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		From:       from,
		To:         o.Status,
		OccurredAt: time.Now().UTC(),
	}
}

func (e PlacedEvent) AggregateID() int64          { return e.OrderID }
func (e QuantityChangedEvent) AggregateID() int64 { return e.OrderID }
func (e RemovedEvent) AggregateID() int64         { return e.OrderID }
func (e StatusChangedEvent) AggregateID() int64   { return e.OrderID }
