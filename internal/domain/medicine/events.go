package medicine

import "time"

const EventStockChanged = "medicine.stock_changed"

// StockChangedEvent is published after a catalog stock change commits.
type StockChangedEvent struct {
	MedicineID int64     `json:"medicine_id"`
	Change     int64     `json:"change"`
	Stock      int64     `json:"stock"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (StockChangedEvent) EventName() string { return EventStockChanged }

func NewStockChangedEvent(m *Medicine, change int64) StockChangedEvent {
	return StockChangedEvent{
		MedicineID: m.ID,
		Change:     change,
		Stock:      m.Stock,
		OccurredAt: time.Now().UTC(),
	}
}

func (e StockChangedEvent) AggregateID() int64 { return e.MedicineID }
