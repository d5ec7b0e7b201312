package worker

import (
	"context"

	appstockwatch "github.com/Zhima-Mochi/minishop-pharmacy/internal/application/stockwatch"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/medicine"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-pharmacy/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability"
	workerpresentation "github.com/Zhima-Mochi/minishop-pharmacy/internal/presentation/worker"
)

const componentStockWatch = "stockwatch_worker"

// Worker feeds committed stock changes from the bus into the stock watch.
type Worker struct {
	subscriber domoutbox.Subscriber
	service    *appstockwatch.Service
	log        observability.Logger
}

func New(subscriber domoutbox.Subscriber, service *appstockwatch.Service, tel observability.Observability) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		subscriber: subscriber,
		service:    service,
		log:        tel.Logger().With(observability.F("component", componentStockWatch)),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.service == nil {
		return
	}
	w.subscriber.Subscribe(order.EventPlaced, w.handle)
	w.subscriber.Subscribe(order.EventQuantityChanged, w.handle)
	w.subscriber.Subscribe(medicine.EventStockChanged, w.handle)
}

func (w *Worker) handle(ctx context.Context, e domoutbox.Event) error {
	var medicineID, stock int64
	switch evt := e.(type) {
	case order.PlacedEvent:
		medicineID, stock = evt.MedicineID, evt.RemainingStock
	case order.QuantityChangedEvent:
		medicineID, stock = evt.MedicineID, evt.RemainingStock
	case medicine.StockChangedEvent:
		medicineID, stock = evt.MedicineID, evt.Stock
	default:
		return nil
	}

	ctx = workerpresentation.EventContext(ctx, w.log, e)
	w.service.Check(ctx, medicineID, stock, e.EventName())
	return nil
}
