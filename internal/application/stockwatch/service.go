// Package stockwatch raises alerts when committed stock changes leave a
// medicine at or below the low-stock threshold.
package stockwatch

import (
	"context"
	"strconv"

	"github.com/Zhima-Mochi/minishop-pharmacy/internal/application"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	watchService     = "stockwatch"
	useCaseCheck     = "stockwatch.check"
	DefaultThreshold = 5
)

type Service struct {
	threshold int64
	inst      *application.Instrumentation
	alerts    observability.Counter // low_stock_alerts_total{medicine_id}
}

func NewService(threshold int64, tel observability.Observability) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	return &Service{
		threshold: threshold,
		inst:      application.NewInstrumentation(watchService, tel),
		alerts:    tel.Metrics().Counter(observability.MLowStockAlerts),
	}
}

func (s *Service) Threshold() int64 { return s.threshold }

// Check reports whether stock is low enough to alert on, and if so logs and
// counts the alert.
func (s *Service) Check(ctx context.Context, medicineID, stock int64, source string) (alerted bool) {
	_, run := s.inst.Start(ctx, useCaseCheck, "CheckStock",
		attribute.Int64("medicine.id", medicineID),
		attribute.Int64("medicine.stock", stock),
		attribute.String("source", source),
	)
	defer run.End(nil)

	if stock > s.threshold {
		return false
	}

	run.SetStatus("LOW_STOCK")
	s.alerts.Add(1, observability.L("medicine_id", strconv.FormatInt(medicineID, 10)))
	run.Logger().Warn("low_stock",
		observability.F("medicine_id", medicineID),
		observability.F("stock", stock),
		observability.F("threshold", s.threshold),
		observability.F("source", source),
	)
	return true
}
