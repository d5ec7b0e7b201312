package zaplogger

import (
	"errors"
	"testing"

	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_CarriesFixedAndScopedFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core), observability.F("service", "pharmacy"))

	l.With(observability.F("use_case", "order.create")).
		Warn("low_stock", observability.F("stock", int64(1)), observability.Err(errors.New("boom")))

	entries := logs.All()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "low_stock", e.Message)
	assert.Equal(t, zapcore.WarnLevel, e.Level)

	fields := e.ContextMap()
	assert.Equal(t, "pharmacy", fields["service"])
	assert.Equal(t, "order.create", fields["use_case"])
	assert.Equal(t, int64(1), fields["stock"])
	assert.Equal(t, "boom", fields["error"])
}

func TestNew_NilLoggerIsSafe(t *testing.T) {
	assert.NotPanics(t, func() { New(nil).Info("ignored") })
}

func TestLogger_MoneyIsFixedPoint(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	New(zap.New(core)).Info("balance", observability.F("balance", decimal.RequireFromString("85.5")))
	assert.Equal(t, "85.50", logs.All()[0].ContextMap()["balance"])
}

func TestLogger_SkipsDisabledLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	New(zap.New(core)).Debug("noise", observability.F("k", "v"))
	assert.Zero(t, logs.Len())
}
