// Package logctx carries the request or event scoped logger on a context.
package logctx

import (
	"context"

	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability"
)

type key struct{}

func With(ctx context.Context, l observability.Logger) context.Context {
	if ctx == nil || l == nil {
		return ctx
	}
	return context.WithValue(ctx, key{}, l)
}

func From(ctx context.Context) observability.Logger {
	if ctx == nil {
		return nil
	}
	l, _ := ctx.Value(key{}).(observability.Logger)
	return l
}

// FromOr returns the context logger, or fallback when none is bound.
func FromOr(ctx context.Context, fallback observability.Logger) observability.Logger {
	if l := From(ctx); l != nil {
		return l
	}
	return fallback
}

// Enrich adds fields to the bound logger (or fallback) and rebinds it.
func Enrich(ctx context.Context, fallback observability.Logger, fields ...observability.Field) (context.Context, observability.Logger) {
	l := FromOr(ctx, fallback)
	if l == nil {
		l = observability.NopLogger()
	}
	l = l.With(fields...)
	return With(ctx, l), l
}
