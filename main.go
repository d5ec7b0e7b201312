package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Zhima-Mochi/minishop-pharmacy/internal/app"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/config"
	infraobs "github.com/Zhima-Mochi/minishop-pharmacy/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability"
	"github.com/Zhima-Mochi/minishop-pharmacy/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/minishop-pharmacy/internal/presentation/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	baseLogger, err := logging.New(logging.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, baseLogger); err != nil {
		logging.System(baseLogger).Error("service_failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, baseLogger *zap.Logger) error {
	systemLogger := zaplogger.New(logging.System(baseLogger))

	shutdownTracing, err := oteltrace.Setup(ctx, oteltrace.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	tel := infraobs.New(
		oteltrace.New(cfg.ServiceName),
		zaplogger.New(baseLogger),
		prometrics.Register(prometrics.New(promRegistry, "", "")),
	)

	container, err := app.NewContainer(ctx, cfg, tel)
	if err != nil {
		return err
	}
	container.Start(ctx)

	handler := httppresentation.NewHandler(
		map[string]httppresentation.Pinger{"store": container.Store},
		promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		container.Ledger,
		tel,
	)
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.Router(),
	}

	serverErr := make(chan error, 1)
	go func() {
		defer close(serverErr)
		systemLogger.Info("http_server_start",
			observability.F("addr", server.Addr),
			observability.F("store_backend", cfg.StoreBackend),
			observability.F("kafka_enabled", cfg.KafkaEnabled()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", observability.Err(err))
	} else {
		systemLogger.Info("http_server_stopped")
	}
	if err := container.Close(shutdownCtx); err != nil {
		systemLogger.Warn("container_close_failed", observability.Err(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		systemLogger.Warn("tracer_shutdown_failed", observability.Err(err))
	}
	return runErr
}
