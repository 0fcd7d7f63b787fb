package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/case-intake/internal/bootstrap"
	"github.com/kirillkom/case-intake/internal/config"
	"github.com/kirillkom/case-intake/internal/core/domain"
	"github.com/kirillkom/case-intake/internal/observability/logging"
	"github.com/kirillkom/case-intake/internal/observability/tracing"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := tracing.Init(ctx, logger, tracing.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: "case-intake-" + serviceName,
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
		SampleRatio: cfg.OTelSampleRatio,
	})
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	app, err := bootstrap.New(ctx, cfg, serviceName, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", app.IntakeMetrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "queue_group", cfg.NATSQueueGroup)
	err = app.Queue.SubscribeBatches(ctx, func(handlerCtx context.Context, batch domain.Batch) error {
		app.IntakeMetrics.StartBatch()
		defer app.IntakeMetrics.FinishBatch()
		if !batch.CreatedAt.IsZero() {
			app.IntakeMetrics.ObserveQueueLag(time.Since(batch.CreatedAt))
		}

		// A shutdown signal must not abandon documents mid-pipeline.
		processCtx, cancel := context.WithTimeout(context.WithoutCancel(handlerCtx), cfg.BatchTimeout)
		defer cancel()
		_, err := app.Intake.ProcessBatch(processCtx, batch)
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_error", "error", err)
		os.Exit(1)
	}
}
