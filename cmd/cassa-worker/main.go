package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"cassa/internal/amqp"
	"cassa/internal/cli"
	"cassa/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting cassa-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// The event stream needs a broker; the reconcile loop does not.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - running reconcile loop only")
	}

	auditWorker := worker.NewAuditWorker(repo, cfg.RepairDrift)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	g, gctx := errgroup.WithContext(ctx)

	if amqpClient != nil {
		g.Go(func() error {
			return amqpClient.ConsumeTransactionEvents(gctx, func(msg *amqp.TransactionRecordedMessage) error {
				return auditWorker.HandleTransactionEvent(gctx, msg)
			})
		})
	}

	g.Go(func() error {
		return auditWorker.RunPeriodicReconcile(gctx, cfg.ReconcileInterval)
	})

	logger.Info("Worker running",
		"reconcile_interval", cfg.ReconcileInterval.String(),
		"repair_drift", cfg.RepairDrift)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	<-done
	logger.Info("Worker stopped gracefully")
}
