package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/hibiken/asynq"

	"github.com/redkey-web/DewaterQuote-sub003/internal/app"
	jobmetrics "github.com/redkey-web/DewaterQuote-sub003/internal/jobs"
	"github.com/redkey-web/DewaterQuote-sub003/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	c, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}
	defer c.Close()

	redisOpt, err := c.AsynqRedis()
	if err != nil {
		logger.Error("asynq redis", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := jobmetrics.NewMetrics(c.Metrics.Registerer())
	sendJob := jobs.NewQuoteSendJob(c.Quotes, logger, metrics)
	reconcileJob := jobs.NewReconcileJob(c.Quotes, logger, metrics)
	purgeJob := jobs.NewPurgeKeysJob(c.Keys, logger, metrics)

	reconcileTask, err := jobs.NewReconcileTask(50)
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}
	purgeTask, err := jobs.NewPurgeKeysTask(cfg.ProcessedKeyRetention)
	if err != nil {
		logger.Error("build purge task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpt,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskQuoteSend, Handler: sendJob.Handle},
			{Type: jobs.TaskReconcileStale, Handler: reconcileJob.Handle},
			{Type: jobs.TaskPurgeProcessedKeys, Handler: purgeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReconcileCron, Task: reconcileTask, Options: []asynq.Option{asynq.Unique(cfg.SendStaleAfter)}},
			{Spec: "30 3 * * *", Task: purgeTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
