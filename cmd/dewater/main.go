package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/hibiken/asynq"

	"github.com/redkey-web/DewaterQuote-sub003/internal/app"
	"github.com/redkey-web/DewaterQuote-sub003/internal/auth"
	"github.com/redkey-web/DewaterQuote-sub003/internal/export"
	"github.com/redkey-web/DewaterQuote-sub003/internal/notify"
	"github.com/redkey-web/DewaterQuote-sub003/internal/quotes"
	"github.com/redkey-web/DewaterQuote-sub003/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

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
	inspector := asynq.NewInspector(redisOpt)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	params := app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: c.Sessions,
		CSRFManager:    c.CSRF,
		AuthHandler:    auth.NewHandler(logger, c.Auth, c.Sessions, c.CSRF),
		QuoteHandler:   quotes.NewHandler(logger, c.Quotes, c.EmailLogs, c.Audit),
		ExportHandler:  export.NewHandler(logger, c.Quotes, cfg.Location()),
		WebhookHandler: notify.NewWebhookHandler(c.Dispatcher, logger),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        c.Metrics,
		Ready: map[string]app.Pinger{
			"postgres": c.Pool,
			"redis":    app.PingFunc(func(ctx context.Context) error { return c.Redis.Ping(ctx).Err() }),
		},
	}
	if c.LocalDocuments != nil {
		params.Documents = c.LocalDocuments.Handler()
	}

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           app.NewRouter(params),
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
