package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/redkey-web/DewaterQuote-sub003/internal/auth"
	"github.com/redkey-web/DewaterQuote-sub003/internal/docstore"
	"github.com/redkey-web/DewaterQuote-sub003/internal/document"
	"github.com/redkey-web/DewaterQuote-sub003/internal/notify"
	"github.com/redkey-web/DewaterQuote-sub003/internal/observability"
	"github.com/redkey-web/DewaterQuote-sub003/internal/platform/cache"
	"github.com/redkey-web/DewaterQuote-sub003/internal/platform/db"
	"github.com/redkey-web/DewaterQuote-sub003/internal/quotes"
	"github.com/redkey-web/DewaterQuote-sub003/internal/shared"
	"github.com/redkey-web/DewaterQuote-sub003/web"
)

// Container holds the long-lived dependencies shared by the server, the
// worker and the operator CLI.
type Container struct {
	Config  *Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics

	Sessions *shared.SessionManager
	CSRF     *shared.CSRFManager
	Audit    *shared.AuditLogger
	Keys     *shared.IdempotencyStore

	Auth       *auth.Service
	QuoteRepo  *quotes.PGRepository
	Quotes     *quotes.Service
	Dispatcher *notify.Dispatcher
	EmailLogs  *notify.EmailLogRepository
	Documents  *docstore.Store
	// LocalDocuments is set when documents are served by this process.
	LocalDocuments *docstore.LocalBackend

	closers []io.Closer
}

// Build connects to PostgreSQL and Redis and assembles the services.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{
		MaxConns:        cfg.PGMaxConns,
		MinConns:        cfg.PGMinConns,
		MaxConnLifetime: cfg.PGMaxConnLifetime,
	})
	if err != nil {
		return nil, err
	}
	c.Pool = pool

	rdb, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Redis = rdb

	c.Sessions = shared.NewSessionManager(rdb, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	c.CSRF = shared.NewCSRFManager(cfg.CSRFSecret)
	c.Audit = shared.NewAuditLogger(pool)
	c.Keys = shared.NewIdempotencyStore(pool)
	c.Auth = auth.NewService(auth.NewRepository(pool))

	backend, err := c.docBackend(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Documents = docstore.New(backend, logger)

	renderer, err := c.renderer()
	if err != nil {
		c.Close()
		return nil, err
	}

	templates, err := notify.ParseTemplates(web.Templates)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.QuoteRepo = quotes.NewRepository(pool)
	c.EmailLogs = notify.NewEmailLogRepository(pool)
	c.Dispatcher = notify.NewDispatcher(c.mailer(), templates, notify.Config{
		FromEmail:     cfg.FromEmail,
		FromName:      cfg.FromName,
		BusinessEmail: cfg.ContactEmail,
		WebsiteURL:    cfg.SiteURL,
		AdminURL:      cfg.AdminURL,
		Location:      cfg.Location(),
		Company:       document.DefaultCompany,
	}, logger,
		notify.WithEmailLog(c.EmailLogs),
		notify.WithQuoteLookup(c.QuoteRepo),
		notify.WithDeduper(c.Keys),
		notify.WithObserver(c.Metrics),
	)

	c.Quotes = quotes.NewService(c.QuoteRepo, quotes.Ports{
		Renderer: renderer,
		Store:    c.Documents,
		Notifier: c.Dispatcher,
		Locker:   shared.NewRedisLocker(rdb),
		Audit:    c.Audit,
		Observer: c.Metrics,
	}, quotes.ServiceConfig{
		Validity:             cfg.QuoteValidity,
		TokenTTL:             cfg.ApprovalTokenTTL,
		LockTTL:              cfg.SendLockTTL,
		StaleAfter:           cfg.SendStaleAfter,
		CertFeePerItem:       cfg.CertFeePerItem,
		RegionalShippingCost: cfg.RegionalShippingCost,
		QuoteNumberPrefix:    cfg.QuoteNumberPrefix,
		SiteURL:              cfg.SiteURL,
		Location:             cfg.Location(),
	}, logger)

	if !c.Dispatcher.Configured() {
		logger.Warn("email transport not configured, quote sends will be refused", slog.String("transport", cfg.MailTransport))
	}
	return c, nil
}

func (c *Container) docBackend(ctx context.Context) (docstore.Backend, error) {
	switch c.Config.DocstoreBackend {
	case "gcs":
		gcs, err := docstore.NewGCSBackend(ctx, c.Config.GCSBucket, c.Config.GCSCredentialsFile)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, gcs)
		return gcs, nil
	case "memory":
		return docstore.NewMemoryBackend(), nil
	default:
		local, err := docstore.NewLocalBackend(c.Config.DocstoreDir, c.Config.DocstoreBaseURL)
		if err != nil {
			return nil, err
		}
		c.LocalDocuments = local
		return local, nil
	}
}

func (c *Container) renderer() (document.Renderer, error) {
	var (
		next document.Renderer
		name = c.Config.PDFRenderer
	)
	switch name {
	case "gotenberg":
		html, err := document.NewHTMLRenderer(web.Templates, document.NewGotenbergClient(c.Config.GotenbergURL), document.DefaultCompany)
		if err != nil {
			return nil, err
		}
		next = html
	default:
		next = document.NewPDFRenderer(document.DefaultCompany)
	}
	return document.NewLoggingRenderer(next, name, c.Logger, c.Metrics), nil
}

func (c *Container) mailer() notify.Mailer {
	switch c.Config.MailTransport {
	case "sendgrid":
		return notify.NewSendGridMailer(c.Config.SendGridAPIKey)
	case "smtp":
		return notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     c.Config.SMTPHost,
			Port:     c.Config.SMTPPort,
			Username: c.Config.SMTPUsername,
			Password: c.Config.SMTPPassword,
		})
	default:
		return notify.UnconfiguredMailer{}
	}
}

// AsynqRedis converts the Redis settings for asynq.
func (c *Container) AsynqRedis() (asynq.RedisConnOpt, error) {
	return AsynqRedisOpt(c.Config.RedisAddr)
}

// AsynqRedisOpt accepts a host:port or a redis:// URL.
func AsynqRedisOpt(addr string) (asynq.RedisConnOpt, error) {
	opts, err := cache.Options(addr)
	if err != nil {
		return nil, fmt.Errorf("asynq redis: %w", err)
	}
	return asynq.RedisClientOpt{
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}, nil
}

// Close releases every connection the container opened.
func (c *Container) Close() {
	var errs []error
	for _, closer := range c.closers {
		errs = append(errs, closer.Close())
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
	if err := errors.Join(errs...); err != nil && c.Logger != nil {
		c.Logger.Warn("close container", slog.Any("error", err))
	}
}
