package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/redkey-web/DewaterQuote-sub003/internal/auth"
	"github.com/redkey-web/DewaterQuote-sub003/internal/export"
	"github.com/redkey-web/DewaterQuote-sub003/internal/notify"
	"github.com/redkey-web/DewaterQuote-sub003/internal/observability"
	"github.com/redkey-web/DewaterQuote-sub003/internal/platform/httpx"
	"github.com/redkey-web/DewaterQuote-sub003/internal/quotes"
	"github.com/redkey-web/DewaterQuote-sub003/internal/shared"
	"github.com/redkey-web/DewaterQuote-sub003/jobs"
)

// Pinger checks a backing service for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthHandler    *auth.Handler
	QuoteHandler   *quotes.Handler
	ExportHandler  *export.Handler
	WebhookHandler *notify.WebhookHandler
	JobHandler     *jobs.Handler
	// Documents serves locally stored PDFs; nil when a bucket serves them.
	Documents http.Handler
	Metrics   *observability.Metrics
	Ready     map[string]Pinger
}

// NewRouter constructs the chi.Router with Dewater defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	if params.Logger == nil {
		params.Logger = slog.Default()
	}

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(params.Ready, params.Logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Documents != nil {
		r.Handle("/documents/*", http.StripPrefix("/documents", params.Documents))
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			rate := 20
			if params.Config != nil {
				rate = params.Config.PublicRateLimit
			}
			r.Use(PublicRateLimit(rate))
			params.QuoteHandler.MountPublic(r)
		})
		if params.WebhookHandler != nil {
			r.Route("/webhooks/sendgrid", params.WebhookHandler.MountRoutes)
		}

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.SessionMiddleware(params.SessionManager, params.Logger))
			r.Group(func(r chi.Router) {
				r.Use(PublicRateLimit(10))
				params.AuthHandler.MountRoutes(r)
			})
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAdmin, auth.CSRFMiddleware(params.CSRFManager, params.Logger))
				params.AuthHandler.MountAuthenticated(r)
				if params.ExportHandler != nil {
					params.ExportHandler.MountAdmin(r)
				}
				params.QuoteHandler.MountAdmin(r)
			})
		})
	})

	return r
}

func readiness(checks map[string]Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		status := map[string]string{}
		healthy := true
		for name, p := range checks {
			if err := p.Ping(ctx); err != nil {
				logger.Warn("readiness check failed", slog.String("check", name), slog.Any("error", err))
				status[name] = "down"
				healthy = false
				continue
			}
			status[name] = "up"
		}
		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		httpx.JSON(w, code, status)
	}
}
