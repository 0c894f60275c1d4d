package notify

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/redkey-web/DewaterQuote-sub003/internal/platform/httpx"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives SendGrid event batches.
type WebhookHandler struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewWebhookHandler constructs the handler.
func NewWebhookHandler(dispatcher *Dispatcher, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{dispatcher: dispatcher, logger: logger}
}

// MountRoutes registers the webhook endpoints.
func (h *WebhookHandler) MountRoutes(r chi.Router) {
	r.Post("/", h.receive)
	r.Get("/", h.status)
}

func (h *WebhookHandler) receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid payload", "request body too large")
		return
	}
	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		h.logger.Error("decode sendgrid webhook", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Webhook processing failed", "")
		return
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || trimmed[0] != '[' {
		httpx.Problem(w, http.StatusBadRequest, "Invalid payload", "expected a JSON array of events")
		return
	}
	var events []Event
	if err := json.Unmarshal(raw, &events); err != nil {
		h.logger.Error("decode sendgrid events", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Webhook processing failed", "")
		return
	}

	result := h.dispatcher.HandleEvents(r.Context(), events)
	h.logger.Info("sendgrid webhook processed", slog.Int("received", result.Received), slog.Any("outcomes", result.Outcomes))
	httpx.JSON(w, http.StatusOK, map[string]any{"received": true})
}

func (h *WebhookHandler) status(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "SendGrid webhook endpoint active"})
}
