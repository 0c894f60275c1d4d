package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redkey-web/DewaterQuote-sub003/internal/shared"
)

// Event is one SendGrid event webhook record.
type Event struct {
	Email       string `json:"email"`
	Timestamp   int64  `json:"timestamp"`
	Event       string `json:"event"`
	Reason      string `json:"reason,omitempty"`
	SGEventID   string `json:"sg_event_id,omitempty"`
	SGMessageID string `json:"sg_message_id,omitempty"`
	QuoteID     string `json:"quote_id,omitempty"`
}

// QuoteRef identifies the quote an event belongs to.
type QuoteRef struct {
	ID          int64
	QuoteNumber string
	CompanyName string
	ContactName string
	Email       string
}

// QuoteLookup resolves events to quotes.
type QuoteLookup interface {
	QuoteRefByID(ctx context.Context, id int64) (QuoteRef, bool, error)
	LatestQuoteRefByEmail(ctx context.Context, email string) (QuoteRef, bool, error)
}

// EventDeduper persists processed provider event ids.
type EventDeduper interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

const dedupeModule = "sendgrid_events"

// Webhook event outcomes.
const (
	OutcomeNotified  = "notified"
	OutcomeInternal  = "internal"
	OutcomeDuplicate = "duplicate"
	OutcomeUnmatched = "unmatched"
	OutcomeIgnored   = "ignored"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// WebhookResult summarises a processed batch.
type WebhookResult struct {
	Received int            `json:"received"`
	Outcomes map[string]int `json:"outcomes"`
}

type alertKind struct {
	label   string
	icon    string
	urgent  bool
	subject func(q QuoteRef) string
	message func(q QuoteRef, email, at, reason string) string
}

var alertKinds = map[string]alertKind{
	"delivered": {
		label: "delivered",
		icon:  "✅",
		subject: func(q QuoteRef) string {
			return "Quote " + q.QuoteNumber + " - Email Delivered"
		},
		message: func(q QuoteRef, email, at, _ string) string {
			return fmt.Sprintf("The quote email was successfully delivered to %s (%s) at %s.", q.ContactName, email, at)
		},
	},
	"open": {
		label: "opened",
		icon:  "\U0001F440",
		subject: func(q QuoteRef) string {
			return "Quote " + q.QuoteNumber + " - Customer Opened Email"
		},
		message: func(q QuoteRef, _, at, _ string) string {
			return fmt.Sprintf("%s from %s opened the quote email at %s. This is a good time to follow up!", q.ContactName, q.CompanyName, at)
		},
	},
	"click": {
		label: "clicked",
		icon:  "\U0001F517",
		subject: func(q QuoteRef) string {
			return "Quote " + q.QuoteNumber + " - Customer Clicked Link"
		},
		message: func(q QuoteRef, _, at, _ string) string {
			return fmt.Sprintf("%s from %s clicked a link in the quote email at %s. They are actively reviewing the quote!", q.ContactName, q.CompanyName, at)
		},
	},
}

var failedAlert = alertKind{
	label:  "failed",
	icon:   "❌",
	urgent: true,
	subject: func(q QuoteRef) string {
		return "Quote " + q.QuoteNumber + " - Email FAILED to Deliver"
	},
	message: func(q QuoteRef, email, _, reason string) string {
		return fmt.Sprintf("The quote email to %s (%s) failed to deliver.\n\nReason: %s\n\nPlease contact the customer by phone: Check quote for phone number.", q.ContactName, email, reason)
	},
}

func init() {
	alertKinds["bounce"] = failedAlert
	alertKinds["dropped"] = failedAlert
}

// EventLabel maps a provider event to the label used in notifications.
// Unrelayed events return "".
func EventLabel(event string) string {
	return alertKinds[event].label
}

type alertView struct {
	Icon        string
	Urgent      bool
	Lines       []string
	QuoteNumber string
	CompanyName string
	ContactName string
	Email       string
	AdminURL    string
}

// HandleEvents relays customer email events to the business inbox.
// Each event is isolated; failures are logged and counted, never returned.
func (d *Dispatcher) HandleEvents(ctx context.Context, events []Event) WebhookResult {
	result := WebhookResult{Received: len(events), Outcomes: make(map[string]int)}
	for _, ev := range events {
		outcome := d.handleEvent(ctx, ev)
		result.Outcomes[outcome]++
		if d.observer != nil {
			d.observer.ObserveWebhookEvent(ev.Event, outcome)
		}
	}
	return result
}

func (d *Dispatcher) isInternal(email string) bool {
	e := strings.ToLower(strings.TrimSpace(email))
	return e == strings.ToLower(d.cfg.BusinessEmail) || e == strings.ToLower(d.cfg.FromEmail)
}

func (d *Dispatcher) handleEvent(ctx context.Context, ev Event) string {
	logger := d.logger.With(slog.String("event", ev.Event), slog.String("sg_event_id", ev.SGEventID))
	if d.isInternal(ev.Email) {
		return OutcomeInternal
	}
	kind, relayed := alertKinds[ev.Event]

	if d.dedupe != nil && ev.SGEventID != "" {
		if err := d.dedupe.CheckAndInsert(ctx, ev.SGEventID, dedupeModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return OutcomeDuplicate
			}
			logger.Warn("dedupe webhook event", slog.Any("error", err))
		}
	}

	quote, found, err := d.matchQuote(ctx, ev)
	if err != nil {
		logger.Error("lookup quote for event", slog.Any("error", err))
		d.release(ctx, ev)
		return OutcomeFailed
	}
	if !found {
		logger.Info("event for unknown email", slog.String("email", ev.Email))
		return OutcomeUnmatched
	}
	if !relayed {
		logger.Info("event not relayed", slog.String("quote_number", quote.QuoteNumber))
		return OutcomeIgnored
	}
	if !d.Configured() {
		logger.Warn("email not configured, skipping notification", slog.String("quote_number", quote.QuoteNumber))
		return OutcomeSkipped
	}

	if err := d.sendAlert(ctx, kind, quote, ev); err != nil {
		d.release(ctx, ev)
		return OutcomeFailed
	}
	return OutcomeNotified
}

func (d *Dispatcher) release(ctx context.Context, ev Event) {
	if d.dedupe == nil || ev.SGEventID == "" {
		return
	}
	if err := d.dedupe.Delete(ctx, ev.SGEventID); err != nil {
		d.logger.Warn("release webhook event", slog.String("sg_event_id", ev.SGEventID), slog.Any("error", err))
	}
}

// matchQuote prefers the quote_id custom arg and falls back to the most
// recent quote for the recipient.
func (d *Dispatcher) matchQuote(ctx context.Context, ev Event) (QuoteRef, bool, error) {
	if d.quotes == nil {
		return QuoteRef{}, false, nil
	}
	if id, err := strconv.ParseInt(strings.TrimSpace(ev.QuoteID), 10, 64); err == nil && id > 0 {
		ref, ok, err := d.quotes.QuoteRefByID(ctx, id)
		if err != nil {
			return QuoteRef{}, false, err
		}
		if ok && strings.EqualFold(ref.Email, strings.TrimSpace(ev.Email)) {
			return ref, true, nil
		}
		d.logger.Warn("quote_id does not match recipient", slog.Int64("quote_id", id), slog.String("email", ev.Email))
	}
	return d.quotes.LatestQuoteRefByEmail(ctx, strings.TrimSpace(ev.Email))
}

// FormatEventTime renders a unix timestamp in the notification timezone.
func (d *Dispatcher) FormatEventTime(ts int64) string {
	return time.Unix(ts, 0).In(d.cfg.Location).Format("2 Jan 2006, 3:04 pm")
}

func (d *Dispatcher) sendAlert(ctx context.Context, kind alertKind, quote QuoteRef, ev Event) error {
	reason := strings.TrimSpace(ev.Reason)
	if reason == "" {
		reason = "Unknown"
	}
	message := kind.message(quote, ev.Email, d.FormatEventTime(ev.Timestamp), reason)
	view := alertView{
		Icon:        kind.icon,
		Urgent:      kind.urgent,
		Lines:       strings.Split(message, "\n"),
		QuoteNumber: quote.QuoteNumber,
		CompanyName: quote.CompanyName,
		ContactName: quote.ContactName,
		Email:       quote.Email,
		AdminURL:    d.cfg.AdminURL,
	}
	htmlBody, _, err := d.templates.Render(tmplDeliveryAlert, view)
	if err != nil {
		d.logger.Error("render delivery alert", slog.Any("error", err))
		return err
	}
	subject := kind.subject(quote)
	if kind.urgent {
		subject = "URGENT: " + subject
	}
	return d.deliver(ctx, Message{
		From:    Address{Email: d.cfg.FromEmail, Name: d.cfg.SystemName},
		To:      []Address{{Email: d.cfg.BusinessEmail}},
		Subject: subject,
		HTML:    htmlBody,
		Text:    message,
	}, quote.QuoteNumber, RouteWebhookRelay)
}
