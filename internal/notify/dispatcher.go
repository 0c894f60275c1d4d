package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redkey-web/DewaterQuote-sub003/internal/document"
	"github.com/redkey-web/DewaterQuote-sub003/internal/pricing"
)

// Email log routes.
const (
	RouteQuoteSend      = "quotes.send"
	RouteSubmitBusiness = "quotes.submit.business"
	RouteSubmitCustomer = "quotes.submit.customer"
	RouteWebhookRelay   = "webhooks.sendgrid"
)

// Config holds sender identities and links used in emails.
type Config struct {
	FromEmail     string
	FromName      string
	BusinessEmail string
	SystemName    string
	WebsiteURL    string
	AdminURL      string
	Location      *time.Location
	Company       document.Company
}

// EmailLogStore records every send attempt.
type EmailLogStore interface {
	Record(ctx context.Context, entry EmailLog) error
}

// Observer receives email outcomes.
type Observer interface {
	ObserveEmail(route, outcome string)
	ObserveWebhookEvent(event, outcome string)
}

// Dispatcher composes and sends quote emails through an injected Mailer.
type Dispatcher struct {
	mailer    Mailer
	templates *Templates
	logs      EmailLogStore
	quotes    QuoteLookup
	dedupe    EventDeduper
	observer  Observer
	cfg       Config
	logger    *slog.Logger
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithEmailLog records sends to store.
func WithEmailLog(store EmailLogStore) Option {
	return func(d *Dispatcher) { d.logs = store }
}

// WithQuoteLookup enables webhook relaying.
func WithQuoteLookup(lookup QuoteLookup) Option {
	return func(d *Dispatcher) { d.quotes = lookup }
}

// WithDeduper skips provider events that were already processed.
func WithDeduper(dedupe EventDeduper) Option {
	return func(d *Dispatcher) { d.dedupe = dedupe }
}

// WithObserver reports outcomes to a metrics sink.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(mailer Mailer, templates *Templates, cfg Config, logger *slog.Logger, opts ...Option) *Dispatcher {
	if mailer == nil {
		mailer = UnconfiguredMailer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Company.Name == "" {
		cfg.Company = document.DefaultCompany
	}
	if cfg.FromName == "" {
		cfg.FromName = "Dewater Products"
	}
	if cfg.SystemName == "" {
		cfg.SystemName = "Dewater Products Quote System"
	}
	d := &Dispatcher{mailer: mailer, templates: templates, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Configured reports whether the underlying mailer can send.
func (d *Dispatcher) Configured() bool {
	return d != nil && d.mailer.Configured()
}

type quoteView struct {
	document.QuotePDFData
	Company       document.Company
	WebsiteURL    string
	AdminURL      string
	CustomMessage string
	ApprovalURL   string
	Flags         []string
}

func (d *Dispatcher) view(data document.QuotePDFData) quoteView {
	return quoteView{QuotePDFData: data, Company: d.cfg.Company, WebsiteURL: d.cfg.WebsiteURL, AdminURL: d.cfg.AdminURL}
}

// QuoteEmail is a formal quote sent to the customer.
type QuoteEmail struct {
	QuoteID       int64
	Data          document.QuotePDFData
	PDF           []byte
	CustomMessage string
}

// QuoteSubject is the subject line of a formal quote email.
func QuoteSubject(quoteNumber string) string {
	return fmt.Sprintf("Your Quote %s from Dewater Products", quoteNumber)
}

// SendQuote emails the rendered quote with the PDF attached.
func (d *Dispatcher) SendQuote(ctx context.Context, email QuoteEmail) error {
	msg, err := d.quoteMessage(email)
	if err != nil {
		return err
	}
	return d.deliver(ctx, msg, email.Data.QuoteNumber, RouteQuoteSend)
}

// PreviewQuote renders the customer email without sending it.
func (d *Dispatcher) PreviewQuote(email QuoteEmail) (subject, htmlBody string, err error) {
	msg, err := d.quoteMessage(email)
	if err != nil {
		return "", "", err
	}
	return msg.Subject, msg.HTML, nil
}

func (d *Dispatcher) quoteMessage(email QuoteEmail) (Message, error) {
	view := d.view(email.Data)
	view.CustomMessage = strings.TrimSpace(email.CustomMessage)
	htmlBody, textBody, err := d.templates.Render(tmplCustomerQuote, view)
	if err != nil {
		return Message{}, err
	}
	subject := QuoteSubject(email.Data.QuoteNumber)
	return Message{
		From:    Address{Email: d.cfg.FromEmail, Name: d.cfg.FromName},
		To:      []Address{{Email: email.Data.Email, Name: email.Data.ContactName}},
		ReplyTo: &Address{Email: d.cfg.BusinessEmail, Name: d.cfg.FromName},
		Subject: subject,
		HTML:    htmlBody,
		Text:    textBody,
		Attachments: []Attachment{{
			Filename:    email.Data.QuoteNumber + ".pdf",
			ContentType: "application/pdf",
			Content:     email.PDF,
		}},
		CustomArgs: map[string]string{"quote_id": strconv.FormatInt(email.QuoteID, 10)},
		Categories: []string{"quote"},
	}, nil
}

// SubmissionEmail announces a newly submitted quote request.
type SubmissionEmail struct {
	Data        document.QuotePDFData
	Flags       pricing.Flags
	ApprovalURL string
}

// NotifySubmission sends the business alert and the customer acknowledgement.
// Both are attempted; the joined error is informational.
func (d *Dispatcher) NotifySubmission(ctx context.Context, email SubmissionEmail) error {
	if !d.Configured() {
		d.logger.Warn("email not configured, skipping submission emails", slog.String("quote_number", email.Data.QuoteNumber))
		return ErrNotConfigured
	}
	num := email.Data.QuoteNumber

	view := d.view(email.Data)
	view.Flags = FlagNotes(email.Flags)
	view.ApprovalURL = email.ApprovalURL
	var errs []error
	if htmlBody, textBody, err := d.templates.Render(tmplBusinessQuote, view); err != nil {
		errs = append(errs, err)
	} else {
		who := email.Data.CompanyName
		if who == "" {
			who = email.Data.ContactName
		}
		subject := fmt.Sprintf("New Quote Request %s - %s", num, who)
		if !email.Flags.Standard() {
			subject = "[Review] " + subject
		}
		errs = append(errs, d.deliver(ctx, Message{
			From:    Address{Email: d.cfg.FromEmail, Name: d.cfg.SystemName},
			To:      []Address{{Email: d.cfg.BusinessEmail}},
			ReplyTo: &Address{Email: email.Data.Email, Name: email.Data.ContactName},
			Subject: subject,
			HTML:    htmlBody,
			Text:    textBody,
		}, num, RouteSubmitBusiness))
	}

	if htmlBody, textBody, err := d.templates.Render(tmplCustomerAck, d.view(email.Data)); err != nil {
		errs = append(errs, err)
	} else {
		errs = append(errs, d.deliver(ctx, Message{
			From:    Address{Email: d.cfg.FromEmail, Name: d.cfg.FromName},
			To:      []Address{{Email: email.Data.Email, Name: email.Data.ContactName}},
			ReplyTo: &Address{Email: d.cfg.BusinessEmail, Name: d.cfg.FromName},
			Subject: fmt.Sprintf("Quote Request Received - %s", num),
			HTML:    htmlBody,
			Text:    textBody,
		}, num, RouteSubmitCustomer))
	}
	return errors.Join(errs...)
}

// FlagNotes describes exception flags for the business email.
func FlagNotes(f pricing.Flags) []string {
	var notes []string
	if f.NonMetro {
		zone := strings.ReplaceAll(string(f.Zone), "_", " ")
		notes = append(notes, fmt.Sprintf("Non-metro delivery (%s)", zone))
	}
	if f.Remote {
		notes = append(notes, "Remote or mine site address")
	}
	if f.LargeOrder {
		notes = append(notes, fmt.Sprintf("Large order (%d items)", f.TotalQuantity))
	}
	if f.LongLeadTime {
		notes = append(notes, "Long lead time: "+strings.Join(f.LongLeadTimeItems, ", "))
	}
	return notes
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message, quoteNumber, route string) error {
	recipient := ""
	if len(msg.To) > 0 {
		recipient = msg.To[0].Email
	}
	err := d.mailer.Send(ctx, msg)
	entry := EmailLog{
		QuoteNumber: quoteNumber,
		Recipient:   recipient,
		Subject:     msg.Subject,
		Status:      EmailStatusSent,
		Route:       route,
	}
	outcome := EmailStatusSent
	if err != nil {
		entry.Status = EmailStatusFailed
		entry.ErrorMessage = err.Error()
		outcome = EmailStatusFailed
		attrs := []any{
			slog.String("quote_number", quoteNumber),
			slog.String("route", route),
			slog.String("recipient", recipient),
			slog.Any("error", err),
		}
		var perr *ProviderError
		if errors.As(err, &perr) {
			entry.ErrorMessage = fmt.Sprintf("%s: %s", err.Error(), perr.Body)
			attrs = append(attrs, slog.Int("provider_status", perr.StatusCode), slog.String("provider_body", perr.Body))
		}
		d.logger.Error("send email", attrs...)
	} else {
		d.logger.Info("email sent", slog.String("quote_number", quoteNumber), slog.String("route", route))
	}
	if d.observer != nil {
		d.observer.ObserveEmail(route, outcome)
	}
	if d.logs != nil {
		if logErr := d.logs.Record(ctx, entry); logErr != nil {
			d.logger.Warn("record email log", slog.Any("error", logErr))
		}
	}
	if err != nil {
		return fmt.Errorf("notify: %s: %w", route, err)
	}
	return nil
}
