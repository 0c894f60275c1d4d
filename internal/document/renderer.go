package document

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/redkey-web/DewaterQuote-sub003/internal/pricing"
)

// ErrRenderFailure wraps every renderer error surfaced to callers.
var ErrRenderFailure = errors.New("document: render failed")

// Renderer produces a PDF from sanitized quote data.
type Renderer interface {
	Render(ctx context.Context, data QuotePDFData) ([]byte, error)
}

// Observer receives render durations, typically a metrics sink.
type Observer interface {
	ObserveRender(renderer string, d time.Duration, err error)
}

// LoggingRenderer logs the full payload of failed renders and wraps the error.
type LoggingRenderer struct {
	next     Renderer
	name     string
	logger   *slog.Logger
	observer Observer
}

// NewLoggingRenderer decorates next with failure diagnostics.
func NewLoggingRenderer(next Renderer, name string, logger *slog.Logger, observer Observer) *LoggingRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingRenderer{next: next, name: name, logger: logger, observer: observer}
}

// Render delegates and never returns partial output on failure.
func (r *LoggingRenderer) Render(ctx context.Context, data QuotePDFData) ([]byte, error) {
	if r == nil || r.next == nil {
		return nil, fmt.Errorf("%w: renderer not configured", ErrRenderFailure)
	}
	start := time.Now()
	pdf, err := r.next.Render(ctx, data)
	if err == nil && len(pdf) == 0 {
		err = errors.New("empty document")
	}
	if r.observer != nil {
		r.observer.ObserveRender(r.name, time.Since(start), err)
	}
	if err != nil {
		r.logger.Error("render quote pdf",
			slog.String("renderer", r.name),
			slog.String("quote_number", data.QuoteNumber),
			slog.Any("payload", data),
			slog.Any("delivery_address", data.DeliveryAddress),
			slog.Any("billing_address", data.BillingAddress),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("%w: %s: %w", ErrRenderFailure, data.QuoteNumber, err)
	}
	return pdf, nil
}

// Money formats a float amount for documents.
func Money(v float64) string {
	return pricing.FormatAUD(decimal.NewFromFloat(v))
}

// UnitPriceText formats the unit column, "POA" when unpriced.
func (i Item) UnitPriceText() string {
	if !i.Priced {
		return "POA"
	}
	return Money(i.UnitPrice)
}

// LineTotalText formats the total column, "POA" when unpriced.
func (i Item) LineTotalText() string {
	if !i.HasLineTotal {
		return "POA"
	}
	return Money(i.LineTotal)
}

// TemplateFuncs are shared by the HTML document and email templates.
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"money": Money,
		"positive": func(v float64) bool {
			return v > 0
		},
		"inc": func(i int) int {
			return i + 1
		},
	}
}
