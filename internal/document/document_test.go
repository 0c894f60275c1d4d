package document_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redkey-web/DewaterQuote-sub003/internal/document"
	"github.com/redkey-web/DewaterQuote-sub003/internal/pricing"
	"github.com/redkey-web/DewaterQuote-sub003/web"
)

func ptr(s string) *string { return &s }

func money(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func sampleSource() document.Source {
	perth, _ := time.LoadLocation("Australia/Perth")
	calc := pricing.NewCalculator(decimal.RequireFromString("50"))
	return document.Source{
		QuoteNumber: " DQ-2501-0007 ",
		IssuedAt:    time.Date(2025, 1, 14, 2, 0, 0, 0, time.UTC),
		Validity:    30 * 24 * time.Hour,
		Location:    perth,
		CompanyName: ptr("Pilbara Pumping"),
		ContactName: "Jo Citizen",
		Email:       "jo@example.com",
		Delivery: document.SourceAddress{
			Street:   ptr("1 Hay Street"),
			Suburb:   ptr("Perth"),
			State:    ptr("WA"),
			Postcode: ptr("6000"),
		},
		Billing: document.SourceAddress{Street: ptr("PO Box 9")},
		Items: []document.SourceItem{
			{SKU: "B", Name: "Second", Quantity: 0, DisplayOrder: 2, LeadTime: ptr("4-6 weeks")},
			{SKU: "A", VariationSKU: ptr("A-100"), Name: "First", Quantity: 2, UnitPrice: money("100"), QuotedPrice: money("90"), DisplayOrder: 1, LeadTime: ptr("In Stock")},
		},
		Totals:           calc.Calculate(pricing.Input{PricedTotal: decimal.RequireFromString("180"), Postcode: "6000"}),
		HasUnpricedItems: true,
		LinkURL:          "https://dewaterproducts.com.au",
		LinkCaption:      "Scan to browse the catalogue and reorder.",
	}
}

// ===== Sanitize =====

func TestSanitize_FlattensSource(t *testing.T) {
	data := document.Sanitize(sampleSource())

	assert.Equal(t, "DQ-2501-0007", data.QuoteNumber)
	assert.Equal(t, "14 January 2025", data.QuoteDate)
	assert.Equal(t, "13 February 2025", data.ValidUntil)
	assert.Equal(t, "Pilbara Pumping", data.CompanyName)
	assert.Equal(t, "", data.Phone)

	require.Len(t, data.Items, 2)
	assert.Equal(t, "A-100", data.Items[0].SKU)
	assert.True(t, data.Items[0].Priced)
	assert.Equal(t, 90.0, data.Items[0].UnitPrice)
	assert.Equal(t, 180.0, data.Items[0].LineTotal)
	assert.Equal(t, "B", data.Items[1].SKU)
	assert.Equal(t, 1, data.Items[1].Quantity)
	assert.False(t, data.Items[1].Priced)
	assert.Equal(t, "POA", data.Items[1].UnitPriceText())

	assert.Equal(t, 198.0, data.Total)
	assert.Equal(t, "4-6 weeks", data.OverallLeadTime)
}

func TestSanitize_BillingFallsBackPerField(t *testing.T) {
	data := document.Sanitize(sampleSource())

	assert.Equal(t, "PO Box 9", data.BillingAddress.Street)
	assert.Equal(t, "Perth", data.BillingAddress.Suburb)
	assert.Equal(t, "6000", data.BillingAddress.Postcode)
	assert.True(t, data.ShowBilling)

	src := sampleSource()
	src.Billing = document.SourceAddress{}
	data = document.Sanitize(src)
	assert.Equal(t, data.DeliveryAddress, data.BillingAddress)
	assert.False(t, data.ShowBilling)
	assert.Equal(t, "1 Hay Street, Perth WA 6000", data.DeliveryAddress.String())
}

// ===== Renderers =====

func TestPDFRenderer_ProducesPDF(t *testing.T) {
	data := document.Sanitize(sampleSource())
	renderer := document.NewPDFRenderer(document.Company{})

	pdf, err := renderer.Render(context.Background(), data)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	data.IsDraft = true
	data.InternalNotes = "check freight"
	draft, err := renderer.Render(context.Background(), data)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(draft, []byte("%PDF")))
}

func TestPDFRenderer_ManyItemsPaginate(t *testing.T) {
	src := sampleSource()
	for i := 0; i < 60; i++ {
		src.Items = append(src.Items, document.SourceItem{
			SKU:          "BULK",
			Name:         strings.Repeat("Stainless steel repair clamp ", 3),
			Quantity:     i + 1,
			UnitPrice:    money("12.50"),
			DisplayOrder: 10 + i,
		})
	}
	pdf, err := document.NewPDFRenderer(document.DefaultCompany).Render(context.Background(), document.Sanitize(src))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestPDFRenderer_RequiresQuoteNumber(t *testing.T) {
	_, err := document.NewPDFRenderer(document.DefaultCompany).Render(context.Background(), document.QuotePDFData{})
	require.Error(t, err)
}

type failingRenderer struct{ err error }

func (f failingRenderer) Render(context.Context, document.QuotePDFData) ([]byte, error) {
	return nil, f.err
}

type recordingObserver struct {
	calls int
	err   error
}

func (r *recordingObserver) ObserveRender(_ string, _ time.Duration, err error) {
	r.calls++
	r.err = err
}

func TestLoggingRenderer_LogsPayloadAndWraps(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	observer := &recordingObserver{}
	cause := errors.New("font missing")
	renderer := document.NewLoggingRenderer(failingRenderer{err: cause}, "native", logger, observer)

	out, err := renderer.Render(context.Background(), document.Sanitize(sampleSource()))
	require.Error(t, err)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, document.ErrRenderFailure)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, logs.String(), "DQ-2501-0007")
	assert.Contains(t, logs.String(), "1 Hay Street")
	assert.Equal(t, 1, observer.calls)
	assert.Error(t, observer.err)
}

func TestLoggingRenderer_EmptyOutputFails(t *testing.T) {
	renderer := document.NewLoggingRenderer(failingRenderer{}, "native", slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	_, err := renderer.Render(context.Background(), document.QuotePDFData{QuoteNumber: "DQ-1"})
	assert.ErrorIs(t, err, document.ErrRenderFailure)
}

func TestHTMLRenderer_ConvertsThroughGotenberg(t *testing.T) {
	var received string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/forms/chromium/convert/html":
			file, _, err := r.FormFile("files")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			body, _ := io.ReadAll(file)
			received = string(body)
			_, _ = w.Write([]byte("%PDF-1.7 fake"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := document.NewGotenbergClient(srv.URL + "/")
	require.NoError(t, client.Ping(context.Background()))

	renderer, err := document.NewHTMLRenderer(web.Templates, client, document.DefaultCompany)
	require.NoError(t, err)
	pdf, err := renderer.Render(context.Background(), document.Sanitize(sampleSource()))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 fake", string(pdf))
	assert.Contains(t, received, "DQ-2501-0007")
	assert.Contains(t, received, "Total (inc GST)")
	assert.Contains(t, received, "pricing to be confirmed")
}

func TestGotenbergClient_ErrorIncludesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid form data"))
	}))
	defer srv.Close()

	_, err := document.NewGotenbergClient(srv.URL).ConvertHTML(context.Background(), []byte("<html></html>"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "invalid form data")
}

func TestNewHTMLRenderer_MissingTemplate(t *testing.T) {
	_, err := document.NewHTMLRenderer(fstest.MapFS{}, nil, document.DefaultCompany)
	require.Error(t, err)
}
