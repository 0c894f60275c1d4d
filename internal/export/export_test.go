package export

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/redkey-web/DewaterQuote-sub003/internal/quotes"
)

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func sampleQuotes() []quotes.Quote {
	created := time.Date(2025, 1, 14, 2, 0, 0, 0, time.UTC)
	forwarded := created.Add(26 * time.Hour)
	return []quotes.Quote{
		{
			QuoteNumber:  "DQ-2501-0001",
			CreatedAt:    created,
			Status:       quotes.StatusForwarded,
			CompanyName:  strPtr("Acme Mining"),
			ContactName:  "Jane",
			Email:        "jane@acme.example",
			Delivery:     quotes.Address{Postcode: strPtr("6000")},
			PricedTotal:  decimal.RequireFromString("1234.5"),
			CertFee:      decimal.RequireFromString("35"),
			ShippingCost: decimal.RequireFromString("25"),
			PDFVersion:   2,
			ForwardedAt:  &forwarded,
			Items: []quotes.Item{
				{SKU: "FC-100", Name: "Flex coupling", Quantity: 2, UnitPrice: decPtr("100"), LineTotal: decPtr("200"), MaterialTestCert: true},
				{SKU: "CUSTOM", Name: "Custom valve", Quantity: 1},
			},
		},
		{
			QuoteNumber:      "DQ-2501-0002",
			CreatedAt:        created,
			Status:           quotes.StatusPending,
			ContactName:      "Bob",
			Email:            "bob@example.com",
			HasUnpricedItems: true,
		},
	}
}

func TestQuotesWorkbookLayout(t *testing.T) {
	perth, err := time.LoadLocation("Australia/Perth")
	require.NoError(t, err)

	book, err := QuotesWorkbook(sampleQuotes(), perth)
	require.NoError(t, err)
	defer book.Close()

	assert.Equal(t, []string{quotesSheet, itemsSheet}, book.GetSheetList())

	rows, err := book.GetRows(quotesSheet, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Quote Number", rows[0][0])
	assert.Equal(t, "DQ-2501-0001", rows[1][0])
	assert.Equal(t, "2025-01-14 10:00", rows[1][1], "created time rendered in Perth")
	assert.Equal(t, "forwarded", rows[1][2])
	assert.Equal(t, "1234.5", rows[1][9])
	assert.Equal(t, "2025-01-15 12:00", rows[1][15])
	assert.Equal(t, "Yes", rows[2][13])

	items, err := book.GetRows(itemsSheet, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "FC-100", items[1][1])
	assert.Equal(t, "200", items[1][9])
	assert.Equal(t, "Yes", items[1][10])
	assert.Equal(t, "", items[2][7], "unpriced items leave the price blank")
}

type stubSource struct {
	list   []quotes.Quote
	err    error
	filter quotes.ListFilter
}

func (s *stubSource) Export(_ context.Context, filter quotes.ListFilter) ([]quotes.Quote, error) {
	s.filter = filter
	return s.list, s.err
}

func TestExportHandler(t *testing.T) {
	src := &stubSource{list: sampleQuotes()}
	h := NewHandler(nil, src, time.UTC)
	h.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	h.MountAdmin(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/quotes/export.xlsx?status=pending&q=acme", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `attachment; filename="quotes-20250301.xlsx"`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, quotes.StatusPending, src.filter.Status)
	assert.Equal(t, "acme", src.filter.Search)

	book, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows(quotesSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestExportHandlerErrors(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, &stubSource{err: errors.New("db down")}, nil).MountAdmin(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/quotes/export.xlsx?status=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/quotes/export.xlsx", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
