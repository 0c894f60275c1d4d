// Package export builds spreadsheet exports of quotes for the back office.
package export

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/redkey-web/DewaterQuote-sub003/internal/quotes"
)

const (
	quotesSheet = "Quotes"
	itemsSheet  = "Items"
)

var quoteHeadings = []any{
	"Quote Number", "Created", "Status", "Company", "Contact", "Email", "Phone",
	"Postcode", "Items", "Priced Total", "Savings", "Cert Fee", "Shipping",
	"Unpriced Items", "PDF Version", "Forwarded", "Deleted",
}

var itemHeadings = []any{
	"Quote Number", "SKU", "Variation SKU", "Name", "Brand", "Size",
	"Quantity", "Unit Price", "Quoted Price", "Line Total", "Test Cert", "Lead Time",
}

// QuotesWorkbook lays quotes out on a summary sheet and their lines on a
// second sheet. Times are rendered in loc.
func QuotesWorkbook(list []quotes.Quote, loc *time.Location) (*excelize.File, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", quotesSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, err
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1F4E79"}},
	})
	if err != nil {
		return nil, err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, err
	}

	if err := writeHeader(f, quotesSheet, quoteHeadings, header); err != nil {
		return nil, err
	}
	if err := writeHeader(f, itemsSheet, itemHeadings, header); err != nil {
		return nil, err
	}

	itemRow := 2
	for i, q := range list {
		row := i + 2
		values := []any{
			q.QuoteNumber,
			q.CreatedAt.In(loc).Format("2006-01-02 15:04"),
			string(q.Status),
			deref(q.CompanyName),
			q.ContactName,
			q.Email,
			deref(q.Phone),
			deref(q.Delivery.Postcode),
			len(q.Items),
			q.PricedTotal.InexactFloat64(),
			q.Savings.InexactFloat64(),
			q.CertFee.InexactFloat64(),
			q.ShippingCost.InexactFloat64(),
			yesNo(q.HasUnpricedItems),
			q.PDFVersion,
			formatTime(q.ForwardedAt, loc),
			yesNo(q.IsDeleted),
		}
		if err := setRow(f, quotesSheet, row, values); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(quotesSheet, cell("J", row), cell("M", row), money); err != nil {
			return nil, err
		}

		for _, it := range q.Items {
			values := []any{
				q.QuoteNumber,
				it.SKU,
				deref(it.VariationSKU),
				it.Name,
				deref(it.Brand),
				deref(it.SizeLabel),
				it.Quantity,
				moneyCell(it.UnitPrice),
				moneyCell(it.QuotedPrice),
				moneyCell(it.LineTotal),
				yesNo(it.MaterialTestCert),
				deref(it.LeadTime),
			}
			if err := setRow(f, itemsSheet, itemRow, values); err != nil {
				return nil, err
			}
			if err := f.SetCellStyle(itemsSheet, cell("H", itemRow), cell("J", itemRow), money); err != nil {
				return nil, err
			}
			itemRow++
		}
	}

	if err := f.SetColWidth(quotesSheet, "A", "Q", 16); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(itemsSheet, "D", "D", 40); err != nil {
		return nil, err
	}
	for _, sheet := range []string{quotesSheet, itemsSheet} {
		if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func writeHeader(f *excelize.File, sheet string, headings []any, style int) error {
	if err := setRow(f, sheet, 1, headings); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headings), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	return f.SetSheetRow(sheet, cell("A", row), &values)
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func formatTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format("2006-01-02 15:04")
}

// moneyCell leaves unpriced cells empty instead of showing a zero.
func moneyCell(d *decimal.Decimal) any {
	if d == nil {
		return ""
	}
	return d.InexactFloat64()
}
