package document

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	qrcode "github.com/skip2/go-qrcode"
)

// Company holds the letterhead printed on every quote.
type Company struct {
	Name     string
	ABN      string
	Phone    string
	Email    string
	Website  string
	Location string
}

// DefaultCompany is the Dewater Products letterhead.
var DefaultCompany = Company{
	Name:     "Dewater Products Pty Ltd",
	ABN:      "98 622 681 663",
	Phone:    "1300 271 290",
	Email:    "sales@dewaterproducts.com.au",
	Website:  "dewaterproducts.com.au",
	Location: "Perth, Western Australia",
}

var quoteTerms = []string{
	"Quote valid for 30 days from date of issue.",
	"All prices in AUD. Unit and line prices exclude GST; the total includes GST.",
	"Payment: 30 days from invoice for approved accounts. Made to order goods are generally paid in advance.",
	"Lead times are Ex Works Perth, Western Australia unless the item is marked In Stock. Allow extra days for delivery.",
	"Free metro delivery by road freight. Remote and mine site deliveries may attract an extra freight charge.",
	"Material test certificates will extend lead times.",
}

// table column widths in mm, summing to the 180mm printable width
const (
	colSKU     = 28.0
	colProduct = 62.0
	colQty     = 12.0
	colLead    = 22.0
	colCert    = 12.0
	colUnit    = 22.0
	colTotal   = 22.0

	lineH      = 4.5
	pageBottom = 277.0
	fontFamily = "Helvetica"
)

// PDFRenderer draws quotes in-process with gofpdf.
type PDFRenderer struct {
	company Company
}

// NewPDFRenderer constructs a renderer for the given letterhead.
func NewPDFRenderer(company Company) *PDFRenderer {
	if company.Name == "" {
		company = DefaultCompany
	}
	return &PDFRenderer{company: company}
}

// Render lays out the quote on A4 pages.
func (r *PDFRenderer) Render(ctx context.Context, data QuotePDFData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(data.QuoteNumber) == "" {
		return nil, fmt.Errorf("quote number required")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AliasNbPages("")
	pdf.SetTitle(fmt.Sprintf("Quotation %s", data.QuoteNumber), true)
	pdf.SetAuthor(r.company.Name, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(fontFamily, "I", 8)
		pdf.SetTextColor(120, 120, 120)
		footer := fmt.Sprintf("%s | ABN %s | %s | %s", r.company.Name, r.company.ABN, r.company.Phone, r.company.Website)
		pdf.CellFormat(0, 5, tr(footer), "", 1, "C", false, 0, "")
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	if data.IsDraft {
		pdf.SetHeaderFunc(func() { drawWatermark(pdf) })
	}

	pdf.AddPage()
	r.header(pdf, tr, data)
	customer(pdf, tr, data)
	itemsTable(pdf, tr, data.Items)
	totals(pdf, tr, data)
	notes(pdf, tr, data)
	if err := linkQR(pdf, tr, data.LinkURL, data.LinkCaption); err != nil {
		return nil, err
	}
	terms(pdf, tr, r.company, data.PreparedBy)

	if pdf.Err() {
		return nil, pdf.Error()
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *PDFRenderer) header(pdf *gofpdf.Fpdf, tr func(string) string, data QuotePDFData) {
	pdf.SetFont(fontFamily, "B", 18)
	pdf.SetTextColor(15, 23, 42)
	pdf.CellFormat(100, 9, "DEWATER PRODUCTS", "", 0, "L", false, 0, "")
	pdf.SetFont(fontFamily, "B", 20)
	pdf.SetTextColor(14, 165, 233)
	pdf.CellFormat(80, 9, "QUOTATION", "", 1, "R", false, 0, "")

	pdf.SetFont(fontFamily, "", 8)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(100, 4, tr("ABN: "+r.company.ABN), "", 0, "L", false, 0, "")
	pdf.SetFont(fontFamily, "B", 11)
	pdf.SetTextColor(15, 23, 42)
	pdf.CellFormat(80, 5, tr(data.QuoteNumber), "", 1, "R", false, 0, "")

	pdf.SetFont(fontFamily, "", 8)
	pdf.SetTextColor(14, 165, 233)
	pdf.CellFormat(100, 4, tr(r.company.Phone), "", 0, "L", false, 0, "")
	pdf.SetTextColor(80, 80, 80)
	pdf.CellFormat(80, 4, tr("Date: "+data.QuoteDate), "", 1, "R", false, 0, "")
	pdf.CellFormat(100, 4, "", "", 0, "L", false, 0, "")
	pdf.CellFormat(80, 4, tr("Valid Until: "+data.ValidUntil), "", 1, "R", false, 0, "")

	pdf.SetDrawColor(14, 165, 233)
	pdf.SetLineWidth(0.6)
	y := pdf.GetY() + 3
	pdf.Line(15, y, 195, y)
	pdf.SetLineWidth(0.2)
	pdf.SetY(y + 5)
}

func customer(pdf *gofpdf.Fpdf, tr func(string) string, data QuotePDFData) {
	sectionTitle(pdf, "Customer Details")
	field := func(label, value string) {
		if value == "" {
			return
		}
		pdf.SetFont(fontFamily, "", 8)
		pdf.SetTextColor(110, 110, 110)
		pdf.CellFormat(35, lineH, tr(label), "", 0, "L", false, 0, "")
		pdf.SetFont(fontFamily, "", 9)
		pdf.SetTextColor(30, 30, 30)
		pdf.MultiCell(0, lineH, tr(value), "", "L", false)
	}
	field("Company", data.CompanyName)
	field("Contact", data.ContactName)
	field("Email", data.Email)
	field("Phone", data.Phone)
	field("Delivery Address", strings.Join(data.DeliveryAddress.Lines(), "\n"))
	if data.ShowBilling {
		field("Billing Address", strings.Join(data.BillingAddress.Lines(), "\n"))
	}
	pdf.Ln(3)
}

func sectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont(fontFamily, "B", 11)
	pdf.SetTextColor(15, 23, 42)
	pdf.CellFormat(0, 7, title, "", 1, "L", false, 0, "")
}

func tableHeader(pdf *gofpdf.Fpdf) {
	pdf.SetFont(fontFamily, "B", 8)
	pdf.SetFillColor(14, 165, 233)
	pdf.SetTextColor(255, 255, 255)
	headers := []struct {
		label string
		width float64
		align string
	}{
		{"SKU", colSKU, "L"},
		{"Product", colProduct, "L"},
		{"Qty", colQty, "C"},
		{"Lead Time", colLead, "C"},
		{"Cert", colCert, "C"},
		{"Unit (ex GST)", colUnit, "R"},
		{"Total (ex GST)", colTotal, "R"},
	}
	for _, h := range headers {
		pdf.CellFormat(h.width, 7, h.label, "", 0, h.align, true, 0, "")
	}
	pdf.Ln(-1)
}

func productLines(item Item) []string {
	lines := []string{item.Name}
	if item.Brand != "" {
		lines = append(lines, item.Brand)
	}
	if item.SizeLabel != "" {
		lines = append(lines, "Size: "+item.SizeLabel)
	} else if item.Size != "" {
		lines = append(lines, "Size: "+item.Size)
	}
	if item.QuotedNotes != "" {
		lines = append(lines, "Note: "+item.QuotedNotes)
	}
	return lines
}

func itemsTable(pdf *gofpdf.Fpdf, tr func(string) string, items []Item) {
	sectionTitle(pdf, fmt.Sprintf("Quoted Items (%d)", len(items)))
	tableHeader(pdf)
	pdf.SetDrawColor(229, 231, 235)

	for _, item := range items {
		pdf.SetFont(fontFamily, "", 8)
		var wrapped []string
		for _, l := range productLines(item) {
			for _, w := range pdf.SplitLines([]byte(tr(l)), colProduct-2) {
				wrapped = append(wrapped, string(w))
			}
		}
		h := float64(len(wrapped))*lineH + 2
		if h < 8 {
			h = 8
		}
		if pdf.GetY()+h > pageBottom {
			pdf.AddPage()
			tableHeader(pdf)
			pdf.SetFont(fontFamily, "", 8)
		}

		x, y := pdf.GetXY()
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(colSKU, h, tr(item.SKU), "B", 0, "L", false, 0, "")
		for i, l := range wrapped {
			pdf.SetXY(x+colSKU, y+1+float64(i)*lineH)
			if i == 0 {
				pdf.SetFont(fontFamily, "B", 8)
				pdf.SetTextColor(26, 26, 26)
			} else {
				pdf.SetFont(fontFamily, "", 7)
				pdf.SetTextColor(100, 100, 100)
			}
			pdf.CellFormat(colProduct, lineH, l, "", 0, "L", false, 0, "")
		}
		pdf.Line(x+colSKU, y+h, x+colSKU+colProduct, y+h)

		pdf.SetXY(x+colSKU+colProduct, y)
		pdf.SetFont(fontFamily, "", 8)
		pdf.SetTextColor(26, 26, 26)
		lead := item.LeadTime
		if lead == "" {
			lead = "-"
		}
		cert := "-"
		if item.MaterialTestCert {
			cert = "Yes"
		}
		pdf.CellFormat(colQty, h, fmt.Sprintf("%d", item.Quantity), "B", 0, "C", false, 0, "")
		pdf.CellFormat(colLead, h, tr(lead), "B", 0, "C", false, 0, "")
		pdf.CellFormat(colCert, h, cert, "B", 0, "C", false, 0, "")
		pdf.CellFormat(colUnit, h, tr(item.UnitPriceText()), "B", 0, "R", false, 0, "")
		pdf.SetFont(fontFamily, "B", 8)
		pdf.CellFormat(colTotal, h, tr(item.LineTotalText()), "B", 0, "R", false, 0, "")
		pdf.SetXY(x, y+h)
	}
	pdf.Ln(4)
}

func totals(pdf *gofpdf.Fpdf, tr func(string) string, data QuotePDFData) {
	row := func(label, value string, bold bool, r, g, b int) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetX(105)
		pdf.SetFont(fontFamily, style, 9)
		pdf.SetTextColor(r, g, b)
		pdf.CellFormat(55, 6, tr(label), "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, tr(value), "", 1, "R", false, 0, "")
	}
	if pdf.GetY()+40 > pageBottom {
		pdf.AddPage()
	}
	row("Subtotal", Money(data.Subtotal), false, 60, 60, 60)
	if data.Savings > 0 {
		row("Bulk Discount", "-"+Money(data.Savings), false, 22, 163, 74)
	}
	if data.CertFee > 0 {
		row(fmt.Sprintf("Material Certs (%d)", data.CertCount), Money(data.CertFee), false, 60, 60, 60)
	}
	if data.ShippingCost > 0 {
		label := "Shipping"
		if data.ShippingNotes != "" {
			label += " (" + data.ShippingNotes + ")"
		}
		row(label, Money(data.ShippingCost), false, 60, 60, 60)
	} else if data.ShippingNotes != "" {
		row("Shipping ("+data.ShippingNotes+")", Money(0), false, 60, 60, 60)
	}
	row("GST (10%)", Money(data.GST), false, 60, 60, 60)
	pdf.SetDrawColor(14, 165, 233)
	pdf.Line(130, pdf.GetY()+1, 195, pdf.GetY()+1)
	pdf.Ln(2)
	row("Total (inc GST)", Money(data.Total), true, 15, 23, 42)

	if data.HasUnpricedItems {
		pdf.SetFont(fontFamily, "I", 8)
		pdf.SetTextColor(217, 119, 6)
		pdf.CellFormat(0, 6, "* Some items require confirmation - pricing to be confirmed", "", 1, "R", false, 0, "")
	}
	pdf.Ln(3)
}

func notes(pdf *gofpdf.Fpdf, tr func(string) string, data QuotePDFData) {
	if data.Notes != "" {
		sectionTitle(pdf, "Customer Notes")
		pdf.SetFont(fontFamily, "", 9)
		pdf.SetTextColor(60, 60, 60)
		pdf.MultiCell(0, lineH, tr(data.Notes), "", "L", false)
		pdf.Ln(2)
	}
	if data.IsDraft && data.InternalNotes != "" {
		sectionTitle(pdf, "Internal Notes")
		pdf.SetFont(fontFamily, "I", 9)
		pdf.SetTextColor(120, 53, 15)
		pdf.MultiCell(0, lineH, tr(data.InternalNotes), "", "L", false)
		pdf.Ln(2)
	}
	if data.OverallLeadTime != "" {
		pdf.SetFillColor(254, 243, 199)
		pdf.SetFont(fontFamily, "B", 9)
		pdf.SetTextColor(146, 64, 14)
		pdf.CellFormat(0, 7, tr("Estimated Lead Time: "+data.OverallLeadTime), "", 1, "L", true, 0, "")
		pdf.SetFont(fontFamily, "", 7)
		pdf.CellFormat(0, 5, "Lead times are estimates and may vary based on stock availability.", "", 1, "L", true, 0, "")
		pdf.Ln(3)
	}
}

func linkQR(pdf *gofpdf.Fpdf, tr func(string) string, url, caption string) error {
	if url == "" {
		return nil
	}
	png, err := qrcode.Encode(url, qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("encode link qr: %w", err)
	}
	if caption == "" {
		caption = url
	}
	if pdf.GetY()+32 > pageBottom {
		pdf.AddPage()
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader("link-qr", opts, bytes.NewReader(png))
	y := pdf.GetY()
	pdf.ImageOptions("link-qr", 15, y, 28, 28, false, opts, 0, url)
	pdf.SetXY(47, y+8)
	pdf.SetFont(fontFamily, "B", 9)
	pdf.SetTextColor(6, 95, 70)
	pdf.CellFormat(0, 5, "Ready to order?", "", 2, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 8)
	pdf.SetTextColor(4, 120, 87)
	pdf.MultiCell(0, 4, tr(caption), "", "L", false)
	pdf.SetY(y + 32)
	return nil
}

func terms(pdf *gofpdf.Fpdf, tr func(string) string, company Company, preparedBy string) {
	sectionTitle(pdf, "Terms & Conditions")
	pdf.SetFont(fontFamily, "", 7.5)
	pdf.SetTextColor(75, 85, 99)
	for i, t := range quoteTerms {
		pdf.MultiCell(0, 4, tr(fmt.Sprintf("%d. %s", i+1, t)), "", "L", false)
	}
	pdf.Ln(3)
	pdf.SetFont(fontFamily, "", 8)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 4, tr(fmt.Sprintf("Questions? Call %s or email %s", company.Phone, company.Email)), "", 1, "L", false, 0, "")
	if preparedBy != "" {
		pdf.CellFormat(0, 4, tr("Quote prepared by: "+preparedBy), "", 1, "L", false, 0, "")
	}
}

func drawWatermark(pdf *gofpdf.Fpdf) {
	x, y := pdf.GetXY()
	pdf.SetFont(fontFamily, "B", 90)
	pdf.SetTextColor(238, 238, 238)
	pdf.TransformBegin()
	pdf.TransformRotate(30, 105, 150)
	pdf.Text(45, 175, "DRAFT")
	pdf.TransformEnd()
	pdf.SetXY(x, y)
}
