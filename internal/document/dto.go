// Package document turns quotes into PDF documents.
package document

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/redkey-web/DewaterQuote-sub003/internal/pricing"
)

// DateLayout is the display format for quote dates, e.g. "2 January 2006".
const DateLayout = "2 January 2006"

// Address is the flattened, string-only address passed to renderers.
type Address struct {
	Street   string
	Suburb   string
	State    string
	Postcode string
}

// Lines renders the address as street plus "suburb state postcode".
func (a Address) Lines() []string {
	second := strings.TrimSpace(strings.Join(nonEmpty(a.Suburb, a.State, a.Postcode), " "))
	return nonEmpty(a.Street, second)
}

// String joins the address lines with a comma.
func (a Address) String() string {
	return strings.Join(a.Lines(), ", ")
}

// Item is one rendered quote line. Every field is a primitive.
type Item struct {
	SKU              string
	Name             string
	Brand            string
	Size             string
	SizeLabel        string
	Quantity         int
	Priced           bool
	UnitPrice        float64
	HasLineTotal     bool
	LineTotal        float64
	QuotedNotes      string
	MaterialTestCert bool
	LeadTime         string
}

// QuotePDFData is the renderer input contract. It holds only primitives,
// string-only address structs and a slice of primitive items.
type QuotePDFData struct {
	QuoteNumber      string
	QuoteDate        string
	ValidUntil       string
	CompanyName      string
	ContactName      string
	Email            string
	Phone            string
	DeliveryAddress  Address
	BillingAddress   Address
	ShowBilling      bool
	Items            []Item
	Subtotal         float64
	Savings          float64
	CertFee          float64
	CertCount        int
	ShippingCost     float64
	ShippingNotes    string
	GST              float64
	Total            float64
	HasUnpricedItems bool
	Notes            string
	InternalNotes    string
	PreparedBy       string
	IsDraft          bool
	OverallLeadTime  string
	// LinkURL is encoded as a QR code with LinkCaption beside it.
	LinkURL          string
	LinkCaption      string
}

// SourceAddress mirrors the nullable address columns of a quote row.
type SourceAddress struct {
	Street   *string
	Suburb   *string
	State    *string
	Postcode *string
}

// SourceItem mirrors a stored quote item.
type SourceItem struct {
	SKU              string
	VariationSKU     *string
	Name             string
	Brand            *string
	Size             *string
	SizeLabel        *string
	Quantity         int
	UnitPrice        *decimal.Decimal
	LineTotal        *decimal.Decimal
	QuotedPrice      *decimal.Decimal
	QuotedNotes      *string
	MaterialTestCert bool
	LeadTime         *string
	DisplayOrder     int
}

// Source is everything needed to build QuotePDFData.
type Source struct {
	QuoteNumber      string
	IssuedAt         time.Time
	Validity         time.Duration
	Location         *time.Location
	CompanyName      *string
	ContactName      string
	Email            string
	Phone            *string
	Delivery         SourceAddress
	Billing          SourceAddress
	Items            []SourceItem
	Totals           pricing.Totals
	HasUnpricedItems bool
	Notes            *string
	InternalNotes    *string
	PreparedBy       *string
	Draft            bool
	LinkURL          string
	LinkCaption      string
}

// Sanitize flattens a Source into the renderer contract.
func Sanitize(src Source) QuotePDFData {
	loc := src.Location
	if loc == nil {
		loc = time.UTC
	}
	issued := src.IssuedAt
	if issued.IsZero() {
		issued = time.Now()
	}
	issued = issued.In(loc)

	delivery := Address{
		Street:   str(src.Delivery.Street),
		Suburb:   str(src.Delivery.Suburb),
		State:    str(src.Delivery.State),
		Postcode: str(src.Delivery.Postcode),
	}
	billing := Address{
		Street:   fallback(src.Billing.Street, delivery.Street),
		Suburb:   fallback(src.Billing.Suburb, delivery.Suburb),
		State:    fallback(src.Billing.State, delivery.State),
		Postcode: fallback(src.Billing.Postcode, delivery.Postcode),
	}

	items := make([]SourceItem, len(src.Items))
	copy(items, src.Items)
	sort.SliceStable(items, func(i, j int) bool { return items[i].DisplayOrder < items[j].DisplayOrder })

	out := QuotePDFData{
		QuoteNumber:      strings.TrimSpace(src.QuoteNumber),
		QuoteDate:        issued.Format(DateLayout),
		ValidUntil:       issued.Add(src.Validity).Format(DateLayout),
		CompanyName:      str(src.CompanyName),
		ContactName:      src.ContactName,
		Email:            src.Email,
		Phone:            str(src.Phone),
		DeliveryAddress:  delivery,
		BillingAddress:   billing,
		ShowBilling:      billing != delivery,
		Items:            make([]Item, 0, len(items)),
		Subtotal:         num(src.Totals.Subtotal),
		Savings:          num(src.Totals.Savings),
		CertFee:          num(src.Totals.CertFee),
		CertCount:        src.Totals.CertCount,
		ShippingCost:     num(src.Totals.ShippingCost),
		ShippingNotes:    src.Totals.ShippingNotes,
		GST:              num(src.Totals.GST),
		Total:            num(src.Totals.Total),
		HasUnpricedItems: src.HasUnpricedItems,
		Notes:            str(src.Notes),
		InternalNotes:    str(src.InternalNotes),
		PreparedBy:       str(src.PreparedBy),
		IsDraft:          src.Draft,
		LinkURL:          src.LinkURL,
		LinkCaption:      src.LinkCaption,
	}

	leadTimes := make([]string, 0, len(items))
	for _, it := range items {
		item := sanitizeItem(it)
		leadTimes = append(leadTimes, item.LeadTime)
		out.Items = append(out.Items, item)
	}
	out.OverallLeadTime = pricing.LongestLeadTime(leadTimes)
	return out
}

func sanitizeItem(it SourceItem) Item {
	qty := it.Quantity
	if qty < 1 {
		qty = 1
	}
	sku := str(it.VariationSKU)
	if sku == "" {
		sku = it.SKU
	}
	item := Item{
		SKU:              sku,
		Name:             it.Name,
		Brand:            str(it.Brand),
		Size:             str(it.Size),
		SizeLabel:        str(it.SizeLabel),
		Quantity:         qty,
		QuotedNotes:      str(it.QuotedNotes),
		MaterialTestCert: it.MaterialTestCert,
		LeadTime:         str(it.LeadTime),
	}
	line := pricing.Line{Quantity: qty, UnitPrice: it.UnitPrice, QuotedPrice: it.QuotedPrice}
	if price := line.EffectivePrice(); price != nil {
		item.Priced = true
		item.UnitPrice = num(*price)
		item.HasLineTotal = true
		item.LineTotal = num(*line.LineTotal())
	} else if it.LineTotal != nil {
		item.HasLineTotal = true
		item.LineTotal = num(*it.LineTotal)
	}
	return item
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func fallback(s *string, def string) string {
	if v := str(s); v != "" {
		return v
	}
	return def
}

func num(d decimal.Decimal) float64 {
	f := pricing.Float(d)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
