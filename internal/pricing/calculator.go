package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Input carries stored quote money plus the delivery postcode.
type Input struct {
	PricedTotal decimal.Decimal
	Savings     decimal.Decimal
	CertFee     decimal.Decimal
	CertCount   int
	Postcode    string

	// ShippingCost and ShippingNotes are used verbatim when the postcode
	// does not resolve to a known zone, or when zone lookup is skipped.
	ShippingCost   decimal.Decimal
	ShippingNotes  string
	SkipZoneLookup bool
}

// Totals is the computed pricing breakdown of a quote.
type Totals struct {
	Subtotal              decimal.Decimal `json:"subtotal"`
	Savings               decimal.Decimal `json:"savings"`
	CertFee               decimal.Decimal `json:"certFee"`
	CertCount             int             `json:"certCount"`
	ShippingCost          decimal.Decimal `json:"shippingCost"`
	ShippingNotes         string          `json:"shippingNotes"`
	Zone                  Zone            `json:"zone"`
	Region                string          `json:"region,omitempty"`
	SubtotalAfterDiscount decimal.Decimal `json:"subtotalAfterDiscount"`
	GST                   decimal.Decimal `json:"gst"`
	Total                 decimal.Decimal `json:"total"`
}

// Calculator applies the zone shipping policy and GST.
type Calculator struct {
	regionalCost decimal.Decimal
}

// NewCalculator builds a Calculator charging regionalCost for major regional zones.
func NewCalculator(regionalCost decimal.Decimal) *Calculator {
	return &Calculator{regionalCost: regionalCost}
}

// RegionalCost exposes the configured major regional shipping cost.
func (c *Calculator) RegionalCost() decimal.Decimal {
	return c.regionalCost
}

// Calculate derives subtotal, shipping, GST and total for a quote.
func (c *Calculator) Calculate(in Input) Totals {
	t := Totals{
		Subtotal:      in.PricedTotal,
		Savings:       in.Savings,
		CertFee:       in.CertFee,
		CertCount:     in.CertCount,
		ShippingCost:  in.ShippingCost,
		ShippingNotes: in.ShippingNotes,
		Zone:          ZoneOther,
	}

	if !in.SkipZoneLookup {
		cls := Classify(in.Postcode)
		t.Zone = cls.Zone
		t.Region = cls.Region
		switch cls.Zone {
		case ZoneMetro:
			t.ShippingCost = decimal.Zero
			t.ShippingNotes = MetroShippingNote
		case ZoneMajorRegional:
			t.ShippingCost = c.regionalCost
			t.ShippingNotes = fmt.Sprintf("Regional delivery - %s", cls.Region)
		}
	}

	t.SubtotalAfterDiscount = t.Subtotal.Sub(t.Savings).Add(t.CertFee).Add(t.ShippingCost)
	t.GST = t.SubtotalAfterDiscount.Mul(gstRate)
	t.Total = t.SubtotalAfterDiscount.Add(t.GST)
	return t
}
