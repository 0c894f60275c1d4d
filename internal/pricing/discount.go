package pricing

import "github.com/shopspring/decimal"

// Tier is a volume discount threshold applied per line.
type Tier struct {
	MinQuantity int
	Percent     int64
	Label       string
}

// Tiers are ordered from the largest threshold down.
var Tiers = []Tier{
	{MinQuantity: 10, Percent: 15, Label: "10+ items"},
	{MinQuantity: 5, Percent: 10, Label: "5+ items"},
	{MinQuantity: 2, Percent: 5, Label: "2+ items"},
}

// DiscountPercent returns the volume discount for a line quantity.
func DiscountPercent(quantity int) int64 {
	for _, t := range Tiers {
		if quantity >= t.MinQuantity {
			return t.Percent
		}
	}
	return 0
}

// Line is the pricing view of a quote item.
type Line struct {
	Quantity         int
	UnitPrice        *decimal.Decimal
	QuotedPrice      *decimal.Decimal
	MaterialTestCert bool
}

// EffectivePrice is the admin quoted price when set, else the catalogue price.
func (l Line) EffectivePrice() *decimal.Decimal {
	if l.QuotedPrice != nil {
		return l.QuotedPrice
	}
	return l.UnitPrice
}

// LineTotal is quantity times the effective price, nil when unpriced.
func (l Line) LineTotal() *decimal.Decimal {
	price := l.EffectivePrice()
	if price == nil {
		return nil
	}
	total := price.Mul(decimal.NewFromInt(int64(quantityOrOne(l.Quantity))))
	return &total
}

// Savings is the volume discount on catalogue priced lines. Admin quoted
// prices are final and carry no discount.
func (l Line) Savings() decimal.Decimal {
	if l.QuotedPrice != nil || l.UnitPrice == nil {
		return decimal.Zero
	}
	pct := DiscountPercent(l.Quantity)
	if pct == 0 {
		return decimal.Zero
	}
	gross := l.UnitPrice.Mul(decimal.NewFromInt(int64(quantityOrOne(l.Quantity))))
	return gross.Mul(decimal.New(pct, -2))
}

// Summary is the stored money of a quote, computed from its items.
type Summary struct {
	ItemCount        int
	PricedTotal      decimal.Decimal
	Savings          decimal.Decimal
	HasUnpricedItems bool
	CertCount        int
	CertFee          decimal.Decimal
}

// Summarize totals the lines. Unpriced lines are excluded from PricedTotal.
func Summarize(lines []Line, certFeePerItem decimal.Decimal) Summary {
	s := Summary{PricedTotal: decimal.Zero, Savings: decimal.Zero, CertFee: decimal.Zero}
	for _, l := range lines {
		s.ItemCount += quantityOrOne(l.Quantity)
		if l.MaterialTestCert {
			s.CertCount++
		}
		total := l.LineTotal()
		if total == nil {
			s.HasUnpricedItems = true
			continue
		}
		s.PricedTotal = s.PricedTotal.Add(*total)
		s.Savings = s.Savings.Add(l.Savings())
	}
	s.CertFee = certFeePerItem.Mul(decimal.NewFromInt(int64(s.CertCount)))
	return s
}

func quantityOrOne(q int) int {
	if q < 1 {
		return 1
	}
	return q
}
