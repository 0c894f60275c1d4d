package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// ============================================================================
// COERCION
// ============================================================================

func TestAmount_Coercion(t *testing.T) {
	text := "12.50"
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "0"},
		{"decimal string", "199.99", "199.99"},
		{"currency string", "$1,200.00", "1200"},
		{"garbage", "abc", "0"},
		{"empty", "", "0"},
		{"string pointer", &text, "12.5"},
		{"nil string pointer", (*string)(nil), "0"},
		{"float", 20.25, "20.25"},
		{"int", 3, "3"},
		{"null decimal", decimal.NullDecimal{}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, dec(tt.want).Equal(Amount(tt.in)), "got %s", Amount(tt.in))
		})
	}
}

func TestNullableAmount(t *testing.T) {
	assert.Nil(t, NullableAmount(nil))
	blank := "  "
	assert.Nil(t, NullableAmount(&blank))
	bad := "n/a"
	assert.Nil(t, NullableAmount(&bad))
	good := "100.00"
	require.NotNil(t, NullableAmount(&good))
	assert.True(t, dec("100").Equal(*NullableAmount(&good)))
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "POA", FormatPrice(nil))
	assert.Equal(t, "$220.00", FormatAUD(dec("220")))
	assert.Equal(t, "$0.05", FormatAUD(dec("0.049")))
	assert.Equal(t, "-$15.00", FormatAUD(dec("-15")))
}

// ============================================================================
// CALCULATOR
// ============================================================================

func TestCalculate_MetroQuote(t *testing.T) {
	calc := NewCalculator(dec("50.00"))
	totals := calc.Calculate(Input{
		PricedTotal: dec("200.00"),
		Postcode:    "6000",
	})

	assert.Equal(t, ZoneMetro, totals.Zone)
	assert.True(t, totals.ShippingCost.IsZero())
	assert.Equal(t, "Free metro delivery", totals.ShippingNotes)
	assert.True(t, dec("200.00").Equal(totals.Subtotal))
	assert.True(t, dec("20.00").Equal(totals.GST))
	assert.True(t, dec("220.00").Equal(totals.Total))
}

func TestCalculate_MetroIgnoresCallerShipping(t *testing.T) {
	calc := NewCalculator(dec("50.00"))
	totals := calc.Calculate(Input{
		PricedTotal:   dec("100"),
		Postcode:      "2000",
		ShippingCost:  dec("80"),
		ShippingNotes: "Courier",
	})
	assert.True(t, totals.ShippingCost.IsZero())
	assert.Equal(t, MetroShippingNote, totals.ShippingNotes)
}

func TestCalculate_MajorRegionalQuote(t *testing.T) {
	calc := NewCalculator(dec("50.00"))
	totals := calc.Calculate(Input{
		PricedTotal: dec("200.00"),
		Postcode:    "6530",
	})

	assert.Equal(t, ZoneMajorRegional, totals.Zone)
	assert.Equal(t, "Geraldton", totals.Region)
	assert.Contains(t, totals.ShippingNotes, "Geraldton")
	assert.True(t, dec("250.00").Equal(totals.SubtotalAfterDiscount))
	assert.True(t, dec("25.00").Equal(totals.GST))
	assert.True(t, dec("275.00").Equal(totals.Total))
}

func TestCalculate_OtherUsesCallerShipping(t *testing.T) {
	calc := NewCalculator(dec("50.00"))
	totals := calc.Calculate(Input{
		PricedTotal:   dec("1000"),
		Savings:       dec("100"),
		CertFee:       dec("35"),
		Postcode:      "6725",
		ShippingCost:  dec("180"),
		ShippingNotes: "Road freight to Broome",
	})

	assert.Equal(t, ZoneOther, totals.Zone)
	assert.True(t, dec("180").Equal(totals.ShippingCost))
	assert.Equal(t, "Road freight to Broome", totals.ShippingNotes)
	assert.True(t, dec("1115").Equal(totals.SubtotalAfterDiscount))
	assert.True(t, dec("111.5").Equal(totals.GST))
	assert.True(t, dec("1226.5").Equal(totals.Total))
}

func TestCalculate_SkipZoneLookup(t *testing.T) {
	calc := NewCalculator(dec("50.00"))
	totals := calc.Calculate(Input{
		PricedTotal:    dec("100"),
		Postcode:       "6000",
		ShippingCost:   dec("12"),
		ShippingNotes:  "Agreed",
		SkipZoneLookup: true,
	})
	assert.True(t, dec("12").Equal(totals.ShippingCost))
	assert.Equal(t, "Agreed", totals.ShippingNotes)
}

func TestCalculate_GSTIsTenPercent(t *testing.T) {
	calc := NewCalculator(dec("50.00"))
	values := []string{"0", "0.01", "19.99", "200", "1234.56", "99999.99"}
	postcodes := []string{"6000", "6530", "0000", ""}
	for _, subtotal := range values {
		for _, savings := range []string{"0", "0.01", "5.5"} {
			for _, cert := range []string{"0", "35"} {
				for _, pc := range postcodes {
					totals := calc.Calculate(Input{
						PricedTotal:  dec(subtotal),
						Savings:      dec(savings),
						CertFee:      dec(cert),
						Postcode:     pc,
						ShippingCost: dec("7.25"),
					})
					base := dec(subtotal).Sub(dec(savings)).Add(dec(cert)).Add(totals.ShippingCost)
					assert.True(t, base.Mul(dec("0.1")).Equal(totals.GST), "subtotal=%s savings=%s pc=%s", subtotal, savings, pc)
					assert.True(t, base.Add(totals.GST).Equal(totals.Total))
				}
			}
		}
	}
}

// ============================================================================
// ZONES
// ============================================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		postcode string
		zone     Zone
		region   string
	}{
		{"6000", ZoneMetro, "Perth"},
		{"6210", ZoneMetro, "Perth"},
		{"6230", ZoneMetro, "Bunbury"},
		{"0800", ZoneMetro, "Darwin"},
		{"800", ZoneMetro, "Darwin"},
		{"3220", ZoneMetro, "Geelong"},
		{"4220", ZoneMetro, "Gold Coast"},
		{"4210", ZoneMetro, "Gold Coast"},
		{"4207", ZoneMetro, "Brisbane"},
		{"4208", ZoneMetro, "Brisbane"},
		{"4209", ZoneMetro, "Brisbane"},
		{"2830", ZoneMajorRegional, "Dubbo"},
		{"4870", ZoneMajorRegional, "Cairns"},
		{"0870", ZoneMajorRegional, "Alice Springs"},
		{"6714", ZoneMajorRegional, "Karratha"},
		{"6725", ZoneOther, ""},
		{"abcd", ZoneOther, ""},
		{"12", ZoneOther, ""},
		{"0100", ZoneOther, ""},
		{"", ZoneOther, ""},
	}
	for _, tt := range tests {
		t.Run(tt.postcode, func(t *testing.T) {
			got := Classify(tt.postcode)
			assert.Equal(t, tt.zone, got.Zone)
			assert.Equal(t, tt.region, got.Region)
		})
	}
}

// ============================================================================
// DISCOUNTS & SUMMARY
// ============================================================================

func TestDiscountPercent(t *testing.T) {
	assert.Equal(t, int64(0), DiscountPercent(1))
	assert.Equal(t, int64(5), DiscountPercent(2))
	assert.Equal(t, int64(5), DiscountPercent(4))
	assert.Equal(t, int64(10), DiscountPercent(5))
	assert.Equal(t, int64(15), DiscountPercent(10))
	assert.Equal(t, int64(15), DiscountPercent(250))
}

func TestSummarize_PricedLine(t *testing.T) {
	s := Summarize([]Line{{Quantity: 2, UnitPrice: decPtr("100.00")}}, dec("35"))

	assert.False(t, s.HasUnpricedItems)
	assert.True(t, dec("200").Equal(s.PricedTotal))
	assert.True(t, dec("10").Equal(s.Savings))
	assert.Equal(t, 2, s.ItemCount)
	assert.True(t, s.CertFee.IsZero())
}

func TestSummarize_UnpricedLineExcluded(t *testing.T) {
	s := Summarize([]Line{
		{Quantity: 1, UnitPrice: decPtr("80")},
		{Quantity: 3, UnitPrice: nil, MaterialTestCert: true},
	}, dec("35"))

	assert.True(t, s.HasUnpricedItems)
	assert.True(t, dec("80").Equal(s.PricedTotal))
	assert.Equal(t, 1, s.CertCount)
	assert.True(t, dec("35").Equal(s.CertFee))
	assert.Equal(t, 4, s.ItemCount)
}

func TestSummarize_QuotedPriceOverridesWithoutDiscount(t *testing.T) {
	line := Line{Quantity: 10, UnitPrice: decPtr("10"), QuotedPrice: decPtr("8")}
	s := Summarize([]Line{line}, decimal.Zero)

	require.NotNil(t, line.LineTotal())
	assert.True(t, dec("80").Equal(*line.LineTotal()))
	assert.True(t, dec("80").Equal(s.PricedTotal))
	assert.True(t, s.Savings.IsZero())
	assert.False(t, s.HasUnpricedItems)
}

// ============================================================================
// FLAGS
// ============================================================================

func TestDetectFlags(t *testing.T) {
	flags := DetectFlags([]FlagItem{
		{Name: "Flex Coupling", Quantity: 8, LeadTime: "In Stock"},
		{Name: "Butterfly Valve", Quantity: 4, LeadTime: "6-8 weeks"},
	}, "6530", "Lot 4 Mine Road")

	assert.True(t, flags.Remote)
	assert.True(t, flags.NonMetro)
	assert.True(t, flags.LargeOrder)
	assert.True(t, flags.LongLeadTime)
	assert.Equal(t, []string{"Butterfly Valve (6-8 weeks)"}, flags.LongLeadTimeItems)
	assert.Equal(t, 12, flags.TotalQuantity)
	assert.False(t, flags.Standard())
}

func TestDetectFlags_Standard(t *testing.T) {
	flags := DetectFlags([]FlagItem{{Name: "Gasket", Quantity: 2, LeadTime: "2-3 weeks"}}, "6000", "1 Hay Street Perth")
	assert.True(t, flags.Standard())
	assert.Equal(t, ZoneMetro, flags.Zone)
}

func TestLongestLeadTime(t *testing.T) {
	assert.Equal(t, "4-6 weeks", LongestLeadTime([]string{"In Stock", "4-6 weeks", "1-2 weeks", ""}))
	assert.Equal(t, "", LongestLeadTime(nil))
	assert.Equal(t, "11 weeks", LongestLeadTime([]string{"1 week", "11 weeks", "6-8 weeks"}))
}

func TestLeadTimeRank(t *testing.T) {
	cases := []struct {
		leadTime string
		want     int
	}{
		{"", -1},
		{"call us", -1},
		{"In Stock", 0},
		{"in stock", 0},
		{"1 week", 1},
		{"1-2 weeks", 2},
		{"2-3 weeks", 3},
		{"2-4 weeks", 4},
		{"3-4 weeks", 5},
		{"4-6 weeks", 6},
		{"6-8 weeks", 7},
		{"8+ weeks", 8},
		{"10 weeks", 8},
		{"11 weeks", 8},
		{"21 weeks", 8},
		{"5 weeks", 6},
		{"2 weeks", 2},
	}
	for _, tc := range cases {
		t.Run(tc.leadTime, func(t *testing.T) {
			assert.Equal(t, tc.want, LeadTimeRank(tc.leadTime))
		})
	}
}

func TestDetectFlags_LongLeadTimeOutsideKnownPhrases(t *testing.T) {
	flags := DetectFlags([]FlagItem{{Name: "Knife Gate", Quantity: 1, LeadTime: "11 weeks"}}, "6000", "1 Hay Street Perth")
	assert.True(t, flags.LongLeadTime)
	assert.Equal(t, []string{"Knife Gate (11 weeks)"}, flags.LongLeadTimeItems)
}
