// Package pricing derives quote totals, shipping zones and volume discounts.
package pricing

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	gstRate = decimal.New(10, -2)
	printer = message.NewPrinter(language.English)
)

// Amount coerces a stored monetary value into a decimal.
// Nil, empty, NaN and unparseable inputs yield zero.
func Amount(v any) decimal.Decimal {
	switch val := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return val
	case *decimal.Decimal:
		if val == nil {
			return decimal.Zero
		}
		return *val
	case decimal.NullDecimal:
		if !val.Valid {
			return decimal.Zero
		}
		return val.Decimal
	case string:
		return parseAmount(val)
	case *string:
		if val == nil {
			return decimal.Zero
		}
		return parseAmount(*val)
	case float64:
		return fromFloat(val)
	case float32:
		return fromFloat(float64(val))
	case int:
		return decimal.NewFromInt(int64(val))
	case int32:
		return decimal.NewFromInt(int64(val))
	case int64:
		return decimal.NewFromInt(val)
	case fmt.Stringer:
		return parseAmount(val.String())
	default:
		return decimal.Zero
	}
}

// NullableAmount is like Amount but keeps "no value" distinct from zero.
func NullableAmount(v *string) *decimal.Decimal {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

func parseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func fromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// Float returns a rounded-to-cents float for primitive-only consumers.
func Float(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// FormatAUD renders an amount as "$1,234.50".
func FormatAUD(d decimal.Decimal) string {
	f := Float(d)
	if f < 0 {
		return printer.Sprintf("-$%.2f", -f)
	}
	return printer.Sprintf("$%.2f", f)
}

// FormatPrice renders a nullable price, falling back to "POA".
func FormatPrice(d *decimal.Decimal) string {
	if d == nil {
		return "POA"
	}
	return FormatAUD(*d)
}
