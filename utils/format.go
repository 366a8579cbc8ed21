package utils

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	CurrencySymbol = "GH₵"
	DateLayout     = "02 Jan 2006"
	DateTimeLayout = "02 Jan 2006 15:04"
)

var printer = message.NewPrinter(language.English)

// FormatCurrency renders money with the fixed symbol, thousands separators and two decimals.
// Unsupported, nil, NaN and infinite inputs render as zero.
func FormatCurrency(v any) string {
	d := toDecimal(v).Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	f, _ := d.Float64()
	return sign + CurrencySymbol + " " + printer.Sprintf("%.2f", f)
}

// FormatNumber groups thousands without a currency symbol.
func FormatNumber(v any) string {
	f, _ := toDecimal(v).Round(2).Float64()
	return printer.Sprintf("%.2f", f)
}

func toDecimal(v any) decimal.Decimal {
	switch n := v.(type) {
	case decimal.Decimal:
		return n
	case *decimal.Decimal:
		if n == nil {
			return decimal.Zero
		}
		return *n
	case decimal.NullDecimal:
		if !n.Valid {
			return decimal.Zero
		}
		return n.Decimal
	case float64:
		return floatToDecimal(n)
	case float32:
		return floatToDecimal(float64(n))
	case int:
		return decimal.NewFromInt(int64(n))
	case int32:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case uint:
		return decimal.NewFromInt(int64(n))
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

func floatToDecimal(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// FormatDate renders a calendar date; the zero time renders as "-".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(DateLayout)
}

func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(DateTimeLayout)
}

// FormatDateIn converts to loc before formatting.
func FormatDateIn(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	if loc == nil {
		loc = time.UTC
	}
	return FormatDate(t.In(loc))
}

func FormatPercent(d decimal.Decimal) string {
	return fmt.Sprintf("%s%%", d.StringFixed(1))
}
