// Package money holds the decimal and calendar helpers shared by billing and reminders.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// NairaSymbol prefixes every formatted amount.
const NairaSymbol = "₦"

var printer = message.NewPrinter(language.English)

// FloorZero returns max(0, d).
func FloorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Balance computes max(0, total - paid).
func Balance(total, paid decimal.Decimal) decimal.Decimal {
	return FloorZero(total.Sub(paid))
}

// Naira renders an amount as ₦150,000.00.
func Naira(d decimal.Decimal) string {
	return NairaSymbol + Grouped(d)
}

// Grouped renders d rounded to two places with thousands separators.
func Grouped(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")
	whole, err := decimal.NewFromString(intPart)
	if err != nil {
		return d.StringFixed(2)
	}
	out := printer.Sprintf("%d", whole.IntPart()) + "." + frac
	if d.Round(2).IsNegative() {
		return "-" + out
	}
	return out
}
