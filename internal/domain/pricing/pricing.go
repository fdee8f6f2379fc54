// Package pricing freezes catalog prices and computes line and cart totals.
//
// A frozen price is copied once and carried forward verbatim; nothing in this
// package looks prices up again.
package pricing

import "github.com/shopspring/decimal"

// Precision is the number of decimal places of the currency.
const Precision = 2

// Freeze copies a catalog price into an independent value, normalized to
// currency precision. decimal.Decimal is immutable, so the copy never aliases
// the listing it came from.
func Freeze(price decimal.Decimal) decimal.Decimal {
	return price.Round(Precision)
}

// Round rounds an amount to currency precision.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(Precision)
}

// Line is the priced shape of one cart or order line.
type Line struct {
	UnitPrice      decimal.Decimal
	ModifierPrices []decimal.Decimal
	Quantity       int
}

// UnitTotal returns the unit price plus every modifier price.
func (l Line) UnitTotal() decimal.Decimal {
	sum := l.UnitPrice
	for _, p := range l.ModifierPrices {
		sum = sum.Add(p)
	}
	return sum
}

// Total returns (unit + modifiers) * quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitTotal().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Subtotal sums all lines and rounds to currency precision. An empty set of
// lines yields zero.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Total())
	}
	return Round(sum)
}
