package coupon

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/platter/internal/domain/pricing"
)

var hundred = decimal.NewFromInt(100)

// Apply returns the value charged after applying the coupon to base:
// base × (1 − pct/100) for percentage coupons and max(base − amount, 0) for
// fixed ones, at currency precision. The charged value is never negative.
func (c *Coupon) Apply(base decimal.Decimal) decimal.Decimal {
	return Apply(c.Kind, c.Value, base)
}

// Apply computes the charged value for a discount of the given kind.
// Unknown kinds leave base unchanged.
func Apply(kind DiscountKind, value, base decimal.Decimal) decimal.Decimal {
	var charged decimal.Decimal
	switch kind {
	case DiscountPercentage:
		charged = base.Mul(hundred.Sub(value)).Div(hundred)
	case DiscountFixed:
		charged = base.Sub(value)
	default:
		charged = base
	}
	return floorAtZero(pricing.Round(charged))
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
