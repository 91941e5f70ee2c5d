package promo

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Discount returns the amount this code takes off subtotal. The result is
// never negative, never exceeds subtotal and is rounded to 2 decimal places.
func (p *PromoCode) Discount(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}

	var amount decimal.Decimal
	switch p.Type {
	case TypeFixed:
		amount = decimal.Min(p.FixedAmount, subtotal)
	case TypePercentage:
		amount = subtotal.Mul(p.DiscountPercentage).Div(hundred)
		amount = decimal.Min(amount, p.MaxDiscountAmount)
	default:
		return decimal.Zero
	}

	return floorAtZero(amount).Round(2)
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
