package order

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/order-desk/internal/domain/promo"
)

// Subtotal returns the sum of all line prices.
func Subtotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Price)
	}
	return sum
}

// Totals computes the order total and discount for items with an optional
// promo code applied.
func Totals(items []Item, code *promo.PromoCode) (total, discount decimal.Decimal) {
	subtotal := Subtotal(items)
	if code == nil {
		return subtotal, decimal.Zero
	}
	discount = code.Discount(subtotal)
	return subtotal.Sub(discount), discount
}

// Recompute overwrites TotalPrice and Discount from the current items and
// promo code.
func (o *Order) Recompute() {
	o.TotalPrice, o.Discount = Totals(o.Items, o.Promo)
}
