package promo

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestPromoCode_Discount(t *testing.T) {
	tests := []struct {
		name     string
		code     PromoCode
		subtotal decimal.Decimal
		want     decimal.Decimal
	}{
		{
			name:     "fixed 10 off 50",
			code:     PromoCode{Type: TypeFixed, FixedAmount: d("10")},
			subtotal: d("50"),
			want:     d("10"),
		},
		{
			name:     "fixed clamped to subtotal",
			code:     PromoCode{Type: TypeFixed, FixedAmount: d("200")},
			subtotal: d("42.50"),
			want:     d("42.50"),
		},
		{
			name: "percentage capped at max discount",
			code: PromoCode{
				Type:               TypePercentage,
				DiscountPercentage: d("20"),
				MaxDiscountAmount:  d("5"),
			},
			subtotal: d("100"),
			want:     d("5"),
		},
		{
			name: "percentage below cap",
			code: PromoCode{
				Type:               TypePercentage,
				DiscountPercentage: d("18"),
				MaxDiscountAmount:  d("50"),
			},
			subtotal: d("8.00"),
			want:     d("1.44"),
		},
		{
			name: "percentage rounds to 2 dp",
			code: PromoCode{
				Type:               TypePercentage,
				DiscountPercentage: d("33.33"),
				MaxDiscountAmount:  d("100"),
			},
			subtotal: d("10.01"),
			// 10.01 * 33.33 / 100 = 3.336333 -> 3.34
			want: d("3.34"),
		},
		{
			name: "percentage with zero cap gives nothing",
			code: PromoCode{
				Type:               TypePercentage,
				DiscountPercentage: d("50"),
				MaxDiscountAmount:  decimal.Zero,
			},
			subtotal: d("100"),
			want:     decimal.Zero,
		},
		{
			name:     "empty order",
			code:     PromoCode{Type: TypeFixed, FixedAmount: d("10")},
			subtotal: decimal.Zero,
			want:     decimal.Zero,
		},
		{
			name:     "negative fixed amount floored",
			code:     PromoCode{Type: TypeFixed, FixedAmount: d("-3")},
			subtotal: d("10"),
			want:     decimal.Zero,
		},
		{
			name:     "unknown type",
			code:     PromoCode{Type: "bogus", FixedAmount: d("3")},
			subtotal: d("10"),
			want:     decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.code.Discount(tt.subtotal)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestPromoCode_ActiveAt(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	window := PromoCode{
		IsActive: true,
		StartAt:  now.Add(-time.Hour),
		EndedAt:  now.Add(time.Hour),
	}

	assert.True(t, window.ActiveAt(now))
	assert.True(t, window.ActiveAt(window.StartAt), "start is inclusive")
	assert.True(t, window.ActiveAt(window.EndedAt), "end is inclusive")
	assert.False(t, window.ActiveAt(now.Add(-2*time.Hour)))
	assert.False(t, window.ActiveAt(now.Add(2*time.Hour)))

	disabled := window
	disabled.IsActive = false
	assert.False(t, disabled.ActiveAt(now))
}

func TestType_Valid(t *testing.T) {
	assert.True(t, TypeFixed.Valid())
	assert.True(t, TypePercentage.Valid())
	assert.False(t, Type("free_lowest").Valid())
}
