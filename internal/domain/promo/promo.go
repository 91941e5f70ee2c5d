// Package promo defines promo codes and the discount rules they carry.
package promo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypeFixed subtracts a fixed amount, capped at the subtotal.
	TypeFixed Type = "fixed"
	// TypePercentage subtracts a percentage of the subtotal, capped at
	// MaxDiscountAmount.
	TypePercentage Type = "percentage"
)

// Valid reports whether t is a known discount type.
func (t Type) Valid() bool {
	return t == TypeFixed || t == TypePercentage
}

// ErrNotFound is returned when no promo code matches a lookup.
var ErrNotFound = errors.New("promo code not found")

// PromoCode is a discount rule addressed by a unique coupon code.
type PromoCode struct {
	ID                 string
	Code               string
	Name               string
	Type               Type
	FixedAmount        decimal.Decimal
	DiscountPercentage decimal.Decimal
	MaxDiscountAmount  decimal.Decimal
	IsActive           bool
	StartAt            time.Time
	EndedAt            time.Time
}

// ActiveAt reports whether the code is enabled and now falls inside
// [StartAt, EndedAt].
func (p *PromoCode) ActiveAt(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	return !now.Before(p.StartAt) && !now.After(p.EndedAt)
}

// Repository provides lookup of promo codes.
type Repository interface {
	// FindByCode returns the code with an exact, case-sensitive match
	// regardless of its activity window.
	FindByCode(ctx context.Context, code string) (*PromoCode, error)
	// ListActive returns codes that are active at now.
	ListActive(ctx context.Context, now time.Time) ([]PromoCode, error)
	// GetActive returns a single code by id if it is active at now.
	GetActive(ctx context.Context, id string, now time.Time) (*PromoCode, error)
}
