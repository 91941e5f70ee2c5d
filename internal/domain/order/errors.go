package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors, one per error kind. Typed errors below unwrap to them.
var (
	ErrValidation        = errors.New("invalid order")
	ErrInsufficientStock = errors.New("not enough stock for product")
	ErrInvalidPromoCode  = errors.New("invalid promo code")
	ErrNotFound          = errors.New("order not found")
)

// Kind classifies an error returned by the order workflow.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindInsufficientStock Kind = "insufficient_stock"
	KindInvalidPromoCode  Kind = "invalid_promo_code"
	KindNotFound          Kind = "not_found"
	KindInternal          Kind = "internal"
)

// KindOf returns the kind of err. Errors that are not produced by the
// workflow's validation are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrInvalidPromoCode):
		return KindInvalidPromoCode
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

// InsufficientStockError is returned when a line asks for more units than
// the product has in stock.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error { return ErrValidation }

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

func (e *InvalidQuantityError) Unwrap() error { return ErrValidation }

// ProductOf returns the product id a validation or stock error refers to.
func ProductOf(err error) (string, bool) {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		return stockErr.ProductID, true
	}
	var notFoundErr *ProductNotFoundError
	if errors.As(err, &notFoundErr) {
		return notFoundErr.ProductID, true
	}
	var qtyErr *InvalidQuantityError
	if errors.As(err, &qtyErr) {
		return qtyErr.ProductID, true
	}
	return "", false
}
