package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-desk/internal/auth"
	"github.com/xenking/order-desk/internal/domain/order"
	"github.com/xenking/order-desk/internal/domain/product"
	"github.com/xenking/order-desk/internal/domain/promo"
	"github.com/xenking/order-desk/internal/domain/user"
	"github.com/xenking/order-desk/internal/idempotency"
)

const (
	kindValidation   = string(order.KindValidation)
	kindNotFound     = string(order.KindNotFound)
	kindInternal     = string(order.KindInternal)
	kindUnauthorized = "unauthorized"
	kindConflict     = "conflict"
)

// Client-facing messages for order workflow failures.
const (
	msgInsufficientStock = "Not enough stock for product"
	msgInvalidPromoCode  = "Invalid promo code"
)

// badRequestError is a malformed request body or parameter.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(msg string) error { return &badRequestError{msg: msg} }

// apiError is the wire form of an error response.
type apiError struct {
	status  int
	kind    string
	msg     string
	product string
}

func classify(err error) apiError {
	var badReq *badRequestError
	switch {
	case errors.As(err, &badReq):
		return apiError{status: http.StatusBadRequest, kind: kindValidation, msg: badReq.msg}
	case errors.Is(err, auth.ErrInvalidToken):
		return apiError{status: http.StatusUnauthorized, kind: kindUnauthorized, msg: "invalid or expired token"}
	case errors.Is(err, user.ErrInvalidCredentials):
		return apiError{status: http.StatusUnauthorized, kind: kindUnauthorized, msg: "invalid email or password"}
	case errors.Is(err, user.ErrEmailTaken):
		return apiError{status: http.StatusConflict, kind: kindConflict, msg: user.ErrEmailTaken.Error()}
	case errors.Is(err, user.ErrValidation):
		return apiError{status: http.StatusBadRequest, kind: kindValidation, msg: err.Error()}
	case errors.Is(err, user.ErrNotFound):
		return apiError{status: http.StatusNotFound, kind: kindNotFound, msg: user.ErrNotFound.Error()}
	case errors.Is(err, product.ErrNotFound):
		return apiError{status: http.StatusNotFound, kind: kindNotFound, msg: product.ErrNotFound.Error()}
	case errors.Is(err, promo.ErrNotFound):
		return apiError{status: http.StatusNotFound, kind: kindNotFound, msg: promo.ErrNotFound.Error()}
	case errors.Is(err, idempotency.ErrInProgress):
		return apiError{status: http.StatusConflict, kind: kindConflict, msg: idempotency.ErrInProgress.Error()}
	}

	productID, _ := order.ProductOf(err)
	switch order.KindOf(err) {
	case order.KindInsufficientStock:
		return apiError{status: http.StatusBadRequest, kind: string(order.KindInsufficientStock),
			msg: msgInsufficientStock, product: productID}
	case order.KindInvalidPromoCode:
		return apiError{status: http.StatusBadRequest, kind: string(order.KindInvalidPromoCode),
			msg: msgInvalidPromoCode}
	case order.KindValidation:
		return apiError{status: http.StatusBadRequest, kind: kindValidation, msg: err.Error(), product: productID}
	case order.KindNotFound:
		return apiError{status: http.StatusNotFound, kind: kindNotFound, msg: order.ErrNotFound.Error()}
	}
	return apiError{status: http.StatusInternalServerError, kind: kindInternal, msg: "internal error"}
}

// fail writes the response for err. Unexpected errors are logged.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	if e.status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeAPIError(w, e)
}

func writeError(w http.ResponseWriter, _ *http.Request, status int, kind, msg string) {
	writeAPIError(w, apiError{status: status, kind: kind, msg: msg})
}

func writeAPIError(w http.ResponseWriter, e apiError) {
	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("error")
	enc.Str(e.msg)
	enc.FieldStart("kind")
	enc.Str(e.kind)
	if e.product != "" {
		enc.FieldStart("product")
		enc.Str(e.product)
	}
	enc.ObjEnd()
	writeJSON(w, e.status, &enc)
}
