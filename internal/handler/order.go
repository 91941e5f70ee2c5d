package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-desk/internal/domain/order"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	maxIdempotencyKeyLen = 255
)

func writeOrder(w http.ResponseWriter, status int, o *order.Order) {
	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, status, &e)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	sub, _ := subjectFrom(r.Context())
	orders, err := h.orders.ListOrders(r.Context(), sub.UserID)
	if err != nil {
		fail(w, r, err)
		return
	}

	var e jx.Encoder
	e.ArrStart()
	for i := range orders {
		encodeOrder(&e, &orders[i])
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	sub, _ := subjectFrom(r.Context())
	o, err := h.orders.GetOrder(r.Context(), sub.UserID, chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sub, _ := subjectFrom(ctx)

	data, err := readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	body, err := decodeOrderBody(data)
	if err != nil {
		fail(w, r, err)
		return
	}
	if !body.HasItems {
		fail(w, r, badRequest("items is required"))
		return
	}

	key := r.Header.Get(idempotencyKeyHeader)
	if key == "" || h.idem == nil {
		o, err := h.orders.CreateOrder(ctx, order.CreateRequest{
			UserID:     sub.UserID,
			Items:      body.Items,
			CouponCode: body.CouponCode,
		})
		if err != nil {
			fail(w, r, err)
			return
		}
		writeOrder(w, http.StatusCreated, o)
		return
	}

	if len(key) > maxIdempotencyKeyLen {
		fail(w, r, badRequest("Idempotency-Key is too long"))
		return
	}
	prev, err := h.idem.Reserve(ctx, sub.UserID, key)
	if err != nil {
		fail(w, r, err)
		return
	}
	if prev != "" {
		o, err := h.orders.GetOrder(ctx, sub.UserID, prev)
		if err != nil {
			fail(w, r, err)
			return
		}
		w.Header().Set("Idempotent-Replayed", "true")
		writeOrder(w, http.StatusOK, o)
		return
	}

	o, err := h.orders.CreateOrder(ctx, order.CreateRequest{
		UserID:     sub.UserID,
		Items:      body.Items,
		CouponCode: body.CouponCode,
	})
	if err != nil {
		if relErr := h.idem.Release(ctx, sub.UserID, key); relErr != nil {
			zctx.From(ctx).Warn("Release idempotency key", zap.Error(relErr))
		}
		fail(w, r, err)
		return
	}
	if err := h.idem.Complete(ctx, sub.UserID, key, o.ID); err != nil {
		zctx.From(ctx).Warn("Complete idempotency key", zap.Error(err))
	}
	writeOrder(w, http.StatusCreated, o)
}

// replaceOrder serves PUT, which requires the items list.
func (h *Handler) replaceOrder(w http.ResponseWriter, r *http.Request) {
	h.updateOrder(w, r, true)
}

// patchOrder serves PATCH, which may omit items to change the coupon only.
func (h *Handler) patchOrder(w http.ResponseWriter, r *http.Request) {
	h.updateOrder(w, r, false)
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request, requireItems bool) {
	ctx := r.Context()
	sub, _ := subjectFrom(ctx)

	data, err := readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	body, err := decodeOrderBody(data)
	if err != nil {
		fail(w, r, err)
		return
	}
	if requireItems && !body.HasItems {
		fail(w, r, badRequest("items is required"))
		return
	}

	o, err := h.orders.UpdateOrder(ctx, order.UpdateRequest{
		UserID:     sub.UserID,
		OrderID:    chi.URLParam(r, "id"),
		Items:      body.Items,
		CouponCode: body.CouponCode,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeOrder(w, http.StatusOK, o)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	sub, _ := subjectFrom(r.Context())
	err := h.orders.DeleteOrder(r.Context(), sub.UserID, chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
