package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the API router. It is meant to be mounted at /api.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, kindNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, kindValidation, "method not allowed")
	})

	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)

	r.Get("/promo-codes", h.listPromoCodes)
	r.Get("/promo-codes/{id}", h.getPromoCode)

	r.Post("/users", h.register)
	r.Post("/token", h.issueToken)
	r.Post("/token/refresh", h.refreshToken)

	r.Group(func(r chi.Router) {
		r.Use(h.requireUser)

		r.Get("/users/me", h.getMe)
		r.Patch("/users/me", h.updateMe)

		r.Get("/orders", h.listOrders)
		r.Post("/orders", h.createOrder)
		r.Get("/orders/{id}", h.getOrder)
		r.Put("/orders/{id}", h.replaceOrder)
		r.Patch("/orders/{id}", h.patchOrder)
		r.Delete("/orders/{id}", h.deleteOrder)
	})

	return r
}
