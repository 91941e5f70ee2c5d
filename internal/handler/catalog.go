package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}

	var e jx.Encoder
	e.ArrStart()
	for i := range products {
		encodeProduct(&e, &products[i])
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}

	var e jx.Encoder
	encodeProduct(&e, p)
	writeJSON(w, http.StatusOK, &e)
}

// listPromoCodes returns the codes usable right now.
func (h *Handler) listPromoCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.promos.ListActive(r.Context(), h.now())
	if err != nil {
		fail(w, r, err)
		return
	}

	var e jx.Encoder
	e.ArrStart()
	for i := range codes {
		encodePromo(&e, &codes[i])
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, &e)
}

func (h *Handler) getPromoCode(w http.ResponseWriter, r *http.Request) {
	p, err := h.promos.GetActive(r.Context(), chi.URLParam(r, "id"), h.now())
	if err != nil {
		fail(w, r, err)
		return
	}

	var e jx.Encoder
	encodePromo(&e, p)
	writeJSON(w, http.StatusOK, &e)
}
