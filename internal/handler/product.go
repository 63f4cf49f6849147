package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListProducts returns the store's catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context(), chi.URLParam(r, "storeID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeProducts(products))
}
