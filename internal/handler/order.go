package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wassimD28/store-go/internal/domain/order"
)

// HeaderIdempotencyKey makes checkout retries return the first order.
const HeaderIdempotencyKey = "Idempotency-Key"

// PlaceOrder checks out the cart with an optional promotion. A new order is
// answered with 201; a replay of an earlier idempotent request with 200.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := h.cartRequest(w, r)
	if !ok {
		return
	}

	res, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		StoreID:        chi.URLParam(r, "storeID"),
		Items:          req.Items,
		PromotionID:    req.PromotionID,
		CouponCode:     req.CouponCode,
		IdempotencyKey: r.Header.Get(HeaderIdempotencyKey),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, encodeOrder(res))
}
