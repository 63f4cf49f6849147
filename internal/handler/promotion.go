package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/wassimD28/store-go/internal/domain/promotion"
)

// PreviewPromotions lists the promotions relevant to the cart with their
// eligibility and, when eligible, the discount they would give. Nothing is
// committed.
func (h *Handler) PreviewPromotions(w http.ResponseWriter, r *http.Request) {
	req, ok := h.cartRequest(w, r)
	if !ok {
		return
	}

	quotes, err := h.promotions.Preview(r.Context(), promotion.PreviewRequest{
		StoreID:    chi.URLParam(r, "storeID"),
		Cart:       req.Items,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeQuotes(quotes))
}

// ApplyPromotion commits one promotion to the cart and counts the use.
func (h *Handler) ApplyPromotion(w http.ResponseWriter, r *http.Request) {
	req, ok := h.cartRequest(w, r)
	if !ok {
		return
	}

	out, err := h.promotions.Apply(r.Context(), promotion.ApplyRequest{
		StoreID:     chi.URLParam(r, "storeID"),
		Cart:        req.Items,
		PromotionID: req.PromotionID,
		CouponCode:  req.CouponCode,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeOutcome(&e, out)
	writeJSON(w, http.StatusOK, e.Bytes())
}

func (h *Handler) cartRequest(w http.ResponseWriter, r *http.Request) (cartRequest, bool) {
	data, err := readBody(w, r)
	if err != nil {
		writeBadRequest(w, err)
		return cartRequest{}, false
	}
	req, err := decodeCartRequest(data)
	if err != nil {
		writeBadRequest(w, err)
		return cartRequest{}, false
	}
	return req, true
}
