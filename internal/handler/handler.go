// Package handler exposes the storefront API over HTTP: catalog listing,
// cart promotion preview, promotion commit and checkout.
package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/wassimD28/store-go/internal/domain/order"
	"github.com/wassimD28/store-go/internal/domain/product"
	"github.com/wassimD28/store-go/internal/domain/promotion"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Promotions is the promotion engine as used by the handlers.
type Promotions interface {
	Preview(ctx context.Context, req promotion.PreviewRequest) ([]promotion.Quote, error)
	Apply(ctx context.Context, req promotion.ApplyRequest) (*promotion.Outcome, error)
}

// Orders places orders.
type Orders interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.PlaceOrderResult, error)
}

// Handler serves the storefront API, delegating business logic to the
// domain services.
type Handler struct {
	products   product.Repository
	promotions Promotions
	orders     Orders
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(products product.Repository, promotions Promotions, orders Orders) *Handler {
	return &Handler{
		products:   products,
		promotions: promotions,
		orders:     orders,
	}
}

// Register mounts the API routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/stores/{storeID}", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Post("/cart/promotions", h.PreviewPromotions)
		r.Post("/cart/promotions/apply", h.ApplyPromotion)
		r.Post("/orders", h.PlaceOrder)
	})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
