package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/wassimD28/store-go/internal/domain/promotion"
)

// Promotions is the part of promotion.Service used at checkout.
type Promotions interface {
	Lines(ctx context.Context, storeID string, cart []promotion.CartItem) ([]promotion.Line, error)
	Apply(ctx context.Context, req promotion.ApplyRequest) (*promotion.Outcome, error)
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	StoreID     string
	Items       []promotion.CartItem
	PromotionID string
	CouponCode  string
	// IdempotencyKey, when set, makes retries of the same checkout return the
	// order stored by the first attempt.
	IdempotencyKey string
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order *Order
	// Message is the promotion confirmation shown to the shopper, if any.
	Message string
	// Replayed is true when the order was stored by an earlier request with
	// the same idempotency key.
	Replayed bool
}

// Service encapsulates order placement business logic.
type Service struct {
	promotions Promotions
	orders     Repository
	now        func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(promotions Promotions, orders Repository) *Service {
	return &Service{
		promotions: promotions,
		orders:     orders,
		now:        time.Now,
	}
}

// PlaceOrder prices the cart, applies the requested promotion (committing one
// use of it), and persists the order.
//
// A repeated request with the same idempotency key returns the stored order
// without applying the promotion again. Two concurrent requests with the same
// key may both apply the promotion; only one order is stored and both callers
// receive it.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if req.IdempotencyKey != "" {
		existing, err := s.orders.FindByIdempotencyKey(ctx, req.StoreID, req.IdempotencyKey)
		switch {
		case err == nil:
			return &PlaceOrderResult{Order: existing, Replayed: true}, nil
		case !errors.Is(err, ErrNotFound):
			return nil, errors.Wrap(err, "find order by idempotency key")
		}
	}

	out, err := s.price(ctx, req)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:             uuid.New().String(),
		StoreID:        req.StoreID,
		Items:          make([]Item, len(out.Lines)),
		Subtotal:       out.Subtotal.Round(2),
		Discount:       out.Discount.Round(2),
		Total:          out.Total.Round(2),
		FreeShipping:   out.FreeShipping,
		CouponCode:     req.CouponCode,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      s.now().UTC(),
	}
	if out.Promotion != nil {
		o.PromotionID = out.Promotion.ID
	}
	for i, l := range out.Lines {
		o.Items[i] = Item{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Discount:  l.Discount,
		}
	}

	if err := s.orders.Create(ctx, o); err != nil {
		if errors.Is(err, ErrDuplicate) && req.IdempotencyKey != "" {
			existing, ferr := s.orders.FindByIdempotencyKey(ctx, req.StoreID, req.IdempotencyKey)
			if ferr != nil {
				return nil, errors.Wrap(ferr, "find concurrent order")
			}
			return &PlaceOrderResult{Order: existing, Replayed: true}, nil
		}
		return nil, errors.Wrap(err, "create order")
	}

	return &PlaceOrderResult{Order: o, Message: out.Message}, nil
}

func (s *Service) price(ctx context.Context, req PlaceOrderRequest) (*promotion.Outcome, error) {
	if req.PromotionID == "" && req.CouponCode == "" {
		lines, err := s.promotions.Lines(ctx, req.StoreID, req.Items)
		if err != nil {
			return nil, err
		}
		return promotion.Undiscounted(lines), nil
	}
	return s.promotions.Apply(ctx, promotion.ApplyRequest{
		StoreID:     req.StoreID,
		Cart:        req.Items,
		PromotionID: req.PromotionID,
		CouponCode:  req.CouponCode,
	})
}
