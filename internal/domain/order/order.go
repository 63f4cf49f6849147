package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no order matches the lookup.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicate is returned by Repository.Create when the store already has
	// an order with the same idempotency key.
	ErrDuplicate = errors.New("order already exists")
)

// Order represents a placed order with the promotion applied to it.
type Order struct {
	ID      string
	StoreID string
	Items   []Item

	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
	FreeShipping bool

	PromotionID    string
	CouponCode     string
	IdempotencyKey string
	CreatedAt      time.Time
}

// Item is a single order line with the share of the discount it received.
type Item struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	FindByIdempotencyKey(ctx context.Context, storeID, key string) (*Order, error)
}
