package promotion

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Applied describes a committed promotion application.
type Applied struct {
	PromotionID  string
	StoreID      string
	CouponCode   string
	DiscountType DiscountType
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	FreeShipping bool
	UsageCount   int
	AppliedAt    time.Time
}

// Publisher announces committed applications to other services. Publishing
// happens after the usage increment, so a failure is logged and does not
// undo the commit.
type Publisher interface {
	PromotionApplied(ctx context.Context, ev Applied) error
}

type nopPublisher struct{}

func (nopPublisher) PromotionApplied(context.Context, Applied) error { return nil }
