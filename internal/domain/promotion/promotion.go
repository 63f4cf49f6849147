// Package promotion decides which promotions apply to a shopping cart and
// computes their discounts.
//
// Evaluation and calculation are pure functions of (cart lines, promotion).
// The only side effect in the package is the usage increment performed by
// Service.Apply after a discount has been computed.
package promotion

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// DiscountType is the stored name of a discount variant.
type DiscountType string

const (
	// TypePercentage takes a percentage off the applicable lines.
	TypePercentage DiscountType = "percentage"
	// TypeFixedAmount takes a fixed amount off, split across applicable lines.
	TypeFixedAmount DiscountType = "fixed_amount"
	// TypeFreeShipping waives the shipping fee and leaves line prices untouched.
	TypeFreeShipping DiscountType = "free_shipping"
	// TypeBuyXGetY discounts Y units once enough X units are in the cart.
	TypeBuyXGetY DiscountType = "buy_x_get_y"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Discount is the closed set of discount variants: Percentage, FixedAmount,
// FreeShipping and BuyXGetY. The unexported method keeps other packages from
// adding variants, so every type switch over Discount in this package is
// exhaustive.
type Discount interface {
	Type() DiscountType
	check() error
}

// Percentage discounts Value percent (0-100) of the applicable lines.
type Percentage struct {
	Value decimal.Decimal
}

// FixedAmount discounts Amount once per cart, never more than the applicable subtotal.
type FixedAmount struct {
	Amount decimal.Decimal
}

// FreeShipping waives the shipping fee.
type FreeShipping struct{}

// BuyXGetY gives Value percent off GetQuantity Y units for every
// BuyQuantity X units. A Value of 100 or more makes Y units free.
//
// X units are the lines matched by the promotion's applicable products and
// categories. Y units are the lines matched by YProducts and YCategories, or
// the X lines themselves when both are empty. SameProductOnly forces each Y
// unit to be the same product as the X units of its bundle, so bundles are
// counted per product: on a cart mixing products the bundle count can be
// lower than ⌊q/(buy+get)⌋ over all X units.
type BuyXGetY struct {
	BuyQuantity     int
	GetQuantity     int
	Value           decimal.Decimal
	YProducts       []string
	YCategories     []string
	SameProductOnly bool
}

func (Percentage) Type() DiscountType   { return TypePercentage }
func (FixedAmount) Type() DiscountType  { return TypeFixedAmount }
func (FreeShipping) Type() DiscountType { return TypeFreeShipping }
func (BuyXGetY) Type() DiscountType     { return TypeBuyXGetY }

func (d Percentage) check() error {
	return validation.Errors{
		"discountValue": validation.Validate(d.Value, validation.By(percent)),
	}.Filter()
}

func (d FixedAmount) check() error {
	return validation.Errors{
		"discountValue": validation.Validate(d.Amount, validation.By(nonNegative)),
	}.Filter()
}

func (FreeShipping) check() error { return nil }

func (d BuyXGetY) check() error {
	return validation.Errors{
		"buyQuantity":   validation.Validate(d.BuyQuantity, validation.Required, validation.Min(1)),
		"getQuantity":   validation.Validate(d.GetQuantity, validation.Required, validation.Min(1)),
		"discountValue": validation.Validate(d.Value, validation.By(nonNegative)),
	}.Filter()
}

// hasYPool reports whether Y units are drawn from their own product/category sets.
func (d BuyXGetY) hasYPool() bool {
	return !d.SameProductOnly && (len(d.YProducts) > 0 || len(d.YCategories) > 0)
}

// fraction is the share of a Y unit's price that is discounted, capped at 1.
func (d BuyXGetY) fraction() decimal.Decimal {
	f := d.Value.Div(hundred)
	if f.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(f, one)
}

// DiscountFields is the flat, storage-friendly representation of a Discount.
type DiscountFields struct {
	Type            DiscountType
	Value           decimal.Decimal
	BuyQuantity     int
	GetQuantity     int
	YProducts       []string
	YCategories     []string
	SameProductOnly bool
}

// Decode converts stored fields into a Discount variant. It returns an
// *UnsupportedTypeError for unknown types and a *ValidationError for
// malformed configurations such as buy_x_get_y without quantities.
func (f DiscountFields) Decode() (Discount, error) {
	var d Discount
	switch f.Type {
	case TypePercentage:
		d = Percentage{Value: f.Value}
	case TypeFixedAmount:
		d = FixedAmount{Amount: f.Value}
	case TypeFreeShipping:
		d = FreeShipping{}
	case TypeBuyXGetY:
		d = BuyXGetY{
			BuyQuantity:     f.BuyQuantity,
			GetQuantity:     f.GetQuantity,
			Value:           f.Value,
			YProducts:       f.YProducts,
			YCategories:     f.YCategories,
			SameProductOnly: f.SameProductOnly,
		}
	default:
		return nil, &UnsupportedTypeError{Type: f.Type}
	}
	if err := d.check(); err != nil {
		return nil, &ValidationError{Reason: "invalid " + string(f.Type) + " discount", Err: err}
	}
	return d, nil
}

// Fields flattens a Discount for storage.
func Fields(d Discount) DiscountFields {
	switch d := d.(type) {
	case Percentage:
		return DiscountFields{Type: TypePercentage, Value: d.Value}
	case FixedAmount:
		return DiscountFields{Type: TypeFixedAmount, Value: d.Amount}
	case FreeShipping:
		return DiscountFields{Type: TypeFreeShipping}
	case BuyXGetY:
		return DiscountFields{
			Type:            TypeBuyXGetY,
			Value:           d.Value,
			BuyQuantity:     d.BuyQuantity,
			GetQuantity:     d.GetQuantity,
			YProducts:       d.YProducts,
			YCategories:     d.YCategories,
			SameProductOnly: d.SameProductOnly,
		}
	}
	return DiscountFields{}
}

// Promotion is a merchant-defined discount rule owned by a store.
type Promotion struct {
	ID          string
	StoreID     string
	Name        string
	Description string
	Discount    Discount

	// MinimumPurchase gates eligibility on the cart subtotal.
	MinimumPurchase decimal.Decimal
	// CouponCode, when set, makes the promotion usable only through explicit
	// code entry. Promotions without a code apply automatically.
	CouponCode string

	// ApplicableProducts and ApplicableCategories select the lines the
	// promotion applies to (the X side for buy_x_get_y). Both empty means
	// the whole store.
	ApplicableProducts   []string
	ApplicableCategories []string

	// StartDate and EndDate bound the validity window inclusively. A zero
	// value leaves that side of the window open.
	StartDate time.Time
	EndDate   time.Time
	IsActive  bool

	UsageCount int
	// MaxUses caps UsageCount; 0 means unlimited.
	MaxUses int
}

// Type returns the promotion's discount type, or "" when none is configured.
func (p *Promotion) Type() DiscountType {
	if p.Discount == nil {
		return ""
	}
	return p.Discount.Type()
}

// Automatic reports whether the promotion applies without a coupon code.
func (p *Promotion) Automatic() bool {
	return p.CouponCode == ""
}

// MatchesCode reports whether code unlocks this promotion. Codes are
// compared case-insensitively.
func (p *Promotion) MatchesCode(code string) bool {
	return p.CouponCode != "" && strings.EqualFold(strings.TrimSpace(code), p.CouponCode)
}

// ActiveAt reports whether the promotion is switched on and t falls inside
// its validity window.
func (p *Promotion) ActiveAt(t time.Time) bool {
	if !p.IsActive {
		return false
	}
	if !p.StartDate.IsZero() && t.Before(p.StartDate) {
		return false
	}
	if !p.EndDate.IsZero() && t.After(p.EndDate) {
		return false
	}
	return true
}

// DisplayName returns the name shown to shoppers.
func (p *Promotion) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	if p.CouponCode != "" {
		return p.CouponCode
	}
	return p.ID
}

// Validate checks the promotion configuration. It returns a *ValidationError
// describing every invalid field.
func (p *Promotion) Validate() error {
	err := validation.ValidateStruct(p,
		validation.Field(&p.ID, validation.Required),
		validation.Field(&p.StoreID, validation.Required),
		validation.Field(&p.Discount, validation.Required),
		validation.Field(&p.MinimumPurchase, validation.By(nonNegative)),
		validation.Field(&p.MaxUses, validation.Min(0)),
		validation.Field(&p.EndDate, validation.By(func(v any) error {
			end, _ := v.(time.Time)
			if !end.IsZero() && !p.StartDate.IsZero() && end.Before(p.StartDate) {
				return errors.New("must not be before the start date")
			}
			return nil
		})),
	)
	if err == nil && p.Discount != nil {
		err = p.Discount.check()
	}
	if err != nil {
		return &ValidationError{PromotionID: p.ID, Reason: "invalid promotion", Err: err}
	}
	return nil
}

// Scope returns the X-side membership test of the promotion.
func (p *Promotion) Scope() Scope {
	return NewScope(p.ApplicableProducts, p.ApplicableCategories)
}

// Repository is the Promotion Store.
type Repository interface {
	// FindByID returns the promotion with the given ID within a store, or a
	// *NotFoundError.
	FindByID(ctx context.Context, storeID, id string) (*Promotion, error)
	// FindByCouponCode returns the active promotion unlocked by code whose
	// validity window contains now, or a *NotFoundError.
	FindByCouponCode(ctx context.Context, storeID, code string, now time.Time) (*Promotion, error)
	// FindAutomatic returns the active code-less promotions of a store whose
	// validity window contains now.
	FindAutomatic(ctx context.Context, storeID string, now time.Time) ([]Promotion, error)
	// IncrementUsage atomically adds one to the usage counter and returns the
	// new value. When MaxUses is set and already reached it returns
	// ErrUsageLimitReached without changing the counter.
	IncrementUsage(ctx context.Context, id string) (int, error)
}

func nonNegative(v any) error {
	d, _ := v.(decimal.Decimal)
	if d.IsNegative() {
		return errors.New("must not be negative")
	}
	return nil
}

func percent(v any) error {
	d, _ := v.(decimal.Decimal)
	if d.IsNegative() || d.GreaterThan(hundred) {
		return errors.New("must be between 0 and 100")
	}
	return nil
}
