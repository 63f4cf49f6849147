package promotion

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrUsageLimitReached is returned when a promotion has exhausted MaxUses.
var ErrUsageLimitReached = errors.New("promotion usage limit reached")

// Kind classifies errors returned by this package so callers can branch on
// them without parsing messages.
type Kind int

const (
	// KindInternal covers collaborator I/O failures and anything unclassified.
	KindInternal Kind = iota
	// KindValidation marks a malformed cart or promotion configuration.
	KindValidation
	// KindNotFound marks a promotion or coupon that does not resolve, or is
	// inactive or outside its validity window.
	KindNotFound
	// KindIneligible marks a promotion whose gates the cart does not meet.
	KindIneligible
	// KindUnsupportedType marks a discount type outside the known set.
	KindUnsupportedType
	// KindUsageLimit marks a promotion that reached MaxUses.
	KindUsageLimit
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindIneligible:
		return "ineligible"
	case KindUnsupportedType:
		return "unsupported_type"
	case KindUsageLimit:
		return "usage_limit"
	default:
		return "internal"
	}
}

// KindOf returns the Kind of err.
func KindOf(err error) Kind {
	var (
		validationErr  *ValidationError
		notFoundErr    *NotFoundError
		ineligibleErr  *IneligibleError
		unsupportedErr *UnsupportedTypeError
	)
	switch {
	case err == nil:
		return KindInternal
	case errors.As(err, &unsupportedErr):
		return KindUnsupportedType
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &notFoundErr):
		return KindNotFound
	case errors.As(err, &ineligibleErr):
		return KindIneligible
	case errors.Is(err, ErrUsageLimitReached):
		return KindUsageLimit
	default:
		return KindInternal
	}
}

// ValidationError reports a malformed cart or promotion configuration. It is
// never corrected automatically.
type ValidationError struct {
	PromotionID string
	Reason      string
	Err         error
}

func (e *ValidationError) Error() string {
	msg := e.Reason
	if e.PromotionID != "" {
		msg = fmt.Sprintf("promotion %s: %s", e.PromotionID, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFound reasons.
const (
	ReasonMissing      = "not found"
	ReasonInactive     = "inactive"
	ReasonNotStarted   = "not started yet"
	ReasonExpired      = "expired"
	ReasonCodeRequired = "requires a coupon code"
	ReasonCodeMismatch = "coupon code does not match"
	ReasonWrongStore   = "belongs to another store"
)

// NotFoundError reports a promotion or coupon code that does not resolve to
// a usable promotion.
type NotFoundError struct {
	StoreID     string
	PromotionID string
	CouponCode  string
	Reason      string
}

func (e *NotFoundError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = ReasonMissing
	}
	switch {
	case e.CouponCode != "":
		return fmt.Sprintf("coupon %q: %s", e.CouponCode, reason)
	case e.PromotionID != "":
		return fmt.Sprintf("promotion %s: %s", e.PromotionID, reason)
	default:
		return "promotion: " + reason
	}
}

// IneligibleError reports a promotion that resolved but whose gates the cart
// does not satisfy. Result.RequiredActions tells the shopper what to add.
type IneligibleError struct {
	Result EligibilityResult
}

func (e *IneligibleError) Error() string {
	id := ""
	if e.Result.Promotion != nil {
		id = e.Result.Promotion.ID
	}
	if len(e.Result.RequiredActions) == 0 {
		return fmt.Sprintf("promotion %s: cart has no applicable items", id)
	}
	return fmt.Sprintf("promotion %s: cart not eligible: %s", id, e.Result.RequiredActions[0])
}

// UnsupportedTypeError reports a discount type outside the known set, which
// means stored data and code disagree.
type UnsupportedTypeError struct {
	Type DiscountType
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported discount type %q", string(e.Type))
}
