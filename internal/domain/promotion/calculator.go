package promotion

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LineDiscount is the part of a promotion's discount attributed to one cart line.
type LineDiscount struct {
	Index     int
	ProductID string
	VariantID string
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
	Discount  decimal.Decimal
	// DiscountedUnits is set for buy_x_get_y: the units of this line that
	// received the Y discount.
	DiscountedUnits int
}

// Outcome is the discount a promotion gives a cart.
type Outcome struct {
	Promotion *Promotion
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	// Total is max(0, Subtotal − Discount).
	Total decimal.Decimal
	// Lines has one entry per cart line, in cart order.
	Lines []LineDiscount
	// FreeShipping reports a shipping-fee waiver. It is not part of Discount.
	FreeShipping bool
	Message      string
}

// Undiscounted returns the outcome of a cart without any promotion.
func Undiscounted(lines []Line) *Outcome {
	out := &Outcome{
		Subtotal: Subtotal(lines),
		Discount: decimal.Zero,
		Lines:    make([]LineDiscount, len(lines)),
	}
	for i, l := range lines {
		out.Lines[i] = LineDiscount{
			Index:     l.Index,
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.Total(),
			Discount:  decimal.Zero,
		}
	}
	out.Total = out.Subtotal
	return out
}

// Calculate computes the per-line and total discount p gives lines. p must
// already have passed Evaluate.
//
// Percentage and fixed_amount discounts are taken off the cart subtotal; the
// promotion's products and categories only gate eligibility. The discount is
// spread over every line in proportion to its total. Shares are truncated to
// cents and the leftover cents go to the earliest lines in cart order that can
// still absorb them, so the shares always add up to the total exactly.
func Calculate(lines []Line, p *Promotion) (*Outcome, error) {
	out := Undiscounted(lines)
	out.Promotion = p

	var amounts []decimal.Decimal
	switch d := p.Discount.(type) {
	case nil:
		return nil, &ValidationError{PromotionID: p.ID, Reason: "no discount configured"}
	case Percentage:
		if err := d.check(); err != nil {
			return nil, &ValidationError{PromotionID: p.ID, Reason: "invalid percentage discount", Err: err}
		}
		total := out.Subtotal.Mul(d.Value).Div(hundred).Round(2)
		amounts = split(decimal.Min(total, out.Subtotal), lines)
	case FixedAmount:
		if err := d.check(); err != nil {
			return nil, &ValidationError{PromotionID: p.ID, Reason: "invalid fixed_amount discount", Err: err}
		}
		amounts = split(decimal.Min(d.Amount.Round(2), out.Subtotal), lines)
	case FreeShipping:
		out.FreeShipping = true
	case BuyXGetY:
		m, err := Match(lines, p)
		if err != nil {
			return nil, err
		}
		amounts = m.Amounts
		for _, a := range m.Allocations {
			out.Lines[a.Index].DiscountedUnits += a.Units
		}
	default:
		return nil, &UnsupportedTypeError{Type: d.Type()}
	}

	for i, a := range amounts {
		out.Lines[i].Discount = a
		out.Discount = out.Discount.Add(a)
	}
	if out.Discount.GreaterThan(out.Subtotal) {
		out.Discount = out.Subtotal
	}
	out.Total = out.Subtotal.Sub(out.Discount)
	out.Message = message(p, out)
	return out, nil
}

// split distributes total over lines proportionally to their totals. total
// must not exceed the subtotal of lines.
func split(total decimal.Decimal, lines []Line) []decimal.Decimal {
	shares := zeros(len(lines))
	base := Subtotal(lines)
	if !total.IsPositive() || !base.IsPositive() {
		return shares
	}

	allocated := decimal.Zero
	for i, l := range lines {
		shares[i] = total.Mul(l.Total()).Div(base).Truncate(2)
		allocated = allocated.Add(shares[i])
	}

	residual := total.Sub(allocated)
	for i, l := range lines {
		if !residual.IsPositive() {
			break
		}
		headroom := l.Total().Sub(shares[i])
		if !headroom.IsPositive() {
			continue
		}
		add := decimal.Min(headroom, residual)
		shares[i] = shares[i].Add(add)
		residual = residual.Sub(add)
	}
	return shares
}

func message(p *Promotion, out *Outcome) string {
	name := p.DisplayName()
	switch {
	case out.FreeShipping:
		return fmt.Sprintf("%s applied: free shipping on this order", name)
	case out.Discount.IsZero():
		return fmt.Sprintf("%s applied: no discount for the current items", name)
	default:
		return fmt.Sprintf("%s applied: you save %s", name, out.Discount.StringFixed(2))
	}
}
