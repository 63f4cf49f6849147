package promotion

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ActionType names what a shopper must do to make a promotion eligible.
type ActionType string

const (
	// ActionAddMoreItems asks for AmountNeeded more subtotal.
	ActionAddMoreItems ActionType = "ADD_MORE_ITEMS"
	// ActionAddSpecificItems asks for QuantityNeeded more units from
	// ProductIDs or CategoryIDs (any product when both are empty).
	ActionAddSpecificItems ActionType = "ADD_SPECIFIC_ITEMS"
)

// RequiredAction is a machine-readable reason a promotion is not yet satisfied.
type RequiredAction struct {
	Type           ActionType
	AmountNeeded   decimal.Decimal
	QuantityNeeded int
	ProductIDs     []string
	CategoryIDs    []string
}

func (a RequiredAction) String() string {
	switch a.Type {
	case ActionAddMoreItems:
		return fmt.Sprintf("add %s more to qualify", a.AmountNeeded.StringFixed(2))
	case ActionAddSpecificItems:
		return fmt.Sprintf("add %d more qualifying items", a.QuantityNeeded)
	default:
		return string(a.Type)
	}
}

// EligibilityResult is the outcome of evaluating one promotion against a cart.
type EligibilityResult struct {
	Promotion  *Promotion
	IsEligible bool
	Subtotal   decimal.Decimal
	// MatchedLines and MatchedQuantity count the lines (and their units) the
	// promotion touches; for buy_x_get_y only X-side lines are counted.
	MatchedLines    int
	MatchedQuantity int
	RequiredActions []RequiredAction
}

// Relevant reports whether the promotion concerns this cart at all. Results
// that touch no line and ask for nothing are dropped from previews.
func (r EligibilityResult) Relevant() bool {
	return r.MatchedLines > 0 || len(r.RequiredActions) > 0
}

// Evaluate decides whether p applies to lines. It never mutates its inputs
// and does not look at the validity window, which Service checks when
// resolving the promotion.
//
// Gates, in order: minimum purchase on the whole-cart subtotal, then
// product/category membership, then (buy_x_get_y only) that the matched
// quantity covers BuyQuantity.
func Evaluate(lines []Line, p *Promotion) EligibilityResult {
	res := EligibilityResult{
		Promotion: p,
		Subtotal:  Subtotal(lines),
	}

	if res.Subtotal.LessThan(p.MinimumPurchase) {
		res.RequiredActions = append(res.RequiredActions, RequiredAction{
			Type:         ActionAddMoreItems,
			AmountNeeded: p.MinimumPurchase.Sub(res.Subtotal),
		})
	}

	scope := p.Scope()
	for _, l := range lines {
		if scope.Contains(l) {
			res.MatchedLines++
			res.MatchedQuantity += l.Quantity
		}
	}

	if bx, ok := p.Discount.(BuyXGetY); ok && res.MatchedQuantity < bx.BuyQuantity {
		res.RequiredActions = append(res.RequiredActions, RequiredAction{
			Type:           ActionAddSpecificItems,
			QuantityNeeded: bx.BuyQuantity - res.MatchedQuantity,
			ProductIDs:     p.ApplicableProducts,
			CategoryIDs:    p.ApplicableCategories,
		})
	}

	res.IsEligible = res.MatchedLines > 0 && len(res.RequiredActions) == 0
	return res
}
