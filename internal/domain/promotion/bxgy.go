package promotion

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Allocation records how many units of one cart line absorbed the Y discount.
type Allocation struct {
	Index  int
	Units  int
	Amount decimal.Decimal
}

// BundleMatch is the result of matching a buy_x_get_y promotion to a cart.
type BundleMatch struct {
	// Sets is the number of complete "buy N get M" bundles the cart forms.
	Sets int
	// EligibleQuantity is the number of X units in the cart.
	EligibleQuantity int
	// DiscountQuantity is the number of units that received the discount.
	DiscountQuantity int
	// Allocations lists discounted lines in the order they were chosen,
	// cheapest first.
	Allocations []Allocation
	// Amounts holds the discount per cart line, indexed like the cart.
	Amounts []decimal.Decimal
}

// Total returns the sum of Amounts.
func (m *BundleMatch) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, a := range m.Amounts {
		sum = sum.Add(a)
	}
	return sum
}

// Match selects which cart units receive a buy_x_get_y discount.
//
// The cheapest eligible units are always the discounted ones: candidate
// lines are walked in ascending unit price (cart order breaks ties) and each
// absorbs as many of the remaining discounted units as it holds. Running
// Match twice on the same input yields the same attribution.
//
// The cart forms ⌊q/(buy+get)⌋ bundles, q being the X units in the cart. With
// a distinct Y pool the bundle count still comes from the X units, and the
// discounted units are drawn from the Y lines; a line in both pools keeps the
// units the X side needs. With SameProductOnly, bundles are formed per product.
// No discount is larger than its line total.
func Match(lines []Line, p *Promotion) (*BundleMatch, error) {
	bx, ok := p.Discount.(BuyXGetY)
	if !ok {
		return nil, &ValidationError{PromotionID: p.ID, Reason: "not a buy_x_get_y promotion"}
	}
	if err := bx.check(); err != nil {
		return nil, &ValidationError{PromotionID: p.ID, Reason: "invalid buy_x_get_y discount", Err: err}
	}

	m := &BundleMatch{Amounts: zeros(len(lines))}
	x := p.Scope()
	fraction := bx.fraction()

	switch {
	case bx.SameProductOnly:
		m.matchPerProduct(lines, x, bx, fraction)
	case bx.hasYPool():
		m.matchSplitPools(lines, x, NewScope(bx.YProducts, bx.YCategories), bx, fraction)
	default:
		m.matchSharedPool(lines, x, bx, fraction)
	}
	return m, nil
}

func (m *BundleMatch) matchSharedPool(lines []Line, x Scope, bx BuyXGetY, fraction decimal.Decimal) {
	pool := filter(lines, x.Contains)
	m.EligibleQuantity = quantity(pool)
	m.Sets = m.EligibleQuantity / (bx.BuyQuantity + bx.GetQuantity)
	m.allocate(byPrice(pool), m.Sets*bx.GetQuantity, fraction, nil, 0)
}

func (m *BundleMatch) matchPerProduct(lines []Line, x Scope, bx BuyXGetY, fraction decimal.Decimal) {
	var (
		order  []string
		groups = make(map[string][]Line)
	)
	for _, l := range filter(lines, x.Contains) {
		if _, ok := groups[l.ProductID]; !ok {
			order = append(order, l.ProductID)
		}
		groups[l.ProductID] = append(groups[l.ProductID], l)
	}

	for _, id := range order {
		group := groups[id]
		q := quantity(group)
		sets := q / (bx.BuyQuantity + bx.GetQuantity)
		m.EligibleQuantity += q
		m.Sets += sets
		m.allocate(byPrice(group), sets*bx.GetQuantity, fraction, nil, 0)
	}
}

func (m *BundleMatch) matchSplitPools(lines []Line, x, y Scope, bx BuyXGetY, fraction decimal.Decimal) {
	var (
		xOnly, shared int
		pool          []Line
	)
	for _, l := range lines {
		inX, inY := x.Contains(l), y.Contains(l)
		switch {
		case inX && inY:
			shared += l.Quantity
			pool = append(pool, l)
		case inX:
			xOnly += l.Quantity
		case inY:
			pool = append(pool, l)
		}
	}

	b, g := bx.BuyQuantity, bx.GetQuantity
	m.EligibleQuantity = xOnly + shared
	m.Sets = m.EligibleQuantity / (b + g)

	// Shared units beyond what the X side still needs may be discounted.
	reservedForX := max(0, m.Sets*b-xOnly)
	m.allocate(byPrice(pool), m.Sets*g, fraction, x.Contains, shared-reservedForX)
}

// allocate walks pool (already sorted) and discounts up to need units. Lines
// for which capped returns true draw from a shared budget of capLeft units.
func (m *BundleMatch) allocate(pool []Line, need int, fraction decimal.Decimal, capped func(Line) bool, capLeft int) {
	for _, l := range pool {
		if need == 0 {
			return
		}
		units := min(l.Quantity, need)
		if capped != nil && capped(l) {
			units = min(units, capLeft)
			capLeft -= units
		}
		if units == 0 {
			continue
		}
		amount := l.UnitPrice.Mul(decimal.NewFromInt(int64(units))).Mul(fraction).Round(2)
		amount = decimal.Min(amount, l.Total().Sub(m.Amounts[l.Index]))
		m.Amounts[l.Index] = m.Amounts[l.Index].Add(amount)
		m.Allocations = append(m.Allocations, Allocation{Index: l.Index, Units: units, Amount: amount})
		m.DiscountQuantity += units
		need -= units
	}
}

// byPrice returns a copy of lines sorted by ascending unit price, keeping
// cart order among equal prices.
func byPrice(lines []Line) []Line {
	sorted := slices.Clone(lines)
	slices.SortStableFunc(sorted, func(a, b Line) int {
		return a.UnitPrice.Cmp(b.UnitPrice)
	})
	return sorted
}

func filter(lines []Line, keep func(Line) bool) []Line {
	var out []Line
	for _, l := range lines {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

func quantity(lines []Line) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

func zeros(n int) []decimal.Decimal {
	out := make([]decimal.Decimal, n)
	for i := range out {
		out[i] = decimal.Zero
	}
	return out
}
