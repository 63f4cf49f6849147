package promotion

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/wassimD28/store-go/internal/domain/product"
)

// CartItem is a cart line as submitted by the shopper's app.
type CartItem struct {
	ProductID string
	VariantID string
	Quantity  int
	// Price is the unit price carried on the cart line. When set it takes
	// precedence over the catalog price, since it reflects variant pricing
	// the catalog does not know about.
	Price decimal.NullDecimal
}

// Validate checks a single cart item.
func (c CartItem) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ProductID, validation.Required),
		validation.Field(&c.Quantity, validation.Required, validation.Min(1)),
		validation.Field(&c.Price, validation.By(func(v any) error {
			p, _ := v.(decimal.NullDecimal)
			if p.Valid {
				return nonNegative(p.Decimal)
			}
			return nil
		})),
	)
}

// ValidateCart checks every cart item and returns a *ValidationError naming
// the first invalid line.
func ValidateCart(items []CartItem) error {
	if len(items) == 0 {
		return &ValidationError{Reason: "cart is empty"}
	}
	for i, item := range items {
		if err := item.Validate(); err != nil {
			return &ValidationError{Reason: fmt.Sprintf("cart line %d", i+1), Err: err}
		}
	}
	return nil
}

// ProductIDs returns the product IDs referenced by the cart, in cart order.
func ProductIDs(items []CartItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	return ids
}

// Line is a cart line resolved against a catalog snapshot.
type Line struct {
	// Index is the position of the line in the submitted cart.
	Index      int
	ProductID  string
	VariantID  string
	CategoryID string
	Quantity   int
	UnitPrice  decimal.Decimal
}

// Total returns UnitPrice × Quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ResolveLines joins cart items with the catalog snapshot. Every product must
// exist in the snapshot; the category always comes from the catalog and the
// unit price from the cart line when present.
func ResolveLines(items []CartItem, catalog product.Snapshot) ([]Line, error) {
	lines := make([]Line, len(items))
	for i, item := range items {
		p, ok := catalog.Get(item.ProductID)
		if !ok {
			return nil, &ValidationError{
				Reason: fmt.Sprintf("cart line %d: unknown product %s", i+1, item.ProductID),
				Err:    product.ErrNotFound,
			}
		}
		price := p.Price
		if item.Price.Valid {
			price = item.Price.Decimal
		}
		lines[i] = Line{
			Index:      i,
			ProductID:  item.ProductID,
			VariantID:  item.VariantID,
			CategoryID: p.CategoryID,
			Quantity:   item.Quantity,
			UnitPrice:  price,
		}
	}
	return lines, nil
}

// Subtotal returns Σ UnitPrice × Quantity over lines.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

// Scope is a product/category membership test. An empty scope matches
// every line.
type Scope struct {
	products   map[string]struct{}
	categories map[string]struct{}
}

// NewScope builds a Scope from product and category IDs.
func NewScope(products, categories []string) Scope {
	s := Scope{
		products:   make(map[string]struct{}, len(products)),
		categories: make(map[string]struct{}, len(categories)),
	}
	for _, id := range products {
		s.products[id] = struct{}{}
	}
	for _, id := range categories {
		s.categories[id] = struct{}{}
	}
	return s
}

// StoreWide reports whether the scope matches every line.
func (s Scope) StoreWide() bool {
	return len(s.products) == 0 && len(s.categories) == 0
}

// Contains reports whether the line's product or category is in scope.
func (s Scope) Contains(l Line) bool {
	if s.StoreWide() {
		return true
	}
	if _, ok := s.products[l.ProductID]; ok {
		return true
	}
	if l.CategoryID == "" {
		return false
	}
	_, ok := s.categories[l.CategoryID]
	return ok
}
