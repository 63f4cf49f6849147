package promotion

import (
	"github.com/shopspring/decimal"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// cart builds resolved lines, assigning each its position as Index.
func cart(lines ...Line) []Line {
	for i := range lines {
		lines[i].Index = i
	}
	return lines
}

func ln(productID, categoryID, price string, qty int) Line {
	return Line{
		ProductID:  productID,
		CategoryID: categoryID,
		UnitPrice:  d(price),
		Quantity:   qty,
	}
}

func sum(amounts []LineDiscount) decimal.Decimal {
	total := decimal.Zero
	for _, l := range amounts {
		total = total.Add(l.Discount)
	}
	return total
}

// bogus is a Discount outside the known variants.
type bogus struct{}

func (bogus) Type() DiscountType { return "mystery" }
func (bogus) check() error       { return nil }
