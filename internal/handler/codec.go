package handler

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/wassimD28/store-go/internal/domain/order"
	"github.com/wassimD28/store-go/internal/domain/product"
	"github.com/wassimD28/store-go/internal/domain/promotion"
)

// cartRequest is the body shared by the preview, apply and checkout endpoints.
type cartRequest struct {
	Items       []promotion.CartItem
	PromotionID string
	CouponCode  string
}

func decodeCartRequest(data []byte) (cartRequest, error) {
	var req cartRequest
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				item, err := decodeCartItem(d)
				if err != nil {
					return errors.Wrapf(err, "item %d", len(req.Items)+1)
				}
				req.Items = append(req.Items, item)
				return nil
			})
		case "promotionId":
			req.PromotionID, err = optString(d)
		case "couponCode":
			req.CouponCode, err = optString(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		return cartRequest{}, err
	}
	return req, nil
}

func decodeCartItem(d *jx.Decoder) (promotion.CartItem, error) {
	var item promotion.CartItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			item.ProductID, err = d.Str()
		case "variantId":
			item.VariantID, err = optString(d)
		case "quantity":
			item.Quantity, err = d.Int()
		case "price":
			if d.Next() == jx.Null {
				return d.Null()
			}
			item.Price.Decimal, err = decodeDecimal(d)
			item.Price.Valid = err == nil
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return item, err
}

// decodeDecimal accepts money as a JSON string ("9.99") or number (9.99)
// without going through float64.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch tt := d.Next(); tt {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = n.String()
	default:
		return decimal.Decimal{}, errors.Errorf("expected number or string, got %s", tt)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "parse %q", raw)
	}
	return v, nil
}

func optString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func money(e *jx.Encoder, v decimal.Decimal) {
	e.Str(v.StringFixed(2))
}

func stringArray(e *jx.Encoder, values []string) {
	e.ArrStart()
	for _, v := range values {
		e.Str(v)
	}
	e.ArrEnd()
}

func encodeProducts(products []product.Product) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, p := range products {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(p.ID)
		e.FieldStart("name")
		e.Str(p.Name)
		e.FieldStart("price")
		money(&e, p.Price)
		e.FieldStart("categoryId")
		e.Str(p.CategoryID)
		if p.ImageURL != "" {
			e.FieldStart("imageUrl")
			e.Str(p.ImageURL)
		}
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

func encodePromotion(e *jx.Encoder, p *promotion.Promotion) {
	fields := promotion.Fields(p.Discount)

	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.DisplayName())
	if p.Description != "" {
		e.FieldStart("description")
		e.Str(p.Description)
	}
	e.FieldStart("discountType")
	e.Str(string(fields.Type))
	e.FieldStart("discountValue")
	e.Str(fields.Value.String())
	if fields.Type == promotion.TypeBuyXGetY {
		e.FieldStart("buyQuantity")
		e.Int(fields.BuyQuantity)
		e.FieldStart("getQuantity")
		e.Int(fields.GetQuantity)
	}
	e.FieldStart("minimumPurchase")
	money(e, p.MinimumPurchase)
	if p.CouponCode != "" {
		e.FieldStart("couponCode")
		e.Str(p.CouponCode)
	}
	if !p.EndDate.IsZero() {
		e.FieldStart("endDate")
		e.Str(p.EndDate.UTC().Format(time.RFC3339))
	}
	e.ObjEnd()
}

func encodeRequiredActions(e *jx.Encoder, actions []promotion.RequiredAction) {
	e.ArrStart()
	for _, a := range actions {
		e.ObjStart()
		e.FieldStart("type")
		e.Str(string(a.Type))
		switch a.Type {
		case promotion.ActionAddMoreItems:
			e.FieldStart("amountNeeded")
			money(e, a.AmountNeeded)
		case promotion.ActionAddSpecificItems:
			e.FieldStart("quantityNeeded")
			e.Int(a.QuantityNeeded)
			e.FieldStart("productIds")
			stringArray(e, a.ProductIDs)
			e.FieldStart("categoryIds")
			stringArray(e, a.CategoryIDs)
		}
		e.FieldStart("message")
		e.Str(a.String())
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encodeOutcome(e *jx.Encoder, out *promotion.Outcome) {
	e.ObjStart()
	if out.Promotion != nil {
		e.FieldStart("promotion")
		encodePromotion(e, out.Promotion)
	}
	e.FieldStart("originalSubtotal")
	money(e, out.Subtotal)
	e.FieldStart("discount")
	money(e, out.Discount)
	e.FieldStart("finalTotal")
	money(e, out.Total)
	e.FieldStart("freeShipping")
	e.Bool(out.FreeShipping)
	e.FieldStart("discountedItems")
	e.ArrStart()
	for _, l := range out.Lines {
		e.ObjStart()
		e.FieldStart("index")
		e.Int(l.Index)
		e.FieldStart("productId")
		e.Str(l.ProductID)
		if l.VariantID != "" {
			e.FieldStart("variantId")
			e.Str(l.VariantID)
		}
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("unitPrice")
		money(e, l.UnitPrice)
		e.FieldStart("lineTotal")
		money(e, l.LineTotal)
		e.FieldStart("discount")
		money(e, l.Discount)
		if l.DiscountedUnits > 0 {
			e.FieldStart("discountedUnits")
			e.Int(l.DiscountedUnits)
		}
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("message")
	e.Str(out.Message)
	e.ObjEnd()
}

func encodeQuotes(quotes []promotion.Quote) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("applicablePromotions")
	e.ArrStart()
	for _, q := range quotes {
		res := q.Eligibility
		e.ObjStart()
		e.FieldStart("promotion")
		encodePromotion(&e, res.Promotion)
		e.FieldStart("isEligible")
		e.Bool(res.IsEligible)
		e.FieldStart("subtotal")
		money(&e, res.Subtotal)
		e.FieldStart("matchedLines")
		e.Int(res.MatchedLines)
		e.FieldStart("matchedQuantity")
		e.Int(res.MatchedQuantity)
		e.FieldStart("requiredActions")
		encodeRequiredActions(&e, res.RequiredActions)
		if q.Outcome != nil {
			e.FieldStart("outcome")
			encodeOutcome(&e, q.Outcome)
		}
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func encodeOrder(res *order.PlaceOrderResult) []byte {
	o := res.Order

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("storeId")
	e.Str(o.StoreID)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(it.ProductID)
		if it.VariantID != "" {
			e.FieldStart("variantId")
			e.Str(it.VariantID)
		}
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("unitPrice")
		money(&e, it.UnitPrice)
		e.FieldStart("discount")
		money(&e, it.Discount)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("subtotal")
	money(&e, o.Subtotal)
	e.FieldStart("discount")
	money(&e, o.Discount)
	e.FieldStart("total")
	money(&e, o.Total)
	e.FieldStart("freeShipping")
	e.Bool(o.FreeShipping)
	if o.PromotionID != "" {
		e.FieldStart("promotionId")
		e.Str(o.PromotionID)
	}
	if o.CouponCode != "" {
		e.FieldStart("couponCode")
		e.Str(o.CouponCode)
	}
	if res.Message != "" {
		e.FieldStart("message")
		e.Str(res.Message)
	}
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
	return e.Bytes()
}
