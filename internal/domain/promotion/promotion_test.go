package promotion

import (
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wassimD28/store-go/internal/domain/product"
)

func TestDiscountFields_Decode(t *testing.T) {
	tests := []struct {
		name     string
		fields   DiscountFields
		want     Discount
		wantKind Kind
	}{
		{
			name:   "percentage",
			fields: DiscountFields{Type: TypePercentage, Value: d("15")},
			want:   Percentage{Value: d("15")},
		},
		{
			name:   "fixed amount",
			fields: DiscountFields{Type: TypeFixedAmount, Value: d("7.50")},
			want:   FixedAmount{Amount: d("7.50")},
		},
		{
			name:   "free shipping ignores value",
			fields: DiscountFields{Type: TypeFreeShipping, Value: d("3")},
			want:   FreeShipping{},
		},
		{
			name: "buy x get y",
			fields: DiscountFields{
				Type:        TypeBuyXGetY,
				Value:       d("100"),
				BuyQuantity: 2,
				GetQuantity: 1,
				YCategories: []string{"hats"},
			},
			want: BuyXGetY{BuyQuantity: 2, GetQuantity: 1, Value: d("100"), YCategories: []string{"hats"}},
		},
		{
			name:     "buy x get y without quantities",
			fields:   DiscountFields{Type: TypeBuyXGetY, Value: d("100")},
			wantKind: KindValidation,
		},
		{
			name:     "negative fixed amount",
			fields:   DiscountFields{Type: TypeFixedAmount, Value: d("-1")},
			wantKind: KindValidation,
		},
		{
			name:     "percentage over hundred",
			fields:   DiscountFields{Type: TypePercentage, Value: d("101")},
			wantKind: KindValidation,
		},
		{
			name:     "unknown type",
			fields:   DiscountFields{Type: "bundle"},
			wantKind: KindUnsupportedType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fields.Decode()
			if tt.want == nil {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.fields.Type != TypeFreeShipping {
				assert.Equal(t, tt.fields, Fields(got))
			}
		})
	}
}

func TestPromotion_ActiveAt(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC)
	p := &Promotion{IsActive: true, StartDate: start, EndDate: end}

	assert.True(t, p.ActiveAt(start), "start is inclusive")
	assert.True(t, p.ActiveAt(end), "end is inclusive")
	assert.False(t, p.ActiveAt(start.Add(-time.Second)))
	assert.False(t, p.ActiveAt(end.Add(time.Second)))

	open := &Promotion{IsActive: true}
	assert.True(t, open.ActiveAt(time.Time{}.Add(time.Hour)))

	p.IsActive = false
	assert.False(t, p.ActiveAt(start.Add(time.Hour)))
}

func TestPromotion_MatchesCode(t *testing.T) {
	p := &Promotion{CouponCode: "SUMMER25"}
	assert.True(t, p.MatchesCode("summer25"))
	assert.True(t, p.MatchesCode(" Summer25 "))
	assert.False(t, p.MatchesCode("SUMMER"))
	assert.False(t, (&Promotion{}).MatchesCode(""))
	assert.False(t, p.Automatic())
}

func TestPromotion_Validate(t *testing.T) {
	valid := Promotion{
		ID:        "p",
		StoreID:   "s",
		Discount:  Percentage{Value: d("10")},
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(p *Promotion)
	}{
		{"missing store", func(p *Promotion) { p.StoreID = "" }},
		{"missing discount", func(p *Promotion) { p.Discount = nil }},
		{"negative minimum", func(p *Promotion) { p.MinimumPurchase = d("-5") }},
		{"negative max uses", func(p *Promotion) { p.MaxUses = -1 }},
		{"end before start", func(p *Promotion) { p.EndDate = p.StartDate.Add(-time.Hour) }},
		{"bad discount", func(p *Promotion) { p.Discount = Percentage{Value: d("200")} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindInternal},
		{errors.New("boom"), KindInternal},
		{&ValidationError{Reason: "x"}, KindValidation},
		{errors.Wrap(&NotFoundError{PromotionID: "p"}, "resolve"), KindNotFound},
		{&IneligibleError{}, KindIneligible},
		{&UnsupportedTypeError{Type: "x"}, KindUnsupportedType},
		{errors.Wrap(ErrUsageLimitReached, "p"), KindUsageLimit},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
}

func TestResolveLines_UnknownProduct(t *testing.T) {
	snap := product.NewSnapshot([]product.Product{{ID: "a", Price: d("1")}})

	_, err := ResolveLines([]CartItem{{ProductID: "a", Quantity: 1}, {ProductID: "b", Quantity: 1}}, snap)
	require.ErrorIs(t, err, product.ErrNotFound)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestNotFoundError_Message(t *testing.T) {
	assert.Equal(t, `coupon "X": expired`, (&NotFoundError{CouponCode: "X", Reason: ReasonExpired}).Error())
	assert.Equal(t, "promotion p: not found", (&NotFoundError{PromotionID: "p"}).Error())
}
