package promotion

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wassimD28/store-go/internal/domain/product"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type mockCatalog struct {
	products []product.Product
	err      error
	calls    int
}

func (m *mockCatalog) List(_ context.Context, storeID string) ([]product.Product, error) {
	var out []product.Product
	for _, p := range m.products {
		if p.StoreID == storeID {
			out = append(out, p)
		}
	}
	return out, m.err
}

func (m *mockCatalog) GetByID(_ context.Context, storeID, id string) (*product.Product, error) {
	for _, p := range m.products {
		if p.StoreID == storeID && p.ID == id {
			return &p, nil
		}
	}
	return nil, product.ErrNotFound
}

func (m *mockCatalog) GetByIDs(_ context.Context, storeID string, ids []string) ([]product.Product, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []product.Product
	for _, id := range ids {
		for _, p := range m.products {
			if p.StoreID == storeID && p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

type mockPromotions struct {
	mu         sync.Mutex
	promotions []Promotion
	incErr     error
	increments []string
}

func (m *mockPromotions) FindByID(_ context.Context, storeID, id string) (*Promotion, error) {
	for _, p := range m.promotions {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, &NotFoundError{StoreID: storeID, PromotionID: id, Reason: ReasonMissing}
}

func (m *mockPromotions) FindByCouponCode(_ context.Context, storeID, code string, now time.Time) (*Promotion, error) {
	for _, p := range m.promotions {
		if p.StoreID == storeID && p.MatchesCode(code) && p.ActiveAt(now) {
			return &p, nil
		}
	}
	return nil, &NotFoundError{StoreID: storeID, CouponCode: code, Reason: ReasonMissing}
}

func (m *mockPromotions) FindAutomatic(_ context.Context, storeID string, now time.Time) ([]Promotion, error) {
	var out []Promotion
	for _, p := range m.promotions {
		if p.StoreID == storeID && p.Automatic() && p.ActiveAt(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPromotions) IncrementUsage(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incErr != nil {
		return 0, m.incErr
	}
	m.increments = append(m.increments, id)
	for i := range m.promotions {
		if m.promotions[i].ID == id {
			m.promotions[i].UsageCount++
			return m.promotions[i].UsageCount, nil
		}
	}
	return 0, &NotFoundError{PromotionID: id}
}

type mockPublisher struct {
	events []Applied
	err    error
}

func (m *mockPublisher) PromotionApplied(_ context.Context, e Applied) error {
	m.events = append(m.events, e)
	return m.err
}

func testCatalog() *mockCatalog {
	return &mockCatalog{products: []product.Product{
		{ID: "tee", StoreID: "s1", Name: "Tee", Price: d("20"), CategoryID: "shirts"},
		{ID: "cap", StoreID: "s1", Name: "Cap", Price: d("50"), CategoryID: "hats"},
		{ID: "sock", StoreID: "s1", Name: "Sock", Price: d("10"), CategoryID: "socks"},
	}}
}

func testPromotions() *mockPromotions {
	return &mockPromotions{promotions: []Promotion{
		{
			ID:       "tenoff",
			StoreID:  "s1",
			Name:     "Ten percent",
			Discount: Percentage{Value: d("10")},
			IsActive: true,
		},
		{
			ID:              "big-spender",
			StoreID:         "s1",
			Discount:        FixedAmount{Amount: d("25")},
			MinimumPurchase: d("100"),
			IsActive:        true,
		},
		{
			ID:         "save5",
			StoreID:    "s1",
			Discount:   FixedAmount{Amount: d("5")},
			CouponCode: "SAVE5",
			IsActive:   true,
			StartDate:  testNow.Add(-24 * time.Hour),
			EndDate:    testNow.Add(24 * time.Hour),
		},
		{
			ID:         "old",
			StoreID:    "s1",
			Discount:   FixedAmount{Amount: d("5")},
			CouponCode: "OLD",
			IsActive:   true,
			EndDate:    testNow.Add(-time.Hour),
		},
		{
			ID:        "later",
			StoreID:   "s1",
			Discount:  Percentage{Value: d("50")},
			IsActive:  true,
			StartDate: testNow.Add(time.Hour),
		},
		{
			ID:       "off",
			StoreID:  "s1",
			Discount: Percentage{Value: d("50")},
		},
		{
			ID:                   "socks3for2",
			StoreID:              "s1",
			Discount:             BuyXGetY{BuyQuantity: 2, GetQuantity: 1, Value: d("100")},
			ApplicableCategories: []string{"socks"},
			IsActive:             true,
		},
		{
			ID:       "elsewhere",
			StoreID:  "s2",
			Discount: Percentage{Value: d("90")},
			IsActive: true,
		},
	}}
}

func newTestService(t *testing.T, promos *mockPromotions, catalog *mockCatalog, opts ...Option) *Service {
	t.Helper()
	s, err := NewService(promos, catalog, zap.NewNop(), opts...)
	require.NoError(t, err)
	s.now = func() time.Time { return testNow }
	return s
}

func TestService_Apply(t *testing.T) {
	tests := []struct {
		name         string
		req          ApplyRequest
		wantKind     Kind
		wantReason   string
		wantDiscount string
		wantTotal    string
	}{
		{
			name: "automatic promotion by id",
			req: ApplyRequest{
				StoreID:     "s1",
				PromotionID: "tenoff",
				Cart:        []CartItem{{ProductID: "tee", Quantity: 3}},
			},
			wantDiscount: "6",
			wantTotal:    "54",
		},
		{
			name: "coupon code is case-insensitive",
			req: ApplyRequest{
				StoreID:    "s1",
				CouponCode: "save5",
				Cart:       []CartItem{{ProductID: "cap", Quantity: 1}},
			},
			wantDiscount: "5",
			wantTotal:    "45",
		},
		{
			name: "coupon promotion by id with its code",
			req: ApplyRequest{
				StoreID:     "s1",
				PromotionID: "save5",
				CouponCode:  "SAVE5",
				Cart:        []CartItem{{ProductID: "cap", Quantity: 1}},
			},
			wantDiscount: "5",
			wantTotal:    "45",
		},
		{
			name: "cart price overrides catalog price",
			req: ApplyRequest{
				StoreID:     "s1",
				PromotionID: "tenoff",
				Cart: []CartItem{{
					ProductID: "tee",
					Quantity:  1,
					Price:     decimal.NewNullDecimal(d("30")),
				}},
			},
			wantDiscount: "3",
			wantTotal:    "27",
		},
		{
			name: "buy two socks get one free",
			req: ApplyRequest{
				StoreID:     "s1",
				PromotionID: "socks3for2",
				Cart: []CartItem{
					{ProductID: "tee", Quantity: 1},
					{ProductID: "sock", Quantity: 3},
				},
			},
			wantDiscount: "10",
			wantTotal:    "40",
		},
		{
			name: "coupon promotion by id without code",
			req: ApplyRequest{
				StoreID:     "s1",
				PromotionID: "save5",
				Cart:        []CartItem{{ProductID: "cap", Quantity: 1}},
			},
			wantKind:   KindNotFound,
			wantReason: ReasonCodeRequired,
		},
		{
			name: "wrong code for promotion id",
			req: ApplyRequest{
				StoreID:     "s1",
				PromotionID: "save5",
				CouponCode:  "OTHER",
				Cart:        []CartItem{{ProductID: "cap", Quantity: 1}},
			},
			wantKind:   KindNotFound,
			wantReason: ReasonCodeMismatch,
		},
		{
			name: "unknown coupon",
			req: ApplyRequest{
				StoreID:    "s1",
				CouponCode: "NOPE",
				Cart:       []CartItem{{ProductID: "cap", Quantity: 1}},
			},
			wantKind:   KindNotFound,
			wantReason: ReasonMissing,
		},
		{
			name: "expired promotion by id",
			req: ApplyRequest{
				StoreID:     "s1",
				PromotionID: "old",
				CouponCode:  "OLD",
				Cart:        []CartItem{{ProductID: "cap", Quantity: 1}},
			},
			wantKind:   KindNotFound,
			wantReason: ReasonExpired,
		},
		{
			name: "promotion not started",
			req: ApplyRequest{
				StoreID:     "s1",
				PromotionID: "later",
				Cart:        []CartItem{{ProductID: "cap", Quantity: 1}},
			},
			wantKind:   KindNotFound,
			wantReason: ReasonNotStarted,
		},
		{
			name: "inactive promotion",
			req: ApplyRequest{
				StoreID:     "s1",
				PromotionID: "off",
				Cart:        []CartItem{{ProductID: "cap", Quantity: 1}},
			},
			wantKind:   KindNotFound,
			wantReason: ReasonInactive,
		},
		{
			name: "promotion of another store",
			req: ApplyRequest{
				StoreID:     "s1",
				PromotionID: "elsewhere",
				Cart:        []CartItem{{ProductID: "cap", Quantity: 1}},
			},
			wantKind:   KindNotFound,
			wantReason: ReasonWrongStore,
		},
		{
			name: "minimum purchase not met",
			req: ApplyRequest{
				StoreID:     "s1",
				PromotionID: "big-spender",
				Cart:        []CartItem{{ProductID: "cap", Quantity: 1}},
			},
			wantKind: KindIneligible,
		},
		{
			name: "no promotion requested",
			req: ApplyRequest{
				StoreID: "s1",
				Cart:    []CartItem{{ProductID: "cap", Quantity: 1}},
			},
			wantKind: KindValidation,
		},
		{
			name:     "empty cart",
			req:      ApplyRequest{StoreID: "s1", PromotionID: "tenoff"},
			wantKind: KindValidation,
		},
		{
			name: "unknown product",
			req: ApplyRequest{
				StoreID:     "s1",
				PromotionID: "tenoff",
				Cart:        []CartItem{{ProductID: "ghost", Quantity: 1}},
			},
			wantKind: KindValidation,
		},
		{
			name: "zero quantity",
			req: ApplyRequest{
				StoreID:     "s1",
				PromotionID: "tenoff",
				Cart:        []CartItem{{ProductID: "tee", Quantity: 0}},
			},
			wantKind: KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			promos := testPromotions()
			pub := &mockPublisher{}
			s := newTestService(t, promos, testCatalog(), WithPublisher(pub))

			out, err := s.Apply(context.Background(), tt.req)
			if tt.wantDiscount == "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, KindOf(err), "error: %v", err)
				if tt.wantReason != "" {
					var nf *NotFoundError
					require.ErrorAs(t, err, &nf)
					assert.Equal(t, tt.wantReason, nf.Reason)
				}
				assert.Empty(t, promos.increments, "usage must not change on rejection")
				assert.Empty(t, pub.events)
				return
			}

			require.NoError(t, err)
			assert.True(t, d(tt.wantDiscount).Equal(out.Discount), "discount: got %s", out.Discount)
			assert.True(t, d(tt.wantTotal).Equal(out.Total), "total: got %s", out.Total)
			require.Len(t, promos.increments, 1)
			assert.Equal(t, out.Promotion.ID, promos.increments[0])
			assert.Equal(t, 1, out.Promotion.UsageCount)
			require.Len(t, pub.events, 1)
			assert.Equal(t, out.Promotion.ID, pub.events[0].PromotionID)
			assert.True(t, out.Discount.Equal(pub.events[0].Discount))
			assert.Equal(t, testNow, pub.events[0].AppliedAt)
		})
	}
}

func TestService_ApplyIneligibleActions(t *testing.T) {
	promos := testPromotions()
	s := newTestService(t, promos, testCatalog())

	_, err := s.Apply(context.Background(), ApplyRequest{
		StoreID:     "s1",
		PromotionID: "big-spender",
		Cart:        []CartItem{{ProductID: "cap", Quantity: 1}},
	})

	var inel *IneligibleError
	require.ErrorAs(t, err, &inel)
	require.Len(t, inel.Result.RequiredActions, 1)
	act := inel.Result.RequiredActions[0]
	assert.Equal(t, ActionAddMoreItems, act.Type)
	assert.True(t, d("50").Equal(act.AmountNeeded))
	assert.Contains(t, err.Error(), "add 50.00 more")
}

func TestService_ApplyUsageLimit(t *testing.T) {
	promos := testPromotions()
	promos.incErr = errors.Wrap(ErrUsageLimitReached, "promotion tenoff")
	pub := &mockPublisher{}
	s := newTestService(t, promos, testCatalog(), WithPublisher(pub))

	_, err := s.Apply(context.Background(), ApplyRequest{
		StoreID:     "s1",
		PromotionID: "tenoff",
		Cart:        []CartItem{{ProductID: "tee", Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrUsageLimitReached)
	assert.Equal(t, KindUsageLimit, KindOf(err))
	assert.Empty(t, pub.events)
}

func TestService_ApplyIncrementFailure(t *testing.T) {
	promos := testPromotions()
	promos.incErr = errors.New("connection reset")
	s := newTestService(t, promos, testCatalog())

	_, err := s.Apply(context.Background(), ApplyRequest{
		StoreID:     "s1",
		PromotionID: "tenoff",
		Cart:        []CartItem{{ProductID: "tee", Quantity: 1}},
	})
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.True(t, strings.Contains(err.Error(), "increment usage"))
}

func TestService_ApplyPublishFailureIsNotFatal(t *testing.T) {
	promos := testPromotions()
	pub := &mockPublisher{err: errors.New("broker down")}
	s := newTestService(t, promos, testCatalog(), WithPublisher(pub))

	out, err := s.Apply(context.Background(), ApplyRequest{
		StoreID:     "s1",
		PromotionID: "tenoff",
		Cart:        []CartItem{{ProductID: "tee", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.True(t, d("2").Equal(out.Discount))
	assert.Len(t, promos.increments, 1)
}

// blockingPublisher waits until the publish context is done, like a writer
// retrying against an unreachable broker.
type blockingPublisher struct {
	hadDeadline bool
}

func (b *blockingPublisher) PromotionApplied(ctx context.Context, _ Applied) error {
	_, b.hadDeadline = ctx.Deadline()
	<-ctx.Done()
	return ctx.Err()
}

func TestService_ApplyPublishIsBounded(t *testing.T) {
	promos := testPromotions()
	pub := &blockingPublisher{}
	s := newTestService(t, promos, testCatalog(),
		WithPublisher(pub),
		WithPublishTimeout(20*time.Millisecond),
	)

	start := time.Now()
	out, err := s.Apply(context.Background(), ApplyRequest{
		StoreID:     "s1",
		PromotionID: "tenoff",
		Cart:        []CartItem{{ProductID: "tee", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.True(t, pub.hadDeadline)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, d("2").Equal(out.Discount))
	assert.Len(t, promos.increments, 1)
}

func TestService_ApplyCatalogFailure(t *testing.T) {
	catalog := testCatalog()
	catalog.err = errors.New("db down")
	s := newTestService(t, testPromotions(), catalog)

	_, err := s.Apply(context.Background(), ApplyRequest{
		StoreID:     "s1",
		PromotionID: "tenoff",
		Cart:        []CartItem{{ProductID: "tee", Quantity: 1}},
	})
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestService_Lines_SingleSnapshot(t *testing.T) {
	catalog := testCatalog()
	s := newTestService(t, testPromotions(), catalog)

	lines, err := s.Lines(context.Background(), "s1", []CartItem{
		{ProductID: "tee", Quantity: 1},
		{ProductID: "sock", Quantity: 2},
		{ProductID: "tee", VariantID: "xl", Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.calls)
	require.Len(t, lines, 3)
	for i, l := range lines {
		assert.Equal(t, i, l.Index)
	}
	assert.Equal(t, "socks", lines[1].CategoryID)
	assert.Equal(t, "xl", lines[2].VariantID)
}

func TestService_Preview(t *testing.T) {
	promos := testPromotions()
	s := newTestService(t, promos, testCatalog(), WithPreviewConcurrency(2))

	quotes, err := s.Preview(context.Background(), PreviewRequest{
		StoreID:    "s1",
		CouponCode: "SAVE5",
		Cart: []CartItem{
			{ProductID: "cap", Quantity: 1},
			{ProductID: "sock", Quantity: 1},
		},
	})
	require.NoError(t, err)

	var ids []string
	for _, q := range quotes {
		ids = append(ids, q.Eligibility.Promotion.ID)
	}
	// tenoff: 6.00, save5: 5.00, then ineligible big-spender and socks3for2.
	require.Equal(t, []string{"tenoff", "save5", "big-spender", "socks3for2"}, ids)

	assert.True(t, d("6").Equal(quotes[0].Outcome.Discount))
	assert.True(t, d("5").Equal(quotes[1].Outcome.Discount))
	assert.Nil(t, quotes[2].Outcome)
	assert.True(t, d("40").Equal(quotes[2].Eligibility.RequiredActions[0].AmountNeeded))
	assert.Nil(t, quotes[3].Outcome)
	assert.Equal(t, ActionAddSpecificItems, quotes[3].Eligibility.RequiredActions[0].Type)

	assert.Empty(t, promos.increments, "preview must not commit")
}

func TestService_PreviewDropsIrrelevant(t *testing.T) {
	promos := &mockPromotions{promotions: []Promotion{
		{
			ID:                   "shoes",
			StoreID:              "s1",
			Discount:             Percentage{Value: d("20")},
			ApplicableCategories: []string{"shoes"},
			IsActive:             true,
		},
	}}
	s := newTestService(t, promos, testCatalog())

	quotes, err := s.Preview(context.Background(), PreviewRequest{
		StoreID: "s1",
		Cart:    []CartItem{{ProductID: "tee", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Empty(t, quotes)
}

func TestService_PreviewUnknownCoupon(t *testing.T) {
	s := newTestService(t, testPromotions(), testCatalog())

	_, err := s.Preview(context.Background(), PreviewRequest{
		StoreID:    "s1",
		CouponCode: "OLD",
		Cart:       []CartItem{{ProductID: "tee", Quantity: 1}},
	})
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestService_PreviewMalformedPromotion(t *testing.T) {
	promos := &mockPromotions{promotions: []Promotion{
		{ID: "broken", StoreID: "s1", Discount: bogus{}, IsActive: true},
	}}
	s := newTestService(t, promos, testCatalog())

	_, err := s.Preview(context.Background(), PreviewRequest{
		StoreID: "s1",
		Cart:    []CartItem{{ProductID: "tee", Quantity: 1}},
	})
	assert.Equal(t, KindUnsupportedType, KindOf(err))
}
