// Package redis caches promotion lookups in Redis.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wassimD28/store-go/internal/domain/promotion"
)

// Client is the subset of redis.Cmdable used by the cache.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

var _ promotion.Repository = (*PromotionCache)(nil)

// PromotionCache is a read-through cache of each store's automatic
// promotions in front of another promotion.Repository.
//
// Only FindAutomatic is cached. Coupon lookups and usage increments always
// reach the underlying store, so usage caps are never enforced from cache.
// Cached lists are re-filtered by validity window on every read; a promotion
// created or activated after the list was cached becomes visible once the
// entry expires or Invalidate is called.
type PromotionCache struct {
	next   promotion.Repository
	client Client
	ttl    time.Duration
	lg     *zap.Logger
}

// NewPromotionCache wraps next with a cache entry per store kept for ttl.
func NewPromotionCache(next promotion.Repository, client Client, ttl time.Duration, lg *zap.Logger) *PromotionCache {
	return &PromotionCache{
		next:   next,
		client: client,
		ttl:    ttl,
		lg:     lg,
	}
}

func automaticKey(storeID string) string {
	return "promotions:automatic:" + storeID
}

// FindAutomatic returns the store's automatic promotions, from cache when
// possible. Cache failures are logged and fall through to the store.
func (c *PromotionCache) FindAutomatic(ctx context.Context, storeID string, now time.Time) ([]promotion.Promotion, error) {
	key := automaticKey(storeID)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		cached, err := decodePromotions(data)
		if err == nil {
			return activeAt(cached, now), nil
		}
		c.lg.Warn("Decode cached promotions", zap.String("store_id", storeID), zap.Error(err))
	case !errors.Is(err, redis.Nil):
		c.lg.Warn("Read promotion cache", zap.String("store_id", storeID), zap.Error(err))
	}

	promos, err := c.next.FindAutomatic(ctx, storeID, now)
	if err != nil {
		return nil, err
	}

	data, err = encodePromotions(promos)
	if err != nil {
		c.lg.Warn("Encode promotions for cache", zap.String("store_id", storeID), zap.Error(err))
		return promos, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.lg.Warn("Write promotion cache", zap.String("store_id", storeID), zap.Error(err))
	}
	return promos, nil
}

// Invalidate drops the cached automatic promotions of a store.
func (c *PromotionCache) Invalidate(ctx context.Context, storeID string) error {
	if err := c.client.Del(ctx, automaticKey(storeID)).Err(); err != nil {
		return errors.Wrapf(err, "invalidate promotions of store %q", storeID)
	}
	return nil
}

func (c *PromotionCache) FindByID(ctx context.Context, storeID, id string) (*promotion.Promotion, error) {
	return c.next.FindByID(ctx, storeID, id)
}

func (c *PromotionCache) FindByCouponCode(ctx context.Context, storeID, code string, now time.Time) (*promotion.Promotion, error) {
	return c.next.FindByCouponCode(ctx, storeID, code, now)
}

func (c *PromotionCache) IncrementUsage(ctx context.Context, id string) (int, error) {
	return c.next.IncrementUsage(ctx, id)
}

func activeAt(promos []promotion.Promotion, now time.Time) []promotion.Promotion {
	out := promos[:0]
	for _, p := range promos {
		if p.ActiveAt(now) {
			out = append(out, p)
		}
	}
	return out
}

// cachedPromotion is the cache representation of a promotion.
type cachedPromotion struct {
	ID                   string          `json:"id"`
	StoreID              string          `json:"store_id"`
	Name                 string          `json:"name,omitempty"`
	Description          string          `json:"description,omitempty"`
	DiscountType         string          `json:"discount_type"`
	DiscountValue        decimal.Decimal `json:"discount_value"`
	BuyQuantity          int             `json:"buy_quantity,omitempty"`
	GetQuantity          int             `json:"get_quantity,omitempty"`
	YProducts            []string        `json:"y_products,omitempty"`
	YCategories          []string        `json:"y_categories,omitempty"`
	SameProductOnly      bool            `json:"same_product_only,omitempty"`
	MinimumPurchase      decimal.Decimal `json:"minimum_purchase"`
	CouponCode           string          `json:"coupon_code,omitempty"`
	ApplicableProducts   []string        `json:"applicable_products,omitempty"`
	ApplicableCategories []string        `json:"applicable_categories,omitempty"`
	StartDate            time.Time       `json:"start_date"`
	EndDate              time.Time       `json:"end_date"`
	IsActive             bool            `json:"is_active"`
	UsageCount           int             `json:"usage_count"`
	MaxUses              int             `json:"max_uses"`
}

func encodePromotions(promos []promotion.Promotion) ([]byte, error) {
	out := make([]cachedPromotion, len(promos))
	for i, p := range promos {
		f := promotion.Fields(p.Discount)
		out[i] = cachedPromotion{
			ID:                   p.ID,
			StoreID:              p.StoreID,
			Name:                 p.Name,
			Description:          p.Description,
			DiscountType:         string(f.Type),
			DiscountValue:        f.Value,
			BuyQuantity:          f.BuyQuantity,
			GetQuantity:          f.GetQuantity,
			YProducts:            f.YProducts,
			YCategories:          f.YCategories,
			SameProductOnly:      f.SameProductOnly,
			MinimumPurchase:      p.MinimumPurchase,
			CouponCode:           p.CouponCode,
			ApplicableProducts:   p.ApplicableProducts,
			ApplicableCategories: p.ApplicableCategories,
			StartDate:            p.StartDate,
			EndDate:              p.EndDate,
			IsActive:             p.IsActive,
			UsageCount:           p.UsageCount,
			MaxUses:              p.MaxUses,
		}
	}
	return json.Marshal(out)
}

func decodePromotions(data []byte) ([]promotion.Promotion, error) {
	var cached []cachedPromotion
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, errors.Wrap(err, "unmarshal")
	}

	out := make([]promotion.Promotion, len(cached))
	for i, c := range cached {
		discount, err := promotion.DiscountFields{
			Type:            promotion.DiscountType(c.DiscountType),
			Value:           c.DiscountValue,
			BuyQuantity:     c.BuyQuantity,
			GetQuantity:     c.GetQuantity,
			YProducts:       c.YProducts,
			YCategories:     c.YCategories,
			SameProductOnly: c.SameProductOnly,
		}.Decode()
		if err != nil {
			return nil, errors.Wrapf(err, "decode promotion %q", c.ID)
		}
		out[i] = promotion.Promotion{
			ID:                   c.ID,
			StoreID:              c.StoreID,
			Name:                 c.Name,
			Description:          c.Description,
			Discount:             discount,
			MinimumPurchase:      c.MinimumPurchase,
			CouponCode:           c.CouponCode,
			ApplicableProducts:   c.ApplicableProducts,
			ApplicableCategories: c.ApplicableCategories,
			StartDate:            c.StartDate,
			EndDate:              c.EndDate,
			IsActive:             c.IsActive,
			UsageCount:           c.UsageCount,
			MaxUses:              c.MaxUses,
		}
	}
	return out, nil
}
