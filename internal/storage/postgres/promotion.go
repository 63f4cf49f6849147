package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wassimD28/store-go/internal/domain/promotion"
)

const (
	promotionColumns = `id, store_id, name, description, discount_type, discount_value,
		minimum_purchase, coupon_code, applicable_products, applicable_categories,
		buy_quantity, get_quantity, y_products, y_categories, same_product_only,
		start_date, end_date, is_active, usage_count, max_uses`

	activeAt = `is_active
		AND (start_date IS NULL OR start_date <= $2)
		AND (end_date IS NULL OR end_date >= $2)`

	getPromotionByIDSQL = `SELECT ` + promotionColumns + ` FROM promotions WHERE id = $1`

	getPromotionByCodeSQL = `SELECT ` + promotionColumns + ` FROM promotions
		WHERE store_id = $1 AND UPPER(coupon_code) = UPPER($3) AND ` + activeAt

	listAutomaticPromotionsSQL = `SELECT ` + promotionColumns + ` FROM promotions
		WHERE store_id = $1 AND coupon_code IS NULL AND ` + activeAt + `
		ORDER BY created_at, id`

	// The cap check and the increment are one statement so concurrent
	// commits cannot overshoot max_uses.
	incrementUsageSQL = `UPDATE promotions SET usage_count = usage_count + 1
		WHERE id = $1 AND (max_uses = 0 OR usage_count < max_uses)
		RETURNING usage_count`

	promotionExistsSQL = `SELECT EXISTS (SELECT 1 FROM promotions WHERE id = $1)`

	upsertPromotionSQL = `INSERT INTO promotions (` + promotionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			minimum_purchase = EXCLUDED.minimum_purchase,
			coupon_code = EXCLUDED.coupon_code,
			applicable_products = EXCLUDED.applicable_products,
			applicable_categories = EXCLUDED.applicable_categories,
			buy_quantity = EXCLUDED.buy_quantity,
			get_quantity = EXCLUDED.get_quantity,
			y_products = EXCLUDED.y_products,
			y_categories = EXCLUDED.y_categories,
			same_product_only = EXCLUDED.same_product_only,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			is_active = EXCLUDED.is_active,
			max_uses = EXCLUDED.max_uses`

	insertCouponPromotionSQL = `INSERT INTO promotions (` + promotionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT DO NOTHING`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// FindByID returns the promotion with the given ID regardless of its state,
// so the caller can tell an expired promotion from a missing one.
func (r *PromotionRepository) FindByID(ctx context.Context, storeID, id string) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, getPromotionByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get promotion %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &promotion.NotFoundError{StoreID: storeID, PromotionID: id, Reason: promotion.ReasonMissing}
		}
		return nil, errors.Wrapf(err, "get promotion %q", id)
	}
	return &p, nil
}

// FindByCouponCode returns the active promotion unlocked by code
// (case-insensitive) whose validity window contains now.
func (r *PromotionRepository) FindByCouponCode(ctx context.Context, storeID, code string, now time.Time) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, getPromotionByCodeSQL, storeID, now, code)
	if err != nil {
		return nil, errors.Wrapf(err, "find promotion by code %q", code)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &promotion.NotFoundError{StoreID: storeID, CouponCode: code, Reason: promotion.ReasonMissing}
		}
		return nil, errors.Wrapf(err, "find promotion by code %q", code)
	}
	return &p, nil
}

// FindAutomatic returns the store's active code-less promotions valid at now.
func (r *PromotionRepository) FindAutomatic(ctx context.Context, storeID string, now time.Time) ([]promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, listAutomaticPromotionsSQL, storeID, now)
	if err != nil {
		return nil, errors.Wrapf(err, "list automatic promotions of store %q", storeID)
	}
	return pgx.CollectRows(rows, scanPromotion)
}

// IncrementUsage atomically increments the usage counter, refusing to go
// past max_uses.
func (r *PromotionRepository) IncrementUsage(ctx context.Context, id string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, incrementUsageSQL, id).Scan(&count)
	if err == nil {
		return count, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, errors.Wrapf(err, "increment usage of promotion %q", id)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, promotionExistsSQL, id).Scan(&exists); err != nil {
		return 0, errors.Wrapf(err, "check promotion %q", id)
	}
	if !exists {
		return 0, &promotion.NotFoundError{PromotionID: id, Reason: promotion.ReasonMissing}
	}
	return 0, errors.Wrapf(promotion.ErrUsageLimitReached, "promotion %q", id)
}

// Upsert inserts or updates a promotion. The usage counter of an existing
// promotion is left untouched.
func (r *PromotionRepository) Upsert(ctx context.Context, p *promotion.Promotion) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, upsertPromotionSQL, promotionArgs(p)...); err != nil {
		return errors.Wrapf(err, "upsert promotion %q", p.ID)
	}
	return nil
}

// InsertCoupons inserts coupon-gated promotions in one batch and returns how
// many were created. Promotions whose ID or code already exists are skipped
// by ON CONFLICT DO NOTHING, so a conflict never aborts the batch.
func (r *PromotionRepository) InsertCoupons(ctx context.Context, promos []promotion.Promotion) (int, error) {
	batch := &pgx.Batch{}
	for i := range promos {
		p := &promos[i]
		if p.CouponCode == "" {
			return 0, &promotion.ValidationError{PromotionID: p.ID, Reason: "coupon code is required"}
		}
		if err := p.Validate(); err != nil {
			return 0, err
		}
		batch.Queue(insertCouponPromotionSQL, promotionArgs(p)...)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	inserted := 0
	for i := range promos {
		tag, err := results.Exec()
		if err != nil {
			return inserted, errors.Wrapf(err, "insert promotion %q", promos[i].ID)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func promotionArgs(p *promotion.Promotion) []any {
	f := promotion.Fields(p.Discount)
	return []any{
		p.ID, p.StoreID, p.Name, p.Description, string(f.Type), f.Value,
		p.MinimumPurchase, nullString(p.CouponCode), orEmpty(p.ApplicableProducts), orEmpty(p.ApplicableCategories),
		f.BuyQuantity, f.GetQuantity, orEmpty(f.YProducts), orEmpty(f.YCategories), f.SameProductOnly,
		nullTime(p.StartDate), nullTime(p.EndDate), p.IsActive, p.UsageCount, p.MaxUses,
	}
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p          promotion.Promotion
		f          promotion.DiscountFields
		typ        string
		couponCode *string
		start, end *time.Time
		minimum    decimal.Decimal
	)
	if err := row.Scan(
		&p.ID, &p.StoreID, &p.Name, &p.Description, &typ, &f.Value,
		&minimum, &couponCode, &p.ApplicableProducts, &p.ApplicableCategories,
		&f.BuyQuantity, &f.GetQuantity, &f.YProducts, &f.YCategories, &f.SameProductOnly,
		&start, &end, &p.IsActive, &p.UsageCount, &p.MaxUses,
	); err != nil {
		return p, err
	}

	f.Type = promotion.DiscountType(typ)
	discount, err := f.Decode()
	if err != nil {
		return p, errors.Wrapf(err, "decode discount of promotion %q", p.ID)
	}
	p.Discount = discount
	p.MinimumPurchase = minimum
	if couponCode != nil {
		p.CouponCode = *couponCode
	}
	if start != nil {
		p.StartDate = *start
	}
	if end != nil {
		p.EndDate = *end
	}
	return p, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// orEmpty keeps NOT NULL array columns from receiving NULL.
func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
