package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wassimD28/store-go/internal/domain/order"
)

const (
	orderColumns = `id, store_id, items, subtotal, discount, total, free_shipping,
		promotion_id, coupon_code, idempotency_key, created_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	getOrderByIdempotencyKeySQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE store_id = $1 AND idempotency_key = $2`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The order items are serialized to JSON for
// storage in the JSONB column. A second order with the same store and
// idempotency key fails with order.ErrDuplicate.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.StoreID, itemsJSON, o.Subtotal, o.Discount, o.Total, o.FreeShipping,
		nullString(o.PromotionID), o.CouponCode, nullString(o.IdempotencyKey), o.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(order.ErrDuplicate, "order %q", o.ID)
		}
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

// FindByIdempotencyKey returns the store's order placed with key.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, storeID, key string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIdempotencyKeySQL, storeID, key)
	if err != nil {
		return nil, errors.Wrap(err, "find order by idempotency key")
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "find order by idempotency key")
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                    order.Order
		items                []byte
		promotionID, idemKey *string
		createdAt            time.Time
	)
	if err := row.Scan(
		&o.ID, &o.StoreID, &items, &o.Subtotal, &o.Discount, &o.Total, &o.FreeShipping,
		&promotionID, &o.CouponCode, &idemKey, &createdAt,
	); err != nil {
		return o, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, errors.Wrapf(err, "unmarshal items of order %q", o.ID)
	}
	if promotionID != nil {
		o.PromotionID = *promotionID
	}
	if idemKey != nil {
		o.IdempotencyKey = *idemKey
	}
	o.CreatedAt = createdAt.UTC()
	return o, nil
}
