package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wassimD28/store-go/internal/domain/product"
)

const (
	productColumns = `id, store_id, name, price, category_id, image_url`

	listProductsSQL = `SELECT ` + productColumns + `
		FROM products WHERE store_id = $1 ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + `
		FROM products WHERE store_id = $1 AND id = $2`

	getProductsByIDsSQL = `SELECT ` + productColumns + `
		FROM products WHERE store_id = $1 AND id = ANY($2)`

	upsertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (store_id, id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			category_id = EXCLUDED.category_id,
			image_url = EXCLUDED.image_url`

	upsertCategorySQL = `INSERT INTO categories (id, store_id, name) VALUES ($1, $2, $3)
		ON CONFLICT (store_id, id) DO UPDATE SET name = EXCLUDED.name`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns a store's products ordered by ID.
func (r *ProductRepository) List(ctx context.Context, storeID string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL, storeID)
	if err != nil {
		return nil, errors.Wrapf(err, "list products of store %q", storeID)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product of a store.
func (r *ProductRepository) GetByID(ctx context.Context, storeID, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, storeID, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", id)
	}
	return &p, nil
}

// GetByIDs returns the store's products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, storeID string, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, storeID, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Upsert inserts or updates a product.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := r.pool.Exec(ctx, upsertProductSQL, p.ID, p.StoreID, p.Name, p.Price, p.CategoryID, p.ImageURL)
	if err != nil {
		return errors.Wrapf(err, "upsert product %q", p.ID)
	}
	return nil
}

// UpsertCategory inserts or renames a category.
func (r *ProductRepository) UpsertCategory(ctx context.Context, storeID, id, name string) error {
	if _, err := r.pool.Exec(ctx, upsertCategorySQL, id, storeID, name); err != nil {
		return errors.Wrapf(err, "upsert category %q", id)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.StoreID, &p.Name, &p.Price, &p.CategoryID, &p.ImageURL)
	return p, err
}
