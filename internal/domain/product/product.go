package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist in the store.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item a store sells.
type Product struct {
	ID         string
	StoreID    string
	Name       string
	Price      decimal.Decimal
	CategoryID string
	ImageURL   string
}

// Repository defines read operations for a store's catalog.
type Repository interface {
	List(ctx context.Context, storeID string) ([]Product, error)
	GetByID(ctx context.Context, storeID, id string) (*Product, error)
	GetByIDs(ctx context.Context, storeID string, ids []string) ([]Product, error)
}

// Snapshot is an immutable view of the catalog taken once per request, so
// that every calculation in that request sees the same prices and categories.
type Snapshot struct {
	byID map[string]Product
}

// NewSnapshot indexes products by ID.
func NewSnapshot(products []Product) Snapshot {
	byID := make(map[string]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return Snapshot{byID: byID}
}

// Get returns the product with the given ID.
func (s Snapshot) Get(id string) (Product, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// Len returns the number of products in the snapshot.
func (s Snapshot) Len() int { return len(s.byID) }

// Load fetches every distinct product referenced by ids in a single batch.
func Load(ctx context.Context, repo Repository, storeID string, ids []string) (Snapshot, error) {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return NewSnapshot(nil), nil
	}

	products, err := repo.GetByIDs(ctx, storeID, unique)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "get products")
	}
	return NewSnapshot(products), nil
}
