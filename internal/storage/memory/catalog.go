package memory

import (
	"context"
	"sync"

	"github.com/soukmarket/commerce-core/internal/domain/catalog"
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository is an in-memory product read model, populated through
// Put. It stands in for the external catalog service in tests and local
// runs.
type CatalogRepository struct {
	mu       sync.RWMutex
	products map[string]catalog.Product
	order    []string
}

// NewCatalogRepository returns an empty CatalogRepository.
func NewCatalogRepository(products ...catalog.Product) *CatalogRepository {
	r := &CatalogRepository{products: make(map[string]catalog.Product)}
	for _, p := range products {
		r.Put(p)
	}
	return r
}

// Put inserts or replaces a product.
func (r *CatalogRepository) Put(p catalog.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[p.ID]; !ok {
		r.order = append(r.order, p.ID)
	}
	r.products[p.ID] = p
}

func (r *CatalogRepository) List(_ context.Context) ([]catalog.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]catalog.Product, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.products[id])
	}
	return out, nil
}

func (r *CatalogRepository) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

// GetByIDs returns the products that exist among the requested ids. Missing
// ids are skipped, not errors: callers detect absence themselves.
func (r *CatalogRepository) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]catalog.Product, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := r.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
