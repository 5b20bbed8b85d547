package memory

import (
	"context"
	"sync"

	"github.com/soukmarket/commerce-core/internal/domain/promotion"
)

var _ promotion.SaleRepository = (*SaleRepository)(nil)

// SaleRepository is an in-memory sale store. List preserves creation order,
// which is what fixes the first-active-sale-wins tie-break.
type SaleRepository struct {
	mu    sync.RWMutex
	sales map[string]*promotion.Sale
	order []string
}

// NewSaleRepository returns an empty SaleRepository.
func NewSaleRepository() *SaleRepository {
	return &SaleRepository{sales: make(map[string]*promotion.Sale)}
}

func (r *SaleRepository) Create(_ context.Context, s *promotion.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sales[s.ID] = cloneSale(s)
	r.order = append(r.order, s.ID)
	return nil
}

func (r *SaleRepository) Update(_ context.Context, s *promotion.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sales[s.ID]; !ok {
		return promotion.ErrSaleNotFound
	}
	r.sales[s.ID] = cloneSale(s)
	return nil
}

func (r *SaleRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sales[id]; !ok {
		return promotion.ErrSaleNotFound
	}
	delete(r.sales, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *SaleRepository) GetByID(_ context.Context, id string) (*promotion.Sale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sales[id]
	if !ok {
		return nil, promotion.ErrSaleNotFound
	}
	return cloneSale(s), nil
}

func (r *SaleRepository) ListByVendor(_ context.Context, vendorID string) ([]promotion.Sale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []promotion.Sale
	for _, id := range r.order {
		if s := r.sales[id]; s != nil && s.VendorID == vendorID {
			out = append(out, *cloneSale(s))
		}
	}
	return out, nil
}

func (r *SaleRepository) List(_ context.Context) ([]promotion.Sale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]promotion.Sale, 0, len(r.order))
	for _, id := range r.order {
		if s := r.sales[id]; s != nil {
			out = append(out, *cloneSale(s))
		}
	}
	return out, nil
}

func cloneSale(s *promotion.Sale) *promotion.Sale {
	clone := *s
	clone.ProductIDs = append([]string(nil), s.ProductIDs...)
	return &clone
}
