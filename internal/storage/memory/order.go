package memory

import (
	"context"
	"sync"
	"time"

	"github.com/soukmarket/commerce-core/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository is an in-memory order store with a compare-and-set status
// update.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*order.Order
}

// NewOrderRepository returns an empty OrderRepository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]*order.Order)}
}

func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *OrderRepository) GetByID(_ context.Context, id string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *OrderRepository) ListByBuyer(_ context.Context, buyerID string) ([]order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []order.Order
	for _, o := range r.orders {
		if o.BuyerID == buyerID {
			out = append(out, *cloneOrder(o))
		}
	}
	return out, nil
}

func (r *OrderRepository) UpdateStatus(_ context.Context, id string, expected, next order.Status, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != expected {
		return order.ErrStatusConflict
	}
	o.Status = next
	o.UpdatedAt = at
	return nil
}

func (r *OrderRepository) UpdatePaymentStatus(_ context.Context, id string, ps order.PaymentStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.PaymentStatus = ps
	o.UpdatedAt = at
	return nil
}

func cloneOrder(o *order.Order) *order.Order {
	clone := *o
	clone.Items = append([]order.OrderItem(nil), o.Items...)
	return &clone
}
