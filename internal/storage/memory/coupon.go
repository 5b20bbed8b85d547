// Package memory provides in-memory repository implementations. They back
// unit tests and single-process deployments; the postgres package is the
// durable counterpart.
package memory

import (
	"context"
	"sync"

	"github.com/soukmarket/commerce-core/internal/domain/promotion"
)

var _ promotion.CouponRepository = (*CouponRepository)(nil)

// CouponRepository is an in-memory coupon store with atomic redemption
// counters.
type CouponRepository struct {
	mu      sync.RWMutex
	coupons map[string]*promotion.Coupon
	uses    map[string]map[string]int
	order   []string
}

// NewCouponRepository returns an empty CouponRepository.
func NewCouponRepository() *CouponRepository {
	return &CouponRepository{
		coupons: make(map[string]*promotion.Coupon),
		uses:    make(map[string]map[string]int),
	}
}

func (r *CouponRepository) Create(_ context.Context, c *promotion.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := cloneCoupon(c)
	r.coupons[c.ID] = clone
	r.order = append(r.order, c.ID)
	return nil
}

func (r *CouponRepository) Update(_ context.Context, c *promotion.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.coupons[c.ID]; !ok {
		return promotion.ErrCouponNotFound
	}
	r.coupons[c.ID] = cloneCoupon(c)
	return nil
}

func (r *CouponRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.coupons[id]; !ok {
		return promotion.ErrCouponNotFound
	}
	delete(r.coupons, id)
	delete(r.uses, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *CouponRepository) GetByID(_ context.Context, id string) (*promotion.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.coupons[id]
	if !ok {
		return nil, promotion.ErrCouponNotFound
	}
	return cloneCoupon(c), nil
}

func (r *CouponRepository) FindByCode(_ context.Context, code string) (*promotion.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	code = promotion.NormalizeCode(code)
	for _, c := range r.coupons {
		if c.Code == code {
			return cloneCoupon(c), nil
		}
	}
	return nil, promotion.ErrCouponNotFound
}

func (r *CouponRepository) ListByVendor(_ context.Context, vendorID string) ([]promotion.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []promotion.Coupon
	for _, id := range r.order {
		if c := r.coupons[id]; c != nil && c.VendorID == vendorID {
			out = append(out, *cloneCoupon(c))
		}
	}
	return out, nil
}

func (r *CouponRepository) List(_ context.Context) ([]promotion.Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]promotion.Coupon, 0, len(r.order))
	for _, id := range r.order {
		if c := r.coupons[id]; c != nil {
			out = append(out, *cloneCoupon(c))
		}
	}
	return out, nil
}

func (r *CouponRepository) CustomerUses(_ context.Context, couponID, customerID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.uses[couponID][customerID], nil
}

// RegisterUse increments both counters under the write lock, re-checking
// the limits first so concurrent redemptions cannot overshoot.
func (r *CouponRepository) RegisterUse(_ context.Context, couponID, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.coupons[couponID]
	if !ok {
		return promotion.ErrCouponNotFound
	}
	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return promotion.ErrUsageLimitReached
	}
	if c.CustomerLimit > 0 && r.uses[couponID][customerID] >= c.CustomerLimit {
		return promotion.ErrCustomerLimitReached
	}

	c.UsageCount++
	if r.uses[couponID] == nil {
		r.uses[couponID] = make(map[string]int)
	}
	r.uses[couponID][customerID]++
	return nil
}

// ReleaseUse decrements both counters, flooring at zero. Releasing a
// redemption that was never registered is a no-op.
func (r *CouponRepository) ReleaseUse(_ context.Context, couponID, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.coupons[couponID]
	if !ok {
		return promotion.ErrCouponNotFound
	}
	if c.UsageCount > 0 {
		c.UsageCount--
	}
	if uses := r.uses[couponID][customerID]; uses > 0 {
		r.uses[couponID][customerID] = uses - 1
	}
	return nil
}

func cloneCoupon(c *promotion.Coupon) *promotion.Coupon {
	clone := *c
	clone.ProductIDs = append([]string(nil), c.ProductIDs...)
	clone.CategoryIDs = append([]string(nil), c.CategoryIDs...)
	return &clone
}
