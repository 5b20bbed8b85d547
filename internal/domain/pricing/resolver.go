package pricing

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/soukmarket/commerce-core/internal/domain/promotion"
)

// Coupon validation errors. Each check in ValidateCoupon short-circuits with
// one of these (or with the promotion package's usage-limit errors).
var (
	ErrUnknownCode    = errors.New("unknown coupon code")
	ErrVendorMismatch = errors.New("coupon belongs to a different vendor")
	ErrNotStarted     = errors.New("coupon is not active yet")
	ErrExpired        = errors.New("coupon has expired")
	ErrCouponDisabled = errors.New("coupon is disabled")
	ErrMinOrderNotMet = errors.New("order total below coupon minimum")
	ErrScopeMismatch  = errors.New("coupon does not apply to these items")
)

var hundred = decimal.NewFromInt(100)

// SalePricing is the effective price of a product after the first matching
// active sale, if any, has been applied.
type SalePricing struct {
	ListPrice decimal.Decimal
	SalePrice decimal.Decimal
	Discount  decimal.Decimal
	// Sale is the applied sale, nil when the product is sold at list price.
	Sale *promotion.Sale
}

// CouponRequest carries everything needed to validate a coupon against an
// order being assembled. VendorIDs holds every vendor represented in the
// order; a coupon is only applicable when its owning vendor is among them.
type CouponRequest struct {
	Code        string
	VendorIDs   []string
	CustomerID  string
	OrderTotal  decimal.Decimal
	ProductIDs  []string
	CategoryIDs []string
}

// CouponDiscount is the outcome of a successful coupon validation.
type CouponDiscount struct {
	Coupon *promotion.Coupon
	Amount decimal.Decimal
}

// SaleSource yields the sales currently active, in creation order.
type SaleSource interface {
	ActiveSales(ctx context.Context) ([]promotion.Sale, error)
}

// Resolver performs the pure discount computations: effective sale price of
// a product and coupon validation/application against an order.
type Resolver struct {
	coupons promotion.CouponRepository
	sales   SaleSource
	now     func() time.Time
}

// NewResolver creates a Resolver backed by the given coupon repository and
// sale source.
func NewResolver(coupons promotion.CouponRepository, sales SaleSource) *Resolver {
	return &Resolver{coupons: coupons, sales: sales, now: time.Now}
}

// SalePrice resolves the effective price for a product with the given list
// price. Only one sale may apply to a product: the first active sale whose
// product set contains the product wins. Fixed discounts are capped at the
// list price at evaluation time, so the sale price never goes negative.
func (r *Resolver) SalePrice(ctx context.Context, productID string, listPrice decimal.Decimal) (SalePricing, error) {
	pricing := SalePricing{
		ListPrice: listPrice,
		SalePrice: listPrice,
		Discount:  decimal.Zero,
	}

	sales, err := r.sales.ActiveSales(ctx)
	if err != nil {
		return SalePricing{}, errors.Wrap(err, "list active sales")
	}

	for i := range sales {
		s := &sales[i]
		if !s.Applies(productID) {
			continue
		}

		discount := discountAmount(s.DiscountType, s.Value, listPrice)
		pricing.Discount = discount.Round(2)
		pricing.SalePrice = floorAtZero(listPrice.Sub(discount)).Round(2)
		pricing.Sale = s
		break
	}

	return pricing, nil
}

// ValidateCoupon runs the ordered eligibility checks for a coupon against an
// order. It returns the computed discount on success and a specific sentinel
// error on the first failed check. It never mutates state.
func (r *Resolver) ValidateCoupon(ctx context.Context, req CouponRequest) (*CouponDiscount, error) {
	cp, err := r.coupons.FindByCode(ctx, promotion.NormalizeCode(req.Code))
	if err != nil {
		if errors.Is(err, promotion.ErrCouponNotFound) {
			return nil, ErrUnknownCode
		}
		return nil, errors.Wrap(err, "find coupon")
	}

	if cp.VendorID != "" && !contains(req.VendorIDs, cp.VendorID) {
		return nil, ErrVendorMismatch
	}

	switch cp.StatusAt(r.now()) {
	case promotion.StatusScheduled:
		return nil, ErrNotStarted
	case promotion.StatusExpired:
		return nil, ErrExpired
	case promotion.StatusDisabled:
		return nil, ErrCouponDisabled
	}

	if cp.UsageLimit > 0 && cp.UsageCount >= cp.UsageLimit {
		return nil, promotion.ErrUsageLimitReached
	}

	if cp.CustomerLimit > 0 {
		uses, err := r.coupons.CustomerUses(ctx, cp.ID, req.CustomerID)
		if err != nil {
			return nil, errors.Wrap(err, "customer uses")
		}
		if uses >= cp.CustomerLimit {
			return nil, promotion.ErrCustomerLimitReached
		}
	}

	if cp.MinOrderAmount.IsPositive() && req.OrderTotal.LessThan(cp.MinOrderAmount) {
		return nil, ErrMinOrderNotMet
	}

	if !inScope(cp, req.ProductIDs, req.CategoryIDs) {
		return nil, ErrScopeMismatch
	}

	return &CouponDiscount{
		Coupon: cp,
		Amount: couponAmount(cp, req.OrderTotal),
	}, nil
}

// ApplyCoupon validates the coupon, then registers one redemption for the
// customer. The repository's RegisterUse contract guarantees the counters
// cannot exceed their limits under concurrent application: a lost race
// surfaces as a usage-limit error and no discount is granted.
func (r *Resolver) ApplyCoupon(ctx context.Context, req CouponRequest) (*CouponDiscount, error) {
	d, err := r.ValidateCoupon(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := r.coupons.RegisterUse(ctx, d.Coupon.ID, req.CustomerID); err != nil {
		if errors.Is(err, promotion.ErrUsageLimitReached) || errors.Is(err, promotion.ErrCustomerLimitReached) {
			return nil, err
		}
		return nil, errors.Wrap(err, "register coupon use")
	}

	return d, nil
}

// ReleaseCoupon undoes one registered redemption. Callers invoke it when the
// operation the coupon was applied to failed after ApplyCoupon succeeded, so
// the failed attempt does not consume a use.
func (r *Resolver) ReleaseCoupon(ctx context.Context, couponID, customerID string) error {
	if err := r.coupons.ReleaseUse(ctx, couponID, customerID); err != nil {
		return errors.Wrap(err, "release coupon use")
	}
	return nil
}

// Reason maps a coupon validation error to a short machine-readable reason
// string for presentation. Unknown errors map to the empty string.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownCode):
		return "unknown_code"
	case errors.Is(err, ErrVendorMismatch):
		return "vendor_mismatch"
	case errors.Is(err, ErrNotStarted):
		return "not_started"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrCouponDisabled):
		return "disabled"
	case errors.Is(err, promotion.ErrUsageLimitReached):
		return "usage_limit_reached"
	case errors.Is(err, promotion.ErrCustomerLimitReached):
		return "customer_limit_reached"
	case errors.Is(err, ErrMinOrderNotMet):
		return "min_order_not_met"
	case errors.Is(err, ErrScopeMismatch):
		return "scope_mismatch"
	}
	return ""
}

// couponAmount computes the discount granted by a valid coupon: a percentage
// of the order total capped by MaxDiscount, or a fixed amount capped at the
// order total.
func couponAmount(cp *promotion.Coupon, orderTotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch cp.DiscountType {
	case promotion.DiscountPercentage:
		amount = orderTotal.Mul(cp.Value).Div(hundred)
		if cp.MaxDiscount.IsPositive() {
			amount = decimal.Min(amount, cp.MaxDiscount)
		}
	case promotion.DiscountFixed:
		amount = decimal.Min(cp.Value, orderTotal)
	}
	return floorAtZero(amount).Round(2)
}

func discountAmount(t promotion.DiscountType, value, price decimal.Decimal) decimal.Decimal {
	switch t {
	case promotion.DiscountPercentage:
		return price.Mul(value).Div(hundred)
	case promotion.DiscountFixed:
		return decimal.Min(value, price)
	}
	return decimal.Zero
}

func inScope(cp *promotion.Coupon, productIDs, categoryIDs []string) bool {
	switch cp.Scope {
	case promotion.ScopeProducts:
		return intersects(cp.ProductIDs, productIDs)
	case promotion.ScopeCategories:
		return intersects(cp.CategoryIDs, categoryIDs)
	}
	return true
}

func contains(set []string, want string) bool {
	for _, s := range set {
		if s == want {
			return true
		}
	}
	return false
}

func intersects(set, candidates []string) bool {
	for _, c := range candidates {
		for _, s := range set {
			if c == s {
				return true
			}
		}
	}
	return false
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
