package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage of the discounted amount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary amount capped at the
	// discounted amount.
	DiscountFixed DiscountType = "fixed"
)

// Scope defines the eligibility boundary of a coupon.
type Scope string

const (
	// ScopeStore makes a coupon apply to the vendor's whole store.
	ScopeStore Scope = "store"
	// ScopeProducts restricts a coupon to an explicit product set.
	ScopeProducts Scope = "products"
	// ScopeCategories restricts a coupon to an explicit category set.
	ScopeCategories Scope = "categories"
)

// Status is the lifecycle state of a promotion. It is always derived from
// the active window and the disabled flag at read time, never stored.
type Status string

const (
	StatusActive    Status = "active"
	StatusScheduled Status = "scheduled"
	StatusExpired   Status = "expired"
	StatusDisabled  Status = "disabled"
)

var (
	// ErrCouponNotFound is returned when no coupon matches the given id or code.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrSaleNotFound is returned when no sale matches the given id.
	ErrSaleNotFound = errors.New("sale not found")
	// ErrCodeTaken is returned when creating a coupon whose code already exists.
	ErrCodeTaken = errors.New("coupon code already exists")
	// ErrUsageLimitReached is returned when a coupon has exhausted its
	// global usage limit.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrCustomerLimitReached is returned when a customer has exhausted
	// their per-customer usage limit for a coupon.
	ErrCustomerLimitReached = errors.New("coupon usage limit reached for customer")
)

// Coupon is a customer-entered code granting a discount, with scope, active
// window, and usage limits. Zero values mean "unset": UsageLimit 0 is
// unlimited, MaxDiscount 0 is uncapped, MinOrderAmount 0 is no minimum.
type Coupon struct {
	ID           string
	VendorID     string
	Code         string
	DiscountType DiscountType
	Value        decimal.Decimal
	Scope        Scope
	ProductIDs   []string
	CategoryIDs  []string

	MinOrderAmount decimal.Decimal
	// MaxDiscount caps the computed discount. Only meaningful for
	// percentage coupons.
	MaxDiscount decimal.Decimal

	UsageLimit    int
	UsageCount    int
	CustomerLimit int

	StartsAt *time.Time
	EndsAt   *time.Time
	Disabled bool

	CreatedAt time.Time
}

// StatusAt derives the coupon's lifecycle status at the given instant.
// The disabled flag overrides the window permanently; the window is
// half-open: [StartsAt, EndsAt).
func (c *Coupon) StatusAt(now time.Time) Status {
	return statusAt(c.StartsAt, c.EndsAt, c.Disabled, now)
}

// Sale is a vendor-defined, code-free discount applied automatically to a
// fixed product set within a time window.
type Sale struct {
	ID           string
	VendorID     string
	DiscountType DiscountType
	Value        decimal.Decimal
	ProductIDs   []string

	StartsAt *time.Time
	EndsAt   *time.Time
	Disabled bool

	CreatedAt time.Time
}

// StatusAt derives the sale's lifecycle status at the given instant.
func (s *Sale) StatusAt(now time.Time) Status {
	return statusAt(s.StartsAt, s.EndsAt, s.Disabled, now)
}

// Applies reports whether the sale covers the given product.
func (s *Sale) Applies(productID string) bool {
	for _, id := range s.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

func statusAt(start, end *time.Time, disabled bool, now time.Time) Status {
	if disabled {
		return StatusDisabled
	}
	if start != nil && now.Before(*start) {
		return StatusScheduled
	}
	if end != nil && !now.Before(*end) {
		return StatusExpired
	}
	return StatusActive
}

// CouponRepository provides persistence for coupons and their redemption
// counters.
type CouponRepository interface {
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*Coupon, error)
	// FindByCode performs a case-insensitive lookup.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	ListByVendor(ctx context.Context, vendorID string) ([]Coupon, error)
	List(ctx context.Context) ([]Coupon, error)

	// CustomerUses returns how many times the customer has redeemed the coupon.
	CustomerUses(ctx context.Context, couponID, customerID string) (int, error)
	// RegisterUse increments the global and per-customer redemption
	// counters by one. The increment must be atomic: implementations
	// re-check both limits inside the same transaction (or equivalent
	// compare-and-swap) and return ErrUsageLimitReached or
	// ErrCustomerLimitReached when a concurrent redemption won the race.
	RegisterUse(ctx context.Context, couponID, customerID string) error
	// ReleaseUse undoes one registered redemption, decrementing both
	// counters without going below zero. Callers use it to compensate a
	// redemption whose surrounding operation failed after RegisterUse.
	ReleaseUse(ctx context.Context, couponID, customerID string) error
}

// SaleRepository provides persistence for sales. List results are ordered
// by creation time, which fixes the "first active sale wins" tie-break.
type SaleRepository interface {
	Create(ctx context.Context, s *Sale) error
	Update(ctx context.Context, s *Sale) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*Sale, error)
	ListByVendor(ctx context.Context, vendorID string) ([]Sale, error)
	List(ctx context.Context) ([]Sale, error)
}
