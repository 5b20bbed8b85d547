package promotion

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Validation errors reported when creating or updating promotions.
var (
	ErrEmptyCode       = errors.New("coupon code required")
	ErrInvalidValue    = errors.New("discount value must be positive")
	ErrInvalidPercent  = errors.New("percentage value must not exceed 100")
	ErrEmptyScopeSet   = errors.New("scoped coupon requires a non-empty id set")
	ErrEmptyProductSet = errors.New("sale requires a non-empty product set")
	ErrInvalidWindow   = errors.New("active window end must be after start")
)

var hundred = decimal.NewFromInt(100)

// Catalog owns coupon and sale definitions: creation, mutation, lookup, and
// the derived lifecycle status.
type Catalog struct {
	coupons CouponRepository
	sales   SaleRepository
	now     func() time.Time
}

// NewCatalog creates a Catalog backed by the given repositories.
func NewCatalog(coupons CouponRepository, sales SaleRepository) *Catalog {
	return &Catalog{coupons: coupons, sales: sales, now: time.Now}
}

// CreateCoupon validates and persists a new coupon. Codes are normalized to
// upper case and must be unique.
func (c *Catalog) CreateCoupon(ctx context.Context, cp *Coupon) error {
	if err := validateCoupon(cp); err != nil {
		return err
	}
	cp.Code = NormalizeCode(cp.Code)

	if _, err := c.coupons.FindByCode(ctx, cp.Code); err == nil {
		return ErrCodeTaken
	} else if !errors.Is(err, ErrCouponNotFound) {
		return errors.Wrap(err, "check code uniqueness")
	}

	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	cp.CreatedAt = c.now()

	if err := c.coupons.Create(ctx, cp); err != nil {
		return errors.Wrap(err, "create coupon")
	}
	return nil
}

// UpdateCoupon validates and persists changes to an existing coupon.
// The code stays normalized; usage counters are not touched here.
func (c *Catalog) UpdateCoupon(ctx context.Context, cp *Coupon) error {
	if err := validateCoupon(cp); err != nil {
		return err
	}
	cp.Code = NormalizeCode(cp.Code)

	if err := c.coupons.Update(ctx, cp); err != nil {
		return errors.Wrap(err, "update coupon")
	}
	return nil
}

// DeleteCoupon removes a coupon unconditionally. Orders that historically
// used the coupon keep their frozen discount amounts, so no referential
// check is needed.
func (c *Catalog) DeleteCoupon(ctx context.Context, id string) error {
	return c.coupons.Delete(ctx, id)
}

// CouponByID looks up a coupon by id.
func (c *Catalog) CouponByID(ctx context.Context, id string) (*Coupon, error) {
	return c.coupons.GetByID(ctx, id)
}

// CouponByCode looks up a coupon by its code, case-insensitively.
func (c *Catalog) CouponByCode(ctx context.Context, code string) (*Coupon, error) {
	return c.coupons.FindByCode(ctx, NormalizeCode(code))
}

// VendorCoupons lists every coupon owned by the vendor.
func (c *Catalog) VendorCoupons(ctx context.Context, vendorID string) ([]Coupon, error) {
	return c.coupons.ListByVendor(ctx, vendorID)
}

// ActiveCoupons lists coupons whose derived status is active right now.
func (c *Catalog) ActiveCoupons(ctx context.Context) ([]Coupon, error) {
	all, err := c.coupons.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}

	now := c.now()
	active := all[:0]
	for _, cp := range all {
		if cp.StatusAt(now) == StatusActive {
			active = append(active, cp)
		}
	}
	return active, nil
}

// CreateSale validates and persists a new sale.
func (c *Catalog) CreateSale(ctx context.Context, s *Sale) error {
	if err := validateSale(s); err != nil {
		return err
	}

	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.CreatedAt = c.now()

	if err := c.sales.Create(ctx, s); err != nil {
		return errors.Wrap(err, "create sale")
	}
	return nil
}

// UpdateSale validates and persists changes to an existing sale.
func (c *Catalog) UpdateSale(ctx context.Context, s *Sale) error {
	if err := validateSale(s); err != nil {
		return err
	}
	if err := c.sales.Update(ctx, s); err != nil {
		return errors.Wrap(err, "update sale")
	}
	return nil
}

// DeleteSale removes a sale unconditionally.
func (c *Catalog) DeleteSale(ctx context.Context, id string) error {
	return c.sales.Delete(ctx, id)
}

// SaleByID looks up a sale by id.
func (c *Catalog) SaleByID(ctx context.Context, id string) (*Sale, error) {
	return c.sales.GetByID(ctx, id)
}

// VendorSales lists every sale owned by the vendor.
func (c *Catalog) VendorSales(ctx context.Context, vendorID string) ([]Sale, error) {
	return c.sales.ListByVendor(ctx, vendorID)
}

// ActiveSales lists sales whose derived status is active right now, in
// creation order.
func (c *Catalog) ActiveSales(ctx context.Context) ([]Sale, error) {
	all, err := c.sales.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list sales")
	}

	now := c.now()
	active := all[:0]
	for _, s := range all {
		if s.StatusAt(now) == StatusActive {
			active = append(active, s)
		}
	}
	return active, nil
}

// NormalizeCode canonicalizes a coupon code for storage and lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validateCoupon(cp *Coupon) error {
	if strings.TrimSpace(cp.Code) == "" {
		return ErrEmptyCode
	}
	if err := validateDiscount(cp.DiscountType, cp.Value); err != nil {
		return err
	}
	switch cp.Scope {
	case ScopeProducts:
		if len(cp.ProductIDs) == 0 {
			return ErrEmptyScopeSet
		}
	case ScopeCategories:
		if len(cp.CategoryIDs) == 0 {
			return ErrEmptyScopeSet
		}
	}
	return validateWindow(cp.StartsAt, cp.EndsAt)
}

func validateSale(s *Sale) error {
	if len(s.ProductIDs) == 0 {
		return ErrEmptyProductSet
	}
	if err := validateDiscount(s.DiscountType, s.Value); err != nil {
		return err
	}
	return validateWindow(s.StartsAt, s.EndsAt)
}

func validateDiscount(t DiscountType, value decimal.Decimal) error {
	if !value.IsPositive() {
		return ErrInvalidValue
	}
	if t == DiscountPercentage && value.GreaterThan(hundred) {
		return ErrInvalidPercent
	}
	return nil
}

func validateWindow(start, end *time.Time) error {
	if start != nil && end != nil && !end.After(*start) {
		return ErrInvalidWindow
	}
	return nil
}
