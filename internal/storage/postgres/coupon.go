package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soukmarket/commerce-core/internal/domain/promotion"
)

const couponColumns = `id, vendor_id, code, discount_type, value, scope,
	product_ids, category_ids, min_order_amount, max_discount,
	usage_limit, usage_count, customer_limit, starts_at, ends_at,
	disabled, created_at`

var _ promotion.CouponRepository = (*CouponRepository)(nil)

// CouponRepository implements promotion.CouponRepository backed by
// PostgreSQL. Redemption counters live in the coupons row (global) and the
// coupon_redemptions table (per customer).
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

func (r *CouponRepository) Create(ctx context.Context, c *promotion.Coupon) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO coupons (id, vendor_id, code,
		discount_type, value, scope, product_ids, category_ids,
		min_order_amount, max_discount, usage_limit, usage_count,
		customer_limit, starts_at, ends_at, disabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		c.ID, c.VendorID, c.Code, string(c.DiscountType), c.Value, string(c.Scope),
		c.ProductIDs, c.CategoryIDs, c.MinOrderAmount, c.MaxDiscount,
		c.UsageLimit, c.UsageCount, c.CustomerLimit, c.StartsAt, c.EndsAt,
		c.Disabled, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

func (r *CouponRepository) Update(ctx context.Context, c *promotion.Coupon) error {
	tag, err := r.pool.Exec(ctx, `UPDATE coupons SET vendor_id = $2, code = $3,
		discount_type = $4, value = $5, scope = $6, product_ids = $7,
		category_ids = $8, min_order_amount = $9, max_discount = $10,
		usage_limit = $11, customer_limit = $12, starts_at = $13,
		ends_at = $14, disabled = $15
		WHERE id = $1`,
		c.ID, c.VendorID, c.Code, string(c.DiscountType), c.Value, string(c.Scope),
		c.ProductIDs, c.CategoryIDs, c.MinOrderAmount, c.MaxDiscount,
		c.UsageLimit, c.CustomerLimit, c.StartsAt, c.EndsAt, c.Disabled)
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrCouponNotFound
	}
	return nil
}

func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrCouponNotFound
	}
	return nil
}

func (r *CouponRepository) GetByID(ctx context.Context, id string) (*promotion.Coupon, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", id, err)
	}
	return collectCoupon(rows, id)
}

// FindByCode looks up a coupon by its code, case-insensitively.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*promotion.Coupon, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE UPPER(code) = UPPER($1)`, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return collectCoupon(rows, code)
}

func (r *CouponRepository) ListByVendor(ctx context.Context, vendorID string) ([]promotion.Coupon, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE vendor_id = $1 ORDER BY created_at`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("listing coupons for vendor %q: %w", vendorID, err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

func (r *CouponRepository) List(ctx context.Context) ([]promotion.Coupon, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+couponColumns+` FROM coupons ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

func (r *CouponRepository) CustomerUses(ctx context.Context, couponID, customerID string) (int, error) {
	var uses int
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(
		(SELECT uses FROM coupon_redemptions WHERE coupon_id = $1 AND customer_id = $2), 0)`,
		couponID, customerID).Scan(&uses)
	if err != nil {
		return 0, fmt.Errorf("customer uses for coupon %q: %w", couponID, err)
	}
	return uses, nil
}

// RegisterUse increments the global and per-customer counters in one
// transaction. Both increments are conditional on their limits, so two
// concurrent redemptions of the last remaining use cannot both succeed:
// the loser's guarded UPDATE matches no row and the transaction rolls back
// with the corresponding limit error.
func (r *CouponRepository) RegisterUse(ctx context.Context, couponID, customerID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin redemption: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE coupons SET usage_count = usage_count + 1
		WHERE id = $1 AND (usage_limit = 0 OR usage_count < usage_limit)`, couponID)
	if err != nil {
		return fmt.Errorf("incrementing uses for coupon %q: %w", couponID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`, couponID).Scan(&exists); err != nil {
			return fmt.Errorf("checking coupon %q: %w", couponID, err)
		}
		if !exists {
			return promotion.ErrCouponNotFound
		}
		return promotion.ErrUsageLimitReached
	}

	tag, err = tx.Exec(ctx, `INSERT INTO coupon_redemptions (coupon_id, customer_id, uses)
		VALUES ($1, $2, 1)
		ON CONFLICT (coupon_id, customer_id) DO UPDATE SET uses = coupon_redemptions.uses + 1
		WHERE (SELECT customer_limit FROM coupons WHERE id = $1) = 0
			OR coupon_redemptions.uses < (SELECT customer_limit FROM coupons WHERE id = $1)`,
		couponID, customerID)
	if err != nil {
		return fmt.Errorf("incrementing customer uses for coupon %q: %w", couponID, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrCustomerLimitReached
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit redemption: %w", err)
	}
	return nil
}

// ReleaseUse undoes one redemption in a single transaction, with both
// decrements guarded so counters never go below zero.
func (r *CouponRepository) ReleaseUse(ctx context.Context, couponID, customerID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin release: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE coupons SET usage_count = usage_count - 1
		WHERE id = $1 AND usage_count > 0`, couponID)
	if err != nil {
		return fmt.Errorf("decrementing uses for coupon %q: %w", couponID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`, couponID).Scan(&exists); err != nil {
			return fmt.Errorf("checking coupon %q: %w", couponID, err)
		}
		if !exists {
			return promotion.ErrCouponNotFound
		}
	}

	_, err = tx.Exec(ctx, `UPDATE coupon_redemptions SET uses = uses - 1
		WHERE coupon_id = $1 AND customer_id = $2 AND uses > 0`,
		couponID, customerID)
	if err != nil {
		return fmt.Errorf("decrementing customer uses for coupon %q: %w", couponID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit release: %w", err)
	}
	return nil
}

func collectCoupon(rows pgx.Rows, key string) (*promotion.Coupon, error) {
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrCouponNotFound
		}
		return nil, fmt.Errorf("collecting coupon %q: %w", key, err)
	}
	return &c, nil
}

func scanCoupon(row pgx.CollectableRow) (promotion.Coupon, error) {
	var (
		c            promotion.Coupon
		discountType string
		scope        string
	)
	err := row.Scan(
		&c.ID, &c.VendorID, &c.Code, &discountType, &c.Value, &scope,
		&c.ProductIDs, &c.CategoryIDs, &c.MinOrderAmount, &c.MaxDiscount,
		&c.UsageLimit, &c.UsageCount, &c.CustomerLimit, &c.StartsAt, &c.EndsAt,
		&c.Disabled, &c.CreatedAt,
	)
	c.DiscountType = promotion.DiscountType(discountType)
	c.Scope = promotion.Scope(scope)
	return c, err
}
