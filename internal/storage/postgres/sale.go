package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soukmarket/commerce-core/internal/domain/promotion"
)

const saleColumns = `id, vendor_id, discount_type, value, product_ids,
	starts_at, ends_at, disabled, created_at`

var _ promotion.SaleRepository = (*SaleRepository)(nil)

// SaleRepository implements promotion.SaleRepository backed by PostgreSQL.
// Listings are ordered by creation time to keep the first-active-sale-wins
// tie-break stable.
type SaleRepository struct {
	pool *pgxpool.Pool
}

// NewSaleRepository returns a SaleRepository that uses the given pool.
func NewSaleRepository(pool *pgxpool.Pool) *SaleRepository {
	return &SaleRepository{pool: pool}
}

func (r *SaleRepository) Create(ctx context.Context, s *promotion.Sale) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO sales (id, vendor_id, discount_type,
		value, product_ids, starts_at, ends_at, disabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.VendorID, string(s.DiscountType), s.Value, s.ProductIDs,
		s.StartsAt, s.EndsAt, s.Disabled, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating sale %q: %w", s.ID, err)
	}
	return nil
}

func (r *SaleRepository) Update(ctx context.Context, s *promotion.Sale) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sales SET vendor_id = $2,
		discount_type = $3, value = $4, product_ids = $5, starts_at = $6,
		ends_at = $7, disabled = $8
		WHERE id = $1`,
		s.ID, s.VendorID, string(s.DiscountType), s.Value, s.ProductIDs,
		s.StartsAt, s.EndsAt, s.Disabled)
	if err != nil {
		return fmt.Errorf("updating sale %q: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrSaleNotFound
	}
	return nil
}

func (r *SaleRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting sale %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrSaleNotFound
	}
	return nil
}

func (r *SaleRepository) GetByID(ctx context.Context, id string) (*promotion.Sale, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("finding sale %q: %w", id, err)
	}

	s, err := pgx.CollectExactlyOneRow(rows, scanSale)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrSaleNotFound
		}
		return nil, fmt.Errorf("finding sale %q: %w", id, err)
	}
	return &s, nil
}

func (r *SaleRepository) ListByVendor(ctx context.Context, vendorID string) ([]promotion.Sale, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE vendor_id = $1 ORDER BY created_at`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("listing sales for vendor %q: %w", vendorID, err)
	}
	return pgx.CollectRows(rows, scanSale)
}

func (r *SaleRepository) List(ctx context.Context) ([]promotion.Sale, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+saleColumns+` FROM sales ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing sales: %w", err)
	}
	return pgx.CollectRows(rows, scanSale)
}

func scanSale(row pgx.CollectableRow) (promotion.Sale, error) {
	var (
		s            promotion.Sale
		discountType string
	)
	err := row.Scan(
		&s.ID, &s.VendorID, &discountType, &s.Value, &s.ProductIDs,
		&s.StartsAt, &s.EndsAt, &s.Disabled, &s.CreatedAt,
	)
	s.DiscountType = promotion.DiscountType(discountType)
	return s, err
}
