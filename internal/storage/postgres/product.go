package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soukmarket/commerce-core/internal/domain/catalog"
)

const productColumns = `id, name, price, category_id, vendor_id, vendor_name,
	active, stock, track_stock`

var _ catalog.Repository = (*ProductRepository)(nil)

// ProductRepository implements catalog.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func (r *ProductRepository) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("finding product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("finding product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs fetches the products whose ids are present; missing ids are
// silently omitted from the result.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("finding products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Put inserts or replaces a product row. Used by seeding and ingest tools;
// the serving path only reads.
func (r *ProductRepository) Put(ctx context.Context, p catalog.Product) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO products (id, name, price,
		category_id, vendor_id, vendor_name, active, stock, track_stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			category_id = EXCLUDED.category_id,
			vendor_id = EXCLUDED.vendor_id,
			vendor_name = EXCLUDED.vendor_name,
			active = EXCLUDED.active,
			stock = EXCLUDED.stock,
			track_stock = EXCLUDED.track_stock`,
		p.ID, p.Name, p.Price, p.CategoryID, p.VendorID, p.VendorName,
		p.Active, p.Stock, p.TrackStock)
	if err != nil {
		return fmt.Errorf("saving product %q: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Price, &p.CategoryID, &p.VendorID, &p.VendorName,
		&p.Active, &p.Stock, &p.TrackStock,
	)
	return p, err
}
