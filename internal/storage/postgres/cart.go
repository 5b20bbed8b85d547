package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soukmarket/commerce-core/internal/domain/cart"
)

var _ cart.RemoteCart = (*CartStore)(nil)

// CartStore implements cart.RemoteCart backed by PostgreSQL. Each store is
// bound to one identity (user id or anonymous session id); rows are keyed by
// identity plus line key.
type CartStore struct {
	pool     *pgxpool.Pool
	identity string
}

// NewCartStore returns a CartStore for the given identity.
func NewCartStore(pool *pgxpool.Pool, identity string) *CartStore {
	return &CartStore{pool: pool, identity: identity}
}

func (s *CartStore) Load(ctx context.Context) ([]cart.Line, error) {
	rows, err := s.pool.Query(ctx, `SELECT product_id, variation, name,
		unit_price, vendor_id, vendor_name, quantity, max_quantity
		FROM cart_lines WHERE identity = $1 ORDER BY created_at`, s.identity)
	if err != nil {
		return nil, fmt.Errorf("loading cart %q: %w", s.identity, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var l cart.Line
		err := row.Scan(
			&l.ProductID, &l.Variation, &l.Name, &l.UnitPrice,
			&l.VendorID, &l.VendorName, &l.Quantity, &l.MaxQuantity,
		)
		return l, err
	})
}

func (s *CartStore) Put(ctx context.Context, l cart.Line) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO cart_lines (identity, line_key,
		product_id, variation, name, unit_price, vendor_id, vendor_name,
		quantity, max_quantity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (identity, line_key) DO UPDATE SET
			name = EXCLUDED.name,
			unit_price = EXCLUDED.unit_price,
			vendor_name = EXCLUDED.vendor_name,
			quantity = EXCLUDED.quantity,
			max_quantity = EXCLUDED.max_quantity`,
		s.identity, l.Key(), l.ProductID, l.Variation, l.Name, l.UnitPrice,
		l.VendorID, l.VendorName, l.Quantity, l.MaxQuantity, time.Now())
	if err != nil {
		return fmt.Errorf("saving cart line %q: %w", l.Key(), err)
	}
	return nil
}

func (s *CartStore) Remove(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM cart_lines WHERE identity = $1 AND line_key = $2`,
		s.identity, key)
	if err != nil {
		return fmt.Errorf("removing cart line %q: %w", key, err)
	}
	return nil
}

func (s *CartStore) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM cart_lines WHERE identity = $1`, s.identity)
	if err != nil {
		return fmt.Errorf("clearing cart %q: %w", s.identity, err)
	}
	return nil
}
