package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soukmarket/commerce-core/internal/domain/order"
)

const orderColumns = `id, buyer_id, items, subtotal, discount, shipping, tax,
	total, coupon_code, status, payment_status, created_at, updated_at`

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Order
// items are serialized to a JSONB column; status writes are guarded by a
// compare-and-set on the current status.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	_, err = r.pool.Exec(ctx, `INSERT INTO orders (id, buyer_id, items,
		subtotal, discount, shipping, tax, total, coupon_code, status,
		payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		o.ID, o.BuyerID, itemsJSON, o.Subtotal, o.Discount, o.Shipping,
		o.Tax, o.Total, o.CouponCode, string(o.Status), string(o.PaymentStatus),
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("finding order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order %q: %w", id, err)
	}
	return &o, nil
}

func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for buyer %q: %w", buyerID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus performs the compare-and-set transition write: the row is
// only touched while its status still equals the expected value.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, expected, next order.Status, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`,
		id, string(expected), string(next), at)
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("checking order %q: %w", id, err)
		}
		if !exists {
			return order.ErrNotFound
		}
		return order.ErrStatusConflict
	}
	return nil
}

func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, id string, ps order.PaymentStatus, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET payment_status = $2, updated_at = $3
		WHERE id = $1`,
		id, string(ps), at)
	if err != nil {
		return fmt.Errorf("updating payment status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		itemsJSON     []byte
		status        string
		paymentStatus string
	)
	err := row.Scan(
		&o.ID, &o.BuyerID, &itemsJSON, &o.Subtotal, &o.Discount, &o.Shipping,
		&o.Tax, &o.Total, &o.CouponCode, &status, &paymentStatus,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return order.Order{}, fmt.Errorf("unmarshaling order items: %w", err)
	}
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	return o, nil
}
