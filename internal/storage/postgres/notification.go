package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soukmarket/commerce-core/internal/domain/notification"
)

const notificationColumns = `id, recipient_id, type, title, message, order_id,
	product_id, read, channels, created_at`

var (
	_ notification.Repository           = (*NotificationRepository)(nil)
	_ notification.PreferenceRepository = (*PreferenceRepository)(nil)
)

// NotificationRepository implements notification.Repository backed by
// PostgreSQL. Create trims the recipient's history down to the retention
// limit in the same transaction.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository returns a NotificationRepository that uses the
// given pool.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	channels := make([]string, len(n.Channels))
	for i, ch := range n.Channels {
		channels[i] = string(ch)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin notification insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `INSERT INTO notifications (id, recipient_id, type,
		title, message, order_id, product_id, read, channels, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		n.ID, n.RecipientID, string(n.Type), n.Title, n.Message, n.OrderID,
		n.ProductID, n.Read, channels, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating notification %q: %w", n.ID, err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM notifications WHERE recipient_id = $1
		AND id NOT IN (
			SELECT id FROM notifications WHERE recipient_id = $1
			ORDER BY created_at DESC, id DESC LIMIT $2
		)`,
		n.RecipientID, notification.RetentionLimit)
	if err != nil {
		return fmt.Errorf("trimming notifications for %q: %w", n.RecipientID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit notification insert: %w", err)
	}
	return nil
}

func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string) ([]notification.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		WHERE recipient_id = $1 ORDER BY created_at DESC, id DESC`, recipientID)
	if err != nil {
		return nil, fmt.Errorf("listing notifications for %q: %w", recipientID, err)
	}
	return pgx.CollectRows(rows, scanNotification)
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("marking notification %q read: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting notification %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func scanNotification(row pgx.CollectableRow) (notification.Notification, error) {
	var (
		n        notification.Notification
		typ      string
		channels []string
	)
	err := row.Scan(
		&n.ID, &n.RecipientID, &typ, &n.Title, &n.Message, &n.OrderID,
		&n.ProductID, &n.Read, &channels, &n.CreatedAt,
	)
	if err != nil {
		return notification.Notification{}, err
	}
	n.Type = notification.Type(typ)
	n.Channels = make([]notification.Channel, len(channels))
	for i, ch := range channels {
		n.Channels[i] = notification.Channel(ch)
	}
	return n, nil
}

// PreferenceRepository implements notification.PreferenceRepository backed
// by PostgreSQL. Users without a saved row get the zero Preferences.
type PreferenceRepository struct {
	pool *pgxpool.Pool
}

// NewPreferenceRepository returns a PreferenceRepository that uses the given
// pool.
func NewPreferenceRepository(pool *pgxpool.Pool) *PreferenceRepository {
	return &PreferenceRepository{pool: pool}
}

func (r *PreferenceRepository) Get(ctx context.Context, userID string) (notification.Preferences, error) {
	var p notification.Preferences
	err := r.pool.QueryRow(ctx, `SELECT order_updates_email, order_updates_sms,
		new_orders_email, new_orders_sms, payment_alerts_email,
		payment_alerts_sms, review_alerts_email, review_alerts_sms
		FROM notification_preferences WHERE user_id = $1`, userID).Scan(
		&p.OrderUpdates.Email, &p.OrderUpdates.SMS,
		&p.NewOrders.Email, &p.NewOrders.SMS,
		&p.PaymentAlerts.Email, &p.PaymentAlerts.SMS,
		&p.ReviewAlerts.Email, &p.ReviewAlerts.SMS,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notification.Preferences{}, nil
		}
		return notification.Preferences{}, fmt.Errorf("loading preferences for %q: %w", userID, err)
	}
	return p, nil
}

func (r *PreferenceRepository) Put(ctx context.Context, userID string, p notification.Preferences) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO notification_preferences (user_id,
		order_updates_email, order_updates_sms, new_orders_email, new_orders_sms,
		payment_alerts_email, payment_alerts_sms, review_alerts_email, review_alerts_sms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			order_updates_email = EXCLUDED.order_updates_email,
			order_updates_sms = EXCLUDED.order_updates_sms,
			new_orders_email = EXCLUDED.new_orders_email,
			new_orders_sms = EXCLUDED.new_orders_sms,
			payment_alerts_email = EXCLUDED.payment_alerts_email,
			payment_alerts_sms = EXCLUDED.payment_alerts_sms,
			review_alerts_email = EXCLUDED.review_alerts_email,
			review_alerts_sms = EXCLUDED.review_alerts_sms`,
		userID,
		p.OrderUpdates.Email, p.OrderUpdates.SMS,
		p.NewOrders.Email, p.NewOrders.SMS,
		p.PaymentAlerts.Email, p.PaymentAlerts.SMS,
		p.ReviewAlerts.Email, p.ReviewAlerts.SMS)
	if err != nil {
		return fmt.Errorf("saving preferences for %q: %w", userID, err)
	}
	return nil
}
