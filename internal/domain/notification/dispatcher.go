package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/soukmarket/commerce-core/internal/domain/order"
)

// Outcome is the captured result of notifying a single recipient.
type Outcome struct {
	RecipientID    string
	NotificationID string
	Channels       []Channel
	Err            error
}

// FanOutError reports that some recipients of a fan-out could not be
// notified. The remaining recipients were still processed.
type FanOutError struct {
	Outcomes []Outcome
}

func (e *FanOutError) Error() string {
	failed := 0
	for _, o := range e.Outcomes {
		if o.Err != nil {
			failed++
		}
	}
	return fmt.Sprintf("%d of %d notifications failed", failed, len(e.Outcomes))
}

// Dispatcher fans out notifications for order events: one notification per
// distinct interested party, each with the channel set derived from that
// recipient's own preferences. Recipients are processed independently, so
// one failure never suppresses the rest.
type Dispatcher struct {
	store Repository
	prefs PreferenceRepository
	now   func() time.Time
}

// NewDispatcher creates a Dispatcher backed by the given stores.
func NewDispatcher(store Repository, prefs PreferenceRepository) *Dispatcher {
	return &Dispatcher{store: store, prefs: prefs, now: time.Now}
}

var _ order.Notifier = (*Dispatcher)(nil)

// target is one planned notification of a fan-out.
type target struct {
	recipientID string
	typ         Type
	title       string
	message     string
}

// OrderStatusChanged notifies the buyer and every vendor represented in the
// order about an accepted status transition. A vendor actor is not told
// about its own change.
func (d *Dispatcher) OrderStatusChanged(ctx context.Context, o *order.Order, previous order.Status, actor order.Actor) error {
	targets := []target{{
		recipientID: o.BuyerID,
		typ:         TypeOrderStatus,
		title:       "Order update",
		message:     fmt.Sprintf("Your order #%s is now %s.", o.ID, o.Status),
	}}

	for _, vendorID := range o.VendorIDs() {
		if actor.Role == order.RoleVendor && actor.ID == vendorID {
			continue
		}
		targets = append(targets, target{
			recipientID: vendorID,
			typ:         TypeOrderStatus,
			title:       "Order update",
			message:     fmt.Sprintf("Order #%s is now %s.", o.ID, o.Status),
		})
	}

	return d.fanOut(ctx, o.ID, targets)
}

// OrderPlaced notifies every vendor represented in a freshly placed order.
func (d *Dispatcher) OrderPlaced(ctx context.Context, o *order.Order) error {
	var targets []target
	for _, vendorID := range o.VendorIDs() {
		targets = append(targets, target{
			recipientID: vendorID,
			typ:         TypeOrderNew,
			title:       "New order",
			message:     fmt.Sprintf("You have a new order #%s.", o.ID),
		})
	}
	return d.fanOut(ctx, o.ID, targets)
}

// PaymentChanged notifies the buyer about a payment-gateway outcome.
func (d *Dispatcher) PaymentChanged(ctx context.Context, o *order.Order) error {
	return d.fanOut(ctx, o.ID, []target{{
		recipientID: o.BuyerID,
		typ:         TypePayment,
		title:       "Payment update",
		message:     fmt.Sprintf("Payment for order #%s is %s.", o.ID, o.PaymentStatus),
	}})
}

// fanOut processes every target independently and captures per-recipient
// outcomes. It returns a *FanOutError when at least one recipient failed.
func (d *Dispatcher) fanOut(ctx context.Context, orderID string, targets []target) error {
	if len(targets) == 0 {
		return nil
	}

	outcomes := make([]Outcome, len(targets))

	var g errgroup.Group
	for i, t := range targets {
		g.Go(func() error {
			outcomes[i] = d.notify(ctx, orderID, t)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o.Err != nil {
			return &FanOutError{Outcomes: outcomes}
		}
	}
	return nil
}

// notify resolves one recipient's preferences and persists the in-app
// record with the derived channel set.
func (d *Dispatcher) notify(ctx context.Context, orderID string, t target) Outcome {
	out := Outcome{RecipientID: t.recipientID}

	prefs, err := d.prefs.Get(ctx, t.recipientID)
	if err != nil {
		out.Err = errors.Wrapf(err, "preferences for %s", t.recipientID)
		return out
	}

	n := &Notification{
		ID:          uuid.New().String(),
		RecipientID: t.recipientID,
		Type:        t.typ,
		Title:       t.title,
		Message:     t.message,
		OrderID:     orderID,
		Channels:    prefs.Channels(t.typ),
		CreatedAt:   d.now(),
	}
	if err := d.store.Create(ctx, n); err != nil {
		out.Err = errors.Wrapf(err, "store notification for %s", t.recipientID)
		return out
	}

	out.NotificationID = n.ID
	out.Channels = n.Channels
	return out
}

// Inbox returns the recipient's notification history, newest first.
func (d *Dispatcher) Inbox(ctx context.Context, recipientID string) ([]Notification, error) {
	return d.store.ListByRecipient(ctx, recipientID)
}

// MarkRead flags a notification as read.
func (d *Dispatcher) MarkRead(ctx context.Context, id string) error {
	return d.store.MarkRead(ctx, id)
}

// Delete removes a notification.
func (d *Dispatcher) Delete(ctx context.Context, id string) error {
	return d.store.Delete(ctx, id)
}
