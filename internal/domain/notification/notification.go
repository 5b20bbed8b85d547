package notification

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Type categorizes a notification.
type Type string

const (
	TypeOrderStatus Type = "order_status"
	TypeOrderNew    Type = "order_new"
	TypePayment     Type = "payment"
	TypeReview      Type = "review"
	TypeSystem      Type = "system"
)

// Channel is a delivery channel for a notification. The in-app channel is
// always used; email and SMS depend on the recipient's preferences.
// Transmission over external channels is another subsystem's job: this
// package records intent only.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// RetentionLimit bounds the per-recipient notification history. Stores drop
// the oldest records past this cap.
const RetentionLimit = 100

// ErrNotFound is returned when a requested notification does not exist.
var ErrNotFound = errors.New("notification not found")

// Notification is a single in-app notification record with the channel set
// it was (intended to be) delivered over.
type Notification struct {
	ID          string
	RecipientID string
	Type        Type
	Title       string
	Message     string
	OrderID     string
	ProductID   string
	Read        bool
	Channels    []Channel
	CreatedAt   time.Time
}

// ChannelPrefs holds the external-channel switches for one notification
// category.
type ChannelPrefs struct {
	Email bool
	SMS   bool
}

// Preferences are a user's per-category channel switches. The zero value
// means in-app only, which is also the default for users who never saved
// preferences.
type Preferences struct {
	OrderUpdates  ChannelPrefs
	NewOrders     ChannelPrefs
	PaymentAlerts ChannelPrefs
	ReviewAlerts  ChannelPrefs
}

// Channels derives the channel set for a notification of the given type:
// in-app always, email and SMS only when enabled for the type's category.
func (p Preferences) Channels(t Type) []Channel {
	var cp ChannelPrefs
	switch t {
	case TypeOrderStatus:
		cp = p.OrderUpdates
	case TypeOrderNew:
		cp = p.NewOrders
	case TypePayment:
		cp = p.PaymentAlerts
	case TypeReview:
		cp = p.ReviewAlerts
	}

	channels := []Channel{ChannelInApp}
	if cp.Email {
		channels = append(channels, ChannelEmail)
	}
	if cp.SMS {
		channels = append(channels, ChannelSMS)
	}
	return channels
}

// Repository provides persistence for notification records. Create enforces
// the RetentionLimit ring per recipient.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListByRecipient(ctx context.Context, recipientID string) ([]Notification, error)
	MarkRead(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// PreferenceRepository provides per-user notification preferences. Missing
// users yield the zero Preferences (in-app only), not an error.
type PreferenceRepository interface {
	Get(ctx context.Context, userID string) (Preferences, error)
	Put(ctx context.Context, userID string, p Preferences) error
}
