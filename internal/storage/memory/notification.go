package memory

import (
	"context"
	"sync"

	"github.com/soukmarket/commerce-core/internal/domain/notification"
)

var (
	_ notification.Repository           = (*NotificationRepository)(nil)
	_ notification.PreferenceRepository = (*PreferenceRepository)(nil)
)

// NotificationRepository is an in-memory notification store with a bounded
// per-recipient ring: creating past the retention limit drops the oldest.
type NotificationRepository struct {
	mu      sync.RWMutex
	byUser  map[string][]notification.Notification
	byID    map[string]string
	maxKeep int
}

// NewNotificationRepository returns an empty store keeping at most
// notification.RetentionLimit records per recipient.
func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{
		byUser:  make(map[string][]notification.Notification),
		byID:    make(map[string]string),
		maxKeep: notification.RetentionLimit,
	}
}

func (r *NotificationRepository) Create(_ context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := append(r.byUser[n.RecipientID], *n)
	for len(list) > r.maxKeep {
		delete(r.byID, list[0].ID)
		list = list[1:]
	}
	r.byUser[n.RecipientID] = list
	r.byID[n.ID] = n.RecipientID
	return nil
}

// ListByRecipient returns the recipient's notifications, newest first.
func (r *NotificationRepository) ListByRecipient(_ context.Context, recipientID string) ([]notification.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.byUser[recipientID]
	out := make([]notification.Notification, len(list))
	for i, n := range list {
		out[len(list)-1-i] = n
	}
	return out, nil
}

func (r *NotificationRepository) MarkRead(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	recipientID, ok := r.byID[id]
	if !ok {
		return notification.ErrNotFound
	}
	list := r.byUser[recipientID]
	for i := range list {
		if list[i].ID == id {
			list[i].Read = true
			return nil
		}
	}
	return notification.ErrNotFound
}

func (r *NotificationRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	recipientID, ok := r.byID[id]
	if !ok {
		return notification.ErrNotFound
	}
	delete(r.byID, id)

	list := r.byUser[recipientID]
	for i := range list {
		if list[i].ID == id {
			r.byUser[recipientID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return notification.ErrNotFound
}

// PreferenceRepository is an in-memory preference store. Users without
// saved preferences get the zero value (in-app only).
type PreferenceRepository struct {
	mu    sync.RWMutex
	prefs map[string]notification.Preferences
}

// NewPreferenceRepository returns an empty preference store.
func NewPreferenceRepository() *PreferenceRepository {
	return &PreferenceRepository{prefs: make(map[string]notification.Preferences)}
}

func (r *PreferenceRepository) Get(_ context.Context, userID string) (notification.Preferences, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.prefs[userID], nil
}

func (r *PreferenceRepository) Put(_ context.Context, userID string, p notification.Preferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs[userID] = p
	return nil
}
