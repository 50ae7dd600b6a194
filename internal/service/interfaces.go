package service

import (
	"context"
	"time"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
)

// PreferenceStore persists notification preferences
type PreferenceStore interface {
	GetByUserID(ctx context.Context, userID string) (*domain.NotificationPreferences, error)
	Create(ctx context.Context, prefs *domain.NotificationPreferences) error
	Update(ctx context.Context, prefs *domain.NotificationPreferences) error
	Delete(ctx context.Context, userID string) error
	FindEnabledUserIDs(ctx context.Context) ([]string, error)
	FindDigestSubscribers(ctx context.Context, frequency domain.DigestFrequency) ([]*domain.NotificationPreferences, error)
}

// NotificationStore persists notifications and their delivery status
type NotificationStore interface {
	Create(ctx context.Context, n *domain.Notification) error
	FindByID(ctx context.Context, userID, notificationID string) (*domain.Notification, error)
	Find(ctx context.Context, filter domain.NotificationFilter) (*domain.NotificationPage, error)
	MarkAsRead(ctx context.Context, userID string, notificationIDs []string) (int64, error)
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)
	Archive(ctx context.Context, userID, notificationID string) error
	Delete(ctx context.Context, userID, notificationID string) error
	DeleteMany(ctx context.Context, userID string, notificationIDs []string) (int64, error)
	GetSummary(ctx context.Context, userID string) (*domain.NotificationSummary, error)
	UpdateChannelStatus(ctx context.Context, notificationID string, ch domain.Channel, d domain.ChannelDelivery) error
	GetPendingForChannel(ctx context.Context, ch domain.Channel, limit int) ([]*domain.Notification, error)
	GetFailedForRetry(ctx context.Context, ch domain.Channel, maxRetries int) ([]*domain.Notification, error)
	CountExhausted(ctx context.Context, ch domain.Channel, maxRetries int) (int64, error)
	FindUndigested(ctx context.Context, userID string, from, to time.Time) ([]*domain.Notification, error)
	MarkDigested(ctx context.Context, notificationIDs []string, at time.Time) (int64, error)
}

// RecipientDirectory resolves a user's email contact
type RecipientDirectory interface {
	Lookup(ctx context.Context, userID string) (*domain.Recipient, error)
}

// EmailQueue accepts email jobs; it reports failures in the result instead of an error
type EmailQueue interface {
	QueueEmail(ctx context.Context, job domain.EmailJob) domain.QueueResult
}

// RealtimePusher pushes an event to a user's open connections
type RealtimePusher interface {
	PushToUser(userID, event string, data any) (int, error)
}

// WebhookDispatcher posts a notification to the outbound webhook
type WebhookDispatcher interface {
	Dispatch(ctx context.Context, n *domain.Notification, attempt int) error
}
