package service

import (
	"context"
	"fmt"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/logger"
)

// Delivery is one notification being dispatched over one channel
type Delivery struct {
	Notification *domain.Notification
	Preferences  *domain.NotificationPreferences
	Attempt      int
}

// Outcome is the result of a channel dispatch. Error is recorded on the
// delivery entry; it does not fail the notification.
type Outcome struct {
	Status domain.DeliveryState
	Error  string
}

// ChannelSender delivers notifications over one channel
type ChannelSender interface {
	Channel() domain.Channel
	Send(ctx context.Context, d Delivery) Outcome
}

// InAppSender pushes notifications to the user's realtime connections in
// the background. There is no acknowledgement path, so a push always counts
// as delivered; push errors go to the task runner's error sink.
type InAppSender struct {
	pusher RealtimePusher
	tasks  *TaskRunner
	log    *logger.Logger
}

// NewInAppSender creates a new in-app sender
func NewInAppSender(pusher RealtimePusher, tasks *TaskRunner, log *logger.Logger) *InAppSender {
	return &InAppSender{pusher: pusher, tasks: tasks, log: log}
}

// Channel implements ChannelSender
func (s *InAppSender) Channel() domain.Channel { return domain.ChannelInApp }

// Send implements ChannelSender
func (s *InAppSender) Send(_ context.Context, d Delivery) Outcome {
	// the caller keeps updating delivery status after Send returns
	n := d.Notification.Snapshot()
	s.tasks.Go("inapp-push", func(context.Context) error {
		connections, err := s.pusher.PushToUser(n.UserID, "notification", n)
		if err != nil {
			return fmt.Errorf("push notification %s: %w", n.NotificationID, err)
		}
		s.log.Debug("In-app notification pushed", "notification_id", n.NotificationID, "connections", connections)
		return nil
	})
	return Outcome{Status: domain.DeliveryDelivered}
}

// EmailSender routes email through the dispatch queue unless the user
// batches this notification into a digest.
type EmailSender struct {
	queue     EmailQueue
	directory RecipientDirectory
	log       *logger.Logger
}

// NewEmailSender creates a new email sender
func NewEmailSender(queue EmailQueue, directory RecipientDirectory, log *logger.Logger) *EmailSender {
	return &EmailSender{queue: queue, directory: directory, log: log}
}

// Channel implements ChannelSender
func (s *EmailSender) Channel() domain.Channel { return domain.ChannelEmail }

// Send implements ChannelSender
func (s *EmailSender) Send(ctx context.Context, d Delivery) Outcome {
	n := d.Notification
	if d.Preferences != nil && d.Preferences.DigestActive(n.Priority) {
		return Outcome{Status: domain.DeliveryPending}
	}

	recipient, err := s.directory.Lookup(ctx, n.UserID)
	if err != nil {
		return Outcome{Status: domain.DeliveryPending, Error: fmt.Sprintf("recipient lookup failed: %v", err)}
	}

	data := map[string]any{
		"notificationId": n.NotificationID,
		"title":          n.Title,
		"message":        n.Message,
		"type":           n.Type,
		"category":       n.Category,
		"priority":       n.Priority,
		"recipientName":  recipient.Name,
	}
	if n.Action != nil {
		data["action"] = n.Action
	}

	res := s.queue.QueueEmail(ctx, domain.EmailJob{
		UserID:         n.UserID,
		NotificationID: n.NotificationID,
		To:             recipient.Email,
		Subject:        n.Title,
		Template:       domain.TemplateNotification,
		Data:           data,
		Priority:       domain.JobPriority(n.Priority),
	})
	if res.Queued || res.Sent {
		return Outcome{Status: domain.DeliverySent}
	}

	s.log.Warn("Email not sent, leaving delivery pending", "notification_id", n.NotificationID, "error", res.Error)
	return Outcome{Status: domain.DeliveryPending, Error: res.Error}
}

// WebhookSender posts notifications to the outbound webhook
type WebhookSender struct {
	dispatcher WebhookDispatcher
}

// NewWebhookSender creates a new webhook sender
func NewWebhookSender(dispatcher WebhookDispatcher) *WebhookSender {
	return &WebhookSender{dispatcher: dispatcher}
}

// Channel implements ChannelSender
func (s *WebhookSender) Channel() domain.Channel { return domain.ChannelWebhook }

// Send implements ChannelSender
func (s *WebhookSender) Send(ctx context.Context, d Delivery) Outcome {
	attempt := d.Attempt
	if attempt < 1 {
		attempt = 1
	}
	if err := s.dispatcher.Dispatch(ctx, d.Notification, attempt); err != nil {
		return Outcome{Status: domain.DeliveryFailed, Error: err.Error()}
	}
	return Outcome{Status: domain.DeliveryDelivered}
}

// ReservedSender stands in for channels without a transport yet (PUSH, SMS).
// Deliveries stay PENDING.
type ReservedSender struct {
	channel domain.Channel
}

// NewReservedSender creates a placeholder sender for ch
func NewReservedSender(ch domain.Channel) *ReservedSender {
	return &ReservedSender{channel: ch}
}

// Channel implements ChannelSender
func (s *ReservedSender) Channel() domain.Channel { return s.channel }

// Send implements ChannelSender
func (s *ReservedSender) Send(context.Context, Delivery) Outcome {
	return Outcome{Status: domain.DeliveryPending}
}
