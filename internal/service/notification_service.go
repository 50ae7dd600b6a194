package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	"github.com/vhvplatform/go-notification-orchestrator/internal/metrics"
	"github.com/vhvplatform/go-notification-orchestrator/internal/preference"
	apperrors "github.com/vhvplatform/go-notification-orchestrator/internal/shared/errors"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/logger"
)

const bulkConcurrency = 10

// NotificationService creates notifications, delivers them over the
// evaluated channels and serves the user's notification inbox.
type NotificationService struct {
	store   NotificationStore
	prefs   *PreferenceService
	senders map[domain.Channel]ChannelSender
	tasks   *TaskRunner
	log     *logger.Logger
	now     func() time.Time
}

// NewNotificationService creates a new notification service
func NewNotificationService(store NotificationStore, prefs *PreferenceService, senders []ChannelSender, tasks *TaskRunner, log *logger.Logger) *NotificationService {
	byChannel := make(map[domain.Channel]ChannelSender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	return &NotificationService{
		store:   store,
		prefs:   prefs,
		senders: byChannel,
		tasks:   tasks,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Sender returns the registered sender for a channel
func (s *NotificationService) Sender(ch domain.Channel) (ChannelSender, bool) {
	sender, ok := s.senders[ch]
	return sender, ok
}

func validateCreate(req *domain.CreateNotificationRequest) error {
	switch {
	case req.UserID == "":
		return apperrors.NewValidationError("userId is required", nil)
	case !req.Type.Valid():
		return apperrors.NewValidationError("unknown notification type: "+string(req.Type), nil)
	case req.Title == "":
		return apperrors.NewValidationError("title is required", nil)
	case req.Priority != "" && !req.Priority.Valid():
		return apperrors.NewValidationError("unknown priority: "+string(req.Priority), nil)
	case req.Category != "" && !req.Category.Valid():
		return apperrors.NewValidationError("unknown category: "+string(req.Category), nil)
	}
	for _, ch := range req.Channels {
		if !ch.Valid() {
			return apperrors.NewValidationError("unknown channel: "+string(ch), nil)
		}
	}
	return nil
}

// CreateNotification evaluates the user's preferences and, when approved,
// persists and delivers the notification. A blocked evaluation returns
// (nil, nil) and nothing is persisted.
func (s *NotificationService) CreateNotification(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error) {
	if err := validateCreate(&req); err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == "" {
		priority = domain.DefaultPriorityForType(req.Type)
	}
	category := req.Category
	if category == "" {
		category = domain.CategoryForType(req.Type)
	}
	at := s.now()
	if req.OccurredAt != nil {
		at = *req.OccurredAt
	}

	prefs, err := s.prefs.GetOrCreate(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	result := preference.EvaluateCategory(prefs, req.Type, category, priority, at)
	if !result.ShouldNotify {
		metrics.NotificationsSuppressed.WithLabelValues(result.Reason).Inc()
		s.log.Debug("Notification suppressed", "user_id", req.UserID, "type", req.Type, "reason", result.Reason)
		return nil, nil
	}

	channels := domain.UniqueChannels(result.Channels)
	if len(req.Channels) > 0 {
		channels = restrictChannels(channels, req.Channels)
	}

	n := &domain.Notification{
		UserID:         req.UserID,
		Type:           req.Type,
		Category:       category,
		Priority:       priority,
		Title:          req.Title,
		Message:        req.Message,
		Data:           req.Data,
		Channels:       channels,
		DeliveryStatus: domain.NewDeliveryStatus(channels),
		Action:         req.Action,
		GroupKey:       req.GroupKey,
		SourceID:       req.SourceID,
		SourceType:     req.SourceType,
		ExpiresAt:      req.ExpiresAt,
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, apperrors.NewInternalError("failed to create notification", err)
	}
	metrics.NotificationsCreated.WithLabelValues(string(category), string(priority)).Inc()
	s.log.Info("Notification created", "notification_id", n.NotificationID, "user_id", n.UserID, "type", n.Type, "channels", len(channels), "digest_mode", result.IsDigestMode)

	s.Deliver(ctx, n, prefs)
	return n, nil
}

// restrictChannels keeps the evaluated channels the caller asked for, in evaluated order
func restrictChannels(evaluated, requested []domain.Channel) []domain.Channel {
	out := make([]domain.Channel, 0, len(evaluated))
	for _, ch := range evaluated {
		if domain.ContainsChannel(requested, ch) && !domain.ContainsChannel(out, ch) {
			out = append(out, ch)
		}
	}
	return out
}

// Deliver dispatches n to every channel concurrently and records each
// outcome. A failing channel never affects the others. Senders only read n;
// its delivery status is written once every channel has returned.
func (s *NotificationService) Deliver(ctx context.Context, n *domain.Notification, prefs *domain.NotificationPreferences) {
	channels := domain.UniqueChannels(n.Channels)
	results := make([]domain.ChannelDelivery, len(channels))

	var wg conc.WaitGroup
	for i, ch := range channels {
		cur, _ := n.Delivery(ch)
		wg.Go(func() {
			results[i] = s.dispatch(ctx, ch, Delivery{Notification: n, Preferences: prefs, Attempt: cur.RetryCount + 1}, cur)
		})
	}
	wg.Wait()

	if n.DeliveryStatus == nil {
		n.DeliveryStatus = make(domain.DeliveryStatus, len(channels))
	}
	for i, ch := range channels {
		n.DeliveryStatus[ch.Key()] = results[i]
	}
}

// dispatch sends over one channel and persists the resulting delivery entry
func (s *NotificationService) dispatch(ctx context.Context, ch domain.Channel, d Delivery, current domain.ChannelDelivery) (next domain.ChannelDelivery) {
	start := time.Now()
	next = current

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Channel sender panicked", "notification_id", d.Notification.NotificationID, "channel", ch, "panic", r)
			next = applyOutcome(current, Outcome{Status: domain.DeliveryFailed, Error: fmt.Sprint(r)}, s.now(), false)
			s.persist(ctx, d.Notification.NotificationID, ch, next)
		}
	}()

	sender, ok := s.senders[ch]
	if !ok {
		s.log.Warn("No sender registered for channel", "channel", ch)
		return current
	}

	outcome := sender.Send(ctx, d)
	metrics.DeliveryDuration.WithLabelValues(string(ch)).Observe(time.Since(start).Seconds())
	metrics.ChannelDeliveries.WithLabelValues(string(ch), string(outcome.Status)).Inc()

	if outcome.Status == domain.DeliveryFailed {
		s.log.Error("Channel delivery failed", "notification_id", d.Notification.NotificationID, "channel", ch, "error", outcome.Error)
	}

	next = applyOutcome(current, outcome, s.now(), false)
	if next != current {
		s.persist(ctx, d.Notification.NotificationID, ch, next)
	}
	return next
}

func (s *NotificationService) persist(ctx context.Context, notificationID string, ch domain.Channel, d domain.ChannelDelivery) {
	if err := s.store.UpdateChannelStatus(ctx, notificationID, ch, d); err != nil {
		s.log.Error("Failed to record delivery status", "notification_id", notificationID, "channel", ch, "error", err)
	}
}

// applyOutcome folds a send outcome into a delivery entry. retry marks a
// re-dispatch from the retry sweep, which stamps lastRetryAt.
func applyOutcome(current domain.ChannelDelivery, o Outcome, now time.Time, retry bool) domain.ChannelDelivery {
	next := current
	next.Status = o.Status
	next.Error = o.Error
	if retry {
		next.LastRetryAt = &now
	}

	switch o.Status {
	case domain.DeliverySent:
		next.SentAt = &now
	case domain.DeliveryDelivered:
		if next.SentAt == nil {
			next.SentAt = &now
		}
		next.DeliveredAt = &now
	case domain.DeliveryFailed:
		next.RetryCount = current.RetryCount + 1
	}
	return next
}

// CreateBulkNotifications creates the same notification for many users.
// Users whose preferences block it, and users that fail, are skipped.
func (s *NotificationService) CreateBulkNotifications(ctx context.Context, userIDs []string, req domain.CreateNotificationRequest) ([]*domain.Notification, error) {
	if len(userIDs) == 0 {
		return nil, apperrors.NewValidationError("userIds is required", nil)
	}

	p := pool.NewWithResults[*domain.Notification]().WithMaxGoroutines(bulkConcurrency)
	seen := make(map[string]bool, len(userIDs))
	for _, userID := range userIDs {
		if userID == "" || seen[userID] {
			continue
		}
		seen[userID] = true

		userReq := req
		userReq.UserID = userID
		p.Go(func() *domain.Notification {
			n, err := s.CreateNotification(ctx, userReq)
			if err != nil {
				s.log.Error("Bulk notification failed for user", "user_id", userID, "type", req.Type, "error", err)
				return nil
			}
			return n
		})
	}

	created := make([]*domain.Notification, 0, len(seen))
	for _, n := range p.Wait() {
		if n != nil {
			created = append(created, n)
		}
	}
	s.log.Info("Bulk notifications created", "type", req.Type, "requested", len(seen), "created", len(created))
	return created, nil
}

// BroadcastNotification sends a notification to every enabled user except the excluded ones
func (s *NotificationService) BroadcastNotification(ctx context.Context, req domain.CreateNotificationRequest, excludeUserIDs []string) ([]*domain.Notification, error) {
	userIDs, err := s.prefs.EnabledUserIDs(ctx)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(excludeUserIDs))
	for _, id := range excludeUserIDs {
		excluded[id] = true
	}
	targets := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if !excluded[id] {
			targets = append(targets, id)
		}
	}
	if len(targets) == 0 {
		return []*domain.Notification{}, nil
	}
	return s.CreateBulkNotifications(ctx, targets, req)
}

// BroadcastAsync runs BroadcastNotification in the background
func (s *NotificationService) BroadcastAsync(req domain.CreateNotificationRequest, excludeUserIDs []string) {
	s.tasks.Go("broadcast", func(ctx context.Context) error {
		_, err := s.BroadcastNotification(ctx, req, excludeUserIDs)
		return err
	})
}

// MarkEmailFailed records that the email for a notification could not be sent
func (s *NotificationService) MarkEmailFailed(ctx context.Context, notificationID string, attempts int, errMsg string) error {
	now := s.now()
	return s.store.UpdateChannelStatus(ctx, notificationID, domain.ChannelEmail, domain.ChannelDelivery{
		Status:      domain.DeliveryFailed,
		RetryCount:  attempts,
		LastRetryAt: &now,
		Error:       errMsg,
	})
}

// GetNotifications lists a user's notifications
func (s *NotificationService) GetNotifications(ctx context.Context, filter domain.NotificationFilter) (*domain.NotificationPage, error) {
	if filter.UserID == "" {
		return nil, apperrors.NewValidationError("userId is required", nil)
	}
	page, err := s.store.Find(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list notifications", err)
	}
	return page, nil
}

// GetNotification returns one of the user's notifications
func (s *NotificationService) GetNotification(ctx context.Context, userID, notificationID string) (*domain.Notification, error) {
	if userID == "" || notificationID == "" {
		return nil, apperrors.NewValidationError("userId and notificationId are required", nil)
	}
	return s.store.FindByID(ctx, userID, notificationID)
}

// MarkAsRead marks notifications read and returns how many changed
func (s *NotificationService) MarkAsRead(ctx context.Context, userID string, notificationIDs []string) (int64, error) {
	if userID == "" {
		return 0, apperrors.NewValidationError("userId is required", nil)
	}
	return s.store.MarkAsRead(ctx, userID, notificationIDs)
}

// MarkAllAsRead marks all of the user's notifications read
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, apperrors.NewValidationError("userId is required", nil)
	}
	return s.store.MarkAllAsRead(ctx, userID)
}

// Archive archives one notification
func (s *NotificationService) Archive(ctx context.Context, userID, notificationID string) error {
	if userID == "" || notificationID == "" {
		return apperrors.NewValidationError("userId and notificationId are required", nil)
	}
	return s.store.Archive(ctx, userID, notificationID)
}

// Delete deletes one notification
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	if userID == "" || notificationID == "" {
		return apperrors.NewValidationError("userId and notificationId are required", nil)
	}
	return s.store.Delete(ctx, userID, notificationID)
}

// DeleteMany deletes several notifications
func (s *NotificationService) DeleteMany(ctx context.Context, userID string, notificationIDs []string) (int64, error) {
	if userID == "" {
		return 0, apperrors.NewValidationError("userId is required", nil)
	}
	return s.store.DeleteMany(ctx, userID, notificationIDs)
}

// GetSummary aggregates the user's notification counts
func (s *NotificationService) GetSummary(ctx context.Context, userID string) (*domain.NotificationSummary, error) {
	if userID == "" {
		return nil, apperrors.NewValidationError("userId is required", nil)
	}
	summary, err := s.store.GetSummary(ctx, userID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to summarise notifications", err)
	}
	return summary, nil
}
