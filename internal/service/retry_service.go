package service

import (
	"context"
	"time"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	"github.com/vhvplatform/go-notification-orchestrator/internal/metrics"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/logger"
)

// RetrySweepResult reports one pass of the retry sweep
type RetrySweepResult struct {
	Channel   domain.Channel `json:"channel"`
	Attempted int            `json:"attempted"`
	Delivered int            `json:"delivered"`
	Failed    int            `json:"failed"`
	Exhausted int64          `json:"exhausted"`
}

// RetryService re-dispatches failed channel deliveries until they reach the retry cap
type RetryService struct {
	store      NotificationStore
	sender     ChannelSender
	maxRetries int
	log        *logger.Logger
	now        func() time.Time
}

// NewRetryService creates a retry sweep for the sender's channel
func NewRetryService(store NotificationStore, sender ChannelSender, maxRetries int, log *logger.Logger) *RetryService {
	return &RetryService{
		store:      store,
		sender:     sender,
		maxRetries: maxRetries,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Sweep retries every failed delivery below the cap once
func (s *RetryService) Sweep(ctx context.Context) (*RetrySweepResult, error) {
	ch := s.sender.Channel()
	result := &RetrySweepResult{Channel: ch}

	failed, err := s.store.GetFailedForRetry(ctx, ch, s.maxRetries)
	if err != nil {
		return nil, err
	}

	for _, n := range failed {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		current, _ := n.Delivery(ch)
		result.Attempted++

		outcome := s.send(ctx, Delivery{Notification: n, Attempt: current.RetryCount + 1})
		next := applyOutcome(current, outcome, s.now(), true)
		if next.Status == domain.DeliveryDelivered {
			result.Delivered++
		} else {
			result.Failed++
		}
		metrics.ChannelDeliveries.WithLabelValues(string(ch), string(next.Status)).Inc()

		if err := s.store.UpdateChannelStatus(ctx, n.NotificationID, ch, next); err != nil {
			s.log.Error("Failed to record retry outcome", "notification_id", n.NotificationID, "channel", ch, "error", err)
		}
	}

	exhausted, err := s.store.CountExhausted(ctx, ch, s.maxRetries)
	if err != nil {
		s.log.Warn("Failed to count exhausted deliveries", "channel", ch, "error", err)
	} else {
		result.Exhausted = exhausted
		metrics.DeadLetters.WithLabelValues(string(ch)).Set(float64(exhausted))
	}

	if result.Attempted > 0 {
		s.log.Info("Retry sweep finished",
			"channel", ch,
			"attempted", result.Attempted,
			"delivered", result.Delivered,
			"failed", result.Failed,
			"exhausted", result.Exhausted,
		)
	}
	return result, nil
}

func (s *RetryService) send(ctx context.Context, d Delivery) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Status: domain.DeliveryFailed, Error: "sender panicked"}
		}
	}()
	out = s.sender.Send(ctx, d)
	// a retried delivery that does not succeed stays FAILED
	if out.Status != domain.DeliveryDelivered && out.Status != domain.DeliverySent {
		out.Status = domain.DeliveryFailed
	}
	return out
}
