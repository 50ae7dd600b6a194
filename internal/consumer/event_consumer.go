// Package consumer turns domain events from RabbitMQ into notifications.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	"github.com/vhvplatform/go-notification-orchestrator/internal/metrics"
	apperrors "github.com/vhvplatform/go-notification-orchestrator/internal/shared/errors"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/logger"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/rabbitmq"
)

const (
	eventExchange   = "hr.events"
	eventRoutingKey = "notification.#"
	consumerTag     = "notification-orchestrator"
)

// errMalformed marks events that can never be processed
var errMalformed = errors.New("malformed event")

// Broker is the subset of the RabbitMQ client the consumer needs
type Broker interface {
	DeclareExchange(name, kind string) error
	DeclareQueue(name string) error
	BindQueue(queue, routingKey, exchange string) error
	Consume(queue, consumerTag string) (<-chan rabbitmq.Message, error)
}

// Notifier creates notifications from events
type Notifier interface {
	CreateNotification(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error)
	CreateBulkNotifications(ctx context.Context, userIDs []string, req domain.CreateNotificationRequest) ([]*domain.Notification, error)
	BroadcastNotification(ctx context.Context, req domain.CreateNotificationRequest, excludeUserIDs []string) ([]*domain.Notification, error)
}

// EventConsumer consumes domain events from RabbitMQ
type EventConsumer struct {
	broker       Broker
	notifier     Notifier
	queue        string
	restartDelay time.Duration
	log          *logger.Logger
}

// NewEventConsumer creates a new event consumer
func NewEventConsumer(broker Broker, notifier Notifier, queue string, log *logger.Logger) *EventConsumer {
	return &EventConsumer{
		broker:       broker,
		notifier:     notifier,
		queue:        queue,
		restartDelay: 5 * time.Second,
		log:          log,
	}
}

// Setup declares the exchange and queue and binds them
func (c *EventConsumer) Setup() error {
	if err := c.broker.DeclareExchange(eventExchange, "topic"); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if err := c.broker.DeclareQueue(c.queue); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := c.broker.BindQueue(c.queue, eventRoutingKey, eventExchange); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// Run consumes until ctx is cancelled. A closed delivery channel restarts
// consumption after a delay.
func (c *EventConsumer) Run(ctx context.Context) error {
	c.log.Info("Starting event consumer", "queue", c.queue)
	for {
		msgs, err := c.broker.Consume(c.queue, consumerTag)
		if err != nil {
			c.log.Error("Failed to start consuming", "queue", c.queue, "error", err)
		} else {
			c.drain(ctx, msgs)
		}

		if ctx.Err() != nil {
			return nil
		}
		metrics.ConsumerRestarts.Inc()
		c.log.Warn("Event consumer stopped, restarting", "delay", c.restartDelay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.restartDelay):
		}
	}
}

func (c *EventConsumer) drain(ctx context.Context, msgs <-chan rabbitmq.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			c.settle(msg, c.Handle(ctx, msg.Body))
		}
	}
}

// settle acks processed events, drops malformed or invalid ones and
// requeues transient failures.
func (c *EventConsumer) settle(msg rabbitmq.Message, err error) {
	var settleErr error
	switch {
	case err == nil:
		settleErr = msg.Ack(false)
	case errors.Is(err, errMalformed), apperrors.IsCode(err, apperrors.CodeValidation):
		c.log.Error("Dropping event", "routing_key", msg.RoutingKey, "error", err)
		settleErr = msg.Nack(false, false)
	default:
		c.log.Error("Failed to process event", "routing_key", msg.RoutingKey, "error", err)
		settleErr = msg.Nack(false, true)
	}
	if settleErr != nil {
		c.log.Error("Failed to settle event message", "error", settleErr)
	}
}

// Handle decodes one event and routes it to a single user, a list of users
// or a broadcast.
func (c *EventConsumer) Handle(ctx context.Context, body []byte) error {
	var event domain.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if !event.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", errMalformed, event.Type)
	}

	switch {
	case event.Broadcast:
		created, err := c.notifier.BroadcastNotification(ctx, event.ToRequest(""), event.ExcludeUserIDs)
		if err != nil {
			return err
		}
		c.log.Info("Broadcast event processed", "type", event.Type, "created", len(created))
	case len(event.UserIDs) > 0:
		created, err := c.notifier.CreateBulkNotifications(ctx, event.UserIDs, event.ToRequest(""))
		if err != nil {
			return err
		}
		c.log.Info("Bulk event processed", "type", event.Type, "created", len(created))
	case event.UserID != "":
		n, err := c.notifier.CreateNotification(ctx, event.ToRequest(event.UserID))
		if err != nil {
			return err
		}
		c.log.Debug("Event processed", "type", event.Type, "user_id", event.UserID, "created", n != nil)
	default:
		return fmt.Errorf("%w: no recipients", errMalformed)
	}
	return nil
}
