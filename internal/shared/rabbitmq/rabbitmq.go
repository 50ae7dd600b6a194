package rabbitmq

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// MaxPriority is the x-max-priority argument used for priority queues
const MaxPriority = 10

// ErrClosed is returned when the connection is no longer open
var ErrClosed = errors.New("rabbitmq connection closed")

// RabbitMQClient wraps the RabbitMQ connection
type RabbitMQClient struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	mu      sync.Mutex
}

// Message represents a RabbitMQ message
type Message struct {
	Body       []byte
	RoutingKey string
	Headers    map[string]interface{}
	delivery   amqp091.Delivery
}

// Ack acknowledges a message
func (m *Message) Ack(multiple bool) error {
	return m.delivery.Ack(multiple)
}

// Nack negative acknowledges a message
func (m *Message) Nack(multiple, requeue bool) error {
	return m.delivery.Nack(multiple, requeue)
}

// NewRabbitMQClient creates a new RabbitMQ client
func NewRabbitMQClient(url string) (*RabbitMQClient, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &RabbitMQClient{
		conn:    conn,
		channel: channel,
	}, nil
}

// Ping reports whether the connection and channel are still open
func (c *RabbitMQClient) Ping() error {
	if c == nil || c.conn == nil || c.conn.IsClosed() || c.channel == nil || c.channel.IsClosed() {
		return ErrClosed
	}
	return nil
}

// DeclareExchange declares an exchange
func (c *RabbitMQClient) DeclareExchange(name, kind string) error {
	return c.channel.ExchangeDeclare(
		name,
		kind,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
}

// DeclareQueue declares a queue
func (c *RabbitMQClient) DeclareQueue(name string) error {
	_, err := c.channel.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	return err
}

// DeclarePriorityQueue declares a durable queue that honours message priority
func (c *RabbitMQClient) DeclarePriorityQueue(name string) error {
	_, err := c.channel.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		amqp091.Table{"x-max-priority": int32(MaxPriority)},
	)
	return err
}

// DeclareDelayQueue declares a durable queue with no consumers. Messages
// published to it dead-letter into target through the default exchange once
// their per-message expiration elapses.
func (c *RabbitMQClient) DeclareDelayQueue(name, target string) error {
	_, err := c.channel.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		amqp091.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": target,
		},
	)
	return err
}

// BindQueue binds a queue to an exchange
func (c *RabbitMQClient) BindQueue(queue, routingKey, exchange string) error {
	return c.channel.QueueBind(
		queue,
		routingKey,
		exchange,
		false, // no-wait
		nil,   // arguments
	)
}

// Qos limits the number of unacknowledged deliveries per consumer
func (c *RabbitMQClient) Qos(prefetch int) error {
	return c.channel.Qos(prefetch, 0, false)
}

// Consume starts consuming messages from a queue
func (c *RabbitMQClient) Consume(queue, consumerTag string) (<-chan Message, error) {
	msgs, err := c.channel.Consume(
		queue,
		consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, err
	}

	// Convert to our Message type
	messageChan := make(chan Message)
	go func() {
		for d := range msgs {
			messageChan <- Message{
				Body:       d.Body,
				RoutingKey: d.RoutingKey,
				Headers:    d.Headers,
				delivery:   d,
			}
		}
		close(messageChan)
	}()

	return messageChan, nil
}

// Publish publishes a message to an exchange
func (c *RabbitMQClient) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	return c.PublishWithPriority(ctx, exchange, routingKey, body, 0)
}

// PublishWithPriority publishes a persistent message carrying an AMQP priority
func (c *RabbitMQClient) PublishWithPriority(ctx context.Context, exchange, routingKey string, body []byte, priority uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.channel.PublishWithContext(
		ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Priority:     priority,
			Body:         body,
		},
	)
}

// PublishDelayed publishes a persistent message to a delay queue through the
// default exchange. The message expires after delay and is dead-lettered to
// the queue the delay queue was declared for.
func (c *RabbitMQClient) PublishDelayed(ctx context.Context, queue string, body []byte, priority uint8, delay time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ms := delay.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return c.channel.PublishWithContext(
		ctx,
		"",
		queue,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Priority:     priority,
			Expiration:   strconv.FormatInt(ms, 10),
			Body:         body,
		},
	)
}

// Close closes the RabbitMQ connection
func (c *RabbitMQClient) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
