package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures = 5
	openTimeout = 30 * time.Second
)

// Client publishes and consumes alert messages over a durable direct
// exchange. Publishing goes through a small circuit breaker so a dead broker
// fails fast instead of blocking every caller on a dial timeout.
type Client struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	url          string
	exchangeName string
	queueName    string

	failureCount int64
	state        int32
	lastFailure  time.Time
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.connect(); err != nil {
		return nil, err
	}

	return client, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.mu.Unlock()

	if err := c.setup(); err != nil {
		c.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	return nil
}

func (c *Client) setup() error {
	// Declare exchange
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// Declare queue
	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Bind queue to exchange
	err = c.channel.QueueBind(
		c.queueName,    // queue name
		c.queueName,    // routing key (same as queue name for direct exchange)
		c.exchangeName, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// exponentialBackoff returns the reconnect delay for the given attempt,
// doubling from one second and capped at 30 seconds.
func exponentialBackoff(attempt int) time.Duration {
	d := time.Second << uint(attempt)
	if d > 30*time.Second || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// isConnectionError reports whether the error looks like a broken broker
// connection, as opposed to a protocol or marshalling problem.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, needle := range []string{
		"connection refused",
		"connection closed",
		"EOF",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// isCircuitOpen reports whether publishing should fail fast. An open circuit
// transitions to half-open once the cool-down elapses, allowing one probe.
func (c *Client) isCircuitOpen() bool {
	switch atomic.LoadInt32(&c.state) {
	case StateOpen:
		c.mu.Lock()
		last := c.lastFailure
		c.mu.Unlock()
		if time.Since(last) > openTimeout {
			atomic.StoreInt32(&c.state, StateHalfOpen)
			return false
		}
		return true
	default:
		return false
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// PublishThresholdAlert publishes a budget threshold alert.
func (c *Client) PublishThresholdAlert(ctx context.Context, msg *ThresholdAlertMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, TypeThresholdAlert, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published threshold alert message",
		"message_id", msg.ID,
		"kind", msg.Kind,
		"category", msg.Category,
		"exchange", c.exchangeName,
		"queue", c.queueName)

	return nil
}

// PublishDueSoon publishes a near-due reminder.
func (c *Client) PublishDueSoon(ctx context.Context, msg *DueSoonMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, TypeDueSoon, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published due-soon message",
		"message_id", msg.ID,
		"title", msg.Title,
		"due_date", msg.DueDate)

	return nil
}

func (c *Client) publish(ctx context.Context, msgType string, body []byte) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("publish %s: circuit breaker is open", msgType)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		c.recordFailure()
		return fmt.Errorf("publish %s: no channel", msgType)
	}

	err := channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Type:         msgType,
			DeliveryMode: amqp091.Persistent, // make message persistent
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		if isConnectionError(err) {
			c.recordFailure()
		}
		return fmt.Errorf("publish message: %w", err)
	}

	c.recordSuccess()
	return nil
}

// redial re-establishes the broker connection, backing off between attempts.
func (c *Client) redial(ctx context.Context, attempts int) error {
	for i := 0; i < attempts; i++ {
		if err := c.connect(); err != nil {
			slog.WarnContext(ctx, "AMQP reconnect failed",
				"attempt", i+1,
				"error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(exponentialBackoff(i)):
			}
			continue
		}
		c.recordSuccess()
		return nil
	}
	return fmt.Errorf("redial: gave up after %d attempts", attempts)
}

// ConsumeMessages consumes alert messages with manual acks, routing each
// delivery by its Type header. Handler errors requeue the delivery; unknown
// or malformed messages are rejected without requeue. A closed broker
// channel triggers a reconnect with backoff. Blocks until ctx is cancelled
// or reconnecting gives up.
func (c *Client) ConsumeMessages(ctx context.Context, alertHandler func(context.Context, *ThresholdAlertMessage) error, dueSoonHandler func(context.Context, *DueSoonMessage) error) error {
	for {
		c.mu.Lock()
		channel := c.channel
		c.mu.Unlock()
		if channel == nil {
			return fmt.Errorf("start consuming: no channel")
		}

		msgs, err := channel.Consume(
			c.queueName, // queue
			"",          // consumer
			false,       // auto-ack (we want manual ack)
			false,       // exclusive
			false,       // no-local
			false,       // no-wait
			nil,         // args
		)
		if err != nil {
			return fmt.Errorf("start consuming: %w", err)
		}

		slog.InfoContext(ctx, "Started consuming alert messages", "queue", c.queueName)

		if err := c.consumeLoop(ctx, msgs, alertHandler, dueSoonHandler); err != nil {
			return err
		}

		// Delivery channel closed underneath us: reconnect and resume.
		slog.WarnContext(ctx, "AMQP delivery channel closed, reconnecting")
		if err := c.redial(ctx, maxFailures); err != nil {
			return fmt.Errorf("reconnect consumer: %w", err)
		}
	}
}

// consumeLoop drains deliveries until ctx is cancelled (returned as error)
// or the channel closes (returned as nil, signalling a reconnect).
func (c *Client) consumeLoop(ctx context.Context, msgs <-chan amqp091.Delivery, alertHandler func(context.Context, *ThresholdAlertMessage) error, dueSoonHandler func(context.Context, *DueSoonMessage) error) error {
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return nil
			}
			c.dispatch(ctx, delivery, alertHandler, dueSoonHandler)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, delivery amqp091.Delivery, alertHandler func(context.Context, *ThresholdAlertMessage) error, dueSoonHandler func(context.Context, *DueSoonMessage) error) {
	var err error
	switch delivery.Type {
	case TypeThresholdAlert:
		var msg *ThresholdAlertMessage
		if msg, err = ThresholdAlertMessageFromJSON(delivery.Body); err == nil {
			err = alertHandler(ctx, msg)
		}
	case TypeDueSoon:
		var msg *DueSoonMessage
		if msg, err = DueSoonMessageFromJSON(delivery.Body); err == nil {
			err = dueSoonHandler(ctx, msg)
		}
	default:
		slog.WarnContext(ctx, "Unknown message type", "type", delivery.Type)
		delivery.Nack(false, false) // reject and don't requeue
		return
	}

	if err != nil {
		slog.ErrorContext(ctx, "Failed to handle message",
			"type", delivery.Type,
			"error", err)
		delivery.Nack(false, true) // reject and requeue
		return
	}

	delivery.Ack(false)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
