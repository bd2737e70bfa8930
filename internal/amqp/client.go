// Package amqp publishes expense events to RabbitMQ and reads them back.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"budgetwise/internal/core"
	applog "budgetwise/internal/log"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

var ErrCircuitOpen = errors.New("amqp: circuit breaker is open")

// channel is the subset of *amqp091.Channel the client drives.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	Close() error
}

type dialFunc func(url string) (closer func() error, ch channel, err error)

func dialBroker(url string) (func() error, channel, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return conn.Close, ch, nil
}

// Client publishes ExpenseCategorizedMessage events to a topic exchange.
// The connection is opened lazily and reopened after connection errors.
type Client struct {
	url          string
	exchangeName string
	routingKey   string
	logger       *applog.Logger
	dial         dialFunc
	now          func() time.Time

	mu        sync.Mutex
	closeConn func() error
	channel   channel

	state        int32
	failureCount int64
	failureMu    sync.Mutex
	lastFailure  time.Time
}

func NewClient(url, exchangeName, routingKey string, logger *applog.Logger) *Client {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Client{
		url:          url,
		exchangeName: exchangeName,
		routingKey:   routingKey,
		logger:       logger.WithComponent(applog.ComponentAMQP),
		dial:         dialBroker,
		now:          time.Now,
	}
}

// Connect opens the connection, retrying with exponential backoff until it
// succeeds or ctx is done.
func (c *Client) Connect(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		c.mu.Lock()
		_, err := c.channelLocked()
		c.mu.Unlock()
		if err == nil {
			return nil
		}

		wait := exponentialBackoff(attempt)
		c.logger.WarnContext(ctx, "AMQP connect failed, retrying",
			applog.FieldError, err, "attempt", attempt+1, "backoff", wait)

		select {
		case <-ctx.Done():
			return fmt.Errorf("connect AMQP: %w", err)
		case <-time.After(wait):
		}
	}
}

func (c *Client) channelLocked() (channel, error) {
	if c.channel != nil {
		return c.channel, nil
	}
	closeConn, ch, err := c.dial(c.url)
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(c.exchangeName, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		closeConn()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	c.closeConn, c.channel = closeConn, ch
	return ch, nil
}

func (c *Client) resetLocked() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.closeConn != nil {
		c.closeConn()
	}
	c.channel, c.closeConn = nil, nil
}

// PublishExpenseCategorized publishes one persistent event for rec.
func (c *Client) PublishExpenseCategorized(ctx context.Context, rec core.ExpenseRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return ErrCircuitOpen
	}

	body, err := NewExpenseCategorizedMessage(rec, c.now()).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch, err := c.channelLocked()
	if err != nil {
		c.recordFailure()
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(pubCtx, c.exchangeName, c.routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    rec.ID,
		Timestamp:    c.now(),
		Body:         body,
	})
	if err != nil {
		if isConnectionError(err) {
			c.resetLocked()
		}
		c.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	c.logger.DebugContext(ctx, "Published expense event",
		applog.FieldExpenseID, rec.ID,
		"exchange", c.exchangeName,
		"routing_key", c.routingKey)
	return nil
}

// Consume binds queue to the exchange and hands each decoded event to
// handler until ctx is done. Handler errors requeue the delivery;
// undecodable bodies are dropped.
func (c *Client) Consume(ctx context.Context, queue string, handler func(*ExpenseCategorizedMessage) error) error {
	c.mu.Lock()
	ch, err := c.channelLocked()
	if err == nil {
		err = c.declareQueue(ch, queue)
	}
	var deliveries <-chan amqp091.Delivery
	if err == nil {
		deliveries, err = ch.Consume(queue, "", false, false, false, false, nil)
	}
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "Consuming expense events", "queue", queue)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handleDelivery(ctx, d, handler)
		}
	}
}

func (c *Client) declareQueue(ch channel, queue string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue, c.routingKey, c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

func (c *Client) handleDelivery(ctx context.Context, d amqp091.Delivery, handler func(*ExpenseCategorizedMessage) error) {
	msg, err := ExpenseCategorizedMessageFromJSON(d.Body)
	if err != nil {
		c.logger.ErrorContext(ctx, "Dropping undecodable event", applog.FieldError, err)
		d.Nack(false, false)
		return
	}
	if err := handler(msg); err != nil {
		c.logger.ErrorContext(ctx, "Event handler failed",
			applog.FieldError, err, applog.FieldExpenseID, msg.ID)
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.failureMu.Lock()
	last := c.lastFailure
	c.failureMu.Unlock()
	if c.now().Sub(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.failureMu.Lock()
	c.lastFailure = c.now()
	c.failureMu.Unlock()

	n := atomic.AddInt64(&c.failureCount, 1)
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		if atomic.SwapInt32(&c.state, StateOpen) != StateOpen {
			c.logger.Warn("AMQP circuit breaker opened", "failures", n)
		}
	}
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	return nil
}
