// Package broker carries transaction events over RabbitMQ.
//
// Topics map to routing keys on a durable topic exchange. Messages that
// cannot be handled are republished to a dead-letter exchange bound to a
// single dead-letter queue.
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ayo6706/transaction-stream-processor/internal/domain"
	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	defaultExchangeType = "topic"
	defaultDLXSuffix    = ".dlx"
	defaultBindingKey   = "#"

	// PartitionKeyHeader carries the ordering key of an event.
	PartitionKeyHeader = "x-partition-key"
)

var ErrNotConnected = errors.New("rabbitmq connection is closed")

// Config names the exchanges and queues this service owns.
type Config struct {
	URL         string
	Exchange    string
	DLXExchange string
	DLQName     string
	Queue       string
	Prefetch    int
}

func (c Config) withDefaults() Config {
	if c.DLXExchange == "" {
		c.DLXExchange = c.Exchange + defaultDLXSuffix
	}
	if c.DLQName == "" {
		c.DLQName = domain.TopicTransactionDLQ
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 1
	}
	return c
}

// amqpConnection is the part of *amqp.Connection the client relies on.
type amqpConnection interface {
	Channel() (*amqp.Channel, error)
	IsClosed() bool
	Close() error
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
}

type dialFunc func(url string) (amqpConnection, error)

// Client owns the AMQP connection shared by the publisher and the subscriber.
// A connection closed by the server or the network is redialed in the
// background, and Channel redials on demand if that has not happened yet.
type Client struct {
	mu         sync.Mutex
	conn       amqpConnection
	dial       dialFunc
	cfg        Config
	closed     bool
	ctx        context.Context
	cancel     context.CancelFunc
	newBackOff func() backoff.BackOff
}

func Dial(cfg Config) (*Client, error) {
	return dialWith(cfg, func(url string) (amqpConnection, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}

func dialWith(cfg Config, dial dialFunc) (*Client, error) {
	if strings.TrimSpace(cfg.Exchange) == "" {
		return nil, fmt.Errorf("broker exchange is required")
	}
	conn, err := dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		dial:       dial,
		cfg:        cfg.withDefaults(),
		ctx:        ctx,
		cancel:     cancel,
		newBackOff: defaultReconnectBackOff,
	}
	c.mu.Lock()
	c.attach(conn)
	c.mu.Unlock()
	return c, nil
}

func defaultReconnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func (c *Client) Config() Config { return c.cfg }

// attach installs conn and watches it for an unexpected close. Callers hold c.mu.
func (c *Client) attach(conn amqpConnection) {
	c.conn = conn
	notify := conn.NotifyClose(make(chan *amqp.Error, 1))
	go c.watch(notify)
}

func (c *Client) watch(notify chan *amqp.Error) {
	select {
	case <-c.ctx.Done():
		return
	case amqpErr, ok := <-notify:
		// A graceful Close closes notify without an error.
		if !ok || amqpErr == nil {
			return
		}
		zap.L().Warn("rabbitmq connection lost, reconnecting",
			zap.Int("code", amqpErr.Code),
			zap.String("reason", amqpErr.Reason),
		)
		c.reconnect()
	}
}

func (c *Client) reconnect() {
	op := func() error {
		if _, err := c.connection(); err != nil {
			if errors.Is(err, ErrNotConnected) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		zap.L().Warn("rabbitmq reconnect failed", zap.Duration("retry_in", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), c.ctx), notify); err != nil {
		zap.L().Info("rabbitmq reconnect stopped", zap.Error(err))
	}
}

// connection returns an open connection, redialing when the current one is closed.
func (c *Client) connection() (amqpConnection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrNotConnected
	}
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn, nil
	}
	conn, err := c.dial(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redial rabbitmq: %w", err)
	}
	c.attach(conn)
	zap.L().Info("rabbitmq connection re-established")
	return conn, nil
}

// Channel opens a channel on the current connection. Topology is durable, so
// a redialed connection needs no re-declaration.
func (c *Client) Channel() (*amqp.Channel, error) {
	conn, err := c.connection()
	if err != nil {
		return nil, err
	}
	return conn.Channel()
}

// DeclareTopology declares the event exchange, the dead-letter exchange and
// queue, and the consumer queue bound to transactions.created.
func (c *Client) DeclareTopology() error {
	ch, err := c.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(c.cfg.Exchange, defaultExchangeType, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(c.cfg.DLXExchange, defaultExchangeType, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlx exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(c.cfg.DLQName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlq queue: %w", err)
	}
	if err := ch.QueueBind(c.cfg.DLQName, defaultBindingKey, c.cfg.DLXExchange, false, nil); err != nil {
		return fmt.Errorf("bind dlq to dlx: %w", err)
	}

	if c.cfg.Queue == "" {
		return nil
	}
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, dlxArgs(c.cfg.DLXExchange)); err != nil {
		return fmt.Errorf("declare consumer queue: %w", err)
	}
	if err := ch.QueueBind(c.cfg.Queue, domain.TopicTransactionCreated, c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind consumer queue: %w", err)
	}
	return nil
}

// Ping reports whether the connection is currently open.
func (c *Client) Ping() error {
	if c == nil {
		return ErrNotConnected
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil || c.conn.IsClosed() {
		return ErrNotConnected
	}
	return nil
}

// Close stops reconnecting and closes the connection.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}

func dlxArgs(dlxExchange string) amqp.Table {
	return amqp.Table{"x-dead-letter-exchange": dlxExchange}
}
