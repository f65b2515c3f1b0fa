package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/transaction-stream-processor/internal/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultConfirmTimeout = 5 * time.Second

// confirmChannel is the part of *amqp.Channel the publisher relies on.
type confirmChannel interface {
	Confirm(noWait bool) error
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	IsClosed() bool
	Close() error
}

// Publisher sends events in confirm mode and waits for the broker ack. A
// closed channel is reopened on the next publish.
type Publisher struct {
	mu             sync.Mutex
	ch             confirmChannel
	open           func() (confirmChannel, error)
	exchange       string
	dlxExchange    string
	confirmTimeout time.Duration
	closed         bool
}

func NewPublisher(c *Client) (*Publisher, error) {
	p := newPublisher(c.cfg, func() (confirmChannel, error) {
		ch, err := c.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.channel(); err != nil {
		return nil, err
	}
	return p, nil
}

func newPublisher(cfg Config, open func() (confirmChannel, error)) *Publisher {
	return &Publisher{
		open:           open,
		exchange:       cfg.Exchange,
		dlxExchange:    cfg.DLXExchange,
		confirmTimeout: DefaultConfirmTimeout,
	}
}

// channel returns the confirm-mode channel, reopening it after a close.
// Callers hold p.mu.
func (p *Publisher) channel() (confirmChannel, error) {
	if p.closed {
		return nil, ErrNotConnected
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.open()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}
	p.ch = ch
	return ch, nil
}

// Publish sends payload to topic. partitionKey travels as a header so that
// downstream consumers can keep per-reference ordering.
func (p *Publisher) Publish(ctx context.Context, topic, partitionKey string, payload []byte) error {
	return p.publish(ctx, p.exchange, topic, newPublishing(payload, amqp.Table{PartitionKeyHeader: partitionKey}))
}

func (p *Publisher) publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPublish, err)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()

	dc, err := ch.PublishWithDeferredConfirmWithContext(confirmCtx, exchange, routingKey, false, false, msg)
	if err != nil {
		return fmt.Errorf("%w: publish to %s: %v", domain.ErrPublish, routingKey, err)
	}
	if dc == nil {
		return nil
	}
	acked, err := dc.WaitContext(confirmCtx)
	if err != nil {
		return fmt.Errorf("%w: confirm %s: %v", domain.ErrPublish, routingKey, err)
	}
	if !acked {
		return fmt.Errorf("%w: message to %s was nacked by broker", domain.ErrPublish, routingKey)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.ch == nil || p.ch.IsClosed() {
		return nil
	}
	return p.ch.Close()
}

func newPublishing(payload []byte, headers amqp.Table) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         payload,
	}
}
