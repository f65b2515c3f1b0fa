package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/transaction-stream-processor/internal/broker"
	"github.com/ayo6706/transaction-stream-processor/internal/consumer"
	"github.com/ayo6706/transaction-stream-processor/internal/observability"
	"go.uber.org/zap"
)

// DeliverySource yields broker deliveries until ctx is done or the channel drops.
type DeliverySource interface {
	Deliveries(ctx context.Context) (<-chan broker.Delivery, error)
}

// MessageHandler settles one message.
type MessageHandler interface {
	Handle(ctx context.Context, msg consumer.Message) (consumer.Outcome, error)
}

// ConsumerWorker feeds transactions.created deliveries through the pipeline
// one at a time, acking handled messages and requeueing failed ones.
type ConsumerWorker struct {
	source         DeliverySource
	handler        MessageHandler
	resubscribeGap time.Duration
	stopCh         chan struct{}
	stopOnce       sync.Once
	done           chan struct{}
}

func NewConsumerWorker(source DeliverySource, handler MessageHandler) *ConsumerWorker {
	return &ConsumerWorker{
		source:         source,
		handler:        handler,
		resubscribeGap: 5 * time.Second,
		stopCh:         make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// WithResubscribeGap sets the pause before re-opening a dropped subscription.
func (w *ConsumerWorker) WithResubscribeGap(gap time.Duration) *ConsumerWorker {
	if gap > 0 {
		w.resubscribeGap = gap
	}
	return w
}

// Start blocks until Stop is called or ctx is canceled.
func (w *ConsumerWorker) Start(ctx context.Context) {
	defer close(w.done)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	zap.L().Info("consumer worker starting")
	for {
		deliveries, err := w.source.Deliveries(runCtx)
		if err != nil {
			observability.IncrementWorkerRun("consumer", "subscribe_failed")
			zap.L().Error("consumer subscribe failed", zap.Error(err))
		} else {
			w.drain(runCtx, deliveries)
		}

		select {
		case <-runCtx.Done():
			zap.L().Info("consumer worker stopped")
			return
		case <-time.After(w.resubscribeGap):
		}
	}
}

func (w *ConsumerWorker) drain(ctx context.Context, deliveries <-chan broker.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			w.handle(ctx, d)
		}
	}
}

func (w *ConsumerWorker) handle(ctx context.Context, d broker.Delivery) {
	outcome, err := w.handler.Handle(ctx, d.Message)
	if outcome == consumer.OutcomeFailed {
		observability.IncrementWorkerRun("consumer", "requeued")
		zap.L().Warn("message requeued", zap.String("topic", d.Message.Topic), zap.Error(err))
		if nackErr := d.Nack(true); nackErr != nil {
			zap.L().Error("nack failed", zap.Error(nackErr))
		}
		return
	}

	observability.IncrementWorkerRun("consumer", string(outcome))
	if ackErr := d.Ack(); ackErr != nil {
		zap.L().Error("ack failed", zap.String("outcome", string(outcome)), zap.Error(ackErr))
	}
}

// Stop signals the worker to stop and waits for the in-flight message.
func (w *ConsumerWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	<-w.done
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ConsumerWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *ConsumerWorker) String() string {
	return fmt.Sprintf("ConsumerWorker(resubscribe=%v)", w.resubscribeGap)
}
