// Package consumer turns transactions.created events into processing calls
// with bounded retries and dead-letter routing.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/transaction-stream-processor/internal/domain"
	"github.com/ayo6706/transaction-stream-processor/internal/models"
	"github.com/ayo6706/transaction-stream-processor/internal/observability"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryPolicy bounds handler re-invocations. MaxRetries counts retries after
// the first attempt. AttemptTimeout of zero leaves attempts unbounded.
type RetryPolicy struct {
	MaxRetries     int
	Delay          time.Duration
	AttemptTimeout time.Duration
	Retryable      func(error) bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Delay:      2 * time.Second,
		Retryable:  IsRetryable,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	retries := max(p.MaxRetries, 0)
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(retries)), ctx)
}

// Outcome is how a message was settled.
type Outcome string

const (
	OutcomeProcessed    Outcome = "processed"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeDeadLettered Outcome = "dead_lettered"
	// OutcomeFailed means the message was neither handled nor dead-lettered
	// and must be redelivered.
	OutcomeFailed Outcome = "failed"
)

// Processor applies the state transition for one transaction.
type Processor interface {
	ProcessByID(ctx context.Context, id domain.TransactionID) (domain.Transaction, error)
}

// Pipeline handles one message at a time.
type Pipeline struct {
	processor Processor
	sink      DeadLetterSink
	policy    RetryPolicy
}

func NewPipeline(processor Processor, sink DeadLetterSink, policy RetryPolicy) *Pipeline {
	if policy.Retryable == nil {
		policy.Retryable = IsRetryable
	}
	return &Pipeline{processor: processor, sink: sink, policy: policy}
}

// Handle decodes msg, processes the referenced transaction and settles it.
// A non-nil error is only returned with OutcomeFailed.
func (p *Pipeline) Handle(ctx context.Context, msg Message) (Outcome, error) {
	outcome, err := p.handle(ctx, msg)
	observability.IncrementConsumerOutcome(string(outcome))
	return outcome, err
}

func (p *Pipeline) handle(ctx context.Context, msg Message) (Outcome, error) {
	var event models.TransactionCreatedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return p.deadLetter(ctx, msg, fmt.Errorf("%w: %v", ErrMalformedEvent, err))
	}
	id, err := domain.ParseTransactionID(event.TransactionID)
	if err != nil {
		return p.deadLetter(ctx, msg, err)
	}

	logger := zap.L().With(zap.String("transaction_id", id.String()), zap.String("topic", msg.Topic))
	logger.Info("transaction event consumed")

	err = p.process(ctx, id)
	switch {
	case err == nil:
		return OutcomeProcessed, nil
	case errors.Is(err, domain.ErrAlreadyProcessed):
		logger.Info("duplicate delivery ignored, transaction already processed")
		return OutcomeDuplicate, nil
	case ctx.Err() != nil:
		return OutcomeFailed, fmt.Errorf("handler interrupted: %w", ctx.Err())
	default:
		return p.deadLetter(ctx, msg, err)
	}
}

func (p *Pipeline) process(ctx context.Context, id domain.TransactionID) error {
	attempt := 0
	op := func() error {
		attempt++
		attemptCtx, cancel := p.attemptContext(ctx)
		defer cancel()

		_, err := p.processor.ProcessByID(attemptCtx, id)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrAlreadyProcessed) || !p.policy.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		observability.IncrementConsumerRetry()
		zap.L().Warn("transaction processing failed, retrying",
			zap.String("transaction_id", id.String()),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	return backoff.RetryNotify(op, p.policy.backOff(ctx), notify)
}

func (p *Pipeline) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.policy.AttemptTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.policy.AttemptTimeout)
}

func (p *Pipeline) deadLetter(ctx context.Context, msg Message, cause error) (Outcome, error) {
	record := DeadLetter{
		Message:          msg,
		ExceptionClass:   ExceptionClass(cause),
		ExceptionMessage: cause.Error(),
	}
	if err := p.sink.DeadLetter(ctx, record); err != nil {
		zap.L().Error("dead-letter publish failed",
			zap.String("topic", msg.Topic),
			zap.String("exception_class", record.ExceptionClass),
			zap.Error(err),
		)
		return OutcomeFailed, fmt.Errorf("dead-letter message: %w", err)
	}
	zap.L().Warn("message dead-lettered",
		zap.String("topic", msg.Topic),
		zap.String("exception_class", record.ExceptionClass),
		zap.String("exception_message", record.ExceptionMessage),
	)
	return OutcomeDeadLettered, nil
}
