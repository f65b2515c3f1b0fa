package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ayo6706/transaction-stream-processor/internal/broker"
	"github.com/ayo6706/transaction-stream-processor/internal/consumer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanSource struct {
	ch chan broker.Delivery
}

func (s *chanSource) Deliveries(context.Context) (<-chan broker.Delivery, error) {
	return s.ch, nil
}

type outcomeHandler struct {
	mu       sync.Mutex
	outcomes map[string]consumer.Outcome
	seen     []string
}

func (h *outcomeHandler) Handle(_ context.Context, msg consumer.Message) (consumer.Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, msg.Key)
	out := h.outcomes[msg.Key]
	if out == consumer.OutcomeFailed {
		return out, errors.New("sink down")
	}
	return out, nil
}

type settlement struct {
	acked    atomic.Bool
	requeued atomic.Bool
	done     chan struct{}
}

func newDelivery(key string, s *settlement) broker.Delivery {
	return broker.NewDelivery(
		consumer.Message{Topic: "transactions.created", Key: key},
		func() error { s.acked.Store(true); close(s.done); return nil },
		func(requeue bool) error { s.requeued.Store(requeue); close(s.done); return nil },
	)
}

func TestConsumerWorker_SettlesByOutcome(t *testing.T) {
	source := &chanSource{ch: make(chan broker.Delivery)}
	handler := &outcomeHandler{outcomes: map[string]consumer.Outcome{
		"ok":   consumer.OutcomeProcessed,
		"dup":  consumer.OutcomeDuplicate,
		"dlq":  consumer.OutcomeDeadLettered,
		"fail": consumer.OutcomeFailed,
	}}
	w := NewConsumerWorker(source, handler).WithResubscribeGap(time.Millisecond)
	stop := w.Run(context.Background())

	results := map[string]*settlement{}
	for _, key := range []string{"ok", "dup", "dlq", "fail"} {
		s := &settlement{done: make(chan struct{})}
		results[key] = s
		source.ch <- newDelivery(key, s)
		select {
		case <-s.done:
		case <-time.After(time.Second):
			t.Fatalf("delivery %s was not settled", key)
		}
	}
	stop()

	for _, key := range []string{"ok", "dup", "dlq"} {
		assert.True(t, results[key].acked.Load(), key)
	}
	assert.False(t, results["fail"].acked.Load())
	assert.True(t, results["fail"].requeued.Load())
	assert.Equal(t, []string{"ok", "dup", "dlq", "fail"}, handler.seen)
}

type countingReconciler struct {
	runs atomic.Int32
}

func (r *countingReconciler) Run(context.Context) (int64, error) {
	r.runs.Add(1)
	return 0, nil
}

func TestReconciliationWorker_RunsOnStartAndTicks(t *testing.T) {
	rec := &countingReconciler{}
	stop := NewReconciliationWorker(rec).WithInterval(5 * time.Millisecond).Run(context.Background())
	defer stop()

	require.Eventually(t, func() bool { return rec.runs.Load() >= 2 }, time.Second, time.Millisecond)
}
