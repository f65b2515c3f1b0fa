package service

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/transaction-stream-processor/internal/domain"
	"github.com/ayo6706/transaction-stream-processor/internal/models"
	"github.com/ayo6706/transaction-stream-processor/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessByID(t *testing.T) {
	store := repository.NewMemoryStore()
	pub := &recordingPublisher{}
	ctx := context.Background()

	created, err := NewCreationService(store, &recordingPublisher{}).Submit(ctx, submitCmd("R1"))
	require.NoError(t, err)

	svc := NewProcessingService(store, pub)
	processed, err := svc.ProcessByID(ctx, created.Transaction.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusProcessed, processed.Status())

	stored, ok, err := store.FindByID(ctx, created.Transaction.ID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.TxStatusProcessed, stored.Status())
	assert.Equal(t, 1, store.Count())

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.TopicTransactionProcessed, events[0].Topic)
	evt := decodeEvent[models.TransactionProcessedEvent](t, events[0])
	assert.Equal(t, created.Transaction.ID().String(), evt.TransactionID)
	assert.Equal(t, "PROCESSED", evt.Status)
	assert.True(t, evt.ProcessedAt.Equal(created.Transaction.OccurredAt()))

	_, err = svc.ProcessByID(ctx, created.Transaction.ID())
	require.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	assert.Len(t, pub.Events(), 1)
}

func TestProcessByID_NotFound(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewProcessingService(repository.NewMemoryStore(), pub)

	_, err := svc.ProcessByID(context.Background(), domain.NewTransactionID())
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
	assert.Empty(t, pub.Events())
}

func TestProcessByID_SaveFailureDoesNotPublish(t *testing.T) {
	mem := repository.NewMemoryStore()
	tx := newStoredTransaction(t, "R1")
	_, err := mem.Save(context.Background(), tx)
	require.NoError(t, err)

	pub := &recordingPublisher{}
	svc := NewProcessingService(&failingStore{MemoryStore: mem, saveErr: domain.ErrStore}, pub)

	_, err = svc.ProcessByID(context.Background(), tx.ID())
	require.ErrorIs(t, err, domain.ErrStore)
	assert.Empty(t, pub.Events())

	stored, _, _ := mem.FindByID(context.Background(), tx.ID())
	assert.Equal(t, domain.TxStatusCreated, stored.Status())
}

func TestProcessByID_PublishFailureKeepsState(t *testing.T) {
	mem := repository.NewMemoryStore()
	tx := newStoredTransaction(t, "R1")
	_, err := mem.Save(context.Background(), tx)
	require.NoError(t, err)

	svc := NewProcessingService(mem, &recordingPublisher{err: errStoreDown})
	_, err = svc.ProcessByID(context.Background(), tx.ID())
	require.NoError(t, err)

	stored, _, _ := mem.FindByID(context.Background(), tx.ID())
	assert.Equal(t, domain.TxStatusProcessed, stored.Status())
}

func TestTransactionService(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	tx := newStoredTransaction(t, "R1")
	_, err := store.Save(ctx, tx)
	require.NoError(t, err)

	svc := NewTransactionService(store, store)
	got, err := svc.Get(ctx, tx.ID())
	require.NoError(t, err)
	assert.True(t, got.Equal(tx))

	history, err := svc.History(ctx, tx.ID())
	require.NoError(t, err)
	require.Len(t, history, 1)

	_, err = svc.Get(ctx, domain.NewTransactionID())
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
	_, err = svc.History(ctx, domain.NewTransactionID())
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestReconciliationRun(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	for _, ref := range []string{"A", "B"} {
		_, err := store.Save(ctx, newStoredTransaction(t, ref))
		require.NoError(t, err)
	}

	svc := NewReconciliationService(store, time.Minute)
	count, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	count, err = svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
