package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/transaction-stream-processor/internal/domain"
	"github.com/ayo6706/transaction-stream-processor/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type publishedEvent struct {
	Topic        string
	PartitionKey string
	Payload      []byte
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic, partitionKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{Topic: topic, PartitionKey: partitionKey, Payload: payload})
	return nil
}

func (p *recordingPublisher) Events() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedEvent, len(p.events))
	copy(out, p.events)
	return out
}

func decodeEvent[T any](t *testing.T, e publishedEvent) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(e.Payload, &out))
	return out
}

// racingStore inserts a competing transaction right before the first Save,
// simulating a concurrent submitter that wins the reference race.
type racingStore struct {
	*repository.MemoryStore
	once   sync.Once
	winner domain.Transaction
}

func (s *racingStore) Save(ctx context.Context, tx domain.Transaction) (repository.SaveResult, error) {
	s.once.Do(func() {
		_, _ = s.MemoryStore.Save(ctx, s.winner)
	})
	return s.MemoryStore.Save(ctx, tx)
}

var errStoreDown = errors.New("connection refused")

type failingStore struct {
	*repository.MemoryStore
	saveErr error
	findErr error
}

func (s *failingStore) Save(ctx context.Context, tx domain.Transaction) (repository.SaveResult, error) {
	if s.saveErr != nil {
		return repository.SaveResult{}, s.saveErr
	}
	return s.MemoryStore.Save(ctx, tx)
}

func (s *failingStore) FindByID(ctx context.Context, id domain.TransactionID) (domain.Transaction, bool, error) {
	if s.findErr != nil {
		return domain.Transaction{}, false, s.findErr
	}
	return s.MemoryStore.FindByID(ctx, id)
}

type mapIndex struct {
	mu  sync.Mutex
	ids map[string]domain.TransactionID
}

func newMapIndex() *mapIndex {
	return &mapIndex{ids: make(map[string]domain.TransactionID)}
}

func (m *mapIndex) Lookup(_ context.Context, ref string) (domain.TransactionID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.ids[ref]
	return id, ok
}

func (m *mapIndex) Remember(_ context.Context, ref string, id domain.TransactionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ids[ref]; !ok {
		m.ids[ref] = id
	}
}

func submitCmd(ref string) SubmitTransactionCmd {
	return SubmitTransactionCmd{
		Amount:            decimal.RequireFromString("100"),
		Currency:          "BRL",
		Type:              "CREDIT",
		OccurredAt:        time.Now().Add(-time.Minute),
		ExternalReference: ref,
	}
}

func newStoredTransaction(t *testing.T, ref string) domain.Transaction {
	t.Helper()
	tx, err := buildTransaction(submitCmd(ref))
	require.NoError(t, err)
	return tx
}
