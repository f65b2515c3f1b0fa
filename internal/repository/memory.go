package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ayo6706/transaction-stream-processor/internal/domain"
)

// MemoryStore is an in-process transaction store with the same uniqueness and
// transition rules as TransactionRepository. It backs tests and local runs
// without a database.
type MemoryStore struct {
	mu          sync.Mutex
	byID        map[domain.TransactionID]domain.Transaction
	byReference map[string]domain.TransactionID
	audit       map[domain.TransactionID][]domain.AuditEntry
	auditSeq    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:        make(map[domain.TransactionID]domain.Transaction),
		byReference: make(map[string]domain.TransactionID),
		audit:       make(map[domain.TransactionID][]domain.AuditEntry),
	}
}

func (s *MemoryStore) Save(ctx context.Context, tx domain.Transaction) (SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return SaveResult{}, fmt.Errorf("%w: %v", domain.ErrStore, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.byID[tx.ID()]
	if !exists {
		if owner, taken := s.byReference[tx.ExternalReference()]; taken && owner != tx.ID() {
			return SaveResult{Conflict: true}, nil
		}
		s.byID[tx.ID()] = tx
		s.byReference[tx.ExternalReference()] = tx.ID()
		s.appendAudit(tx.ID(), domain.AuditActionCreated, "", tx.Status())
		return SaveResult{Transaction: tx}, nil
	}

	prev, next := current.Status(), tx.Status()
	if !domain.CanTransition(prev, next) {
		switch {
		case prev == domain.TxStatusProcessed:
			return SaveResult{}, fmt.Errorf("%w: %s", domain.ErrAlreadyProcessed, tx.ID())
		case prev == next:
			return SaveResult{Transaction: current}, nil
		default:
			return SaveResult{}, fmt.Errorf("%w: invalid transaction state transition: %s -> %s", domain.ErrInvalidTransaction, prev, next)
		}
	}

	updated, err := domain.RestoreTransaction(current.ID(), current.Money(), next, current.Type(), current.OccurredAt(), current.CreatedAt(), current.ExternalReference())
	if err != nil {
		return SaveResult{}, err
	}
	s.byID[tx.ID()] = updated
	s.appendAudit(tx.ID(), domain.AuditActionProcessed, prev, next)
	return SaveResult{Transaction: updated}, nil
}

func (s *MemoryStore) appendAudit(id domain.TransactionID, action string, prev, next domain.TransactionStatus) {
	s.auditSeq++
	s.audit[id] = append(s.audit[id], domain.AuditEntry{
		ID:            s.auditSeq,
		TransactionID: id,
		Action:        action,
		PrevState:     prev,
		NextState:     next,
		CreatedAt:     time.Now().UTC(),
	})
}

func (s *MemoryStore) FindByID(_ context.Context, id domain.TransactionID) (domain.Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.byID[id]
	return tx, ok, nil
}

func (s *MemoryStore) FindByExternalReference(_ context.Context, externalReference string) (domain.Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byReference[externalReference]
	if !ok {
		return domain.Transaction{}, false, nil
	}
	return s.byID[id], true, nil
}

func (s *MemoryStore) History(_ context.Context, id domain.TransactionID) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditEntry, len(s.audit[id]))
	copy(out, s.audit[id])
	return out, nil
}

func (s *MemoryStore) StaleCreated(_ context.Context, before time.Time, limit int32) (int64, []domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []domain.Transaction
	for _, tx := range s.byID {
		if tx.Status() == domain.TxStatusCreated && tx.CreatedAt().Before(before) {
			stale = append(stale, tx)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt().Before(stale[j].CreatedAt()) })

	count := int64(len(stale))
	if int(limit) < len(stale) {
		stale = stale[:max(limit, 0)]
	}
	return count, stale, nil
}

// Count returns the number of stored transactions.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
