package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/transaction-stream-processor/internal/domain"
)

// TransactionService answers read queries.
type TransactionService struct {
	store   TransactionStore
	history HistoryStore
}

func NewTransactionService(store TransactionStore, history HistoryStore) *TransactionService {
	return &TransactionService{store: store, history: history}
}

func (s *TransactionService) Get(ctx context.Context, id domain.TransactionID) (domain.Transaction, error) {
	tx, found, err := s.store.FindByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("load transaction: %w", err)
	}
	if !found {
		return domain.Transaction{}, fmt.Errorf("%w: %s", domain.ErrTransactionNotFound, id)
	}
	return tx, nil
}

// History returns the status changes of an existing transaction, oldest first.
func (s *TransactionService) History(ctx context.Context, id domain.TransactionID) ([]domain.AuditEntry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.history.History(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return entries, nil
}
