package models

import (
	"time"

	"github.com/ayo6706/transaction-stream-processor/internal/domain"
	"github.com/shopspring/decimal"
)

// TransactionCreatedEvent is published on transactions.created by the
// creation flow and consumed by the processing pipeline.
type TransactionCreatedEvent struct {
	TransactionID     string          `json:"transaction_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Type              string          `json:"type"`
	OccurredAt        time.Time       `json:"occurred_at"`
	CreatedAt         time.Time       `json:"created_at"`
	ExternalReference string          `json:"external_reference"`
}

// TransactionProcessedEvent is published on transactions.processed.
// ProcessedAt carries the transaction's original occurredAt.
type TransactionProcessedEvent struct {
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"`
	ProcessedAt   time.Time `json:"processed_at"`
}

func NewTransactionCreatedEvent(tx domain.Transaction) TransactionCreatedEvent {
	return TransactionCreatedEvent{
		TransactionID:     tx.ID().String(),
		Amount:            tx.Money().Amount,
		Currency:          string(tx.Money().Currency),
		Type:              string(tx.Type()),
		OccurredAt:        tx.OccurredAt(),
		CreatedAt:         tx.CreatedAt(),
		ExternalReference: tx.ExternalReference(),
	}
}

func NewTransactionProcessedEvent(tx domain.Transaction) TransactionProcessedEvent {
	return TransactionProcessedEvent{
		TransactionID: tx.ID().String(),
		Status:        string(tx.Status()),
		ProcessedAt:   tx.OccurredAt(),
	}
}

type MoneyResponse struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// TransactionResponse is the HTTP representation of a transaction.
type TransactionResponse struct {
	ID                string        `json:"id"`
	Money             MoneyResponse `json:"money"`
	Type              string        `json:"type"`
	Status            string        `json:"status"`
	OccurredAt        time.Time     `json:"occurred_at"`
	CreatedAt         time.Time     `json:"created_at"`
	ExternalReference string        `json:"external_reference"`
}

func NewTransactionResponse(tx domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID: tx.ID().String(),
		Money: MoneyResponse{
			Amount:   tx.Money().Amount,
			Currency: string(tx.Money().Currency),
		},
		Type:              string(tx.Type()),
		Status:            string(tx.Status()),
		OccurredAt:        tx.OccurredAt(),
		CreatedAt:         tx.CreatedAt(),
		ExternalReference: tx.ExternalReference(),
	}
}

type AuditEntryResponse struct {
	Action    string    `json:"action"`
	PrevState string    `json:"prev_state,omitempty"`
	NextState string    `json:"next_state"`
	CreatedAt time.Time `json:"created_at"`
}

type TransactionHistoryResponse struct {
	TransactionID string               `json:"transaction_id"`
	Entries       []AuditEntryResponse `json:"entries"`
}

func NewTransactionHistoryResponse(id domain.TransactionID, entries []domain.AuditEntry) TransactionHistoryResponse {
	out := TransactionHistoryResponse{TransactionID: id.String(), Entries: make([]AuditEntryResponse, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, AuditEntryResponse{
			Action:    e.Action,
			PrevState: string(e.PrevState),
			NextState: string(e.NextState),
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}
