package domain

import (
	"fmt"
	"strings"
)

// TransactionType is the direction of a transaction.
type TransactionType string

const (
	TxTypeCredit TransactionType = "CREDIT"
	TxTypeDebit  TransactionType = "DEBIT"
)

// TransactionStatus is a lifecycle state.
type TransactionStatus string

const (
	TxStatusCreated   TransactionStatus = "CREATED"
	TxStatusProcessed TransactionStatus = "PROCESSED"
)

// Event topics
const (
	TopicTransactionCreated   = "transactions.created"
	TopicTransactionProcessed = "transactions.processed"
	TopicTransactionDLQ       = "transactions.dlq"
)

// Audit actions recorded on every status change.
const (
	AuditActionCreated   = "transaction_created"
	AuditActionProcessed = "transaction_processed"
)

var transactionTypes = []TransactionType{TxTypeCredit, TxTypeDebit}

// TransactionTypes lists every supported type.
func TransactionTypes() []TransactionType {
	out := make([]TransactionType, len(transactionTypes))
	copy(out, transactionTypes)
	return out
}

// ParseTransactionType accepts a type name in any case.
func ParseTransactionType(raw string) (TransactionType, error) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range transactionTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unsupported transaction type %q", ErrInvalidTransaction, raw)
}

// ParseTransactionStatus accepts a stored status value.
func ParseTransactionStatus(raw string) (TransactionStatus, error) {
	switch s := TransactionStatus(strings.ToUpper(strings.TrimSpace(raw))); s {
	case TxStatusCreated, TxStatusProcessed:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown transaction status %q", ErrInvalidTransaction, raw)
	}
}
