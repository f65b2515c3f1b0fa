package domain

import "time"

// AuditEntry records one status change of a transaction.
type AuditEntry struct {
	ID            int64
	TransactionID TransactionID
	Action        string
	PrevState     TransactionStatus
	NextState     TransactionStatus
	CreatedAt     time.Time
}
