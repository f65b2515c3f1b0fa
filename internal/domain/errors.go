package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransaction is returned when a domain invariant is violated.
	ErrInvalidTransaction = errors.New("invalid transaction")
	// ErrAlreadyProcessed is returned by Process on a transaction that is no longer CREATED.
	ErrAlreadyProcessed = fmt.Errorf("%w: transaction already processed", ErrInvalidTransaction)
	// ErrTransactionNotFound is returned when no transaction has the requested id.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrInvalidArgument is returned for malformed input such as an unparsable id.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrStore wraps infrastructure failures from the transaction store.
	ErrStore = errors.New("transaction store failure")
	// ErrPublish wraps failures to hand an event to the broker.
	ErrPublish = errors.New("event publish failure")
)
