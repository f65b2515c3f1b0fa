package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/transaction-stream-processor/internal/domain"
)

// ErrMalformedEvent is returned for payloads that cannot be decoded.
var ErrMalformedEvent = errors.New("malformed event")

// IsRetryable reports whether another attempt could succeed. Decoding,
// argument and domain invariant failures are final.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrMalformedEvent),
		errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrInvalidTransaction):
		return false
	default:
		return true
	}
}

// ExceptionClass names the failure for the x-exception-class header.
func ExceptionClass(err error) string {
	switch {
	case errors.Is(err, domain.ErrTransactionNotFound):
		return "TransactionNotFound"
	case errors.Is(err, ErrMalformedEvent):
		return "MalformedEvent"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "InvalidArgument"
	case errors.Is(err, domain.ErrInvalidTransaction):
		return "InvalidTransaction"
	case errors.Is(err, domain.ErrStore):
		return "StoreError"
	case errors.Is(err, domain.ErrPublish):
		return "PublishError"
	case errors.Is(err, context.DeadlineExceeded):
		return "DeadlineExceeded"
	case errors.Is(err, context.Canceled):
		return "ContextCanceled"
	default:
		return fmt.Sprintf("%T", err)
	}
}
