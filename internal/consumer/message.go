package consumer

import "context"

// Dead-letter headers.
const (
	HeaderOriginalTopic    = "x-original-topic"
	HeaderExceptionClass   = "x-exception-class"
	HeaderExceptionMessage = "x-exception-message"
)

// Message is one inbound event as delivered by the broker.
type Message struct {
	Topic   string
	Key     string
	Payload []byte
}

// DeadLetter is a message that exhausted or skipped its retries, with the reason attached.
type DeadLetter struct {
	Message          Message
	ExceptionClass   string
	ExceptionMessage string
}

// Headers returns the dead-letter headers for the record.
func (d DeadLetter) Headers() map[string]string {
	return map[string]string{
		HeaderOriginalTopic:    d.Message.Topic,
		HeaderExceptionClass:   d.ExceptionClass,
		HeaderExceptionMessage: d.ExceptionMessage,
	}
}

// DeadLetterSink stores messages the pipeline gave up on.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, record DeadLetter) error
}
