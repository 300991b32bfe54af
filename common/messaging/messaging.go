// Package messaging defines the broker-neutral message types used by the
// pipeline transport and consumer.
package messaging

import (
	"context"
	"time"
)

// Message is a message received from or sent to the broker.
type Message struct {
	// Subject is the subject the message was published to.
	Subject string

	// Data is the raw payload.
	Data []byte

	// Metadata carries message headers (request id, ingestion id).
	Metadata map[string]string

	// Timestamp is when the broker stored the message, or receipt time when
	// the broker does not report one.
	Timestamp time.Time
}

// MessageHandler processes a received message. Returning an error asks the
// broker for redelivery.
type MessageHandler func(ctx context.Context, msg *Message) error

// Publisher publishes messages and waits for the broker to accept them.
type Publisher interface {
	PublishMsg(ctx context.Context, msg *Message) error
	Close() error
}
