// Package queue is the asynchronous message-delivery abstraction used
// to propagate graph mutations across regions. Delivery is
// at-least-once with explicit commit/ack; a message read but never
// committed becomes visible again after its visibility timeout.
package queue

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrQueueFull   = errors.New("queue full")
	ErrQueueClosed = errors.New("queue closed")
	// ErrUnknownHandle is returned when committing a message whose
	// receipt handle is not in flight (already committed or expired).
	ErrUnknownHandle = errors.New("unknown receipt handle")
)

// Message is one queued body plus its delivery receipt.
type Message struct {
	ID     uuid.UUID
	Handle string // receipt handle, set when the message is read
	Body   []byte
}

// Manager is the delivery surface the graph core assumes. LOCAL and
// DURABLE implementations ship here; cross-region delivery fans out to
// attached peer regions.
type Manager interface {
	// GetMessages reads up to limit visible messages, moving them to
	// the in-flight set until committed.
	GetMessages(limit int) ([]Message, error)

	// GetQueueDepth returns the number of visible messages.
	GetQueueDepth() (int64, error)

	// CommitMessage acknowledges one read message.
	CommitMessage(m Message) error

	// CommitMessages acknowledges several read messages.
	CommitMessages(ms []Message) error

	// SendMessages enqueues bodies, blocking on durability.
	SendMessages(bodies [][]byte) error

	// SendMessagesAsync enqueues bodies without waiting on durability.
	SendMessagesAsync(bodies [][]byte) error

	// SendMessageToLocalRegion enqueues one body in this region only.
	SendMessageToLocalRegion(body []byte, async bool) error

	// SendMessageToAllRegions enqueues one body here and in every
	// attached peer region.
	SendMessageToAllRegions(body []byte, async bool) error

	// DeleteQueue discards all visible and in-flight messages.
	DeleteQueue() error

	// Close stops the queue; further sends fail with ErrQueueClosed.
	Close() error
}
