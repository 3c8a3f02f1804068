// Package mq defines the queue seams the gateway publishes to and the
// reconciliation consumers pull from. Delivery is at-least-once everywhere;
// handlers must be idempotent or check a dedup record first.
package mq

import (
	"context"
	"time"
)

// Message is one delivery. ID is broker-assigned and stable across
// redeliveries of the same entry.
type Message struct {
	ID   string
	Body []byte
}

// Handler processes one delivery. A nil return acknowledges the message; an
// error hands it back for redelivery.
type Handler func(ctx context.Context, msg Message) error

// Publisher enqueues messages, optionally after a delay. Delayed delivery
// is the logical timer behind order expiry.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
	PublishDelayed(ctx context.Context, queue string, body []byte, delay time.Duration) error
}

// Consumer runs a blocking consume loop for one queue until ctx is done.
// Implementations declare the queue/group themselves: producers are lazy.
type Consumer interface {
	Consume(ctx context.Context, queue, group string, h Handler) error
}

// Broker is both halves of the queue.
type Broker interface {
	Publisher
	Consumer
}
