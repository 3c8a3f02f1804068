package mq

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/heartapi/heartgate/internal/pkg/metrics"
)

// MemoryBroker is an in-process Broker with the same ack/requeue contract
// as the Redis broker. Used for brokerless single-node mode and tests.
type MemoryBroker struct {
	mu     sync.Mutex
	seq    int64
	queues map[string]chan Message

	// requeueDelay spaces out redeliveries after handler errors.
	requeueDelay time.Duration
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues:       make(map[string]chan Message),
		requeueDelay: 10 * time.Millisecond,
	}
}

func (b *MemoryBroker) queue(name string) chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = make(chan Message, 1024)
		b.queues[name] = q
	}
	return q
}

func (b *MemoryBroker) nextID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	return strconv.FormatInt(b.seq, 10)
}

func (b *MemoryBroker) Publish(ctx context.Context, queue string, body []byte) error {
	select {
	case b.queue(queue) <- Message{ID: b.nextID(), Body: body}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBroker) PublishDelayed(ctx context.Context, queue string, body []byte, delay time.Duration) error {
	if delay <= 0 {
		return b.Publish(ctx, queue, body)
	}
	msg := Message{ID: b.nextID(), Body: body}
	time.AfterFunc(delay, func() {
		select {
		case b.queue(queue) <- msg:
		default:
		}
	})
	return nil
}

// Consume delivers queued messages to h until ctx is done. A handler error
// puts the message back at the end of the queue after a short delay.
func (b *MemoryBroker) Consume(ctx context.Context, queue, group string, h Handler) error {
	q := b.queue(queue)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-q:
			if err := h(ctx, msg); err != nil {
				metrics.ConsumerRedeliveries.WithLabelValues(queue).Inc()
				requeued := msg
				time.AfterFunc(b.requeueDelay, func() {
					select {
					case q <- requeued:
					default:
					}
				})
			}
		}
	}
}
