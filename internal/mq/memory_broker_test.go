package mq

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBrokerDeliversPublished(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []byte, 1)
	go b.Consume(ctx, "q", "g", func(_ context.Context, msg Message) error {
		got <- msg.Body
		return nil
	})

	require.NoError(t, b.Publish(ctx, "q", []byte("hello")))
	select {
	case body := <-got:
		assert.Equal(t, []byte("hello"), body)
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}

func TestMemoryBrokerRedeliversOnError(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts int32
	done := make(chan struct{})
	go b.Consume(ctx, "q", "g", func(_ context.Context, msg Message) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})

	require.NoError(t, b.Publish(ctx, "q", []byte("x")))
	select {
	case <-done:
		assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	case <-time.After(2 * time.Second):
		t.Fatal("message was not redelivered to success")
	}
}

func TestMemoryBrokerDelayedDelivery(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan time.Time, 1)
	go b.Consume(ctx, "q", "g", func(_ context.Context, _ Message) error {
		got <- time.Now()
		return nil
	})

	start := time.Now()
	require.NoError(t, b.PublishDelayed(ctx, "q", []byte("later"), 50*time.Millisecond))
	select {
	case at := <-got:
		assert.GreaterOrEqual(t, at.Sub(start), 50*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("delayed message never arrived")
	}
}

func TestMemoryBrokerConsumeStopsOnCancel(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Consume(ctx, "q", "g", func(_ context.Context, _ Message) error { return nil })
	}()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("consume loop did not stop")
	}
}
