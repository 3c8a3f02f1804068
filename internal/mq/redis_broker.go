package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/heartapi/heartgate/internal/pkg/logger"
	"github.com/heartapi/heartgate/internal/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

const (
	bodyField     = "body"
	readBlock     = 2 * time.Second
	readBatch     = 16
	claimMinIdle  = 30 * time.Second
	delayPollStep = time.Second
)

// RedisBroker implements Broker on Redis Streams. Each queue is one stream;
// each consumer joins a consumer group and acks explicitly, so unacked
// entries stay pending and are reclaimed for redelivery (at-least-once).
// Delayed delivery parks the payload in a sorted set scored by fire time; a
// mover goroutine promotes due entries into the stream.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, queue string, body []byte) error {
	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: queue,
		Values: map[string]interface{}{bodyField: string(body)},
	}).Err()
}

type delayedEnvelope struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

func (b *RedisBroker) PublishDelayed(ctx context.Context, queue string, body []byte, delay time.Duration) error {
	if delay <= 0 {
		return b.Publish(ctx, queue, body)
	}
	env, err := json.Marshal(delayedEnvelope{ID: uuid.NewString(), Body: string(body)})
	if err != nil {
		return err
	}
	fireAt := time.Now().Add(delay)
	return b.client.ZAdd(ctx, delayedKey(queue), redis.Z{
		Score:  float64(fireAt.UnixMilli()),
		Member: string(env),
	}).Err()
}

// RunDelayMover promotes due delayed entries for the given queues until ctx
// is done. ZREM is the claim: whichever gateway instance removes the member
// first gets to enqueue it, so entries fire once.
func (b *RedisBroker) RunDelayMover(ctx context.Context, queues ...string) {
	ticker := time.NewTicker(delayPollStep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, queue := range queues {
				if err := b.moveDue(ctx, queue); err != nil && ctx.Err() == nil {
					logger.Error("delay mover pass failed", "queue", queue, "error", err)
				}
			}
		}
	}
}

func (b *RedisBroker) moveDue(ctx context.Context, queue string) error {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	members, err := b.client.ZRangeByScore(ctx, delayedKey(queue), &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: readBatch,
	}).Result()
	if err != nil {
		return err
	}
	for _, raw := range members {
		removed, err := b.client.ZRem(ctx, delayedKey(queue), raw).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue // another instance claimed it
		}
		var env delayedEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			logger.Error("dropping malformed delayed entry", "queue", queue, "error", err)
			continue
		}
		if err := b.Publish(ctx, queue, []byte(env.Body)); err != nil {
			return err
		}
	}
	return nil
}

// Consume joins (or creates) the group on queue and processes deliveries
// with h until ctx is done. Handler errors leave the entry pending; stale
// pending entries are auto-claimed so redelivery survives consumer crashes.
func (b *RedisBroker) Consume(ctx context.Context, queue, group string, h Handler) error {
	if err := b.ensureGroup(ctx, queue, group); err != nil {
		return err
	}
	consumer := "c-" + uuid.NewString()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{queue, ">"},
			Count:    readBatch,
			Block:    readBlock,
		}).Result()
		if err != nil && err != redis.Nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("stream read failed", "queue", queue, "error", err)
			time.Sleep(time.Second)
			continue
		}

		delivered := 0
		for _, stream := range streams {
			for _, entry := range stream.Messages {
				delivered++
				b.dispatch(ctx, queue, group, entry, h)
			}
		}

		if delivered == 0 {
			b.reclaim(ctx, queue, group, consumer, h)
		}
	}
}

func (b *RedisBroker) dispatch(ctx context.Context, queue, group string, entry redis.XMessage, h Handler) {
	body, _ := entry.Values[bodyField].(string)
	if err := h(ctx, Message{ID: entry.ID, Body: []byte(body)}); err != nil {
		// Leave it pending; reclaim will redeliver after min-idle.
		metrics.ConsumerRedeliveries.WithLabelValues(queue).Inc()
		logger.Warn("message handed back for redelivery", "queue", queue, "id", entry.ID, "error", err)
		return
	}
	if err := b.client.XAck(ctx, queue, group, entry.ID).Err(); err != nil && ctx.Err() == nil {
		logger.Error("ack failed", "queue", queue, "id", entry.ID, "error", err)
	}
}

func (b *RedisBroker) reclaim(ctx context.Context, queue, group, consumer string, h Handler) {
	entries, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   queue,
		Group:    group,
		Consumer: consumer,
		MinIdle:  claimMinIdle,
		Start:    "0",
		Count:    readBatch,
	}).Result()
	if err != nil {
		if ctx.Err() == nil && err != redis.Nil {
			logger.Error("pending reclaim failed", "queue", queue, "error", err)
		}
		return
	}
	for _, entry := range entries {
		b.dispatch(ctx, queue, group, entry, h)
	}
}

func (b *RedisBroker) ensureGroup(ctx context.Context, queue, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, queue, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func delayedKey(queue string) string {
	return queue + ":delayed"
}
