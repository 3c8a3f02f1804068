package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(d)
}

func TestTryAcquireDrainAndRefill(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1700000000, 0)}
	b := newTokenBucket(20, 5, clock.Now)

	// Full bucket: 20 tokens acquirable at once.
	require.True(t, b.TryAcquire(20))

	// Bucket now empty, same instant: even one more token must fail.
	assert.False(t, b.TryAcquire(1))

	// One second later 5 tokens have refilled.
	clock.Advance(time.Second)
	assert.True(t, b.TryAcquire(5))
	assert.False(t, b.TryAcquire(1))
}

func TestAvailableNeverExceedsCapacity(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1700000000, 0)}
	b := newTokenBucket(10, 1000, clock.Now)

	clock.Advance(time.Hour)
	assert.Equal(t, 10.0, b.Available())

	require.True(t, b.TryAcquire(3))
	assert.Equal(t, 7.0, b.Available())
}

func TestClockGoingBackwardsCreditsNothing(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1700000000, 0)}
	b := newTokenBucket(5, 100, clock.Now)
	require.True(t, b.TryAcquire(5))

	clock.Advance(-time.Minute)
	assert.False(t, b.TryAcquire(1))
}

func TestConcurrentAcquireNeverOversells(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1700000000, 0)}
	b := newTokenBucket(100, 0, clock.Now)

	var granted int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if b.TryAcquire(1) {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), granted)
	assert.GreaterOrEqual(t, b.Available(), 0.0)
}

func TestZeroOrNegativeRequestIsFree(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1700000000, 0)}
	b := newTokenBucket(1, 1, clock.Now)
	assert.True(t, b.TryAcquire(0))
	assert.True(t, b.TryAcquire(-3))
	assert.Equal(t, 1.0, b.Available())
}
