package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaConsumeAndRollbackRoundTrip(t *testing.T) {
	l := NewMemoryQuotaLedger()
	l.Seed(1, 10, 5)
	ctx := context.Background()

	require.NoError(t, l.TryConsume(ctx, 1, 10))
	q, err := l.Get(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(4), q.LeftNum)
	assert.Equal(t, int64(1), q.InvokedCount)

	require.NoError(t, l.Rollback(ctx, 1, 10))
	q, err = l.Get(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(5), q.LeftNum)
	assert.Equal(t, int64(0), q.InvokedCount)
}

func TestQuotaExhaustion(t *testing.T) {
	l := NewMemoryQuotaLedger()
	l.Seed(1, 10, 2)
	ctx := context.Background()

	require.NoError(t, l.TryConsume(ctx, 1, 10))
	require.NoError(t, l.TryConsume(ctx, 1, 10))
	assert.ErrorIs(t, l.TryConsume(ctx, 1, 10), ErrQuotaExhausted)

	assert.ErrorIs(t, l.TryConsume(ctx, 2, 10), ErrQuotaNotFound, "unknown user has no quota")
}

func TestQuotaRollbackNeverGoesBelowZeroInvocations(t *testing.T) {
	l := NewMemoryQuotaLedger()
	l.Seed(1, 10, 3)
	ctx := context.Background()

	// Rollback with nothing consumed is a no-op, not a credit.
	require.NoError(t, l.Rollback(ctx, 1, 10))
	q, err := l.Get(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), q.LeftNum)
	assert.Equal(t, int64(0), q.InvokedCount)
}

func TestQuotaGrantCreatesAndTops(t *testing.T) {
	l := NewMemoryQuotaLedger()
	ctx := context.Background()

	require.NoError(t, l.Grant(ctx, 7, 10, 20))
	q, err := l.Get(ctx, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(20), q.LeftNum)

	require.NoError(t, l.Grant(ctx, 7, 10, 5))
	q, err = l.Get(ctx, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(25), q.LeftNum)
}

func TestQuotaConcurrentConsumeNeverOversells(t *testing.T) {
	l := NewMemoryQuotaLedger()
	l.Seed(1, 10, 100)
	ctx := context.Background()

	const workers = 50
	const perWorker = 4
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if l.TryConsume(ctx, 1, 10) == nil {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, granted, "exactly the seeded quota may be consumed")
	q, err := l.Get(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), q.LeftNum)
	assert.GreaterOrEqual(t, q.LeftNum, int64(0), "leftNum must never go negative")
}
