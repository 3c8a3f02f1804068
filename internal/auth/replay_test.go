package auth

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartapi/heartgate/internal/repository"
)

func newGuardAt(t *testing.T, at time.Time, ttl time.Duration) (*ReplayGuard, *repository.MemoryKV, *time.Time) {
	t.Helper()
	current := at
	kv := repository.NewMemoryKV()
	kv.Now = func() time.Time { return current }
	g := NewReplayGuard(kv, ttl, 5*time.Minute)
	g.now = func() time.Time { return current }
	return g, kv, &current
}

func stamp(at time.Time) string {
	return strconv.FormatInt(at.Unix(), 10)
}

func TestReplayGuardFirstUseThenReject(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, _, _ := newGuardAt(t, now, 5*time.Minute)
	ctx := context.Background()

	require.NoError(t, g.Check(ctx, "nonce-1", stamp(now)))
	err := g.Check(ctx, "nonce-1", stamp(now))
	assert.Error(t, err, "second use of the same nonce must be rejected")

	assert.NoError(t, g.Check(ctx, "nonce-2", stamp(now)), "a different nonce is unaffected")
}

func TestReplayGuardNonceExpires(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, _, current := newGuardAt(t, now, time.Minute)
	ctx := context.Background()

	require.NoError(t, g.Check(ctx, "nonce-1", stamp(now)))

	*current = now.Add(2 * time.Minute)
	assert.NoError(t, g.Check(ctx, "nonce-1", stamp(*current)),
		"nonce may be reused after its TTL window")
}

func TestReplayGuardTimestampSkew(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, _, _ := newGuardAt(t, now, 5*time.Minute)
	ctx := context.Background()

	assert.Error(t, g.Check(ctx, "n1", stamp(now.Add(-6*time.Minute))), "too old")
	assert.Error(t, g.Check(ctx, "n2", stamp(now.Add(6*time.Minute))), "too far ahead")
	assert.NoError(t, g.Check(ctx, "n3", stamp(now.Add(-4*time.Minute))), "inside the window")
	assert.Error(t, g.Check(ctx, "n4", "not-a-number"))
	assert.Error(t, g.Check(ctx, "", stamp(now)), "missing nonce")
}

type failingStore struct{}

func (failingStore) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("store down")
}

func TestReplayGuardFailsClosed(t *testing.T) {
	g := NewReplayGuard(failingStore{}, time.Minute, 5*time.Minute)
	err := g.Check(context.Background(), "nonce-1", stamp(time.Now()))
	assert.Error(t, err, "a store failure must reject, not admit")
}

func TestReplayGuardConcurrentSameNonce(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, _, _ := newGuardAt(t, now, 5*time.Minute)

	const workers = 32
	var wg sync.WaitGroup
	admitted := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Check(context.Background(), "shared", stamp(now)) == nil {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)
	assert.Len(t, admitted, 1, "exactly one concurrent use of a nonce may pass")
}
