package auth

import (
	"context"
	"strconv"
	"time"

	"github.com/heartapi/heartgate/internal/pkg/apperrors"
)

// NonceStore is the shared key-value store behind the replay guard. SetNX
// must be a single atomic set-if-absent; it is the sole correctness
// mechanism for replay suppression.
type NonceStore interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// ReplayGuard rejects requests whose nonce was already seen inside the TTL
// window, or whose timestamp is too far from the gateway clock.
type ReplayGuard struct {
	store NonceStore
	ttl   time.Duration
	skew  time.Duration

	now func() time.Time
}

func NewReplayGuard(store NonceStore, ttl, skew time.Duration) *ReplayGuard {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if skew <= 0 {
		skew = 5 * time.Minute
	}
	return &ReplayGuard{store: store, ttl: ttl, skew: skew, now: time.Now}
}

// Check records the nonce if absent and validates timestamp freshness.
// A store write failure rejects the request: fail closed.
func (g *ReplayGuard) Check(ctx context.Context, nonce, timestamp string) error {
	if nonce == "" {
		return apperrors.New(apperrors.ErrReplay, "missing nonce", nil)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return apperrors.New(apperrors.ErrReplay, "bad timestamp", err)
	}
	delta := g.now().Sub(time.Unix(ts, 0))
	if delta > g.skew || delta < -g.skew {
		return apperrors.New(apperrors.ErrReplay, "stale timestamp", nil)
	}

	fresh, err := g.store.SetNX(ctx, "nonce:"+nonce, "1", g.ttl)
	if err != nil {
		return apperrors.New(apperrors.ErrReplay, "nonce store unavailable", err)
	}
	if !fresh {
		return apperrors.New(apperrors.ErrReplay, "nonce already seen", nil)
	}
	return nil
}
