package service

import (
	"context"
	"time"

	"github.com/heartapi/heartgate/internal/model"
)

// QuotaLedger is the optimistic invocation-count ledger. TryConsume charges
// one call; Rollback reverses exactly one charge; Grant credits purchased
// calls.
type QuotaLedger interface {
	TryConsume(ctx context.Context, userID, interfaceID int64) error
	Rollback(ctx context.Context, userID, interfaceID int64) error
	Grant(ctx context.Context, userID, interfaceID, count int64) error
}

// InterfaceRegistry resolves interface metadata and owns the stock counters.
type InterfaceRegistry interface {
	Resolve(ctx context.Context, path, method string) (*model.InterfaceInfo, error)
	GetByID(ctx context.Context, id int64) (*model.InterfaceInfo, error)
	GetStock(ctx context.Context, id int64) (int64, error)
	DecrementStock(ctx context.Context, id, n int64) (bool, error)
	IncrementStock(ctx context.Context, id, n int64) (bool, error)
}

// OrderStore persists reservation orders with sticky terminal states.
type OrderStore interface {
	Create(ctx context.Context, o *model.Order) error
	GetBySn(ctx context.Context, orderSn string) (*model.Order, error)
	MarkPaid(ctx context.Context, orderSn string) (bool, error)
	MarkTimedOut(ctx context.Context, orderSn string) (bool, error)
	ListByUser(ctx context.Context, userID int64, status, limit int) ([]*model.Order, error)
}

// MarkerStore is the shared key-value store used for idempotency and dedup
// markers. SetNX must be atomic set-if-absent.
type MarkerStore interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, key string) error
}
