package repository

import (
	"context"
	"sync"

	"github.com/heartapi/heartgate/internal/model"
)

// MemoryQuotaLedger keeps quotas in-process with the same version-stamped
// semantics as the Postgres ledger. Used in single-node mode and in tests.
type MemoryQuotaLedger struct {
	mu     sync.Mutex
	quotas map[quotaKey]*model.InvocationQuota
}

type quotaKey struct {
	userID      int64
	interfaceID int64
}

func NewMemoryQuotaLedger() *MemoryQuotaLedger {
	return &MemoryQuotaLedger{quotas: make(map[quotaKey]*model.InvocationQuota)}
}

// Seed installs a quota row, replacing any existing one.
func (l *MemoryQuotaLedger) Seed(userID, interfaceID, leftNum int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.quotas[quotaKey{userID, interfaceID}] = &model.InvocationQuota{
		UserID:      userID,
		InterfaceID: interfaceID,
		LeftNum:     leftNum,
	}
}

func (l *MemoryQuotaLedger) Get(ctx context.Context, userID, interfaceID int64) (*model.InvocationQuota, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	q, ok := l.quotas[quotaKey{userID, interfaceID}]
	if !ok {
		return nil, ErrQuotaNotFound
	}
	cp := *q
	return &cp, nil
}

func (l *MemoryQuotaLedger) TryConsume(ctx context.Context, userID, interfaceID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	q, ok := l.quotas[quotaKey{userID, interfaceID}]
	if !ok {
		return ErrQuotaNotFound
	}
	if q.LeftNum <= 0 {
		return ErrQuotaExhausted
	}
	q.LeftNum--
	q.InvokedCount++
	q.Version++
	return nil
}

func (l *MemoryQuotaLedger) Rollback(ctx context.Context, userID, interfaceID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	q, ok := l.quotas[quotaKey{userID, interfaceID}]
	if !ok {
		return ErrQuotaNotFound
	}
	if q.InvokedCount <= 0 {
		return nil
	}
	q.InvokedCount--
	q.LeftNum++
	q.Version++
	return nil
}

func (l *MemoryQuotaLedger) Grant(ctx context.Context, userID, interfaceID, count int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := quotaKey{userID, interfaceID}
	q, ok := l.quotas[key]
	if !ok {
		l.quotas[key] = &model.InvocationQuota{
			UserID:      userID,
			InterfaceID: interfaceID,
			LeftNum:     count,
		}
		return nil
	}
	q.LeftNum += count
	q.Version++
	return nil
}
