package repository

import (
	"context"
	"sync"
	"time"

	"github.com/heartapi/heartgate/internal/model"
)

// MemoryOrderStore mirrors the Postgres order store for single-node mode
// and tests, including the guarded status transitions.
type MemoryOrderStore struct {
	mu     sync.Mutex
	nextID int64
	orders map[string]*model.Order
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{orders: make(map[string]*model.Order)}
}

func (s *MemoryOrderStore) Create(ctx context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	o.ID = s.nextID
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	cp := *o
	s.orders[o.OrderSn] = &cp
	return nil
}

func (s *MemoryOrderStore) GetBySn(ctx context.Context, orderSn string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderSn]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryOrderStore) MarkPaid(ctx context.Context, orderSn string) (bool, error) {
	return s.transition(orderSn, model.OrderPaid)
}

func (s *MemoryOrderStore) MarkTimedOut(ctx context.Context, orderSn string) (bool, error) {
	return s.transition(orderSn, model.OrderTimeout)
}

func (s *MemoryOrderStore) transition(orderSn string, to int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderSn]
	if !ok {
		return false, ErrOrderNotFound
	}
	if o.Status != model.OrderNotPaid {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (s *MemoryOrderStore) ListByUser(ctx context.Context, userID int64, status, limit int) ([]*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	results := make([]*model.Order, 0)
	for _, o := range s.orders {
		if o.UserID == userID && (status < 0 || o.Status == status) {
			cp := *o
			results = append(results, &cp)
			if len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}
