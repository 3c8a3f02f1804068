package repository

import (
	"context"
	"sync"

	"github.com/heartapi/heartgate/internal/model"
)

// MemoryInterfaceRegistry keeps registered interfaces in-process, with the
// same conditional stock semantics as the Postgres registry.
type MemoryInterfaceRegistry struct {
	mu         sync.Mutex
	byID       map[int64]*model.InterfaceInfo
	routeIndex map[routeKey]int64
}

type routeKey struct {
	path   string
	method string
}

func NewMemoryInterfaceRegistry() *MemoryInterfaceRegistry {
	return &MemoryInterfaceRegistry{
		byID:       make(map[int64]*model.InterfaceInfo),
		routeIndex: make(map[routeKey]int64),
	}
}

func (r *MemoryInterfaceRegistry) Register(info *model.InterfaceInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *info
	r.byID[info.ID] = &cp
	r.routeIndex[routeKey{info.Path, info.Method}] = info.ID
}

func (r *MemoryInterfaceRegistry) Resolve(ctx context.Context, path, method string) (*model.InterfaceInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.routeIndex[routeKey{path, method}]
	if !ok {
		return nil, ErrInterfaceNotFound
	}
	info := r.byID[id]
	if info == nil || info.Status != model.InterfaceOnline {
		return nil, ErrInterfaceNotFound
	}
	cp := *info
	return &cp, nil
}

func (r *MemoryInterfaceRegistry) GetByID(ctx context.Context, id int64) (*model.InterfaceInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.byID[id]
	if !ok {
		return nil, ErrInterfaceNotFound
	}
	cp := *info
	return &cp, nil
}

func (r *MemoryInterfaceRegistry) GetStock(ctx context.Context, id int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.byID[id]
	if !ok {
		return 0, ErrInterfaceNotFound
	}
	return info.Stock, nil
}

// DecrementStock mirrors the Postgres guard: strict, so stock never drains
// to zero.
func (r *MemoryInterfaceRegistry) DecrementStock(ctx context.Context, id, n int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.byID[id]
	if !ok || info.Stock <= n {
		return false, nil
	}
	info.Stock -= n
	return true, nil
}

func (r *MemoryInterfaceRegistry) IncrementStock(ctx context.Context, id, n int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.byID[id]
	if !ok {
		return false, nil
	}
	info.Stock += n
	return true, nil
}
