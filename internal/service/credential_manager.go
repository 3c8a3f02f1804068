package service

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/heartapi/heartgate/internal/auth"
	"github.com/heartapi/heartgate/internal/config"
	"github.com/heartapi/heartgate/internal/model"
	"github.com/heartapi/heartgate/internal/pkg/logger"
	"github.com/heartapi/heartgate/internal/repository"
)

// CredentialManager caches caller credentials by access key and enforces a
// per-credential request rate on top of the global bucket. Lookups fall
// through to the backing repository on a cache miss; statically configured
// credentials are seeded at construction.
//
// It implements auth.SecretSource.
type CredentialManager struct {
	mu       sync.RWMutex
	creds    map[string]*model.Credential
	limiters map[string]*rate.Limiter

	defaults model.RateLimitConfig
	repo     auth.SecretSource // optional, may be nil
}

func NewCredentialManager(cfg *config.Config, repo auth.SecretSource) *CredentialManager {
	m := &CredentialManager{
		creds:    make(map[string]*model.Credential),
		limiters: make(map[string]*rate.Limiter),
		defaults: model.RateLimitConfig{
			QPS:   cfg.RateLimit.CredentialQPS,
			Burst: cfg.RateLimit.CredentialBurst,
		},
		repo: repo,
	}
	for _, c := range cfg.Credentials {
		rl := model.RateLimitConfig{QPS: c.QPS, Burst: c.Burst}
		if rl.QPS <= 0 {
			rl = m.defaults
		}
		m.Register(&model.Credential{
			UserID:    c.UserID,
			AccessKey: c.AccessKey,
			SecretKey: c.SecretKey,
		}, rl)
	}
	return m
}

// Register installs or replaces a credential and its rate limiter.
func (m *CredentialManager) Register(cred *model.Credential, rl model.RateLimitConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[cred.AccessKey] = cred
	if rl.QPS > 0 {
		burst := rl.Burst
		if burst <= 0 {
			burst = 1
		}
		m.limiters[cred.AccessKey] = rate.NewLimiter(rate.Limit(rl.QPS), burst)
	}
}

// GetByAccessKey returns the credential for an access key, consulting the
// repository on a miss and caching the result.
func (m *CredentialManager) GetByAccessKey(ctx context.Context, accessKey string) (*model.Credential, error) {
	m.mu.RLock()
	cred, ok := m.creds[accessKey]
	m.mu.RUnlock()
	if ok {
		return cred, nil
	}
	if m.repo == nil {
		return nil, repository.ErrCredentialNotFound
	}
	cred, err := m.repo.GetByAccessKey(ctx, accessKey)
	if err != nil {
		return nil, err
	}
	logger.Get().Debug("credential loaded from repository", "access_key", accessKey)
	m.Register(cred, m.defaults)
	return cred, nil
}

// Allow reports whether the credential may make one more request right now.
// Credentials without a configured limiter are unthrottled.
func (m *CredentialManager) Allow(accessKey string) bool {
	m.mu.RLock()
	lim := m.limiters[accessKey]
	m.mu.RUnlock()
	if lim == nil {
		return true
	}
	return lim.Allow()
}
