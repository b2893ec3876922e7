package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fleet-monitor/speedwatch/internal/config"
)

// KeyLookup resolves an API key to the operator it belongs to, "" when unknown.
type KeyLookup interface {
	GetAPIKey(ctx context.Context, apiKey string) (string, error)
}

type cacheEntry struct {
	operator  string
	expiresAt time.Time
}

// Authenticator checks API keys against static config keys, then an
// in-process cache, then the key store. The store may be nil.
type Authenticator struct {
	localCache sync.Map
	keys       KeyLookup
	ttl        time.Duration
	staticKeys map[string]bool
	now        func() time.Time
	logger     *slog.Logger
}

func NewAuthenticator(cfg *config.Config, keys KeyLookup, logger *slog.Logger) *Authenticator {
	staticKeys := make(map[string]bool, len(cfg.ValidAPIKeys))
	for _, k := range cfg.ValidAPIKeys {
		if k != "" {
			staticKeys[k] = true
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Authenticator{
		keys:       keys,
		ttl:        time.Duration(cfg.AuthCacheTTLSeconds) * time.Second,
		staticKeys: staticKeys,
		now:        time.Now,
		logger:     logger,
	}
}

func (a *Authenticator) Validate(ctx context.Context, apiKey string) bool {
	if apiKey == "" {
		return false
	}

	if a.staticKeys[apiKey] {
		return true
	}

	if raw, ok := a.localCache.Load(apiKey); ok {
		entry := raw.(cacheEntry)
		if a.now().Before(entry.expiresAt) {
			return true
		}
		a.localCache.Delete(apiKey)
	}

	if a.keys == nil {
		return false
	}
	operator, err := a.keys.GetAPIKey(ctx, apiKey)
	if err != nil {
		a.logger.Warn("api key lookup failed", "error", err)
		return false
	}
	if operator == "" {
		return false
	}

	a.localCache.Store(apiKey, cacheEntry{
		operator:  operator,
		expiresAt: a.now().Add(a.ttl),
	})

	return true
}
