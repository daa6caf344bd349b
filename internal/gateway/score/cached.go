package score

import (
	"context"
	"log/slog"
)

// CachedProvider consults Cache first, falls back to Store on miss, and
// best-effort populates the cache afterward. Cache write failures are
// swallowed and never propagate into the score result.
type CachedProvider struct {
	store  Store
	cache  Cache
	logger *slog.Logger
}

// NewCachedProvider constructs a CachedProvider.
func NewCachedProvider(store Store, cache Cache, logger *slog.Logger) *CachedProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedProvider{store: store, cache: cache, logger: logger}
}

func (p *CachedProvider) GetScore(ctx context.Context, principalID string) int {
	if s, found, err := p.cache.Get(ctx, principalID); err == nil && found {
		return clampScore(s)
	} else if err != nil {
		p.logger.Warn("score cache read failed, falling back to store", "error", err)
	}

	s, found, err := p.store.GetScore(ctx, principalID)
	if err != nil {
		p.logger.Warn("score store lookup failed, failing closed", "error", err)
		return 0
	}
	if !found {
		return 0
	}

	clamped := clampScore(s)
	if err := p.cache.Set(ctx, principalID, clamped); err != nil {
		p.logger.Warn("score cache write failed, continuing without cache", "error", err)
	}
	return clamped
}
