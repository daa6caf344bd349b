package score

import (
	"context"
	"log/slog"
)

// DirectProvider answers from Store alone, with no caching layer.
type DirectProvider struct {
	store  Store
	logger *slog.Logger
}

// NewDirectProvider constructs a DirectProvider.
func NewDirectProvider(store Store, logger *slog.Logger) *DirectProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectProvider{store: store, logger: logger}
}

func (p *DirectProvider) GetScore(ctx context.Context, principalID string) int {
	s, found, err := p.store.GetScore(ctx, principalID)
	if err != nil {
		p.logger.Warn("score store lookup failed, failing closed", "error", err)
		return 0
	}
	if !found {
		return 0
	}
	return clampScore(s)
}
