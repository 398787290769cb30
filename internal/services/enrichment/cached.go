package enrichment

import (
	"context"
	"encoding/json"
	"time"

	domsvc "github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/service"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/service/cache"
)

// Cached wrappers memoize sidecar answers for a short TTL. Regime and
// sentiment move slowly, so a few seconds of staleness is acceptable
// and saves one HTTP round trip per signal burst.

type CachedRegimeProvider struct {
	inner domsvc.RegimeProvider
	cache cache.BytesCache
	ttl   time.Duration
}

func NewCachedRegimeProvider(inner domsvc.RegimeProvider, c cache.BytesCache, ttl time.Duration) *CachedRegimeProvider {
	return &CachedRegimeProvider{inner: inner, cache: c, ttl: ttl}
}

func (p *CachedRegimeProvider) CurrentRegime(ctx context.Context, symbol string) (string, error) {
	key := "regime:" + symbol
	if b, ok, err := p.cache.GetBytes(key); err == nil && ok {
		return string(b), nil
	}
	regime, err := p.inner.CurrentRegime(ctx, symbol)
	if err != nil {
		return "", err
	}
	_ = p.cache.SetBytes(key, []byte(regime), p.ttl)
	return regime, nil
}

type CachedSentimentProvider struct {
	inner domsvc.SentimentProvider
	cache cache.BytesCache
	ttl   time.Duration
}

func NewCachedSentimentProvider(inner domsvc.SentimentProvider, c cache.BytesCache, ttl time.Duration) *CachedSentimentProvider {
	return &CachedSentimentProvider{inner: inner, cache: c, ttl: ttl}
}

func (p *CachedSentimentProvider) Sentiment(ctx context.Context, asset string) (float64, error) {
	key := "sentiment:" + asset
	if b, ok, err := p.cache.GetBytes(key); err == nil && ok {
		var score float64
		if json.Unmarshal(b, &score) == nil {
			return score, nil
		}
	}
	score, err := p.inner.Sentiment(ctx, asset)
	if err != nil {
		return 0, err
	}
	if b, err := json.Marshal(score); err == nil {
		_ = p.cache.SetBytes(key, b, p.ttl)
	}
	return score, nil
}

var (
	_ domsvc.RegimeProvider    = (*CachedRegimeProvider)(nil)
	_ domsvc.SentimentProvider = (*CachedSentimentProvider)(nil)
)
