package enrichment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domsvc "github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/service"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/service/cache"
)

type countingRegime struct {
	regime string
	err    error
	calls  int
}

func (c *countingRegime) CurrentRegime(context.Context, string) (string, error) {
	c.calls++
	return c.regime, c.err
}

type countingSentiment struct {
	score float64
	calls int
}

func (c *countingSentiment) Sentiment(context.Context, string) (float64, error) {
	c.calls++
	return c.score, nil
}

func TestCachedRegimeProviderMemoizes(t *testing.T) {
	inner := &countingRegime{regime: "trending_up"}
	p := NewCachedRegimeProvider(inner, cache.NewTTLCache(), 5*time.Second)

	for i := 0; i < 3; i++ {
		regime, err := p.CurrentRegime(context.Background(), "BTCUSDT")
		require.NoError(t, err)
		assert.Equal(t, "trending_up", regime)
	}
	assert.Equal(t, 1, inner.calls)

	// different symbol is a separate key
	_, err := p.CurrentRegime(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedRegimeProviderDoesNotCacheErrors(t *testing.T) {
	inner := &countingRegime{err: domsvc.ErrUnavailable}
	p := NewCachedRegimeProvider(inner, cache.NewTTLCache(), 5*time.Second)

	_, err := p.CurrentRegime(context.Background(), "BTCUSDT")
	require.Error(t, err)
	_, err = p.CurrentRegime(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedSentimentProviderMemoizes(t *testing.T) {
	inner := &countingSentiment{score: 0.35}
	p := NewCachedSentimentProvider(inner, cache.NewTTLCache(), 5*time.Second)

	for i := 0; i < 3; i++ {
		score, err := p.Sentiment(context.Background(), "BTC")
		require.NoError(t, err)
		assert.Equal(t, 0.35, score)
	}
	assert.Equal(t, 1, inner.calls)
}

func TestNullProvidersReportUnavailable(t *testing.T) {
	_, err := NullPriceFeed{}.Price(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, domsvc.ErrUnavailable)
	_, err = NullRegimeProvider{}.CurrentRegime(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, domsvc.ErrUnavailable)
	_, err = NullAnomalyProvider{}.AnomalyScore(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, domsvc.ErrUnavailable)
	_, err = NullPredictor{}.Predict(context.Background(), nil)
	assert.ErrorIs(t, err, domsvc.ErrUnavailable)
	_, err = NullSentimentProvider{}.Sentiment(context.Background(), "BTC")
	assert.ErrorIs(t, err, domsvc.ErrUnavailable)
}
