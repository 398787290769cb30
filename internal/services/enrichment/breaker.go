package enrichment

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/models"
	domsvc "github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/service"
)

// BreakerSettings shapes the shared circuit breaker behavior for
// sidecar calls: trip after consecutive failures, probe again after
// the open timeout.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

func newBreaker(name string, s BreakerSettings) *gobreaker.CircuitBreaker {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
	})
}

// Breaker-guarded collaborators short-circuit sidecar calls once the
// endpoint keeps failing, so a dead sidecar costs one state check
// instead of a timeout per signal.

type BreakerRegimeProvider struct {
	inner domsvc.RegimeProvider
	cb    *gobreaker.CircuitBreaker
}

func NewBreakerRegimeProvider(inner domsvc.RegimeProvider, s BreakerSettings) *BreakerRegimeProvider {
	return &BreakerRegimeProvider{inner: inner, cb: newBreaker("regime", s)}
}

func (p *BreakerRegimeProvider) CurrentRegime(ctx context.Context, symbol string) (string, error) {
	v, err := p.cb.Execute(func() (interface{}, error) {
		return p.inner.CurrentRegime(ctx, symbol)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

type BreakerAnomalyProvider struct {
	inner domsvc.AnomalyProvider
	cb    *gobreaker.CircuitBreaker
}

func NewBreakerAnomalyProvider(inner domsvc.AnomalyProvider, s BreakerSettings) *BreakerAnomalyProvider {
	return &BreakerAnomalyProvider{inner: inner, cb: newBreaker("anomaly", s)}
}

func (p *BreakerAnomalyProvider) AnomalyScore(ctx context.Context, symbol string) (float64, error) {
	v, err := p.cb.Execute(func() (interface{}, error) {
		return p.inner.AnomalyScore(ctx, symbol)
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

type BreakerPredictor struct {
	inner domsvc.Predictor
	cb    *gobreaker.CircuitBreaker
}

func NewBreakerPredictor(inner domsvc.Predictor, s BreakerSettings) *BreakerPredictor {
	return &BreakerPredictor{inner: inner, cb: newBreaker("predictor", s)}
}

func (p *BreakerPredictor) Predict(ctx context.Context, sig *models.Signal) (float64, error) {
	v, err := p.cb.Execute(func() (interface{}, error) {
		return p.inner.Predict(ctx, sig)
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

type BreakerSentimentProvider struct {
	inner domsvc.SentimentProvider
	cb    *gobreaker.CircuitBreaker
}

func NewBreakerSentimentProvider(inner domsvc.SentimentProvider, s BreakerSettings) *BreakerSentimentProvider {
	return &BreakerSentimentProvider{inner: inner, cb: newBreaker("sentiment", s)}
}

func (p *BreakerSentimentProvider) Sentiment(ctx context.Context, asset string) (float64, error) {
	v, err := p.cb.Execute(func() (interface{}, error) {
		return p.inner.Sentiment(ctx, asset)
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

type BreakerPriceFeed struct {
	inner domsvc.PriceFeed
	cb    *gobreaker.CircuitBreaker
}

func NewBreakerPriceFeed(inner domsvc.PriceFeed, s BreakerSettings) *BreakerPriceFeed {
	return &BreakerPriceFeed{inner: inner, cb: newBreaker("pricefeed", s)}
}

func (p *BreakerPriceFeed) Price(ctx context.Context, symbol string) (float64, error) {
	v, err := p.cb.Execute(func() (interface{}, error) {
		return p.inner.Price(ctx, symbol)
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

var (
	_ domsvc.RegimeProvider    = (*BreakerRegimeProvider)(nil)
	_ domsvc.AnomalyProvider   = (*BreakerAnomalyProvider)(nil)
	_ domsvc.Predictor         = (*BreakerPredictor)(nil)
	_ domsvc.SentimentProvider = (*BreakerSentimentProvider)(nil)
	_ domsvc.PriceFeed         = (*BreakerPriceFeed)(nil)
)
