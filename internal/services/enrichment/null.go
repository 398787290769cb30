package enrichment

import (
	"context"
	"fmt"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/models"
	domsvc "github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/service"
)

// Null collaborators stand in when a sidecar is not configured. They
// always report unavailable, so the processor applies its degradation
// defaults and the engine decides from there.

type NullPriceFeed struct{}

func (NullPriceFeed) Price(context.Context, string) (float64, error) {
	return 0, fmt.Errorf("price feed: %w", domsvc.ErrUnavailable)
}

type NullRegimeProvider struct{}

func (NullRegimeProvider) CurrentRegime(context.Context, string) (string, error) {
	return "", fmt.Errorf("regime provider: %w", domsvc.ErrUnavailable)
}

type NullAnomalyProvider struct{}

func (NullAnomalyProvider) AnomalyScore(context.Context, string) (float64, error) {
	return 0, fmt.Errorf("anomaly provider: %w", domsvc.ErrUnavailable)
}

type NullPredictor struct{}

func (NullPredictor) Predict(context.Context, *models.Signal) (float64, error) {
	return 0, fmt.Errorf("predictor: %w", domsvc.ErrUnavailable)
}

type NullSentimentProvider struct{}

func (NullSentimentProvider) Sentiment(context.Context, string) (float64, error) {
	return 0, fmt.Errorf("sentiment provider: %w", domsvc.ErrUnavailable)
}

var (
	_ domsvc.PriceFeed         = NullPriceFeed{}
	_ domsvc.RegimeProvider    = NullRegimeProvider{}
	_ domsvc.AnomalyProvider   = NullAnomalyProvider{}
	_ domsvc.Predictor         = NullPredictor{}
	_ domsvc.SentimentProvider = NullSentimentProvider{}
)
