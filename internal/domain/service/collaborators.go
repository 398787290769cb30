package service

import (
	"context"
	"errors"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/models"
)

// ErrUnavailable is returned by a collaborator that cannot serve the
// request right now (not configured, circuit open, upstream down).
// Callers degrade to their per-field defaults instead of propagating.
var ErrUnavailable = errors.New("collaborator unavailable")

// PriceFeed resolves the current price for a symbol.
type PriceFeed interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// RegimeProvider reports the current market regime for a symbol
// (one of the models.Regime* states).
type RegimeProvider interface {
	CurrentRegime(ctx context.Context, symbol string) (string, error)
}

// AnomalyProvider scores current market abnormality in [0, 1].
type AnomalyProvider interface {
	AnomalyScore(ctx context.Context, symbol string) (float64, error)
}

// Predictor returns the model's probability that the signal plays out.
type Predictor interface {
	Predict(ctx context.Context, sig *models.Signal) (float64, error)
}

// SentimentProvider scores news sentiment for an asset in [-1, 1].
type SentimentProvider interface {
	Sentiment(ctx context.Context, asset string) (float64, error)
}

// OutcomeTracker registers a BUY decision for downstream outcome
// measurement. Fire-and-forget: failures are logged, never fatal.
type OutcomeTracker interface {
	Register(ctx context.Context, sig *models.Signal, dec *models.Decision) (string, error)
}
