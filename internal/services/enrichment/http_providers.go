package enrichment

import (
	"context"
	"fmt"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/models"
	domsvc "github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/service"
)

// HTTPRegimeProvider asks the regime sidecar for the symbol's current
// market regime label.
type HTTPRegimeProvider struct{ base *httpBase }

func NewHTTPRegimeProvider(cfg Config) *HTTPRegimeProvider {
	return &HTTPRegimeProvider{base: newHTTPBase(cfg)}
}

type regimeRequest struct {
	Symbol string `json:"symbol"`
}

type regimeResponse struct {
	Regime     string  `json:"regime"`
	Confidence float64 `json:"confidence"`
}

func (p *HTTPRegimeProvider) CurrentRegime(ctx context.Context, symbol string) (string, error) {
	var rr regimeResponse
	if err := p.base.postJSONRetry(ctx, "/regime/current", regimeRequest{Symbol: symbol}, &rr); err != nil {
		return "", fmt.Errorf("regime: %w", err)
	}
	if rr.Regime == "" {
		return "", fmt.Errorf("regime: empty label for %s", symbol)
	}
	return rr.Regime, nil
}

var _ domsvc.RegimeProvider = (*HTTPRegimeProvider)(nil)

// HTTPAnomalyProvider scores market manipulation likelihood.
type HTTPAnomalyProvider struct{ base *httpBase }

func NewHTTPAnomalyProvider(cfg Config) *HTTPAnomalyProvider {
	return &HTTPAnomalyProvider{base: newHTTPBase(cfg)}
}

type anomalyRequest struct {
	Symbol string `json:"symbol"`
}

type anomalyResponse struct {
	Score float64 `json:"score"`
}

func (p *HTTPAnomalyProvider) AnomalyScore(ctx context.Context, symbol string) (float64, error) {
	var ar anomalyResponse
	if err := p.base.postJSONRetry(ctx, "/anomaly/score", anomalyRequest{Symbol: symbol}, &ar); err != nil {
		return 0, fmt.Errorf("anomaly: %w", err)
	}
	if ar.Score < 0 || ar.Score > 1 {
		return 0, fmt.Errorf("anomaly: score %v out of range for %s", ar.Score, symbol)
	}
	return ar.Score, nil
}

var _ domsvc.AnomalyProvider = (*HTTPAnomalyProvider)(nil)

// HTTPPredictor asks the model sidecar for a success probability.
type HTTPPredictor struct{ base *httpBase }

func NewHTTPPredictor(cfg Config) *HTTPPredictor {
	return &HTTPPredictor{base: newHTTPBase(cfg)}
}

type predictRequest struct {
	Symbol    string  `json:"symbol"`
	Direction string  `json:"direction"`
	Price     float64 `json:"price"`
	DeltaPct  float64 `json:"delta_pct"`
	Volume24h float64 `json:"volume_24h"`
}

type predictResponse struct {
	Probability float64 `json:"probability"`
}

func (p *HTTPPredictor) Predict(ctx context.Context, sig *models.Signal) (float64, error) {
	req := predictRequest{
		Symbol:    sig.Symbol,
		Direction: sig.Direction,
		Price:     sig.Price,
		DeltaPct:  sig.DeltaPct,
		Volume24h: sig.Volume24h,
	}
	var pr predictResponse
	if err := p.base.postJSONRetry(ctx, "/predict", req, &pr); err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}
	if pr.Probability < 0 || pr.Probability > 1 {
		return 0, fmt.Errorf("predict: probability %v out of range for %s", pr.Probability, sig.Symbol)
	}
	return pr.Probability, nil
}

var _ domsvc.Predictor = (*HTTPPredictor)(nil)

// HTTPSentimentProvider aggregates news sentiment for a base asset.
type HTTPSentimentProvider struct{ base *httpBase }

func NewHTTPSentimentProvider(cfg Config) *HTTPSentimentProvider {
	return &HTTPSentimentProvider{base: newHTTPBase(cfg)}
}

type sentimentResponse struct {
	Score float64 `json:"score"`
}

func (p *HTTPSentimentProvider) Sentiment(ctx context.Context, asset string) (float64, error) {
	var sr sentimentResponse
	q := map[string][]string{"asset": {asset}}
	if err := p.base.getJSON(ctx, "/news/sentiment", q, &sr); err != nil {
		return 0, fmt.Errorf("sentiment: %w", err)
	}
	if sr.Score < -1 || sr.Score > 1 {
		return 0, fmt.Errorf("sentiment: score %v out of range for %s", sr.Score, asset)
	}
	return sr.Score, nil
}

var _ domsvc.SentimentProvider = (*HTTPSentimentProvider)(nil)

// HTTPPriceFeed returns the current market price for a symbol.
type HTTPPriceFeed struct{ base *httpBase }

func NewHTTPPriceFeed(cfg Config) *HTTPPriceFeed {
	return &HTTPPriceFeed{base: newHTTPBase(cfg)}
}

type priceResponse struct {
	Price float64 `json:"price"`
}

func (p *HTTPPriceFeed) Price(ctx context.Context, symbol string) (float64, error) {
	var pr priceResponse
	q := map[string][]string{"symbol": {symbol}}
	if err := p.base.getJSON(ctx, "/price", q, &pr); err != nil {
		return 0, fmt.Errorf("price: %w", err)
	}
	if pr.Price <= 0 {
		return 0, fmt.Errorf("price: non-positive price %v for %s", pr.Price, symbol)
	}
	return pr.Price, nil
}

var _ domsvc.PriceFeed = (*HTTPPriceFeed)(nil)
