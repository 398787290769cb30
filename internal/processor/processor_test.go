package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/models"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/service"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/engine"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/eventbus"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/logger"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/metrics"
)

type stubPrice struct {
	price float64
	err   error
	calls int
}

func (s *stubPrice) Price(context.Context, string) (float64, error) {
	s.calls++
	return s.price, s.err
}

type stubRegime struct {
	regime string
	err    error
}

func (s *stubRegime) CurrentRegime(context.Context, string) (string, error) {
	return s.regime, s.err
}

type stubAnomaly struct {
	score float64
	err   error
}

func (s *stubAnomaly) AnomalyScore(context.Context, string) (float64, error) {
	return s.score, s.err
}

type stubPredictor struct {
	prob float64
	err  error
}

func (s *stubPredictor) Predict(context.Context, *models.Signal) (float64, error) {
	return s.prob, s.err
}

type stubSentiment struct {
	score   float64
	err     error
	symbols []string
}

func (s *stubSentiment) Sentiment(_ context.Context, symbol string) (float64, error) {
	s.symbols = append(s.symbols, symbol)
	return s.score, s.err
}

type stubOutcome struct {
	registered []*models.Decision
	err        error
}

func (s *stubOutcome) Register(_ context.Context, _ *models.Signal, d *models.Decision) (string, error) {
	s.registered = append(s.registered, d)
	return "trk:test", s.err
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	lg, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return lg
}

func testBus(t *testing.T) *eventbus.Bus {
	t.Helper()
	b, err := eventbus.New(t.TempDir(), testLogger(t), metrics.Noop{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func healthyCollaborators() Collaborators {
	return Collaborators{
		Price:     &stubPrice{price: 3.54},
		Regime:    &stubRegime{regime: models.RegimeTrendingUp},
		Anomaly:   &stubAnomaly{score: 0.15},
		Predictor: &stubPredictor{prob: 0.72},
		Sentiment: &stubSentiment{score: 0.2},
	}
}

func healthySignal() *models.Signal {
	return &models.Signal{
		Symbol:    "XVSUSDT",
		Direction: models.DirectionLong,
		Price:     3.50,
		DeltaPct:  2.9,
		Volume24h: 5_300_000,
	}
}

func newTestProcessor(t *testing.T, collab Collaborators, opts ...Option) *Processor {
	t.Helper()
	lg := testLogger(t)
	eng := engine.New(nil, lg, metrics.Noop{})
	return New(testBus(t), eng, collab, lg, metrics.Noop{}, opts...)
}

func TestProcessSignalBuysWhenHealthy(t *testing.T) {
	collab := healthyCollaborators()
	outcome := &stubOutcome{}
	collab.Outcome = outcome
	p := newTestProcessor(t, collab)

	dec, err := p.ProcessSignal(context.Background(), healthySignal())
	require.NoError(t, err)

	assert.Equal(t, models.ActionBuy, dec.Action)
	assert.Equal(t, "XVSUSDT", dec.Symbol)
	assert.Equal(t, 3.54, dec.EntryPrice) // feed price, not signal price
	assert.Equal(t, 0.72, dec.Confidence)
	require.Len(t, outcome.registered, 1)
	assert.Same(t, dec, outcome.registered[0])
}

func TestProcessSignalSkipDoesNotRegisterOutcome(t *testing.T) {
	collab := healthyCollaborators()
	collab.Predictor = &stubPredictor{prob: 0.40}
	outcome := &stubOutcome{}
	collab.Outcome = outcome
	p := newTestProcessor(t, collab)

	dec, err := p.ProcessSignal(context.Background(), healthySignal())
	require.NoError(t, err)

	assert.Equal(t, models.ActionSkip, dec.Action)
	assert.Empty(t, outcome.registered)
}

func TestProcessSignalDegradesCollaboratorFailures(t *testing.T) {
	collab := Collaborators{
		Price:     &stubPrice{err: service.ErrUnavailable},
		Regime:    &stubRegime{err: service.ErrUnavailable},
		Anomaly:   &stubAnomaly{err: service.ErrUnavailable},
		Predictor: &stubPredictor{err: service.ErrUnavailable},
		Sentiment: &stubSentiment{err: service.ErrUnavailable},
	}
	p := newTestProcessor(t, collab)

	dec, err := p.ProcessSignal(context.Background(), healthySignal())
	require.NoError(t, err)

	// degraded defaults: regime ranging (not allowed) and prediction
	// 0.5 (below floor) both fail; anomaly 0.0 and news 0.0 pass
	require.Equal(t, models.ActionSkip, dec.Action)
	assert.ElementsMatch(t, []models.SkipReason{
		models.ReasonRegimeBad, models.ReasonPredictionLow,
	}, dec.Reasons)
	assert.Equal(t, models.RegimeRanging, dec.Values[models.CheckRegime])
	assert.Equal(t, 0.5, dec.Values[models.CheckPrediction])
	assert.Equal(t, 0.0, dec.Values[models.CheckAnomaly])
	assert.Equal(t, 0.0, dec.Values[models.CheckNews])
	assert.Equal(t, 3.50, dec.EntryPrice) // signal price fallback
}

func TestProcessSignalNilCollaboratorsLeaveFieldsAbsent(t *testing.T) {
	p := newTestProcessor(t, Collaborators{})

	dec, err := p.ProcessSignal(context.Background(), healthySignal())
	require.NoError(t, err)

	require.Equal(t, models.ActionSkip, dec.Action)
	assert.False(t, dec.Checks[models.CheckRegime])
	assert.False(t, dec.Checks[models.CheckAnomaly])
	assert.False(t, dec.Checks[models.CheckPrediction])
	assert.Nil(t, dec.Values[models.CheckRegime])
	// absent news stays neutral even with no sentiment provider
	assert.True(t, dec.Checks[models.CheckNews])
	assert.Equal(t, 3.50, dec.EntryPrice)
}

func TestProcessSignalPriceFallbackOnNonPositive(t *testing.T) {
	collab := healthyCollaborators()
	feed := &stubPrice{price: -1}
	collab.Price = feed
	p := newTestProcessor(t, collab)

	dec, err := p.ProcessSignal(context.Background(), healthySignal())
	require.NoError(t, err)
	assert.Equal(t, 1, feed.calls)
	assert.Equal(t, 3.50, dec.EntryPrice)
}

func TestProcessSignalQualifiesSymbolAndSentimentBase(t *testing.T) {
	collab := healthyCollaborators()
	sent := &stubSentiment{score: 0.2}
	collab.Sentiment = sent
	p := newTestProcessor(t, collab)

	sig := healthySignal()
	sig.Symbol = "xvs"
	dec, err := p.ProcessSignal(context.Background(), sig)
	require.NoError(t, err)

	assert.Equal(t, "XVSUSDT", dec.Symbol)
	assert.Equal(t, "XVSUSDT", sig.Symbol)
	require.Len(t, sent.symbols, 1)
	assert.Equal(t, "XVS", sent.symbols[0]) // quote asset stripped
	assert.NotEmpty(t, sig.ID)
	assert.Equal(t, sig.ID, dec.SignalID)
}

func TestProcessSignalRejectsMissingSymbol(t *testing.T) {
	p := newTestProcessor(t, Collaborators{})

	_, err := p.ProcessSignal(context.Background(), &models.Signal{})
	assert.Error(t, err)
	_, err = p.ProcessSignal(context.Background(), nil)
	assert.Error(t, err)
}

func TestProcessSignalRespectsCircuitAndPositions(t *testing.T) {
	p := newTestProcessor(t, healthyCollaborators())
	p.UpdateCircuitState(models.CircuitOpen)

	dec, err := p.ProcessSignal(context.Background(), healthySignal())
	require.NoError(t, err)
	assert.Contains(t, dec.Reasons, models.ReasonCircuitOpen)

	p.UpdateCircuitState(models.CircuitClosed)
	for i, s := range []string{"A", "B", "C", "D", "E"} {
		p.AddPosition(s+"USDT", float64(i)+1)
	}
	require.Equal(t, 5, p.ActivePositions())

	dec, err = p.ProcessSignal(context.Background(), healthySignal())
	require.NoError(t, err)
	assert.Contains(t, dec.Reasons, models.ReasonMaxPositions)

	p.RemovePosition("AUSDT")
	assert.Equal(t, 4, p.ActivePositions())
}

func TestStartProcessesBusSignalsEndToEnd(t *testing.T) {
	lg := testLogger(t)
	bus := testBus(t)
	eng := engine.New(nil, lg, metrics.Noop{})
	p := New(bus, eng, healthyCollaborators(), lg, metrics.Noop{}, WithWorkers(2))

	decisions := make(chan *models.Event, 4)
	bus.SubscribeAsync([]models.ChannelType{models.ChannelDecision}, func(e *models.Event) {
		decisions <- e
	})

	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background())) // double start

	_, err := bus.Publish(models.ChannelSignal, healthySignal(), "test")
	require.NoError(t, err)

	select {
	case e := <-decisions:
		m := e.PayloadMap()
		require.NotNil(t, m)
		assert.Equal(t, string(models.ActionBuy), m["action"])
		assert.Equal(t, "XVSUSDT", m["symbol"])
	case <-time.After(2 * time.Second):
		t.Fatal("no decision published")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.StopAndDrain(ctx))

	st := p.Stats()
	assert.False(t, st.Running)
	assert.Equal(t, uint64(1), st.Processed)
}

func TestUndecodablePayloadIsDroppedNotFatal(t *testing.T) {
	lg := testLogger(t)
	bus := testBus(t)
	eng := engine.New(nil, lg, metrics.Noop{})
	p := New(bus, eng, healthyCollaborators(), lg, metrics.Noop{})

	require.NoError(t, p.Start(context.Background()))

	// signal payload must be an object; a scalar fails decoding
	_, err := bus.Publish(models.ChannelSignal, "not a signal", "test")
	require.NoError(t, err)
	_, err = bus.Publish(models.ChannelSignal, healthySignal(), "test")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.StopAndDrain(ctx))

	st := p.Stats()
	assert.Equal(t, uint64(1), st.Processed)
	assert.Equal(t, uint64(1), st.Failed)
}

func TestQualifySymbolAndBaseAsset(t *testing.T) {
	p := newTestProcessor(t, Collaborators{})

	assert.Equal(t, "BTCUSDT", p.qualifySymbol(" btc "))
	assert.Equal(t, "BTCUSDT", p.qualifySymbol("BTCUSDT"))
	assert.Equal(t, "BTC", baseAsset("BTCUSDT", "USDT"))
	assert.Equal(t, "USDT", baseAsset("USDT", "USDT"))
	assert.Equal(t, "BTC", baseAsset("BTC", "USDT"))
}
