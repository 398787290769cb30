package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/models"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/logger"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/metrics"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	lg, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return lg
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(nil, testLogger(t), metrics.Noop{})
}

// healthyContext is a context that passes all eight checks under the
// default policy.
func healthyContext() *models.SignalContext {
	return &models.SignalContext{
		SignalID:        "sig:XVSUSDT:1",
		Symbol:          "XVSUSDT",
		Direction:       models.DirectionLong,
		Price:           3.54,
		DeltaPct:        2.9,
		Volume24h:       5_300_000,
		PredictionProb:  models.Float(0.72),
		Regime:          models.RegimeTrendingUp,
		AnomalyScore:    models.Float(0.15),
		NewsScore:       models.Float(0.2),
		CircuitState:    models.CircuitClosed,
		ActivePositions: 0,
	}
}

func TestEvaluateHealthySignalBuys(t *testing.T) {
	e := newTestEngine(t)

	d := e.Evaluate(healthyContext())

	require.Equal(t, models.ActionBuy, d.Action)
	assert.True(t, d.AllChecksPassed())
	assert.Empty(t, d.Reasons)
	assert.Equal(t, 0.72, d.Confidence)
	assert.Equal(t, 1.0, d.PositionSizeModifier)
	assert.Equal(t, 2.0, d.StopLossPct)
	assert.InDelta(t, 5.8, d.TakeProfitPct, 1e-9)
	assert.Equal(t, 3.54, d.EntryPrice)
	assert.True(t, d.IsValid())
	assert.NotEmpty(t, d.Timestamp)
}

func TestEvaluateLowPredictionSkips(t *testing.T) {
	e := newTestEngine(t)

	sc := healthyContext()
	sc.PredictionProb = models.Float(0.45)
	d := e.Evaluate(sc)

	require.Equal(t, models.ActionSkip, d.Action)
	assert.Equal(t, []models.SkipReason{models.ReasonPredictionLow}, d.Reasons)
	assert.False(t, d.Checks[models.CheckPrediction])
	// 7 of 8 checks passed
	assert.InDelta(t, 0.875, d.Confidence, 1e-9)
	// no sizing on skip
	assert.Zero(t, d.PositionSizeModifier)
	assert.True(t, d.IsValid())
}

func TestEvaluateOpenCircuitSkips(t *testing.T) {
	e := newTestEngine(t)

	sc := healthyContext()
	sc.CircuitState = models.CircuitOpen
	d := e.Evaluate(sc)

	require.Equal(t, models.ActionSkip, d.Action)
	assert.Contains(t, d.Reasons, models.ReasonCircuitOpen)
	assert.False(t, d.Checks[models.CheckCircuit])
}

func TestEvaluateCriticalAnomalyHardFails(t *testing.T) {
	e := newTestEngine(t)

	sc := healthyContext()
	sc.AnomalyScore = models.Float(0.55)
	d := e.Evaluate(sc)

	require.Equal(t, models.ActionSkip, d.Action)
	assert.Contains(t, d.Reasons, models.ReasonAnomalyHigh)
	assert.Equal(t, 0.55, d.Values[models.CheckAnomaly])
}

func TestEvaluateAbsentEnrichmentFailsClosed(t *testing.T) {
	e := newTestEngine(t)

	sc := healthyContext()
	sc.Regime = ""
	sc.AnomalyScore = nil
	sc.PredictionProb = nil
	d := e.Evaluate(sc)

	require.Equal(t, models.ActionSkip, d.Action)
	assert.False(t, d.Checks[models.CheckRegime])
	assert.False(t, d.Checks[models.CheckAnomaly])
	assert.False(t, d.Checks[models.CheckPrediction])
	assert.Nil(t, d.Values[models.CheckRegime])
}

func TestEvaluateAbsentNewsIsNeutral(t *testing.T) {
	e := newTestEngine(t)

	sc := healthyContext()
	sc.NewsScore = nil
	d := e.Evaluate(sc)

	require.Equal(t, models.ActionBuy, d.Action)
	assert.True(t, d.Checks[models.CheckNews])
	assert.Equal(t, 0.0, d.Values[models.CheckNews])
}

func TestEvaluateCooldownBlocksSecondBuy(t *testing.T) {
	e := newTestEngine(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	first := e.Evaluate(healthyContext())
	require.Equal(t, models.ActionBuy, first.Action)

	last, ok := e.LastBuy("xvsusdt")
	require.True(t, ok)
	assert.Equal(t, now, last)

	now = now.Add(90 * time.Second)
	second := e.Evaluate(healthyContext())
	require.Equal(t, models.ActionSkip, second.Action)
	assert.Equal(t, []models.SkipReason{models.ReasonCooldownActive}, second.Reasons)
	assert.InDelta(t, 90.0, second.Values[models.CheckCooldown].(float64), 1e-9)

	now = now.Add(300 * time.Second)
	third := e.Evaluate(healthyContext())
	require.Equal(t, models.ActionBuy, third.Action)
}

func TestEvaluateSkipDoesNotArmCooldown(t *testing.T) {
	e := newTestEngine(t)

	sc := healthyContext()
	sc.PredictionProb = models.Float(0.10)
	d := e.Evaluate(sc)
	require.Equal(t, models.ActionSkip, d.Action)

	_, ok := e.LastBuy("XVSUSDT")
	assert.False(t, ok)

	d = e.Evaluate(healthyContext())
	assert.Equal(t, models.ActionBuy, d.Action)
}

func TestEvaluatePositionLimit(t *testing.T) {
	e := newTestEngine(t)

	sc := healthyContext()
	sc.ActivePositions = 5
	d := e.Evaluate(sc)

	require.Equal(t, models.ActionSkip, d.Action)
	assert.Contains(t, d.Reasons, models.ReasonMaxPositions)
	assert.Equal(t, 5, d.Values[models.CheckPositions])
}

func TestEvaluateBlockedSymbolShortCircuits(t *testing.T) {
	e := newTestEngine(t)
	e.BlockSymbol("xvsusdt")

	d := e.Evaluate(healthyContext())

	require.Equal(t, models.ActionSkip, d.Action)
	require.Equal(t, []models.SkipReason{models.ReasonSymbolBlocked}, d.Reasons)
	require.Len(t, d.Checks, len(models.CheckOrder))
	for _, name := range models.CheckOrder {
		assert.False(t, d.Checks[name], name)
		assert.Nil(t, d.Values[name], name)
	}
	assert.True(t, d.IsValid())

	e.UnblockSymbol("XVSUSDT")
	d = e.Evaluate(healthyContext())
	assert.Equal(t, models.ActionBuy, d.Action)
}

func TestEvaluateMultipleFailuresCollectAllReasons(t *testing.T) {
	e := newTestEngine(t)

	sc := healthyContext()
	sc.Regime = models.RegimeRanging
	sc.PredictionProb = models.Float(0.2)
	sc.Volume24h = 1_000
	d := e.Evaluate(sc)

	require.Equal(t, models.ActionSkip, d.Action)
	assert.Equal(t, []models.SkipReason{
		models.ReasonRegimeBad,
		models.ReasonPredictionLow,
		models.ReasonVolumeLow,
	}, d.Reasons)
	assert.InDelta(t, 5.0/8.0, d.Confidence, 1e-9)
}

func TestSizingStrongPredictionAndVolume(t *testing.T) {
	e := newTestEngine(t)

	sc := healthyContext()
	sc.PredictionProb = models.Float(0.85)
	sc.Volume24h = 25_000_000
	d := e.Evaluate(sc)

	require.Equal(t, models.ActionBuy, d.Action)
	assert.InDelta(t, 1.8, d.PositionSizeModifier, 1e-9)
	assert.Equal(t, 0.85, d.Confidence)
}

func TestSizingShortTakeProfit(t *testing.T) {
	e := newTestEngine(t)

	sc := healthyContext()
	sc.Direction = models.DirectionShort
	sc.DeltaPct = 4.0
	d := e.Evaluate(sc)

	require.Equal(t, models.ActionBuy, d.Action)
	assert.InDelta(t, 6.0, d.TakeProfitPct, 1e-9) // max(3, 1.5*4)
}

func TestUpdateConfigAppliesToNextEvaluation(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.UpdateConfig("prediction_min", 0.75))

	d := e.Evaluate(healthyContext()) // prediction 0.72 now below floor
	require.Equal(t, models.ActionSkip, d.Action)
	assert.Contains(t, d.Reasons, models.ReasonPredictionLow)
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	e := newTestEngine(t)

	assert.Error(t, e.UpdateConfig("prediction_min", 1.5))
	assert.Error(t, e.UpdateConfig("anomaly_critical", 0.1)) // below anomaly_max
	assert.Error(t, e.UpdateConfig("no_such_field", 1.0))
	assert.Error(t, e.UpdateConfig("prediction_min", "not a number"))

	// failed updates must not leak into the active policy
	d := e.Evaluate(healthyContext())
	assert.Equal(t, models.ActionBuy, d.Action)
}

func TestUpdateConfigAllowedRegimes(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.UpdateConfig("allowed_regimes", []interface{}{"ranging"}))

	sc := healthyContext()
	sc.Regime = models.RegimeRanging
	d := e.Evaluate(sc)
	assert.Equal(t, models.ActionBuy, d.Action)
}

func TestStats(t *testing.T) {
	e := newTestEngine(t)

	e.Evaluate(healthyContext()) // BUY

	sc := healthyContext()
	sc.Symbol = "BTCUSDT"
	sc.CircuitState = models.CircuitOpen
	e.Evaluate(sc) // SKIP

	e.BlockSymbol("dogeusdt")

	st := e.Stats()
	assert.Equal(t, uint64(2), st.Evaluated)
	assert.Equal(t, uint64(1), st.Buys)
	assert.Equal(t, uint64(1), st.Skips)
	assert.Equal(t, 0.5, st.BuyRate)
	assert.Equal(t, uint64(1), st.SkipReasons[string(models.ReasonCircuitOpen)])
	assert.Equal(t, []string{"DOGEUSDT"}, st.Blocked)
	assert.Equal(t, 0.65, st.Config.PredictionMin)
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "XVSUSDT", NormalizeSymbol("  xvsUsdt "))
}
