package engine

import (
	"time"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/models"
)

// Evidence records one check's outcome plus the raw value it saw, so
// the decision's audit trail can show why each check went the way it
// did. Reason is set only on failure.
type Evidence struct {
	Name   string
	OK     bool
	Value  interface{}
	Reason models.SkipReason
}

// Absent required data fails its check. The one asymmetric default is
// news: a missing news score passes with neutral 0.0. Intentional,
// not a bug.

func checkRegime(sc *models.SignalContext, p *models.PolicyConfig) Evidence {
	ev := Evidence{Name: models.CheckRegime, Reason: models.ReasonRegimeBad}
	if sc.Regime == "" {
		ev.Value = nil
		return ev
	}
	ev.Value = sc.Regime
	ev.OK = p.RegimeAllowed(sc.Regime)
	return ev
}

func checkAnomaly(sc *models.SignalContext, p *models.PolicyConfig) Evidence {
	ev := Evidence{Name: models.CheckAnomaly, Reason: models.ReasonAnomalyHigh}
	if sc.AnomalyScore == nil {
		ev.Value = nil
		return ev
	}
	score := *sc.AnomalyScore
	ev.Value = score
	if score >= p.AnomalyCritical {
		return ev // hard fail regardless of anomaly_max
	}
	ev.OK = score < p.AnomalyMax
	return ev
}

func checkPrediction(sc *models.SignalContext, p *models.PolicyConfig) Evidence {
	ev := Evidence{Name: models.CheckPrediction, Reason: models.ReasonPredictionLow}
	if sc.PredictionProb == nil {
		ev.Value = nil
		return ev
	}
	prob := *sc.PredictionProb
	ev.Value = prob
	ev.OK = prob >= p.PredictionMin
	return ev
}

func checkCircuit(sc *models.SignalContext, _ *models.PolicyConfig) Evidence {
	return Evidence{
		Name:   models.CheckCircuit,
		OK:     sc.CircuitState == models.CircuitClosed,
		Value:  sc.CircuitState,
		Reason: models.ReasonCircuitOpen,
	}
}

func checkVolume(sc *models.SignalContext, p *models.PolicyConfig) Evidence {
	return Evidence{
		Name:   models.CheckVolume,
		OK:     sc.Volume24h >= p.VolumeMin24h,
		Value:  sc.Volume24h,
		Reason: models.ReasonVolumeLow,
	}
}

func checkNews(sc *models.SignalContext, p *models.PolicyConfig) Evidence {
	score := 0.0 // absent news is neutral
	if sc.NewsScore != nil {
		score = *sc.NewsScore
	}
	return Evidence{
		Name:   models.CheckNews,
		OK:     score >= p.NewsNegativeThreshold,
		Value:  score,
		Reason: models.ReasonNewsNegative,
	}
}

func checkCooldown(lastBuy time.Time, now time.Time, p *models.PolicyConfig) Evidence {
	ev := Evidence{Name: models.CheckCooldown, Reason: models.ReasonCooldownActive}
	if lastBuy.IsZero() {
		ev.OK = true
		ev.Value = nil // no prior BUY
		return ev
	}
	elapsed := now.Sub(lastBuy).Seconds()
	ev.Value = elapsed
	ev.OK = elapsed >= p.CooldownSeconds
	return ev
}

func checkPositions(sc *models.SignalContext, p *models.PolicyConfig) Evidence {
	return Evidence{
		Name:   models.CheckPositions,
		OK:     sc.ActivePositions < p.MaxPositions,
		Value:  sc.ActivePositions,
		Reason: models.ReasonMaxPositions,
	}
}
