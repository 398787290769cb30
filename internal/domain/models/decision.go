package models

import (
	"fmt"
	"time"
)

// Action is the terminal outcome of an evaluation.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSkip Action = "SKIP"
	ActionHold Action = "HOLD"
)

// SkipReason explains a failed check. Policy failures are values,
// never errors.
type SkipReason string

const (
	ReasonSymbolBlocked  SkipReason = "SYMBOL_BLOCKED"
	ReasonRegimeBad      SkipReason = "REGIME_UNFAVORABLE"
	ReasonAnomalyHigh    SkipReason = "ANOMALY_HIGH"
	ReasonPredictionLow  SkipReason = "PREDICTION_LOW"
	ReasonCircuitOpen    SkipReason = "CIRCUIT_OPEN"
	ReasonVolumeLow      SkipReason = "VOLUME_LOW"
	ReasonNewsNegative   SkipReason = "NEWS_NEGATIVE"
	ReasonCooldownActive SkipReason = "COOLDOWN_ACTIVE"
	ReasonMaxPositions   SkipReason = "MAX_POSITIONS"
)

// Check names, in evaluation order. The order is fixed so that reasons
// and audit output stay deterministic.
const (
	CheckRegime     = "regime_ok"
	CheckAnomaly    = "anomaly_ok"
	CheckPrediction = "prediction_ok"
	CheckCircuit    = "circuit_ok"
	CheckVolume     = "volume_ok"
	CheckNews       = "news_ok"
	CheckCooldown   = "cooldown_ok"
	CheckPositions  = "positions_ok"
)

// CheckOrder lists all eight checks in evaluation order.
var CheckOrder = []string{
	CheckRegime, CheckAnomaly, CheckPrediction, CheckCircuit,
	CheckVolume, CheckNews, CheckCooldown, CheckPositions,
}

// Decision is the immutable, checksummed result of one evaluation.
// Invariant: Action == BUY implies every ChecksPassed entry is true.
type Decision struct {
	SignalID   string          `json:"signal_id"`
	Symbol     string          `json:"symbol"`
	Action     Action          `json:"action"`
	Confidence float64         `json:"confidence"`
	Timestamp  string          `json:"timestamp"`
	Checks     map[string]bool `json:"checks_passed"`
	// Values holds the raw inputs each check saw, for audit.
	Values  map[string]interface{} `json:"checks_values"`
	Reasons []SkipReason           `json:"reasons"`

	PositionSizeModifier float64 `json:"position_size_modifier"`
	EntryPrice           float64 `json:"entry_price"`
	StopLossPct          float64 `json:"stop_loss_pct"`
	TakeProfitPct        float64 `json:"take_profit_pct"`

	Checksum string `json:"checksum"`
}

// Seal timestamps the decision and computes its checksum over
// {signal_id, action, checks_passed, reasons}. Called exactly once,
// by the engine, before the decision leaves it.
func (d *Decision) Seal() error {
	d.Timestamp = time.Now().UTC().Format(EventTimeFormat)
	sum, err := d.checksum()
	if err != nil {
		return fmt.Errorf("decision checksum: %w", err)
	}
	d.Checksum = sum
	return nil
}

// IsValid recomputes the checksum and compares it to the sealed one.
func (d *Decision) IsValid() bool {
	sum, err := d.checksum()
	if err != nil {
		return false
	}
	return sum == d.Checksum
}

// AllChecksPassed reports whether every recorded check passed.
func (d *Decision) AllChecksPassed() bool {
	if len(d.Checks) == 0 {
		return false
	}
	for _, ok := range d.Checks {
		if !ok {
			return false
		}
	}
	return true
}

func (d *Decision) checksum() (string, error) {
	reasons := make([]string, len(d.Reasons))
	for i, r := range d.Reasons {
		reasons[i] = string(r)
	}
	return ChecksumOf(map[string]interface{}{
		"signal_id":     d.SignalID,
		"action":        string(d.Action),
		"checks_passed": d.Checks,
		"reasons":       reasons,
	})
}
