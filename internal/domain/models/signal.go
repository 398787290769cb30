package models

import "strings"

// Direction values carried by inbound signals.
const (
	DirectionLong  = "long"
	DirectionShort = "short"
)

// Market regime states reported by the regime collaborator.
const (
	RegimeTrendingUp     = "trending_up"
	RegimeTrendingDown   = "trending_down"
	RegimeRanging        = "ranging"
	RegimeHighVolatility = "high_volatility"
	RegimeLowVolatility  = "low_volatility"
)

// Circuit breaker states gating new BUY decisions. The transition
// policy lives outside this core; the processor only carries the value.
const (
	CircuitClosed   = "CLOSED"
	CircuitOpen     = "OPEN"
	CircuitHalfOpen = "HALF_OPEN"
)

// Signal is an inbound trading signal before enrichment.
type Signal struct {
	ID        string  `json:"signal_id,omitempty"`
	Symbol    string  `json:"symbol"`
	Direction string  `json:"direction"`
	Price     float64 `json:"price"`
	DeltaPct  float64 `json:"delta_pct"`
	Volume24h float64 `json:"volume_24h"`
	Source    string  `json:"source,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// IsLong reports whether the signal is long-directional. Anything that
// is not explicitly long is treated as short for exit sizing.
func (s *Signal) IsLong() bool {
	return strings.EqualFold(s.Direction, DirectionLong)
}

// SignalContext is the per-evaluation snapshot handed to the decision
// engine: raw signal fields plus enrichment and process state. It is
// built fresh per signal and never shared across goroutines.
//
// Enrichment fields are pointers: nil means the collaborator was not
// consulted (or not configured) and the per-check absence policy
// applies. A degraded-but-present default is a non-nil value.
type SignalContext struct {
	SignalID  string
	Symbol    string
	Direction string
	Price     float64
	DeltaPct  float64
	Volume24h float64

	PredictionProb *float64
	Regime         string // empty when unknown
	AnomalyScore   *float64
	NewsScore      *float64

	CircuitState    string
	ActivePositions int
}

// Float returns a pointer to v, for optional enrichment fields.
func Float(v float64) *float64 { return &v }
