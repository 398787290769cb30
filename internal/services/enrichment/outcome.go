package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/models"
	domsvc "github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/service"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/queue"
)

// OutcomeMessageType is the queue message type carrying tracked trades.
const OutcomeMessageType = "outcome.track"

// TrackedTrade is what the outcome worker receives for each approved
// signal.
type TrackedTrade struct {
	TrackingID     string   `json:"tracking_id"`
	SignalID       string   `json:"signal_id"`
	Symbol         string   `json:"symbol"`
	Direction      string   `json:"direction"`
	EntryPrice     float64  `json:"entry_price"`
	PositionSize   float64  `json:"position_size_modifier"`
	StopLossPct    float64  `json:"stop_loss_pct"`
	TakeProfitPct  float64  `json:"take_profit_pct"`
	Confidence     float64  `json:"confidence"`
	RegisteredAt   string   `json:"registered_at"`
	DecisionChecks []string `json:"decision_checks"`
}

// QueueOutcomeTracker hands approved trades to the outcome worker via
// a durable queue. Registration is fire-and-forget from the caller's
// point of view; queue errors surface so the processor can count them.
type QueueOutcomeTracker struct {
	q queue.QueueService
}

func NewQueueOutcomeTracker(q queue.QueueService) *QueueOutcomeTracker {
	return &QueueOutcomeTracker{q: q}
}

func (t *QueueOutcomeTracker) Register(ctx context.Context, sig *models.Signal, dec *models.Decision) (string, error) {
	trackingID := "trk:" + uuid.NewString()
	checks := make([]string, 0, len(dec.Checks))
	for _, name := range models.CheckOrder {
		if dec.Checks[name] {
			checks = append(checks, name)
		}
	}
	msg := TrackedTrade{
		TrackingID:     trackingID,
		SignalID:       dec.SignalID,
		Symbol:         sig.Symbol,
		Direction:      sig.Direction,
		EntryPrice:     sig.Price,
		PositionSize:   dec.PositionSizeModifier,
		StopLossPct:    dec.StopLossPct,
		TakeProfitPct:  dec.TakeProfitPct,
		Confidence:     dec.Confidence,
		RegisteredAt:   time.Now().UTC().Format(models.EventTimeFormat),
		DecisionChecks: checks,
	}
	if err := t.q.PublishMessage(ctx, OutcomeMessageType, msg); err != nil {
		return "", fmt.Errorf("enqueue tracked trade: %w", err)
	}
	return trackingID, nil
}

var _ domsvc.OutcomeTracker = (*QueueOutcomeTracker)(nil)
