package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/models"
	domrepo "github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/repository"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/eventbus"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/logger"
)

// DecisionRouter subscribes to the decision channel and fans every
// decision out to the audit archive and the external sink. Both legs
// are best effort: the bus log already holds the durable record, so a
// failed archive write or mirror publish is counted and logged, never
// retried inline.
type DecisionRouter struct {
	bus     *eventbus.Bus
	archive domrepo.DecisionArchive // optional
	sink    domrepo.DecisionSink    // optional
	metrics domrepo.Metrics
	lg      *logger.Logger

	timeout time.Duration
	sub     *eventbus.Subscription
}

func NewDecisionRouter(bus *eventbus.Bus, archive domrepo.DecisionArchive, sink domrepo.DecisionSink, m domrepo.Metrics, lg *logger.Logger) *DecisionRouter {
	return &DecisionRouter{
		bus:     bus,
		archive: archive,
		sink:    sink,
		metrics: m,
		lg:      lg,
		timeout: 10 * time.Second,
	}
}

// Start attaches the router to the decision channel. Delivery is
// async so slow storage never stalls the publisher.
func (r *DecisionRouter) Start(ctx context.Context) error {
	if r.archive != nil {
		if err := r.archive.Init(ctx); err != nil {
			return fmt.Errorf("archive init: %w", err)
		}
	}
	r.sub = r.bus.SubscribeAsync([]models.ChannelType{models.ChannelDecision}, r.route)
	return nil
}

func (r *DecisionRouter) Stop() {
	if r.sub != nil {
		r.bus.Unsubscribe(r.sub)
		r.sub = nil
	}
}

func (r *DecisionRouter) route(e *models.Event) {
	dec, err := decisionFromEvent(e)
	if err != nil {
		r.metrics.RecordError("router_decode")
		r.lg.Warn("router: undecodable decision payload", logger.String("event_id", e.ID), logger.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if r.archive != nil {
		if err := r.archive.Store(ctx, dec); err != nil {
			r.metrics.RecordError("router_archive")
			r.lg.Error("router: archive store failed", logger.String("signal_id", dec.SignalID), logger.Error(err))
		}
	}
	if r.sink != nil {
		if err := r.sink.Publish(ctx, dec); err != nil {
			r.metrics.RecordError("router_sink")
			r.lg.Error("router: sink publish failed", logger.String("signal_id", dec.SignalID), logger.Error(err))
		}
	}
}

func decisionFromEvent(e *models.Event) (*models.Decision, error) {
	b, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("re-marshal payload: %w", err)
	}
	var dec models.Decision
	if err := json.Unmarshal(b, &dec); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	if dec.SignalID == "" {
		return nil, fmt.Errorf("decision missing signal_id")
	}
	return &dec, nil
}
