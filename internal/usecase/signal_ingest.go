package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/models"
	domrepo "github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/repository"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/eventbus"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/cache"
	pkgkafka "github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/kafka"
	"github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/logger"
)

const dedupeTTL = time.Hour

// SignalIngest consumes raw trading signals from Kafka and republishes
// them on the signal channel. The bus assigns identity and the durable
// log, so a consumer group rebalance at worst re-reads messages; the
// dedupe cache keeps those re-reads from becoming duplicate decisions.
type SignalIngest struct {
	topic   string
	bus     *eventbus.Bus
	dedupe  cache.Service // optional
	metrics domrepo.Metrics
	lg      *logger.Logger
}

func NewSignalIngest(topic string, bus *eventbus.Bus, dedupe cache.Service, m domrepo.Metrics, lg *logger.Logger) *SignalIngest {
	return &SignalIngest{topic: topic, bus: bus, dedupe: dedupe, metrics: m, lg: lg}
}

func (h *SignalIngest) Topic() string { return h.topic }

func (h *SignalIngest) Handle(ctx context.Context, b []byte) error {
	var sig models.Signal
	if err := json.Unmarshal(b, &sig); err != nil {
		h.metrics.RecordError("ingest_unmarshal")
		return fmt.Errorf("decode signal: %w", err)
	}
	if sig.Symbol == "" {
		h.metrics.RecordError("ingest_invalid")
		return fmt.Errorf("signal missing symbol")
	}

	if h.dedupe != nil && sig.ID != "" {
		key := "ingest:" + sig.ID
		if seen, err := h.dedupe.Exists(ctx, key); err == nil && seen {
			h.lg.Debug("ingest: duplicate signal skipped", logger.String("signal_id", sig.ID))
			return nil
		}
		if err := h.dedupe.Set(ctx, key, 1, dedupeTTL); err != nil {
			h.metrics.RecordError("ingest_dedupe")
			h.lg.Warn("ingest: dedupe mark failed", logger.String("signal_id", sig.ID), logger.Error(err))
		}
	}

	if sig.Timestamp != "" {
		if ts, err := time.Parse(models.EventTimeFormat, sig.Timestamp); err == nil {
			h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(ts).Seconds())
		}
	}

	if _, err := h.bus.Publish(models.ChannelSignal, &sig, "kafka:"+h.topic); err != nil {
		h.metrics.RecordError("ingest_publish")
		return fmt.Errorf("publish signal: %w", err)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*SignalIngest)(nil)
