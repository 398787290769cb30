package repository

import (
	"context"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/models"
)

// DecisionArchive persists decision records for later audit queries.
type DecisionArchive interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, d *models.Decision) error
	Close() error
}

// DecisionSink forwards decision records to an external transport
// (e.g. a Kafka topic) for downstream consumers.
type DecisionSink interface {
	Publish(ctx context.Context, d *models.Decision) error
	Close() error
}

type Metrics interface {
	RecordEventPublished(channel string)
	RecordEventDelivered(channel string)
	RecordDecision(action string)
	RecordSkipReason(reason string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordLastPrice(symbol string, price float64)
}
