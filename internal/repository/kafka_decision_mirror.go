package repository

import (
	"context"

	"github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/models"
	domrepo "github.com/acsvalentinacs/HOPE-Minibot-sub001/internal/domain/repository"
	pkgkafka "github.com/acsvalentinacs/HOPE-Minibot-sub001/pkg/kafka"
)

// KafkaDecisionMirror forwards every decision to a Kafka topic so
// downstream systems (execution, dashboards) consume them without
// touching the in-process bus. Keyed by symbol for per-symbol ordering.
type KafkaDecisionMirror struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaDecisionMirror(producer *pkgkafka.Producer, topic string) *KafkaDecisionMirror {
	return &KafkaDecisionMirror{producer: producer, topic: topic}
}

func (m *KafkaDecisionMirror) Publish(ctx context.Context, d *models.Decision) error {
	return m.producer.Publish(ctx, m.topic, []byte(d.Symbol), d)
}

func (m *KafkaDecisionMirror) Close() error {
	if m.producer != nil {
		return m.producer.Close()
	}
	return nil
}

var _ domrepo.DecisionSink = (*KafkaDecisionMirror)(nil)
