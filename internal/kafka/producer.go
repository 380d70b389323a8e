package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/refset/freight-risk-quoting/internal/models"
)

// Publisher announces completed runs and quotes to downstream consumers.
type Publisher interface {
	PublishSnapshot(ctx context.Context, snap models.RiskSnapshot, kpi models.KPI) error
	PublishQuote(ctx context.Context, q models.Quote) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer sends snapshot and quote events to Kafka, keyed by shipment id.
type Producer struct {
	snapshotsWriter messageWriter
	quotesWriter    messageWriter
	log             *zap.Logger
}

// SnapshotEvent is the value written to the snapshots topic.
type SnapshotEvent struct {
	Type     string              `json:"type"`
	Snapshot models.RiskSnapshot `json:"snapshot"`
	KPI      models.KPI          `json:"kpi"`
}

// QuoteEvent is the value written to the quotes topic.
type QuoteEvent struct {
	Type  string       `json:"type"`
	Quote models.Quote `json:"quote"`
}

// NewProducer creates a new Kafka producer with one writer per topic.
func NewProducer(brokers []string, snapshotsTopic, quotesTopic string, log *zap.Logger) *Producer {
	return &Producer{
		snapshotsWriter: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    snapshotsTopic,
			Balancer: &kafka.Hash{},
		},
		quotesWriter: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    quotesTopic,
			Balancer: &kafka.Hash{},
		},
		log: log,
	}
}

func (p *Producer) send(ctx context.Context, w messageWriter, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: data}); err != nil {
		return fmt.Errorf("write event %s: %w", key, err)
	}
	p.log.Debug("sent event to kafka", zap.String("key", key))
	return nil
}

// PublishSnapshot writes a snapshot event to the snapshots topic.
func (p *Producer) PublishSnapshot(ctx context.Context, snap models.RiskSnapshot, kpi models.KPI) error {
	return p.send(ctx, p.snapshotsWriter, snap.ShipmentID, SnapshotEvent{Type: "RiskSnapshot", Snapshot: snap, KPI: kpi})
}

// PublishQuote writes a quote event to the quotes topic.
func (p *Producer) PublishQuote(ctx context.Context, q models.Quote) error {
	return p.send(ctx, p.quotesWriter, q.ShipmentID, QuoteEvent{Type: "FreightQuote", Quote: q})
}

// Close closes the Kafka writers
func (p *Producer) Close() error {
	if err := p.snapshotsWriter.Close(); err != nil {
		return err
	}
	return p.quotesWriter.Close()
}

// Discard is the Publisher used when no brokers are configured.
type Discard struct{}

func (Discard) PublishSnapshot(context.Context, models.RiskSnapshot, models.KPI) error { return nil }
func (Discard) PublishQuote(context.Context, models.Quote) error                      { return nil }
func (Discard) Close() error                                                          { return nil }
