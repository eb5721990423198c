package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/Aidin1998/pincex_clob/internal/config"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter is the part of kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes committed events to a Kafka topic, keyed by market.
type KafkaPublisher struct {
	writer messageWriter
	source string
	logger *zap.Logger
}

var _ model.EventPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a synchronous writer for cfg.Topic.
func NewKafkaPublisher(cfg config.KafkaConfig, source string, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher needs at least one broker")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka publisher needs a topic")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.CRC32Balancer{},
		BatchTimeout: durationOr(cfg.BatchTimeout, 10*time.Millisecond),
		WriteTimeout: durationOr(cfg.WriteTimeout, time.Second),
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
	}

	switch cfg.Compression {
	case "gzip":
		writer.Compression = kafka.Gzip
	case "lz4":
		writer.Compression = kafka.Lz4
	case "zstd":
		writer.Compression = kafka.Zstd
	case "none":
	default:
		writer.Compression = kafka.Snappy
	}

	return newKafkaPublisher(writer, source, logger), nil
}

func newKafkaPublisher(w messageWriter, source string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, source: source, logger: logger.Named("kafka")}
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// PublishEvents writes events in one batch.
func (p *KafkaPublisher) PublishEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	for i, ev := range events {
		key, value, err := encodeEvent(p.source, ev)
		if err != nil {
			return err
		}
		msgs[i] = kafka.Message{
			Key:   key,
			Value: value,
			Time:  ev.Time,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(MessageTypeOf(ev))},
				{Key: "version", Value: []byte(SchemaVersion)},
			},
		}
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("Failed to publish events",
			zap.Error(err),
			zap.Int("count", len(msgs)),
			zap.Uint64("first_sequence", events[0].Sequence))
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
