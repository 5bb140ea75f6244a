package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/config"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
	apperrors "github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/errors"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/pkg/types/common"
)

// ErrProducerClosed is returned for publishes after Close.
var ErrProducerClosed = apperrors.New(apperrors.ErrCodeInternal, "kafka producer is closed")

// Writer abstracts kafka.Writer for testing.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher is the outbound event port used by the application services.
type Publisher interface {
	Publish(ctx context.Context, msg *common.ProducerMessage) error
	PublishEnvelope(ctx context.Context, topic string, key string, envelope *EventEnvelope) error
}

// Producer publishes integration events to Kafka.  Keys are chosen so all
// events for one aggregate land on one partition and stay ordered.
type Producer struct {
	writer Writer
	logger logging.Logger
	closed atomic.Bool

	sent   atomic.Int64
	failed atomic.Int64
}

// NewProducer builds a producer from the application configuration.
func NewProducer(cfg config.KafkaConfig, log logging.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, apperrors.InvalidParam("kafka brokers are required")
	}

	var acks kafka.RequiredAcks
	switch cfg.Acks {
	case "none":
		acks = kafka.RequireNone
	case "one":
		acks = kafka.RequireOne
	default:
		acks = kafka.RequireAll
	}

	maxAttempts := cfg.ProducerRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 100
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout == 0 {
		batchTimeout = time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		MaxAttempts:  maxAttempts,
		BatchSize:    batchSize,
		BatchTimeout: batchTimeout,
		WriteTimeout: writeTimeout,
		RequiredAcks: acks,
	}

	return &Producer{writer: writer, logger: log.Named("kafka_producer")}, nil
}

// NewProducerWithWriter wires a custom writer, used by tests.
func NewProducerWithWriter(w Writer, log logging.Logger) *Producer {
	return &Producer{writer: w, logger: log.Named("kafka_producer")}
}

var _ Publisher = (*Producer)(nil)

// Publish sends one message.
func (p *Producer) Publish(ctx context.Context, msg *common.ProducerMessage) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if msg.Topic == "" {
		return apperrors.InvalidParam("message topic is required")
	}
	if len(msg.Value) == 0 {
		return apperrors.InvalidParam("message value is required")
	}

	if err := p.writer.WriteMessages(ctx, toKafkaMessage(msg)); err != nil {
		p.failed.Add(1)
		p.logger.Error("publish failed", logging.String("topic", msg.Topic), logging.Err(err))
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to publish message")
	}
	p.sent.Add(1)
	p.logger.Debug("message published", logging.String("topic", msg.Topic))
	return nil
}

// PublishEnvelope serializes and sends an event envelope keyed by aggregate.
func (p *Producer) PublishEnvelope(ctx context.Context, topic string, key string, envelope *EventEnvelope) error {
	value, err := envelope.Encode()
	if err != nil {
		return err
	}
	return p.Publish(ctx, &common.ProducerMessage{
		Topic:     topic,
		Key:       []byte(key),
		Value:     value,
		Timestamp: envelope.Timestamp,
		Headers:   map[string]string{"event_type": envelope.EventType},
	})
}

// Stats returns the sent and failed message counts.
func (p *Producer) Stats() (sent, failed int64) {
	return p.sent.Load(), p.failed.Load()
}

// Close shuts the writer down.  Safe to call twice.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.logger.Info("kafka producer closed", logging.Int64("sent", p.sent.Load()))
	return err
}

func toKafkaMessage(msg *common.ProducerMessage) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return kafka.Message{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
		Time:    ts,
	}
}
