package events

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
)

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = (*MemoryPublisher)(nil)
)

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers" env:"BROKERS"`
	Topic        string        `yaml:"topic" default:"orders.events" env:"TOPIC"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"5s" env:"WRITE_TIMEOUT"`
}

// Enabled reports whether brokers are configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// KafkaPublisher writes envelopes to a single topic, keyed by order number.
type KafkaPublisher struct {
	w *kafka.Writer
}

// NewKafkaPublisher returns a synchronous publisher that waits for all
// in-sync replicas.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if !cfg.Enabled() {
		return nil, errors.New("kafka brokers are not configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: cfg.WriteTimeout,
		},
	}, nil
}

// Publish writes the envelopes in one batch.
func (p *KafkaPublisher) Publish(ctx context.Context, events ...Envelope) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := e.MarshalJSON()
		if err != nil {
			return errors.Wrapf(err, "encode %s", e.Type)
		}
		headers := []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "event_version", Value: []byte(strconv.Itoa(e.Version))},
		}
		if e.CorrelationID != "" {
			headers = append(headers, kafka.Header{Key: "correlation_id", Value: []byte(e.CorrelationID)})
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(e.Key),
			Value:   value,
			Time:    e.OccurredAt,
			Headers: headers,
		})
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return errors.Wrap(err, "write messages")
	}
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// MemoryPublisher keeps published envelopes in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Envelope
}

func (p *MemoryPublisher) Publish(_ context.Context, events ...Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *MemoryPublisher) Close() error { return nil }

// Events returns a copy of the published envelopes.
func (p *MemoryPublisher) Events() []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Envelope(nil), p.events...)
}
