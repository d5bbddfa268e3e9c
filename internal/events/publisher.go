// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"wyoming-stt-bridge/internal/models"
	"wyoming-stt-bridge/internal/observability/metrics"
	"wyoming-stt-bridge/internal/schema"
)

// Sink receives every published event in addition to Kafka.
type Sink interface {
	Broadcast(eventType string, payload []byte)
}

// Publisher publishes transcript events to separate Kafka topics.
type Publisher struct {
	writerFinal  *kafka.Writer
	writerFailed *kafka.Writer
	principal    string
	topicFinal   string
	topicFailed  string
	enabled      bool
	validator    *schema.Validator
	metrics      *metrics.Metrics

	mu    sync.RWMutex
	sinks []Sink
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers     []string
	TopicFinal  string
	TopicFailed string
	Principal   string
	Enabled     bool
}

// New creates a new Kafka event publisher with separate topics for final and failed transcripts.
func New(cfg *Config) *Publisher {
	p := &Publisher{
		validator: schema.New(),
		metrics:   metrics.DefaultMetrics,
	}

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return p
	}

	p.principal = cfg.Principal
	p.topicFinal = cfg.TopicFinal
	p.topicFailed = cfg.TopicFailed

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	p.writerFinal = newWriter(cfg.Brokers, cfg.TopicFinal, transport)
	p.writerFailed = newWriter(cfg.Brokers, cfg.TopicFailed, transport)
	p.enabled = true

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicFinal", cfg.TopicFinal).
		Str("topicFailed", cfg.TopicFailed).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return p
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// AddSink registers a sink that receives every valid event.
func (p *Publisher) AddSink(s Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, s)
}

// PublishFinal publishes a final transcript event, keyed by connection.
func (p *Publisher) PublishFinal(ctx context.Context, event models.TranscriptFinal) error {
	return p.publish(ctx, p.writerFinal, p.topicFinal, "final", event.ConnectionID, event)
}

// PublishFailed publishes a failed transcription event, keyed by connection.
func (p *Publisher) PublishFailed(ctx context.Context, event models.TranscriptFailed) error {
	return p.publish(ctx, p.writerFailed, p.topicFailed, "failed", event.ConnectionID, event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	if err := p.validator.Validate(event); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Event failed validation")
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	p.broadcast(eventType, payload)

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(topic)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

func (p *Publisher) broadcast(eventType string, payload []byte) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.sinks {
		s.Broadcast(eventType, payload)
	}
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerFinal != nil {
		if e := p.writerFinal.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing final writer")
			err = e
		}
	}
	if p.writerFailed != nil {
		if e := p.writerFailed.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing failed writer")
			err = e
		}
	}
	return err
}
