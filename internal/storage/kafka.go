package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// KafkaConfig holds the optional transcript event side publisher
// configuration. With no brokers the publisher runs in log-only mode.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// KafkaPublisher forwards persisted transcript events to a Kafka topic
// keyed by session id. Best-effort only.
type KafkaPublisher struct {
	writer  *kafka.Writer
	topic   string
	enabled bool
}

func NewKafkaPublisher(cfg KafkaConfig) *KafkaPublisher {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		log.Info().Msg("kafka disabled, transcript side publisher in log-only mode")
		return &KafkaPublisher{topic: cfg.Topic}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}

	log.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("kafka transcript publisher initialized")
	return &KafkaPublisher{writer: writer, topic: cfg.Topic, enabled: true}
}

// Publish writes one event record. In log-only mode it just traces.
func (p *KafkaPublisher) Publish(ctx context.Context, rec EventRecord) error {
	payload, err := json.Marshal(map[string]any{
		"session_id": rec.SessionID,
		"seq":        rec.Seq,
		"source":     rec.Source,
		"fragment":   rec.Fragment,
	})
	if err != nil {
		return fmt.Errorf("marshal event record: %w", err)
	}

	if !p.enabled {
		log.Debug().Str("session_id", rec.SessionID).Uint64("seq", rec.Seq).Msg("kafka log-only publish")
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(rec.SessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte("transcript_event")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
