package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes outbox entries to their topic, keyed by partition
// key so that all events of one deal land on one partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Transport:    transport,
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, entry domain.OutboxEntry) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: entry.Topic,
		Key:   []byte(entry.PartitionKey),
		Value: entry.Payload,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "outbox-id", Value: []byte(entry.ID)},
			{Key: "idempotency-key", Value: []byte(entry.IdempotencyKey)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
