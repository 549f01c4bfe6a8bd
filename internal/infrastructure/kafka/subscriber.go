package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/segmentio/kafka-go"
)

// KafkaSubscriber reads with explicit commits. A message is committed only
// after its handler finished, so a crash redelivers it.
type KafkaSubscriber struct {
	cfg    KafkaConfig
	dialer *kafka.Dialer

	mu      sync.Mutex
	readers map[string]*kafka.Reader
}

func NewKafkaSubscriber(cfg KafkaConfig) (*KafkaSubscriber, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka subscriber requires at least one broker")
	}
	dialer, err := newDialer(cfg)
	if err != nil {
		return nil, err
	}
	return &KafkaSubscriber{cfg: cfg, dialer: dialer, readers: make(map[string]*kafka.Reader)}, nil
}

func (s *KafkaSubscriber) Subscribe(ctx context.Context, topic, groupID string) (<-chan domain.Message, error) {
	if groupID == "" {
		return nil, fmt.Errorf("kafka subscriber requires group id")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  s.cfg.Brokers,
		Topic:    topic,
		GroupID:  groupID,
		Dialer:   s.dialer,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})

	s.mu.Lock()
	if _, exists := s.readers[topic]; exists {
		s.mu.Unlock()
		_ = reader.Close()
		return nil, fmt.Errorf("already subscribed to %s", topic)
	}
	s.readers[topic] = reader
	s.mu.Unlock()

	out := make(chan domain.Message)
	go func() {
		defer close(out)
		for {
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
					slog.Error("kafka fetch failed", "topic", topic, "error", err)
				}
				return
			}
			select {
			case out <- domain.Message{
				Topic:     m.Topic,
				Key:       m.Key,
				Value:     m.Value,
				Partition: m.Partition,
				Offset:    m.Offset,
			}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *KafkaSubscriber) Commit(ctx context.Context, msg domain.Message) error {
	s.mu.Lock()
	reader, ok := s.readers[msg.Topic]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no subscription for topic %s", msg.Topic)
	}
	return reader.CommitMessages(ctx, kafka.Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	})
}

func (s *KafkaSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for topic, reader := range s.readers {
		if err := reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close reader %s: %w", topic, err))
		}
		delete(s.readers, topic)
	}
	return errors.Join(errs...)
}
