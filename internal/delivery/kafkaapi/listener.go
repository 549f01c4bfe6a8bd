package kafkaapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/logger"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/metrics"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/deal"
)

const maxRetryBackoff = 30 * time.Second

const (
	outcomeApplied   = "applied"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
	outcomeConflict  = "conflict"
	outcomeUnknown   = "unknown"
	outcomeMalformed = "malformed"
)

type ListenerConfig struct {
	Topic           string
	GroupID         string
	Workers         int
	ConflictRetries int
	RetryBackoff    time.Duration
}

// TriggerListener consumes the deal-triggers topic. Messages of one
// partition always go to the same worker, so triggers of a deal are
// applied in the order they were produced.
type TriggerListener struct {
	Subscriber domain.SubscriberPort
	Dispatcher *DealDispatcher
	Config     ListenerConfig
	Metrics    *metrics.SettlementMetrics
}

func NewTriggerListener(
	subscriber domain.SubscriberPort,
	dispatcher *DealDispatcher,
	cfg ListenerConfig,
	settlementMetrics *metrics.SettlementMetrics,
) *TriggerListener {
	if cfg.Topic == "" {
		cfg.Topic = domain.TopicDealTriggers
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	return &TriggerListener{
		Subscriber: subscriber,
		Dispatcher: dispatcher,
		Config:     cfg,
		Metrics:    settlementMetrics,
	}
}

// Run blocks until ctx is done or the subscription closes.
func (l *TriggerListener) Run(ctx context.Context) error {
	msgs, err := l.Subscriber.Subscribe(ctx, l.Config.Topic, l.Config.GroupID)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", l.Config.Topic, err)
	}
	slog.Info("trigger listener started", "topic", l.Config.Topic, "group", l.Config.GroupID, "workers", l.Config.Workers)

	queues := make([]chan domain.Message, l.Config.Workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan domain.Message, 16)
		wg.Add(1)
		go func(q <-chan domain.Message) {
			defer wg.Done()
			for msg := range q {
				l.Handle(ctx, msg)
			}
		}(queues[i])
	}

	defer func() {
		for _, q := range queues {
			close(q)
		}
		wg.Wait()
		slog.Info("trigger listener stopped", "topic", l.Config.Topic)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			q := queues[workerFor(msg.Partition, len(queues))]
			select {
			case q <- msg:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func workerFor(partition, workers int) int {
	if partition < 0 {
		partition = -partition
	}
	return partition % workers
}

// Handle processes one message and commits it unless ctx ended while an
// infrastructure error was being retried.
func (l *TriggerListener) Handle(ctx context.Context, msg domain.Message) {
	ctx = logger.WithCorrelationID(ctx, fmt.Sprintf("%s-%d-%d", msg.Topic, msg.Partition, msg.Offset))

	outcome, eventType := l.process(ctx, msg)
	if outcome == "" {
		return
	}
	if l.Metrics != nil {
		l.Metrics.RecordTrigger(eventType, outcome)
	}
	if err := l.Subscriber.Commit(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "failed to commit trigger", "offset", msg.Offset, "error", err)
	}
}

func (l *TriggerListener) process(ctx context.Context, msg domain.Message) (outcome, eventType string) {
	t, err := DecodeTrigger(msg.Value)
	if err != nil {
		if errors.Is(err, ErrUnknownTrigger) {
			slog.WarnContext(ctx, "skipping unknown trigger", "key", string(msg.Key), "error", err)
			return outcomeUnknown, outcomeUnknown
		}
		slog.WarnContext(ctx, "skipping malformed trigger", "key", string(msg.Key), "error", err)
		return outcomeMalformed, outcomeMalformed
	}
	eventType = t.Type()

	backoff := l.Config.RetryBackoff
	conflicts := 0
	for {
		applied, err := l.Dispatcher.Dispatch(ctx, t)
		switch {
		case err == nil:
			if applied {
				return outcomeApplied, eventType
			}
			return outcomeDuplicate, eventType
		case deal.IsRetryable(err):
			if conflicts >= l.Config.ConflictRetries {
				slog.ErrorContext(ctx, "trigger kept losing the deal update race",
					"type", eventType, "deal_id", t.Deal(), "attempts", conflicts+1, "error", err)
				return outcomeConflict, eventType
			}
			conflicts++
			// Conflicts resolve on re-read; the backoff stays flat.
			if !sleep(ctx, l.Config.RetryBackoff) {
				return "", eventType
			}
			continue
		case IsPermanent(err):
			slog.WarnContext(ctx, "trigger rejected", "type", eventType, "deal_id", t.Deal(), "error", err)
			return outcomeRejected, eventType
		}

		slog.ErrorContext(ctx, "trigger failed, retrying",
			"type", eventType, "deal_id", t.Deal(), "backoff", backoff, "error", err)
		if !sleep(ctx, backoff) {
			return "", eventType
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
