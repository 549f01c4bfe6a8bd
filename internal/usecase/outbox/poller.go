package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/metrics"
)

type PollerConfig struct {
	BatchSize       int
	MaxRetries      int
	VisibilityDelay time.Duration
	ClaimTTL        time.Duration
	PublishTimeout  time.Duration
}

type PollStats struct {
	Claimed   int
	Delivered int
	Retried   int
	Failed    int
}

// Poller publishes claimed outbox entries. Claiming is exclusive, so any
// number of instances may poll concurrently without a lock.
type Poller struct {
	Repo      domain.OutboxRepository
	Publisher domain.EventPublisher
	Config    PollerConfig
	Metrics   *metrics.SettlementMetrics
	now       func() time.Time
}

func NewPoller(repo domain.OutboxRepository, publisher domain.EventPublisher, cfg PollerConfig, settlementMetrics *metrics.SettlementMetrics) *Poller {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 2 * time.Minute
	}
	return &Poller{
		Repo:      repo,
		Publisher: publisher,
		Config:    cfg,
		Metrics:   settlementMetrics,
		now:       time.Now,
	}
}

// Poll claims one batch and publishes each entry. A failing entry is
// returned to PENDING or, once it exhausted MaxRetries, marked FAILED; it
// never stops the rest of the batch.
func (p *Poller) Poll(ctx context.Context) (PollStats, error) {
	now := p.now().UTC()
	entries, err := p.Repo.FindPendingBatch(ctx, domain.OutboxClaim{
		BatchSize:          p.Config.BatchSize,
		VisibleBefore:      now.Add(-p.Config.VisibilityDelay),
		ClaimExpiredBefore: now.Add(-p.Config.ClaimTTL),
		Now:                now,
	})
	if err != nil {
		return PollStats{}, err
	}

	stats := PollStats{Claimed: len(entries)}
	for _, entry := range entries {
		if ctx.Err() != nil {
			// Unprocessed claims are picked up again after ClaimTTL.
			return stats, ctx.Err()
		}
		switch p.deliver(ctx, entry) {
		case domain.OutboxDelivered:
			stats.Delivered++
		case domain.OutboxPending:
			stats.Retried++
		case domain.OutboxFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (p *Poller) deliver(ctx context.Context, entry domain.OutboxEntry) domain.OutboxStatus {
	started := time.Now()
	pubCtx, cancel := context.WithTimeout(ctx, p.Config.PublishTimeout)
	pubErr := p.Publisher.Publish(pubCtx, entry)
	cancel()

	if pubErr == nil {
		if err := p.Repo.MarkDelivered(ctx, entry.ID, entry.Version, p.now().UTC()); err != nil {
			p.logMarkError(ctx, entry, "delivered", err)
			return domain.OutboxProcessing
		}
		if p.Metrics != nil {
			p.Metrics.RecordOutboxDelivered(entry.Topic, time.Since(started))
		}
		return domain.OutboxDelivered
	}

	if entry.RetryCount+1 < p.Config.MaxRetries {
		slog.WarnContext(ctx, "outbox publish failed, will retry",
			"outbox_id", entry.ID,
			"topic", entry.Topic,
			"retry_count", entry.RetryCount+1,
			"error", pubErr,
		)
		if err := p.Repo.MarkRetry(ctx, entry.ID, entry.Version, pubErr.Error()); err != nil {
			p.logMarkError(ctx, entry, "retry", err)
			return domain.OutboxProcessing
		}
		if p.Metrics != nil {
			p.Metrics.RecordOutboxRetried(entry.Topic)
		}
		return domain.OutboxPending
	}

	slog.ErrorContext(ctx, "outbox entry failed permanently",
		"outbox_id", entry.ID,
		"deal_id", entry.DealID,
		"topic", entry.Topic,
		"retry_count", entry.RetryCount+1,
		"error", pubErr,
	)
	if err := p.Repo.MarkFailed(ctx, entry.ID, entry.Version, pubErr.Error(), p.now().UTC()); err != nil {
		p.logMarkError(ctx, entry, "failed", err)
		return domain.OutboxProcessing
	}
	if p.Metrics != nil {
		p.Metrics.RecordOutboxFailed(entry.Topic)
	}
	return domain.OutboxFailed
}

func (p *Poller) logMarkError(ctx context.Context, entry domain.OutboxEntry, mark string, err error) {
	if errors.Is(err, domain.ErrVersionConflict) {
		slog.WarnContext(ctx, "outbox claim taken over by another poller", "outbox_id", entry.ID, "mark", mark)
		return
	}
	slog.ErrorContext(ctx, "failed to mark outbox entry", "outbox_id", entry.ID, "mark", mark, "error", err)
}
