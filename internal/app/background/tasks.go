package background

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lonmstalker/advert-market-settlement/internal/config"
	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/logger"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/metrics"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/deal"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/lock"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/outbox"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/sweep"
)

const (
	outcomeOK      = "ok"
	outcomeSkipped = "skipped"
	outcomeError   = "error"
)

// Job is a periodic task. A job with a LockKey runs on at most one
// instance at a time.
type Job struct {
	Name     string
	Interval time.Duration
	LockKey  string
	LockTTL  time.Duration
	Run      func(ctx context.Context) error
}

type BackgroundTasks struct {
	Lock    domain.DistributedLock
	Metrics *metrics.SettlementMetrics
	Jobs    []Job
	wg      sync.WaitGroup
}

func NewBackgroundTasks(l domain.DistributedLock, settlementMetrics *metrics.SettlementMetrics, jobs ...Job) *BackgroundTasks {
	return &BackgroundTasks{
		Lock:    l,
		Metrics: settlementMetrics,
		Jobs:    jobs,
	}
}

// SettlementJobs builds the outbox poller and the three locked schedulers.
func SettlementJobs(
	cfg *config.SettlementConfig,
	poller *outbox.Poller,
	dealUc deal.DealUsecase,
	sweepUc sweep.SweepUsecase,
) []Job {
	timeouts := make(map[domain.DealStatus]time.Duration, len(cfg.Schedulers.DealTimeout.Timeouts))
	for status, d := range cfg.Schedulers.DealTimeout.Timeouts {
		s := domain.DealStatus(status)
		if !s.Valid() {
			slog.Warn("ignoring timeout for unknown deal status", "status", status)
			continue
		}
		timeouts[s] = d
	}
	timeoutPolicy := deal.TimeoutPolicy{
		Timeouts:  timeouts,
		Grace:     cfg.Schedulers.DealTimeout.Grace,
		BatchSize: cfg.Schedulers.DealTimeout.BatchSize,
	}
	unclaimed := sweep.UnclaimedPolicy{
		UnclaimedAfter: cfg.Schedulers.UnclaimedPayout.UnclaimedAfter,
		MinNano:        domain.Nano(cfg.Schedulers.UnclaimedPayout.MinNano),
		BatchSize:      cfg.Schedulers.UnclaimedPayout.BatchSize,
	}

	return []Job{
		{
			Name:     "outbox-poller",
			Interval: cfg.Outbox.Interval,
			Run: func(ctx context.Context) error {
				stats, err := poller.Poll(ctx)
				if stats.Claimed > 0 {
					slog.DebugContext(ctx, "outbox batch processed",
						"claimed", stats.Claimed,
						"delivered", stats.Delivered,
						"retried", stats.Retried,
						"failed", stats.Failed,
					)
				}
				return err
			},
		},
		{
			Name:     "deal-timeout",
			Interval: cfg.Schedulers.DealTimeout.Interval,
			LockKey:  "scheduler:deal-timeout",
			LockTTL:  cfg.Schedulers.DealTimeout.LockTTL,
			Run: func(ctx context.Context) error {
				n, err := dealUc.ExpireTimedOut(ctx, timeoutPolicy)
				if n > 0 {
					slog.InfoContext(ctx, "expired timed out deals", "count", n)
				}
				return err
			},
		},
		{
			Name:     "commission-sweep",
			Interval: cfg.Schedulers.CommissionSweep.Interval,
			LockKey:  "scheduler:commission-sweep",
			LockTTL:  cfg.Schedulers.CommissionSweep.LockTTL,
			Run: func(ctx context.Context) error {
				n, err := sweepUc.SweepCommissions(ctx, cfg.Schedulers.CommissionSweep.BatchSize)
				if n > 0 {
					slog.InfoContext(ctx, "swept commission accounts", "count", n)
				}
				return err
			},
		},
		{
			Name:     "unclaimed-payout",
			Interval: cfg.Schedulers.UnclaimedPayout.Interval,
			LockKey:  "scheduler:unclaimed-payout",
			LockTTL:  cfg.Schedulers.UnclaimedPayout.LockTTL,
			Run: func(ctx context.Context) error {
				n, err := sweepUc.SweepUnclaimedPayouts(ctx, unclaimed)
				if n > 0 {
					slog.InfoContext(ctx, "paid out unclaimed balances", "count", n)
				}
				return err
			},
		},
	}
}

func (bt *BackgroundTasks) StartAll(ctx context.Context) {
	for _, job := range bt.Jobs {
		bt.wg.Add(1)
		go func(job Job) {
			defer bt.wg.Done()
			bt.loop(ctx, job)
		}(job)
	}
}

// Wait blocks until every job loop has returned after ctx is cancelled.
func (bt *BackgroundTasks) Wait() {
	bt.wg.Wait()
}

func (bt *BackgroundTasks) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = bt.RunOnce(ctx, job)
		}
	}
}

// RunOnce executes one tick of job. A tick skipped because another instance
// holds the lock is not an error.
func (bt *BackgroundTasks) RunOnce(ctx context.Context, job Job) error {
	ctx = logger.WithCorrelationID(ctx, "")
	started := time.Now()

	var err error
	if job.LockKey == "" {
		err = job.Run(ctx)
	} else {
		err = lock.WithLock(ctx, bt.Lock, job.LockKey, job.LockTTL, job.Run)
	}

	outcome := outcomeOK
	switch {
	case errors.Is(err, domain.ErrLockAcquisitionFailed):
		outcome = outcomeSkipped
		slog.DebugContext(ctx, "job skipped, lock held elsewhere", "job", job.Name)
		err = nil
	case err != nil:
		outcome = outcomeError
		slog.ErrorContext(ctx, "job failed", "job", job.Name, "error", err)
	}
	if bt.Metrics != nil {
		bt.Metrics.RecordSchedulerRun(job.Name, outcome, time.Since(started))
	}
	return err
}
