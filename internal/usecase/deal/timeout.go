package deal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
)

// TimeoutPolicy bounds how long a deal may stay in each status.
type TimeoutPolicy struct {
	Timeouts  map[domain.DealStatus]time.Duration
	Grace     time.Duration
	BatchSize int
}

// ExpireTimedOut drives overdue deals to EXPIRED, at most BatchSize per call.
// Deals that moved on concurrently are skipped; other failures are joined
// and returned after the batch.
func (uc *DefaultDealUsecase) ExpireTimedOut(ctx context.Context, policy TimeoutPolicy) (int, error) {
	statuses := make([]domain.DealStatus, 0, len(policy.Timeouts))
	for status := range policy.Timeouts {
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })

	now := uc.now().UTC()
	remaining := policy.BatchSize
	expired := 0
	var errs []error

	for _, status := range statuses {
		if remaining <= 0 {
			break
		}
		if status.IsTerminal() {
			continue
		}
		cutoff := now.Add(-policy.Timeouts[status] - policy.Grace)
		deals, err := uc.Deals.FindStaleInStatus(ctx, status, cutoff, remaining)
		if err != nil {
			errs = append(errs, fmt.Errorf("find stale %s deals: %w", status, err))
			continue
		}

		for _, d := range deals {
			remaining--
			res, err := uc.Transition(ctx, domain.TransitionCommand{
				DealID:       d.ID,
				TargetStatus: domain.DealExpired,
				ActorType:    domain.ActorSystem,
				Reason:       fmt.Sprintf("timeout in %s", status),
			})
			switch {
			case err == nil:
				if res.Outcome == domain.TransitionSucceeded {
					expired++
				}
			case errors.Is(err, domain.ErrVersionConflict), errors.Is(err, domain.ErrInvalidStateTransition):
				slog.InfoContext(ctx, "deal moved before timeout", "deal_id", d.ID, "status", status, "error", err)
			default:
				slog.ErrorContext(ctx, "failed to expire deal", "deal_id", d.ID, "status", status, "error", err)
				errs = append(errs, fmt.Errorf("expire deal %s: %w", d.ID, err))
			}
		}
	}
	return expired, errors.Join(errs...)
}
