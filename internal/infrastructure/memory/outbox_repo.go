package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
)

type OutboxRepo struct {
	s *Store
}

func (s *Store) Outbox() *OutboxRepo {
	return &OutboxRepo{s: s}
}

func (r *OutboxRepo) Save(ctx context.Context, entry *domain.OutboxEntry) error {
	return r.s.read(ctx, func(st *state) error {
		if _, ok := st.outbox[entry.ID]; ok {
			return fmt.Errorf("outbox entry %s already exists", entry.ID)
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = r.s.now()
		}
		entry.Status = domain.OutboxPending
		st.outbox[entry.ID] = *entry
		return nil
	})
}

func (r *OutboxRepo) FindPendingBatch(ctx context.Context, claim domain.OutboxClaim) ([]domain.OutboxEntry, error) {
	var claimed []domain.OutboxEntry
	err := r.s.read(ctx, func(st *state) error {
		var candidates []domain.OutboxEntry
		for _, e := range st.outbox {
			switch {
			case e.Status == domain.OutboxPending && e.CreatedAt.Before(claim.VisibleBefore):
				candidates = append(candidates, e)
			case e.Status == domain.OutboxProcessing && e.ClaimedAt != nil && e.ClaimedAt.Before(claim.ClaimExpiredBefore):
				candidates = append(candidates, e)
			}
		}
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
				return candidates[i].ID < candidates[j].ID
			}
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		})
		if claim.BatchSize > 0 && len(candidates) > claim.BatchSize {
			candidates = candidates[:claim.BatchSize]
		}
		for _, e := range candidates {
			at := claim.Now
			e.Status = domain.OutboxProcessing
			e.ClaimedAt = &at
			e.Version++
			st.outbox[e.ID] = e
			claimed = append(claimed, e)
		}
		return nil
	})
	return claimed, err
}

func (r *OutboxRepo) MarkDelivered(ctx context.Context, id string, version int64, at time.Time) error {
	return r.mark(ctx, id, version, func(e *domain.OutboxEntry) {
		e.Status = domain.OutboxDelivered
		e.ProcessedAt = &at
	})
}

func (r *OutboxRepo) MarkRetry(ctx context.Context, id string, version int64, lastErr string) error {
	return r.mark(ctx, id, version, func(e *domain.OutboxEntry) {
		e.Status = domain.OutboxPending
		e.RetryCount++
		e.LastError = lastErr
		e.ClaimedAt = nil
	})
}

func (r *OutboxRepo) MarkFailed(ctx context.Context, id string, version int64, lastErr string, at time.Time) error {
	return r.mark(ctx, id, version, func(e *domain.OutboxEntry) {
		e.Status = domain.OutboxFailed
		e.RetryCount++
		e.LastError = lastErr
		e.ProcessedAt = &at
	})
}

func (r *OutboxRepo) CountByStatus(ctx context.Context, status domain.OutboxStatus) (int64, error) {
	var n int64
	err := r.s.read(ctx, func(st *state) error {
		for _, e := range st.outbox {
			if e.Status == status {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *OutboxRepo) mark(ctx context.Context, id string, version int64, fn func(e *domain.OutboxEntry)) error {
	return r.s.read(ctx, func(st *state) error {
		e, ok := st.outbox[id]
		if !ok || e.Status != domain.OutboxProcessing || e.Version != version {
			return fmt.Errorf("%w: outbox entry %s claim %d", domain.ErrVersionConflict, id, version)
		}
		fn(&e)
		st.outbox[id] = e
		return nil
	})
}
