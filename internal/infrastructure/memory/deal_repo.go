package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
)

type DealRepo struct {
	s *Store
}

func (s *Store) Deals() *DealRepo {
	return &DealRepo{s: s}
}

func (r *DealRepo) Create(ctx context.Context, deal *domain.Deal) error {
	return r.s.read(ctx, func(st *state) error {
		if _, ok := st.deals[deal.ID]; ok {
			return fmt.Errorf("deal %s already exists", deal.ID)
		}
		now := r.s.now()
		if deal.CreatedAt.IsZero() {
			deal.CreatedAt = now
		}
		if deal.StatusChangedAt.IsZero() {
			deal.StatusChangedAt = now
		}
		deal.UpdatedAt = now
		st.deals[deal.ID] = *deal
		return nil
	})
}

func (r *DealRepo) GetByID(ctx context.Context, dealID string) (*domain.Deal, error) {
	var deal domain.Deal
	err := r.s.read(ctx, func(st *state) error {
		d, ok := st.deals[dealID]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrDealNotFound, dealID)
		}
		deal = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &deal, nil
}

func (r *DealRepo) CompareAndSwapStatus(ctx context.Context, cas domain.DealCAS) (bool, error) {
	var swapped bool
	err := r.s.read(ctx, func(st *state) error {
		d, ok := st.deals[cas.DealID]
		if !ok || d.Status != cas.ExpectedStatus || d.Version != cas.ExpectedVersion {
			return nil
		}
		d.Status = cas.NewStatus
		d.Version++
		d.StatusChangedAt = cas.At
		d.UpdatedAt = cas.At
		st.deals[cas.DealID] = d
		swapped = true
		return nil
	})
	return swapped, err
}

func (r *DealRepo) AppendEvent(ctx context.Context, event *domain.DealEventRecord) error {
	return r.s.read(ctx, func(st *state) error {
		st.eventSeq++
		event.ID = st.eventSeq
		if event.CreatedAt.IsZero() {
			event.CreatedAt = r.s.now()
		}
		st.events = append(st.events, *event)
		return nil
	})
}

func (r *DealRepo) ListEvents(ctx context.Context, dealID string) ([]domain.DealEventRecord, error) {
	var out []domain.DealEventRecord
	err := r.s.read(ctx, func(st *state) error {
		for _, e := range st.events {
			if e.DealID == dealID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

func (r *DealRepo) FindStaleInStatus(ctx context.Context, status domain.DealStatus, cutoff time.Time, limit int) ([]*domain.Deal, error) {
	var out []*domain.Deal
	err := r.s.read(ctx, func(st *state) error {
		for _, d := range st.deals {
			if d.Status == status && d.StatusChangedAt.Before(cutoff) {
				d := d
				out = append(out, &d)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StatusChangedAt.Before(out[j].StatusChangedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *DealRepo) SetDepositAddress(ctx context.Context, dealID, address string, subwalletID int64) error {
	return r.update(ctx, dealID, func(d *domain.Deal) {
		d.DepositAddress = address
		d.SubwalletID = subwalletID
	})
}

func (r *DealRepo) SetPublication(ctx context.Context, dealID, messageID, contentHash string) error {
	return r.update(ctx, dealID, func(d *domain.Deal) {
		d.PublishedMessageID = messageID
		d.ContentHash = contentHash
	})
}

func (r *DealRepo) update(ctx context.Context, dealID string, fn func(d *domain.Deal)) error {
	return r.s.read(ctx, func(st *state) error {
		d, ok := st.deals[dealID]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrDealNotFound, dealID)
		}
		fn(&d)
		d.UpdatedAt = r.s.now()
		st.deals[dealID] = d
		return nil
	})
}
