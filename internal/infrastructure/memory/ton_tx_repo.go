package memory

import (
	"context"
	"fmt"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
)

type TonTxRepo struct {
	s *Store
}

func (s *Store) TonTxs() *TonTxRepo {
	return &TonTxRepo{s: s}
}

func (r *TonTxRepo) Create(ctx context.Context, tx *domain.TonTransaction) error {
	return r.s.read(ctx, func(st *state) error {
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = r.s.now()
		}
		st.tonTxs[tx.ID] = *tx
		return nil
	})
}

func (r *TonTxRepo) FindPendingInbound(ctx context.Context, dealID string) (*domain.TonTransaction, error) {
	var found *domain.TonTransaction
	err := r.s.read(ctx, func(st *state) error {
		for _, tx := range st.tonTxs {
			if tx.DealID != dealID || tx.Direction != domain.TonTxInbound || tx.Status != domain.TonTxPending {
				continue
			}
			if found == nil || tx.CreatedAt.After(found.CreatedAt) {
				tx := tx
				found = &tx
			}
		}
		if found == nil {
			return fmt.Errorf("%w: deal %s", domain.ErrDepositNotFound, dealID)
		}
		return nil
	})
	return found, err
}

func (r *TonTxRepo) Confirm(ctx context.Context, id string, c domain.TonTxConfirmation) error {
	return r.s.read(ctx, func(st *state) error {
		tx, ok := st.tonTxs[id]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrDepositNotFound, id)
		}
		at := c.At
		tx.TxHash = c.TxHash
		tx.AmountNano = c.AmountNano
		tx.Confirmations = c.Confirmations
		tx.FromAddress = c.FromAddress
		tx.Status = domain.TonTxConfirmed
		tx.ConfirmedAt = &at
		st.tonTxs[id] = tx
		return nil
	})
}

// Get returns a stored transaction by id.
func (r *TonTxRepo) Get(id string) (domain.TonTransaction, bool) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.st.tonTxs[id]
	return tx, ok
}
