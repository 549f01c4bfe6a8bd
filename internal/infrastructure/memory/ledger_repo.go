package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
)

type LedgerRepo struct {
	s *Store
}

func (s *Store) Ledger() *LedgerRepo {
	return &LedgerRepo{s: s}
}

func (r *LedgerRepo) ReserveIdempotencyKey(ctx context.Context, key, txRef string) (string, bool, error) {
	var existing string
	var reserved bool
	err := r.s.read(ctx, func(st *state) error {
		if ref, ok := st.idem[key]; ok {
			existing = ref
			return nil
		}
		st.idem[key] = txRef
		reserved = true
		return nil
	})
	return existing, reserved, err
}

func (r *LedgerRepo) DebitChecked(ctx context.Context, account domain.AccountID, amount domain.Nano) (bool, domain.Nano, error) {
	var applied bool
	var available domain.Nano
	err := r.s.read(ctx, func(st *state) error {
		bal := st.balances[account]
		available = bal.BalanceNano
		if bal.BalanceNano < amount {
			return nil
		}
		bal.AccountID = account
		bal.BalanceNano -= amount
		bal.UpdatedAt = r.s.now()
		st.balances[account] = bal
		applied = true
		return nil
	})
	return applied, available, err
}

func (r *LedgerRepo) ApplyDelta(ctx context.Context, account domain.AccountID, delta domain.Nano) error {
	return r.s.read(ctx, func(st *state) error {
		bal := st.balances[account]
		next, err := bal.BalanceNano.Add(delta)
		if err != nil {
			return err
		}
		bal.AccountID = account
		bal.BalanceNano = next
		bal.UpdatedAt = r.s.now()
		st.balances[account] = bal
		return nil
	})
}

func (r *LedgerRepo) InsertEntries(ctx context.Context, entries []domain.LedgerEntry) error {
	return r.s.read(ctx, func(st *state) error {
		for _, e := range entries {
			st.entrySeq++
			e.ID = st.entrySeq
			if e.CreatedAt.IsZero() {
				e.CreatedAt = r.s.now()
			}
			st.entries = append(st.entries, e)
		}
		return nil
	})
}

func (r *LedgerRepo) GetBalance(ctx context.Context, account domain.AccountID) (domain.Nano, error) {
	var balance domain.Nano
	err := r.s.read(ctx, func(st *state) error {
		balance = st.balances[account].BalanceNano
		return nil
	})
	return balance, err
}

func (r *LedgerRepo) GetEntriesByDeal(ctx context.Context, dealID string) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	err := r.s.read(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.DealID == dealID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

func (r *LedgerRepo) GetEntriesByAccount(ctx context.Context, account domain.AccountID, cursor int64, limit int) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	err := r.s.read(ctx, func(st *state) error {
		for i := len(st.entries) - 1; i >= 0 && len(out) < limit; i-- {
			e := st.entries[i]
			if e.AccountID != account {
				continue
			}
			if cursor > 0 && e.ID >= cursor {
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

func (r *LedgerRepo) GetEntriesByTxRef(ctx context.Context, txRef string) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	err := r.s.read(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.TxRef == txRef {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

func (r *LedgerRepo) FindBalances(ctx context.Context, filter domain.BalanceFilter) ([]domain.AccountBalance, error) {
	var out []domain.AccountBalance
	err := r.s.read(ctx, func(st *state) error {
		for id, bal := range st.balances {
			if !strings.HasPrefix(string(id), filter.Prefix) || bal.BalanceNano < filter.MinNano || bal.BalanceNano <= 0 {
				continue
			}
			if !filter.UpdatedBefore.IsZero() && !bal.UpdatedAt.Before(filter.UpdatedBefore) {
				continue
			}
			out = append(out, bal)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, err
}

// SetBalance seeds an account balance outside of the ledger.
func (r *LedgerRepo) SetBalance(account domain.AccountID, balance domain.Nano) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.st.balances[account] = domain.AccountBalance{AccountID: account, BalanceNano: balance, UpdatedAt: r.s.now()}
}
