package domain

import (
	"context"
	"time"
)

// LedgerRepository persists balances, entries and idempotency keys. Every
// mutating method must be called inside a TxManager scope.
type LedgerRepository interface {
	// ReserveIdempotencyKey stores key -> txRef. When the key already exists
	// nothing is written and the stored txRef is returned with reserved=false.
	ReserveIdempotencyKey(ctx context.Context, key, txRef string) (existingTxRef string, reserved bool, err error)
	// DebitChecked subtracts amount only if the balance stays non-negative.
	// applied=false means the predicate failed; available is the balance seen.
	DebitChecked(ctx context.Context, account AccountID, amount Nano) (applied bool, available Nano, err error)
	// ApplyDelta adds a signed delta unconditionally, creating the account row if needed.
	ApplyDelta(ctx context.Context, account AccountID, delta Nano) error
	InsertEntries(ctx context.Context, entries []LedgerEntry) error

	GetBalance(ctx context.Context, account AccountID) (Nano, error)
	GetEntriesByDeal(ctx context.Context, dealID string) ([]LedgerEntry, error)
	// GetEntriesByAccount returns up to limit entries with id < cursor
	// (cursor 0 means from the newest), newest first.
	GetEntriesByAccount(ctx context.Context, account AccountID, cursor int64, limit int) ([]LedgerEntry, error)
	GetEntriesByTxRef(ctx context.Context, txRef string) ([]LedgerEntry, error)
	FindBalances(ctx context.Context, filter BalanceFilter) ([]AccountBalance, error)
}

type BalanceFilter struct {
	Prefix        string
	MinNano       Nano
	UpdatedBefore time.Time
	Limit         int
}

// BalanceCache is a read-through cache in front of account balances.
// Every Evict bumps the account generation. Put stores the balance only if
// the generation still equals the one Get returned, so a balance read
// before a commit is never cached after that commit's eviction.
type BalanceCache interface {
	Get(ctx context.Context, account AccountID) (balance Nano, generation int64, found bool, err error)
	Put(ctx context.Context, account AccountID, balance Nano, generation int64) (stored bool, err error)
	Evict(ctx context.Context, accounts ...AccountID) error
}
