package memory

import (
	"context"
	"sync"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
)

// BalanceCache is a map-backed domain.BalanceCache that records evictions.
type BalanceCache struct {
	mu      sync.Mutex
	values  map[domain.AccountID]domain.Nano
	gens    map[domain.AccountID]int64
	Evicted []domain.AccountID
}

func NewBalanceCache() *BalanceCache {
	return &BalanceCache{
		values: make(map[domain.AccountID]domain.Nano),
		gens:   make(map[domain.AccountID]int64),
	}
}

func (c *BalanceCache) Get(_ context.Context, account domain.AccountID) (domain.Nano, int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[account]
	return v, c.gens[account], ok, nil
}

func (c *BalanceCache) Put(_ context.Context, account domain.AccountID, balance domain.Nano, generation int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[account] != generation {
		return false, nil
	}
	c.values[account] = balance
	return true, nil
}

func (c *BalanceCache) Evict(_ context.Context, accounts ...domain.AccountID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range accounts {
		delete(c.values, a)
		c.gens[a]++
		c.Evicted = append(c.Evicted, a)
	}
	return nil
}

func (c *BalanceCache) EvictedAccounts() []domain.AccountID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.AccountID(nil), c.Evicted...)
}

// Cached reports the cached balance of account, if any.
func (c *BalanceCache) Cached(account domain.AccountID) (domain.Nano, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[account]
	return v, ok
}
