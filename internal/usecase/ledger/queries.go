package ledger

import (
	"context"
	"log/slog"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
)

// GetBalance reads through the balance cache. Cache failures fall back to
// the repository.
func (uc *DefaultLedgerUsecase) GetBalance(ctx context.Context, account domain.AccountID) (domain.Nano, error) {
	var generation int64
	writeBack := false
	if uc.Cache != nil {
		balance, gen, found, err := uc.Cache.Get(ctx, account)
		if err != nil {
			slog.WarnContext(ctx, "balance cache read failed", "account_id", account, "error", err)
		} else {
			if uc.Metrics != nil {
				uc.Metrics.RecordCacheLookup(found)
			}
			if found {
				return balance, nil
			}
			generation, writeBack = gen, true
		}
	}

	balance, err := uc.Repo.GetBalance(ctx, account)
	if err != nil {
		return 0, err
	}

	if writeBack {
		stored, err := uc.Cache.Put(ctx, account, balance, generation)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "balance cache write failed", "account_id", account, "error", err)
		case !stored:
			slog.DebugContext(ctx, "balance changed during read, cache left empty", "account_id", account)
		}
	}
	return balance, nil
}

func (uc *DefaultLedgerUsecase) GetEntriesByDeal(ctx context.Context, dealID string) ([]domain.LedgerEntry, error) {
	return uc.Repo.GetEntriesByDeal(ctx, dealID)
}

// GetEntriesByAccount pages through account history newest first. Pass the
// returned NextCursor to continue; zero means the last page was reached.
func (uc *DefaultLedgerUsecase) GetEntriesByAccount(ctx context.Context, account domain.AccountID, cursor int64, limit int) (domain.EntryPage, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	entries, err := uc.Repo.GetEntriesByAccount(ctx, account, cursor, limit+1)
	if err != nil {
		return domain.EntryPage{}, err
	}

	page := domain.EntryPage{Entries: entries}
	if len(entries) > limit {
		page.Entries = entries[:limit]
		page.NextCursor = entries[limit-1].ID
	}
	return page, nil
}

func (uc *DefaultLedgerUsecase) FindSweepableBalances(ctx context.Context, filter domain.BalanceFilter) ([]domain.AccountBalance, error) {
	if filter.MinNano <= 0 {
		filter.MinNano = 1
	}
	return uc.Repo.FindBalances(ctx, filter)
}
