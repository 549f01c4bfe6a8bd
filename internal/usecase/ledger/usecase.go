package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/metrics"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type LedgerUsecase interface {
	Transfer(ctx context.Context, req domain.TransferRequest) (string, error)
	Reverse(ctx context.Context, originalTxRef, reason string) (string, error)

	GetBalance(ctx context.Context, account domain.AccountID) (domain.Nano, error)
	GetEntriesByDeal(ctx context.Context, dealID string) ([]domain.LedgerEntry, error)
	GetEntriesByAccount(ctx context.Context, account domain.AccountID, cursor int64, limit int) (domain.EntryPage, error)
	FindSweepableBalances(ctx context.Context, filter domain.BalanceFilter) ([]domain.AccountBalance, error)
}

type DefaultLedgerUsecase struct {
	Tx      domain.TxManager
	Repo    domain.LedgerRepository
	Cache   domain.BalanceCache
	Metrics *metrics.SettlementMetrics
	newRef  func() string
}

func NewDefaultLedgerUsecase(
	tx domain.TxManager,
	repo domain.LedgerRepository,
	cache domain.BalanceCache,
	settlementMetrics *metrics.SettlementMetrics,
) *DefaultLedgerUsecase {
	return &DefaultLedgerUsecase{
		Tx:      tx,
		Repo:    repo,
		Cache:   cache,
		Metrics: settlementMetrics,
		newRef:  uuid.NewString,
	}
}

// Transfer posts one balanced transfer and returns its txRef. A request
// whose idempotency key was already used returns the original txRef and
// changes nothing, whatever its legs are.
func (uc *DefaultLedgerUsecase) Transfer(ctx context.Context, req domain.TransferRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	started := time.Now()

	var txRef string
	var replay bool
	var debitTotal domain.Nano
	err := uc.Tx.Do(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		ref := uc.newRef()
		existing, reserved, err := uc.Repo.ReserveIdempotencyKey(ctx, req.IdempotencyKey, ref)
		if err != nil {
			return fmt.Errorf("reserve idempotency key %s: %w", req.IdempotencyKey, err)
		}
		if !reserved {
			txRef, replay = existing, true
			return nil
		}

		legs := req.SortedLegs()
		touched := make([]domain.AccountID, 0, len(legs))
		for _, leg := range legs {
			if err := uc.applyLeg(ctx, leg); err != nil {
				return err
			}
			if leg.Side == domain.SideDebit {
				debitTotal += leg.Amount
			}
			touched = append(touched, leg.AccountID)
		}

		entries := make([]domain.LedgerEntry, 0, len(legs))
		for _, leg := range legs {
			entry := domain.LedgerEntry{
				DealID:         req.DealID,
				AccountID:      leg.AccountID,
				EntryType:      leg.EntryType,
				IdempotencyKey: req.IdempotencyKey,
				TxRef:          ref,
				Description:    req.Description,
			}
			if leg.Side == domain.SideDebit {
				entry.DebitNano = leg.Amount
			} else {
				entry.CreditNano = leg.Amount
			}
			entries = append(entries, entry)
		}
		if err := uc.Repo.InsertEntries(ctx, entries); err != nil {
			return fmt.Errorf("insert entries for %s: %w", req.IdempotencyKey, err)
		}

		uow.AfterCommit(func() { uc.evict(context.WithoutCancel(ctx), touched) })
		txRef = ref
		return nil
	})
	if err != nil {
		uc.recordRejected(req.IdempotencyKey, started, err)
		return "", err
	}

	if replay {
		slog.InfoContext(ctx, "ledger transfer replayed", "idempotency_key", req.IdempotencyKey, "tx_ref", txRef)
		if uc.Metrics != nil {
			uc.Metrics.RecordReplay(req.IdempotencyKey)
		}
		return txRef, nil
	}

	slog.InfoContext(ctx, "ledger transfer committed",
		"idempotency_key", req.IdempotencyKey,
		"tx_ref", txRef,
		"deal_id", req.DealID,
		"legs", len(req.Legs),
	)
	if uc.Metrics != nil {
		uc.Metrics.RecordTransfer(req.IdempotencyKey, int64(debitTotal), started)
	}
	return txRef, nil
}

func (uc *DefaultLedgerUsecase) applyLeg(ctx context.Context, leg domain.Leg) error {
	if leg.Side == domain.SideDebit && leg.AccountID.RequiresNonNegative() {
		applied, available, err := uc.Repo.DebitChecked(ctx, leg.AccountID, leg.Amount)
		if err != nil {
			return fmt.Errorf("debit %s: %w", leg.AccountID, err)
		}
		if !applied {
			return &domain.InsufficientBalanceError{
				Account:   leg.AccountID,
				Requested: leg.Amount,
				Available: available,
			}
		}
		return nil
	}
	if err := uc.Repo.ApplyDelta(ctx, leg.AccountID, leg.Delta()); err != nil {
		return fmt.Errorf("apply delta to %s: %w", leg.AccountID, err)
	}
	return nil
}

func (uc *DefaultLedgerUsecase) evict(ctx context.Context, accounts []domain.AccountID) {
	if uc.Cache == nil {
		return
	}
	if err := uc.Cache.Evict(ctx, accounts...); err != nil {
		slog.WarnContext(ctx, "balance cache eviction failed", "accounts", accounts, "error", err)
	}
}

func (uc *DefaultLedgerUsecase) recordRejected(key string, started time.Time, err error) {
	if uc.Metrics == nil {
		return
	}
	uc.Metrics.RecordTransferRejected(key, started)
	var insufficient *domain.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		uc.Metrics.RecordInsufficientBalance(string(insufficient.Account))
	}
}

// Reverse posts the mirror image of an earlier transfer. Reversing the same
// txRef again is an idempotent replay.
func (uc *DefaultLedgerUsecase) Reverse(ctx context.Context, originalTxRef, reason string) (string, error) {
	entries, err := uc.Repo.GetEntriesByTxRef(ctx, originalTxRef)
	if err != nil {
		return "", fmt.Errorf("load transfer %s: %w", originalTxRef, err)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("%w: %s", domain.ErrTransferNotFound, originalTxRef)
	}

	legs := make([]domain.Leg, 0, len(entries))
	for _, e := range entries {
		if e.DebitNano > 0 {
			legs = append(legs, domain.Credit(e.AccountID, domain.EntryReversal, e.DebitNano))
		}
		if e.CreditNano > 0 {
			legs = append(legs, domain.Debit(e.AccountID, domain.EntryReversal, e.CreditNano))
		}
	}

	return uc.Transfer(ctx, domain.TransferRequest{
		DealID:         entries[0].DealID,
		IdempotencyKey: domain.ReversalKey(originalTxRef),
		Legs:           legs,
		Description:    reason,
	})
}
