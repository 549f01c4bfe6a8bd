package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/escrow"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/ledger"
)

type SweepUsecase interface {
	SweepCommissions(ctx context.Context, batchSize int) (int, error)
	SweepUnclaimedPayouts(ctx context.Context, policy UnclaimedPolicy) (int, error)
}

type UnclaimedPolicy struct {
	UnclaimedAfter time.Duration
	MinNano        domain.Nano
	BatchSize      int
}

type DefaultSweepUsecase struct {
	Tx     domain.TxManager
	Ledger ledger.LedgerUsecase
	Escrow escrow.EscrowUsecase
	Outbox domain.OutboxRepository
	now    func() time.Time
}

func NewDefaultSweepUsecase(
	tx domain.TxManager,
	ledgerUc ledger.LedgerUsecase,
	escrowUc escrow.EscrowUsecase,
	outbox domain.OutboxRepository,
) *DefaultSweepUsecase {
	return &DefaultSweepUsecase{
		Tx:     tx,
		Ledger: ledgerUc,
		Escrow: escrowUc,
		Outbox: outbox,
		now:    time.Now,
	}
}

// SweepCommissions moves positive COMMISSION:* balances to the treasury.
// Each account is swept at most once per UTC day.
func (uc *DefaultSweepUsecase) SweepCommissions(ctx context.Context, batchSize int) (int, error) {
	balances, err := uc.Ledger.FindSweepableBalances(ctx, domain.BalanceFilter{
		Prefix: domain.CommissionPrefix,
		Limit:  batchSize,
	})
	if err != nil {
		return 0, err
	}

	day := uc.now().UTC()
	swept := 0
	var errs []error
	for _, b := range balances {
		ref, err := uc.Escrow.SweepCommission(ctx, b.AccountID, b.BalanceNano, day)
		if err != nil {
			slog.ErrorContext(ctx, "commission sweep failed", "account_id", b.AccountID, "error", err)
			errs = append(errs, fmt.Errorf("sweep %s: %w", b.AccountID, err))
			continue
		}
		slog.InfoContext(ctx, "commission swept", "account_id", b.AccountID, "amount_ton", b.BalanceNano.ToTON(), "tx_ref", ref)
		swept++
	}
	return swept, errors.Join(errs...)
}

// SweepUnclaimedPayouts withdraws owner balances that sat idle longer than
// policy.UnclaimedAfter. Each withdrawal enqueues a payout request for the
// payout executor and a notification for the owner in the same transaction.
func (uc *DefaultSweepUsecase) SweepUnclaimedPayouts(ctx context.Context, policy UnclaimedPolicy) (int, error) {
	now := uc.now().UTC()
	balances, err := uc.Ledger.FindSweepableBalances(ctx, domain.BalanceFilter{
		Prefix:        domain.OwnerPendingPrefix,
		MinNano:       policy.MinNano,
		UpdatedBefore: now.Add(-policy.UnclaimedAfter),
		Limit:         policy.BatchSize,
	})
	if err != nil {
		return 0, err
	}

	paid := 0
	var errs []error
	for _, b := range balances {
		if err := uc.payout(ctx, b, now); err != nil {
			slog.ErrorContext(ctx, "unclaimed payout failed", "account_id", b.AccountID, "error", err)
			errs = append(errs, fmt.Errorf("payout %s: %w", b.AccountID, err))
			continue
		}
		paid++
	}
	return paid, errors.Join(errs...)
}

func (uc *DefaultSweepUsecase) payout(ctx context.Context, b domain.AccountBalance, now time.Time) error {
	userID := b.AccountID.Owner()
	key := domain.WithdrawalKey(userID, now)

	return uc.Tx.Do(ctx, func(ctx context.Context, _ domain.UnitOfWork) error {
		ref, err := uc.Escrow.Withdraw(ctx, userID, b.BalanceNano, now)
		if err != nil {
			return err
		}

		request, err := json.Marshal(domain.PayoutRequest{
			UserID:         userID,
			AmountNano:     b.BalanceNano,
			TxRef:          ref,
			IdempotencyKey: key,
			RequestedAt:    now,
		})
		if err != nil {
			return err
		}
		if err := uc.Outbox.Save(ctx, &domain.OutboxEntry{
			ID:             uuid.NewString(),
			IdempotencyKey: key,
			Topic:          domain.TopicPayoutRequests,
			PartitionKey:   userID,
			Payload:        request,
			CreatedAt:      now,
		}); err != nil {
			return err
		}

		notice, err := json.Marshal(domain.DealNotification{
			Kind:        domain.NotifyUnclaimedPayout,
			RecipientID: userID,
			AmountNano:  b.BalanceNano,
			OccurredAt:  now,
		})
		if err != nil {
			return err
		}
		return uc.Outbox.Save(ctx, &domain.OutboxEntry{
			ID:             uuid.NewString(),
			IdempotencyKey: "notify:" + key,
			Topic:          domain.TopicDealNotifications,
			PartitionKey:   userID,
			Payload:        notice,
			CreatedAt:      now,
		})
	})
}
