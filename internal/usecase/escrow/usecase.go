package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/ledger"
)

type EscrowUsecase interface {
	GenerateDepositAddress(ctx context.Context, dealID string, amountNano domain.Nano) (string, error)
	ConfirmDeposit(ctx context.Context, in DepositConfirmation) (string, error)
	ConfirmPartialDeposit(ctx context.Context, in DepositConfirmation) (string, error)
	ReleaseEscrow(ctx context.Context, dealID, ownerID string, dealAmountNano domain.Nano, commissionRateBp int64) (string, error)
	RefundEscrow(ctx context.Context, dealID string, amountNano domain.Nano) (string, error)
	RefundPartial(ctx context.Context, dealID string, amountNano domain.Nano) (string, error)
	RefundOverpayment(ctx context.Context, dealID, txHash string, amountNano domain.Nano) (string, error)
	SweepCommission(ctx context.Context, account domain.AccountID, amountNano domain.Nano, day time.Time) (string, error)
	Withdraw(ctx context.Context, userID string, amountNano domain.Nano, at time.Time) (string, error)
	RecordNetworkFee(ctx context.Context, dealID, txHash string, feeNano domain.Nano) (string, error)
}

type DepositConfirmation struct {
	DealID        string
	TxHash        string
	AmountNano    domain.Nano
	Confirmations int
	FromAddress   string
}

type DefaultEscrowUsecase struct {
	Tx               domain.TxManager
	Ledger           ledger.LedgerUsecase
	Wallet           domain.WalletPort
	TonTxs           domain.TonTransactionRepository
	Deals            domain.DealRepository
	MinConfirmations int
	now              func() time.Time
}

func NewDefaultEscrowUsecase(
	tx domain.TxManager,
	ledgerUc ledger.LedgerUsecase,
	wallet domain.WalletPort,
	tonTxs domain.TonTransactionRepository,
	deals domain.DealRepository,
	minConfirmations int,
) *DefaultEscrowUsecase {
	return &DefaultEscrowUsecase{
		Tx:               tx,
		Ledger:           ledgerUc,
		Wallet:           wallet,
		TonTxs:           tonTxs,
		Deals:            deals,
		MinConfirmations: minConfirmations,
		now:              time.Now,
	}
}

// GenerateDepositAddress asks the wallet for a fresh address and records the
// expected inbound transaction. There is no ledger effect until the deposit
// is confirmed.
func (uc *DefaultEscrowUsecase) GenerateDepositAddress(ctx context.Context, dealID string, amountNano domain.Nano) (string, error) {
	if amountNano <= 0 {
		return "", fmt.Errorf("%w: deposit amount %d", domain.ErrInvalidAmount, amountNano)
	}
	addr, err := uc.Wallet.GenerateDepositAddress(ctx, dealID)
	if err != nil {
		return "", fmt.Errorf("generate deposit address for deal %s: %w", dealID, err)
	}

	err = uc.Tx.Do(ctx, func(ctx context.Context, _ domain.UnitOfWork) error {
		if err := uc.TonTxs.Create(ctx, &domain.TonTransaction{
			ID:           uuid.NewString(),
			DealID:       dealID,
			Direction:    domain.TonTxInbound,
			Address:      addr.Address,
			SubwalletID:  addr.SubwalletID,
			ExpectedNano: amountNano,
			Status:       domain.TonTxPending,
		}); err != nil {
			return err
		}
		return uc.Deals.SetDepositAddress(ctx, dealID, addr.Address, addr.SubwalletID)
	})
	if err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "deposit address issued", "deal_id", dealID, "address", addr.Address, "subwallet_id", addr.SubwalletID)
	return addr.Address, nil
}

// ConfirmDeposit moves the full deposit from EXTERNAL_TON into the deal
// escrow. Re-delivery of the same tx hash is a no-op.
func (uc *DefaultEscrowUsecase) ConfirmDeposit(ctx context.Context, in DepositConfirmation) (string, error) {
	return uc.confirm(ctx, in, domain.DepositKey(in.TxHash), domain.EntryDeposit)
}

func (uc *DefaultEscrowUsecase) ConfirmPartialDeposit(ctx context.Context, in DepositConfirmation) (string, error) {
	return uc.confirm(ctx, in, domain.PartialDepositKey(in.DealID, in.TxHash), domain.EntryPartialDeposit)
}

func (uc *DefaultEscrowUsecase) confirm(ctx context.Context, in DepositConfirmation, key string, entryType domain.EntryType) (string, error) {
	if in.Confirmations < uc.MinConfirmations {
		return "", fmt.Errorf("%w: %d of %d for %s", domain.ErrNotEnoughConfirmations, in.Confirmations, uc.MinConfirmations, in.TxHash)
	}

	var txRef string
	err := uc.Tx.Do(ctx, func(ctx context.Context, _ domain.UnitOfWork) error {
		ref, err := uc.Ledger.Transfer(ctx, domain.TransferRequest{
			DealID:         in.DealID,
			IdempotencyKey: key,
			Legs: []domain.Leg{
				domain.Debit(domain.AccountExternalTON, entryType, in.AmountNano),
				domain.Credit(domain.EscrowAccount(in.DealID), entryType, in.AmountNano),
			},
			Description: "deposit " + in.TxHash,
		})
		if err != nil {
			return err
		}
		txRef = ref

		pending, err := uc.TonTxs.FindPendingInbound(ctx, in.DealID)
		if errors.Is(err, domain.ErrDepositNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return uc.TonTxs.Confirm(ctx, pending.ID, domain.TonTxConfirmation{
			TxHash:        in.TxHash,
			AmountNano:    in.AmountNano,
			Confirmations: in.Confirmations,
			FromAddress:   in.FromAddress,
			At:            uc.now().UTC(),
		})
	})
	if err != nil {
		return "", err
	}
	return txRef, nil
}

// ReleaseEscrow pays the deal out: commission to COMMISSION:<deal>, the rest
// to the owner's pending balance, both from one escrow debit.
func (uc *DefaultEscrowUsecase) ReleaseEscrow(ctx context.Context, dealID, ownerID string, dealAmountNano domain.Nano, commissionRateBp int64) (string, error) {
	commission, ownerShare, err := domain.SplitCommission(dealAmountNano, commissionRateBp)
	if err != nil {
		return "", err
	}

	legs := []domain.Leg{domain.Debit(domain.EscrowAccount(dealID), domain.EntryEscrowRelease, dealAmountNano)}
	if commission > 0 {
		legs = append(legs, domain.Credit(domain.CommissionAccount(dealID), domain.EntryCommission, commission))
	}
	if ownerShare > 0 {
		legs = append(legs, domain.Credit(domain.OwnerPendingAccount(ownerID), domain.EntryOwnerPayout, ownerShare))
	}

	return uc.Ledger.Transfer(ctx, domain.TransferRequest{
		DealID:         dealID,
		IdempotencyKey: domain.ReleaseKey(dealID),
		Legs:           legs,
		Description:    fmt.Sprintf("release deal %s, commission %d bp", dealID, commissionRateBp),
	})
}

func (uc *DefaultEscrowUsecase) RefundEscrow(ctx context.Context, dealID string, amountNano domain.Nano) (string, error) {
	return uc.refund(ctx, dealID, domain.RefundKey(dealID), domain.EntryRefund, amountNano, "refund deal "+dealID)
}

func (uc *DefaultEscrowUsecase) RefundPartial(ctx context.Context, dealID string, amountNano domain.Nano) (string, error) {
	return uc.refund(ctx, dealID, domain.PartialRefundKey(dealID), domain.EntryPartialRefund, amountNano, "partial refund deal "+dealID)
}

func (uc *DefaultEscrowUsecase) RefundOverpayment(ctx context.Context, dealID, txHash string, amountNano domain.Nano) (string, error) {
	return uc.refund(ctx, dealID, domain.OverpaymentRefundKey(dealID, txHash), domain.EntryOverpaymentRefund, amountNano, "overpayment refund "+txHash)
}

func (uc *DefaultEscrowUsecase) refund(ctx context.Context, dealID, key string, entryType domain.EntryType, amountNano domain.Nano, description string) (string, error) {
	return uc.Ledger.Transfer(ctx, domain.TransferRequest{
		DealID:         dealID,
		IdempotencyKey: key,
		Legs: []domain.Leg{
			domain.Debit(domain.EscrowAccount(dealID), entryType, amountNano),
			domain.Credit(domain.AccountExternalTON, entryType, amountNano),
		},
		Description: description,
	})
}

// SweepCommission moves an accumulated commission balance to the treasury.
// The key includes the day, so one account is swept at most once per day.
func (uc *DefaultEscrowUsecase) SweepCommission(ctx context.Context, account domain.AccountID, amountNano domain.Nano, day time.Time) (string, error) {
	return uc.Ledger.Transfer(ctx, domain.TransferRequest{
		DealID:         account.Owner(),
		IdempotencyKey: domain.SweepKey(day, account),
		Legs: []domain.Leg{
			domain.Debit(account, domain.EntryCommissionSweep, amountNano),
			domain.Credit(domain.AccountPlatformTreasury, domain.EntryCommissionSweep, amountNano),
		},
		Description: "commission sweep",
	})
}

// Withdraw pays an owner's pending balance out to the chain. The debit is
// balance-checked.
func (uc *DefaultEscrowUsecase) Withdraw(ctx context.Context, userID string, amountNano domain.Nano, at time.Time) (string, error) {
	return uc.Ledger.Transfer(ctx, domain.TransferRequest{
		IdempotencyKey: domain.WithdrawalKey(userID, at),
		Legs: []domain.Leg{
			domain.Debit(domain.OwnerPendingAccount(userID), domain.EntryWithdrawal, amountNano),
			domain.Credit(domain.AccountExternalTON, domain.EntryWithdrawal, amountNano),
		},
		Description: "withdrawal " + userID,
	})
}

func (uc *DefaultEscrowUsecase) RecordNetworkFee(ctx context.Context, dealID, txHash string, feeNano domain.Nano) (string, error) {
	return uc.Ledger.Transfer(ctx, domain.TransferRequest{
		DealID:         dealID,
		IdempotencyKey: domain.FeeKey(txHash),
		Legs: []domain.Leg{
			domain.Debit(domain.AccountPlatformTreasury, domain.EntryNetworkFee, feeNano),
			domain.Credit(domain.AccountExternalTON, domain.EntryNetworkFee, feeNano),
		},
		Description: "network fee " + txHash,
	})
}
