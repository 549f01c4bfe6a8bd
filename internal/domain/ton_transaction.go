package domain

import (
	"context"
	"time"
)

type TonTxStatus string

const (
	TonTxPending   TonTxStatus = "PENDING"
	TonTxConfirmed TonTxStatus = "CONFIRMED"
)

type TonTxDirection string

const (
	TonTxInbound  TonTxDirection = "IN"
	TonTxOutbound TonTxDirection = "OUT"
)

// TonTransaction tracks one expected or observed on-chain transfer.
type TonTransaction struct {
	ID            string
	DealID        string
	Direction     TonTxDirection
	Address       string
	SubwalletID   int64
	ExpectedNano  Nano
	AmountNano    Nano
	TxHash        string
	FromAddress   string
	Confirmations int
	Status        TonTxStatus
	CreatedAt     time.Time
	ConfirmedAt   *time.Time
}

type TonTxConfirmation struct {
	TxHash        string
	AmountNano    Nano
	Confirmations int
	FromAddress   string
	At            time.Time
}

type TonTransactionRepository interface {
	Create(ctx context.Context, tx *TonTransaction) error
	FindPendingInbound(ctx context.Context, dealID string) (*TonTransaction, error)
	Confirm(ctx context.Context, id string, confirmation TonTxConfirmation) error
}

type DepositAddress struct {
	Address     string
	SubwalletID int64
}

// WalletPort issues deposit addresses. Blockchain submission lives in the
// payout executor, which consumes payout requests from the outbox.
type WalletPort interface {
	GenerateDepositAddress(ctx context.Context, dealID string) (DepositAddress, error)
}

// DistributedLock is a TTL lock with ownership tokens.
type DistributedLock interface {
	// TryLock returns acquired=false without error when the key is held.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, acquired bool, err error)
	// Unlock deletes the key only if it still holds token.
	Unlock(ctx context.Context, key, token string) (released bool, err error)
}
