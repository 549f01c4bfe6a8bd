package models

import "time"

type AccountBalanceModel struct {
	AccountID   string    `gorm:"primaryKey"`
	BalanceNano int64     `gorm:"not null;default:0"`
	Version     int64     `gorm:"not null;default:0"`
	UpdatedAt   time.Time `gorm:"not null;index:idx_account_balances_updated_at"`
}

func (AccountBalanceModel) TableName() string {
	return "account_balances"
}

type LedgerEntryModel struct {
	ID             int64   `gorm:"primaryKey;autoIncrement"`
	DealID         *string `gorm:"index:idx_ledger_entries_deal_id"`
	AccountID      string  `gorm:"not null;index:idx_ledger_entries_account_id,priority:1"`
	EntryType      string  `gorm:"not null"`
	DebitNano      int64   `gorm:"not null;default:0"`
	CreditNano     int64   `gorm:"not null;default:0"`
	IdempotencyKey string  `gorm:"not null;index:idx_ledger_entries_idempotency_key"`
	TxRef          string  `gorm:"type:uuid;not null;index:idx_ledger_entries_tx_ref"`
	Description    string
	CreatedAt      time.Time `gorm:"not null"`
}

func (LedgerEntryModel) TableName() string {
	return "ledger_entries"
}

type LedgerIdempotencyKeyModel struct {
	IdempotencyKey string    `gorm:"primaryKey"`
	TxRef          string    `gorm:"type:uuid;not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (LedgerIdempotencyKeyModel) TableName() string {
	return "ledger_idempotency_keys"
}
