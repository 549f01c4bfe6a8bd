package models

import "time"

type TonTransactionModel struct {
	ID            string `gorm:"primaryKey;type:uuid"`
	DealID        string `gorm:"type:uuid;not null;index:idx_ton_transactions_deal_id"`
	Direction     string `gorm:"not null"`
	Address       string `gorm:"not null"`
	SubwalletID   int64
	ExpectedNano  int64
	AmountNano    int64
	TxHash        *string `gorm:"uniqueIndex:idx_ton_transactions_tx_hash"`
	FromAddress   string
	Confirmations int
	Status        string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
	ConfirmedAt   *time.Time
}

func (TonTransactionModel) TableName() string {
	return "ton_transactions"
}
