package models

import (
	"time"

	"gorm.io/datatypes"
)

type OutboxModel struct {
	ID             string         `gorm:"primaryKey;type:uuid"`
	DealID         *string        `gorm:"type:uuid"`
	IdempotencyKey string         `gorm:"not null;uniqueIndex:idx_outbox_idempotency_key"`
	Topic          string         `gorm:"not null"`
	PartitionKey   string         `gorm:"not null"`
	Payload        datatypes.JSON `gorm:"type:jsonb;not null"`
	Status         string         `gorm:"not null;index:idx_outbox_status_created,priority:1"`
	RetryCount     int            `gorm:"not null;default:0"`
	Version        int64          `gorm:"not null;default:0"`
	LastError      string
	CreatedAt      time.Time `gorm:"not null;index:idx_outbox_status_created,priority:2"`
	ClaimedAt      *time.Time
	ProcessedAt    *time.Time
}

func (OutboxModel) TableName() string {
	return "outbox"
}
