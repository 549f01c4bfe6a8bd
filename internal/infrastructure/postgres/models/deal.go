package models

import (
	"time"

	"gorm.io/datatypes"
)

type DealModel struct {
	ID                 string `gorm:"primaryKey;type:uuid"`
	Status             string `gorm:"not null;index:idx_deals_status_changed,priority:1"`
	Version            int64  `gorm:"not null;default:0"`
	AdvertiserID       string `gorm:"not null"`
	OwnerID            string `gorm:"not null"`
	ChannelID          string
	AmountNano         int64 `gorm:"not null"`
	CommissionRateBp   int64 `gorm:"not null"`
	DepositAddress     string
	SubwalletID        int64
	PublishedMessageID string
	ContentHash        string
	StatusChangedAt    time.Time `gorm:"not null;index:idx_deals_status_changed,priority:2"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (DealModel) TableName() string {
	return "deals"
}

type DealEventModel struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	DealID     string `gorm:"type:uuid;not null;index:idx_deal_events_deal_id"`
	EventType  string `gorm:"not null"`
	FromStatus string
	ToStatus   string `gorm:"not null"`
	ActorID    string
	ActorType  string         `gorm:"not null"`
	Payload    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"not null"`
}

func (DealEventModel) TableName() string {
	return "deal_events"
}
