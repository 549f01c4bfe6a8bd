package domain

import "time"

// Payloads written to the outbox. Field names are part of the wire contract.

type DealStatusChangedEvent struct {
	EventID      string     `json:"event_id"`
	DealID       string     `json:"deal_id"`
	FromStatus   DealStatus `json:"from_status"`
	ToStatus     DealStatus `json:"to_status"`
	Version      int64      `json:"version"`
	AdvertiserID string     `json:"advertiser_id"`
	OwnerID      string     `json:"owner_id"`
	AmountNano   Nano       `json:"amount_nano"`
	ActorID      string     `json:"actor_id,omitempty"`
	ActorType    ActorType  `json:"actor_type"`
	Reason       string     `json:"reason,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

type NotificationKind string

const (
	NotifyPartialDeposit  NotificationKind = "PARTIAL_DEPOSIT"
	NotifyOverpayment     NotificationKind = "OVERPAYMENT_REFUNDED"
	NotifyUnclaimedPayout NotificationKind = "UNCLAIMED_PAYOUT"
)

type DealNotification struct {
	Kind        NotificationKind `json:"kind"`
	RecipientID string           `json:"recipient_id"`
	DealID      string           `json:"deal_id,omitempty"`
	AmountNano  Nano             `json:"amount_nano"`
	MissingNano Nano             `json:"missing_nano,omitempty"` // partial deposits only
	OccurredAt  time.Time        `json:"occurred_at"`
}

type PayoutRequest struct {
	UserID         string    `json:"user_id"`
	AmountNano     Nano      `json:"amount_nano"`
	TxRef          string    `json:"tx_ref"`
	IdempotencyKey string    `json:"idempotency_key"`
	RequestedAt    time.Time `json:"requested_at"`
}
