package domain

import (
	"context"
	"time"
)

type DealStatus string

const (
	DealDraft             DealStatus = "DRAFT"
	DealOfferPending      DealStatus = "OFFER_PENDING"
	DealNegotiating       DealStatus = "NEGOTIATING"
	DealAwaitingPayment   DealStatus = "AWAITING_PAYMENT"
	DealFunded            DealStatus = "FUNDED"
	DealCreativeApproved  DealStatus = "CREATIVE_APPROVED"
	DealScheduled         DealStatus = "SCHEDULED"
	DealPublished         DealStatus = "PUBLISHED"
	DealCompletedReleased DealStatus = "COMPLETED_RELEASED"
	DealDisputed          DealStatus = "DISPUTED"
	DealExpired           DealStatus = "EXPIRED"
	DealCancelled         DealStatus = "CANCELLED"
)

// allowedTransitions lists the forward edges. EXPIRED and CANCELLED are
// reachable from every non-terminal status and are handled in CanTransition.
var allowedTransitions = map[DealStatus][]DealStatus{
	DealDraft:            {DealOfferPending},
	DealOfferPending:     {DealNegotiating, DealAwaitingPayment},
	DealNegotiating:      {DealAwaitingPayment},
	DealAwaitingPayment:  {DealFunded},
	DealFunded:           {DealCreativeApproved},
	DealCreativeApproved: {DealScheduled},
	DealScheduled:        {DealPublished},
	DealPublished:        {DealCompletedReleased, DealDisputed},
	DealDisputed:         {DealCompletedReleased},
}

func (s DealStatus) Valid() bool {
	switch s {
	case DealDraft, DealOfferPending, DealNegotiating, DealAwaitingPayment, DealFunded,
		DealCreativeApproved, DealScheduled, DealPublished, DealCompletedReleased,
		DealDisputed, DealExpired, DealCancelled:
		return true
	}
	return false
}

func (s DealStatus) IsTerminal() bool {
	return s == DealCompletedReleased || s == DealExpired || s == DealCancelled
}

// IsFunded reports whether the deal escrow holds the advertiser's money in
// this status, so leaving it without release means a refund.
func (s DealStatus) IsFunded() bool {
	switch s {
	case DealFunded, DealCreativeApproved, DealScheduled, DealPublished, DealDisputed:
		return true
	}
	return false
}

func CanTransition(from, to DealStatus) bool {
	if from.IsTerminal() || !to.Valid() {
		return false
	}
	if to == DealExpired || to == DealCancelled {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Deal struct {
	ID               string
	Status           DealStatus
	Version          int64
	AdvertiserID     string
	OwnerID          string
	ChannelID        string
	AmountNano       Nano
	CommissionRateBp int64
	DepositAddress   string
	SubwalletID      int64

	PublishedMessageID string
	ContentHash        string

	StatusChangedAt time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type ActorType string

const (
	ActorUser   ActorType = "USER"
	ActorSystem ActorType = "SYSTEM"
)

type DealEventRecord struct {
	ID         int64
	DealID     string
	EventType  string
	FromStatus DealStatus
	ToStatus   DealStatus
	ActorID    string
	ActorType  ActorType
	Payload    []byte
	CreatedAt  time.Time
}

// DealCAS describes one compare-and-swap status update.
type DealCAS struct {
	DealID          string
	ExpectedStatus  DealStatus
	ExpectedVersion int64
	NewStatus       DealStatus
	At              time.Time
}

type DealRepository interface {
	Create(ctx context.Context, deal *Deal) error
	GetByID(ctx context.Context, dealID string) (*Deal, error)
	// CompareAndSwapStatus applies the update only when the row still has the
	// expected status and version. It reports false when zero rows matched.
	CompareAndSwapStatus(ctx context.Context, cas DealCAS) (bool, error)
	AppendEvent(ctx context.Context, event *DealEventRecord) error
	ListEvents(ctx context.Context, dealID string) ([]DealEventRecord, error)
	// FindStaleInStatus returns deals that entered status before cutoff, oldest first.
	FindStaleInStatus(ctx context.Context, status DealStatus, cutoff time.Time, limit int) ([]*Deal, error)
	SetDepositAddress(ctx context.Context, dealID, address string, subwalletID int64) error
	SetPublication(ctx context.Context, dealID, messageID, contentHash string) error
}
