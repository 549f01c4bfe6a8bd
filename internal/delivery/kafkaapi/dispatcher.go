package kafkaapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/deal"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/escrow"
)

// DealTriggers is the part of deal.DealUsecase the listener drives.
type DealTriggers interface {
	Transition(ctx context.Context, cmd domain.TransitionCommand) (domain.TransitionResult, error)
	RequestPayment(ctx context.Context, dealID, actorID string) (domain.TransitionResult, error)
	OnDepositConfirmed(ctx context.Context, in escrow.DepositConfirmation) (deal.DepositResult, error)
	OnDepositFailed(ctx context.Context, dealID, reason string) (domain.TransitionResult, error)
	OnPublished(ctx context.Context, dealID, messageID, contentHash string) (domain.TransitionResult, error)
	OnDeliveryVerified(ctx context.Context, dealID string, partial *domain.PartialAmounts) (domain.TransitionResult, error)
	OnDeliveryFailed(ctx context.Context, dealID, reason string) (domain.TransitionResult, error)
	Cancel(ctx context.Context, dealID, actorID, reason string) (domain.TransitionResult, error)
}

type DealDispatcher struct {
	Deals DealTriggers
}

func NewDealDispatcher(deals DealTriggers) *DealDispatcher {
	return &DealDispatcher{Deals: deals}
}

// Dispatch runs the deal operation for t and reports whether it changed
// anything. Re-delivered triggers come back as duplicates.
func (d *DealDispatcher) Dispatch(ctx context.Context, t Trigger) (applied bool, err error) {
	var res domain.TransitionResult
	switch t := t.(type) {
	case DepositConfirmed:
		dep, err := d.Deals.OnDepositConfirmed(ctx, escrow.DepositConfirmation{
			DealID:        t.DealID,
			TxHash:        t.TxHash,
			AmountNano:    t.AmountNano,
			Confirmations: t.Confirmations,
			FromAddress:   t.FromAddress,
		})
		if err != nil {
			return false, err
		}
		return dep.Outcome != deal.DepositDuplicate, nil
	case DepositFailed:
		res, err = d.Deals.OnDepositFailed(ctx, t.DealID, t.Reason)
	case PaymentRequested:
		res, err = d.Deals.RequestPayment(ctx, t.DealID, t.ActorID)
	case Published:
		res, err = d.Deals.OnPublished(ctx, t.DealID, t.MessageID, t.ContentHash)
	case DeliveryVerified:
		var partial *domain.PartialAmounts
		if t.PartialAmounts != nil {
			partial = &domain.PartialAmounts{
				ReleaseNano: t.PartialAmounts.ReleaseNano,
				RefundNano:  t.PartialAmounts.RefundNano,
			}
		}
		res, err = d.Deals.OnDeliveryVerified(ctx, t.DealID, partial)
	case DeliveryFailed:
		res, err = d.Deals.OnDeliveryFailed(ctx, t.DealID, t.Reason)
	case CancelRequested:
		res, err = d.Deals.Cancel(ctx, t.DealID, t.ActorID, t.Reason)
	case TransitionRequested:
		if !t.TargetStatus.Valid() {
			return false, fmt.Errorf("%w: target status %q", ErrMalformedTrigger, t.TargetStatus)
		}
		res, err = d.Deals.Transition(ctx, domain.TransitionCommand{
			DealID:       t.DealID,
			TargetStatus: t.TargetStatus,
			ActorID:      t.ActorID,
			ActorType:    domain.ActorUser,
			Reason:       t.Reason,
		})
	default:
		return false, fmt.Errorf("%w: %T", ErrUnknownTrigger, t)
	}
	if err != nil {
		return false, err
	}
	return res.Outcome == domain.TransitionSucceeded, nil
}

// IsPermanent reports whether err is a business rejection. Such messages
// are acknowledged; retrying them can never succeed.
func IsPermanent(err error) bool {
	for _, target := range []error{
		ErrUnknownTrigger,
		ErrMalformedTrigger,
		domain.ErrInvalidStateTransition,
		domain.ErrDealNotFound,
		domain.ErrDepositNotFound,
		domain.ErrInvalidAmount,
		domain.ErrAmountOverflow,
		domain.ErrNotEnoughConfirmations,
		domain.ErrInsufficientBalance,
		domain.ErrLedgerInconsistency,
		domain.ErrInvalidAccountID,
		domain.ErrInvalidAddress,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
