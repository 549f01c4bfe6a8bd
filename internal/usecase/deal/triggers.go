package deal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/escrow"
)

type DepositOutcome int

const (
	DepositFunded DepositOutcome = iota + 1
	DepositPartial
	DepositOverpaid
	DepositDuplicate
)

func (o DepositOutcome) String() string {
	switch o {
	case DepositFunded:
		return "funded"
	case DepositPartial:
		return "partial"
	case DepositOverpaid:
		return "overpaid"
	case DepositDuplicate:
		return "duplicate"
	}
	return "unknown"
}

type DepositResult struct {
	Outcome      DepositOutcome
	Status       domain.DealStatus
	ReceivedNano domain.Nano
	MissingNano  domain.Nano
	RefundedNano domain.Nano
}

// RequestPayment moves the deal to AWAITING_PAYMENT and issues its deposit
// address. The wallet call happens after the transition commits; a deal that
// already has an address keeps it, so re-delivery never issues a second one.
func (uc *DefaultDealUsecase) RequestPayment(ctx context.Context, dealID, actorID string) (domain.TransitionResult, error) {
	res, err := uc.Transition(ctx, domain.TransitionCommand{
		DealID:       dealID,
		TargetStatus: domain.DealAwaitingPayment,
		ActorID:      actorID,
		ActorType:    domain.ActorUser,
		Reason:       "payment requested",
	})
	if err != nil {
		return res, err
	}

	deal, err := uc.Deals.GetByID(ctx, dealID)
	if err != nil {
		return res, err
	}
	if deal.DepositAddress != "" || deal.Status != domain.DealAwaitingPayment {
		return res, nil
	}
	if _, err := uc.Escrow.GenerateDepositAddress(ctx, deal.ID, deal.AmountNano); err != nil {
		return res, err
	}
	return res, nil
}

// OnDepositConfirmed books an on-chain payment into the deal escrow and
// funds the deal once the received total covers the deal amount. A single
// exact payment uses the deposit key; split payments use partial-deposit
// keys. Any excess is refunded in the same transaction. A payment that
// arrives after funding, or after the deal ended, is booked and refunded
// in full.
func (uc *DefaultDealUsecase) OnDepositConfirmed(ctx context.Context, in escrow.DepositConfirmation) (DepositResult, error) {
	var res DepositResult
	err := uc.Tx.Do(ctx, func(ctx context.Context, _ domain.UnitOfWork) error {
		deal, err := uc.Deals.GetByID(ctx, in.DealID)
		if err != nil {
			return err
		}
		late := deal.Status.IsFunded() || deal.Status.IsTerminal()
		if !late && deal.Status != domain.DealAwaitingPayment {
			return &domain.InvalidStateTransitionError{Entity: "deal", From: deal.Status, To: domain.DealFunded}
		}

		received, seen, err := uc.receivedSoFar(ctx, deal.ID, in.TxHash)
		if err != nil {
			return err
		}
		if seen {
			res = DepositResult{Outcome: DepositDuplicate, Status: deal.Status, ReceivedNano: received}
			return nil
		}
		if late {
			res, err = uc.refundLateDeposit(ctx, deal, in, received)
			return err
		}

		total, err := received.Add(in.AmountNano)
		if err != nil {
			return err
		}
		now := uc.now().UTC()

		if received == 0 && total >= deal.AmountNano {
			_, err = uc.Escrow.ConfirmDeposit(ctx, in)
		} else {
			_, err = uc.Escrow.ConfirmPartialDeposit(ctx, in)
		}
		if err != nil {
			return err
		}

		if total < deal.AmountNano {
			res = DepositResult{Outcome: DepositPartial, Status: deal.Status, ReceivedNano: total, MissingNano: deal.AmountNano - total}
			return uc.notify(ctx, domain.DealNotification{
				Kind:        domain.NotifyPartialDeposit,
				RecipientID: deal.AdvertiserID,
				DealID:      deal.ID,
				AmountNano:  total,
				MissingNano: res.MissingNano,
				OccurredAt:  now,
			}, domain.PartialDepositKey(deal.ID, in.TxHash))
		}

		tr, err := uc.Transition(ctx, domain.TransitionCommand{
			DealID:       deal.ID,
			TargetStatus: domain.DealFunded,
			ActorType:    domain.ActorSystem,
			Reason:       "deposit " + in.TxHash,
		})
		if err != nil {
			return err
		}
		res = DepositResult{Outcome: DepositFunded, Status: tr.Status, ReceivedNano: total}

		if excess := total - deal.AmountNano; excess > 0 {
			if _, err := uc.Escrow.RefundOverpayment(ctx, deal.ID, in.TxHash, excess); err != nil {
				return fmt.Errorf("refund overpayment of deal %s: %w", deal.ID, err)
			}
			res.Outcome = DepositOverpaid
			res.RefundedNano = excess
			return uc.notify(ctx, domain.DealNotification{
				Kind:        domain.NotifyOverpayment,
				RecipientID: deal.AdvertiserID,
				DealID:      deal.ID,
				AmountNano:  excess,
				OccurredAt:  now,
			}, domain.OverpaymentRefundKey(deal.ID, in.TxHash))
		}
		return nil
	})
	if err != nil {
		return DepositResult{}, err
	}
	slog.InfoContext(ctx, "deposit processed",
		"deal_id", in.DealID,
		"tx_hash", in.TxHash,
		"outcome", res.Outcome.String(),
		"received_nano", res.ReceivedNano,
	)
	return res, nil
}

func (uc *DefaultDealUsecase) refundLateDeposit(ctx context.Context, deal *domain.Deal, in escrow.DepositConfirmation, received domain.Nano) (DepositResult, error) {
	if _, err := uc.Escrow.ConfirmPartialDeposit(ctx, in); err != nil {
		return DepositResult{}, err
	}
	if _, err := uc.Escrow.RefundOverpayment(ctx, deal.ID, in.TxHash, in.AmountNano); err != nil {
		return DepositResult{}, fmt.Errorf("refund late deposit of deal %s: %w", deal.ID, err)
	}
	slog.WarnContext(ctx, "late deposit refunded",
		"deal_id", deal.ID, "status", deal.Status, "tx_hash", in.TxHash, "amount_nano", in.AmountNano)

	res := DepositResult{Outcome: DepositOverpaid, Status: deal.Status, ReceivedNano: received, RefundedNano: in.AmountNano}
	return res, uc.notify(ctx, domain.DealNotification{
		Kind:        domain.NotifyOverpayment,
		RecipientID: deal.AdvertiserID,
		DealID:      deal.ID,
		AmountNano:  in.AmountNano,
		OccurredAt:  uc.now().UTC(),
	}, domain.OverpaymentRefundKey(deal.ID, in.TxHash))
}

// receivedSoFar sums the deposits already booked into the deal escrow and
// reports whether txHash is among them.
func (uc *DefaultDealUsecase) receivedSoFar(ctx context.Context, dealID, txHash string) (domain.Nano, bool, error) {
	entries, err := uc.Ledger.GetEntriesByDeal(ctx, dealID)
	if err != nil {
		return 0, false, err
	}
	escrowAccount := domain.EscrowAccount(dealID)
	fullKey := domain.DepositKey(txHash)
	partialKey := domain.PartialDepositKey(dealID, txHash)

	var received domain.Nano
	var seen bool
	for _, e := range entries {
		if e.AccountID != escrowAccount || e.CreditNano == 0 {
			continue
		}
		if e.EntryType != domain.EntryDeposit && e.EntryType != domain.EntryPartialDeposit {
			continue
		}
		if e.IdempotencyKey == fullKey || e.IdempotencyKey == partialKey {
			seen = true
		}
		if received, err = received.Add(e.CreditNano); err != nil {
			return 0, false, err
		}
	}
	return received, seen, nil
}

func (uc *DefaultDealUsecase) OnDepositFailed(ctx context.Context, dealID, reason string) (domain.TransitionResult, error) {
	return uc.Transition(ctx, domain.TransitionCommand{
		DealID:       dealID,
		TargetStatus: domain.DealExpired,
		ActorType:    domain.ActorSystem,
		Reason:       "deposit failed: " + reason,
	})
}

// OnPublished stores the published message reference and moves the deal to
// PUBLISHED in one transaction.
func (uc *DefaultDealUsecase) OnPublished(ctx context.Context, dealID, messageID, contentHash string) (domain.TransitionResult, error) {
	var res domain.TransitionResult
	err := uc.Tx.Do(ctx, func(ctx context.Context, _ domain.UnitOfWork) error {
		if err := uc.Deals.SetPublication(ctx, dealID, messageID, contentHash); err != nil {
			return err
		}
		var err error
		res, err = uc.Transition(ctx, domain.TransitionCommand{
			DealID:       dealID,
			TargetStatus: domain.DealPublished,
			ActorType:    domain.ActorSystem,
			Reason:       "published message " + messageID,
		})
		return err
	})
	return res, err
}

func (uc *DefaultDealUsecase) OnDeliveryVerified(ctx context.Context, dealID string, partial *domain.PartialAmounts) (domain.TransitionResult, error) {
	return uc.Transition(ctx, domain.TransitionCommand{
		DealID:         dealID,
		TargetStatus:   domain.DealCompletedReleased,
		ActorType:      domain.ActorSystem,
		Reason:         "delivery verified",
		PartialAmounts: partial,
	})
}

func (uc *DefaultDealUsecase) OnDeliveryFailed(ctx context.Context, dealID, reason string) (domain.TransitionResult, error) {
	return uc.Transition(ctx, domain.TransitionCommand{
		DealID:       dealID,
		TargetStatus: domain.DealDisputed,
		ActorType:    domain.ActorSystem,
		Reason:       "delivery failed: " + reason,
	})
}

func (uc *DefaultDealUsecase) Cancel(ctx context.Context, dealID, actorID, reason string) (domain.TransitionResult, error) {
	return uc.Transition(ctx, domain.TransitionCommand{
		DealID:       dealID,
		TargetStatus: domain.DealCancelled,
		ActorID:      actorID,
		ActorType:    domain.ActorUser,
		Reason:       reason,
	})
}
