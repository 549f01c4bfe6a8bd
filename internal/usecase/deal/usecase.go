package deal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/metrics"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/escrow"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/ledger"
)

const eventStatusChanged = "STATUS_CHANGED"

type DealUsecase interface {
	Create(ctx context.Context, deal *domain.Deal) error
	Transition(ctx context.Context, cmd domain.TransitionCommand) (domain.TransitionResult, error)

	RequestPayment(ctx context.Context, dealID, actorID string) (domain.TransitionResult, error)
	OnDepositConfirmed(ctx context.Context, in escrow.DepositConfirmation) (DepositResult, error)
	OnDepositFailed(ctx context.Context, dealID, reason string) (domain.TransitionResult, error)
	OnPublished(ctx context.Context, dealID, messageID, contentHash string) (domain.TransitionResult, error)
	OnDeliveryVerified(ctx context.Context, dealID string, partial *domain.PartialAmounts) (domain.TransitionResult, error)
	OnDeliveryFailed(ctx context.Context, dealID, reason string) (domain.TransitionResult, error)
	Cancel(ctx context.Context, dealID, actorID, reason string) (domain.TransitionResult, error)

	ExpireTimedOut(ctx context.Context, policy TimeoutPolicy) (int, error)
}

type DefaultDealUsecase struct {
	Tx      domain.TxManager
	Deals   domain.DealRepository
	Outbox  domain.OutboxRepository
	Escrow  escrow.EscrowUsecase
	Ledger  ledger.LedgerUsecase
	Metrics *metrics.SettlementMetrics
	now     func() time.Time
}

func NewDefaultDealUsecase(
	tx domain.TxManager,
	deals domain.DealRepository,
	outbox domain.OutboxRepository,
	escrowUc escrow.EscrowUsecase,
	ledgerUc ledger.LedgerUsecase,
	settlementMetrics *metrics.SettlementMetrics,
) *DefaultDealUsecase {
	return &DefaultDealUsecase{
		Tx:      tx,
		Deals:   deals,
		Outbox:  outbox,
		Escrow:  escrowUc,
		Ledger:  ledgerUc,
		Metrics: settlementMetrics,
		now:     time.Now,
	}
}

// Create stores a new deal in DRAFT.
func (uc *DefaultDealUsecase) Create(ctx context.Context, deal *domain.Deal) error {
	if deal.ID == "" {
		deal.ID = uuid.NewString()
	}
	if deal.AmountNano <= 0 {
		return fmt.Errorf("%w: deal amount %d", domain.ErrInvalidAmount, deal.AmountNano)
	}
	if deal.CommissionRateBp < 0 || deal.CommissionRateBp > domain.BasisPointsFull {
		return fmt.Errorf("%w: commission rate %d bp", domain.ErrInvalidAmount, deal.CommissionRateBp)
	}
	now := uc.now().UTC()
	deal.Status = domain.DealDraft
	deal.Version = 0
	deal.CreatedAt = now
	deal.StatusChangedAt = now
	return uc.Deals.Create(ctx, deal)
}

// Transition moves a deal to cmd.TargetStatus. The status update, its
// ledger side effects, the audit event and the outbox entry commit
// together. A deal already in the target status yields AlreadyInTarget
// without writing anything.
func (uc *DefaultDealUsecase) Transition(ctx context.Context, cmd domain.TransitionCommand) (domain.TransitionResult, error) {
	var result domain.TransitionResult
	var from domain.DealStatus

	err := uc.Tx.Do(ctx, func(ctx context.Context, _ domain.UnitOfWork) error {
		deal, err := uc.Deals.GetByID(ctx, cmd.DealID)
		if err != nil {
			return err
		}
		from = deal.Status

		if deal.Status == cmd.TargetStatus {
			result = domain.AlreadyInTarget(deal.Status, deal.Version)
			return nil
		}
		if !domain.CanTransition(deal.Status, cmd.TargetStatus) {
			return &domain.InvalidStateTransitionError{Entity: "deal", From: deal.Status, To: cmd.TargetStatus}
		}
		if err := validatePartialAmounts(deal, cmd); err != nil {
			return err
		}

		now := uc.now().UTC()
		swapped, err := uc.Deals.CompareAndSwapStatus(ctx, domain.DealCAS{
			DealID:          deal.ID,
			ExpectedStatus:  deal.Status,
			ExpectedVersion: deal.Version,
			NewStatus:       cmd.TargetStatus,
			At:              now,
		})
		if err != nil {
			return fmt.Errorf("update deal %s status: %w", deal.ID, err)
		}
		if !swapped {
			current, err := uc.Deals.GetByID(ctx, deal.ID)
			if err != nil {
				return err
			}
			if current.Status == cmd.TargetStatus {
				result = domain.AlreadyInTarget(current.Status, current.Version)
				return nil
			}
			if uc.Metrics != nil {
				uc.Metrics.RecordTransitionConflict(string(cmd.TargetStatus))
			}
			return fmt.Errorf("%w: deal %s expected %s v%d, found %s v%d",
				domain.ErrVersionConflict, deal.ID, deal.Status, deal.Version, current.Status, current.Version)
		}

		if err := uc.applySideEffects(ctx, deal, cmd); err != nil {
			return err
		}
		if err := uc.recordTransition(ctx, deal, cmd, now); err != nil {
			return err
		}
		result = domain.Succeeded(cmd.TargetStatus, deal.Version+1)
		return nil
	})
	if err != nil {
		return domain.TransitionResult{}, err
	}

	switch result.Outcome {
	case domain.TransitionSucceeded:
		slog.InfoContext(ctx, "deal transitioned",
			"deal_id", cmd.DealID,
			"from", from,
			"to", result.Status,
			"version", result.Version,
			"actor_type", cmd.ActorType,
			"reason", cmd.Reason,
		)
		if uc.Metrics != nil {
			uc.Metrics.RecordTransition(string(from), string(result.Status))
		}
	case domain.TransitionAlreadyInTarget:
		slog.DebugContext(ctx, "deal already in target status", "deal_id", cmd.DealID, "status", result.Status)
	}
	return result, nil
}

func validatePartialAmounts(deal *domain.Deal, cmd domain.TransitionCommand) error {
	p := cmd.PartialAmounts
	if p == nil {
		return nil
	}
	if cmd.TargetStatus != domain.DealCompletedReleased {
		return fmt.Errorf("%w: partial amounts only apply to %s", domain.ErrInvalidAmount, domain.DealCompletedReleased)
	}
	if p.ReleaseNano < 0 || p.RefundNano < 0 {
		return fmt.Errorf("%w: negative partial amounts", domain.ErrInvalidAmount)
	}
	total, err := p.ReleaseNano.Add(p.RefundNano)
	if err != nil {
		return err
	}
	if total != deal.AmountNano {
		return fmt.Errorf("%w: partial amounts %d + %d do not cover deal amount %d",
			domain.ErrInvalidAmount, p.ReleaseNano, p.RefundNano, deal.AmountNano)
	}
	return nil
}

// applySideEffects runs the escrow movement implied by entering the target status.
func (uc *DefaultDealUsecase) applySideEffects(ctx context.Context, deal *domain.Deal, cmd domain.TransitionCommand) error {
	switch {
	case cmd.TargetStatus == domain.DealCompletedReleased && cmd.PartialAmounts != nil:
		if cmd.PartialAmounts.ReleaseNano > 0 {
			if _, err := uc.Escrow.ReleaseEscrow(ctx, deal.ID, deal.OwnerID, cmd.PartialAmounts.ReleaseNano, deal.CommissionRateBp); err != nil {
				return fmt.Errorf("release escrow of deal %s: %w", deal.ID, err)
			}
		}
		if cmd.PartialAmounts.RefundNano > 0 {
			if _, err := uc.Escrow.RefundPartial(ctx, deal.ID, cmd.PartialAmounts.RefundNano); err != nil {
				return fmt.Errorf("partial refund of deal %s: %w", deal.ID, err)
			}
		}
	case cmd.TargetStatus == domain.DealCompletedReleased:
		if _, err := uc.Escrow.ReleaseEscrow(ctx, deal.ID, deal.OwnerID, deal.AmountNano, deal.CommissionRateBp); err != nil {
			return fmt.Errorf("release escrow of deal %s: %w", deal.ID, err)
		}
	case (cmd.TargetStatus == domain.DealCancelled || cmd.TargetStatus == domain.DealExpired) && deal.Status.IsFunded():
		if _, err := uc.Escrow.RefundEscrow(ctx, deal.ID, deal.AmountNano); err != nil {
			return fmt.Errorf("refund escrow of deal %s: %w", deal.ID, err)
		}
	case (cmd.TargetStatus == domain.DealCancelled || cmd.TargetStatus == domain.DealExpired) && deal.Status == domain.DealAwaitingPayment:
		// Split payments that never reached the deal amount go back.
		received, _, err := uc.receivedSoFar(ctx, deal.ID, "")
		if err != nil {
			return err
		}
		if received > 0 {
			if _, err := uc.Escrow.RefundPartial(ctx, deal.ID, received); err != nil {
				return fmt.Errorf("refund partial deposits of deal %s: %w", deal.ID, err)
			}
		}
	}
	return nil
}

type eventPayload struct {
	Reason         string                 `json:"reason,omitempty"`
	PartialAmounts *domain.PartialAmounts `json:"partial_amounts,omitempty"`
}

func (uc *DefaultDealUsecase) recordTransition(ctx context.Context, deal *domain.Deal, cmd domain.TransitionCommand, at time.Time) error {
	payload, err := json.Marshal(eventPayload{Reason: cmd.Reason, PartialAmounts: cmd.PartialAmounts})
	if err != nil {
		return err
	}
	if err := uc.Deals.AppendEvent(ctx, &domain.DealEventRecord{
		DealID:     deal.ID,
		EventType:  eventStatusChanged,
		FromStatus: deal.Status,
		ToStatus:   cmd.TargetStatus,
		ActorID:    cmd.ActorID,
		ActorType:  cmd.ActorType,
		Payload:    payload,
		CreatedAt:  at,
	}); err != nil {
		return fmt.Errorf("append deal event: %w", err)
	}

	newVersion := deal.Version + 1
	eventID := uuid.NewString()
	body, err := json.Marshal(domain.DealStatusChangedEvent{
		EventID:      eventID,
		DealID:       deal.ID,
		FromStatus:   deal.Status,
		ToStatus:     cmd.TargetStatus,
		Version:      newVersion,
		AdvertiserID: deal.AdvertiserID,
		OwnerID:      deal.OwnerID,
		AmountNano:   deal.AmountNano,
		ActorID:      cmd.ActorID,
		ActorType:    cmd.ActorType,
		Reason:       cmd.Reason,
		OccurredAt:   at,
	})
	if err != nil {
		return err
	}
	if err := uc.Outbox.Save(ctx, &domain.OutboxEntry{
		ID:             eventID,
		DealID:         deal.ID,
		IdempotencyKey: fmt.Sprintf("deal-status:%s:%d", deal.ID, newVersion),
		Topic:          domain.TopicDealEvents,
		PartitionKey:   deal.ID,
		Payload:        body,
		CreatedAt:      at,
	}); err != nil {
		return fmt.Errorf("save outbox entry: %w", err)
	}
	return nil
}

// notify enqueues a participant notification in the caller's transaction.
func (uc *DefaultDealUsecase) notify(ctx context.Context, n domain.DealNotification, key string) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return uc.Outbox.Save(ctx, &domain.OutboxEntry{
		ID:             uuid.NewString(),
		DealID:         n.DealID,
		IdempotencyKey: key,
		Topic:          domain.TopicDealNotifications,
		PartitionKey:   n.RecipientID,
		Payload:        body,
		CreatedAt:      n.OccurredAt,
	})
}

// IsRetryable reports whether a transition error is a lost race that the
// caller may retry with a fresh read.
func IsRetryable(err error) bool {
	return errors.Is(err, domain.ErrVersionConflict)
}
