package kafkaapi

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
)

var (
	ErrUnknownTrigger   = errors.New("unknown trigger type")
	ErrMalformedTrigger = errors.New("malformed trigger")
)

const (
	TypeDepositConfirmed    = "DEPOSIT_CONFIRMED"
	TypeDepositFailed       = "DEPOSIT_FAILED"
	TypePaymentRequested    = "PAYMENT_REQUESTED"
	TypePublished           = "PUBLISHED"
	TypeDeliveryVerified    = "DELIVERY_VERIFIED"
	TypeDeliveryFailed      = "DELIVERY_FAILED"
	TypeCancelRequested     = "CANCEL_REQUESTED"
	TypeTransitionRequested = "TRANSITION_REQUESTED"
)

// Trigger is one decoded message of the deal-triggers topic. The set of
// implementations is closed: only this package can add one.
type Trigger interface {
	Type() string
	Deal() string
	trigger()
}

type dealRef struct {
	DealID string `json:"deal_id"`
}

func (r dealRef) Deal() string { return r.DealID }
func (dealRef) trigger()       {}

type DepositConfirmed struct {
	dealRef
	TxHash        string      `json:"tx_hash"`
	AmountNano    domain.Nano `json:"amount_nano"`
	Confirmations int         `json:"confirmations"`
	FromAddress   string      `json:"from_address"`
}

type DepositFailed struct {
	dealRef
	Reason string `json:"reason"`
}

type PaymentRequested struct {
	dealRef
	ActorID string `json:"actor_id"`
}

type Published struct {
	dealRef
	MessageID   string `json:"message_id"`
	ContentHash string `json:"content_hash"`
}

type DeliveryVerified struct {
	dealRef
	PartialAmounts *PartialAmounts `json:"partial_amounts,omitempty"`
}

type PartialAmounts struct {
	ReleaseNano domain.Nano `json:"release_nano"`
	RefundNano  domain.Nano `json:"refund_nano"`
}

type DeliveryFailed struct {
	dealRef
	Reason string `json:"reason"`
}

type CancelRequested struct {
	dealRef
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason"`
}

type TransitionRequested struct {
	dealRef
	TargetStatus domain.DealStatus `json:"target_status"`
	ActorID      string            `json:"actor_id"`
	Reason       string            `json:"reason"`
}

func (DepositConfirmed) Type() string    { return TypeDepositConfirmed }
func (DepositFailed) Type() string       { return TypeDepositFailed }
func (PaymentRequested) Type() string    { return TypePaymentRequested }
func (Published) Type() string           { return TypePublished }
func (DeliveryVerified) Type() string    { return TypeDeliveryVerified }
func (DeliveryFailed) Type() string      { return TypeDeliveryFailed }
func (CancelRequested) Type() string     { return TypeCancelRequested }
func (TransitionRequested) Type() string { return TypeTransitionRequested }

type envelope struct {
	Type   string `json:"type"`
	DealID string `json:"deal_id"`
}

// DecodeTrigger parses a deal-triggers message. The error wraps
// ErrUnknownTrigger for a type this service does not handle and
// ErrMalformedTrigger for anything it cannot read.
func DecodeTrigger(value []byte) (Trigger, error) {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTrigger, err)
	}
	if env.DealID == "" {
		return nil, fmt.Errorf("%w: missing deal_id", ErrMalformedTrigger)
	}
	if _, err := uuid.Parse(env.DealID); err != nil {
		return nil, fmt.Errorf("%w: deal_id %q: %v", ErrMalformedTrigger, env.DealID, err)
	}

	var t Trigger
	switch env.Type {
	case TypeDepositConfirmed:
		t = decodeAs[DepositConfirmed](value)
	case TypeDepositFailed:
		t = decodeAs[DepositFailed](value)
	case TypePaymentRequested:
		t = decodeAs[PaymentRequested](value)
	case TypePublished:
		t = decodeAs[Published](value)
	case TypeDeliveryVerified:
		t = decodeAs[DeliveryVerified](value)
	case TypeDeliveryFailed:
		t = decodeAs[DeliveryFailed](value)
	case TypeCancelRequested:
		t = decodeAs[CancelRequested](value)
	case TypeTransitionRequested:
		t = decodeAs[TransitionRequested](value)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTrigger, env.Type)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: bad %s payload", ErrMalformedTrigger, env.Type)
	}
	return t, nil
}

func decodeAs[T Trigger](value []byte) Trigger {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return nil
	}
	return v
}
