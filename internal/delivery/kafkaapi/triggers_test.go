package kafkaapi

import (
	"errors"
	"testing"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
)

const (
	dealA = "5f0c2b9e-4d0a-4c3e-9a51-0c7d2e1f8a11"
	dealB = "a3e1d7c2-96b4-4f1e-8c0d-5b2f6e9a7d22"
	dealC = "0b6f4e21-7c3a-4d88-b1e9-2a5c8d3f6e33"
)

func TestDecodeTrigger(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Trigger
		wantErr error
	}{
		{
			name:    "deposit confirmed",
			payload: `{"type":"DEPOSIT_CONFIRMED","deal_id":"5f0c2b9e-4d0a-4c3e-9a51-0c7d2e1f8a11","tx_hash":"h1","amount_nano":1000,"confirmations":3,"from_address":"EQx"}`,
			want: DepositConfirmed{
				dealRef: dealRef{DealID: dealA}, TxHash: "h1", AmountNano: 1000, Confirmations: 3, FromAddress: "EQx",
			},
		},
		{
			name:    "delivery verified with partial amounts",
			payload: `{"type":"DELIVERY_VERIFIED","deal_id":"a3e1d7c2-96b4-4f1e-8c0d-5b2f6e9a7d22","partial_amounts":{"release_nano":700,"refund_nano":300}}`,
		},
		{
			name:    "transition requested",
			payload: `{"type":"TRANSITION_REQUESTED","deal_id":"0b6f4e21-7c3a-4d88-b1e9-2a5c8d3f6e33","target_status":"FUNDED","actor_id":"u1"}`,
			want: TransitionRequested{
				dealRef: dealRef{DealID: dealC}, TargetStatus: domain.DealFunded, ActorID: "u1",
			},
		},
		{
			name:    "unknown type",
			payload: `{"type":"CHANNEL_RENAMED","deal_id":"c9d2a1f0-3b7e-4a6c-8e15-7f0b4c2d9a44"}`,
			wantErr: ErrUnknownTrigger,
		},
		{
			name:    "missing deal id",
			payload: `{"type":"DEPOSIT_FAILED"}`,
			wantErr: ErrMalformedTrigger,
		},
		{
			name:    "deal id is not a uuid",
			payload: `{"type":"PUBLISHED","deal_id":"abc","message_id":"m1"}`,
			wantErr: ErrMalformedTrigger,
		},
		{
			name:    "not json",
			payload: `deposit`,
			wantErr: ErrMalformedTrigger,
		},
		{
			name:    "wrong field type",
			payload: `{"type":"DEPOSIT_CONFIRMED","deal_id":"6e8a3c5d-1f2b-4e9a-a7c3-9d4e0f1b2c55","amount_nano":"lots"}`,
			wantErr: ErrMalformedTrigger,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeTrigger([]byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tt.want != nil && got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeDeliveryVerifiedKeepsPartialAmounts(t *testing.T) {
	got, err := DecodeTrigger([]byte(`{"type":"DELIVERY_VERIFIED","deal_id":"a3e1d7c2-96b4-4f1e-8c0d-5b2f6e9a7d22","partial_amounts":{"release_nano":700,"refund_nano":300}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	dv, ok := got.(DeliveryVerified)
	if !ok {
		t.Fatalf("expected DeliveryVerified, got %T", got)
	}
	if dv.Deal() != dealB || dv.PartialAmounts == nil || dv.PartialAmounts.ReleaseNano != 700 || dv.PartialAmounts.RefundNano != 300 {
		t.Fatalf("unexpected trigger %+v", dv)
	}
}
