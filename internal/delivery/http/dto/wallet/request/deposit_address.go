package request

type DepositAddressRequest struct {
	DealID string `json:"deal_id"`
}
