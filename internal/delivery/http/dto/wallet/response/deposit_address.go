package response

type DepositAddressResponse struct {
	Success     bool   `json:"success"`
	Address     string `json:"address"`
	SubwalletID int64  `json:"subwallet_id"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
