package response

import "time"

type BalanceResponse struct {
	AccountID   string `json:"account_id"`
	BalanceNano int64  `json:"balance_nano"`
	BalanceTON  string `json:"balance_ton"`
}

type EntryResponse struct {
	ID             int64     `json:"id"`
	TxRef          string    `json:"tx_ref"`
	AccountID      string    `json:"account_id"`
	EntryType      string    `json:"entry_type"`
	DebitNano      int64     `json:"debit_nano"`
	CreditNano     int64     `json:"credit_nano"`
	IdempotencyKey string    `json:"idempotency_key"`
	Description    string    `json:"description,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type EntryPageResponse struct {
	Entries    []EntryResponse `json:"entries"`
	NextCursor int64           `json:"next_cursor,omitempty"`
}
