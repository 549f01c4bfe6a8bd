package domain

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// EntryType is used for reporting and reconciliation only, never for balance logic.
type EntryType string

const (
	EntryDeposit           EntryType = "DEPOSIT"
	EntryPartialDeposit    EntryType = "PARTIAL_DEPOSIT"
	EntryEscrowRelease     EntryType = "ESCROW_RELEASE"
	EntryCommission        EntryType = "COMMISSION"
	EntryOwnerPayout       EntryType = "OWNER_PAYOUT"
	EntryRefund            EntryType = "REFUND"
	EntryPartialRefund     EntryType = "PARTIAL_REFUND"
	EntryOverpaymentRefund EntryType = "OVERPAYMENT_REFUND"
	EntryCommissionSweep   EntryType = "COMMISSION_SWEEP"
	EntryWithdrawal        EntryType = "WITHDRAWAL"
	EntryNetworkFee        EntryType = "NETWORK_FEE"
	EntryReversal          EntryType = "REVERSAL"
)

type Leg struct {
	AccountID AccountID
	EntryType EntryType
	Amount    Nano
	Side      Side
}

func Debit(account AccountID, entryType EntryType, amount Nano) Leg {
	return Leg{AccountID: account, EntryType: entryType, Amount: amount, Side: SideDebit}
}

func Credit(account AccountID, entryType EntryType, amount Nano) Leg {
	return Leg{AccountID: account, EntryType: entryType, Amount: amount, Side: SideCredit}
}

// Delta is the signed change the leg applies to its account balance.
// Balances grow on credit and shrink on debit.
func (l Leg) Delta() Nano {
	if l.Side == SideDebit {
		return -l.Amount
	}
	return l.Amount
}

type TransferRequest struct {
	DealID         string
	IdempotencyKey string
	Legs           []Leg
	Description    string
}

// Validate rejects empty, negative, overflowing or unbalanced requests.
func (r TransferRequest) Validate() error {
	if r.IdempotencyKey == "" {
		return fmt.Errorf("%w: idempotency key is required", ErrLedgerInconsistency)
	}
	if len(r.Legs) < 2 {
		return fmt.Errorf("%w: transfer %s needs at least two legs", ErrLedgerInconsistency, r.IdempotencyKey)
	}
	var debits, credits Nano
	var err error
	for _, leg := range r.Legs {
		if _, parseErr := ParseAccountID(string(leg.AccountID)); parseErr != nil {
			return fmt.Errorf("%w: %v", ErrLedgerInconsistency, parseErr)
		}
		if leg.Amount <= 0 {
			return fmt.Errorf("%w: leg on %s has non-positive amount %d", ErrLedgerInconsistency, leg.AccountID, leg.Amount)
		}
		switch leg.Side {
		case SideDebit:
			debits, err = debits.Add(leg.Amount)
		case SideCredit:
			credits, err = credits.Add(leg.Amount)
		default:
			return fmt.Errorf("%w: unknown side %q", ErrLedgerInconsistency, leg.Side)
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLedgerInconsistency, err)
		}
	}
	if debits != credits {
		return fmt.Errorf("%w: debits %d != credits %d for %s", ErrLedgerInconsistency, debits, credits, r.IdempotencyKey)
	}
	return nil
}

// SortedLegs returns the legs ordered by account id ascending. Every code
// path that locks balances goes through this order, which is what keeps
// concurrent transfers over overlapping accounts free of circular waits.
func (r TransferRequest) SortedLegs() []Leg {
	legs := make([]Leg, len(r.Legs))
	copy(legs, r.Legs)
	sort.SliceStable(legs, func(i, j int) bool {
		return legs[i].AccountID < legs[j].AccountID
	})
	return legs
}

type LedgerEntry struct {
	ID             int64
	DealID         string
	AccountID      AccountID
	EntryType      EntryType
	DebitNano      Nano
	CreditNano     Nano
	IdempotencyKey string
	TxRef          string
	Description    string
	CreatedAt      time.Time
}

type AccountBalance struct {
	AccountID   AccountID
	BalanceNano Nano
	UpdatedAt   time.Time
}

// EntryPage is one page of account history, newest first. NextCursor is
// the id to pass to fetch the following page, zero when there is none.
type EntryPage struct {
	Entries    []LedgerEntry
	NextCursor int64
}

// Idempotency keys. Formats are shared with existing data and must not change.

func DepositKey(txHash string) string {
	return "deposit:" + txHash
}

func ReleaseKey(dealID string) string {
	return "release:" + dealID
}

func RefundKey(dealID string) string {
	return "refund:" + dealID
}

func PartialDepositKey(dealID, txHash string) string {
	return "partial-deposit:" + dealID + ":" + txHash
}

func PartialRefundKey(dealID string) string {
	return "partial-refund:" + dealID
}

func OverpaymentRefundKey(dealID, txHash string) string {
	return "overpayment-refund:" + dealID + ":" + txHash
}

func SweepKey(date time.Time, account AccountID) string {
	return "sweep:" + date.UTC().Format(time.DateOnly) + ":" + string(account)
}

func WithdrawalKey(userID string, at time.Time) string {
	return "withdrawal:" + userID + ":" + strconv.FormatInt(at.Unix(), 10)
}

func FeeKey(txHash string) string {
	return "fee:" + txHash
}

func ReversalKey(originalTxRef string) string {
	return "reversal:" + originalTxRef
}
