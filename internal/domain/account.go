package domain

import (
	"fmt"
	"strings"
)

// AccountID identifies a ledger account. Values are built only through the
// constructors below so the namespace stays closed.
type AccountID string

const (
	AccountExternalTON      AccountID = "EXTERNAL_TON"
	AccountPlatformTreasury AccountID = "PLATFORM_TREASURY"

	EscrowPrefix       = "ESCROW:"
	CommissionPrefix   = "COMMISSION:"
	OwnerPendingPrefix = "OWNER_PENDING:"
)

func EscrowAccount(dealID string) AccountID {
	return AccountID(EscrowPrefix + dealID)
}

func CommissionAccount(dealID string) AccountID {
	return AccountID(CommissionPrefix + dealID)
}

func OwnerPendingAccount(userID string) AccountID {
	return AccountID(OwnerPendingPrefix + userID)
}

// ParseAccountID validates a raw account id read from storage or a request.
func ParseAccountID(raw string) (AccountID, error) {
	switch AccountID(raw) {
	case AccountExternalTON, AccountPlatformTreasury:
		return AccountID(raw), nil
	}
	for _, prefix := range []string{EscrowPrefix, CommissionPrefix, OwnerPendingPrefix} {
		if strings.HasPrefix(raw, prefix) && len(raw) > len(prefix) {
			return AccountID(raw), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAccountID, raw)
}

// RequiresNonNegative reports whether debits against the account are
// balance-checked. Only user-owned pending payout accounts are; escrow,
// commission, external and treasury accounts may go below zero.
func (a AccountID) RequiresNonNegative() bool {
	return strings.HasPrefix(string(a), OwnerPendingPrefix)
}

// Owner returns the part after the namespace prefix (deal id or user id).
func (a AccountID) Owner() string {
	if i := strings.IndexByte(string(a), ':'); i >= 0 {
		return string(a)[i+1:]
	}
	return ""
}

func (a AccountID) String() string {
	return string(a)
}
