package domain

import (
	"errors"
	"fmt"
)

var (
	ErrLedgerInconsistency    = errors.New("ledger inconsistency")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrVersionConflict        = errors.New("version conflict")
	ErrLockAcquisitionFailed  = errors.New("lock acquisition failed")
	ErrAmountOverflow         = errors.New("amount overflow")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidAccountID       = errors.New("invalid account id")
	ErrDealNotFound           = errors.New("deal not found")
	ErrTransferNotFound       = errors.New("transfer not found")
	ErrDepositNotFound        = errors.New("pending deposit not found")
	ErrNotEnoughConfirmations = errors.New("not enough confirmations")
	ErrInvalidAddress         = errors.New("invalid ton address")
)

// InsufficientBalanceError is returned when a debit would take a
// non-negative account below zero. The transfer is rolled back as a whole.
type InsufficientBalanceError struct {
	Account   AccountID
	Requested Nano
	Available Nano
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on %s: requested %d, available %d, shortfall %d",
		e.Account, e.Requested, e.Available, e.Shortfall())
}

func (e *InsufficientBalanceError) Shortfall() Nano {
	if e.Available >= e.Requested {
		return 0
	}
	return e.Requested - e.Available
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

type InvalidStateTransitionError struct {
	Entity string
	From   DealStatus
	To     DealStatus
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s", e.Entity, e.From, e.To)
}

func (e *InvalidStateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}
