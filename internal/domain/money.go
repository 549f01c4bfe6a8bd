package domain

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/shopspring/decimal"
)

// Nano is the smallest TON unit. 1 TON = 1_000_000_000 nano.
type Nano int64

const (
	NanoPerTON      Nano  = 1_000_000_000
	BasisPointsFull int64 = 10_000
)

func (n Nano) Add(other Nano) (Nano, error) {
	if other > 0 && n > math.MaxInt64-other {
		return 0, fmt.Errorf("%w: %d + %d", ErrAmountOverflow, n, other)
	}
	if other < 0 && n < math.MinInt64-other {
		return 0, fmt.Errorf("%w: %d + %d", ErrAmountOverflow, n, other)
	}
	return n + other, nil
}

func (n Nano) Sub(other Nano) (Nano, error) {
	if other == math.MinInt64 {
		return 0, fmt.Errorf("%w: %d - %d", ErrAmountOverflow, n, other)
	}
	return n.Add(-other)
}

// Decimal returns the amount in TON.
func (n Nano) Decimal() decimal.Decimal {
	return decimal.New(int64(n), -9)
}

// ToTON renders the amount as a decimal TON string, e.g. 1500000000 -> "1.5".
func (n Nano) ToTON() string {
	return n.Decimal().String()
}

// SplitCommission splits amount into (commission, remainder) where
// commission = floor(amount * bp / 10000). The product is computed in
// 128 bits so large amounts never overflow.
func SplitCommission(amount Nano, commissionRateBp int64) (commission Nano, remainder Nano, err error) {
	if amount < 0 {
		return 0, 0, fmt.Errorf("%w: negative amount %d", ErrInvalidAmount, amount)
	}
	if commissionRateBp < 0 || commissionRateBp > BasisPointsFull {
		return 0, 0, fmt.Errorf("%w: commission rate %d bp", ErrInvalidAmount, commissionRateBp)
	}
	hi, lo := bits.Mul64(uint64(amount), uint64(commissionRateBp))
	quo, _ := bits.Div64(hi, lo, uint64(BasisPointsFull))
	commission = Nano(quo)
	return commission, amount - commission, nil
}
