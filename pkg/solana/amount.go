package solana

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// TokenAmount is a raw token quantity together with the decimals of its mint.
type TokenAmount struct {
	Amount   uint64
	Decimals uint8
}

// Decimal scales the raw amount by the mint decimals.
func (a TokenAmount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(a.Amount), -int32(a.Decimals))
}

// UIString is the scaled amount with exactly Decimals fractional digits.
func (a TokenAmount) UIString() string {
	return a.Decimal().StringFixed(int32(a.Decimals))
}

func (a TokenAmount) String() string {
	return a.UIString()
}
