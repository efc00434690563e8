package main

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// formatAmount renders minor units as a UI amount with all decimals shown,
// e.g. 500000001 at 9 decimals is "0.500000001".
func formatAmount(amount uint64, decimals uint8) string {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
	return d.StringFixed(int32(decimals))
}
