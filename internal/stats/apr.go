package stats

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// SecondsPerYear is the 365-day year the APR is annualised over.
	SecondsPerYear = 31_536_000

	// RewardFlowRate is the per-second reward stream of every staking pool,
	// in whole tokens.
	RewardFlowRate = 634.1958449

	// TokenDecimals is the fixed-point precision of every Streme token.
	TokenDecimals = 18
)

// TotalSupplyWhole is the fixed supply of every token in whole tokens.
var TotalSupplyWhole = decimal.NewFromInt(100_000_000_000)

// APR annualises a per-second flow rate over units as a percentage.
// It returns 0 when units is zero or not finite.
func APR(flowRate, units float64) float64 {
	if units == 0 || math.IsNaN(units) || math.IsInf(units, 0) {
		return 0
	}
	return flowRate * SecondsPerYear / units * 100
}

// FromWei converts an 18-decimal fixed-point value to whole tokens. A nil
// value is zero.
func FromWei(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -TokenDecimals)
}
