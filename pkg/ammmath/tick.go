// Package ammmath implements the tick/sqrt-price conversions a
// Uniswap-V3-style concentrated-liquidity pool exposes, computed with
// float64 and big.Float rather than the contract's own integer
// arithmetic, so results can differ from on-chain values in low bits.
package ammmath

import (
	"math"
	"math/big"
)

// q96 is 2^96, the fixed-point base sqrtPriceX96 is expressed in.
var q96 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))

// precision is the big.Float mantissa precision used throughout this
// package; 256 bits holds a 160-bit sqrtPriceX96 exactly, while its
// square (up to 320 bits) is rounded to 256.
const precision = 256

// TickToSqrtPriceX96 converts a tick index into the pool's
// fixed-point sqrtPriceX96 representation: floor(1.0001^(tick/2) * 2^96),
// with 1.0001^(tick/2) evaluated in float64 precision.
func TickToSqrtPriceX96(tick int) *big.Int {
	ratio := new(big.Float).SetPrec(precision).SetFloat64(math.Pow(1.0001, float64(tick)/2))
	scaled := new(big.Float).SetPrec(precision).Mul(ratio, q96)
	result, _ := scaled.Int(nil)
	return result
}

// SqrtPriceToPrice converts a sqrtPriceX96 value into the pool's spot
// price (token1 per token0, undecimalized): (sqrtPriceX96 / 2^96)^2.
func SqrtPriceToPrice(sqrtPriceX96 *big.Int) *big.Float {
	ratio := new(big.Float).SetPrec(precision).Quo(
		new(big.Float).SetPrec(precision).SetInt(sqrtPriceX96),
		q96,
	)
	return new(big.Float).SetPrec(precision).Mul(ratio, ratio)
}

// PriceToRat converts the big.Float price SqrtPriceToPrice produces
// into an exact big.Rat, the type the rest of hypergrid does money
// math in.
func PriceToRat(price *big.Float) *big.Rat {
	rat := new(big.Rat)
	rat.SetString(price.Text('f', 40))
	return rat
}

// CalculateTickBounds derives a symmetric [lower, upper] tick range
// rangeWidth tick-spacing multiples around currentTick, snapped to the
// pool's tickSpacing grid.
func CalculateTickBounds(currentTick int32, rangeWidth, tickSpacing int) (int32, int32, error) {
	if tickSpacing <= 0 {
		return 0, 0, errTickSpacing
	}
	snapped := int32(tickSpacing) * (currentTick / int32(tickSpacing))
	half := int32(rangeWidth * tickSpacing)
	return snapped - half, snapped + half, nil
}

var errTickSpacing = &tickSpacingError{}

type tickSpacingError struct{}

func (e *tickSpacingError) Error() string { return "tick spacing must be positive" }
