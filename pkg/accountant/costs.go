package accountant

import "math/big"

// PoolFeeUSD is the AMM pool fee paid on a trade, in USD.
func PoolFeeUSD(usdValue *big.Rat, poolFeeBps uint32) *big.Rat {
	bps := new(big.Rat).SetFrac64(int64(poolFeeBps), 10000)
	return new(big.Rat).Mul(usdValue, bps)
}

// GasUSD converts a trade's gas cost into USD: gas_used (units) ×
// effective_gas_price (wei/unit) gives a wei cost, normalized to the
// native asset's 18 decimals and priced at native_usd.
func GasUSD(gasUsed uint64, effectiveGasPriceWei *big.Int, nativeUSD *big.Rat) *big.Rat {
	weiCost := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), effectiveGasPriceWei)
	ethCost := new(big.Rat).SetFrac(weiCost, pow10(18))
	return new(big.Rat).Mul(ethCost, nativeUSD)
}

// SlippageUSD is the USD value of the gap between the quoted and
// actually-received output amount, normalized by the out-token's
// decimals. Signed: a better-than-quoted fill (actualOut > expectedOut)
// yields a negative value, i.e. a cost reduction from positive
// slippage.
func SlippageUSD(expectedOut, actualOut *big.Int, outTokenDecimals uint8, outTokenUSD *big.Rat) *big.Rat {
	diff := new(big.Int).Sub(expectedOut, actualOut)
	diffUnits := new(big.Rat).SetFrac(diff, pow10(outTokenDecimals))
	return new(big.Rat).Mul(diffUnits, outTokenUSD)
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
