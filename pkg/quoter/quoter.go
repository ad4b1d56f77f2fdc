// Package quoter wraps a Uniswap-V3-style QuoterV2 contract with the
// fee-tier fallback behavior the grid engine's pricing and pre-trade
// sizing depend on.
package quoter

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hypergrid-bot/hypergrid/pkg/contractclient"
)

// feeTiers is the ordered fallback set of pool fee tiers, in basis
// points, the quoter tries when the configured tier has no liquidity.
var feeTiers = []uint32{100, 500, 3000, 10000}

// Quote is the result of a successful exact-input quote.
type Quote struct {
	AmountOut   *big.Int
	GasEstimate uint64
	FeeBps      uint32
}

// Client quotes exact-input swaps through a bound QuoterV2 contract.
type Client struct {
	cc contractclient.ContractClient
}

// NewClient builds a quoter Client bound to a QuoterV2 ContractClient.
func NewClient(cc contractclient.ContractClient) *Client {
	return &Client{cc: cc}
}

// QuoteExactInput tries preferredFeeBps first, then falls back across
// the full fee-tier set in ascending order (skipping a tier already
// tried), returning the first successful quote. It fails with a
// *hypergrid.QuoteFailedError{Reason: NoLiquidity} only once every tier
// has been exhausted.
func (c *Client) QuoteExactInput(tokenIn, tokenOut common.Address, amountIn *big.Int, preferredFeeBps uint32) (*Quote, error) {
	ordered := orderedTiers(preferredFeeBps)

	var lastErr error
	for _, fee := range ordered {
		out, gasEstimate, err := c.quoteSingle(tokenIn, tokenOut, amountIn, fee)
		if err != nil {
			lastErr = err
			continue
		}
		if out == nil || out.Sign() <= 0 {
			continue
		}
		return &Quote{AmountOut: out, GasEstimate: gasEstimate, FeeBps: fee}, nil
	}

	return nil, newNoLiquidityError(lastErr)
}

func (c *Client) quoteSingle(tokenIn, tokenOut common.Address, amountIn *big.Int, feeBps uint32) (*big.Int, uint64, error) {
	outputs, err := c.cc.Call(nil, "quoteExactInputSingle", struct {
		TokenIn           common.Address
		TokenOut          common.Address
		AmountIn          *big.Int
		Fee               *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               new(big.Int).SetUint64(uint64(feeBps)),
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, 0, err
	}
	if len(outputs) == 0 {
		return nil, 0, newRPCError(nil)
	}

	amountOut, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, 0, newRPCError(nil)
	}

	var gasEstimate uint64
	if len(outputs) > 3 {
		if g, ok := outputs[3].(*big.Int); ok {
			gasEstimate = g.Uint64()
		}
	}
	return amountOut, gasEstimate, nil
}

// orderedTiers puts preferred first, then the remaining tiers from
// feeTiers in ascending order.
func orderedTiers(preferred uint32) []uint32 {
	ordered := make([]uint32, 0, len(feeTiers))
	ordered = append(ordered, preferred)
	for _, t := range feeTiers {
		if t != preferred {
			ordered = append(ordered, t)
		}
	}
	return ordered
}
