// Package router submits exact-input swaps against a Uniswap-V3-style
// SwapRouter, deriving amount_out_minimum from the caller's slippage
// tolerance and handling the native/wrapped boundary explicitly.
package router

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hypergrid-bot/hypergrid/pkg/contractclient"
	"github.com/hypergrid-bot/hypergrid/pkg/types"
)

// ExactInputSingleParams mirrors the on-chain SwapRouter struct for a
// single-hop exact-input swap.
type ExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	FeeBps            uint32
	Recipient         common.Address
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// Client submits swaps and wrap/unwrap calls through a bound
// ContractClient.
type Client struct {
	router     contractclient.ContractClient
	wrapped    contractclient.ContractClient // WETH9-style wrap/unwrap target
	myAddr     common.Address
	privateKey *ecdsa.PrivateKey
}

// NewClient builds a router Client. wrapped may be nil if the pair
// never crosses the native/wrapped boundary.
func NewClient(router, wrapped contractclient.ContractClient, myAddr common.Address, privateKey *ecdsa.PrivateKey) *Client {
	return &Client{router: router, wrapped: wrapped, myAddr: myAddr, privateKey: privateKey}
}

// AmountOutMinimum derives the minimum acceptable output from a quoted
// amount and a slippage tolerance expressed as a fraction (0.001 = 10bps).
func AmountOutMinimum(quotedOut *big.Int, slippageTolerance *big.Rat) *big.Int {
	one := big.NewRat(1, 1)
	factor := new(big.Rat).Sub(one, slippageTolerance)
	scaled := new(big.Rat).Mul(new(big.Rat).SetInt(quotedOut), factor)
	result := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	return result
}

// ExactInputSingle submits the swap and returns its transaction hash;
// the caller awaits the receipt via pkg/txlistener.
func (c *Client) ExactInputSingle(params ExactInputSingleParams) (common.Hash, error) {
	return c.router.Send(
		types.Standard,
		nil,
		&c.myAddr,
		c.privateKey,
		"exactInputSingle",
		struct {
			TokenIn           common.Address
			TokenOut          common.Address
			Fee               *big.Int
			Recipient         common.Address
			AmountIn          *big.Int
			AmountOutMinimum  *big.Int
			SqrtPriceLimitX96 *big.Int
		}{
			TokenIn:           params.TokenIn,
			TokenOut:          params.TokenOut,
			Fee:               new(big.Int).SetUint64(uint64(params.FeeBps)),
			Recipient:         params.Recipient,
			AmountIn:          params.AmountIn,
			AmountOutMinimum:  params.AmountOutMinimum,
			SqrtPriceLimitX96: params.SqrtPriceLimitX96,
		},
	)
}

// WrapNative deposits amount of the native asset into its wrapped
// ERC20 counterpart. It is a standalone call: ExactInputSingle never
// wraps or unwraps, and the Pair Engine does not call WrapNative or
// UnwrapNative. The router owns no balance-funding policy beyond them.
func (c *Client) WrapNative(amount *big.Int) (common.Hash, error) {
	gasLimit := uint64(60000)
	return c.wrapped.SendWithValue(types.Standard, amount, &gasLimit, &c.myAddr, c.privateKey, "deposit")
}

// UnwrapNative withdraws amount from the wrapped ERC20 back to the
// native asset.
func (c *Client) UnwrapNative(amount *big.Int) (common.Hash, error) {
	return c.wrapped.Send(types.Standard, nil, &c.myAddr, c.privateKey, "withdraw", amount)
}
