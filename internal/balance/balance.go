// Package balance implements validator.BalanceChecker against the
// on-chain ERC20 balanceOf call, the source of truth the Trade
// Validator's balance_sufficiency guard checks before a candidate is
// allowed to spend (spec §4.5).
package balance

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/hypergrid-bot/hypergrid/pkg/contractclient"
)

// erc20ABI is the minimal read surface hypergrid needs from any ERC20
// token contract; the full token ABI is never required.
const erc20ABI = `[{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

// ERC20ABI returns the parsed minimal balanceOf ABI, for callers
// constructing a contractclient.ContractClient per token.
func ERC20ABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("balance: parse erc20 abi: %w", err)
	}
	return parsed, nil
}

// Checker reports a signer's available balance of any configured
// token by symbol, reading through a contractclient.ContractClient
// bound to that token's address.
type Checker struct {
	myAddress common.Address
	tokens    map[string]contractclient.ContractClient
}

// NewChecker builds a Checker. tokens maps an uppercased token symbol
// to a ContractClient bound to that token's ERC20 contract.
func NewChecker(myAddress common.Address, tokens map[string]contractclient.ContractClient) *Checker {
	return &Checker{myAddress: myAddress, tokens: tokens}
}

// AvailableBalance reads balanceOf(myAddress) for the named token, in
// its native integer units.
func (c *Checker) AvailableBalance(tokenSymbol string) (*big.Int, error) {
	cc, ok := c.tokens[strings.ToUpper(tokenSymbol)]
	if !ok {
		return nil, fmt.Errorf("balance: unknown token %q", tokenSymbol)
	}

	out, err := cc.Call(&c.myAddress, "balanceOf", c.myAddress)
	if err != nil {
		return nil, fmt.Errorf("balance: balanceOf(%s): %w", tokenSymbol, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("balance: balanceOf(%s): unexpected return arity %d", tokenSymbol, len(out))
	}
	amount, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balance: balanceOf(%s): unexpected return type %T", tokenSymbol, out[0])
	}
	return amount, nil
}
