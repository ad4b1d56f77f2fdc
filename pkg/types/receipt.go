// Package types holds small transport-level types shared between
// pkg/contractclient and pkg/txlistener, independent of the domain
// model in the module root.
package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// TransactionType selects how a Send call should be gas-priced.
// Standard is the only mode hypergrid has: Send always builds an
// EIP-1559 dynamic-fee transaction; there is no legacy-gas fallback.
type TransactionType int

const (
	Standard TransactionType = iota
)

func (t TransactionType) String() string {
	if t == Standard {
		return "Standard"
	}
	return "Unknown"
}

// TxReceipt is the subset of a go-ethereum receipt the rest of the
// module needs, decoupled so callers never import core/types directly.
type TxReceipt struct {
	TxHash            common.Hash
	BlockNumber       uint64
	Status            uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	Logs              []*gethtypes.Log
	ContractAddress   common.Address
}

// FromGeth converts a raw go-ethereum receipt, carrying the
// transaction's effective gas price along since the receipt itself
// does not record it pre-London.
func FromGeth(r *gethtypes.Receipt, effectiveGasPrice *big.Int) *TxReceipt {
	return &TxReceipt{
		TxHash:            r.TxHash,
		BlockNumber:       r.BlockNumber.Uint64(),
		Status:            r.Status,
		GasUsed:           r.GasUsed,
		EffectiveGasPrice: effectiveGasPrice,
		Logs:              r.Logs,
		ContractAddress:   r.ContractAddress,
	}
}
