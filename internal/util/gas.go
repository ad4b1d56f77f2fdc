package util

import (
	"errors"
	"math/big"

	"github.com/hypergrid-bot/hypergrid/pkg/types"
)

// ExtractGasCost returns the wei cost a receipt incurred: gasUsed
// times the transaction's effective gas price.
func ExtractGasCost(receipt *types.TxReceipt) (*big.Int, error) {
	if receipt == nil {
		return nil, errors.New("extract gas cost: nil receipt")
	}
	if receipt.EffectiveGasPrice == nil {
		return nil, errors.New("extract gas cost: receipt missing effective gas price")
	}
	cost := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), receipt.EffectiveGasPrice)
	return cost, nil
}
