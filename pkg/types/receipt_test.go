package types

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

func TestTransactionTypeString(t *testing.T) {
	if got := Standard.String(); got != "Standard" {
		t.Errorf("Standard.String() = %q, want Standard", got)
	}
	if got := TransactionType(99).String(); got != "Unknown" {
		t.Errorf("TransactionType(99).String() = %q, want Unknown", got)
	}
}

func TestFromGeth(t *testing.T) {
	raw := &gethtypes.Receipt{
		TxHash:          common.HexToHash("0xabc"),
		BlockNumber:     big.NewInt(100),
		Status:          1,
		GasUsed:         21000,
		ContractAddress: common.HexToAddress("0xdef"),
	}
	effectiveGasPrice := big.NewInt(50_000_000_000)

	got := FromGeth(raw, effectiveGasPrice)

	if got.TxHash != raw.TxHash {
		t.Errorf("TxHash = %v, want %v", got.TxHash, raw.TxHash)
	}
	if got.BlockNumber != 100 {
		t.Errorf("BlockNumber = %d, want 100", got.BlockNumber)
	}
	if got.Status != 1 {
		t.Errorf("Status = %d, want 1", got.Status)
	}
	if got.GasUsed != 21000 {
		t.Errorf("GasUsed = %d, want 21000", got.GasUsed)
	}
	if got.EffectiveGasPrice.Cmp(effectiveGasPrice) != 0 {
		t.Errorf("EffectiveGasPrice = %v, want %v", got.EffectiveGasPrice, effectiveGasPrice)
	}
	if got.ContractAddress != raw.ContractAddress {
		t.Errorf("ContractAddress = %v, want %v", got.ContractAddress, raw.ContractAddress)
	}
}
