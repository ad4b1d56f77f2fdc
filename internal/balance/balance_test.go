package balance

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/hypergrid-bot/hypergrid/pkg/contractclient"
	"github.com/hypergrid-bot/hypergrid/pkg/types"
)

type fakeERC20 struct {
	balance *big.Int
	err     error
}

func (f *fakeERC20) Call(caller *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []interface{}{f.balance}, nil
}
func (f *fakeERC20) Send(types.TransactionType, *uint64, *common.Address, *ecdsa.PrivateKey, string, ...interface{}) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *fakeERC20) SendWithValue(types.TransactionType, *big.Int, *uint64, *common.Address, *ecdsa.PrivateKey, string, ...interface{}) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *fakeERC20) Abi() abi.ABI                    { return abi.ABI{} }
func (f *fakeERC20) ContractAddress() common.Address { return common.Address{} }
func (f *fakeERC20) ParseReceipt(*types.TxReceipt) (string, error) {
	return "", nil
}
func (f *fakeERC20) TransactionData(common.Hash) ([]byte, error) { return nil, nil }
func (f *fakeERC20) DecodeTransaction([]byte) (*contractclient.DecodedTransaction, error) {
	return nil, nil
}

var _ contractclient.ContractClient = (*fakeERC20)(nil)

func TestAvailableBalanceReturnsBalanceOf(t *testing.T) {
	checker := NewChecker(common.HexToAddress("0xme"), map[string]contractclient.ContractClient{
		"USDC": &fakeERC20{balance: big.NewInt(1_000_000)},
	})

	got, err := checker.AvailableBalance("usdc")
	if err != nil {
		t.Fatalf("AvailableBalance failed: %v", err)
	}
	if got.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Errorf("AvailableBalance() = %v, want 1000000", got)
	}
}

func TestAvailableBalanceUnknownToken(t *testing.T) {
	checker := NewChecker(common.HexToAddress("0xme"), map[string]contractclient.ContractClient{})
	if _, err := checker.AvailableBalance("WETH"); err == nil {
		t.Error("expected error for unknown token")
	}
}

func TestERC20ABIParses(t *testing.T) {
	if _, err := ERC20ABI(); err != nil {
		t.Errorf("ERC20ABI() failed: %v", err)
	}
}
