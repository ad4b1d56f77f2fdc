package oracle

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypergrid-bot/hypergrid"
	"github.com/hypergrid-bot/hypergrid/pkg/contractclient"
	"github.com/hypergrid-bot/hypergrid/pkg/quoter"
	hgtypes "github.com/hypergrid-bot/hypergrid/pkg/types"
)

type fakeQuoterClient struct {
	amountOut *big.Int
}

func (f *fakeQuoterClient) Call(caller *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	return []interface{}{f.amountOut, big.NewInt(0), big.NewInt(0), big.NewInt(50000)}, nil
}
func (f *fakeQuoterClient) Send(hgtypes.TransactionType, *uint64, *common.Address, *ecdsa.PrivateKey, string, ...interface{}) (common.Hash, error) {
	panic("not used")
}
func (f *fakeQuoterClient) SendWithValue(hgtypes.TransactionType, *big.Int, *uint64, *common.Address, *ecdsa.PrivateKey, string, ...interface{}) (common.Hash, error) {
	panic("not used")
}
func (f *fakeQuoterClient) Abi() abi.ABI                                    { return abi.ABI{} }
func (f *fakeQuoterClient) ContractAddress() common.Address                 { return common.Address{} }
func (f *fakeQuoterClient) ParseReceipt(*hgtypes.TxReceipt) (string, error) { return "", nil }
func (f *fakeQuoterClient) TransactionData(common.Hash) ([]byte, error)     { return nil, nil }
func (f *fakeQuoterClient) DecodeTransaction([]byte) (*contractclient.DecodedTransaction, error) {
	return nil, nil
}

var _ contractclient.ContractClient = (*fakeQuoterClient)(nil)

func weth() hypergrid.Token {
	return hypergrid.Token{Symbol: "WETH", Address: common.HexToAddress("0x1"), Decimals: 18}
}

func usdc() hypergrid.Token {
	return hypergrid.Token{Symbol: "USDC", Address: common.HexToAddress("0x2"), Decimals: 6}
}

func TestQuoterSourcePairPrice(t *testing.T) {
	// 1 WETH (1e18 wei) in -> 1500 USDC (1500e6 units) out => price 1500 USDC per WETH.
	amountIn := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	amountOut := new(big.Int).Mul(big.NewInt(1500), new(big.Int).Exp(big.NewInt(10), big.NewInt(6), nil))

	fc := &fakeQuoterClient{amountOut: amountOut}
	client := quoter.NewClient(fc)

	probes := map[string]PairProbe{
		"WETH-USDC": {Pair: hypergrid.Pair{Base: weth(), Quote: usdc(), PoolFeeBps: 500}, ProbeAmountIn: amountIn},
	}
	qs := NewQuoterSource(client, probes, nil)

	sample, err := qs.PairPrice(weth(), usdc())
	require.NoError(t, err)
	assert.Equal(t, hypergrid.SourceQuoterV2, sample.Source)
	assert.Equal(t, 0, sample.Price.Cmp(big.NewRat(1500, 1)))
}

func TestQuoterSourceUnknownPairIsUnavailable(t *testing.T) {
	qs := NewQuoterSource(quoter.NewClient(&fakeQuoterClient{}), map[string]PairProbe{}, nil)

	_, err := qs.PairPrice(weth(), usdc())
	require.Error(t, err)
	var perr *hypergrid.PriceUnavailableError
	require.ErrorAs(t, err, &perr)
}

func TestQuoterSourceUSDOnlySupportsBTC(t *testing.T) {
	qs := NewQuoterSource(quoter.NewClient(&fakeQuoterClient{}), map[string]PairProbe{}, nil)

	_, err := qs.USD("ETH")
	require.Error(t, err)
}
