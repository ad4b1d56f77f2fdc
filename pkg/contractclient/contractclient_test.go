package contractclient

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypergrid-bot/hypergrid/pkg/types"
)

const erc20ABI = `[
	{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
]`

func mustParseABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	require.NoError(t, err)
	return parsed
}

func TestDecodeTransaction(t *testing.T) {
	parsed := mustParseABI(t)
	cc := NewContractClient(nil, common.HexToAddress("0x1"), parsed, nil)

	to := common.HexToAddress("0x2")
	amount := big.NewInt(42)
	data, err := parsed.Pack("transfer", to, amount)
	require.NoError(t, err)

	decoded, err := cc.DecodeTransaction(data)
	require.NoError(t, err)
	assert.Equal(t, "transfer", decoded.MethodName)
	assert.Equal(t, to, decoded.Parameter["to"])
	assert.Equal(t, amount, decoded.Parameter["amount"])
}

func TestDecodeTransactionRejectsShortCalldata(t *testing.T) {
	parsed := mustParseABI(t)
	cc := NewContractClient(nil, common.HexToAddress("0x1"), parsed, nil)

	_, err := cc.DecodeTransaction([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestParseReceiptExtractsTransferEvent(t *testing.T) {
	parsed := mustParseABI(t)
	cc := NewContractClient(nil, common.HexToAddress("0x1"), parsed, nil)

	from := common.HexToAddress("0x0")
	to := common.HexToAddress("0xabc")
	value := big.NewInt(100)

	packedValue, err := parsed.Events["Transfer"].Inputs.NonIndexed().Pack(value)
	require.NoError(t, err)

	log := &gethtypes.Log{
		Topics: []common.Hash{
			parsed.Events["Transfer"].ID,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: packedValue,
	}

	receipt := &types.TxReceipt{Logs: []*gethtypes.Log{log}}
	jsonStr, err := cc.ParseReceipt(receipt)
	require.NoError(t, err)
	assert.Contains(t, jsonStr, "Transfer")
	assert.Contains(t, jsonStr, "EventName")
}

func TestParseReceiptNilReceipt(t *testing.T) {
	parsed := mustParseABI(t)
	cc := NewContractClient(nil, common.HexToAddress("0x1"), parsed, nil)

	_, err := cc.ParseReceipt(nil)
	assert.Error(t, err)
}
