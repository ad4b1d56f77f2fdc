// Package contractclient wraps a single on-chain contract behind a
// small Call/Send surface, generalizing the per-contract client the
// rest of hypergrid (quoter, router, price oracle) builds on.
package contractclient

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"github.com/hypergrid-bot/hypergrid/internal/retry"
	"github.com/hypergrid-bot/hypergrid/pkg/types"
)

// rpcTimeout bounds an entire Call/Send round trip, including whatever
// retries its individual RPC calls run through (spec §4.3).
const rpcTimeout = 30 * time.Second

// retrySchedule is the linear backoff every underlying RPC call in
// this client runs through: the first attempt plus up to three
// retries, 250ms/500ms/1s apart (spec §4.3's transport retry policy).
var retrySchedule = retry.Default()

// DecodedTransaction is the human-readable form of a raw transaction
// payload: the matched ABI method plus its decoded arguments.
type DecodedTransaction struct {
	MethodName string                 `json:"MethodName"`
	Parameter  map[string]interface{} `json:"Parameter"`
}

// decodedEvent mirrors DecodedTransaction's field names so ParseReceipt's
// JSON has the same shape as a decoded transaction.
type decodedEvent struct {
	EventName string                 `json:"EventName"`
	Parameter map[string]interface{} `json:"Parameter"`
}

// ContractClient is the narrow surface every AMM-facing component
// (quoter, router, ERC20 balance/allowance checks) calls through.
type ContractClient interface {
	Call(caller *common.Address, method string, args ...interface{}) ([]interface{}, error)
	Send(txType types.TransactionType, gasLimit *uint64, from *common.Address, privateKey *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error)
	SendWithValue(txType types.TransactionType, value *big.Int, gasLimit *uint64, from *common.Address, privateKey *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error)
	Abi() abi.ABI
	ContractAddress() common.Address
	ParseReceipt(receipt *types.TxReceipt) (string, error)
	TransactionData(txHash common.Hash) ([]byte, error)
	DecodeTransaction(data []byte) (*DecodedTransaction, error)
}

// EthContractClient is the go-ethereum backed ContractClient
// implementation, rate-limited so a misbehaving pair engine cannot
// flood the configured RPC endpoint.
type EthContractClient struct {
	client  *ethclient.Client
	address common.Address
	abi     abi.ABI
	limiter *rate.Limiter
}

// NewContractClient builds a client bound to a single contract
// address and ABI, sharing the given rate limiter across every
// EthContractClient so the cap applies per RPC endpoint, not per
// contract.
func NewContractClient(client *ethclient.Client, address common.Address, contractAbi abi.ABI, limiter *rate.Limiter) *EthContractClient {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &EthContractClient{client: client, address: address, abi: contractAbi, limiter: limiter}
}

func (c *EthContractClient) Abi() abi.ABI                    { return c.abi }
func (c *EthContractClient) ContractAddress() common.Address { return c.address }

// Call performs an eth_call against the bound contract and returns the
// unpacked output values in declaration order.
func (c *EthContractClient) Call(caller *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("call %s: rate limiter: %w", method, err)
	}

	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("call %s: pack input: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &c.address, Data: input}
	if caller != nil {
		msg.From = *caller
	}

	raw, err := retry.DoWithResult(ctx, retrySchedule, func() ([]byte, error) {
		return c.client.CallContract(ctx, msg, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	out, err := c.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("call %s: unpack output: %w", method, err)
	}
	return out, nil
}

// Send signs and broadcasts a contract call, blocking only long enough
// to submit it — receipt confirmation is pkg/txlistener's job.
func (c *EthContractClient) Send(
	txType types.TransactionType,
	gasLimit *uint64,
	from *common.Address,
	privateKey *ecdsa.PrivateKey,
	method string,
	args ...interface{},
) (common.Hash, error) {
	return c.SendWithValue(txType, nil, gasLimit, from, privateKey, method, args...)
}

// SendWithValue is Send plus an attached native-asset value, the form
// a WETH9-style deposit() call needs.
func (c *EthContractClient) SendWithValue(
	txType types.TransactionType,
	value *big.Int,
	gasLimit *uint64,
	from *common.Address,
	privateKey *ecdsa.PrivateKey,
	method string,
	args ...interface{},
) (common.Hash, error) {
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()
	if value == nil {
		value = big.NewInt(0)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return common.Hash{}, fmt.Errorf("send %s: rate limiter: %w", method, err)
	}

	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("send %s: pack input: %w", method, err)
	}

	chainID, err := retry.DoWithResult(ctx, retrySchedule, func() (*big.Int, error) {
		return c.client.ChainID(ctx)
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("send %s: chain id: %w", method, err)
	}

	nonce, err := retry.DoWithResult(ctx, retrySchedule, func() (uint64, error) {
		return c.client.PendingNonceAt(ctx, *from)
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("send %s: nonce: %w", method, err)
	}

	tipCap, err := retry.DoWithResult(ctx, retrySchedule, func() (*big.Int, error) {
		return c.client.SuggestGasTipCap(ctx)
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("send %s: gas tip cap: %w", method, err)
	}
	head, err := retry.DoWithResult(ctx, retrySchedule, func() (*gethtypes.Header, error) {
		return c.client.HeaderByNumber(ctx, nil)
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("send %s: head header: %w", method, err)
	}
	feeCap := new(big.Int).Add(tipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	limit := uint64(0)
	if gasLimit != nil {
		limit = *gasLimit
	} else {
		est, err := retry.DoWithResult(ctx, retrySchedule, func() (uint64, error) {
			return c.client.EstimateGas(ctx, ethereum.CallMsg{From: *from, To: &c.address, Value: value, Data: input})
		})
		if err != nil {
			return common.Hash{}, fmt.Errorf("send %s: estimate gas: %w", method, err)
		}
		limit = est + est/5 // 20% headroom
	}

	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       limit,
		To:        &c.address,
		Value:     value,
		Data:      input,
	})

	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(chainID), privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("send %s: sign: %w", method, err)
	}

	if err := retry.Do(ctx, retrySchedule, func() error {
		return c.client.SendTransaction(ctx, signed)
	}); err != nil {
		return common.Hash{}, fmt.Errorf("send %s: broadcast: %w", method, err)
	}

	return signed.Hash(), nil
}

// TransactionData fetches the calldata of a mined or pending
// transaction by hash.
func (c *EthContractClient) TransactionData(txHash common.Hash) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	tx, _, err := c.client.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("transaction data %s: %w", txHash, err)
	}
	return tx.Data(), nil
}

// DecodeTransaction matches raw calldata against the bound ABI and
// returns the method name with its unpacked, named arguments.
func (c *EthContractClient) DecodeTransaction(data []byte) (*DecodedTransaction, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("decode transaction: calldata shorter than a method selector")
	}

	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	params := make(map[string]interface{})
	if err := method.Inputs.UnpackIntoMap(params, data[4:]); err != nil {
		return nil, fmt.Errorf("decode transaction: unpack %s: %w", method.Name, err)
	}

	return &DecodedTransaction{MethodName: method.Name, Parameter: params}, nil
}

// ParseReceipt decodes every log in receipt that matches the bound
// ABI's events into a JSON array of {EventName, Parameter} objects.
// The pair engine does not call it; fills are recorded from the quote.
func (c *EthContractClient) ParseReceipt(receipt *types.TxReceipt) (string, error) {
	if receipt == nil {
		return "", fmt.Errorf("parse receipt: nil receipt")
	}

	events := make([]decodedEvent, 0, len(receipt.Logs))
	for _, l := range receipt.Logs {
		if len(l.Topics) == 0 {
			continue
		}
		ev, err := c.abi.EventByID(l.Topics[0])
		if err != nil {
			continue // log belongs to an event this ABI doesn't declare
		}

		params := make(map[string]interface{})
		if len(l.Data) > 0 {
			if err := ev.Inputs.UnpackIntoMap(params, l.Data); err != nil {
				continue
			}
		}
		for i, input := range indexedInputs(ev.Inputs) {
			if i+1 < len(l.Topics) {
				params[input.Name] = l.Topics[i+1].Hex()
			}
		}

		events = append(events, decodedEvent{EventName: ev.Name, Parameter: params})
	}

	out, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("parse receipt: marshal events: %w", err)
	}
	return string(out), nil
}

func indexedInputs(args abi.Arguments) abi.Arguments {
	var indexed abi.Arguments
	for _, a := range args {
		if a.Indexed {
			indexed = append(indexed, a)
		}
	}
	return indexed
}
