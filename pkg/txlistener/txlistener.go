// Package txlistener polls an RPC endpoint for a submitted
// transaction's receipt, the only confirmation mechanism hypergrid
// relies on (no event subscription, no mempool watching).
package txlistener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/hypergrid-bot/hypergrid/pkg/types"
)

// TxListener waits for a submitted transaction to be mined, returning
// its receipt or a transport error.
type TxListener interface {
	WaitForTransaction(hash common.Hash) (*types.TxReceipt, error)
}

// EthTxListener polls TransactionReceipt at a fixed interval until the
// receipt appears or timeout elapses.
type EthTxListener struct {
	client       *ethclient.Client
	pollInterval time.Duration
	timeout      time.Duration
}

// Option configures an EthTxListener.
type Option func(*EthTxListener)

// WithPollInterval overrides the default 3s receipt-polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(l *EthTxListener) { l.pollInterval = d }
}

// WithTimeout overrides the default 5-minute wait budget.
func WithTimeout(d time.Duration) Option {
	return func(l *EthTxListener) { l.timeout = d }
}

// NewTxListener builds an EthTxListener against client, with sane
// defaults (3s poll, 5m timeout) overridable via Option.
func NewTxListener(client *ethclient.Client, opts ...Option) *EthTxListener {
	l := &EthTxListener{
		client:       client,
		pollInterval: 3 * time.Second,
		timeout:      5 * time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WaitForTransaction blocks until hash is mined, the timeout elapses,
// or the receipt reports a revert — in which case it still returns the
// receipt so the caller can inspect Status itself.
func (l *EthTxListener) WaitForTransaction(hash common.Hash) (*types.TxReceipt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			tx, _, txErr := l.client.TransactionByHash(ctx, hash)
			var effectiveGasPrice = receipt.EffectiveGasPrice
			if effectiveGasPrice == nil && txErr == nil && tx != nil {
				effectiveGasPrice = tx.GasPrice()
			}
			return types.FromGeth(receipt, effectiveGasPrice), nil
		case errors.Is(err, ethereum.NotFound):
			// not yet mined, keep polling
		default:
			return nil, fmt.Errorf("wait for transaction %s: %w", hash, err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for transaction %s: %w", hash, ctx.Err())
		case <-ticker.C:
		}
	}
}
