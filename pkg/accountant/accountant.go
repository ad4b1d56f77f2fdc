// Package accountant implements the Profit Accountant: a per-pair FIFO
// lot ledger that turns executed fills into realized P&L net of pool
// fee, gas, and slippage costs (spec §4.6).
package accountant

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hypergrid-bot/hypergrid"
)

// lot is a single open position opened by a Buy fill, consumed FIFO by
// subsequent Sell fills.
type lot struct {
	quantity     *big.Rat
	entryPrice   *big.Rat
	entryUSDCost *big.Rat
}

// Fill is everything the Accountant needs to turn one executed swap
// into a TradeRecord.
type Fill struct {
	PairID               string
	GridID               string
	Side                 hypergrid.Side
	InToken, OutToken    string
	AmountIn, AmountOut  *big.Int
	ExpectedAmountOut    *big.Int
	OutTokenDecimals     uint8
	Quantity             *big.Rat // base-token units moved by this fill
	ExecutionPrice       *big.Rat // quote-per-base
	USDValue             *big.Rat
	PoolFeeBps           uint32
	GasUsed              uint64
	EffectiveGasPriceWei *big.Int
	NativeUSD            *big.Rat
	OutTokenUSD          *big.Rat
	MinProfitUSD         *big.Rat
	TxHash               common.Hash
	BlockNumber          uint64
	Status               hypergrid.TradeStatus
}

// Ledger is the FIFO lot tracker for a single pair.
type Ledger struct {
	mu     sync.Mutex
	pairID string
	lots   []lot
}

// NewLedger builds an empty Ledger for pairID.
func NewLedger(pairID string) *Ledger {
	return &Ledger{pairID: pairID}
}

// Record applies a fill to the ledger: a Buy pushes a new lot; a Sell
// consumes lots FIFO and realizes P&L on the consumed quantity. It
// returns the resulting TradeRecord and whether the grid's arm spacing
// must widen for the next cycle (net_profit_usd < min_profit_usd).
func (l *Ledger) Record(f Fill, timestamp time.Time, id int64) (*hypergrid.TradeRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	poolFeeUSD := PoolFeeUSD(f.USDValue, f.PoolFeeBps)
	gasUSD := GasUSD(f.GasUsed, f.EffectiveGasPriceWei, f.NativeUSD)
	var slippageUSD *big.Rat
	if f.ExpectedAmountOut != nil && f.AmountOut != nil {
		slippageUSD = SlippageUSD(f.ExpectedAmountOut, f.AmountOut, f.OutTokenDecimals, f.OutTokenUSD)
	} else {
		slippageUSD = big.NewRat(0, 1)
	}
	totalCost := new(big.Rat).Add(poolFeeUSD, gasUSD)
	totalCost.Add(totalCost, slippageUSD)

	var grossUSD *big.Rat
	switch f.Side {
	case hypergrid.Buy:
		l.lots = append(l.lots, lot{
			quantity:     new(big.Rat).Set(f.Quantity),
			entryPrice:   new(big.Rat).Set(f.ExecutionPrice),
			entryUSDCost: new(big.Rat).Set(f.USDValue),
		})
		grossUSD = big.NewRat(0, 1)
	case hypergrid.Sell:
		grossUSD = l.consume(f.Quantity, f.ExecutionPrice)
	}

	netProfitUSD := new(big.Rat).Sub(grossUSD, totalCost)

	record := &hypergrid.TradeRecord{
		ID:             id,
		PairID:         f.PairID,
		GridID:         f.GridID,
		Side:           f.Side,
		InToken:        f.InToken,
		OutToken:       f.OutToken,
		AmountIn:       f.AmountIn,
		AmountOut:      f.AmountOut,
		ExecutionPrice: f.ExecutionPrice,
		USDValue:       f.USDValue,
		PoolFeeUSD:     poolFeeUSD,
		GasUSD:         gasUSD,
		SlippageUSD:    slippageUSD,
		TotalCostUSD:   totalCost,
		NetProfitUSD:   netProfitUSD,
		TxHash:         f.TxHash,
		BlockNumber:    f.BlockNumber,
		Status:         f.Status,
		Timestamp:      timestamp,
	}

	widenSpacing := f.MinProfitUSD != nil && netProfitUSD.Cmp(f.MinProfitUSD) < 0
	return record, widenSpacing
}

// consume pops quantity from the oldest lots in FIFO order, realizing
// q × (exitPrice − lot.entryPrice) per consumed slice. A sell that
// exceeds all open lots realizes the excess against a zero-cost basis
// (there is no open inventory left to net it against).
func (l *Ledger) consume(quantity, exitPrice *big.Rat) *big.Rat {
	remaining := new(big.Rat).Set(quantity)
	realized := big.NewRat(0, 1)

	for remaining.Sign() > 0 && len(l.lots) > 0 {
		front := &l.lots[0]
		take := new(big.Rat).Set(front.quantity)
		if take.Cmp(remaining) > 0 {
			take.Set(remaining)
		}

		delta := new(big.Rat).Sub(exitPrice, front.entryPrice)
		realized.Add(realized, new(big.Rat).Mul(take, delta))

		front.quantity.Sub(front.quantity, take)
		remaining.Sub(remaining, take)
		if front.quantity.Sign() <= 0 {
			l.lots = l.lots[1:]
		}
	}

	if remaining.Sign() > 0 {
		realized.Add(realized, new(big.Rat).Mul(remaining, exitPrice))
	}
	return realized
}

// OpenLots reports the current FIFO inventory, oldest first. The
// returned slice is a defensive copy.
func (l *Ledger) OpenLots() []hypergrid.GridLevel {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]hypergrid.GridLevel, 0, len(l.lots))
	for i, lt := range l.lots {
		out = append(out, hypergrid.GridLevel{
			PairID:     l.pairID,
			LevelIndex: i,
			Price:      new(big.Rat).Set(lt.entryPrice),
			Quantity:   new(big.Rat).Set(lt.quantity),
			Side:       hypergrid.Buy,
		})
	}
	return out
}
