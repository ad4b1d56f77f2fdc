// Package hypergrid implements a grid-trading engine over a
// Uniswap-V3-style concentrated-liquidity AMM.
package hypergrid

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Token describes an ERC20 (or native) asset traded by the engine.
type Token struct {
	Symbol   string         `json:"symbol" yaml:"symbol"`
	Address  common.Address `json:"address" yaml:"address"`
	Decimals uint8          `json:"decimals" yaml:"decimals"`
	IsNative bool           `json:"is_native" yaml:"is_native"`
}

// Side identifies which side of the ladder a GridLevel sits on.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "Buy"
	}
	return "Sell"
}

// LevelState is the lifecycle state of a single GridLevel.
type LevelState int

const (
	Armed LevelState = iota
	Executing
	Filled
	Disabled
)

func (s LevelState) String() string {
	switch s {
	case Armed:
		return "Armed"
	case Executing:
		return "Executing"
	case Filled:
		return "Filled"
	case Disabled:
		return "Disabled"
	default:
		return "Unknown"
	}
}

// Pair is a tradable (base, quote) market against a single AMM pool.
type Pair struct {
	ID         string
	Base       Token
	Quote      Token
	PoolAddr   common.Address
	PoolFeeBps uint32
	Enabled    bool
}

// validFeeTiers enumerates the pool fee tiers the spec recognizes (§3).
var validFeeTiers = map[uint32]bool{100: true, 500: true, 3000: true, 10000: true}

// Validate enforces the Pair invariants from spec §3.
func (p Pair) Validate() error {
	if p.Base.Address == p.Quote.Address {
		return &ConfigInvalidError{Reason: "pair " + p.ID + ": base and quote token must differ"}
	}
	if !validFeeTiers[p.PoolFeeBps] {
		return &ConfigInvalidError{Reason: "pair " + p.ID + ": pool_fee_bps must be one of 100/500/3000/10000"}
	}
	return nil
}

// GridLevel is a single armed price/side/quantity triple in a ladder.
type GridLevel struct {
	ID           string
	PairID       string
	LevelIndex   int
	Price        *big.Rat // quote-per-base, exact rational
	Quantity     *big.Rat // base units (Sell) or quote units (Buy)
	Side         Side
	State        LevelState
	FailureCount uint8
	CreatedAt    time.Time
	UpdatedAt    time.Time
	FilledTxHash *common.Hash
}

// LadderMode selects the spacing function used by the Grid Planner.
type LadderMode int

const (
	Geometric LadderMode = iota
	Arithmetic
)

func (m LadderMode) String() string {
	if m == Geometric {
		return "Geometric"
	}
	return "Arithmetic"
}

// LadderState is the per-pair ordered set of grid levels.
type LadderState struct {
	PairID       string
	MinPrice     *big.Rat
	MaxPrice     *big.Rat
	Mode         LadderMode
	Count        int
	MidReference *big.Rat
	Levels       []*GridLevel
	GeneratedAt  time.Time
}

// PriceSourceKind identifies where a PriceSample originated.
type PriceSourceKind int

const (
	SourceWebSocket PriceSourceKind = iota
	SourceQuoterV2
	SourceCached
)

func (k PriceSourceKind) String() string {
	switch k {
	case SourceWebSocket:
		return "WebSocket"
	case SourceQuoterV2:
		return "QuoterV2"
	case SourceCached:
		return "Cached"
	default:
		return "Unknown"
	}
}

// Confidence grades the trustworthiness of a PriceSample.
type Confidence int

const (
	High Confidence = iota
	Medium
	Low
)

func (c Confidence) String() string {
	switch c {
	case High:
		return "High"
	case Medium:
		return "Medium"
	case Low:
		return "Low"
	default:
		return "Unknown"
	}
}

// PriceSample is a single observation of a symbol's price.
type PriceSample struct {
	Symbol     string
	Price      *big.Rat
	Source     PriceSourceKind
	Confidence Confidence
	ObservedAt time.Time
}

// Usable reports whether the sample is fresh enough and within the
// configured sanity range to be relied on (spec §3).
func (s PriceSample) Usable(now time.Time, ttl time.Duration, sane func(*big.Rat) bool) bool {
	if s.Price == nil {
		return false
	}
	if now.Sub(s.ObservedAt) > ttl {
		return false
	}
	if sane != nil && !sane(s.Price) {
		return false
	}
	return true
}

// TradeStatus is the on-chain outcome of a submitted swap.
type TradeStatus int

const (
	Success TradeStatus = iota
	Reverted
)

func (s TradeStatus) String() string {
	if s == Success {
		return "Success"
	}
	return "Reverted"
}

// TradeRecord is the durable record of one executed (or reverted) swap.
type TradeRecord struct {
	ID             int64       `json:"id"`
	PairID         string      `json:"pair_id"`
	GridID         string      `json:"grid_id"`
	Side           Side        `json:"side"`
	InToken        string      `json:"in_token"`
	OutToken       string      `json:"out_token"`
	AmountIn       *big.Int    `json:"amount_in"`
	AmountOut      *big.Int    `json:"amount_out"`
	ExecutionPrice *big.Rat    `json:"execution_price"`
	USDValue       *big.Rat    `json:"usd_value"`
	PoolFeeUSD     *big.Rat    `json:"pool_fee_usd"`
	GasUSD         *big.Rat    `json:"gas_usd"`
	SlippageUSD    *big.Rat    `json:"slippage_usd"`
	TotalCostUSD   *big.Rat    `json:"total_cost_usd"`
	NetProfitUSD   *big.Rat    `json:"net_profit_usd"`
	TxHash         common.Hash `json:"tx_hash"`
	BlockNumber    uint64      `json:"block_number"`
	Status         TradeStatus `json:"status"`
	Timestamp      time.Time   `json:"timestamp"`
}

// PairBudget tracks USD exposure for a single pair's ladder.
type PairBudget struct {
	PairID       string
	AllocatedUSD *big.Rat
	CommittedUSD *big.Rat
	ReleasedUSD  *big.Rat
	NetExposure  *big.Rat
}

// PairStatus is the per-pair slice of a BotStatus snapshot.
type PairStatus struct {
	PairID       string      `json:"pair_id"`
	Enabled      bool        `json:"enabled"`
	ArmedLevels  int         `json:"armed_levels"`
	FilledLevels int         `json:"filled_levels"`
	FailureCount int         `json:"failure_count"`
	Budget       *PairBudget `json:"budget"`
	// LastAction records what the scheduler did with this pair on its
	// most recent tick, e.g. "ok" or "skipped:price" when the oracle
	// had no fresh quote for the pair.
	LastAction string `json:"last_action"`
}

// BotStatus is the latest operational snapshot written to
// <data_dir>/status.json by the Scheduler (spec §6); no method returns
// it in-process.
type BotStatus struct {
	GeneratedAt       time.Time    `json:"generated_at"`
	Draining          bool         `json:"draining"`
	RealizedDayPnLUSD *big.Rat     `json:"realized_day_pnl_usd"`
	Pairs             []PairStatus `json:"pairs"`
}

// epsilonBudget bounds the allowed over-commitment (spec §3, ε ≤ 0.02).
var epsilonBudget = big.NewRat(2, 100)

// WithinBudget reports whether committing an additional estimatedUSD
// would keep the pair's budget invariant satisfied.
func (b *PairBudget) WithinBudget(estimatedUSD *big.Rat) bool {
	committed := new(big.Rat).Add(b.CommittedUSD, estimatedUSD)
	net := new(big.Rat).Sub(committed, b.ReleasedUSD)
	limit := new(big.Rat).Mul(b.AllocatedUSD, new(big.Rat).Add(big.NewRat(1, 1), epsilonBudget))
	return net.Cmp(limit) <= 0
}
