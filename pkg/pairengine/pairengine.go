// Package pairengine implements the per-pair state machine: on each
// oracle tick it detects crossed grid levels, validates, quotes,
// swaps, waits for the receipt, records the fill, and re-arms the
// opposing side — generalizing the approve -> send -> wait-for-
// receipt -> extract-gas-cost -> record sequence a DEX client runs for
// any on-chain action (spec §4.7).
package pairengine

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hypergrid-bot/hypergrid"
	"github.com/hypergrid-bot/hypergrid/internal/oracle"
	"github.com/hypergrid-bot/hypergrid/internal/retry"
	"github.com/hypergrid-bot/hypergrid/pkg/accountant"
	"github.com/hypergrid-bot/hypergrid/pkg/grid"
	"github.com/hypergrid-bot/hypergrid/pkg/quoter"
	"github.com/hypergrid-bot/hypergrid/pkg/router"
	"github.com/hypergrid-bot/hypergrid/pkg/txlistener"
	"github.com/hypergrid-bot/hypergrid/pkg/types"
	"github.com/hypergrid-bot/hypergrid/pkg/validator"
)

// swapRetry is the submit-and-confirm retry schedule spec §7 calls
// for: a SwapTransportError is retried up to three times before being
// treated as a SwapReverted.
var swapRetry = retry.Default()

// Dependencies bundles the collaborators an Engine drives a fill
// through. All are borrowed references, constructed once at startup.
type Dependencies struct {
	Oracle     oracle.Oracle
	Validator  *validator.Validator
	Quoter     *quoter.Client
	Router     *router.Client
	TxListener txlistener.TxListener
	Ledger     *accountant.Ledger
}

// Config is the static, per-pair tuning the Engine runs under.
type Config struct {
	Pair                hypergrid.Pair
	MyAddress           common.Address
	MaxConcurrentFills  int      // default 1
	ProfitMarginPercent *big.Rat // opposing re-arm step, e.g. 0.005 = 0.5%
	WidenStepPercent    *big.Rat // added to ProfitMarginPercent when a fill undershoots min_profit_usd
	MinProfitUSD        *big.Rat
	SlippageTolerance   *big.Rat
	NativeUSD           func() (*big.Rat, error) // native-asset USD price, for gas costing

	// AdaptiveRange is the ± half-width (grid_range_percent) the ladder
	// is regenerated around current_price with once it drifts more than
	// AdaptiveRange/2 from the band it was last planned around, or once
	// RebalanceInterval has elapsed since the last plan (spec §4.4). Nil
	// disables adaptive regeneration; the ladder then only ever changes
	// through fills.
	AdaptiveRange     *big.Rat
	RebalanceInterval time.Duration // default 1h

	// InitialTradePercent sizes a one-time positioning trade executed
	// right after the first Plan: it moves InitialTradePercent of the
	// pair's allocated USD from quote into base before grid trading
	// begins. Zero means auto = 1/grid_count (spec §6, §9).
	InitialTradePercent *big.Rat
}

// swapOutcome is the result of one submit-and-confirm attempt, kept
// around across retries so a final transport failure can still report
// the last broadcast tx hash (if any) in the resulting SwapReverted.
type swapOutcome struct {
	txHash  common.Hash
	receipt *types.TxReceipt
}

// TickResult reports what happened to one grid level during a Tick.
type TickResult struct {
	Level  *hypergrid.GridLevel
	Record *hypergrid.TradeRecord
	Err    error
}

// Engine owns one pair's LadderState and PairBudget exclusively.
type Engine struct {
	cfg    Config
	deps   Dependencies
	budget *hypergrid.PairBudget

	ladder    *hypergrid.LadderState
	prevPrice *big.Rat
	nextID    int64

	lastPlan  grid.LadderConfig
	plannedAt time.Time
}

// New builds an Engine for a pair, starting Idle (no ladder planned).
func New(cfg Config, deps Dependencies, budget *hypergrid.PairBudget) *Engine {
	if cfg.MaxConcurrentFills <= 0 {
		cfg.MaxConcurrentFills = 1
	}
	if cfg.RebalanceInterval <= 0 {
		cfg.RebalanceInterval = time.Hour
	}
	return &Engine{cfg: cfg, deps: deps, budget: budget}
}

// Plan runs the Grid Planner and arms the resulting ladder. Called on
// first start and whenever the adaptive range is triggered.
func (e *Engine) Plan(ladderCfg grid.LadderConfig) error {
	ladder, err := grid.Plan(ladderCfg)
	if err != nil {
		return err
	}
	e.ladder = ladder
	e.prevPrice = ladderCfg.CurrentPrice
	e.lastPlan = ladderCfg
	e.plannedAt = time.Now().UTC()
	return nil
}

// maybeRegenerate implements the adaptive-range self-loop (spec §4.4,
// §4.7's "regenerate" transition): when AdaptiveRange is configured,
// the ladder is rebuilt around currentPrice — with a fresh
// current×(1±AdaptiveRange) band — once price has drifted more than
// AdaptiveRange/2 from the band's last center, or once
// RebalanceInterval has elapsed since the last plan, whichever comes
// first. A failed regeneration leaves the existing ladder armed.
func (e *Engine) maybeRegenerate(currentPrice *big.Rat) {
	if e.cfg.AdaptiveRange == nil || e.ladder == nil || e.ladder.MidReference == nil {
		return
	}

	halfBand := new(big.Rat).Quo(e.cfg.AdaptiveRange, big.NewRat(2, 1))
	drift := new(big.Rat).Abs(new(big.Rat).Sub(currentPrice, e.ladder.MidReference))
	driftPct := new(big.Rat).Quo(drift, e.ladder.MidReference)

	dueForRebalance := time.Since(e.plannedAt) >= e.cfg.RebalanceInterval
	if driftPct.Cmp(halfBand) <= 0 && !dueForRebalance {
		return
	}

	one := big.NewRat(1, 1)
	next := e.lastPlan
	next.MinPrice = new(big.Rat).Mul(currentPrice, new(big.Rat).Sub(one, e.cfg.AdaptiveRange))
	next.MaxPrice = new(big.Rat).Mul(currentPrice, new(big.Rat).Add(one, e.cfg.AdaptiveRange))
	next.CurrentPrice = currentPrice
	_ = e.Plan(next)
}

// Stop returns the engine to Idle: the ladder is discarded, nothing is
// re-armed until the next Plan.
func (e *Engine) Stop() {
	e.ladder = nil
	e.prevPrice = nil
}

// Ladder returns the engine's current LadderState, or nil if Idle.
func (e *Engine) Ladder() *hypergrid.LadderState { return e.ladder }

// PositionInitialInventory executes the one-time positioning trade
// that moves InitialTradePercent of the pair's allocated USD from
// quote into base before grid trading begins (spec §6, §9). Zero
// resolves to 1/grid_count. Must be called once, after the first
// successful Plan; a nil or zero AllocatedUSD is a no-op.
func (e *Engine) PositionInitialInventory() (*hypergrid.TradeRecord, error) {
	if e.ladder == nil {
		return nil, &hypergrid.ConfigInvalidError{Reason: "position_initial_inventory: called before Plan"}
	}
	if e.budget == nil || e.budget.AllocatedUSD == nil || e.budget.AllocatedUSD.Sign() <= 0 {
		return nil, nil
	}

	percent := e.cfg.InitialTradePercent
	if percent == nil || percent.Sign() == 0 {
		percent = big.NewRat(1, int64(len(e.ladder.Levels)))
	}
	investedUSD := new(big.Rat).Mul(e.budget.AllocatedUSD, percent)
	if investedUSD.Sign() <= 0 {
		return nil, nil
	}

	quoteToken, baseToken := e.cfg.Pair.Quote, e.cfg.Pair.Base
	scaled := new(big.Rat).Mul(investedUSD, new(big.Rat).SetInt(pow10(quoteToken.Decimals)))
	amountIn := new(big.Int).Quo(scaled.Num(), scaled.Denom())

	quote, err := e.deps.Quoter.QuoteExactInput(quoteToken.Address, baseToken.Address, amountIn, e.cfg.Pair.PoolFeeBps)
	if err != nil {
		return nil, err
	}
	amountOutMin := router.AmountOutMinimum(quote.AmountOut, e.cfg.SlippageTolerance)
	params := router.ExactInputSingleParams{
		TokenIn:           quoteToken.Address,
		TokenOut:          baseToken.Address,
		FeeBps:            e.cfg.Pair.PoolFeeBps,
		Recipient:         e.cfg.MyAddress,
		AmountIn:          amountIn,
		AmountOutMinimum:  amountOutMin,
		SqrtPriceLimitX96: big.NewInt(0),
	}

	outcome, err := retry.DoWithResult(context.Background(), swapRetry, func() (swapOutcome, error) {
		txHash, err := e.deps.Router.ExactInputSingle(params)
		if err != nil {
			return swapOutcome{}, err
		}
		receipt, err := e.deps.TxListener.WaitForTransaction(txHash)
		if err != nil {
			return swapOutcome{txHash: txHash}, err
		}
		return swapOutcome{txHash: txHash, receipt: receipt}, nil
	})
	if err != nil {
		return nil, &hypergrid.SwapRevertedError{TxHash: outcome.txHash.Hex()}
	}
	if outcome.receipt.Status == 0 {
		return nil, &hypergrid.SwapRevertedError{TxHash: outcome.txHash.Hex()}
	}

	nativeUSD := big.NewRat(0, 1)
	if e.cfg.NativeUSD != nil {
		if v, err := e.cfg.NativeUSD(); err == nil {
			nativeUSD = v
		}
	}

	e.nextID++
	record, _ := e.deps.Ledger.Record(accountant.Fill{
		PairID:               e.cfg.Pair.ID,
		GridID:               "initial-position",
		Side:                 hypergrid.Buy,
		InToken:              quoteToken.Symbol,
		OutToken:             baseToken.Symbol,
		AmountIn:             amountIn,
		AmountOut:            quote.AmountOut,
		ExpectedAmountOut:    quote.AmountOut,
		OutTokenDecimals:     baseToken.Decimals,
		Quantity:             new(big.Rat).SetFrac(quote.AmountOut, pow10(baseToken.Decimals)),
		ExecutionPrice:       e.lastPlan.CurrentPrice,
		USDValue:             investedUSD,
		PoolFeeBps:           quote.FeeBps,
		GasUsed:              outcome.receipt.GasUsed,
		EffectiveGasPriceWei: outcome.receipt.EffectiveGasPrice,
		NativeUSD:            nativeUSD,
		OutTokenUSD:          big.NewRat(1, 1),
		MinProfitUSD:         e.cfg.MinProfitUSD,
		TxHash:               outcome.txHash,
		BlockNumber:          outcome.receipt.BlockNumber,
		Status:               hypergrid.Success,
	}, time.Now().UTC(), e.nextID)

	return record, nil
}

// Tick advances the engine one oracle refresh: it finds armed levels
// crossed between the previous and current price, executes up to
// MaxConcurrentFills of them (nearest to current first), and reports
// the outcome of each.
func (e *Engine) Tick(currentPrice *big.Rat) []TickResult {
	if e.ladder == nil || e.prevPrice == nil {
		e.prevPrice = currentPrice
		return nil
	}

	e.maybeRegenerate(currentPrice)

	hits := e.findHits(currentPrice)
	selected := nearestFirst(hits, currentPrice)
	if len(selected) > e.cfg.MaxConcurrentFills {
		selected = selected[:e.cfg.MaxConcurrentFills]
	}

	results := make([]TickResult, 0, len(selected))
	for _, lvl := range selected {
		results = append(results, e.execute(lvl, currentPrice))
	}

	e.prevPrice = currentPrice
	return results
}

func (e *Engine) findHits(currentPrice *big.Rat) []*hypergrid.GridLevel {
	var hits []*hypergrid.GridLevel
	for _, lvl := range e.ladder.Levels {
		if lvl.State != hypergrid.Armed {
			continue
		}
		crossed := false
		switch lvl.Side {
		case hypergrid.Buy:
			crossed = e.prevPrice.Cmp(lvl.Price) >= 0 && currentPrice.Cmp(lvl.Price) <= 0
		case hypergrid.Sell:
			crossed = e.prevPrice.Cmp(lvl.Price) <= 0 && currentPrice.Cmp(lvl.Price) >= 0
		}
		if crossed {
			hits = append(hits, lvl)
		}
	}
	return hits
}

func nearestFirst(levels []*hypergrid.GridLevel, currentPrice *big.Rat) []*hypergrid.GridLevel {
	sort.Slice(levels, func(i, j int) bool {
		di := new(big.Rat).Abs(new(big.Rat).Sub(levels[i].Price, currentPrice))
		dj := new(big.Rat).Abs(new(big.Rat).Sub(levels[j].Price, currentPrice))
		return di.Cmp(dj) < 0
	})
	return levels
}

func (e *Engine) execute(lvl *hypergrid.GridLevel, currentPrice *big.Rat) TickResult {
	lvl.State = hypergrid.Executing

	inToken, outToken := e.legTokens(lvl)
	amountIn := unitsFor(lvl, e.cfg.Pair)

	estimatedUSD, err := e.estimatedUSD(lvl)
	if err != nil {
		return e.fail(lvl, err)
	}

	mid, midErr := e.deps.Oracle.GetPairPrice(e.cfg.Pair.Base, e.cfg.Pair.Quote)
	candidate := validator.Candidate{
		PairID:        e.cfg.Pair.ID,
		Price:         lvl.Price,
		EstimatedUSD:  estimatedUSD,
		InTokenSymbol: inToken.Symbol,
		AmountIn:      amountIn,
	}
	if midErr == nil {
		candidate.MidPrice = mid.Price
	}

	if err := e.deps.Validator.Validate(candidate, e.budget); err != nil {
		return e.fail(lvl, err)
	}

	quote, err := e.deps.Quoter.QuoteExactInput(inToken.Address, outToken.Address, amountIn, e.cfg.Pair.PoolFeeBps)
	if err != nil {
		return e.fail(lvl, err)
	}

	amountOutMin := router.AmountOutMinimum(quote.AmountOut, e.cfg.SlippageTolerance)
	params := router.ExactInputSingleParams{
		TokenIn:           inToken.Address,
		TokenOut:          outToken.Address,
		FeeBps:            e.cfg.Pair.PoolFeeBps,
		Recipient:         e.cfg.MyAddress,
		AmountIn:          amountIn,
		AmountOutMinimum:  amountOutMin,
		SqrtPriceLimitX96: big.NewInt(0),
	}

	// submit+confirm is retried as one unit (spec §7): a transport
	// failure anywhere in submit-swap or wait-for-receipt is retried up
	// to three times with linear backoff before being reclassified as a
	// SwapReverted below.
	outcome, err := retry.DoWithResult(context.Background(), swapRetry, func() (swapOutcome, error) {
		txHash, err := e.deps.Router.ExactInputSingle(params)
		if err != nil {
			return swapOutcome{}, err
		}
		receipt, err := e.deps.TxListener.WaitForTransaction(txHash)
		if err != nil {
			return swapOutcome{txHash: txHash}, err
		}
		return swapOutcome{txHash: txHash, receipt: receipt}, nil
	})
	if err != nil {
		return e.fail(lvl, &hypergrid.SwapRevertedError{TxHash: outcome.txHash.Hex()})
	}
	txHash, receipt := outcome.txHash, outcome.receipt
	if receipt.Status == 0 {
		return e.fail(lvl, &hypergrid.SwapRevertedError{TxHash: txHash.Hex()})
	}

	nativeUSD := big.NewRat(0, 1)
	if e.cfg.NativeUSD != nil {
		if v, err := e.cfg.NativeUSD(); err == nil {
			nativeUSD = v
		}
	}

	// Fill.Quantity is base-token units; a Buy level's Quantity is USD,
	// so a Buy's fill quantity is the base amount the quote returned.
	fillQuantity := lvl.Quantity
	if lvl.Side == hypergrid.Buy {
		fillQuantity = new(big.Rat).SetFrac(quote.AmountOut, pow10(outToken.Decimals))
	}

	e.nextID++
	// TODO: parse the actual Swap event amount from receipt.Logs via
	// ContractClient.ParseReceipt rather than reusing the quote, so
	// slippage_usd reflects the real fill instead of always reading zero.
	record, widen := e.deps.Ledger.Record(accountant.Fill{
		PairID:               e.cfg.Pair.ID,
		GridID:               lvl.ID,
		Side:                 lvl.Side,
		InToken:              inToken.Symbol,
		OutToken:             outToken.Symbol,
		AmountIn:             amountIn,
		AmountOut:            quote.AmountOut,
		ExpectedAmountOut:    quote.AmountOut,
		OutTokenDecimals:     outToken.Decimals,
		Quantity:             fillQuantity,
		ExecutionPrice:       lvl.Price,
		USDValue:             estimatedUSD,
		PoolFeeBps:           quote.FeeBps,
		GasUsed:              receipt.GasUsed,
		EffectiveGasPriceWei: receipt.EffectiveGasPrice,
		NativeUSD:            nativeUSD,
		OutTokenUSD:          big.NewRat(1, 1),
		MinProfitUSD:         e.cfg.MinProfitUSD,
		TxHash:               txHash,
		BlockNumber:          receipt.BlockNumber,
		Status:               hypergrid.Success,
	}, time.Now().UTC(), e.nextID)

	lvl.FailureCount = 0
	lvl.FilledTxHash = &txHash
	lvl.UpdatedAt = time.Now().UTC()
	e.rearm(lvl, currentPrice, widen)

	return TickResult{Level: lvl, Record: record}
}

// rearm flips a filled level to the opposing side, priced one
// profit_margin step away in the profit direction, re-arming it in
// place (spec §4.7 "ok" transition).
func (e *Engine) rearm(lvl *hypergrid.GridLevel, currentPrice *big.Rat, widenSpacing bool) {
	margin := e.cfg.ProfitMarginPercent
	if margin == nil {
		margin = big.NewRat(0, 1)
	}
	if widenSpacing && e.cfg.WidenStepPercent != nil {
		margin = new(big.Rat).Add(margin, e.cfg.WidenStepPercent)
	}

	one := big.NewRat(1, 1)
	if lvl.Side == hypergrid.Buy {
		lvl.Side = hypergrid.Sell
		lvl.Price = new(big.Rat).Mul(lvl.Price, new(big.Rat).Add(one, margin))
	} else {
		lvl.Side = hypergrid.Buy
		lvl.Price = new(big.Rat).Mul(lvl.Price, new(big.Rat).Sub(one, margin))
	}
	lvl.State = hypergrid.Armed
}

func (e *Engine) fail(lvl *hypergrid.GridLevel, err error) TickResult {
	lvl.FailureCount++
	if lvl.FailureCount >= 3 {
		lvl.State = hypergrid.Disabled
	} else {
		lvl.State = hypergrid.Armed
	}
	lvl.UpdatedAt = time.Now().UTC()
	return TickResult{Level: lvl, Err: err}
}

// estimatedUSD converts a level's planned quantity into a USD figure
// suitable for the validator's USD-sizing guard: a Buy level's
// Quantity is already USD (grid.Plan sizes it that way), but a Sell
// level's Quantity is base-token units and must be converted through
// the Price Oracle's live USD quote, not the static planned quantity
// (spec §4.5's "USD value computed exclusively from the Price
// Oracle").
func (e *Engine) estimatedUSD(lvl *hypergrid.GridLevel) (*big.Rat, error) {
	if lvl.Side == hypergrid.Buy {
		return lvl.Quantity, nil
	}
	usd, err := e.deps.Oracle.GetUSD(e.cfg.Pair.Base.Symbol)
	if err != nil {
		return nil, err
	}
	return new(big.Rat).Mul(lvl.Quantity, usd.Price), nil
}

func (e *Engine) legTokens(lvl *hypergrid.GridLevel) (in, out hypergrid.Token) {
	if lvl.Side == hypergrid.Buy {
		return e.cfg.Pair.Quote, e.cfg.Pair.Base
	}
	return e.cfg.Pair.Base, e.cfg.Pair.Quote
}

// unitsFor converts a level's quantity (USD-denominated for Buy,
// base-token-denominated for Sell, per grid.Plan's sizing) into the
// in-token's smallest on-chain unit.
func unitsFor(lvl *hypergrid.GridLevel, pair hypergrid.Pair) *big.Int {
	decimals := pair.Base.Decimals
	if lvl.Side == hypergrid.Buy {
		decimals = pair.Quote.Decimals
	}
	scaled := new(big.Rat).Mul(lvl.Quantity, new(big.Rat).SetInt(pow10(decimals)))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom())
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
