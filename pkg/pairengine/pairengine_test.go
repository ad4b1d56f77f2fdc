package pairengine

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypergrid-bot/hypergrid"
	"github.com/hypergrid-bot/hypergrid/internal/oracle"
	"github.com/hypergrid-bot/hypergrid/pkg/accountant"
	"github.com/hypergrid-bot/hypergrid/pkg/contractclient"
	"github.com/hypergrid-bot/hypergrid/pkg/grid"
	"github.com/hypergrid-bot/hypergrid/pkg/quoter"
	"github.com/hypergrid-bot/hypergrid/pkg/router"
	hgtypes "github.com/hypergrid-bot/hypergrid/pkg/types"
	"github.com/hypergrid-bot/hypergrid/pkg/validator"
)

// fakeContractClient fakes both the quoter and router legs: Call
// returns a fixed exact-input quote, Send returns a fixed tx hash (or
// the configured error).
type fakeContractClient struct {
	amountOut *big.Int
	sendHash  common.Hash
	sendErr   error
}

func (f *fakeContractClient) Call(caller *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	return []interface{}{f.amountOut, big.NewInt(0), big.NewInt(0), big.NewInt(50000)}, nil
}
func (f *fakeContractClient) Send(hgtypes.TransactionType, *uint64, *common.Address, *ecdsa.PrivateKey, string, ...interface{}) (common.Hash, error) {
	return f.sendHash, f.sendErr
}
func (f *fakeContractClient) SendWithValue(hgtypes.TransactionType, *big.Int, *uint64, *common.Address, *ecdsa.PrivateKey, string, ...interface{}) (common.Hash, error) {
	return f.sendHash, f.sendErr
}
func (f *fakeContractClient) Abi() abi.ABI                    { return abi.ABI{} }
func (f *fakeContractClient) ContractAddress() common.Address { return common.Address{} }
func (f *fakeContractClient) ParseReceipt(*hgtypes.TxReceipt) (string, error) {
	return "", nil
}
func (f *fakeContractClient) TransactionData(common.Hash) ([]byte, error) { return nil, nil }
func (f *fakeContractClient) DecodeTransaction([]byte) (*contractclient.DecodedTransaction, error) {
	return nil, nil
}

type fakeTxListener struct {
	receipt *hgtypes.TxReceipt
	err     error
}

func (f *fakeTxListener) WaitForTransaction(common.Hash) (*hgtypes.TxReceipt, error) {
	return f.receipt, f.err
}

type fakeBalance struct{}

func (fakeBalance) AvailableBalance(string) (*big.Int, error) {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil), nil
}

type fakeLosses struct{}

func (fakeLosses) RealizedDayPnL() *big.Rat { return big.NewRat(0, 1) }

// fakeOracle stands in for a live Oracle when a test needs a
// controllable GetUSD/GetPairPrice response, e.g. pricing a Sell
// level's base-token quantity into USD.
type fakeOracle struct {
	pairPrice *big.Rat
	usdPrice  *big.Rat
	usdErr    error
}

func (f *fakeOracle) GetPairPrice(base, quote hypergrid.Token) (hypergrid.PriceSample, error) {
	return hypergrid.PriceSample{Price: f.pairPrice}, nil
}
func (f *fakeOracle) GetUSD(string) (hypergrid.PriceSample, error) {
	if f.usdErr != nil {
		return hypergrid.PriceSample{}, f.usdErr
	}
	return hypergrid.PriceSample{Price: f.usdPrice}, nil
}
func (f *fakeOracle) Health() oracle.HealthReport { return oracle.HealthReport{} }

func weth() hypergrid.Token {
	return hypergrid.Token{Symbol: "WETH", Address: common.HexToAddress("0x1"), Decimals: 18}
}

func usdc() hypergrid.Token {
	return hypergrid.Token{Symbol: "USDC", Address: common.HexToAddress("0x2"), Decimals: 6}
}

func testPair() hypergrid.Pair {
	return hypergrid.Pair{ID: "weth-usdc", Base: weth(), Quote: usdc(), PoolFeeBps: 500, Enabled: true}
}

// newTestEngine wires an Engine with fakes standing in for every
// on-chain collaborator, a generous budget, and a permissive
// validator, so a test can focus on state-machine behavior.
func newTestEngine(t *testing.T, amountOut *big.Int, sendErr error, receipt *hgtypes.TxReceipt) (*Engine, *accountant.Ledger) {
	t.Helper()

	cc := &fakeContractClient{amountOut: amountOut, sendHash: common.HexToHash("0xabc"), sendErr: sendErr}
	quoterClient := quoter.NewClient(cc)
	routerClient := router.NewClient(cc, nil, common.HexToAddress("0xme"), nil)

	v := validator.NewValidator(validator.DefaultLimits(), fakeBalance{}, fakeLosses{})
	ledger := accountant.NewLedger(testPair().ID)

	o := oracle.New(oracle.NewQuoterSource(quoterClient, nil, nil), time.Minute)

	budget := &hypergrid.PairBudget{
		PairID:       testPair().ID,
		AllocatedUSD: big.NewRat(1000, 1),
		CommittedUSD: big.NewRat(0, 1),
		ReleasedUSD:  big.NewRat(0, 1),
		NetExposure:  big.NewRat(0, 1),
	}

	cfg := Config{
		Pair:                testPair(),
		MyAddress:           common.HexToAddress("0xme"),
		MaxConcurrentFills:  1,
		ProfitMarginPercent: big.NewRat(5, 1000),
		MinProfitUSD:        big.NewRat(1, 1),
		SlippageTolerance:   big.NewRat(1, 100),
		NativeUSD:           func() (*big.Rat, error) { return big.NewRat(0, 1), nil },
	}

	deps := Dependencies{
		Oracle:     o,
		Validator:  v,
		Quoter:     quoterClient,
		Router:     routerClient,
		TxListener: &fakeTxListener{receipt: receipt},
		Ledger:     ledger,
	}

	return New(cfg, deps, budget), ledger
}

func successReceipt() *hgtypes.TxReceipt {
	return &hgtypes.TxReceipt{
		TxHash:            common.HexToHash("0xabc"),
		BlockNumber:       1,
		Status:            uint64(gethtypes.ReceiptStatusSuccessful),
		GasUsed:           100000,
		EffectiveGasPrice: big.NewInt(20_000_000_000),
	}
}

func armedLevel(id string, side hypergrid.Side, price string, quantity string) *hypergrid.GridLevel {
	p, _ := new(big.Rat).SetString(price)
	q, _ := new(big.Rat).SetString(quantity)
	return &hypergrid.GridLevel{
		ID:       id,
		PairID:   testPair().ID,
		Price:    p,
		Quantity: q,
		Side:     side,
		State:    hypergrid.Armed,
	}
}

// scenario 3: prev 0.000380 -> current 0.000370 crosses a Buy armed at
// 0.000375 but not a Sell armed at 0.000385.
func TestTickDetectsOnlyCrossedLevel(t *testing.T) {
	e, _ := newTestEngine(t, big.NewInt(1000), nil, successReceipt())
	e.ladder = &hypergrid.LadderState{
		PairID: testPair().ID,
		Levels: []*hypergrid.GridLevel{
			armedLevel("buy-1", hypergrid.Buy, "0.000375", "1"),
			armedLevel("sell-1", hypergrid.Sell, "0.000385", "1"),
		},
	}
	e.prevPrice = big.NewRat(380, 1000000)

	hits := e.findHits(big.NewRat(370, 1000000))
	require.Len(t, hits, 1)
	assert.Equal(t, "buy-1", hits[0].ID)
}

// scenario 2 (oversized trade): validator rejects due to usd_sizing,
// the level's failure_count increments and it stays Armed.
func TestExecuteRecordsValidationFailureAndStaysArmed(t *testing.T) {
	e, _ := newTestEngine(t, big.NewInt(1000), nil, successReceipt())
	e.deps.Oracle = &fakeOracle{pairPrice: big.NewRat(1500, 1)}
	e.ladder = &hypergrid.LadderState{PairID: testPair().ID}
	lvl := armedLevel("buy-1", hypergrid.Buy, "1500", "500") // $500 > default $200 max

	result := e.execute(lvl, big.NewRat(1500, 1))

	require.Error(t, result.Err)
	var valErr *hypergrid.ValidationFailedError
	assert.ErrorAs(t, result.Err, &valErr)
	assert.Contains(t, valErr.Reason, "usd_sizing")
	assert.Equal(t, hypergrid.Armed, lvl.State)
	assert.Equal(t, uint8(1), lvl.FailureCount)
}

// scenario 5: three consecutive failures disable the level.
func TestThreeConsecutiveFailuresDisableLevel(t *testing.T) {
	e, _ := newTestEngine(t, big.NewInt(1000), nil, successReceipt())
	e.ladder = &hypergrid.LadderState{PairID: testPair().ID}
	lvl := armedLevel("buy-1", hypergrid.Buy, "1500", "500")

	for i := 0; i < 3; i++ {
		result := e.execute(lvl, big.NewRat(1500, 1))
		require.Error(t, result.Err)
	}

	assert.Equal(t, hypergrid.Disabled, lvl.State)
	assert.Equal(t, uint8(3), lvl.FailureCount)
}

// A successful fill flips the level to the opposing side, one
// profit-margin step above (Buy->Sell) or below (Sell->Buy) its fill
// price, and re-arms it in place.
func TestSuccessfulFillRearmsOpposingSide(t *testing.T) {
	amountOut := new(big.Int).Mul(big.NewInt(66), new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil)) // ~0.066 WETH out
	e, ledger := newTestEngine(t, amountOut, nil, successReceipt())
	e.deps.Oracle = &fakeOracle{pairPrice: big.NewRat(100, 1)}
	e.ladder = &hypergrid.LadderState{PairID: testPair().ID}
	lvl := armedLevel("buy-1", hypergrid.Buy, "100", "1")

	result := e.execute(lvl, big.NewRat(100, 1))

	require.NoError(t, result.Err)
	require.NotNil(t, result.Record)
	assert.Equal(t, hypergrid.Sell, lvl.Side)
	assert.Equal(t, hypergrid.Armed, lvl.State)

	want := new(big.Rat).Mul(big.NewRat(100, 1), new(big.Rat).Add(big.NewRat(1, 1), big.NewRat(5, 1000)))
	assert.Equal(t, 0, lvl.Price.Cmp(want))
	assert.Len(t, ledger.OpenLots(), 1)
}

// Tick is a no-op before a ladder has been planned (Idle state).
func TestTickNoOpWhenIdle(t *testing.T) {
	e, _ := newTestEngine(t, big.NewInt(1000), nil, successReceipt())
	results := e.Tick(big.NewRat(100, 1))
	assert.Nil(t, results)
}

// A Sell level's Quantity is base-token units, not USD: estimatedUSD
// must convert it through the oracle's live USD quote before the
// validator sees it, so a small base quantity priced at a high USD
// rate still trips usd_sizing.
func TestExecuteSellLevelPricesUSDThroughOracle(t *testing.T) {
	e, _ := newTestEngine(t, big.NewInt(1000), nil, successReceipt())
	e.deps.Oracle = &fakeOracle{pairPrice: big.NewRat(100, 1), usdPrice: big.NewRat(5000, 1)}
	e.ladder = &hypergrid.LadderState{PairID: testPair().ID}
	// 1 WETH at $5000/WETH => $5000, comfortably over the $200 default max.
	lvl := armedLevel("sell-1", hypergrid.Sell, "100", "1")

	result := e.execute(lvl, big.NewRat(100, 1))

	require.Error(t, result.Err)
	var valErr *hypergrid.ValidationFailedError
	assert.ErrorAs(t, result.Err, &valErr)
	assert.Contains(t, valErr.Reason, "usd_sizing")
}

// estimatedUSD surfaces a price-unavailable error as an execute
// failure rather than letting a nil USD figure reach the validator.
func TestExecuteSellLevelFailsWhenOracleUSDUnavailable(t *testing.T) {
	e, _ := newTestEngine(t, big.NewInt(1000), nil, successReceipt())
	e.deps.Oracle = &fakeOracle{usdErr: &hypergrid.PriceUnavailableError{Symbol: "WETH"}}
	e.ladder = &hypergrid.LadderState{PairID: testPair().ID}
	lvl := armedLevel("sell-1", hypergrid.Sell, "100", "1")

	result := e.execute(lvl, big.NewRat(100, 1))

	require.Error(t, result.Err)
	var priceErr *hypergrid.PriceUnavailableError
	assert.ErrorAs(t, result.Err, &priceErr)
	assert.Equal(t, hypergrid.Armed, lvl.State)
}

// A persistent transport failure is retried swapRetry.MaxRetries
// times after the first attempt, then reclassified as SwapReverted rather than
// surfacing the raw transport error (spec §7).
func TestSwapTransportErrorReclassifiedAsReverted(t *testing.T) {
	orig := swapRetry
	swapRetry.Delays = []time.Duration{time.Millisecond, time.Millisecond}
	defer func() { swapRetry = orig }()

	e, _ := newTestEngine(t, big.NewInt(1000), errors.New("connection reset"), successReceipt())
	e.deps.Oracle = &fakeOracle{pairPrice: big.NewRat(100, 1)}
	e.ladder = &hypergrid.LadderState{PairID: testPair().ID}
	lvl := armedLevel("buy-1", hypergrid.Buy, "100", "1")

	result := e.execute(lvl, big.NewRat(100, 1))

	require.Error(t, result.Err)
	var revertedErr *hypergrid.SwapRevertedError
	assert.ErrorAs(t, result.Err, &revertedErr)
	assert.Equal(t, hypergrid.Armed, lvl.State)
}

// Once AdaptiveRange is configured, a Tick whose price has drifted
// past AdaptiveRange/2 from the ladder's last MidReference replans the
// ladder around the new price instead of leaving the stale band armed.
func TestMaybeRegenerateOnPriceDrift(t *testing.T) {
	e, _ := newTestEngine(t, big.NewInt(1000), nil, successReceipt())
	e.cfg.AdaptiveRange = big.NewRat(1, 10) // 10%
	require.NoError(t, e.Plan(grid.LadderConfig{
		PairID: testPair().ID, MinPrice: big.NewRat(90, 1), MaxPrice: big.NewRat(110, 1),
		Count: 4, Mode: hypergrid.Arithmetic, TotalInvestment: big.NewRat(400, 1), CurrentPrice: big.NewRat(100, 1),
	}))
	firstMid := e.ladder.MidReference

	e.Tick(big.NewRat(130, 1)) // 30% drift, past the 5% half-band

	assert.Equal(t, 0, e.ladder.MidReference.Cmp(big.NewRat(130, 1)))
	assert.NotEqual(t, 0, firstMid.Cmp(e.ladder.MidReference))
}

// A price within the band, with no rebalance interval elapsed, leaves
// the ladder untouched.
func TestMaybeRegenerateNoOpWithinBand(t *testing.T) {
	e, _ := newTestEngine(t, big.NewInt(1000), nil, successReceipt())
	e.cfg.AdaptiveRange = big.NewRat(1, 10) // 10%
	require.NoError(t, e.Plan(grid.LadderConfig{
		PairID: testPair().ID, MinPrice: big.NewRat(90, 1), MaxPrice: big.NewRat(110, 1),
		Count: 4, Mode: hypergrid.Arithmetic, TotalInvestment: big.NewRat(400, 1), CurrentPrice: big.NewRat(100, 1),
	}))
	firstMid := e.ladder.MidReference
	firstPlannedAt := e.plannedAt

	e.Tick(big.NewRat(101, 1)) // 1% drift, well inside the 5% half-band

	assert.Equal(t, 0, firstMid.Cmp(e.ladder.MidReference))
	assert.Equal(t, firstPlannedAt, e.plannedAt)
}

// A zero InitialTradePercent resolves to 1/grid_count and records the
// positioning trade under the synthetic "initial-position" grid ID.
func TestPositionInitialInventoryDefaultsToOneOverGridCount(t *testing.T) {
	e, ledger := newTestEngine(t, big.NewInt(1000), nil, successReceipt())
	require.NoError(t, e.Plan(grid.LadderConfig{
		PairID: testPair().ID, MinPrice: big.NewRat(90, 1), MaxPrice: big.NewRat(110, 1),
		Count: 4, Mode: hypergrid.Arithmetic, TotalInvestment: big.NewRat(400, 1), CurrentPrice: big.NewRat(100, 1),
	}))

	record, err := e.PositionInitialInventory()

	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "initial-position", record.GridID)
	want := new(big.Rat).Quo(e.budget.AllocatedUSD, big.NewRat(4, 1))
	assert.Equal(t, 0, want.Cmp(record.USDValue))
	assert.Len(t, ledger.OpenLots(), 1)
}

// An explicit InitialTradePercent overrides the 1/grid_count default.
func TestPositionInitialInventoryHonorsExplicitPercent(t *testing.T) {
	e, _ := newTestEngine(t, big.NewInt(1000), nil, successReceipt())
	e.cfg.InitialTradePercent = big.NewRat(1, 2)
	require.NoError(t, e.Plan(grid.LadderConfig{
		PairID: testPair().ID, MinPrice: big.NewRat(90, 1), MaxPrice: big.NewRat(110, 1),
		Count: 4, Mode: hypergrid.Arithmetic, TotalInvestment: big.NewRat(400, 1), CurrentPrice: big.NewRat(100, 1),
	}))

	record, err := e.PositionInitialInventory()

	require.NoError(t, err)
	require.NotNil(t, record)
	want := new(big.Rat).Quo(e.budget.AllocatedUSD, big.NewRat(2, 1))
	assert.Equal(t, 0, want.Cmp(record.USDValue))
}
