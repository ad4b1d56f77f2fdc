package main

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"github.com/hypergrid-bot/hypergrid"
	"github.com/hypergrid-bot/hypergrid/internal/balance"
	"github.com/hypergrid-bot/hypergrid/internal/config"
	"github.com/hypergrid-bot/hypergrid/internal/db"
	"github.com/hypergrid-bot/hypergrid/internal/oracle"
	"github.com/hypergrid-bot/hypergrid/internal/scheduler"
	"github.com/hypergrid-bot/hypergrid/internal/store"
	"github.com/hypergrid-bot/hypergrid/internal/util"
	"github.com/hypergrid-bot/hypergrid/pkg/accountant"
	"github.com/hypergrid-bot/hypergrid/pkg/contractclient"
	"github.com/hypergrid-bot/hypergrid/pkg/grid"
	"github.com/hypergrid-bot/hypergrid/pkg/pairengine"
	"github.com/hypergrid-bot/hypergrid/pkg/quoter"
	"github.com/hypergrid-bot/hypergrid/pkg/router"
	"github.com/hypergrid-bot/hypergrid/pkg/txlistener"
	"github.com/hypergrid-bot/hypergrid/pkg/validator"
)

func deriveAddress(pk *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(pk.PublicKey)
}

// loadContractABIs parses the QuoterV2, SwapRouter, and WETH9 ABI
// artifacts every deployment supplies under abiPaths, plus the
// inline minimal ERC20 ABI hypergrid embeds itself.
func loadContractABIs() (quoterV2, swapRouter, weth9, erc20 abi.ABI, err error) {
	if quoterV2, err = util.LoadABI(abiPaths.quoterV2); err != nil {
		return
	}
	if swapRouter, err = util.LoadABI(abiPaths.swapRouter); err != nil {
		return
	}
	if weth9, err = util.LoadABI(abiPaths.weth9); err != nil {
		return
	}
	erc20, err = balance.ERC20ABI()
	return
}

// tokenClient bundles a token's address with a bound ContractClient
// for its ERC20 balanceOf call.
type tokenClient struct {
	address common.Address
	client  contractclient.ContractClient
}

func buildTokenClients(client *ethclient.Client, cfg *config.AppConfig, erc20ABI abi.ABI, limiter *rate.Limiter) map[string]tokenClient {
	out := make(map[string]tokenClient, len(cfg.Tokens))
	for symbol, tok := range cfg.Tokens {
		addr := common.HexToAddress(tok.Address)
		out[strings.ToUpper(symbol)] = tokenClient{
			address: addr,
			client:  contractclient.NewContractClient(client, addr, erc20ABI, limiter),
		}
	}
	return out
}

func nativeToken(cfg *config.AppConfig) string {
	for symbol, tok := range cfg.Tokens {
		if tok.IsNative {
			return strings.ToUpper(symbol)
		}
	}
	return ""
}

func resolveToken(cfg *config.AppConfig, symbol string) (hypergrid.Token, error) {
	tok, ok := cfg.Tokens[strings.ToUpper(symbol)]
	if !ok {
		return hypergrid.Token{}, fmt.Errorf("unknown token %q", symbol)
	}
	return hypergrid.Token{
		Symbol:   strings.ToUpper(tok.Symbol),
		Address:  common.HexToAddress(tok.Address),
		Decimals: tok.Decimals,
		IsNative: tok.IsNative,
	}, nil
}

// buildPairProbes derives one QuoterV2 price probe per enabled pair, a
// 1-unit-of-base exact-input quote against the pool's configured fee
// tier, so the oracle's on-chain fallback never depends on hardcoded
// probe sizes per pair.
func buildPairProbes(cfg *config.AppConfig) map[string]oracle.PairProbe {
	probes := make(map[string]oracle.PairProbe)
	for _, p := range cfg.Pairs {
		if !p.Enabled {
			continue
		}
		base, err := resolveToken(cfg, p.BaseToken)
		if err != nil {
			continue
		}
		quote, err := resolveToken(cfg, p.QuoteToken)
		if err != nil {
			continue
		}
		pair := hypergrid.Pair{
			ID:         p.Name,
			Base:       base,
			Quote:      quote,
			PoolAddr:   common.HexToAddress(p.PoolAddress),
			PoolFeeBps: p.PoolFeeBps,
			Enabled:    p.Enabled,
		}
		probes[base.Symbol+"-"+quote.Symbol] = oracle.PairProbe{
			Pair:          pair,
			ProbeAmountIn: pow10(base.Decimals),
		}
	}
	return probes
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func parseLadderMode(mode string) hypergrid.LadderMode {
	if strings.EqualFold(mode, "geometric") {
		return hypergrid.Geometric
	}
	return hypergrid.Arithmetic
}

func floatToRat(f float64) *big.Rat {
	r := new(big.Rat)
	r.SetFloat64(f)
	return r
}

// multiRecorder fans a single Recorder call out to every configured
// sink; buildRecorder always includes the file journal, so a deployment
// runs file-only or file plus MySQL (spec §4.9).
type multiRecorder struct {
	sinks []scheduler.Recorder
}

func (m *multiRecorder) AppendTrade(rec *hypergrid.TradeRecord) error {
	return m.forEach(func(r scheduler.Recorder) error { return r.AppendTrade(rec) })
}
func (m *multiRecorder) WriteStatus(status hypergrid.BotStatus) error {
	return m.forEach(func(r scheduler.Recorder) error { return r.WriteStatus(status) })
}
func (m *multiRecorder) WriteLadder(ladder *hypergrid.LadderState) error {
	return m.forEach(func(r scheduler.Recorder) error { return r.WriteLadder(ladder) })
}
func (m *multiRecorder) forEach(fn func(scheduler.Recorder) error) error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := fn(sink); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// buildRecorder wires the data_dir journal and, if MYSQL_DSN is set, a
// secondary MySQL sink, fanned into one scheduler.Recorder. The
// returned close func tears down the DB connection, if any.
func buildRecorder(cfg *config.AppConfig) (scheduler.Recorder, func(), error) {
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "data"
	}
	fileStore, err := store.New(dataDir)
	if err != nil {
		return nil, func() {}, err
	}

	dsn := envOr("MYSQL_DSN", "")
	if dsn == "" {
		return fileStore, func() {}, nil
	}

	mysqlRecorder, err := db.NewMySQLRecorder(dsn)
	if err != nil {
		return nil, func() {}, err
	}
	combined := &multiRecorder{sinks: []scheduler.Recorder{fileStore, mysqlRecorder}}
	return combined, func() { _ = mysqlRecorder.Close() }, nil
}

// buildPairEntries constructs one Pair Engine per enabled pair,
// allocating its budget from the global grid investment pool by
// allocation_percent and planning its initial ladder around the
// pair's current oracle price.
func buildPairEntries(
	cfg *config.AppConfig,
	myAddress common.Address,
	priceOracle oracle.Oracle,
	tradeValidator *validator.Validator,
	quoterClient *quoter.Client,
	routerClient *router.Client,
	txListener txlistener.TxListener,
	nativeUSD func() (*big.Rat, error),
) ([]scheduler.PairEntry, error) {
	var entries []scheduler.PairEntry

	for _, p := range cfg.Pairs {
		if !p.Enabled {
			continue
		}
		base, err := resolveToken(cfg, p.BaseToken)
		if err != nil {
			return nil, err
		}
		quote, err := resolveToken(cfg, p.QuoteToken)
		if err != nil {
			return nil, err
		}
		pair := hypergrid.Pair{
			ID:         p.Name,
			Base:       base,
			Quote:      quote,
			PoolAddr:   common.HexToAddress(p.PoolAddress),
			PoolFeeBps: p.PoolFeeBps,
			Enabled:    true,
		}
		if err := pair.Validate(); err != nil {
			return nil, err
		}

		current, err := priceOracle.GetPairPrice(base, quote)
		if err != nil {
			return nil, fmt.Errorf("pair %s: initial price unavailable: %w", p.Name, err)
		}

		rangePercent := p.RangePercent
		if rangePercent <= 0 {
			rangePercent = cfg.GridRangePercent
		}
		rangeFrac := floatToRat(rangePercent / 100)
		minPrice := new(big.Rat).Mul(current.Price, new(big.Rat).Sub(big.NewRat(1, 1), rangeFrac))
		maxPrice := new(big.Rat).Mul(current.Price, new(big.Rat).Add(big.NewRat(1, 1), rangeFrac))

		gridCount := p.GridCount
		if gridCount <= 0 {
			gridCount = cfg.GridCount
		}

		allocatedUSD := new(big.Rat).Mul(cfg.GridTotalInvestmentUSD, floatToRat(p.AllocationPercent/100))

		// min_profit_percent is a fraction of a single level's trade
		// size, not a flat USD amount, so it is scaled by the per-level
		// allocation to get the absolute USD floor pairengine compares
		// a fill's net profit against.
		perLevelUSD := new(big.Rat).Quo(allocatedUSD, big.NewRat(int64(gridCount), 1))
		minProfitUSD := new(big.Rat).Mul(perLevelUSD, floatToRat(cfg.GridMinProfitPercent/100))

		ledger := accountant.NewLedger(pair.ID)
		engine := pairengine.New(pairengine.Config{
			Pair:                pair,
			MyAddress:           myAddress,
			MaxConcurrentFills:  1,
			ProfitMarginPercent: floatToRat(cfg.GridProfitMargin),
			WidenStepPercent:    floatToRat(cfg.GridProfitMargin),
			MinProfitUSD:        minProfitUSD,
			SlippageTolerance:   floatToRat(float64(cfg.MaxSlippageBps) / 10000),
			NativeUSD:           nativeUSD,
			AdaptiveRange:       rangeFrac,
			InitialTradePercent: floatToRat(cfg.InitialTradePercent / 100),
		}, pairengine.Dependencies{
			Oracle:     priceOracle,
			Validator:  tradeValidator,
			Quoter:     quoterClient,
			Router:     routerClient,
			TxListener: txListener,
			Ledger:     ledger,
		}, &hypergrid.PairBudget{
			PairID:       pair.ID,
			AllocatedUSD: allocatedUSD,
			CommittedUSD: big.NewRat(0, 1),
			ReleasedUSD:  big.NewRat(0, 1),
		})

		if err := engine.Plan(grid.LadderConfig{
			PairID:          pair.ID,
			MinPrice:        minPrice,
			MaxPrice:        maxPrice,
			Count:           gridCount,
			Mode:            parseLadderMode(cfg.GridMode),
			TotalInvestment: allocatedUSD,
			CurrentPrice:    current.Price,
			ScalingFactor:   floatToRat(cfg.GridScalingFactor),
		}); err != nil {
			return nil, fmt.Errorf("pair %s: plan ladder: %w", p.Name, err)
		}

		if _, err := engine.PositionInitialInventory(); err != nil {
			return nil, fmt.Errorf("pair %s: initial positioning trade: %w", p.Name, err)
		}

		entries = append(entries, scheduler.PairEntry{
			PairID:        pair.ID,
			Engine:        engine,
			Base:          base,
			Quote:         quote,
			MaxFailureSum: gridCount * 3,
		})
	}

	return entries, nil
}
