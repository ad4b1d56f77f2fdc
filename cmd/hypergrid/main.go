// Command hypergrid wires the Grid Planner, Price Oracle, Trade
// Validator, Profit Accountant, and Pair Engines into the Multi-Pair
// Scheduler and runs it to completion, mirroring the teacher's
// cmd/main.go wiring — decrypt the signer key, load config, dial the
// RPC client, start a tx listener, build the trading engine, run its
// strategy loop — generalized to N pairs instead of one strategy.
package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"github.com/hypergrid-bot/hypergrid"
	"github.com/hypergrid-bot/hypergrid/internal/balance"
	"github.com/hypergrid-bot/hypergrid/internal/config"
	"github.com/hypergrid-bot/hypergrid/internal/daypnl"
	"github.com/hypergrid-bot/hypergrid/internal/oracle"
	"github.com/hypergrid-bot/hypergrid/internal/scheduler"
	"github.com/hypergrid-bot/hypergrid/internal/util"
	"github.com/hypergrid-bot/hypergrid/pkg/contractclient"
	"github.com/hypergrid-bot/hypergrid/pkg/quoter"
	"github.com/hypergrid-bot/hypergrid/pkg/router"
	"github.com/hypergrid-bot/hypergrid/pkg/txlistener"
	"github.com/hypergrid-bot/hypergrid/pkg/validator"
)

// Exit codes the Operational surface promises (spec §6).
const (
	exitOK                   = 0
	exitConfigInvalid        = 2
	exitPriceFeedUnavailable = 3
	exitInsufficientBalance  = 4
	exitWalletError          = 5
)

// abiPaths are the on-disk ABI artifacts every deployment supplies
// alongside its config.yml; hypergrid never embeds a pool/router ABI.
var abiPaths = struct {
	quoterV2   string
	swapRouter string
	weth9      string
}{
	quoterV2:   envOr("QUOTER_V2_ABI_PATH", "abis/quoterv2.json"),
	swapRouter: envOr("SWAP_ROUTER_ABI_PATH", "abis/swaprouter.json"),
	weth9:      envOr("WETH9_ABI_PATH", "abis/weth9.json"),
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := envOr("CONFIG_PATH", "configs/config.yml")
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hypergrid: config invalid: %v\n", err)
		return exitConfigInvalid
	}

	pk, err := loadSigningKey(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hypergrid: wallet key: %v\n", err)
		return exitWalletError
	}
	myAddress := deriveAddress(pk)

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hypergrid: dial rpc: %v\n", err)
		return exitWalletError
	}

	txListener := txlistener.NewTxListener(client, txlistener.WithPollInterval(3*time.Second), txlistener.WithTimeout(5*time.Minute))

	limiter := rate.NewLimiter(rate.Limit(20), 5)

	quoterABI, swapRouterABI, weth9ABI, erc20ABI, err := loadContractABIs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "hypergrid: load abi: %v\n", err)
		return exitConfigInvalid
	}

	quoterClient := quoter.NewClient(contractclient.NewContractClient(client, common.HexToAddress(cfg.QuoterV2Address), quoterABI, limiter))
	routerCC := contractclient.NewContractClient(client, common.HexToAddress(cfg.RouterV3Address), swapRouterABI, limiter)

	tokenClients := buildTokenClients(client, cfg, erc20ABI, limiter)
	var wrappedCC contractclient.ContractClient
	if native := nativeToken(cfg); native != "" {
		if addr, ok := tokenClients[strings.ToUpper(native)]; ok {
			wrappedCC = contractclient.NewContractClient(client, addr.address, weth9ABI, limiter)
		}
	}
	routerClient := router.NewClient(routerCC, wrappedCC, myAddress, pk)

	probes := buildPairProbes(cfg)
	quoterSource := oracle.NewQuoterSource(quoterClient, probes, nil)

	var feed *oracle.Feed
	var bgTasks []func(context.Context) error
	if cfg.HyperliquidAPIURL != "" {
		feed = oracle.NewFeed(cfg.HyperliquidAPIURL, oracle.FeedConfig{})
		bgTasks = append(bgTasks, func(ctx context.Context) error {
			feed.Run(ctx)
			return nil
		})
	}

	priceTTL := cfg.PriceUpdateInterval
	if priceTTL <= 0 {
		priceTTL = 5 * time.Second
	}
	var oracleOpts []oracle.Option
	if feed != nil {
		oracleOpts = append(oracleOpts, oracle.WithFeed(feed))
	}
	priceOracle := oracle.New(quoterSource, priceTTL, oracleOpts...)

	ccTokens := make(map[string]contractclient.ContractClient, len(tokenClients))
	for symbol, cc := range tokenClients {
		ccTokens[symbol] = cc.client
	}
	balanceChecker := balance.NewChecker(myAddress, ccTokens)

	pnlTracker := daypnl.New()
	limits := validator.DefaultLimits()
	if cfg.MaxDailyLossUSD != nil {
		limits.MaxDailyLossUSD = cfg.MaxDailyLossUSD
	}
	tradeValidator := validator.NewValidator(limits, balanceChecker, pnlTracker)

	nativeUSD := func() (*big.Rat, error) {
		native := nativeToken(cfg)
		if native == "" {
			return big.NewRat(0, 1), nil
		}
		sample, err := priceOracle.GetUSD(native)
		if err != nil {
			return nil, err
		}
		return sample.Price, nil
	}

	recorder, closeRecorder, err := buildRecorder(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hypergrid: durable store: %v\n", err)
		return exitConfigInvalid
	}
	defer closeRecorder()

	entries, err := buildPairEntries(cfg, myAddress, priceOracle, tradeValidator, quoterClient, routerClient, txListener, nativeUSD)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hypergrid: pair setup: %v\n", err)
		var priceErr *hypergrid.PriceUnavailableError
		var balanceErr *hypergrid.BalanceInsufficientError
		switch {
		case errors.As(err, &priceErr):
			return exitPriceFeedUnavailable
		case errors.As(err, &balanceErr):
			return exitInsufficientBalance
		}
		return exitConfigInvalid
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "hypergrid: no enabled pairs configured")
		return exitConfigInvalid
	}

	sched := scheduler.New(scheduler.Config{
		CheckInterval:      cfg.CheckInterval,
		MaxConcurrentPairs: len(entries),
		MaxDailyLossUSD:    cfg.MaxDailyLossUSD,
		OnTrade:            func(rec *hypergrid.TradeRecord) { pnlTracker.Add(rec.NetProfitUSD) },
	}, priceOracle, recorder, entries, pnlTracker.RealizedDayPnL)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := sched.Run(ctx, bgTasks...); err != nil {
		fmt.Fprintf(os.Stderr, "hypergrid: scheduler: %v\n", err)
		return exitWalletError
	}
	return exitOK
}

func loadSigningKey(cfg *config.AppConfig) (*ecdsa.PrivateKey, error) {
	if cfg.PrivateKeyEncrypted == "" {
		return nil, fmt.Errorf("PRIVATE_KEY not set")
	}
	if cfg.PrivateKeyPassword == "" {
		return nil, fmt.Errorf("PRIVATE_KEY_PASSWORD not set")
	}
	return util.Decrypt([]byte(cfg.PrivateKeyPassword), cfg.PrivateKeyEncrypted)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
