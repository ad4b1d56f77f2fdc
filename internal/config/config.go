// Package config loads and validates the process-wide AppConfig from
// a YAML file overlaid by the process environment (env wins),
// mirroring the teacher's configs.LoadConfig + godotenv split between
// a YAML strategy file and a .env-held secret.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hypergrid-bot/hypergrid"
)

// TokenConfig declares one tradable token's address and decimals.
type TokenConfig struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
	IsNative bool   `yaml:"is_native"`
}

// PairConfig declares one trading pair and its grid parameters.
type PairConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Name              string  `yaml:"name"`
	BaseToken         string  `yaml:"base_token"`
	QuoteToken        string  `yaml:"quote_token"`
	PoolAddress       string  `yaml:"pool_address"`
	PoolFeeBps        uint32  `yaml:"pool_fee"`
	AllocationPercent float64 `yaml:"allocation_percent"`
	GridCount         int     `yaml:"grid_count"`
	RangePercent      float64 `yaml:"range_percent"`
}

// AppConfig is the frozen, validated, process-wide configuration.
// Constructed once by Load; every other component accepts a borrowed
// *AppConfig and never mutates it.
type AppConfig struct {
	PrivateKeyEncrypted string
	PrivateKeyPassword  string

	RPCURL  string
	ChainID int64

	FactoryAddress         string
	QuoterV2Address        string
	RouterV3Address        string
	PositionManagerAddress string

	Tokens map[string]TokenConfig
	Pairs  []PairConfig

	GridTotalInvestmentUSD *big.Rat
	GridCount              int
	GridMode               string
	GridScalingFactor      float64
	GridRangePercent       float64
	GridProfitMargin       float64
	GridMinProfitPercent   float64
	InitialTradePercent    float64

	MaxPositionSizeUSD   *big.Rat
	MaxDailyLossUSD      *big.Rat
	MaxSlippageBps       uint32
	EmergencyStopLossBps uint32

	CheckInterval       time.Duration
	PriceUpdateInterval time.Duration

	HyperliquidAPIURL      string
	HyperliquidRateLimitMs int

	DryRun  bool
	DataDir string
}

// yamlFile is the on-disk shape Load parses before the environment
// overlay is applied.
type yamlFile struct {
	RPC       string `yaml:"rpc"`
	ChainID   int64  `yaml:"chain_id"`
	Addresses struct {
		Factory         string `yaml:"factory"`
		QuoterV2        string `yaml:"quoter_v2"`
		RouterV3        string `yaml:"router_v3"`
		PositionManager string `yaml:"position_manager"`
	} `yaml:"addresses"`
	Tokens []TokenConfig `yaml:"tokens"`
	Pairs  []PairConfig  `yaml:"pairs"`
	Grid   struct {
		TotalInvestmentUSD  float64 `yaml:"total_investment_usd"`
		Count               int     `yaml:"count"`
		Mode                string  `yaml:"mode"`
		ScalingFactor       float64 `yaml:"scaling_factor"`
		RangePercent        float64 `yaml:"range_percent"`
		ProfitMargin        float64 `yaml:"profit_margin"`
		MinProfitPercent    float64 `yaml:"min_profit_percent"`
		InitialTradePercent float64 `yaml:"initial_trade_percent"`
	} `yaml:"grid"`
	Risk struct {
		MaxPositionSizeUSD   float64 `yaml:"max_position_size_usd"`
		MaxDailyLossUSD      float64 `yaml:"max_daily_loss_usd"`
		MaxSlippageBps       uint32  `yaml:"max_slippage_bps"`
		EmergencyStopLossBps uint32  `yaml:"emergency_stop_loss_bps"`
	} `yaml:"risk"`
	Loop struct {
		CheckIntervalMs       int `yaml:"check_interval_ms"`
		PriceUpdateIntervalMs int `yaml:"price_update_interval_ms"`
	} `yaml:"loop"`
	Hyperliquid struct {
		APIURL      string `yaml:"api_url"`
		RateLimitMs int    `yaml:"rate_limit_ms"`
	} `yaml:"hyperliquid"`
	DryRun  bool   `yaml:"dry_run"`
	DataDir string `yaml:"data_dir"`
}

// Load builds an AppConfig from an optional YAML file at path (skipped
// if path is empty or unreadable) overlaid by process environment
// variables, which always win, then validates it.
func Load(path string) (*AppConfig, error) {
	_ = godotenv.Load() // best-effort; .env is optional in production

	var file yamlFile
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &file); err != nil {
				return nil, &hypergrid.ConfigInvalidError{Reason: fmt.Sprintf("parse config yaml %s: %v", path, err)}
			}
		}
	}

	cfg := fromYAML(file)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromYAML(f yamlFile) *AppConfig {
	cfg := &AppConfig{
		RPCURL:                 f.RPC,
		ChainID:                f.ChainID,
		FactoryAddress:         f.Addresses.Factory,
		QuoterV2Address:        f.Addresses.QuoterV2,
		RouterV3Address:        f.Addresses.RouterV3,
		PositionManagerAddress: f.Addresses.PositionManager,
		Tokens:                 map[string]TokenConfig{},
		Pairs:                  f.Pairs,
		GridTotalInvestmentUSD: big.NewRat(0, 1),
		GridCount:              f.Grid.Count,
		GridMode:               f.Grid.Mode,
		GridScalingFactor:      f.Grid.ScalingFactor,
		GridRangePercent:       f.Grid.RangePercent,
		GridProfitMargin:       f.Grid.ProfitMargin,
		GridMinProfitPercent:   f.Grid.MinProfitPercent,
		InitialTradePercent:    f.Grid.InitialTradePercent,
		MaxPositionSizeUSD:     floatToRat(f.Risk.MaxPositionSizeUSD),
		MaxDailyLossUSD:        floatToRat(f.Risk.MaxDailyLossUSD),
		MaxSlippageBps:         f.Risk.MaxSlippageBps,
		EmergencyStopLossBps:   f.Risk.EmergencyStopLossBps,
		CheckInterval:          durationMs(f.Loop.CheckIntervalMs, 5*time.Second),
		PriceUpdateInterval:    durationMs(f.Loop.PriceUpdateIntervalMs, 5*time.Second),
		HyperliquidAPIURL:      f.Hyperliquid.APIURL,
		HyperliquidRateLimitMs: f.Hyperliquid.RateLimitMs,
		DryRun:                 f.DryRun,
		DataDir:                f.DataDir,
	}
	if f.Grid.TotalInvestmentUSD != 0 {
		cfg.GridTotalInvestmentUSD = floatToRat(f.Grid.TotalInvestmentUSD)
	}
	for _, tok := range f.Tokens {
		cfg.Tokens[strings.ToUpper(tok.Symbol)] = tok
	}
	return cfg
}

func durationMs(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func floatToRat(f float64) *big.Rat {
	r := new(big.Rat)
	r.SetFloat64(f)
	return r
}

// applyEnvOverrides mutates cfg in place from recognized environment
// variables (§6's key table); env always wins over the YAML file.
func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		cfg.PrivateKeyEncrypted = v
	}
	if v := os.Getenv("PRIVATE_KEY_PASSWORD"); v != "" {
		cfg.PrivateKeyPassword = v
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.RPCURL = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.ChainID = n
		}
	}
	if v := os.Getenv("FACTORY_ADDRESS"); v != "" {
		cfg.FactoryAddress = v
	}
	if v := os.Getenv("QUOTER_V2_ADDRESS"); v != "" {
		cfg.QuoterV2Address = v
	}
	if v := os.Getenv("ROUTER_V3_ADDRESS"); v != "" {
		cfg.RouterV3Address = v
	}
	if v := os.Getenv("POSITION_MANAGER_ADDRESS"); v != "" {
		cfg.PositionManagerAddress = v
	}
	if v := os.Getenv("GRID_TOTAL_INVESTMENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.GridTotalInvestmentUSD = floatToRat(f)
		}
	}
	if v := os.Getenv("GRID_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.GridCount = n
		}
	}
	if v := os.Getenv("GRID_MODE"); v != "" {
		cfg.GridMode = v
	}
	if v := os.Getenv("GRID_SCALING_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.GridScalingFactor = f
		}
	}
	if v := os.Getenv("GRID_RANGE_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.GridRangePercent = f
		}
	}
	if v := os.Getenv("GRID_PROFIT_MARGIN"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.GridProfitMargin = f
		}
	}
	if v := os.Getenv("GRID_MIN_PROFIT_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.GridMinProfitPercent = f
		}
	}
	if v := os.Getenv("INITIAL_TRADE_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.InitialTradePercent = f
		}
	}
	if v := os.Getenv("MAX_POSITION_SIZE_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MaxPositionSizeUSD = floatToRat(f)
		}
	}
	if v := os.Getenv("MAX_DAILY_LOSS_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MaxDailyLossUSD = floatToRat(f)
		}
	}
	if v := os.Getenv("MAX_SLIPPAGE_BPS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.MaxSlippageBps = uint32(n)
		}
	}
	if v := os.Getenv("EMERGENCY_STOP_LOSS_BPS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.EmergencyStopLossBps = uint32(n)
		}
	}
	if v := os.Getenv("GRID_CHECK_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CheckInterval = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("PRICE_UPDATE_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PriceUpdateInterval = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("HYPERLIQUID_API_URL"); v != "" {
		cfg.HyperliquidAPIURL = v
	}
	if v := os.Getenv("HYPERLIQUID_RATE_LIMIT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HyperliquidRateLimitMs = n
		}
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		cfg.DryRun = v == "true" || v == "1"
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	applyTokenEnvOverrides(cfg)
	applyPairEnvOverrides(cfg)
}

// applyTokenEnvOverrides scans for <SYMBOL>_ADDRESS variables and
// registers or updates the named token.
func applyTokenEnvOverrides(cfg *AppConfig) {
	for _, kv := range os.Environ() {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || val == "" || !strings.HasSuffix(key, "_ADDRESS") {
			continue
		}
		symbol := strings.TrimSuffix(key, "_ADDRESS")
		switch symbol {
		case "FACTORY", "QUOTER_V2", "ROUTER_V3", "POSITION_MANAGER":
			continue // those are contract addresses, not tokens
		}
		tok := cfg.Tokens[symbol]
		tok.Symbol = symbol
		tok.Address = val
		cfg.Tokens[symbol] = tok
	}
}

// applyPairEnvOverrides scans PAIR_<n>_* variables for n = 1..64 and
// assembles/overrides the corresponding PairConfig slot.
func applyPairEnvOverrides(cfg *AppConfig) {
	for n := 1; n <= 64; n++ {
		prefix := fmt.Sprintf("PAIR_%d_", n)
		if _, ok := os.LookupEnv(prefix + "NAME"); !ok {
			if _, ok := os.LookupEnv(prefix + "ENABLED"); !ok {
				continue
			}
		}

		idx := n - 1
		for len(cfg.Pairs) <= idx {
			cfg.Pairs = append(cfg.Pairs, PairConfig{})
		}
		p := &cfg.Pairs[idx]

		if v, ok := os.LookupEnv(prefix + "ENABLED"); ok {
			p.Enabled = v == "true" || v == "1"
		}
		if v, ok := os.LookupEnv(prefix + "NAME"); ok {
			p.Name = v
		}
		if v, ok := os.LookupEnv(prefix + "BASE_TOKEN"); ok {
			p.BaseToken = v
		}
		if v, ok := os.LookupEnv(prefix + "QUOTE_TOKEN"); ok {
			p.QuoteToken = v
		}
		if v, ok := os.LookupEnv(prefix + "POOL_ADDRESS"); ok {
			p.PoolAddress = v
		}
		if v, ok := os.LookupEnv(prefix + "POOL_FEE"); ok {
			if fee, err := strconv.ParseUint(v, 10, 32); err == nil {
				p.PoolFeeBps = uint32(fee)
			}
		}
		if v, ok := os.LookupEnv(prefix + "ALLOCATION_PERCENT"); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				p.AllocationPercent = f
			}
		}
		if v, ok := os.LookupEnv(prefix + "GRID_COUNT"); ok {
			if gc, err := strconv.Atoi(v); err == nil {
				p.GridCount = gc
			}
		}
		if v, ok := os.LookupEnv(prefix + "RANGE_PERCENT"); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				p.RangePercent = f
			}
		}
	}
}
