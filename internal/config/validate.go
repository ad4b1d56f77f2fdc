package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/hypergrid-bot/hypergrid"
)

// validFeeTiers mirrors the pool fee tiers the AMM Client falls back
// across (spec §4.3).
var validFeeTiers = map[uint32]bool{100: true, 500: true, 3000: true, 10000: true}

// Validate checks AppConfig against every rule §4.1 names, collecting
// every violation found rather than stopping at the first.
func (c *AppConfig) Validate() error {
	var errs []string

	if c.PrivateKeyEncrypted == "" {
		errs = append(errs, "PRIVATE_KEY is required")
	}
	if c.RPCURL == "" {
		errs = append(errs, "RPC_URL is required")
	}

	if c.GridCount < 2 || c.GridCount > 100 {
		errs = append(errs, fmt.Sprintf("GRID_COUNT must be in [2,100], got %d", c.GridCount))
	}
	if c.GridMinProfitPercent < 0 {
		errs = append(errs, fmt.Sprintf("GRID_MIN_PROFIT_PERCENT must be >= 0, got %v", c.GridMinProfitPercent))
	}

	enabled := 0
	var allocationSum float64
	for i, p := range c.Pairs {
		if !p.Enabled {
			continue
		}
		enabled++
		allocationSum += p.AllocationPercent

		if p.BaseToken == "" || p.QuoteToken == "" {
			errs = append(errs, fmt.Sprintf("pair %d (%s): base_token and quote_token are required", i, p.Name))
			continue
		}
		if strings.EqualFold(p.BaseToken, p.QuoteToken) {
			errs = append(errs, fmt.Sprintf("pair %d (%s): base and quote token must differ", i, p.Name))
		}
		if !validFeeTiers[p.PoolFeeBps] {
			errs = append(errs, fmt.Sprintf("pair %d (%s): pool_fee %d is not one of 100/500/3000/10000", i, p.Name, p.PoolFeeBps))
		}
		if _, ok := c.Tokens[strings.ToUpper(p.BaseToken)]; !ok {
			errs = append(errs, fmt.Sprintf("pair %d (%s): base token %q has no known address", i, p.Name, p.BaseToken))
		}
		if _, ok := c.Tokens[strings.ToUpper(p.QuoteToken)]; !ok {
			errs = append(errs, fmt.Sprintf("pair %d (%s): quote token %q has no known address", i, p.Name, p.QuoteToken))
		}
	}

	if enabled > 0 && (allocationSum < 99.99 || allocationSum > 100.01) {
		errs = append(errs, fmt.Sprintf("enabled pair allocation_percent must sum to 100 (±0.01), got %.4f", allocationSum))
	}

	if c.MaxDailyLossUSD != nil && c.MaxDailyLossUSD.Sign() < 0 {
		errs = append(errs, "MAX_DAILY_LOSS_USD must be >= 0")
	}
	if c.GridTotalInvestmentUSD == nil || c.GridTotalInvestmentUSD.Cmp(big.NewRat(0, 1)) <= 0 {
		errs = append(errs, "GRID_TOTAL_INVESTMENT must be > 0")
	}

	if len(errs) > 0 {
		return &hypergrid.ConfigInvalidError{Reason: strings.Join(errs, "; ")}
	}
	return nil
}
