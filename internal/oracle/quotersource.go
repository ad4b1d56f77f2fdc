package oracle

import (
	"math/big"
	"time"

	"github.com/hypergrid-bot/hypergrid"
	"github.com/hypergrid-bot/hypergrid/pkg/quoter"
)

// PairProbe is the fixed exact-input probe the QuoterSource runs
// against a pool to derive its current price.
type PairProbe struct {
	Pair          hypergrid.Pair
	ProbeAmountIn *big.Int // in base-token native units
}

// QuoterSource derives PriceSamples from read-only QuoterV2 calls,
// per spec §4.2 source 2.
type QuoterSource struct {
	client *quoter.Client
	probes map[string]PairProbe
	btcUSD *PairProbe
	now    func() time.Time
}

// NewQuoterSource builds a QuoterSource over the given probes, keyed
// by "BASE-QUOTE" symbol pair. btcUSD, if non-nil, is the
// wrapped-BTC/stable probe used to derive BTC/USD.
func NewQuoterSource(client *quoter.Client, probes map[string]PairProbe, btcUSD *PairProbe) *QuoterSource {
	return &QuoterSource{
		client: client,
		probes: probes,
		btcUSD: btcUSD,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// PairPrice quotes the configured probe for (base, quote) and converts
// the result into a quote-per-base PriceSample.
func (q *QuoterSource) PairPrice(base, quote hypergrid.Token) (hypergrid.PriceSample, error) {
	key := pairKey(base, quote)
	probe, ok := q.probes[key]
	if !ok {
		return hypergrid.PriceSample{}, &hypergrid.PriceUnavailableError{Symbol: key}
	}
	result, err := q.client.QuoteExactInput(base.Address, quote.Address, probe.ProbeAmountIn, probe.Pair.PoolFeeBps)
	if err != nil {
		return hypergrid.PriceSample{}, err
	}
	price := ratioPrice(probe.ProbeAmountIn, result.AmountOut, base.Decimals, quote.Decimals)
	return hypergrid.PriceSample{
		Symbol:     key,
		Price:      price,
		Source:     hypergrid.SourceQuoterV2,
		Confidence: hypergrid.High,
		ObservedAt: q.now(),
	}, nil
}

// USD derives a symbol's USD price. Only BTC is currently derivable,
// via the configured wrapped-BTC/stable probe (spec §4.2 source 2b);
// any other symbol falls through to PriceUnavailable so the caller's
// cache/feed chain can still serve it.
func (q *QuoterSource) USD(symbol string) (hypergrid.PriceSample, error) {
	if symbol != "BTC" || q.btcUSD == nil {
		return hypergrid.PriceSample{}, &hypergrid.PriceUnavailableError{Symbol: symbol}
	}
	probe := *q.btcUSD
	result, err := q.client.QuoteExactInput(probe.Pair.Base.Address, probe.Pair.Quote.Address, probe.ProbeAmountIn, probe.Pair.PoolFeeBps)
	if err != nil {
		return hypergrid.PriceSample{}, err
	}
	price := ratioPrice(probe.ProbeAmountIn, result.AmountOut, probe.Pair.Base.Decimals, probe.Pair.Quote.Decimals)
	return hypergrid.PriceSample{
		Symbol:     "BTC",
		Price:      price,
		Source:     hypergrid.SourceQuoterV2,
		Confidence: hypergrid.High,
		ObservedAt: q.now(),
	}, nil
}

// ratioPrice converts an (amountIn, amountOut) exact-input quote into
// a quote-per-base price, adjusting for each token's on-chain decimals.
func ratioPrice(amountIn, amountOut *big.Int, baseDecimals, quoteDecimals uint8) *big.Rat {
	price := new(big.Rat).SetFrac(amountOut, amountIn)
	scale := new(big.Rat).SetFrac(pow10(baseDecimals), pow10(quoteDecimals))
	return price.Mul(price, scale)
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
