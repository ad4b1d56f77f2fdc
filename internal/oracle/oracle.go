// Package oracle implements the Price Oracle: a streaming exchange
// feed backed by an on-chain QuoterV2 fallback and a last-known-sample
// cache, composed into a single read path with no hardcoded fallback
// price.
package oracle

import (
	"math/big"
	"time"

	"github.com/hypergrid-bot/hypergrid"
)

// Oracle is the read surface every other component depends on.
type Oracle interface {
	GetPairPrice(base, quote hypergrid.Token) (hypergrid.PriceSample, error)
	GetUSD(symbol string) (hypergrid.PriceSample, error)
	Health() HealthReport
}

// HealthReport summarizes the oracle's live state for the status snapshot.
type HealthReport struct {
	FeedConnected   bool
	LastFeedMessage time.Time
	CachedSymbols   int
	StaleSymbols    []string
}

// SanityRange bounds the values accepted into the cache for a symbol;
// a sample outside the range is rejected at ingest and never cached.
type SanityRange struct {
	Min, Max *big.Rat
}

// liveSource wraps a pricer that can be bypassed if it returns an error.
type liveSource func() (hypergrid.PriceSample, error)

// priceOracle is the concrete Oracle implementation.
type priceOracle struct {
	cache        *cache
	quoterSource *QuoterSource
	feed         *Feed
	sanity       map[string]SanityRange
	now          func() time.Time
}

// Option configures a priceOracle at construction.
type Option func(*priceOracle)

// WithSanityRange rejects samples for symbol outside [min,max] at ingest.
func WithSanityRange(symbol string, min, max *big.Rat) Option {
	return func(o *priceOracle) { o.sanity[symbol] = SanityRange{Min: min, Max: max} }
}

// WithFeed attaches the streaming feed whose WebSocket-sourced samples
// take priority over QuoterV2 for the symbols it authoritatively
// supplies (HYPE/USD).
func WithFeed(f *Feed) Option {
	return func(o *priceOracle) { o.feed = f }
}

// New builds an Oracle backed by the given QuoterV2 source, with a
// cache of the given TTL.
func New(qs *QuoterSource, ttl time.Duration, opts ...Option) Oracle {
	o := &priceOracle{
		cache:        newCache(ttl),
		quoterSource: qs,
		sanity:       make(map[string]SanityRange),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.feed != nil {
		o.feed.onSample = o.ingestFeedSample
	}
	return o
}

func (o *priceOracle) ingestFeedSample(sample hypergrid.PriceSample) {
	if !o.sane(sample.Symbol, sample.Price) {
		return
	}
	o.cache.put(sample)
}

func (o *priceOracle) sane(symbol string, price *big.Rat) bool {
	r, ok := o.sanity[symbol]
	if !ok {
		return price != nil && price.Sign() > 0
	}
	if price == nil || price.Sign() <= 0 {
		return false
	}
	if r.Min != nil && price.Cmp(r.Min) < 0 {
		return false
	}
	if r.Max != nil && price.Cmp(r.Max) > 0 {
		return false
	}
	return true
}

// GetUSD resolves a symbol's USD price: feed (if it authoritatively
// supplies the symbol) -> QuoterV2 -> cache -> PriceUnavailable.
func (o *priceOracle) GetUSD(symbol string) (hypergrid.PriceSample, error) {
	return o.resolve(symbol, func() (hypergrid.PriceSample, error) {
		return o.quoterSource.USD(symbol)
	})
}

// GetPairPrice resolves an AMM pair's price via the same chain.
func (o *priceOracle) GetPairPrice(base, quote hypergrid.Token) (hypergrid.PriceSample, error) {
	key := pairKey(base, quote)
	return o.resolve(key, func() (hypergrid.PriceSample, error) {
		return o.quoterSource.PairPrice(base, quote)
	})
}

func (o *priceOracle) resolve(symbol string, live liveSource) (hypergrid.PriceSample, error) {
	now := o.now()

	if s, ok := o.cache.peekFresh(symbol, now); ok && s.Source == hypergrid.SourceWebSocket {
		return s, nil
	}

	if live != nil {
		if sample, err := live(); err == nil && o.sane(symbol, sample.Price) {
			o.cache.put(sample)
			return sample, nil
		}
	}

	if s, ok := o.cache.get(symbol, now); ok {
		return s, nil
	}

	return hypergrid.PriceSample{}, &hypergrid.PriceUnavailableError{Symbol: symbol}
}

func (o *priceOracle) Health() HealthReport {
	connected := false
	var lastMsg time.Time
	if o.feed != nil {
		connected = o.feed.Connected()
		lastMsg = o.feed.LastMessageAt()
	}
	return HealthReport{
		FeedConnected:   connected,
		LastFeedMessage: lastMsg,
		CachedSymbols:   o.cache.len(),
		StaleSymbols:    o.cache.staleSymbols(o.now()),
	}
}

func pairKey(base, quote hypergrid.Token) string {
	return base.Symbol + "-" + quote.Symbol
}
