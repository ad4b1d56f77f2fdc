package oracle

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypergrid-bot/hypergrid"
)

func TestCachePutGetFreshIsHigh(t *testing.T) {
	c := newCache(30 * time.Second)
	now := time.Now().UTC()
	c.put(hypergrid.PriceSample{Symbol: "HYPE", Price: big.NewRat(5, 1), Source: hypergrid.SourceWebSocket, Confidence: hypergrid.High, ObservedAt: now})

	s, ok := c.peekFresh("HYPE", now)
	require.True(t, ok)
	assert.Equal(t, hypergrid.High, s.Confidence)
}

func TestCacheGetDecaysToMediumThenLow(t *testing.T) {
	c := newCache(30 * time.Second)
	observed := time.Now().UTC()
	c.put(hypergrid.PriceSample{Symbol: "HYPE", Price: big.NewRat(5, 1), Source: hypergrid.SourceWebSocket, ObservedAt: observed})

	medium, ok := c.get("HYPE", observed.Add(10*time.Second))
	require.True(t, ok)
	assert.Equal(t, hypergrid.Medium, medium.Confidence)
	assert.Equal(t, hypergrid.SourceCached, medium.Source)

	low, ok := c.get("HYPE", observed.Add(20*time.Second))
	require.True(t, ok)
	assert.Equal(t, hypergrid.Low, low.Confidence)
}

func TestCacheGetExpiresPastTTL(t *testing.T) {
	c := newCache(30 * time.Second)
	observed := time.Now().UTC()
	c.put(hypergrid.PriceSample{Symbol: "HYPE", Price: big.NewRat(5, 1), ObservedAt: observed})

	_, ok := c.get("HYPE", observed.Add(31*time.Second))
	assert.False(t, ok)
}

func TestCacheStaleSymbols(t *testing.T) {
	c := newCache(30 * time.Second)
	observed := time.Now().UTC()
	c.put(hypergrid.PriceSample{Symbol: "HYPE", ObservedAt: observed})
	c.put(hypergrid.PriceSample{Symbol: "BTC", ObservedAt: observed})

	stale := c.staleSymbols(observed.Add(31 * time.Second))
	assert.ElementsMatch(t, []string{"HYPE", "BTC"}, stale)
}
