package oracle

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hypergrid-bot/hypergrid"
)

// cache is the last-known-sample store. Reads are wait-free against an
// atomic-pointer symbol map; writes serialize through writeMu and swap
// in a new map (single-writer, copy-on-write).
type cache struct {
	ttl     time.Duration
	ptr     atomic.Pointer[map[string]hypergrid.PriceSample]
	writeMu sync.Mutex
}

func newCache(ttl time.Duration) *cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	c := &cache{ttl: ttl}
	empty := make(map[string]hypergrid.PriceSample)
	c.ptr.Store(&empty)
	return c
}

func (c *cache) put(sample hypergrid.PriceSample) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	old := *c.ptr.Load()
	next := make(map[string]hypergrid.PriceSample, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[sample.Symbol] = sample
	c.ptr.Store(&next)
}

// peekFresh returns the raw stored sample without confidence decay,
// only if it is still within ttl.
func (c *cache) peekFresh(symbol string, now time.Time) (hypergrid.PriceSample, bool) {
	m := *c.ptr.Load()
	s, ok := m[symbol]
	if !ok || now.Sub(s.ObservedAt) > c.ttl {
		return hypergrid.PriceSample{}, false
	}
	return s, true
}

// get returns the stored sample for symbol, with its Confidence
// decayed per spec §4.2: Medium if age < ttl/2, else Low. A sample
// older than ttl is not usable and is reported as absent.
func (c *cache) get(symbol string, now time.Time) (hypergrid.PriceSample, bool) {
	m := *c.ptr.Load()
	s, ok := m[symbol]
	if !ok {
		return hypergrid.PriceSample{}, false
	}
	age := now.Sub(s.ObservedAt)
	if age > c.ttl {
		return hypergrid.PriceSample{}, false
	}
	decayed := s
	decayed.Source = hypergrid.SourceCached
	if age < c.ttl/2 {
		decayed.Confidence = hypergrid.Medium
	} else {
		decayed.Confidence = hypergrid.Low
	}
	return decayed, true
}

func (c *cache) len() int {
	return len(*c.ptr.Load())
}

func (c *cache) staleSymbols(now time.Time) []string {
	m := *c.ptr.Load()
	var stale []string
	for symbol, s := range m {
		if now.Sub(s.ObservedAt) > c.ttl {
			stale = append(stale, symbol)
		}
	}
	return stale
}
