// Package daypnl tracks the bot's realized profit and loss for the
// current UTC trading day, fed by every persisted TradeRecord and read
// back by both the Trade Validator's daily-loss guard and the
// Scheduler's emergency-stop check (spec §4.5, §4.8).
package daypnl

import (
	"math/big"
	"sync"
	"time"
)

// Tracker accumulates NetProfitUSD across trades, resetting at each
// UTC day boundary.
type Tracker struct {
	mu    sync.Mutex
	day   time.Time
	total *big.Rat
	now   func() time.Time
}

// New builds an empty Tracker.
func New() *Tracker {
	return &Tracker{total: big.NewRat(0, 1), now: func() time.Time { return time.Now().UTC() }}
}

// Add folds one trade's net profit into the running total, resetting
// the accumulator first if the trade lands on a new UTC day.
func (t *Tracker) Add(netProfitUSD *big.Rat) {
	if netProfitUSD == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	today := t.now().Truncate(24 * time.Hour)
	if !today.Equal(t.day) {
		t.day = today
		t.total = big.NewRat(0, 1)
	}
	t.total.Add(t.total, netProfitUSD)
}

// RealizedDayPnL reports the running total, satisfying both
// validator.DailyLossTracker and the Scheduler's realizedDayPnL hook.
func (t *Tracker) RealizedDayPnL() *big.Rat {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.now().Truncate(24 * time.Hour).Equal(t.day) {
		return big.NewRat(0, 1)
	}
	return new(big.Rat).Set(t.total)
}
