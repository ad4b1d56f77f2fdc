package daypnl

import (
	"math/big"
	"testing"
	"time"
)

func TestAddAccumulatesWithinSameDay(t *testing.T) {
	tr := New()
	fixed := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return fixed }

	tr.Add(big.NewRat(5, 1))
	tr.Add(big.NewRat(-2, 1))

	if got := tr.RealizedDayPnL(); got.Cmp(big.NewRat(3, 1)) != 0 {
		t.Errorf("RealizedDayPnL() = %v, want 3", got)
	}
}

func TestAddResetsOnNewDay(t *testing.T) {
	tr := New()
	day1 := time.Date(2026, 7, 30, 23, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return day1 }
	tr.Add(big.NewRat(10, 1))

	day2 := time.Date(2026, 7, 31, 1, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return day2 }
	tr.Add(big.NewRat(1, 1))

	if got := tr.RealizedDayPnL(); got.Cmp(big.NewRat(1, 1)) != 0 {
		t.Errorf("RealizedDayPnL() = %v, want 1 (reset across day boundary)", got)
	}
}

func TestAddIgnoresNil(t *testing.T) {
	tr := New()
	tr.Add(nil)
	if got := tr.RealizedDayPnL(); got.Sign() != 0 {
		t.Errorf("RealizedDayPnL() = %v, want 0", got)
	}
}
