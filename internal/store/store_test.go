package store

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypergrid-bot/hypergrid"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func trade(id int64, at time.Time) *hypergrid.TradeRecord {
	return &hypergrid.TradeRecord{
		ID:             id,
		PairID:         "weth-usdc",
		ExecutionPrice: big.NewRat(1500, 1),
		USDValue:       big.NewRat(100, 1),
		NetProfitUSD:   big.NewRat(1, 1),
		Timestamp:      at,
	}
}

func TestAppendTradeThenReadBack(t *testing.T) {
	s := newTestStore(t)
	day := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendTrade(trade(1, day)))
	require.NoError(t, s.AppendTrade(trade(2, day.Add(time.Second))))

	trades, err := s.ReadTrades(day)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(1), trades[0].ID)
	assert.Equal(t, int64(2), trades[1].ID)
}

func TestAppendTradeRejectsNonIncreasingID(t *testing.T) {
	s := newTestStore(t)
	day := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendTrade(trade(5, day)))
	err := s.AppendTrade(trade(5, day.Add(time.Second)))
	assert.Error(t, err)
}

func TestWriteStatusAtomicThenRead(t *testing.T) {
	s := newTestStore(t)
	status := hypergrid.BotStatus{
		GeneratedAt:       time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC),
		RealizedDayPnLUSD: big.NewRat(42, 1),
		Pairs: []hypergrid.PairStatus{
			{PairID: "weth-usdc", Enabled: true, ArmedLevels: 10},
		},
	}
	require.NoError(t, s.WriteStatus(status))

	got, err := s.ReadStatus()
	require.NoError(t, err)
	assert.Equal(t, 0, got.RealizedDayPnLUSD.Cmp(big.NewRat(42, 1)))
	require.Len(t, got.Pairs, 1)
	assert.Equal(t, "weth-usdc", got.Pairs[0].PairID)
}

func TestWriteLadderUsesPairIDFilename(t *testing.T) {
	s := newTestStore(t)
	ladder := &hypergrid.LadderState{PairID: "weth-usdc", Count: 2}
	require.NoError(t, s.WriteLadder(ladder))

	var out hypergrid.LadderState
	require.NoError(t, s.readJSON("ladder-weth-usdc.json", &out))
	assert.Equal(t, "weth-usdc", out.PairID)
}

func TestReadTradesForMissingDayIsEmptyNotError(t *testing.T) {
	s := newTestStore(t)
	trades, err := s.ReadTrades(time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, trades)
}
