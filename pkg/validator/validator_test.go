package validator

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypergrid-bot/hypergrid"
)

type fakeBalance struct {
	balances map[string]*big.Int
	err      error
}

func (f *fakeBalance) AvailableBalance(symbol string) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.balances[symbol], nil
}

type fakeLosses struct {
	pnl *big.Rat
}

func (f *fakeLosses) RealizedDayPnL() *big.Rat { return f.pnl }

func budget(allocated, committed, released string) *hypergrid.PairBudget {
	a, _ := new(big.Rat).SetString(allocated)
	c, _ := new(big.Rat).SetString(committed)
	r, _ := new(big.Rat).SetString(released)
	return &hypergrid.PairBudget{PairID: "weth-usdc", AllocatedUSD: a, CommittedUSD: c, ReleasedUSD: r}
}

func candidateAt(price, mid, usd string, amountIn int64) Candidate {
	p, _ := new(big.Rat).SetString(price)
	m, _ := new(big.Rat).SetString(mid)
	u, _ := new(big.Rat).SetString(usd)
	return Candidate{
		PairID:        "weth-usdc",
		Price:         p,
		MidPrice:      m,
		EstimatedUSD:  u,
		InTokenSymbol: "USDC",
		AmountIn:      big.NewInt(amountIn),
	}
}

func TestValidateAcceptsWellFormedCandidate(t *testing.T) {
	v := NewValidator(DefaultLimits(), &fakeBalance{balances: map[string]*big.Int{"USDC": big.NewInt(1000)}}, nil)
	c := candidateAt("1500", "1500", "50", 100)

	err := v.Validate(c, budget("1000", "0", "0"))
	assert.NoError(t, err)
}

func TestValidateRejectsPriceOutsideBand(t *testing.T) {
	v := NewValidator(DefaultLimits(), &fakeBalance{}, nil)
	c := candidateAt("10000", "1500", "50", 100)

	err := v.Validate(c, budget("1000", "0", "0"))
	require.Error(t, err)
	var verr *hypergrid.ValidationFailedError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Reason, "price_plausibility")
}

func TestValidateRejectsOversizedTrade(t *testing.T) {
	v := NewValidator(DefaultLimits(), &fakeBalance{}, nil)
	c := candidateAt("1500", "1500", "250", 100)

	err := v.Validate(c, budget("1000", "0", "0"))
	require.Error(t, err)
	var verr *hypergrid.ValidationFailedError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Reason, "usd_sizing")
}

func TestValidateRejectsOverBudgetPair(t *testing.T) {
	v := NewValidator(DefaultLimits(), &fakeBalance{}, nil)
	c := candidateAt("1500", "1500", "50", 100)

	err := v.Validate(c, budget("100", "95", "0"))
	require.Error(t, err)
	var verr *hypergrid.ValidationFailedError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Reason, "pair_budget")
}

func TestValidateRejectsDailyLossBreach(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxDailyLossUSD = big.NewRat(20, 1)
	v := NewValidator(limits, &fakeBalance{balances: map[string]*big.Int{"USDC": big.NewInt(1000)}}, &fakeLosses{pnl: big.NewRat(-15, 1)})
	c := candidateAt("1500", "1500", "10", 100)

	err := v.Validate(c, budget("1000", "0", "0"))
	require.Error(t, err)
	var verr *hypergrid.ValidationFailedError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Reason, "daily_loss")
}

func TestValidateRejectsInsufficientBalance(t *testing.T) {
	v := NewValidator(DefaultLimits(), &fakeBalance{balances: map[string]*big.Int{"USDC": big.NewInt(10)}}, nil)
	c := candidateAt("1500", "1500", "50", 100)

	err := v.Validate(c, budget("1000", "0", "0"))
	require.Error(t, err)
	var berr *hypergrid.BalanceInsufficientError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, "USDC", berr.Token)
}
