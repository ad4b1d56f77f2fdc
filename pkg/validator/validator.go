// Package validator implements the Trade Validator's ordered guard
// chain: every candidate trade passes every guard, in order, or is
// rejected at the first violation it fails.
package validator

import (
	"math/big"

	"github.com/hypergrid-bot/hypergrid"
)

// Candidate is a trade proposed by a Pair Engine for validation.
type Candidate struct {
	PairID        string
	Price         *big.Rat // the grid level's price
	MidPrice      *big.Rat // oracle's current mid for the pair
	EstimatedUSD  *big.Rat
	InTokenSymbol string
	AmountIn      *big.Int
}

// BalanceChecker reports the signer's available on-chain balance of a
// token, in its native integer units.
type BalanceChecker interface {
	AvailableBalance(tokenSymbol string) (*big.Int, error)
}

// DailyLossTracker reports the day's realized P&L so far.
type DailyLossTracker interface {
	RealizedDayPnL() *big.Rat
}

// Limits bundles the configured thresholds every guard checks
// against. DefaultLimits supplies the defaults noted per field;
// NewValidator uses the fields as given and does not fill in nil ones.
// EpsilonBudget is not read by any guard: the pair-budget guard uses
// PairBudget.WithinBudget's own margin.
type Limits struct {
	BandPercent     *big.Rat // default 0.50
	MinUSD          *big.Rat // default 1
	MaxUSD          *big.Rat // default 200
	MaxDailyLossUSD *big.Rat
	EpsilonBudget   *big.Rat // default 0.02
}

// DefaultLimits returns the spec §4.5 defaults, overridable per field.
func DefaultLimits() Limits {
	return Limits{
		BandPercent:   big.NewRat(1, 2),
		MinUSD:        big.NewRat(1, 1),
		MaxUSD:        big.NewRat(200, 1),
		EpsilonBudget: big.NewRat(2, 100),
	}
}

// Validator runs the ordered guard chain against a candidate.
type Validator struct {
	limits  Limits
	balance BalanceChecker
	losses  DailyLossTracker
}

// NewValidator builds a Validator with the given limits and
// collaborators.
func NewValidator(limits Limits, balance BalanceChecker, losses DailyLossTracker) *Validator {
	return &Validator{limits: limits, balance: balance, losses: losses}
}

// Validate runs every guard in spec order, returning the first
// failure encountered (a *hypergrid.ValidationFailedError, or a
// *hypergrid.BalanceInsufficientError from the balance guard), or nil
// if the candidate clears every guard.
func (v *Validator) Validate(c Candidate, budget *hypergrid.PairBudget) error {
	if err := v.checkPricePlausibility(c); err != nil {
		return err
	}
	if err := v.checkUSDSizing(c); err != nil {
		return err
	}
	if err := v.checkPairBudget(c, budget); err != nil {
		return err
	}
	if err := v.checkDailyLoss(c); err != nil {
		return err
	}
	if err := v.checkBalanceSufficiency(c, budget); err != nil {
		return err
	}
	return nil
}

func (v *Validator) checkPricePlausibility(c Candidate) error {
	if c.MidPrice == nil || c.MidPrice.Sign() == 0 {
		return &hypergrid.ValidationFailedError{Reason: "price_plausibility: no mid price available"}
	}
	diff := new(big.Rat).Sub(c.Price, c.MidPrice)
	diff.Abs(diff)
	ratio := new(big.Rat).Quo(diff, c.MidPrice)
	if ratio.Cmp(v.limits.BandPercent) > 0 {
		return &hypergrid.ValidationFailedError{Reason: "price_plausibility: candidate price outside band"}
	}
	return nil
}

func (v *Validator) checkUSDSizing(c Candidate) error {
	if c.EstimatedUSD.Cmp(v.limits.MinUSD) < 0 || c.EstimatedUSD.Cmp(v.limits.MaxUSD) > 0 {
		return &hypergrid.ValidationFailedError{Reason: "usd_sizing: estimated_usd outside [min,max]"}
	}
	return nil
}

func (v *Validator) checkPairBudget(c Candidate, budget *hypergrid.PairBudget) error {
	if budget == nil {
		return &hypergrid.ValidationFailedError{Reason: "pair_budget: no budget tracked for pair"}
	}
	if !budget.WithinBudget(c.EstimatedUSD) {
		return &hypergrid.ValidationFailedError{Reason: "pair_budget: would exceed pair allocation"}
	}
	return nil
}

func (v *Validator) checkDailyLoss(c Candidate) error {
	if v.losses == nil || v.limits.MaxDailyLossUSD == nil {
		return nil
	}
	realized := v.losses.RealizedDayPnL()
	projected := new(big.Rat).Sub(realized, c.EstimatedUSD)
	negLimit := new(big.Rat).Neg(v.limits.MaxDailyLossUSD)
	if projected.Cmp(negLimit) < 0 {
		return &hypergrid.ValidationFailedError{Reason: "daily_loss: would breach max daily loss"}
	}
	return nil
}

func (v *Validator) checkBalanceSufficiency(c Candidate, budget *hypergrid.PairBudget) error {
	if v.balance == nil {
		return nil
	}
	have, err := v.balance.AvailableBalance(c.InTokenSymbol)
	if err != nil {
		return &hypergrid.ValidationFailedError{Reason: "balance_sufficiency: could not read balance: " + err.Error()}
	}

	// safetyFactor reserves headroom above the trade size: the balance
	// must cover amount_in with margin to spare, have*factor >= amount_in,
	// i.e. required = amount_in/factor. Smaller pairs reserve more.
	safetyFactor := big.NewRat(9, 10)
	if budget != nil && budget.AllocatedUSD != nil && budget.AllocatedUSD.Cmp(big.NewRat(200, 1)) < 0 {
		safetyFactor = big.NewRat(8, 10)
	}
	required := new(big.Rat).Quo(new(big.Rat).SetInt(c.AmountIn), safetyFactor)
	requiredInt := new(big.Int).Quo(required.Num(), required.Denom())

	if have.Cmp(requiredInt) < 0 {
		return &hypergrid.BalanceInsufficientError{
			Token: c.InTokenSymbol,
			Have:  have.String(),
			Need:  requiredInt.String(),
		}
	}
	return nil
}
