// Package grid implements the ladder-planning math a grid-trading
// pair runs against: level placement, side partitioning, and
// investment sizing across an arithmetic or geometric spacing.
package grid

import (
	"fmt"
	"math/big"
	"time"

	"github.com/hypergrid-bot/hypergrid"
)

// LadderConfig is the input to Plan.
type LadderConfig struct {
	PairID           string
	MinPrice         *big.Rat
	MaxPrice         *big.Rat
	Count            int
	Mode             hypergrid.LadderMode
	TotalInvestment  *big.Rat // USD
	CurrentPrice     *big.Rat
	TolerancePercent *big.Rat // a fraction; default 0.0001 (0.01%)
	ScalingFactor    *big.Rat // optional, in [1,20]; nil or 1 disables scaling
}

// Plan builds a LadderState of cfg.Count levels spaced per cfg.Mode,
// partitioned into Buy/Sell sides around cfg.CurrentPrice, and sized
// from cfg.TotalInvestment (spec §4.4).
func Plan(cfg LadderConfig) (*hypergrid.LadderState, error) {
	if cfg.Count < 2 {
		return nil, &hypergrid.ConfigInvalidError{Reason: "grid count must be >= 2"}
	}
	if cfg.MinPrice == nil || cfg.MaxPrice == nil || cfg.MinPrice.Cmp(cfg.MaxPrice) >= 0 {
		return nil, &hypergrid.ConfigInvalidError{Reason: "min_price must be < max_price"}
	}
	if cfg.CurrentPrice == nil || cfg.CurrentPrice.Sign() <= 0 {
		return nil, &hypergrid.ConfigInvalidError{Reason: "current_price must be positive"}
	}

	tolerance := cfg.TolerancePercent
	if tolerance == nil {
		tolerance = big.NewRat(1, 10000) // 0.01%
	}

	prices, err := placeLevels(cfg.Mode, cfg.MinPrice, cfg.MaxPrice, cfg.Count)
	if err != nil {
		return nil, err
	}

	quantities := sizeLevels(prices, cfg.CurrentPrice, cfg.TotalInvestment, cfg.Count, cfg.ScalingFactor)

	now := currentTime()
	levels := make([]*hypergrid.GridLevel, cfg.Count)
	for i, price := range prices {
		side, armed := sideFor(price, cfg.CurrentPrice, tolerance)
		state := hypergrid.Armed
		if !armed {
			state = hypergrid.Disabled
		}
		levels[i] = &hypergrid.GridLevel{
			ID:         fmt.Sprintf("%s-L%d", cfg.PairID, i),
			PairID:     cfg.PairID,
			LevelIndex: i,
			Price:      price,
			Quantity:   quantities[i],
			Side:       side,
			State:      state,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}

	return &hypergrid.LadderState{
		PairID:       cfg.PairID,
		MinPrice:     cfg.MinPrice,
		MaxPrice:     cfg.MaxPrice,
		Mode:         cfg.Mode,
		Count:        cfg.Count,
		MidReference: cfg.CurrentPrice,
		Levels:       levels,
		GeneratedAt:  now,
	}, nil
}

// currentTime is a seam so tests can avoid relying on wall-clock
// values when comparing generated ladders.
var currentTime = func() time.Time { return time.Now().UTC() }

// placeLevels returns cfg.Count prices for the chosen spacing mode.
func placeLevels(mode hypergrid.LadderMode, minPrice, maxPrice *big.Rat, count int) ([]*big.Rat, error) {
	prices := make([]*big.Rat, count)
	denom := big.NewRat(int64(count-1), 1)

	switch mode {
	case hypergrid.Arithmetic:
		span := new(big.Rat).Sub(maxPrice, minPrice)
		step := new(big.Rat).Quo(span, denom)
		for i := 0; i < count; i++ {
			offset := new(big.Rat).Mul(step, big.NewRat(int64(i), 1))
			prices[i] = new(big.Rat).Add(minPrice, offset)
		}
	case hypergrid.Geometric:
		ratio, err := nthRoot(new(big.Rat).Quo(maxPrice, minPrice), count-1)
		if err != nil {
			return nil, err
		}
		prices[0] = new(big.Rat).Set(minPrice)
		for i := 1; i < count; i++ {
			prices[i] = new(big.Rat).Mul(prices[i-1], ratio)
		}
	default:
		return nil, &hypergrid.ConfigInvalidError{Reason: "unknown ladder mode"}
	}
	return prices, nil
}

// nthRoot computes x^(1/n) for a positive rational x via Newton's
// method in big.Float, then converts back to an exact big.Rat
// approximation — there is no closed-form rational root in general,
// so the ladder's geometric ratio is necessarily an approximation at
// the precision below.
func nthRoot(x *big.Rat, n int) (*big.Rat, error) {
	if n <= 0 {
		return nil, &hypergrid.ConfigInvalidError{Reason: "geometric ladder needs count >= 2"}
	}
	xf := new(big.Float).SetPrec(200).SetRat(x)
	guess := new(big.Float).SetPrec(200).Copy(xf)
	nf := new(big.Float).SetPrec(200).SetInt64(int64(n))

	for i := 0; i < 100; i++ {
		// guess = ((n-1)*guess + x/guess^(n-1)) / n
		pow := new(big.Float).SetPrec(200).SetInt64(1)
		for j := 0; j < n-1; j++ {
			pow.Mul(pow, guess)
		}
		term := new(big.Float).SetPrec(200).Quo(xf, pow)
		sum := new(big.Float).SetPrec(200).Mul(big.NewFloat(float64(n-1)), guess)
		sum.Add(sum, term)
		next := new(big.Float).SetPrec(200).Quo(sum, nf)
		if next.Cmp(guess) == 0 {
			guess = next
			break
		}
		guess = next
	}

	result := new(big.Rat)
	result.SetString(guess.Text('f', 40))
	return result, nil
}

// sideFor classifies price as Buy/Sell relative to current, and
// reports whether it should be armed (outside tolerance of current).
func sideFor(price, current, tolerancePercent *big.Rat) (hypergrid.Side, bool) {
	diff := new(big.Rat).Sub(price, current)
	diff.Abs(diff)
	boundary := new(big.Rat).Mul(current, tolerancePercent)
	if diff.Cmp(boundary) <= 0 {
		return hypergrid.Buy, false
	}
	if price.Cmp(current) < 0 {
		return hypergrid.Buy, true
	}
	return hypergrid.Sell, true
}

// sizeLevels computes the base quantity (Sell, in base units) or the
// USD share itself (Buy, spent as the quote-token amount at execution
// time) for each level, applying optional geometric size
// scaling renormalized back to the total investment.
func sizeLevels(prices []*big.Rat, current, totalInvestment *big.Rat, count int, scalingFactor *big.Rat) []*big.Rat {
	n := big.NewRat(int64(count), 1)
	base := new(big.Rat).Quo(totalInvestment, n)

	weights := make([]*big.Rat, count)
	mid := float64(count) / 2
	scaling := scalingFactor
	if scaling == nil {
		scaling = big.NewRat(1, 1)
	}

	total := big.NewRat(0, 1)
	for i := range prices {
		w := big.NewRat(1, 1)
		if scaling.Cmp(big.NewRat(1, 1)) > 0 {
			distance := absFloat(float64(i) - mid)
			factorF := 1 + (distance/(float64(count)/2))*(ratToFloat(scaling)-1)/20
			w = floatToRatLocal(factorF)
		}
		weights[i] = w
		total.Add(total, w)
	}

	quantities := make([]*big.Rat, count)
	investmentTotal := new(big.Rat).Mul(base, n)
	for i, w := range weights {
		share := new(big.Rat).Quo(w, total)
		usdForLevel := new(big.Rat).Mul(investmentTotal, share)

		if prices[i].Cmp(current) > 0 {
			// Sell level: convert USD share to base-token quantity.
			quantities[i] = new(big.Rat).Quo(usdForLevel, prices[i])
		} else {
			// Buy level: quantity is expressed in USD->quote terms.
			quantities[i] = usdForLevel
		}
	}
	return quantities
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func ratToFloat(r *big.Rat) float64 {
	f, _ := r.Float64()
	return f
}

func floatToRatLocal(f float64) *big.Rat {
	r := new(big.Rat)
	r.SetFloat64(f)
	return r
}
